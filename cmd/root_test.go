package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"run", "serve", "review", "claims", "pay", "export", "migrate"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "claims-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRunCommand_Flags(t *testing.T) {
	flag := runCmd.Flags().Lookup("file")
	require.NotNil(t, flag, "run command should have --file flag")
}

func TestReviewCommand_RequiredFlags(t *testing.T) {
	require.NotNil(t, reviewCmd.Flags().Lookup("decision"))
	require.NotNil(t, reviewCmd.Flags().Lookup("reviewer"))
	require.NotNil(t, reviewCmd.Flags().Lookup("notes"))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestClaimsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range claimsCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["list"])
	assert.True(t, names["show"])
}

func TestCollectNotes_SingleArg(t *testing.T) {
	runFile = ""
	notes, err := collectNotes([]string{"Patient has a sore throat."})
	require.NoError(t, err)
	assert.Equal(t, []string{"Patient has a sore throat."}, notes)
}

func TestCollectNotes_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	content := "First note about strep throat.\n\n  \nSecond note about a sprained ankle.\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	runFile = path
	defer func() { runFile = "" }()

	notes, err := collectNotes(nil)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "First note about strep throat.", notes[0])
	assert.Equal(t, "Second note about a sprained ankle.", notes[1])
}

func TestCollectNotes_MissingFile(t *testing.T) {
	runFile = filepath.Join(t.TempDir(), "absent.txt")
	defer func() { runFile = "" }()

	_, err := collectNotes(nil)
	assert.Error(t, err)
}
