package main

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clearcoast/claims-cli/internal/model"
)

var runFile string

var runCmd = &cobra.Command{
	Use:   "run [clinical note]",
	Short: "Adjudicate one or more clinical notes",
	Long:  "Runs the full pipeline on a note given as an argument, or on every non-empty line of the file given with --file.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		notes, err := collectNotes(args)
		if err != nil {
			return err
		}
		if len(notes) == 0 {
			return eris.New("no clinical notes to process, pass a note argument or --file")
		}

		if len(notes) == 1 {
			claim, err := env.Pipeline.Run(ctx, notes[0])
			if err != nil {
				return eris.Wrap(err, "pipeline run")
			}
			return printJSON(claim)
		}

		// Claims are independent, so batches run concurrently. The store's
		// per-claim guarded writes keep parallel runs from interfering.
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Batch.MaxConcurrentClaims)

		results := make([]*model.Claim, len(notes))
		for i, note := range notes {
			g.Go(func() error {
				claim, err := env.Pipeline.Run(gctx, note)
				if err != nil {
					return err
				}
				results[i] = claim
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return eris.Wrap(err, "batch run")
		}

		summary := map[string]int{}
		for _, c := range results {
			summary[string(c.Status)]++
		}
		zap.L().Info("batch complete", zap.Int("claims", len(results)), zap.Any("by_status", summary))

		return printJSON(results)
	},
}

func collectNotes(args []string) ([]string, error) {
	if runFile == "" {
		if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
			return []string{args[0]}, nil
		}
		return nil, nil
	}

	f, err := os.Open(runFile)
	if err != nil {
		return nil, eris.Wrapf(err, "open notes file %s", runFile)
	}
	defer f.Close()

	var notes []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			notes = append(notes, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "read notes file %s", runFile)
	}
	return notes, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	runCmd.Flags().StringVar(&runFile, "file", "", "file with one clinical note per line")
	rootCmd.AddCommand(runCmd)
}
