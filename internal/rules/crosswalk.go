package rules

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// NecessityRule ties a procedure code to the diagnosis families that
// justify it. A claim billing the procedure with a diagnosis outside every
// allowed family fails medical necessity.
type NecessityRule struct {
	CPT                string   `yaml:"cpt"`
	Description        string   `yaml:"description"`
	AllowedICDPrefixes []string `yaml:"allowed_icd_prefixes"`
}

// AppliesTo reports whether the claim's procedure code invokes this rule.
// Matching is by substring, tolerating modifier suffixes on the billed
// code.
func (r NecessityRule) AppliesTo(cpt string) bool {
	return strings.Contains(strings.TrimSpace(cpt), r.CPT)
}

// AllowsDiagnosis reports whether the diagnosis code belongs to one of the
// allowed families.
func (r NecessityRule) AllowsDiagnosis(icd string) bool {
	icd = strings.ToUpper(strings.TrimSpace(icd))
	for _, prefix := range r.AllowedICDPrefixes {
		if strings.Contains(icd, strings.ToUpper(prefix)) {
			return true
		}
	}
	return false
}

// DefaultCrosswalk returns the built-in necessity table: a rapid strep
// test requires a pharyngitis or tonsillitis diagnosis.
func DefaultCrosswalk() []NecessityRule {
	return []NecessityRule{
		{
			CPT:                "87880",
			Description:        "Strep Test",
			AllowedICDPrefixes: []string{"J02", "J03"},
		},
	}
}

// LoadCrosswalk reads a necessity rulepack from a YAML file. An empty path
// yields the built-in crosswalk.
func LoadCrosswalk(path string) ([]NecessityRule, error) {
	if path == "" {
		return DefaultCrosswalk(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: read crosswalk %s", path)
	}

	var pack struct {
		Crosswalk []NecessityRule `yaml:"crosswalk"`
	}
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, eris.Wrapf(err, "rules: parse crosswalk %s", path)
	}
	if len(pack.Crosswalk) == 0 {
		return nil, eris.Errorf("rules: crosswalk %s defines no rules", path)
	}

	for _, r := range pack.Crosswalk {
		if r.CPT == "" || len(r.AllowedICDPrefixes) == 0 {
			return nil, eris.Errorf("rules: crosswalk %s has an entry missing cpt or allowed_icd_prefixes", path)
		}
	}

	return pack.Crosswalk, nil
}
