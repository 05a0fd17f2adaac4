// Package rules implements the payer adjudication rule engine. Evaluation
// is pure: no I/O, no clock, no external services, so identical inputs
// always produce identical verdicts.
package rules

import (
	"fmt"
	"strings"

	"github.com/clearcoast/claims-cli/internal/model"
)

// Rule IDs, in evaluation priority order.
const (
	RuleMissingData      = "R0_MISSING_DATA"
	RuleLowConfidence    = "R1_LOW_CONFIDENCE"
	RuleMedicalNecessity = "R2_MEDICAL_NECESSITY"
	RuleUngroundedCode   = "R3_UNGROUNDED_CODE"
	RulePass             = "PASS"
)

// Input is a coded claim as seen by the rule engine. Evidence lists carry
// the retrieved candidate codes and are consulted only by the grounding
// rule when it is enabled.
type Input struct {
	ICD10         string
	CPT           string
	Confidence    float64
	ICD10Evidence []string
	CPTEvidence   []string
}

// Rule is one entry in the ordered rule table. Matches must be free of
// side effects.
type Rule struct {
	ID      string
	Status  model.ClaimStatus
	Matches func(in Input) bool
	Reason  func(in Input) string
}

// Config holds the tunable parts of the rule table.
type Config struct {
	// ConfidenceThreshold is the minimum synthesizer confidence below
	// which a claim is escalated to human review.
	ConfidenceThreshold float64

	// Crosswalk lists procedure-to-diagnosis medical necessity
	// requirements.
	Crosswalk []NecessityRule

	// RequireGroundedCodes enables the rule rejecting final codes absent
	// from the retrieved candidate evidence.
	RequireGroundedCodes bool
}

// Engine evaluates a fixed, ordered rule table. First match wins.
type Engine struct {
	rules []Rule
}

// NewEngine builds the rule table from configuration. Order is fixed:
// missing data, then confidence, then necessity, then (optionally)
// grounding. A low-confidence claim that also violates necessity is
// always reported as low-confidence.
func NewEngine(cfg Config) *Engine {
	e := &Engine{}

	e.rules = append(e.rules, Rule{
		ID:     RuleMissingData,
		Status: model.ClaimStatusRejected,
		Matches: func(in Input) bool {
			return model.IsSentinelCode(in.ICD10) || model.IsSentinelCode(in.CPT)
		},
		Reason: func(Input) string {
			return "Missing diagnosis or procedure code."
		},
	})

	threshold := cfg.ConfidenceThreshold
	e.rules = append(e.rules, Rule{
		ID:     RuleLowConfidence,
		Status: model.ClaimStatusSuspicious,
		Matches: func(in Input) bool {
			return in.Confidence < threshold
		},
		Reason: func(in Input) string {
			return fmt.Sprintf("AI confidence (%.2f) is below the %.2f threshold.", in.Confidence, threshold)
		},
	})

	for _, xw := range cfg.Crosswalk {
		xw := xw
		e.rules = append(e.rules, Rule{
			ID:     RuleMedicalNecessity,
			Status: model.ClaimStatusRejected,
			Matches: func(in Input) bool {
				return xw.AppliesTo(in.CPT) && !xw.AllowsDiagnosis(in.ICD10)
			},
			Reason: func(in Input) string {
				return fmt.Sprintf("Procedure %s (%s) is not medically necessary for diagnosis %s.",
					xw.CPT, xw.Description, strings.TrimSpace(in.ICD10))
			},
		})
	}

	if cfg.RequireGroundedCodes {
		e.rules = append(e.rules, Rule{
			ID:     RuleUngroundedCode,
			Status: model.ClaimStatusRejected,
			Matches: func(in Input) bool {
				return !containsCode(in.ICD10Evidence, in.ICD10) || !containsCode(in.CPTEvidence, in.CPT)
			},
			Reason: func(in Input) string {
				return "Selected codes are not among the retrieved candidates."
			},
		})
	}

	return e
}

// Evaluate runs the rule table against a coded claim and returns the first
// matching verdict, or the PASS verdict when no rule fires.
func (e *Engine) Evaluate(in Input) model.Verdict {
	for _, r := range e.rules {
		if r.Matches(in) {
			return model.Verdict{
				Status: r.Status,
				Reason: r.Reason(in),
				RuleID: r.ID,
			}
		}
	}
	return model.Verdict{
		Status: model.ClaimStatusApproved,
		Reason: "Claim meets all medical necessity rules.",
		RuleID: RulePass,
	}
}

func containsCode(evidence []string, code string) bool {
	code = strings.TrimSpace(code)
	for _, c := range evidence {
		if strings.EqualFold(strings.TrimSpace(c), code) {
			return true
		}
	}
	return false
}
