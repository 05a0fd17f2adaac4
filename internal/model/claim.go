package model

import (
	"strings"
	"time"
)

// ClaimStatus represents the current state of a claim in the adjudication
// lifecycle.
type ClaimStatus string

const (
	ClaimStatusPending      ClaimStatus = "pending"
	ClaimStatusExtracted    ClaimStatus = "extracted"
	ClaimStatusCoded        ClaimStatus = "coded"
	ClaimStatusAdjudicated  ClaimStatus = "adjudicated"
	ClaimStatusApproved     ClaimStatus = "approved"
	ClaimStatusRejected     ClaimStatus = "rejected"
	ClaimStatusSuspicious   ClaimStatus = "suspicious"
	ClaimStatusReviewNeeded ClaimStatus = "review_needed"
	ClaimStatusError        ClaimStatus = "error"
)

// AllClaimStatuses returns every valid claim status.
func AllClaimStatuses() []ClaimStatus {
	return []ClaimStatus{
		ClaimStatusPending,
		ClaimStatusExtracted,
		ClaimStatusCoded,
		ClaimStatusAdjudicated,
		ClaimStatusApproved,
		ClaimStatusRejected,
		ClaimStatusSuspicious,
		ClaimStatusReviewNeeded,
		ClaimStatusError,
	}
}

// Terminal reports whether no further automated stage may run on a claim
// in this status. Suspicious claims are terminal for the pipeline but
// remain actionable by the review gateway.
func (s ClaimStatus) Terminal() bool {
	switch s {
	case ClaimStatusApproved, ClaimStatusRejected, ClaimStatusSuspicious, ClaimStatusError:
		return true
	}
	return false
}

// CodeCandidate is a single code surfaced by semantic retrieval, not yet
// confirmed as final. Score is cosine similarity in [0,1].
type CodeCandidate struct {
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

// Entities is the structured output of the extraction stage. Either field
// may be empty when the note contains no recognizable condition or
// treatment.
type Entities struct {
	Diagnosis string `json:"diagnosis"`
	Procedure string `json:"procedure"`
}

// Decision is the structured output of the synthesis stage.
type Decision struct {
	FinalICD10  string  `json:"final_icd10"`
	FinalCPT    string  `json:"final_cpt"`
	Explanation string  `json:"reasoning"`
	Confidence  float64 `json:"confidence"`
}

// Verdict is the payer rule engine's outcome for a coded claim.
type Verdict struct {
	Status ClaimStatus `json:"status"`
	Reason string      `json:"reason"`
	RuleID string      `json:"rule_id"`
}

// StageEvent is one entry in a claim's append-only audit log.
type StageEvent struct {
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Claim is the unit of work and the audited record. ClinicalNote is
// immutable after creation; all other fields are written exactly once by
// their owning stage (or by the review gateway for the override fields).
type Claim struct {
	ID           string `json:"id"`
	ClinicalNote string `json:"clinical_note"`

	ExtractedDiagnosis string `json:"extracted_diagnosis,omitempty"`
	ExtractedProcedure string `json:"extracted_procedure,omitempty"`

	ICD10Candidates []CodeCandidate `json:"icd10_candidates,omitempty"`
	CPTCandidates   []CodeCandidate `json:"cpt_candidates,omitempty"`

	FinalICD10      string  `json:"final_icd10,omitempty"`
	FinalCPT        string  `json:"final_cpt,omitempty"`
	ConfidenceScore float64 `json:"confidence_score"`
	Explanation     string  `json:"explanation,omitempty"`

	Status          ClaimStatus `json:"status"`
	RejectionReason string      `json:"rejection_reason,omitempty"`
	RuleID          string      `json:"rule_id,omitempty"`

	PaymentAmount *float64 `json:"payment_amount,omitempty"`
	SettlementID  string   `json:"settlement_id,omitempty"`

	Messages []StageEvent `json:"messages"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReviewDecision is a human reviewer's resolution of a suspicious claim.
type ReviewDecision string

const (
	ReviewApproved ReviewDecision = "approved"
	ReviewRejected ReviewDecision = "rejected"
)

// Valid reports whether the decision is one of the two allowed outcomes.
func (d ReviewDecision) Valid() bool {
	return d == ReviewApproved || d == ReviewRejected
}

// Status maps the review decision onto the claim status it produces.
func (d ReviewDecision) Status() ClaimStatus {
	if d == ReviewRejected {
		return ClaimStatusRejected
	}
	return ClaimStatusApproved
}

// CandidateCodes returns just the code strings from a candidate list,
// preserving rank order.
func CandidateCodes(candidates []CodeCandidate) []string {
	if len(candidates) == 0 {
		return nil
	}
	codes := make([]string, len(candidates))
	for i, c := range candidates {
		codes[i] = c.Code
	}
	return codes
}

// IsSentinelCode reports whether a code value, after case-insensitive
// trimming, is empty or one of the literal placeholders language models
// emit in place of a real code.
func IsSentinelCode(code string) bool {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "", "none", "null", "undefined":
		return true
	}
	return false
}
