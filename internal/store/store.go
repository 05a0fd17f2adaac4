// Package store persists claims. Every stage write is an atomic
// compare-and-set on the claim's current status, which is what serializes
// a finishing automated pipeline against a concurrent human override.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/clearcoast/claims-cli/internal/model"
)

// ErrNotFound is returned when the claim does not exist.
var ErrNotFound = eris.New("store: claim not found")

// ErrStatusConflict is returned when a compare-and-set write finds the
// claim in a status other than the one the writer expected.
var ErrStatusConflict = eris.New("store: claim status conflict")

// ClaimFilter specifies criteria for listing claims.
type ClaimFilter struct {
	Status model.ClaimStatus `json:"status,omitempty"`
	Limit  int               `json:"limit,omitempty"`
	Offset int               `json:"offset,omitempty"`
}

// Store defines the persistence interface for the adjudication pipeline.
//
// The Save* methods each persist one stage's output together with the
// claim's status transition and its updated message log, all-or-nothing.
// They require the claim to currently hold the status the stage order
// dictates and return ErrStatusConflict otherwise.
type Store interface {
	CreateClaim(ctx context.Context, clinicalNote string) (*model.Claim, error)
	GetClaim(ctx context.Context, id string) (*model.Claim, error)
	ListClaims(ctx context.Context, filter ClaimFilter) ([]model.Claim, error)

	// SaveExtraction moves pending → extracted.
	SaveExtraction(ctx context.Context, id string, entities model.Entities, messages []model.StageEvent) error

	// SaveCandidates moves extracted → coded.
	SaveCandidates(ctx context.Context, id string, icd10, cpt []model.CodeCandidate, messages []model.StageEvent) error

	// SaveDecision moves coded → adjudicated.
	SaveDecision(ctx context.Context, id string, decision model.Decision, messages []model.StageEvent) error

	// SaveVerdict moves adjudicated → the verdict's terminal or holding
	// status (approved, rejected or suspicious).
	SaveVerdict(ctx context.Context, id string, verdict model.Verdict, messages []model.StageEvent) error

	// MarkError moves a claim in the expected transient status to the
	// terminal error status.
	MarkError(ctx context.Context, id string, expect model.ClaimStatus, reason string, messages []model.StageEvent) error

	// OverrideVerdict applies a human review decision. The claim must be
	// suspicious at write time.
	OverrideVerdict(ctx context.Context, id string, status model.ClaimStatus, reason string, messages []model.StageEvent) error

	// SettlePayment records the external payment collaborator's result on
	// an approved claim.
	SettlePayment(ctx context.Context, id string, amount float64, settlementID string, messages []model.StageEvent) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
