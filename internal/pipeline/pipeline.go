// Package pipeline orchestrates a claim's journey from raw clinical note
// to payer verdict. Each stage persists its output atomically before the
// next stage runs, so a crash or cancellation leaves the claim at its last
// completed stage rather than in a partial state.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/clearcoast/claims-cli/internal/model"
	"github.com/clearcoast/claims-cli/internal/resilience"
	"github.com/clearcoast/claims-cli/internal/rules"
	"github.com/clearcoast/claims-cli/internal/store"
	"github.com/clearcoast/claims-cli/pkg/codesearch"
	"github.com/clearcoast/claims-cli/pkg/judge"
)

// Stage names recorded in the audit log.
const (
	StageIntake       = "intake"
	StageExtraction   = "extraction"
	StageRetrieval    = "retrieval"
	StageSynthesis    = "synthesis"
	StageAdjudication = "adjudication"
)

// Config holds the pipeline's operational knobs.
type Config struct {
	// MaxTokens bounds each judgment completion.
	MaxTokens int64

	// JudgeRetry and SearchRetry govern the two external call sites.
	JudgeRetry  resilience.RetryConfig
	SearchRetry resilience.RetryConfig
}

// Pipeline wires the judgment backend, the retrieval service, the rule
// engine and the claim store into the adjudication flow.
type Pipeline struct {
	store  store.Store
	judge  judge.Client
	codes  codesearch.Client
	engine *rules.Engine
	cfg    Config
}

// New constructs a pipeline. All collaborators are required.
func New(st store.Store, j judge.Client, codes codesearch.Client, engine *rules.Engine, cfg Config) (*Pipeline, error) {
	if st == nil {
		return nil, eris.New("pipeline: store is required")
	}
	if j == nil {
		return nil, eris.New("pipeline: judge client is required")
	}
	if codes == nil {
		return nil, eris.New("pipeline: codesearch client is required")
	}
	if engine == nil {
		return nil, eris.New("pipeline: rule engine is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	return &Pipeline{store: st, judge: j, codes: codes, engine: engine, cfg: cfg}, nil
}

// Run takes a clinical note through intake, extraction, retrieval,
// synthesis and adjudication. The returned claim reflects the last
// persisted state. A non-nil error means persistence itself failed;
// model or retrieval failures end in the claim's terminal error status
// instead, with the cause recorded on the claim.
func (p *Pipeline) Run(ctx context.Context, note string) (*model.Claim, error) {
	claim, err := p.store.CreateClaim(ctx, note)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create claim")
	}
	log := zap.L().With(zap.String("claim_id", claim.ID))
	log.Info("claim created", zap.Int("note_length", len(note)))
	p.appendEvent(claim, StageIntake, "Claim received.")

	// Stage 1: entity extraction.
	entities, err := p.extract(ctx, claim.ClinicalNote)
	if err != nil {
		return p.fail(ctx, claim, model.ClaimStatusPending, StageExtraction, err)
	}
	claim.ExtractedDiagnosis = entities.Diagnosis
	claim.ExtractedProcedure = entities.Procedure
	p.appendEvent(claim, StageExtraction, "Extracted entities successfully.")
	if err := p.store.SaveExtraction(ctx, claim.ID, entities, claim.Messages); err != nil {
		return claim, eris.Wrap(err, "pipeline: save extraction")
	}
	claim.Status = model.ClaimStatusExtracted
	log.Info("entities extracted",
		zap.String("diagnosis", entities.Diagnosis),
		zap.String("procedure", entities.Procedure))

	// Stage 2: candidate retrieval. Never fatal; degraded lookups surface
	// through the audit log and the missing-data rule.
	ret := p.retrieve(ctx, entities)
	if ctx.Err() != nil {
		return claim, eris.Wrap(ctx.Err(), "pipeline: retrieval canceled")
	}
	claim.ICD10Candidates = ret.icd10
	claim.CPTCandidates = ret.cpt
	p.appendEvent(claim, StageRetrieval, fmt.Sprintf("Performed vector search lookup (%d ICD-10, %d CPT candidates).",
		len(ret.icd10), len(ret.cpt)))
	for _, w := range ret.warnings {
		p.appendEvent(claim, StageRetrieval, w)
	}
	if err := p.store.SaveCandidates(ctx, claim.ID, ret.icd10, ret.cpt, claim.Messages); err != nil {
		return claim, eris.Wrap(err, "pipeline: save candidates")
	}
	claim.Status = model.ClaimStatusCoded

	// Stage 3: decision synthesis.
	decision, err := p.synthesize(ctx, claim.ClinicalNote, ret)
	if err != nil {
		return p.fail(ctx, claim, model.ClaimStatusCoded, StageSynthesis, err)
	}
	claim.FinalICD10 = decision.FinalICD10
	claim.FinalCPT = decision.FinalCPT
	claim.ConfidenceScore = decision.Confidence
	claim.Explanation = decision.Explanation
	p.appendEvent(claim, StageSynthesis, fmt.Sprintf("Selected codes %s / %s with confidence %.2f.",
		decision.FinalICD10, decision.FinalCPT, decision.Confidence))
	if err := p.store.SaveDecision(ctx, claim.ID, decision, claim.Messages); err != nil {
		return claim, eris.Wrap(err, "pipeline: save decision")
	}
	claim.Status = model.ClaimStatusAdjudicated

	// Stage 4: payer rules. Pure evaluation, cannot fail.
	verdict := p.engine.Evaluate(rules.Input{
		ICD10:         decision.FinalICD10,
		CPT:           decision.FinalCPT,
		Confidence:    decision.Confidence,
		ICD10Evidence: model.CandidateCodes(ret.icd10),
		CPTEvidence:   model.CandidateCodes(ret.cpt),
	})
	p.appendEvent(claim, StageAdjudication, fmt.Sprintf("Rule %s fired: %s", verdict.RuleID, verdict.Reason))
	if err := p.store.SaveVerdict(ctx, claim.ID, verdict, claim.Messages); err != nil {
		return claim, eris.Wrap(err, "pipeline: save verdict")
	}
	claim.Status = verdict.Status
	claim.RuleID = verdict.RuleID
	if verdict.Status != model.ClaimStatusApproved {
		claim.RejectionReason = verdict.Reason
	}

	log.Info("claim adjudicated",
		zap.String("status", string(verdict.Status)),
		zap.String("rule_id", verdict.RuleID))
	return claim, nil
}

// fail moves the claim to the terminal error status, recording the cause
// in its audit log. The stage error itself is not returned; only a failure
// to persist the error state is. Cancellation is not an error state: the
// claim stays at its last persisted stage.
func (p *Pipeline) fail(ctx context.Context, claim *model.Claim, expect model.ClaimStatus, stage string, cause error) (*model.Claim, error) {
	if ctx.Err() != nil {
		return claim, eris.Wrapf(ctx.Err(), "pipeline: %s canceled", stage)
	}

	reason := cause.Error()
	p.appendEvent(claim, stage, "Error: "+reason)
	zap.L().Error("claim stage failed",
		zap.String("claim_id", claim.ID),
		zap.String("stage", stage),
		zap.Error(cause))

	if err := p.store.MarkError(ctx, claim.ID, expect, reason, claim.Messages); err != nil {
		return claim, eris.Wrapf(err, "pipeline: mark error after %s failure", stage)
	}
	claim.Status = model.ClaimStatusError
	claim.RejectionReason = reason
	return claim, nil
}

func (p *Pipeline) appendEvent(claim *model.Claim, stage, message string) {
	claim.Messages = append(claim.Messages, model.StageEvent{
		Stage:   stage,
		Message: message,
		At:      time.Now().UTC(),
	})
}

func (p *Pipeline) judgeRetry(operation string) resilience.RetryConfig {
	cfg := p.cfg.JudgeRetry
	cfg.OnRetry = resilience.RetryLogger("judge", operation)
	return cfg
}
