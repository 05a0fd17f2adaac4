package pipeline

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/clearcoast/claims-cli/internal/model"
	"github.com/clearcoast/claims-cli/internal/resilience"
	"github.com/clearcoast/claims-cli/pkg/codesearch"
)

// retrieval holds both candidate lists plus a note about any degraded
// lookup, so the audit log records when the synthesizer ran on partial
// evidence.
type retrieval struct {
	icd10    []model.CodeCandidate
	cpt      []model.CodeCandidate
	warnings []string
}

// retrieve looks up candidate codes for the extracted entities. Empty
// entities are skipped, never sent as empty queries. A lookup that still
// fails after retries degrades to an empty candidate list; the pipeline
// continues and the missing-data rule decides the claim's fate downstream.
func (p *Pipeline) retrieve(ctx context.Context, entities model.Entities) retrieval {
	var out retrieval

	if entities.Diagnosis != "" {
		candidates, err := p.search(ctx, codesearch.VocabICD10, entities.Diagnosis)
		if err != nil {
			zap.L().Warn("icd10 lookup failed, continuing without candidates",
				zap.String("query", entities.Diagnosis), zap.Error(err))
			out.warnings = append(out.warnings, "ICD-10 lookup unavailable, proceeding without candidates.")
		}
		out.icd10 = candidates
	}

	if entities.Procedure != "" {
		candidates, err := p.search(ctx, codesearch.VocabCPT, entities.Procedure)
		if err != nil {
			zap.L().Warn("cpt lookup failed, continuing without candidates",
				zap.String("query", entities.Procedure), zap.Error(err))
			out.warnings = append(out.warnings, "CPT lookup unavailable, proceeding without candidates.")
		}
		out.cpt = candidates
	}

	return out
}

func (p *Pipeline) search(ctx context.Context, vocab codesearch.Vocabulary, query string) ([]model.CodeCandidate, error) {
	hits, err := resilience.DoVal(ctx, p.searchRetry(string(vocab)), func(ctx context.Context) ([]codesearch.Candidate, error) {
		return p.codes.Search(ctx, vocab, query)
	})
	if err != nil {
		return nil, err
	}

	candidates := make([]model.CodeCandidate, len(hits))
	for i, h := range hits {
		candidates[i] = model.CodeCandidate{
			Code:        h.Code,
			Description: h.Description,
			Score:       h.Score,
		}
	}
	return candidates, nil
}

// searchRetry classifies retrieval errors by HTTP status. Server-side and
// throttling responses are retried, client errors are not.
func (p *Pipeline) searchRetry(operation string) resilience.RetryConfig {
	cfg := p.cfg.SearchRetry
	cfg.ShouldRetry = func(err error) bool {
		var statusErr *codesearch.StatusError
		if errors.As(err, &statusErr) {
			return resilience.IsTransientHTTPStatus(statusErr.StatusCode)
		}
		return resilience.IsTransient(err)
	}
	cfg.OnRetry = resilience.RetryLogger("codesearch", operation)
	return cfg
}
