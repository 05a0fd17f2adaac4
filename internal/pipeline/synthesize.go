package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/clearcoast/claims-cli/internal/model"
	"github.com/clearcoast/claims-cli/internal/resilience"
	"github.com/clearcoast/claims-cli/pkg/judge"
)

// ErrSynthesisParse indicates the model's final decision was not the
// required JSON object.
var ErrSynthesisParse = eris.New("pipeline: synthesis output is not valid JSON")

const synthesisSystem = "You are a senior medical coder."

const synthesisPromptFmt = `1. Analyze the PATIENT NOTE: %q
2. Review the ICD-10 SEARCH RESULTS:
%s
3. Review the CPT SEARCH RESULTS:
%s

Task: Select the EXACT code from the results that best matches the note.
If no code is a good match, state "None".

Return ONLY a JSON object:
{
    "final_icd10": "Code",
    "final_cpt": "Code",
    "reasoning": "Brief explanation of why these codes were chosen based on the evidence.",
    "confidence": 0.99
}`

// synthesize asks the judgment backend to pick final codes from the
// retrieved candidates and self-assess its confidence. Confidence is
// clamped to [0, 1] since models occasionally report values outside it.
func (p *Pipeline) synthesize(ctx context.Context, note string, ret retrieval) (model.Decision, error) {
	req := judge.Request{
		System:    synthesisSystem,
		Prompt:    fmt.Sprintf(synthesisPromptFmt, note, formatCandidates(ret.icd10), formatCandidates(ret.cpt)),
		MaxTokens: p.cfg.MaxTokens,
	}

	raw, err := resilience.DoVal(ctx, p.judgeRetry("synthesize"), func(ctx context.Context) (string, error) {
		return p.judge.Complete(ctx, req)
	})
	if err != nil {
		return model.Decision{}, eris.Wrap(err, "pipeline: synthesis call")
	}

	var decision model.Decision
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &decision); err != nil {
		return model.Decision{}, eris.Wrapf(ErrSynthesisParse, "raw output %.200q", raw)
	}

	if decision.Confidence < 0 {
		decision.Confidence = 0
	} else if decision.Confidence > 1 {
		decision.Confidence = 1
	}
	return decision, nil
}

func formatCandidates(candidates []model.CodeCandidate) string {
	if len(candidates) == 0 {
		return "(no candidates found)"
	}
	var sb strings.Builder
	for _, c := range candidates {
		fmt.Fprintf(&sb, "- %s: %s (similarity %.2f)\n", c.Code, c.Description, c.Score)
	}
	return strings.TrimRight(sb.String(), "\n")
}
