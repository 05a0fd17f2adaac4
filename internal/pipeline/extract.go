package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/clearcoast/claims-cli/internal/model"
	"github.com/clearcoast/claims-cli/internal/resilience"
	"github.com/clearcoast/claims-cli/pkg/judge"
)

// ErrExtractionParse indicates the model returned something other than the
// required JSON object. The claim it occurred on is terminally errored, not
// retried; re-prompting on malformed output is a policy decision left to
// the operator resubmitting the note.
var ErrExtractionParse = eris.New("pipeline: extraction output is not valid JSON")

const extractionSystem = "You are a medical coding assistant."

const extractionPromptFmt = `Extract the main DIAGNOSIS (condition) and PROCEDURE (treatment) from the text below.
Return ONLY a JSON object with keys "diagnosis" and "procedure". Do not add any conversational text.

TEXT: %q`

// extract asks the judgment backend to pull the diagnosis and procedure
// out of a free-text clinical note. Either field may legitimately come
// back empty when the note mentions no condition or no treatment.
func (p *Pipeline) extract(ctx context.Context, note string) (model.Entities, error) {
	req := judge.Request{
		System:    extractionSystem,
		Prompt:    fmt.Sprintf(extractionPromptFmt, note),
		MaxTokens: p.cfg.MaxTokens,
	}

	raw, err := resilience.DoVal(ctx, p.judgeRetry("extract"), func(ctx context.Context) (string, error) {
		return p.judge.Complete(ctx, req)
	})
	if err != nil {
		return model.Entities{}, eris.Wrap(err, "pipeline: extraction call")
	}

	var entities model.Entities
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &entities); err != nil {
		return model.Entities{}, eris.Wrapf(ErrExtractionParse, "raw output %.200q", raw)
	}
	return entities, nil
}
