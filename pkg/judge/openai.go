package judge

import (
	"context"
	"net/http"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// openaiClient implements Client against any OpenAI-compatible chat
// completion endpoint. With BaseURL pointed at a local Ollama
// (http://localhost:11434/v1) it runs fully offline.
type openaiClient struct {
	client *openai.Client
	model  string
}

func newOpenAIClient(cfg Config) *openaiClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &openaiClient{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}
}

func (c *openaiClient) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   int(req.MaxTokens),
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return "", eris.Wrap(err, "judge: openai chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", eris.New("judge: openai returned no choices")
	}

	zap.L().Debug("judgment complete",
		zap.String("provider", "openai"),
		zap.String("model", c.model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)

	return resp.Choices[0].Message.Content, nil
}
