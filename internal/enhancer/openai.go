package enhancer

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/sirupsen/logrus"
)

// OpenAIProvider completes prompts with the chat completions API of any
// OpenAI-compatible endpoint.
type OpenAIProvider struct {
	client openai.Client
	model  string
	logger *logrus.Logger
}

func NewOpenAIProvider(apiKey, baseURL, model string, logger *logrus.Logger) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Retries belong to the optimizer.
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  model,
		logger: logger,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.Prompt),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &ProviderError{Provider: p.Name(), StatusCode: apiErr.StatusCode, Err: err}
		}
		return "", &ProviderError{Provider: p.Name(), Err: err}
	}
	if len(completion.Choices) == 0 {
		return "", &ProviderError{Provider: p.Name(), Err: fmt.Errorf("completion returned no choices")}
	}

	p.logger.WithFields(logrus.Fields{
		"model":             p.model,
		"prompt_tokens":     completion.Usage.PromptTokens,
		"completion_tokens": completion.Usage.CompletionTokens,
	}).Debug("OpenAI completion received")

	return completion.Choices[0].Message.Content, nil
}
