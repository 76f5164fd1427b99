package modelclient

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/brightclass/voicetutor/config"
)

func init() {
	Register("openai", func(cfg config.ProviderConfig) (Provider, error) {
		return newOpenAI(cfg)
	})
}

type openAIProvider struct {
	client *openai.Client
	model  string
}

func newOpenAI(cfg config.ProviderConfig) (Provider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("modelclient: openai: model is required")
	}
	oaCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oaCfg.BaseURL = cfg.BaseURL
	}
	return &openAIProvider{
		client: openai.NewClientWithConfig(oaCfg),
		model:  cfg.Model,
	}, nil
}

func (p *openAIProvider) ModelID() string { return p.model }

func (p *openAIProvider) Generate(ctx context.Context, msgs []Message, opts ...GenerateOption) (GenerateResult, error) {
	o := resolveOptions(opts)
	req := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: convertMessages(msgs),
	}
	if o.Temperature != nil {
		req.Temperature = float32(*o.Temperature)
	}
	if o.MaxTokens > 0 {
		req.MaxTokens = o.MaxTokens
	}
	if len(o.Tools) > 0 {
		req.Tools = convertTools(o.Tools)
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("modelclient: openai: generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return GenerateResult{}, fmt.Errorf("modelclient: openai: empty completion")
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		return GenerateResult{ToolCalls: convertToolCalls(msg.ToolCalls)}, nil
	}
	return GenerateResult{Text: msg.Content}, nil
}

func convertMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		out[i] = openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
	}
	return out
}

func convertTools(tools []ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		}
	}
	return out
}

func convertToolCalls(calls []openai.ToolCall) []ToolCall {
	out := make([]ToolCall, len(calls))
	for i, c := range calls {
		out[i] = ToolCall{
			ID:        c.ID,
			Name:      c.Function.Name,
			Arguments: c.Function.Arguments,
		}
	}
	return out
}
