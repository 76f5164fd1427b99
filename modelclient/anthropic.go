package modelclient

import (
	"context"
	"encoding/json"
	"fmt"

	anthropicSDK "github.com/anthropics/anthropic-sdk-go"
	anthropicOption "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/brightclass/voicetutor/config"
)

const defaultAnthropicMaxTokens = 1024

func init() {
	Register("anthropic", func(cfg config.ProviderConfig) (Provider, error) {
		return newAnthropic(cfg)
	})
}

type anthropicProvider struct {
	client anthropicSDK.Client
	model  string
}

func newAnthropic(cfg config.ProviderConfig) (Provider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("modelclient: anthropic: model is required")
	}
	var opts []anthropicOption.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, anthropicOption.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropicOption.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, anthropicOption.WithRequestTimeout(cfg.Timeout))
	}
	return &anthropicProvider{
		client: anthropicSDK.NewClient(opts...),
		model:  cfg.Model,
	}, nil
}

func (p *anthropicProvider) ModelID() string { return p.model }

func (p *anthropicProvider) Generate(ctx context.Context, msgs []Message, opts ...GenerateOption) (GenerateResult, error) {
	o := resolveOptions(opts)
	maxTokens := int64(defaultAnthropicMaxTokens)
	if o.MaxTokens > 0 {
		maxTokens = int64(o.MaxTokens)
	}

	var system []anthropicSDK.TextBlockParam
	var turns []anthropicSDK.MessageParam
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			system = append(system, anthropicSDK.TextBlockParam{Text: m.Content})
		case RoleUser:
			turns = append(turns, anthropicSDK.NewUserMessage(anthropicSDK.NewTextBlock(m.Content)))
		case RoleAssistant:
			turns = append(turns, anthropicSDK.NewAssistantMessage(anthropicSDK.NewTextBlock(m.Content)))
		}
	}

	params := anthropicSDK.MessageNewParams{
		Model:     anthropicSDK.Model(p.model),
		MaxTokens: maxTokens,
		Messages:  turns,
		System:    system,
	}
	if o.Temperature != nil {
		params.Temperature = anthropicSDK.Float(*o.Temperature)
	}
	if len(o.Tools) > 0 {
		params.Tools = convertAnthropicTools(o.Tools)
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("modelclient: anthropic: generate: %w", err)
	}

	var text string
	var calls []ToolCall
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text += block.Text
		case "tool_use":
			args, _ := json.Marshal(block.Input)
			calls = append(calls, ToolCall{ID: block.ID, Name: block.Name, Arguments: string(args)})
		}
	}
	if len(calls) > 0 {
		return GenerateResult{ToolCalls: calls}, nil
	}
	return GenerateResult{Text: text}, nil
}

func convertAnthropicTools(tools []ToolDefinition) []anthropicSDK.ToolUnionParam {
	out := make([]anthropicSDK.ToolUnionParam, len(tools))
	for i, t := range tools {
		tp := anthropicSDK.ToolParam{
			Name: t.Name,
			InputSchema: anthropicSDK.ToolInputSchemaParam{
				Properties: t.InputSchema["properties"],
			},
		}
		if t.Description != "" {
			tp.Description = anthropicSDK.String(t.Description)
		}
		if req, ok := t.InputSchema["required"].([]string); ok {
			tp.InputSchema.Required = req
		}
		out[i] = anthropicSDK.ToolUnionParam{OfTool: &tp}
	}
	return out
}
