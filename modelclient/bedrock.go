package modelclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brdocument "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/brightclass/voicetutor/config"
)

func init() {
	Register("bedrock", func(cfg config.ProviderConfig) (Provider, error) {
		return newBedrock(cfg)
	})
}

// converseAPI is the subset of bedrockruntime.Client used here, narrowed so
// tests can inject a fake.
type converseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

type bedrockProvider struct {
	client  converseAPI
	modelID string
}

func newBedrock(cfg config.ProviderConfig) (Provider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("modelclient: bedrock: model is required")
	}

	region, _ := config.GetOption[string](cfg, "region")
	if region == "" {
		region = "us-east-1"
	}

	awsOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.APIKey != "" {
		secretKey, _ := config.GetOption[string](cfg, "secret_key")
		awsOpts = append(awsOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.APIKey, secretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsOpts...)
	if err != nil {
		return nil, fmt.Errorf("modelclient: bedrock: load aws config: %w", err)
	}

	return &bedrockProvider{
		client:  bedrockruntime.NewFromConfig(awsCfg),
		modelID: cfg.Model,
	}, nil
}

func (p *bedrockProvider) ModelID() string { return p.modelID }

func (p *bedrockProvider) Generate(ctx context.Context, msgs []Message, opts ...GenerateOption) (GenerateResult, error) {
	o := resolveOptions(opts)

	var system []brtypes.SystemContentBlock
	var turns []brtypes.Message
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Content})
		case RoleUser:
			turns = append(turns, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
			})
		case RoleAssistant:
			turns = append(turns, brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
			})
		}
	}

	inferenceConfig := &brtypes.InferenceConfiguration{}
	if o.Temperature != nil {
		t := float32(*o.Temperature)
		inferenceConfig.Temperature = &t
	}
	if o.MaxTokens > 0 {
		mt := int32(o.MaxTokens)
		inferenceConfig.MaxTokens = &mt
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(p.modelID),
		Messages:        turns,
		System:          system,
		InferenceConfig: inferenceConfig,
	}
	if len(o.Tools) > 0 {
		input.ToolConfig = convertBedrockToolConfig(o.Tools)
	}

	out, err := p.client.Converse(ctx, input)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("modelclient: bedrock: generate: %w", err)
	}

	output, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return GenerateResult{}, fmt.Errorf("modelclient: bedrock: unexpected output shape")
	}

	var text string
	var calls []ToolCall
	for _, block := range output.Value.Content {
		switch b := block.(type) {
		case *brtypes.ContentBlockMemberText:
			text += b.Value
		case *brtypes.ContentBlockMemberToolUse:
			calls = append(calls, ToolCall{
				ID:        aws.ToString(b.Value.ToolUseId),
				Name:      aws.ToString(b.Value.Name),
				Arguments: documentToJSON(b.Value.Input),
			})
		}
	}
	if len(calls) > 0 {
		return GenerateResult{ToolCalls: calls}, nil
	}
	return GenerateResult{Text: text}, nil
}

func convertBedrockToolConfig(tools []ToolDefinition) *brtypes.ToolConfiguration {
	brTools := make([]brtypes.Tool, len(tools))
	for i, t := range tools {
		spec := brtypes.ToolSpecification{
			Name:        aws.String(t.Name),
			Description: aws.String(t.Description),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: brdocument.NewLazyDocument(t.InputSchema)},
		}
		brTools[i] = &brtypes.ToolMemberToolSpec{Value: spec}
	}
	return &brtypes.ToolConfiguration{
		Tools:      brTools,
		ToolChoice: &brtypes.ToolChoiceMemberAuto{Value: brtypes.AutoToolChoice{}},
	}
}

func documentToJSON(doc brdocument.Interface) string {
	if doc == nil {
		return "{}"
	}
	raw, err := doc.MarshalSmithyDocument()
	if err != nil {
		return "{}"
	}
	return string(raw)
}
