package modelclient

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brdocument "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightclass/voicetutor/config"
)

func awsString(s string) *string { return aws.String(s) }

type fakeConverseAPI struct {
	response *bedrockruntime.ConverseOutput
	err      error
	lastIn   *bedrockruntime.ConverseInput
}

func (f *fakeConverseAPI) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.lastIn = params
	return f.response, f.err
}

func TestNewBedrock_RequiresModel(t *testing.T) {
	_, err := newBedrock(config.ProviderConfig{})
	require.Error(t, err)
}

func TestBedrockProvider_Generate_ExtractsText(t *testing.T) {
	fake := &fakeConverseAPI{
		response: &bedrockruntime.ConverseOutput{
			Output: &brtypes.ConverseOutputMemberMessage{
				Value: brtypes.Message{
					Content: []brtypes.ContentBlock{
						&brtypes.ContentBlockMemberText{Value: "the answer is four"},
					},
				},
			},
		},
	}
	p := &bedrockProvider{client: fake, modelID: "anthropic.claude-3-sonnet"}

	got, err := p.Generate(context.Background(), []Message{
		{Role: RoleSystem, Content: "be concise"},
		{Role: RoleUser, Content: "what is 2+2?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "the answer is four", got.Text)
	assert.Empty(t, got.ToolCalls)
	assert.Len(t, fake.lastIn.System, 1)
	assert.Len(t, fake.lastIn.Messages, 1)
}

func TestBedrockProvider_Generate_ExtractsToolCall(t *testing.T) {
	fake := &fakeConverseAPI{
		response: &bedrockruntime.ConverseOutput{
			Output: &brtypes.ConverseOutputMemberMessage{
				Value: brtypes.Message{
					Content: []brtypes.ContentBlock{
						&brtypes.ContentBlockMemberToolUse{
							Value: brtypes.ToolUseBlock{
								ToolUseId: awsString("call-1"),
								Name:      awsString("route_to_math"),
								Input:     brdocument.NewLazyDocument(map[string]any{"question_summary": "seven times eight"}),
							},
						},
					},
				},
			},
		},
	}
	p := &bedrockProvider{client: fake, modelID: "anthropic.claude-3-sonnet"}

	got, err := p.Generate(context.Background(), []Message{{Role: RoleUser, Content: "what is 7x8?"}},
		WithTools([]ToolDefinition{{Name: "route_to_math", Description: "route to math"}}))
	require.NoError(t, err)
	require.Len(t, got.ToolCalls, 1)
	assert.Equal(t, "route_to_math", got.ToolCalls[0].Name)
	assert.Contains(t, got.ToolCalls[0].Arguments, "seven times eight")
	require.NotNil(t, fake.lastIn.ToolConfig)
	assert.Len(t, fake.lastIn.ToolConfig.Tools, 1)
}

func TestBedrockProvider_ModelID(t *testing.T) {
	p := &bedrockProvider{modelID: "meta.llama3-70b"}
	assert.Equal(t, "meta.llama3-70b", p.ModelID())
}

func TestBedrockProvider_RegisteredByDefault(t *testing.T) {
	assert.Contains(t, List(), "bedrock")
}
