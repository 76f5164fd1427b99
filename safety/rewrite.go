package safety

import (
	"context"
	"fmt"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// rewriteSystemDirective is the fixed system instruction for the rewrite
// model (§4.1): target audience ages 8-16, simple vocabulary, must not
// mention the original issue.
const rewriteSystemDirective = `You rewrite text for a classroom voice tutoring app so it is safe and ` +
	`age-appropriate for students aged 8 to 16. Use simple vocabulary. Keep the ` +
	`educational intent of the original text where possible. Never mention that ` +
	`anything was unsafe, flagged, filtered, or rewritten; never describe the ` +
	`original issue. Respond with only the rewritten text, nothing else.`

// RewriteClient produces an age-appropriate rewrite of unsafe text.
type RewriteClient interface {
	Rewrite(ctx context.Context, text string) (string, error)
}

type openAIRewrite struct {
	client *openai.Client
	model  string
}

// NewOpenAIRewrite creates a RewriteClient backed by an OpenAI chat
// completion call with the fixed rewrite directive as system instructions.
func NewOpenAIRewrite(apiKey, model string) RewriteClient {
	return &openAIRewrite{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (r *openAIRewrite) Rewrite(ctx context.Context, text string) (string, error) {
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: rewriteSystemDirective},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return "", fmt.Errorf("safety: rewrite: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("safety: rewrite: empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}

var (
	rewriteMu     sync.Mutex
	rewriteClient RewriteClient
	rewriteFn     func() RewriteClient
)

// SetRewriteFactory installs the lazy constructor used by
// DefaultRewriteClient on first use.
func SetRewriteFactory(fn func() RewriteClient) {
	rewriteMu.Lock()
	defer rewriteMu.Unlock()
	rewriteFn = fn
}

// DefaultRewriteClient returns the process-wide lazy singleton RewriteClient.
func DefaultRewriteClient() (RewriteClient, error) {
	rewriteMu.Lock()
	defer rewriteMu.Unlock()
	if rewriteClient != nil {
		return rewriteClient, nil
	}
	if rewriteFn == nil {
		return nil, fmt.Errorf("safety: no rewrite client factory configured")
	}
	rewriteClient = rewriteFn()
	return rewriteClient, nil
}

// ResetRewriteClient clears the singleton so the next call to
// DefaultRewriteClient reconstructs it. Intended for test teardown.
func ResetRewriteClient() {
	rewriteMu.Lock()
	defer rewriteMu.Unlock()
	rewriteClient = nil
}
