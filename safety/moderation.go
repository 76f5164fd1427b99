package safety

import (
	"context"
	"fmt"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// CheckResult is the outcome of a moderation check (§4.1).
type CheckResult struct {
	Flagged    bool
	Categories map[Category]bool
	// PeakScore is the maximum per-category score across all thirteen
	// categories, including unflagged ones, so downstream dashboards see
	// true moderation pressure (§4.1, §9 open question resolved "yes").
	PeakScore float64
}

// FlaggedCategories returns the subset of Categories flagged, in the fixed
// vocabulary order.
func (r CheckResult) FlaggedCategories() []Category {
	out := make([]Category, 0, len(Categories))
	for _, c := range Categories {
		if r.Categories[c] {
			out = append(out, c)
		}
	}
	return out
}

// ModerationClient checks text against the moderation vocabulary.
type ModerationClient interface {
	Check(ctx context.Context, text string) (CheckResult, error)
}

// openAIModeration backs ModerationClient with OpenAI's moderation endpoint,
// whose omni-moderation-latest model covers exactly this spec's 13-category
// vocabulary.
type openAIModeration struct {
	client *openai.Client
	model  string
}

// NewOpenAIModeration creates a ModerationClient backed by the given API key
// and model (e.g. "omni-moderation-latest").
func NewOpenAIModeration(apiKey, model string) ModerationClient {
	return &openAIModeration{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (m *openAIModeration) Check(ctx context.Context, text string) (CheckResult, error) {
	resp, err := m.client.Moderations(ctx, openai.ModerationRequest{
		Input: text,
		Model: m.model,
	})
	if err != nil {
		return CheckResult{}, fmt.Errorf("safety: moderation check: %w", err)
	}
	if len(resp.Results) == 0 {
		return CheckResult{}, fmt.Errorf("safety: moderation check: empty result set")
	}

	result := resp.Results[0]
	scores := map[Category]float64{
		CategoryHarassment:            result.CategoryScores.Harassment,
		CategoryHarassmentThreatening: result.CategoryScores.HarassmentThreatening,
		CategoryHate:                  result.CategoryScores.Hate,
		CategoryHateThreatening:       result.CategoryScores.HateThreatening,
		CategorySexual:                result.CategoryScores.Sexual,
		CategorySexualMinors:          result.CategoryScores.SexualMinors,
		CategoryViolence:              result.CategoryScores.Violence,
		CategoryViolenceGraphic:       result.CategoryScores.ViolenceGraphic,
		CategorySelfHarm:              result.CategoryScores.SelfHarm,
		CategorySelfHarmIntent:        result.CategoryScores.SelfHarmIntent,
		CategorySelfHarmInstructions:  result.CategoryScores.SelfHarmInstructions,
		CategoryIllicit:               result.CategoryScores.Illicit,
		CategoryIllicitViolent:        result.CategoryScores.IllicitViolent,
	}
	flagged := map[Category]bool{
		CategoryHarassment:            result.Categories.Harassment,
		CategoryHarassmentThreatening: result.Categories.HarassmentThreatening,
		CategoryHate:                  result.Categories.Hate,
		CategoryHateThreatening:       result.Categories.HateThreatening,
		CategorySexual:                result.Categories.Sexual,
		CategorySexualMinors:          result.Categories.SexualMinors,
		CategoryViolence:              result.Categories.Violence,
		CategoryViolenceGraphic:       result.Categories.ViolenceGraphic,
		CategorySelfHarm:              result.Categories.SelfHarm,
		CategorySelfHarmIntent:        result.Categories.SelfHarmIntent,
		CategorySelfHarmInstructions:  result.Categories.SelfHarmInstructions,
		CategoryIllicit:               result.Categories.Illicit,
		CategoryIllicitViolent:        result.Categories.IllicitViolent,
	}

	var peak float64
	for _, c := range Categories {
		if s := scores[c]; s > peak {
			peak = s
		}
	}

	return CheckResult{
		Flagged:    result.Flagged,
		Categories: flagged,
		PeakScore:  peak,
	}, nil
}

var (
	moderationMu     sync.Mutex
	moderationClient ModerationClient
	moderationFn     func() ModerationClient
)

// SetModerationFactory installs the lazy constructor used by
// DefaultModerationClient on first use. Call with nil to restore no
// factory (used by test teardown alongside ResetModerationClient).
func SetModerationFactory(fn func() ModerationClient) {
	moderationMu.Lock()
	defer moderationMu.Unlock()
	moderationFn = fn
}

// DefaultModerationClient returns the process-wide lazy singleton
// ModerationClient, constructing it on first use via the factory installed
// with SetModerationFactory (§4.1 design notes: lazy singletons, resettable
// for test isolation).
func DefaultModerationClient() (ModerationClient, error) {
	moderationMu.Lock()
	defer moderationMu.Unlock()
	if moderationClient != nil {
		return moderationClient, nil
	}
	if moderationFn == nil {
		return nil, fmt.Errorf("safety: no moderation client factory configured")
	}
	moderationClient = moderationFn()
	return moderationClient, nil
}

// ResetModerationClient clears the singleton so the next call to
// DefaultModerationClient reconstructs it. Intended for test teardown.
func ResetModerationClient() {
	moderationMu.Lock()
	defer moderationMu.Unlock()
	moderationClient = nil
}
