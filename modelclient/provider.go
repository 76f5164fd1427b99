// Package modelclient provides a pluggable LLM abstraction for the
// classifier and specialist agents' inference calls and for the safety
// filter's rewrite step. Each provider in this package registers itself via
// init(), so every provider is available through the registry as soon as
// this package is imported:
//
//	model, err := modelclient.New("ollama", cfg)
package modelclient

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/brightclass/voicetutor/config"
)

// Role identifies the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a chat-style completion request.
type Message struct {
	Role    Role
	Content string
}

// ToolDefinition describes one tool the model may call, reified as a sealed
// variant with its own argument record (§9: tool calls are a typed routing
// table, not dynamically-dispatched functions). InputSchema is a JSON-schema
// object describing the argument record's shape.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolCall is the model's request to invoke one ToolDefinition, with its
// arguments still JSON-encoded exactly as the provider returned them.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON-encoded argument record
}

// GenerateResult is the outcome of one completion call: either spoken text,
// or one or more tool calls the caller must dispatch (never both in
// practice, since a tool-calling turn produces no user-facing text).
type GenerateResult struct {
	Text      string
	ToolCalls []ToolCall
}

// GenerateOptions carries the tunable knobs common across providers.
type GenerateOptions struct {
	Temperature *float64
	MaxTokens   int
	Tools       []ToolDefinition
}

// GenerateOption configures a GenerateOptions.
type GenerateOption func(*GenerateOptions)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) GenerateOption {
	return func(o *GenerateOptions) { o.Temperature = &t }
}

// WithMaxTokens bounds the length of the completion.
func WithMaxTokens(n int) GenerateOption {
	return func(o *GenerateOptions) { o.MaxTokens = n }
}

// WithTools attaches the routing tool-call surface to the request, letting
// the model return a ToolCall instead of (or in addition to producing no)
// spoken text.
func WithTools(tools []ToolDefinition) GenerateOption {
	return func(o *GenerateOptions) { o.Tools = tools }
}

// Provider is the boundary interface every LLM backend implements: a single
// blocking completion call that may return tool calls instead of text.
// Neither the classifier nor the rewrite step needs streaming, so the
// surface is deliberately narrow.
type Provider interface {
	// Generate sends the message history and returns the completion.
	Generate(ctx context.Context, msgs []Message, opts ...GenerateOption) (GenerateResult, error)

	// ModelID returns the identifier of the underlying model.
	ModelID() string
}

// Factory constructs a Provider from a config.ProviderConfig.
type Factory func(cfg config.ProviderConfig) (Provider, error)

var (
	registryMu sync.Mutex
	registry   = make(map[string]Factory)
)

// Register adds (or overwrites) a provider factory under name. Intended to
// be called from a provider package's init().
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// New constructs a Provider for the named backend using cfg.
func New(name string, cfg config.ProviderConfig) (Provider, error) {
	registryMu.Lock()
	f, ok := registry[name]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("modelclient: unknown provider %q", name)
	}
	return f(cfg)
}

// List returns the names of all registered providers in sorted order.
func List() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resolveOptions(opts []GenerateOption) GenerateOptions {
	var o GenerateOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
