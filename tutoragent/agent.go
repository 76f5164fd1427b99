// Package tutoragent provides the Guarded Agent Base (§4.3): the uniform
// abstraction shared by every text-path agent (classifier, math specialist,
// history specialist). It wraps the synthesis hook so that no unsafe text
// ever reaches text-to-speech.
package tutoragent

import (
	"context"
	"fmt"
	"time"

	"github.com/brightclass/voicetutor/modelclient"
	"github.com/brightclass/voicetutor/safety"
	"github.com/brightclass/voicetutor/session"
	"github.com/brightclass/voicetutor/telemetry"
)

// Synthesizer turns safe text into audio. Implementations wrap a real
// text-to-speech engine; tests use a fake.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voiceID string) ([]byte, error)
}

// Agent is the Guarded Agent Base: a fixed name, system instructions, an
// inference model, a voice selector, and the Safety Filter every
// synthesized sentence is routed through.
type Agent struct {
	Name               string
	SystemInstructions string
	Model              modelclient.Provider
	VoiceID            string
	Synth              Synthesizer
	Filter             *safety.Filter
	Session            *session.State

	// DefaultOpening is spoken when the agent activates with no pending
	// question.
	DefaultOpening string

	// Tools, when non-empty, is attached to every Generate call so the
	// model may return a routing tool call instead of spoken text (§9).
	Tools []modelclient.ToolDefinition

	history []modelclient.Message
}

// New constructs a Guarded Agent Base.
func New(name, systemInstructions string, model modelclient.Provider, voiceID string, synth Synthesizer, filter *safety.Filter, sess *session.State, defaultOpening string) *Agent {
	return &Agent{
		Name:               name,
		SystemInstructions: systemInstructions,
		Model:              model,
		VoiceID:            voiceID,
		Synth:              synth,
		Filter:             filter,
		Session:            sess,
		DefaultOpening:     defaultOpening,
		history:            []modelclient.Message{{Role: modelclient.RoleSystem, Content: systemInstructions}},
	}
}

// SeedHistory appends prior chat turns, used when a routing operation
// constructs a new agent instance seeded with the outgoing agent's context.
func (a *Agent) SeedHistory(msgs ...modelclient.Message) {
	a.history = append(a.history, msgs...)
}

// Activate is the activation hook invoked once the agent becomes the active
// speaker (§4.3). If pendingQuestion is non-empty it drives the model
// conditioned on that question; otherwise it produces the default opening
// reply. When the model returns one or more tool calls instead of text
// (§9), Activate returns them and leaves reply empty: the caller is
// responsible for dispatching the call through the Routing Controller. It
// emits an agent.activated span tagged with session and user identifiers.
func (a *Agent) Activate(ctx context.Context, pendingQuestion string) (reply string, calls []modelclient.ToolCall, err error) {
	span := telemetry.AgentActivated(ctx, a.Name, a.Session.SessionID, a.Session.StudentIdentity)
	defer span.End()

	if pendingQuestion == "" {
		return a.DefaultOpening, nil, nil
	}

	a.history = append(a.history, modelclient.Message{Role: modelclient.RoleUser, Content: pendingQuestion})
	result, genErr := a.Model.Generate(ctx, a.history, modelclient.WithTools(a.Tools))
	if genErr != nil {
		span.SetStatus(telemetry.StatusError, genErr.Error())
		return "", nil, fmt.Errorf("tutoragent: %s: activate: %w", a.Name, genErr)
	}
	if len(result.ToolCalls) > 0 {
		return "", result.ToolCalls, nil
	}
	a.history = append(a.history, modelclient.Message{Role: modelclient.RoleAssistant, Content: result.Text})
	return result.Text, nil, nil
}

// SynthesizeSentence flushes one sentence through the Safety Filter and the
// synthesizer, emitting a tts.sentence span with guardrail and synthesis
// latency and whether the sentence was rewritten (§4.3 step 4).
func (a *Agent) SynthesizeSentence(ctx context.Context, text string) ([]byte, error) {
	guardrailStart := time.Now()
	safeText := a.Filter.CheckAndRewrite(ctx, text, a.Session.SessionID, a.Name)
	guardrailMs := float64(time.Since(guardrailStart).Milliseconds())
	wasRewritten := safeText != text

	synthStart := time.Now()
	audio, err := a.Synth.Synthesize(ctx, safeText, a.VoiceID)
	synthesisMs := float64(time.Since(synthStart).Milliseconds())

	telemetry.TTSSentence(ctx, len(text), guardrailMs, synthesisMs, wasRewritten).End()

	if err != nil {
		return nil, fmt.Errorf("tutoragent: %s: synthesize: %w", a.Name, err)
	}
	return audio, nil
}
