// Package routing implements the Routing Controller (§4.4): the five
// cross-agent handoff operations exposed as tool calls to the active
// agent's language model, each idempotent per call and each emitting a
// routing.decision span.
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/brightclass/voicetutor/modelclient"
	"github.com/brightclass/voicetutor/session"
	"github.com/brightclass/voicetutor/telemetry"
	"github.com/brightclass/voicetutor/transport"
	"github.com/brightclass/voicetutor/tutoragent"
)

// Tool names for the five routing operations, exposed as tool calls to the
// active agent's language model (§4.4, §9).
const (
	ToolRouteToMath             = "route_to_math"
	ToolRouteToHistory          = "route_to_history"
	ToolRouteToEnglish          = "route_to_english"
	ToolRouteBackToOrchestrator = "route_back_to_orchestrator"
	ToolEscalateToTeacher       = "escalate_to_teacher"
)

var questionSummarySchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"question_summary": map[string]any{
			"type":        "string",
			"description": "A short summary of the student's question, carried to the target specialist as pending_question.",
		},
	},
	"required": []string{"question_summary"},
}

var reasonSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"reason": map[string]any{
			"type":        "string",
			"description": "Why this routing decision is being made.",
		},
	},
	"required": []string{"reason"},
}

// Tools returns the sealed set of routing tool definitions (§9: "reify
// tools as a sealed set of variants each carrying their argument record").
// Callers attach this to every Guarded Agent Base instance that should be
// able to drive routing from its language model.
func Tools() []modelclient.ToolDefinition {
	return []modelclient.ToolDefinition{
		{Name: ToolRouteToMath, Description: "Hand the student off to the Mathematics specialist tutor.", InputSchema: questionSummarySchema},
		{Name: ToolRouteToHistory, Description: "Hand the student off to the History specialist tutor.", InputSchema: questionSummarySchema},
		{Name: ToolRouteToEnglish, Description: "Hand the student off to the English conversation partner.", InputSchema: questionSummarySchema},
		{Name: ToolRouteBackToOrchestrator, Description: "Return control to the classifier; the current specialist's topic is exhausted or the student has gone off-topic.", InputSchema: reasonSchema},
		{Name: ToolEscalateToTeacher, Description: "Escalate the session to a human teacher.", InputSchema: reasonSchema},
	}
}

// EnglishAgentName is the realtime worker's registered dispatch name
// (§4.4 route_to_english).
const EnglishAgentName = "learning-english"

// SpecialistBuilder constructs a new Guarded Agent Base instance for a
// target subject, seeded with the outgoing agent's chat context and with
// pending_question set (§4.4 step d).
type SpecialistBuilder func(pendingQuestion string, seedHistory []modelclient.Message) *tutoragent.Agent

// EscalationClient issues an out-of-band request to the escalation store,
// generating a teacher-side join token. Implemented by the hitl package.
type EscalationClient interface {
	RequestEscalation(ctx context.Context, sessionID, roomName, reason string) (joinToken string, err error)
}

// Closer gracefully closes the pipeline session (§4.4: "aclose", never via
// interrupt, because interrupt silences in-flight synthesis mid-word).
type Closer interface {
	Close(ctx context.Context) error
}

// Controller is the Routing Controller for one session.
type Controller struct {
	Session    *session.State
	Transport  transport.Client
	Escalation EscalationClient
	Close      Closer

	MathBuilder    SpecialistBuilder
	HistoryBuilder SpecialistBuilder

	// DegradedEnglishBuilder constructs the text-only English tutor used
	// when RouteToEnglish's out-of-process dispatch fails (§4.4 Failure
	// semantics): a synthesized, pipeline-path English tutor rather than
	// the real realtime worker.
	DegradedEnglishBuilder SpecialistBuilder

	// Classifier is the pipeline session's permanent classifier agent,
	// needed so Dispatch can satisfy RouteBackToOrchestrator's classifier
	// argument without the caller threading it through on every call. Set
	// by the caller once the classifier agent is constructed.
	Classifier *tutoragent.Agent

	// DrainDelay is how long the drain task sleeps before gracefully
	// closing the pipeline session after a successful English dispatch
	// (§4.4: 3.5s, tuned so the transition sentence finishes first).
	DrainDelay time.Duration
	// WatchdogTimeout guarantees the pipeline session closes even if the
	// drain task is lost (§4.4: 30s fallback).
	WatchdogTimeout time.Duration
}

// New builds a Controller with the spec's default timer values.
func New(sess *session.State, tp transport.Client, escalation EscalationClient, closer Closer, mathBuilder, historyBuilder, degradedEnglishBuilder SpecialistBuilder) *Controller {
	return &Controller{
		Session:                sess,
		Transport:              tp,
		Escalation:             escalation,
		Close:                  closer,
		MathBuilder:            mathBuilder,
		HistoryBuilder:         historyBuilder,
		DegradedEnglishBuilder: degradedEnglishBuilder,
		DrainDelay:             3500 * time.Millisecond,
		WatchdogTimeout:        30 * time.Second,
	}
}

// Dispatch maps one model-returned tool call to the matching Controller
// method (§9: "a single dispatch step per call"). A nil returned agent
// means the caller's active agent instance is unchanged (idempotent
// no-op, or a non-routing acknowledgement such as escalation).
func (c *Controller) Dispatch(ctx context.Context, call modelclient.ToolCall, seedHistory []modelclient.Message) (*tutoragent.Agent, string, error) {
	args := decodeToolArgs(call.Arguments)

	switch call.Name {
	case ToolRouteToMath:
		return c.RouteToMath(ctx, args["question_summary"], seedHistory)
	case ToolRouteToHistory:
		return c.RouteToHistory(ctx, args["question_summary"], seedHistory)
	case ToolRouteToEnglish:
		return c.RouteToEnglish(ctx, args["question_summary"], seedHistory)
	case ToolRouteBackToOrchestrator:
		return c.RouteBackToOrchestrator(ctx, args["reason"], c.Classifier)
	case ToolEscalateToTeacher:
		return nil, c.EscalateToTeacher(ctx, args["reason"]), nil
	default:
		return nil, "", fmt.Errorf("routing: dispatch: unknown tool call %q", call.Name)
	}
}

// decodeToolArgs decodes a tool call's JSON argument record into a flat
// string map. Every routing tool's argument record is a single string
// field, so this stays a simple best-effort decode rather than a per-tool
// struct.
func decodeToolArgs(raw string) map[string]string {
	var decoded map[string]string
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return map[string]string{}
	}
	return decoded
}

func (c *Controller) emitDecision(ctx context.Context, from, to session.Subject, questionSummary string, start time.Time) {
	telemetry.RoutingDecision(ctx, telemetry.RoutingDecisionAttrs{
		FromAgent:       string(from),
		ToAgent:         string(to),
		QuestionSummary: questionSummary,
		PreviousSubject: string(from),
		DecisionMs:      float64(time.Since(start).Milliseconds()),
	}).End()
}

// routeToSpecialist implements the shared shape of route_to_math and
// route_to_history (§4.4). It returns a nil agent when the target subject
// is already active (idempotent no-op per the tie-break rule): the caller
// must keep its existing active agent instance unchanged in that case.
func (c *Controller) routeToSpecialist(ctx context.Context, target session.Subject, questionSummary string, build SpecialistBuilder, seedHistory []modelclient.Message, transitionSentence string) (*tutoragent.Agent, string, error) {
	start := time.Now()
	from := c.Session.CurrentSubject

	if from == target {
		c.emitDecision(ctx, from, target, questionSummary, start)
		return nil, "", nil
	}

	c.Session.RouteTo(target)
	c.Session.SpeakingAgent = target
	c.Session.SkipNextUserTurns = 1

	newAgent := build(questionSummary, seedHistory)
	c.emitDecision(ctx, from, target, questionSummary, start)
	return newAgent, transitionSentence, nil
}

// RouteToMath implements route_to_math.
func (c *Controller) RouteToMath(ctx context.Context, questionSummary string, seedHistory []modelclient.Message) (*tutoragent.Agent, string, error) {
	return c.routeToSpecialist(ctx, session.Math, questionSummary, c.MathBuilder, seedHistory, "Let me connect you with our Mathematics tutor!")
}

// RouteToHistory implements route_to_history.
func (c *Controller) RouteToHistory(ctx context.Context, questionSummary string, seedHistory []modelclient.Message) (*tutoragent.Agent, string, error) {
	return c.routeToSpecialist(ctx, session.History, questionSummary, c.HistoryBuilder, seedHistory, "Let me connect you with our History tutor!")
}

// RouteBackToOrchestrator implements route_back_to_orchestrator, the
// symmetric operation invoked by a specialist when the next user turn is
// off-topic. There is no classifier SpecialistBuilder here because the
// classifier is the pipeline worker's permanent session agent; callers
// pass the already-constructed classifier instance.
func (c *Controller) RouteBackToOrchestrator(ctx context.Context, reason string, classifier *tutoragent.Agent) (*tutoragent.Agent, string, error) {
	start := time.Now()
	from := c.Session.CurrentSubject

	if from == session.Classifier {
		c.emitDecision(ctx, from, session.Classifier, reason, start)
		return nil, "", nil
	}

	c.Session.RouteTo(session.Classifier)
	c.Session.SpeakingAgent = session.Classifier
	c.Session.SkipNextUserTurns = 1

	c.emitDecision(ctx, from, session.Classifier, reason, start)
	return classifier, "Let's go back to your tutor.", nil
}

// RouteToEnglish implements route_to_english. On a successful dispatch it
// does not return a new agent: it hands the realtime worker the room,
// schedules a drain task, and returns a transition sentence for the
// outgoing agent to speak (§4.4). If the out-of-process dispatch fails, it
// falls back to a degraded in-session English-topic handling by a
// text-only agent, logs a warning, and still emits the routing span
// (§4.4 Failure semantics) rather than propagating the dispatch error.
// When English is already the current subject it only emits the routing
// span and returns a nil agent, like the other routing operations.
func (c *Controller) RouteToEnglish(ctx context.Context, questionSummary string, seedHistory []modelclient.Message) (*tutoragent.Agent, string, error) {
	start := time.Now()
	from := c.Session.CurrentSubject

	if from == session.English {
		c.emitDecision(ctx, from, session.English, questionSummary, start)
		return nil, "", nil
	}

	meta := session.Metadata{
		session.KeySession:  c.Session.SessionID,
		session.KeyQuestion: questionSummary,
		session.KeySubject:  string(from),
	}
	encoded, err := session.FormatMetadata(meta)
	if err != nil {
		return nil, "", fmt.Errorf("routing: route_to_english: format metadata: %w", err)
	}

	dispatchErr := c.Transport.Dispatch(ctx, transport.DispatchRequest{
		RoomName:  c.Session.RoomName,
		AgentName: EnglishAgentName,
		Metadata:  encoded,
	})

	c.Session.RouteTo(session.English)
	c.Session.SpeakingAgent = session.English
	c.Session.SkipNextUserTurns = 1

	if dispatchErr != nil {
		telemetry.FromContext(ctx).Warn(ctx, "routing: route_to_english: out-of-process dispatch failed, falling back to degraded in-session English agent",
			"error", dispatchErr, "session_id", c.Session.SessionID)
		c.emitDecision(ctx, from, session.English, questionSummary, start)

		degraded := c.DegradedEnglishBuilder(questionSummary, seedHistory)
		return degraded, "Let's talk about that in English right now!", nil
	}

	c.emitDecision(ctx, from, session.English, questionSummary, start)
	c.startDrain(ctx)

	return nil, "Let's switch over to our English conversation partner!", nil
}

// EscalateToTeacher implements escalate_to_teacher: it latches escalation
// state, emits a teacher.escalation span, and fires an out-of-band request
// to the escalation store. The request never blocks the spoken
// acknowledgement (§4.1-style fire-and-forget, applied here to the
// escalation boundary).
func (c *Controller) EscalateToTeacher(ctx context.Context, reason string) string {
	fired := c.Session.Escalate(reason)

	telemetry.TeacherEscalation(ctx, string(c.Session.SpeakingAgent), reason, c.Session.RoomName, c.Session.TurnNumber, c.Session.SessionID, c.Session.StudentIdentity).End()

	if fired && c.Escalation != nil {
		logger := telemetry.FromContext(ctx)
		escCtx := context.WithoutCancel(ctx)
		sessionID, roomName := c.Session.SessionID, c.Session.RoomName
		go func() {
			if _, err := c.Escalation.RequestEscalation(escCtx, sessionID, roomName, reason); err != nil {
				logger.Warn(escCtx, "routing: escalation request failed", "error", err, "session_id", sessionID)
			}
		}()
	}

	return "I've let your teacher know you'd like some help. They'll join us shortly."
}
