package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brightclass/voicetutor/routing"
	"github.com/brightclass/voicetutor/safety"
	"github.com/brightclass/voicetutor/session"
	"github.com/brightclass/voicetutor/telemetry"
	"github.com/brightclass/voicetutor/transcript"
	"github.com/brightclass/voicetutor/transport"
	"github.com/brightclass/voicetutor/tutoragent"
)

// SessionStore is the narrow persistence surface the worker package needs
// from store.Client, narrowed so tests can inject a fake.
type SessionStore interface {
	RecordSessionStart(ctx context.Context, sessionID, studentIdentity, roomName, sessionType string, startedAt time.Time) error
	RecordSessionEnd(ctx context.Context, sessionID string, endedAt time.Time, totalTurns int, escalated bool, subjectsCovered []string) error
}

// VADLoader loads the voice-activity-detection model the pipeline worker
// uses at prewarm. The load is asynchronous and must be awaited; a
// synchronous call silently fails (§4.5 Prewarm).
type VADLoader interface {
	Load(ctx context.Context) error
}

// PipelineWorker is the "learning-orchestrator" worker: hosts the
// speech-to-text + language-model + text-to-speech chain and starts each
// session with the classifier active (§4.5).
type PipelineWorker struct {
	Transport  transport.Client
	Store      SessionStore
	Escalation routing.EscalationClient
	Transcript *transcript.Publisher
	Filter     *safety.Filter

	// ClassifierBuilder, MathBuilder, HistoryBuilder, and
	// DegradedEnglishBuilder are factories curried over the job's
	// session.State: a worker process serves many concurrent rooms, so the
	// agent returned for one job must never close over another job's
	// session. DegradedEnglishBuilder backs RouteToEnglish's fallback path
	// when the out-of-process dispatch to the realtime worker fails.
	ClassifierBuilder      func(sess *session.State, pendingQuestion string) *tutoragent.Agent
	MathBuilder            func(sess *session.State) routing.SpecialistBuilder
	HistoryBuilder         func(sess *session.State) routing.SpecialistBuilder
	DegradedEnglishBuilder func(sess *session.State) routing.SpecialistBuilder

	// IDGenerator produces new session ids; defaults to uuid.NewString.
	IDGenerator func() string
	// Now returns the current time; overridable for tests.
	Now func() time.Time
}

// New builds a PipelineWorker with the spec's default id/time sources.
func New(tp transport.Client, st SessionStore, esc routing.EscalationClient, tr *transcript.Publisher, filter *safety.Filter,
	classifierBuilder func(sess *session.State, pendingQuestion string) *tutoragent.Agent,
	mathBuilder, historyBuilder, degradedEnglishBuilder func(sess *session.State) routing.SpecialistBuilder) *PipelineWorker {
	return &PipelineWorker{
		Transport:              tp,
		Store:                  st,
		Escalation:             esc,
		Transcript:             tr,
		Filter:                 filter,
		ClassifierBuilder:      classifierBuilder,
		MathBuilder:            mathBuilder,
		HistoryBuilder:         historyBuilder,
		DegradedEnglishBuilder: degradedEnglishBuilder,
		IDGenerator:            uuid.NewString,
		Now:                    time.Now,
	}
}

// PipelineSession is the live per-job state for one pipeline worker session.
type PipelineSession struct {
	Session    *session.State
	Classifier *tutoragent.Agent
	Routing    *routing.Controller
	Recovered  bool

	// Active is whichever Guarded Agent Base instance is currently the
	// speaker: the classifier at session start, a specialist after a
	// routing tool call hands off, or the classifier again after
	// route_back_to_orchestrator.
	Active *tutoragent.Agent
}

// Join implements the pipeline worker's session construction (§4.5 steps
// 1-4): parsing dispatch metadata, reconstructing or creating Session
// State, the fire-and-forget store upsert, the session.start span, and
// building the classifier agent and Routing Controller. Subscribing to the
// runtime's conversation_item_added and user_input_transcribed signals is
// the caller's responsibility (the control service owns that plumbing);
// route each signal through HandleConversationItem /
// HandleUserInputTranscribed below.
func (w *PipelineWorker) Join(ctx context.Context, job JoinJob, closer routing.Closer) (*PipelineSession, error) {
	meta := session.ParseMetadata(job.Metadata)

	var sess *session.State
	recovered := false
	pendingQuestion := ""

	if returnID := meta.Get(session.KeyReturnFromEnglish); returnID != "" {
		sess = session.New(returnID, job.StudentIdentity, job.RoomName, w.now())
		recovered = true
		if prior := meta.Get(session.KeySubject); prior != "" {
			subj := session.Subject(prior)
			sess.CurrentSubject = subj
			sess.SpeakingAgent = subj
		}
		if q := meta.Get(session.KeyQuestion); q != "" {
			pendingQuestion = q
			sess.PendingQuestion = q
			sess.SkipNextUserTurns = 1
		}
	} else {
		sess = session.New(w.idGen(), job.StudentIdentity, job.RoomName, w.now())
	}

	if w.Store != nil {
		storeCtx := context.WithoutCancel(ctx)
		sessionID, studentIdentity, roomName, startedAt := sess.SessionID, sess.StudentIdentity, sess.RoomName, w.now()
		go func() {
			if err := w.Store.RecordSessionStart(storeCtx, sessionID, studentIdentity, roomName, "pipeline", startedAt); err != nil {
				telemetry.FromContext(storeCtx).Warn(storeCtx, "worker: record session start failed", "error", err, "session_id", sessionID)
			}
		}()
	}

	telemetry.SessionStart(ctx, sess.SessionID, sess.StudentIdentity, sess.RoomName, "pipeline", recovered).End()

	classifier := w.ClassifierBuilder(sess, pendingQuestion)
	classifier.Tools = routing.Tools()

	ctrl := routing.New(sess, w.Transport, w.Escalation, closer, w.MathBuilder(sess), w.HistoryBuilder(sess), w.DegradedEnglishBuilder(sess))
	ctrl.Classifier = classifier

	return &PipelineSession{Session: sess, Classifier: classifier, Routing: ctrl, Recovered: recovered, Active: classifier}, nil
}

// HandleUserTurn drives the active agent's language model with the
// student's latest utterance and dispatches any routing tool call it
// returns through the Routing Controller (§2, §4.4, §9). The returned text
// is what the active agent (possibly a new one, after a handoff) should
// speak next; callers are responsible for running it through
// SynthesizeSentence. An empty reply with a nil error means the tool call
// was an idempotent no-op (target subject already active).
func (w *PipelineWorker) HandleUserTurn(ctx context.Context, ps *PipelineSession, userText string) (string, error) {
	ps.Active.Tools = routing.Tools()

	text, calls, err := ps.Active.Activate(ctx, userText)
	if err != nil {
		return "", fmt.Errorf("worker: handle user turn: %w", err)
	}
	if len(calls) == 0 {
		return text, nil
	}

	// §9: "a single dispatch step per call" — only the first tool call in
	// a turn is honored, matching the sealed routing-table design.
	newAgent, spoken, err := ps.Routing.Dispatch(ctx, calls[0], nil)
	if err != nil {
		return "", fmt.Errorf("worker: handle user turn: dispatch: %w", err)
	}
	if newAgent != nil {
		newAgent.Tools = routing.Tools()
		ps.Active = newAgent
	}
	return spoken, nil
}

// HandleConversationItem routes a committed conversation item through the
// transcript publisher (§4.5 step 4).
func (w *PipelineWorker) HandleConversationItem(ctx context.Context, ps *PipelineSession, item transcript.Item) error {
	return w.Transcript.HandlePipelineItem(ctx, ps.Session, item)
}

// HandleUserInputTranscribed records the user-utterance timestamp used for
// the next assistant item's e2e_response_ms.
func (w *PipelineWorker) HandleUserInputTranscribed(ps *PipelineSession, at time.Time) {
	w.Transcript.HandleUserInputTranscribed(ps.Session, at)
}

// Close implements step 6: emit the session.end span with aggregated stats
// and update the learning_sessions row.
func (w *PipelineWorker) Close(ctx context.Context, ps *PipelineSession) {
	telemetry.SessionEnd(ctx, ps.Session.SessionID, ps.Session.StudentIdentity, "pipeline", ps.Session.TurnNumber, ps.Session.Escalated, ps.Session.SubjectsCovered()).End()

	if w.Store != nil {
		storeCtx := context.WithoutCancel(ctx)
		sessionID, turns, escalated, subjects, endedAt := ps.Session.SessionID, ps.Session.TurnNumber, ps.Session.Escalated, ps.Session.SubjectsCovered(), w.now()
		go func() {
			if err := w.Store.RecordSessionEnd(storeCtx, sessionID, endedAt, turns, escalated, subjects); err != nil {
				telemetry.FromContext(storeCtx).Warn(storeCtx, "worker: record session end failed", "error", err, "session_id", sessionID)
			}
		}()
	}
}

// Prewarm awaits the VAD model load before the worker accepts jobs (§4.5:
// "the load is asynchronous and must be awaited at load time; a
// synchronous call silently fails").
func (w *PipelineWorker) Prewarm(ctx context.Context, loader VADLoader) error {
	if err := loader.Load(ctx); err != nil {
		return fmt.Errorf("worker: prewarm: load VAD model: %w", err)
	}
	return nil
}

func (w *PipelineWorker) idGen() string {
	if w.IDGenerator != nil {
		return w.IDGenerator()
	}
	return uuid.NewString()
}

func (w *PipelineWorker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}
