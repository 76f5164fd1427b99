package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/brightclass/voicetutor/routing"
	"github.com/brightclass/voicetutor/safety"
	"github.com/brightclass/voicetutor/session"
	"github.com/brightclass/voicetutor/telemetry"
	"github.com/brightclass/voicetutor/transcript"
	"github.com/brightclass/voicetutor/transport"
	"github.com/brightclass/voicetutor/tutoragent"
)

const (
	defaultReplyDelay    = 3 * time.Second
	defaultFarewellDelay = 3500 * time.Millisecond
)

// RealtimeWorker is the "learning-english" worker: hosts an audio-native
// inference model, has no prewarm, and starts each session with the
// English specialist active (§4.5).
type RealtimeWorker struct {
	Transport  transport.Client
	Store      SessionStore
	Transcript *transcript.Publisher
	Filter     *safety.Filter

	// AgentBuilder constructs the realtime English specialist, seeded with
	// the pending question if any, curried over the job's session.State so
	// concurrent realtime jobs never share an Agent's session binding.
	// Instructions live on the Agent object, never the realtime model
	// object (§4.5: "the model object rejects any instruction argument").
	AgentBuilder func(sess *session.State, pendingQuestion string) *tutoragent.Agent
	// PipelineName is the dispatch target for the handoff back to the
	// pipeline worker.
	PipelineName string

	// ReplyDelay is how long to wait before driving a reply to a supplied
	// question, letting the WebRTC audio path establish (§4.5: 3.0s).
	ReplyDelay time.Duration
	// FarewellDelay is how long to wait before closing this worker's
	// session after handing off to the pipeline worker, so the farewell
	// utterance completes. spec.md names no explicit duration for this
	// timer; it is set to match the pipeline worker's drain delay.
	FarewellDelay time.Duration

	Now func() time.Time
}

// NewRealtime builds a RealtimeWorker with the spec's default timer values.
func NewRealtime(tp transport.Client, st SessionStore, tr *transcript.Publisher, filter *safety.Filter, agentBuilder func(sess *session.State, pendingQuestion string) *tutoragent.Agent, pipelineName string) *RealtimeWorker {
	return &RealtimeWorker{
		Transport:     tp,
		Store:         st,
		Transcript:    tr,
		Filter:        filter,
		AgentBuilder:  agentBuilder,
		PipelineName:  pipelineName,
		ReplyDelay:    defaultReplyDelay,
		FarewellDelay: defaultFarewellDelay,
		Now:           time.Now,
	}
}

// RealtimeSession is the live per-job state for one realtime worker
// session.
type RealtimeSession struct {
	Session *session.State
	Agent   *tutoragent.Agent
}

// Join implements the realtime worker's session construction (§4.5 steps
// 1-3): recovering session id (required) and question (optional) and prior
// subject from dispatch metadata, creating Session State pinned to
// english, the fire-and-forget store upsert, and the session.start span.
func (w *RealtimeWorker) Join(ctx context.Context, job JoinJob) (*RealtimeSession, error) {
	meta := session.ParseMetadata(job.Metadata)
	sessionID := meta.Get(session.KeySession)
	if sessionID == "" {
		return nil, fmt.Errorf("worker: realtime join: dispatch metadata missing required %q key", session.KeySession)
	}
	question := meta.Get(session.KeyQuestion)
	priorSubject := session.Subject(meta.Get(session.KeySubject))

	sess := session.New(sessionID, job.StudentIdentity, job.RoomName, w.now())
	sess.CurrentSubject = session.English
	sess.SpeakingAgent = session.English
	if priorSubject != session.Unset {
		sess.PreviousSubjects = append(sess.PreviousSubjects, priorSubject)
	}
	sess.PendingQuestion = question

	if w.Store != nil {
		storeCtx := context.WithoutCancel(ctx)
		studentIdentity, roomName, startedAt := sess.StudentIdentity, sess.RoomName, w.now()
		go func() {
			if err := w.Store.RecordSessionStart(storeCtx, sessionID, studentIdentity, roomName, "realtime_english", startedAt); err != nil {
				telemetry.FromContext(storeCtx).Warn(storeCtx, "worker: record session start failed", "error", err, "session_id", sessionID)
			}
		}()
	}

	telemetry.SessionStart(ctx, sess.SessionID, sess.StudentIdentity, sess.RoomName, "realtime_english", false).End()

	agent := w.AgentBuilder(sess, question)

	return &RealtimeSession{Session: sess, Agent: agent}, nil
}

// HandleConversationItem routes a committed item through the transcript
// publisher's post-hoc-safety-checked realtime path (§4.5 realtime step
// 4). The caller's signal handler must be synchronous and must schedule
// this call on a goroutine, never call it inline.
func (w *RealtimeWorker) HandleConversationItem(ctx context.Context, rs *RealtimeSession, item transcript.Item) {
	w.Transcript.HandleRealtimeItem(ctx, rs.Session, item, w.Filter)
}

// ScheduleActivation drives the agent's opening line. If a question was
// recovered from dispatch metadata, the reply is conditioned on it and
// delayed by ReplyDelay so the WebRTC audio path is established first
// (§4.5 step 5); otherwise the agent speaks its default opening
// immediately. speak delivers the produced text to the realtime model's
// output (left to the caller, an external collaborator).
func (w *RealtimeWorker) ScheduleActivation(ctx context.Context, rs *RealtimeSession, speak func(ctx context.Context, text string) error) {
	delay := time.Duration(0)
	if rs.Session.PendingQuestion != "" {
		delay = w.ReplyDelay
	}
	pendingQuestion := rs.Session.PendingQuestion
	sessionID := rs.Session.SessionID
	actCtx := context.WithoutCancel(ctx)

	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		reply, _, err := rs.Agent.Activate(actCtx, pendingQuestion)
		if err != nil {
			telemetry.FromContext(actCtx).Warn(actCtx, "worker: realtime activation failed", "error", err, "session_id", sessionID)
			return
		}
		if err := speak(actCtx, reply); err != nil {
			telemetry.FromContext(actCtx).Warn(actCtx, "worker: realtime activation speak failed", "error", err, "session_id", sessionID)
		}
	}()
}

// HandoffToPipeline implements "Handoff back to pipeline" (§4.5): when the
// English specialist's route_back_to_orchestrator fires, dispatch back to
// the pipeline worker against the same room carrying
// return_from_english metadata, then schedule this worker's own graceful
// close so its farewell utterance completes.
func (w *RealtimeWorker) HandoffToPipeline(ctx context.Context, rs *RealtimeSession, reason string, closer routing.Closer) error {
	priorSubject := session.Classifier
	if n := len(rs.Session.PreviousSubjects); n > 0 {
		priorSubject = rs.Session.PreviousSubjects[n-1]
	}

	meta := session.Metadata{
		session.KeyReturnFromEnglish: rs.Session.SessionID,
		session.KeyQuestion:          reason,
		session.KeySubject:           string(priorSubject),
	}
	encoded, err := session.FormatMetadata(meta)
	if err != nil {
		return fmt.Errorf("worker: handoff to pipeline: format metadata: %w", err)
	}

	if err := w.Transport.Dispatch(ctx, transport.DispatchRequest{
		RoomName:  rs.Session.RoomName,
		AgentName: w.PipelineName,
		Metadata:  encoded,
	}); err != nil {
		return fmt.Errorf("worker: handoff to pipeline: dispatch: %w", err)
	}

	if closer != nil {
		sessionID := rs.Session.SessionID
		delay := w.FarewellDelay
		go func() {
			time.Sleep(delay)
			closeCtx := context.WithoutCancel(ctx)
			if err := closer.Close(closeCtx); err != nil {
				telemetry.FromContext(closeCtx).Warn(closeCtx, "worker: realtime graceful close failed", "error", err, "session_id", sessionID)
			}
		}()
	}

	return nil
}

// Close emits the session.end span and updates learning_sessions, the
// realtime worker's equivalent of the pipeline worker's step 6.
func (w *RealtimeWorker) Close(ctx context.Context, rs *RealtimeSession) {
	telemetry.SessionEnd(ctx, rs.Session.SessionID, rs.Session.StudentIdentity, "realtime_english", rs.Session.TurnNumber, rs.Session.Escalated, rs.Session.SubjectsCovered()).End()

	if w.Store != nil {
		storeCtx := context.WithoutCancel(ctx)
		sessionID, turns, escalated, subjects, endedAt := rs.Session.SessionID, rs.Session.TurnNumber, rs.Session.Escalated, rs.Session.SubjectsCovered(), w.now()
		go func() {
			if err := w.Store.RecordSessionEnd(storeCtx, sessionID, endedAt, turns, escalated, subjects); err != nil {
				telemetry.FromContext(storeCtx).Warn(storeCtx, "worker: record session end failed", "error", err, "session_id", sessionID)
			}
		}()
	}
}

func (w *RealtimeWorker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}
