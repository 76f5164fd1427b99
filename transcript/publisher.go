package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/brightclass/voicetutor/safety"
	"github.com/brightclass/voicetutor/session"
	"github.com/brightclass/voicetutor/store"
	"github.com/brightclass/voicetutor/telemetry"
	"github.com/brightclass/voicetutor/transport"
)

// StoreWriter is the narrow persistence surface this package needs,
// narrowed so tests can inject a fake instead of a live store.Client.
type StoreWriter interface {
	RecordTranscriptTurn(ctx context.Context, t store.TranscriptTurn) error
}

// Publisher derives and emits conversation items for one session (§4.5
// steps 4 and the realtime worker's equivalent).
type Publisher struct {
	Transport transport.Client
	Store     StoreWriter
	// SessionType tags the conversation.item span ("pipeline" or
	// "realtime").
	SessionType string
}

// New builds a Publisher. Store may be nil to disable persistence (e.g. in
// tests that only exercise the data-channel publish).
func New(tp transport.Client, st StoreWriter, sessionType string) *Publisher {
	return &Publisher{Transport: tp, Store: st, SessionType: sessionType}
}

func subjectOrNil(subj session.Subject) *string {
	switch subj {
	case session.Math, session.History, session.English:
		s := string(subj)
		return &s
	default:
		return nil
	}
}

// HandlePipelineItem implements the pipeline worker's conversation_item_added
// handler (§4.5 step 4): phantom-user-turn suppression, speaker/subject
// derivation, data-channel publish, persistence, and the conversation.item
// span with e2e_response_ms attached on assistant items.
func (p *Publisher) HandlePipelineItem(ctx context.Context, sess *session.State, item Item) error {
	if item.Role == "user" && sess.SkipNextUserTurns > 0 {
		sess.SkipNextUserTurns--
		return nil
	}

	turn := sess.AdvanceTurn()
	speaker := "student"
	if item.Role == "assistant" {
		speaker = string(sess.SpeakingAgent)
	}

	var e2e *float64
	if item.Role == "assistant" && sess.LastUserInputAt != nil {
		ms := float64(time.Since(*sess.LastUserInputAt).Milliseconds())
		e2e = &ms
		sess.LastUserInputAt = nil
	}

	span := telemetry.ConversationItem(ctx, telemetry.ConversationItemAttrs{
		SessionID:     sess.SessionID,
		UserID:        sess.StudentIdentity,
		Subject:       string(sess.CurrentSubject),
		Role:          item.Role,
		SessionType:   p.SessionType,
		TurnNumber:    turn,
		E2EResponseMs: e2e,
	})
	defer span.End()

	if err := p.publish(ctx, sess, item, speaker, subjectOrNil(sess.CurrentSubject), turn); err != nil {
		span.RecordError(err)
		return fmt.Errorf("transcript: publish: %w", err)
	}

	if p.Store != nil {
		if err := p.Store.RecordTranscriptTurn(ctx, store.TranscriptTurn{
			SessionID:  sess.SessionID,
			TurnNumber: turn,
			Role:       item.Role,
			Speaker:    speaker,
			Subject:    string(sess.CurrentSubject),
			Text:       item.Content,
			OccurredAt: time.Now(),
		}); err != nil {
			span.RecordError(err)
			telemetry.FromContext(ctx).Warn(ctx, "transcript: persist turn failed", "error", err, "session_id", sess.SessionID)
		}
	}

	return nil
}

// HandleUserInputTranscribed records the timestamp a user utterance was
// committed, for the next assistant item's e2e_response_ms computation
// (§4.5 step 4, "Subscribe also to user_input_transcribed").
func (p *Publisher) HandleUserInputTranscribed(sess *session.State, at time.Time) {
	sess.LastUserInputAt = &at
}

// HandleRealtimeItem implements the realtime worker's asynchronous item
// worker (§4.5 realtime step 4): it must be invoked from a goroutine
// scheduled by the caller's synchronous signal handler, never directly from
// the signal callback, since the realtime runtime's handler is synchronous
// and must return immediately. subject is always english here; there is no
// phantom-turn suppression path on the realtime worker.
func (p *Publisher) HandleRealtimeItem(ctx context.Context, sess *session.State, item Item, filter *safety.Filter) {
	turn := sess.AdvanceTurn()
	speaker := "student"
	if item.Role == "assistant" {
		speaker = string(session.English)
	}

	span := telemetry.ConversationItem(ctx, telemetry.ConversationItemAttrs{
		SessionID:   sess.SessionID,
		UserID:      sess.StudentIdentity,
		Subject:     string(session.English),
		Role:        item.Role,
		SessionType: p.SessionType,
		TurnNumber:  turn,
	})
	defer span.End()

	if err := p.publish(ctx, sess, item, speaker, subjectOrNil(session.English), turn); err != nil {
		span.RecordError(err)
		telemetry.FromContext(ctx).Warn(ctx, "transcript: realtime publish failed", "error", err, "session_id", sess.SessionID)
	}

	if item.Role == "assistant" && filter != nil {
		p.postHocSafetyCheck(ctx, filter, sess, item.Content)
	}
}

// postHocSafetyCheck runs the moderation check after the audio has already
// played (§4.5 realtime step 4c, §9): there is no rewrite path here, since
// speech already reached the student. A flagged result is logged as a
// safety event for teacher review; it never mutates the transcript.
func (p *Publisher) postHocSafetyCheck(ctx context.Context, filter *safety.Filter, sess *session.State, text string) {
	result := filter.Check(ctx, text)
	if !result.Flagged || filter.Audit == nil {
		return
	}

	event := safety.SafetyEvent{
		SessionID:         sess.SessionID,
		AgentName:         string(session.English),
		OriginalText:      text,
		RewrittenText:     text,
		FlaggedCategories: flaggedCategoryStrings(result),
		PeakScore:         result.PeakScore,
		Timestamp:         time.Now(),
	}
	logger := telemetry.FromContext(ctx)
	auditCtx := context.WithoutCancel(ctx)
	go func() {
		if err := filter.Audit.RecordSafetyEvent(auditCtx, event); err != nil {
			logger.Warn(auditCtx, "transcript: post-hoc safety audit write failed", "error", err, "session_id", event.SessionID)
		}
	}()
}

func flaggedCategoryStrings(r safety.CheckResult) []string {
	cats := r.FlaggedCategories()
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = string(c)
	}
	return out
}

func (p *Publisher) publish(ctx context.Context, sess *session.State, item Item, speaker string, subject *string, turn int) error {
	evt := Event{
		Speaker:   speaker,
		Role:      item.Role,
		Content:   item.Content,
		Subject:   subject,
		Turn:      turn,
		SessionID: sess.SessionID,
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.Transport.PublishData(ctx, sess.RoomName, data, Topic)
}
