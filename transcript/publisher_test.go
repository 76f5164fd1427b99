package transcript

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightclass/voicetutor/safety"
	"github.com/brightclass/voicetutor/session"
	"github.com/brightclass/voicetutor/store"
	"github.com/brightclass/voicetutor/transport"
)

type publishCall struct {
	roomName string
	data     []byte
	topic    string
}

type fakeStore struct {
	mu    sync.Mutex
	turns []store.TranscriptTurn
	err   error
}

func (f *fakeStore) RecordTranscriptTurn(ctx context.Context, t store.TranscriptTurn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, t)
	return f.err
}

func (f *fakeStore) snapshot() []store.TranscriptTurn {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.TranscriptTurn, len(f.turns))
	copy(out, f.turns)
	return out
}

func newSession() *session.State {
	return session.New("s1", "student-1", "room-1", time.Unix(0, 0))
}

func TestHandlePipelineItem_UserItemPersistedAndPublished(t *testing.T) {
	tp := &recordingTransport{}
	st := &fakeStore{}
	p := New(tp, st, "pipeline")
	sess := newSession()

	err := p.HandlePipelineItem(context.Background(), sess, Item{Role: "user", Content: "hello"})
	require.NoError(t, err)

	require.Len(t, tp.calls, 1)
	var evt Event
	require.NoError(t, json.Unmarshal(tp.calls[0].data, &evt))
	assert.Equal(t, "student", evt.Speaker)
	assert.Equal(t, "user", evt.Role)
	assert.Equal(t, "hello", evt.Content)
	assert.Nil(t, evt.Subject, "classifier subject must serialize to null")
	assert.Equal(t, "transcript", tp.calls[0].topic)

	turns := st.snapshot()
	require.Len(t, turns, 1)
	assert.Equal(t, "student", turns[0].Speaker)
	assert.Equal(t, 1, sess.TurnNumber)
}

func TestHandlePipelineItem_PhantomUserTurnSuppressed(t *testing.T) {
	tp := &recordingTransport{}
	st := &fakeStore{}
	p := New(tp, st, "pipeline")
	sess := newSession()
	sess.SkipNextUserTurns = 1

	err := p.HandlePipelineItem(context.Background(), sess, Item{Role: "user", Content: "seven times eight"})
	require.NoError(t, err)

	assert.Empty(t, tp.calls, "suppressed item must not publish")
	assert.Empty(t, st.snapshot(), "suppressed item must not persist")
	assert.Equal(t, 0, sess.SkipNextUserTurns)
	assert.Equal(t, 0, sess.TurnNumber, "suppressed item must not advance the turn counter")
}

func TestHandlePipelineItem_AssistantItemDerivesSpeakerFromSpeakingAgent(t *testing.T) {
	tp := &recordingTransport{}
	st := &fakeStore{}
	p := New(tp, st, "pipeline")
	sess := newSession()
	sess.CurrentSubject = session.Math
	sess.SpeakingAgent = session.Math

	err := p.HandlePipelineItem(context.Background(), sess, Item{Role: "assistant", Content: "56"})
	require.NoError(t, err)

	var evt Event
	require.NoError(t, json.Unmarshal(tp.calls[0].data, &evt))
	assert.Equal(t, "math", evt.Speaker)
	require.NotNil(t, evt.Subject)
	assert.Equal(t, "math", *evt.Subject)
}

func TestHandlePipelineItem_AssistantItemAttachesE2EResponseMsAndClearsTimestamp(t *testing.T) {
	tp := &recordingTransport{}
	st := &fakeStore{}
	p := New(tp, st, "pipeline")
	sess := newSession()
	past := time.Now().Add(-50 * time.Millisecond)
	sess.LastUserInputAt = &past

	err := p.HandlePipelineItem(context.Background(), sess, Item{Role: "assistant", Content: "answer"})
	require.NoError(t, err)
	assert.Nil(t, sess.LastUserInputAt, "e2e timestamp must be cleared after use")
}

func TestHandlePipelineItem_PublishFailurePropagatesErrorButStillAdvancesTurn(t *testing.T) {
	tp := &recordingTransport{err: assertErr}
	st := &fakeStore{}
	p := New(tp, st, "pipeline")
	sess := newSession()

	err := p.HandlePipelineItem(context.Background(), sess, Item{Role: "user", Content: "hi"})
	assert.Error(t, err)
	assert.Equal(t, 1, sess.TurnNumber)
}

func TestHandleUserInputTranscribed_SetsTimestamp(t *testing.T) {
	p := New(&recordingTransport{}, nil, "pipeline")
	sess := newSession()
	now := time.Now()

	p.HandleUserInputTranscribed(sess, now)
	require.NotNil(t, sess.LastUserInputAt)
	assert.True(t, sess.LastUserInputAt.Equal(now))
}

func TestHandleRealtimeItem_PublishesWithEnglishSubject(t *testing.T) {
	tp := &recordingTransport{}
	p := New(tp, nil, "realtime")
	sess := newSession()

	p.HandleRealtimeItem(context.Background(), sess, Item{Role: "assistant", Content: "let's talk about your day"}, nil)

	require.Len(t, tp.calls, 1)
	var evt Event
	require.NoError(t, json.Unmarshal(tp.calls[0].data, &evt))
	assert.Equal(t, "english", evt.Speaker)
	require.NotNil(t, evt.Subject)
	assert.Equal(t, "english", *evt.Subject)
}

func TestHandleRealtimeItem_PostHocSafetyCheckAuditsFlaggedAssistantText(t *testing.T) {
	tp := &recordingTransport{}
	audit := &fakeAuditSink{}
	filter := safety.New(flaggingModeration{}, nil, audit, "fallback")
	p := New(tp, nil, "realtime")
	sess := newSession()

	p.HandleRealtimeItem(context.Background(), sess, Item{Role: "assistant", Content: "flagged text"}, filter)

	require.Eventually(t, func() bool { return audit.count() == 1 }, time.Second, 5*time.Millisecond)
	evt := audit.events()[0]
	assert.Equal(t, "flagged text", evt.OriginalText)
	assert.Equal(t, "flagged text", evt.RewrittenText, "post-hoc check never rewrites; audio already played")
}

func TestHandleRealtimeItem_PostHocSafetyCheckSkipsUserItems(t *testing.T) {
	tp := &recordingTransport{}
	audit := &fakeAuditSink{}
	filter := safety.New(flaggingModeration{}, nil, audit, "fallback")
	p := New(tp, nil, "realtime")
	sess := newSession()

	p.HandleRealtimeItem(context.Background(), sess, Item{Role: "user", Content: "flagged text"}, filter)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, audit.count())
}

type recordingTransport struct {
	mu    sync.Mutex
	calls []publishCall
	err   error
}

func (r *recordingTransport) Dispatch(ctx context.Context, req transport.DispatchRequest) error {
	return nil
}

func (r *recordingTransport) PublishData(ctx context.Context, roomName string, data []byte, topic string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, publishCall{roomName: roomName, data: data, topic: topic})
	return r.err
}

var _ transport.Client = (*recordingTransport)(nil)

var assertErr = assertError("publish data failed")

type assertError string

func (e assertError) Error() string { return string(e) }

type flaggingModeration struct{}

func (flaggingModeration) Check(ctx context.Context, text string) (safety.CheckResult, error) {
	return safety.CheckResult{Flagged: true, PeakScore: 0.95}, nil
}

type fakeAuditSink struct {
	mu   sync.Mutex
	evts []safety.SafetyEvent
}

func (f *fakeAuditSink) RecordSafetyEvent(ctx context.Context, event safety.SafetyEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evts = append(f.evts, event)
	return nil
}

func (f *fakeAuditSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.evts)
}

func (f *fakeAuditSink) events() []safety.SafetyEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]safety.SafetyEvent, len(f.evts))
	copy(out, f.evts)
	return out
}
