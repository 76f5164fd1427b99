package routing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightclass/voicetutor/modelclient"
	"github.com/brightclass/voicetutor/safety"
	"github.com/brightclass/voicetutor/session"
	"github.com/brightclass/voicetutor/transport"
	"github.com/brightclass/voicetutor/tutoragent"
)

type stubModel struct{}

func (stubModel) ModelID() string { return "stub" }
func (stubModel) Generate(ctx context.Context, msgs []modelclient.Message, opts ...modelclient.GenerateOption) (modelclient.GenerateResult, error) {
	return modelclient.GenerateResult{Text: "stub reply"}, nil
}

type stubSynth struct{}

func (stubSynth) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	return []byte(text), nil
}

type passModeration struct{}

func (passModeration) Check(ctx context.Context, text string) (safety.CheckResult, error) {
	return safety.CheckResult{Flagged: false}, nil
}

func newSession() *session.State {
	return session.New("s1", "student-1", "room-1", time.Unix(0, 0))
}

func newSpecialistBuilder(name string) SpecialistBuilder {
	return func(pendingQuestion string, seedHistory []modelclient.Message) *tutoragent.Agent {
		filter := safety.New(passModeration{}, nil, nil, "fallback")
		return tutoragent.New(name, "system instructions", stubModel{}, "voice-1", stubSynth{}, filter, newSession(), "default opening")
	}
}

type fakeTransport struct {
	mu        sync.Mutex
	dispatche []transport.DispatchRequest
	err       error
}

func (f *fakeTransport) Dispatch(ctx context.Context, req transport.DispatchRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatche = append(f.dispatche, req)
	return f.err
}

func (f *fakeTransport) PublishData(ctx context.Context, roomName string, data []byte, topic string) error {
	return nil
}

type fakeEscalation struct {
	calls int32
	token string
	err   error
}

func (f *fakeEscalation) RequestEscalation(ctx context.Context, sessionID, roomName, reason string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.token, f.err
}

type fakeCloser struct {
	calls int32
}

func (f *fakeCloser) Close(ctx context.Context) error {
	atomic.AddInt32(&f.calls, 1)
	return nil
}

func TestRouteToMath_FirstCallMutatesStateAndBuildsAgent(t *testing.T) {
	sess := newSession()
	c := New(sess, &fakeTransport{}, &fakeEscalation{}, &fakeCloser{}, newSpecialistBuilder("math"), newSpecialistBuilder("history"), newSpecialistBuilder("english"))

	agent, sentence, err := c.RouteToMath(context.Background(), "seven times eight", nil)
	require.NoError(t, err)
	require.NotNil(t, agent)
	assert.Equal(t, "Let me connect you with our Mathematics tutor!", sentence)
	assert.Equal(t, session.Math, sess.CurrentSubject)
	assert.Equal(t, session.Math, sess.SpeakingAgent)
	assert.Equal(t, 1, sess.SkipNextUserTurns)
}

func TestRouteToMath_IdempotentWhenAlreadyActive(t *testing.T) {
	sess := newSession()
	c := New(sess, &fakeTransport{}, &fakeEscalation{}, &fakeCloser{}, newSpecialistBuilder("math"), newSpecialistBuilder("history"), newSpecialistBuilder("english"))

	_, _, err := c.RouteToMath(context.Background(), "q1", nil)
	require.NoError(t, err)
	sess.SkipNextUserTurns = 0 // simulate the runtime consuming the suppression

	agent, sentence, err := c.RouteToMath(context.Background(), "q2", nil)
	require.NoError(t, err)
	assert.Nil(t, agent, "idempotent re-route must not rebuild the agent")
	assert.Empty(t, sentence)
	assert.Equal(t, 0, sess.SkipNextUserTurns, "idempotent re-route must not re-arm suppression")
}

func TestRouteToHistory_FromMathSwitchesDirectly(t *testing.T) {
	sess := newSession()
	c := New(sess, &fakeTransport{}, &fakeEscalation{}, &fakeCloser{}, newSpecialistBuilder("math"), newSpecialistBuilder("history"), newSpecialistBuilder("english"))

	_, _, err := c.RouteToMath(context.Background(), "q1", nil)
	require.NoError(t, err)

	agent, sentence, err := c.RouteToHistory(context.Background(), "a history question", nil)
	require.NoError(t, err)
	require.NotNil(t, agent)
	assert.Equal(t, session.History, sess.CurrentSubject)
	assert.NotEmpty(t, sentence)
	assert.Contains(t, sess.PreviousSubjects, session.Math)
}

func TestRouteBackToOrchestrator_ReturnsClassifierAndResetsSubject(t *testing.T) {
	sess := newSession()
	c := New(sess, &fakeTransport{}, &fakeEscalation{}, &fakeCloser{}, newSpecialistBuilder("math"), newSpecialistBuilder("history"), newSpecialistBuilder("english"))

	_, _, err := c.RouteToMath(context.Background(), "q1", nil)
	require.NoError(t, err)

	classifier := newSpecialistBuilder("classifier")("", nil)
	back, sentence, err := c.RouteBackToOrchestrator(context.Background(), "off topic", classifier)
	require.NoError(t, err)
	assert.Same(t, classifier, back)
	assert.NotEmpty(t, sentence)
	assert.Equal(t, session.Classifier, sess.CurrentSubject)
}

func TestRouteToEnglish_DispatchesAndSchedulesDrain(t *testing.T) {
	sess := newSession()
	closer := &fakeCloser{}
	tp := &fakeTransport{}
	c := New(sess, tp, &fakeEscalation{}, closer, newSpecialistBuilder("math"), newSpecialistBuilder("history"), newSpecialistBuilder("english"))
	c.DrainDelay = 10 * time.Millisecond
	c.WatchdogTimeout = time.Second

	agent, sentence, err := c.RouteToEnglish(context.Background(), "tell me a story", nil)
	require.NoError(t, err)
	assert.Nil(t, agent, "a successful dispatch hands off to the realtime worker, not a new in-session agent")
	assert.NotEmpty(t, sentence)
	assert.Equal(t, session.English, sess.CurrentSubject)

	require.Len(t, tp.dispatche, 1)
	assert.Equal(t, EnglishAgentName, tp.dispatche[0].AgentName)
	assert.Contains(t, tp.dispatche[0].Metadata, "session:s1")
	assert.Contains(t, tp.dispatche[0].Metadata, "question:tell me a story")

	require.Eventually(t, func() bool { return atomic.LoadInt32(&closer.calls) == 1 }, time.Second, 5*time.Millisecond)
}

func TestRouteToEnglish_WatchdogClosesIfDrainLost(t *testing.T) {
	sess := newSession()
	closer := &fakeCloser{}
	c := New(sess, &fakeTransport{}, &fakeEscalation{}, closer, newSpecialistBuilder("math"), newSpecialistBuilder("history"), newSpecialistBuilder("english"))
	c.DrainDelay = time.Hour // effectively disabled
	c.WatchdogTimeout = 10 * time.Millisecond

	_, _, err := c.RouteToEnglish(context.Background(), "a question", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&closer.calls) == 1 }, time.Second, 5*time.Millisecond)
}

func TestRouteToEnglish_DispatchFailureFallsBackToDegradedAgent(t *testing.T) {
	sess := newSession()
	tp := &fakeTransport{err: errors.New("dispatch service unavailable")}
	closer := &fakeCloser{}
	c := New(sess, tp, &fakeEscalation{}, closer, newSpecialistBuilder("math"), newSpecialistBuilder("history"), newSpecialistBuilder("english"))

	agent, sentence, err := c.RouteToEnglish(context.Background(), "a question", nil)
	require.NoError(t, err, "a dispatch failure is a handled fallback, not a propagated error")
	require.NotNil(t, agent, "must build the degraded in-session English agent")
	assert.NotEmpty(t, sentence)
	assert.Equal(t, session.English, sess.CurrentSubject, "the session still moves to the English topic, just handled in-session")

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&closer.calls), "the degraded fallback never dispatched out-of-process, so no drain/close should fire")
}

func TestEscalateToTeacher_LatchesAndFiresAsyncRequest(t *testing.T) {
	sess := newSession()
	esc := &fakeEscalation{token: "teacher-jwt"}
	c := New(sess, &fakeTransport{}, esc, &fakeCloser{}, newSpecialistBuilder("math"), newSpecialistBuilder("history"), newSpecialistBuilder("english"))

	ack := c.EscalateToTeacher(context.Background(), "student is stuck")
	assert.NotEmpty(t, ack)
	assert.True(t, sess.Escalated)
	assert.Equal(t, "student is stuck", sess.EscalationReason)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&esc.calls) == 1 }, time.Second, 5*time.Millisecond)
}

func TestEscalateToTeacher_SecondCallDoesNotRefireRequest(t *testing.T) {
	sess := newSession()
	esc := &fakeEscalation{}
	c := New(sess, &fakeTransport{}, esc, &fakeCloser{}, newSpecialistBuilder("math"), newSpecialistBuilder("history"), newSpecialistBuilder("english"))

	c.EscalateToTeacher(context.Background(), "first reason")
	time.Sleep(20 * time.Millisecond)
	c.EscalateToTeacher(context.Background(), "second reason")
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, int32(1), atomic.LoadInt32(&esc.calls))
	assert.Equal(t, "first reason", sess.EscalationReason)
}

func TestTools_CoversAllFiveRoutingOperations(t *testing.T) {
	tools := Tools()
	var names []string
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		ToolRouteToMath, ToolRouteToHistory, ToolRouteToEnglish,
		ToolRouteBackToOrchestrator, ToolEscalateToTeacher,
	}, names)
}

func TestDispatch_RouteToMathToolCall(t *testing.T) {
	sess := newSession()
	c := New(sess, &fakeTransport{}, &fakeEscalation{}, &fakeCloser{}, newSpecialistBuilder("math"), newSpecialistBuilder("history"), newSpecialistBuilder("english"))

	agent, sentence, err := c.Dispatch(context.Background(), modelclient.ToolCall{
		Name:      ToolRouteToMath,
		Arguments: `{"question_summary":"seven times eight"}`,
	}, nil)
	require.NoError(t, err)
	require.NotNil(t, agent)
	assert.Equal(t, "Let me connect you with our Mathematics tutor!", sentence)
	assert.Equal(t, session.Math, sess.CurrentSubject)
}

func TestDispatch_RouteBackToOrchestratorUsesControllerClassifier(t *testing.T) {
	sess := newSession()
	c := New(sess, &fakeTransport{}, &fakeEscalation{}, &fakeCloser{}, newSpecialistBuilder("math"), newSpecialistBuilder("history"), newSpecialistBuilder("english"))
	classifier := newSpecialistBuilder("classifier")("", nil)
	c.Classifier = classifier

	_, _, err := c.RouteToMath(context.Background(), "q1", nil)
	require.NoError(t, err)

	agent, _, err := c.Dispatch(context.Background(), modelclient.ToolCall{
		Name:      ToolRouteBackToOrchestrator,
		Arguments: `{"reason":"off topic"}`,
	}, nil)
	require.NoError(t, err)
	assert.Same(t, classifier, agent)
}

func TestDispatch_EscalateToTeacherToolCall(t *testing.T) {
	sess := newSession()
	esc := &fakeEscalation{}
	c := New(sess, &fakeTransport{}, esc, &fakeCloser{}, newSpecialistBuilder("math"), newSpecialistBuilder("history"), newSpecialistBuilder("english"))

	agent, ack, err := c.Dispatch(context.Background(), modelclient.ToolCall{
		Name:      ToolEscalateToTeacher,
		Arguments: `{"reason":"student is stuck"}`,
	}, nil)
	require.NoError(t, err)
	assert.Nil(t, agent)
	assert.NotEmpty(t, ack)
	assert.True(t, sess.Escalated)
}

func TestDispatch_UnknownToolNameErrors(t *testing.T) {
	sess := newSession()
	c := New(sess, &fakeTransport{}, &fakeEscalation{}, &fakeCloser{}, newSpecialistBuilder("math"), newSpecialistBuilder("history"), newSpecialistBuilder("english"))

	_, _, err := c.Dispatch(context.Background(), modelclient.ToolCall{Name: "do_something_else"}, nil)
	assert.Error(t, err)
}
