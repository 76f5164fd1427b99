package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	now := time.Unix(0, 0)
	s := New("sess-1", "student-42", "room-a", now)

	assert.Equal(t, "sess-1", s.SessionID)
	assert.Equal(t, Classifier, s.CurrentSubject)
	assert.Equal(t, Classifier, s.SpeakingAgent)
	assert.Empty(t, s.PreviousSubjects)
	assert.Equal(t, now, s.CreatedAt)
}

func TestRouteTo_PushesPrevious(t *testing.T) {
	s := New("sess-1", "student", "room", time.Now())

	s.RouteTo(Math)
	assert.Equal(t, Math, s.CurrentSubject)
	require.Len(t, s.PreviousSubjects, 1)
	assert.Equal(t, Classifier, s.PreviousSubjects[0])

	s.RouteTo(History)
	assert.Equal(t, History, s.CurrentSubject)
	assert.Equal(t, []Subject{Classifier, Math}, s.PreviousSubjects)
}

func TestRouteTo_SameSubjectIsNoop(t *testing.T) {
	s := New("sess-1", "student", "room", time.Now())
	s.RouteTo(Math)

	before := append([]Subject(nil), s.PreviousSubjects...)
	s.RouteTo(Math)

	assert.Equal(t, Math, s.CurrentSubject)
	assert.Equal(t, before, s.PreviousSubjects, "routing to the current subject must not push a duplicate")
}

func TestAdvanceTurn(t *testing.T) {
	s := New("sess-1", "student", "room", time.Now())
	assert.Equal(t, 1, s.AdvanceTurn())
	assert.Equal(t, 2, s.AdvanceTurn())
	assert.Equal(t, 2, s.TurnNumber)
}

func TestEscalate_Idempotent(t *testing.T) {
	s := New("sess-1", "student", "room", time.Now())

	fired := s.Escalate("student expressing distress")
	assert.True(t, fired)
	assert.True(t, s.Escalated)
	assert.Equal(t, "student expressing distress", s.EscalationReason)

	fired = s.Escalate("a different reason")
	assert.False(t, fired, "second escalate call must not re-fire")
	assert.Equal(t, "student expressing distress", s.EscalationReason, "reason must not change on repeat escalation")
}

func TestSubjectsCovered_Deduplicated(t *testing.T) {
	s := New("sess-1", "student", "room", time.Now())
	s.RouteTo(Math)
	s.RouteTo(History)
	s.RouteTo(Math)

	assert.Equal(t, []string{"classifier", "history", "math"}, s.SubjectsCovered())
}

func TestSkipNextUserTurns_NeverNegative(t *testing.T) {
	s := New("sess-1", "student", "room", time.Now())
	s.SkipNextUserTurns = 1

	if s.SkipNextUserTurns > 0 {
		s.SkipNextUserTurns--
	}
	assert.Equal(t, 0, s.SkipNextUserTurns)

	if s.SkipNextUserTurns > 0 {
		s.SkipNextUserTurns--
	}
	assert.GreaterOrEqual(t, s.SkipNextUserTurns, 0)
}
