// Package session holds the per-room Session State record (§3) that is
// carried across agent handoffs within a worker and reconstructed from
// dispatch metadata when control crosses worker boundaries, plus the
// dispatch-metadata codec used for that handoff (§6).
package session

import "time"

// Subject identifies which agent is speaking or routed-to.
type Subject string

const (
	// Unset is the zero value: no subject has been assigned yet.
	Unset     Subject = ""
	Classifier Subject = "classifier"
	Math       Subject = "math"
	History    Subject = "history"
	English    Subject = "english"
)

// State is the per-room shared mutable record carried across agent
// handoffs. It is owned by exactly one session's event loop at a time;
// nothing in this package synchronizes concurrent access, by design (§5).
type State struct {
	// SessionID is immutable once assigned; it survives worker-to-worker
	// handoff via dispatch metadata.
	SessionID string

	StudentIdentity string
	RoomName        string

	// CurrentSubject is the routed-to subject.
	CurrentSubject Subject
	// SpeakingAgent is the currently-speaking subject, set by the routing
	// controller before a handoff tuple is returned so that the transition
	// sentence is attributed to the outgoing agent (§9).
	SpeakingAgent Subject

	PreviousSubjects []Subject

	TurnNumber int

	// SkipNextUserTurns suppresses the next N user-role conversation items
	// from transcript emission. Never negative.
	SkipNextUserTurns int

	Escalated        bool
	EscalationReason string

	// LastUserInputAt is set when a user utterance is committed and
	// consumed (cleared) when computing end-to-end latency on the next
	// assistant item.
	LastUserInputAt *time.Time

	// PendingQuestion is consumed once by a newly activated agent's
	// activation hook.
	PendingQuestion string

	CreatedAt time.Time
}

// New creates a fresh Session State with a new id, current subject set to
// the classifier (the pipeline worker's always starting point).
func New(sessionID, studentIdentity, roomName string, now time.Time) *State {
	return &State{
		SessionID:       sessionID,
		StudentIdentity: studentIdentity,
		RoomName:        roomName,
		CurrentSubject:  Classifier,
		SpeakingAgent:   Classifier,
		CreatedAt:       now,
	}
}

// RouteTo pushes CurrentSubject onto PreviousSubjects and assigns
// newSubject. Routing to the subject already active is a no-op on
// PreviousSubjects (no duplicate push) per the idempotence property in §8.
func (s *State) RouteTo(newSubject Subject) {
	if s.CurrentSubject == newSubject {
		return
	}
	if s.CurrentSubject != Unset {
		s.PreviousSubjects = append(s.PreviousSubjects, s.CurrentSubject)
	}
	s.CurrentSubject = newSubject
}

// AdvanceTurn increments TurnNumber and returns the new value.
func (s *State) AdvanceTurn() int {
	s.TurnNumber++
	return s.TurnNumber
}

// Escalate latches Escalated and records reason. It is idempotent: a
// second call does not change EscalationReason or re-fire the latch.
func (s *State) Escalate(reason string) (fired bool) {
	if s.Escalated {
		return false
	}
	s.Escalated = true
	s.EscalationReason = reason
	return true
}

// SubjectsCovered returns the deduplicated, order-preserving set of
// PreviousSubjects plus CurrentSubject, for the session.end span.
func (s *State) SubjectsCovered() []string {
	seen := make(map[Subject]bool, len(s.PreviousSubjects)+1)
	out := make([]string, 0, len(s.PreviousSubjects)+1)
	add := func(subj Subject) {
		if subj == Unset || seen[subj] {
			return
		}
		seen[subj] = true
		out = append(out, string(subj))
	}
	for _, subj := range s.PreviousSubjects {
		add(subj)
	}
	add(s.CurrentSubject)
	return out
}
