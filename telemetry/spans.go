package telemetry

import "context"

// truncate caps s to n runes, matching the "≤ 500 chars" attributes required
// by the span taxonomy so oversized transcript text never blows up a span.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

const summaryLimit = 500

// SessionStart emits the session.start span (§4.6). recovered is only
// meaningful for the pipeline worker; pass false from the realtime worker.
func SessionStart(ctx context.Context, sessionID, userID, roomName, sessionType string, recovered bool) Span {
	_, span := StartSpan(ctx, "session.start", Attrs{
		"session_id":   sessionID,
		"user_id":      userID,
		"room_name":    roomName,
		"session_type": sessionType,
		"recovered":    recovered,
	})
	return span
}

// SessionEnd emits the session.end span.
func SessionEnd(ctx context.Context, sessionID, userID, sessionType string, totalTurns int, escalated bool, subjectsCovered []string) Span {
	_, span := StartSpan(ctx, "session.end", Attrs{
		"session_id":       sessionID,
		"user_id":          userID,
		"session_type":     sessionType,
		"total_turns":      totalTurns,
		"escalated":        escalated,
		"subjects_covered": subjectsCovered,
	})
	return span
}

// AgentActivated emits the agent.activated span.
func AgentActivated(ctx context.Context, agentName, sessionID, userID string) Span {
	_, span := StartSpan(ctx, "agent.activated", Attrs{
		"agent_name": agentName,
		"session_id": sessionID,
		"user_id":    userID,
	})
	return span
}

// RoutingDecisionAttrs is the full attribute set for a routing.decision span.
type RoutingDecisionAttrs struct {
	FromAgent       string
	ToAgent         string
	QuestionSummary string
	PreviousSubject string
	DecisionMs      float64
	LastUserMessage string
	HistoryLength   int
}

// RoutingDecision emits the routing.decision span.
func RoutingDecision(ctx context.Context, a RoutingDecisionAttrs) Span {
	_, span := StartSpan(ctx, "routing.decision", Attrs{
		"from_agent":        a.FromAgent,
		"to_agent":          a.ToAgent,
		"question_summary":  truncate(a.QuestionSummary, summaryLimit),
		"previous_subject":  a.PreviousSubject,
		"decision_ms":       a.DecisionMs,
		"last_user_message": truncate(a.LastUserMessage, summaryLimit),
		"history_length":    a.HistoryLength,
	})
	return span
}

// ConversationItemAttrs is the attribute set for a conversation.item span.
type ConversationItemAttrs struct {
	SessionID      string
	UserID         string
	Subject        string
	Role           string
	SessionType    string
	TurnNumber     int
	E2EResponseMs  *float64 // assistant items only, when last_user_input_at was set
}

// ConversationItem emits the conversation.item span.
func ConversationItem(ctx context.Context, a ConversationItemAttrs) Span {
	attrs := Attrs{
		"session_id":   a.SessionID,
		"user_id":      a.UserID,
		"subject":      a.Subject,
		"role":         a.Role,
		"session_type": a.SessionType,
		"turn":         a.TurnNumber,
	}
	if a.E2EResponseMs != nil {
		attrs["e2e_response_ms"] = *a.E2EResponseMs
	}
	_, span := StartSpan(ctx, "conversation.item", attrs)
	return span
}

// TTSSentence emits the tts.sentence span.
func TTSSentence(ctx context.Context, sentenceLen int, guardrailMs, synthesisMs float64, wasRewritten bool) Span {
	_, span := StartSpan(ctx, "tts.sentence", Attrs{
		"sentence_length": sentenceLen,
		"guardrail_ms":    guardrailMs,
		"synthesis_ms":    synthesisMs,
		"was_rewritten":   wasRewritten,
	})
	return span
}

// GuardrailCheck emits the guardrail.check span.
func GuardrailCheck(ctx context.Context, textLen int, flagged bool, peakScore float64, checkMs float64) Span {
	_, span := StartSpan(ctx, "guardrail.check", Attrs{
		"text_length": textLen,
		"flagged":     flagged,
		"peak_score":  peakScore,
		"check_ms":    checkMs,
	})
	return span
}

// GuardrailRewrite emits the guardrail.rewrite span.
func GuardrailRewrite(ctx context.Context, originalLen, rewrittenLen int, rewriteMs float64) Span {
	_, span := StartSpan(ctx, "guardrail.rewrite", Attrs{
		"original_length":  originalLen,
		"rewritten_length": rewrittenLen,
		"rewrite_ms":       rewriteMs,
	})
	return span
}

// TeacherEscalation emits the teacher.escalation span.
func TeacherEscalation(ctx context.Context, fromAgent, reason, roomName string, turnNumber int, sessionID, userID string) Span {
	_, span := StartSpan(ctx, "teacher.escalation", Attrs{
		"from_agent":  fromAgent,
		"reason":      truncate(reason, summaryLimit),
		"room_name":   roomName,
		"turn_number": turnNumber,
		"session_id":  sessionID,
		"user_id":     userID,
	})
	return span
}
