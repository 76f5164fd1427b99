package store

import "context"

// EnsureTables creates the five persistence tables (§6) if they do not
// exist. The caller is responsible for invoking this once at worker
// startup; it is not run implicitly by Open.
func (c *Client) EnsureTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS learning_sessions (
			session_id TEXT PRIMARY KEY,
			student_identity TEXT NOT NULL,
			room_name TEXT NOT NULL,
			session_type TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ,
			total_turns INTEGER NOT NULL DEFAULT 0,
			escalated BOOLEAN NOT NULL DEFAULT FALSE,
			subjects_covered TEXT[]
		)`,
		`CREATE TABLE IF NOT EXISTS transcript_turns (
			id SERIAL PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES learning_sessions(session_id),
			turn_number INTEGER NOT NULL,
			role TEXT NOT NULL,
			speaker TEXT NOT NULL,
			subject TEXT NOT NULL,
			text TEXT NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS routing_decisions (
			id SERIAL PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES learning_sessions(session_id),
			from_agent TEXT NOT NULL,
			to_agent TEXT NOT NULL,
			question_summary TEXT,
			decision_ms DOUBLE PRECISION NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS escalation_events (
			id SERIAL PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES learning_sessions(session_id),
			room_name TEXT NOT NULL,
			reason TEXT,
			join_token TEXT,
			occurred_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS guardrail_events (
			id SERIAL PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES learning_sessions(session_id),
			agent_name TEXT NOT NULL,
			original_text TEXT NOT NULL,
			rewritten_text TEXT NOT NULL,
			categories_flagged TEXT[],
			peak_score DOUBLE PRECISION NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
