// Package store is the persistence surface (§6): a relational store for
// session, transcript, routing, escalation, and guardrail records. All
// inserts are fire-and-forget from the core; this package only issues the
// writes, it does not own when they're called.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// DB is the minimal database/sql surface this package needs, narrowed so
// tests can inject a fake instead of a live connection.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Client is the persistence boundary client.
type Client struct {
	db DB
}

// Open connects to a PostgreSQL database using the lib/pq driver.
func Open(dsn string) (*Client, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	return &Client{db: db}, nil
}

// New wraps an existing DB, used for dependency injection and tests.
func New(db DB) *Client {
	return &Client{db: db}
}

// Ping verifies the database connection is reachable, for the worker
// binary's /healthz check.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `SELECT 1`)
	if err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// RecordSessionStart inserts a row into learning_sessions (one row per room
// join, §6).
func (c *Client) RecordSessionStart(ctx context.Context, sessionID, studentIdentity, roomName, sessionType string, startedAt time.Time) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO learning_sessions (session_id, student_identity, room_name, session_type, started_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		sessionID, studentIdentity, roomName, sessionType, startedAt)
	if err != nil {
		return fmt.Errorf("store: record session start: %w", err)
	}
	return nil
}

// RecordSessionEnd updates the learning_sessions row with closing attributes.
func (c *Client) RecordSessionEnd(ctx context.Context, sessionID string, endedAt time.Time, totalTurns int, escalated bool, subjectsCovered []string) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE learning_sessions
		 SET ended_at = $2, total_turns = $3, escalated = $4, subjects_covered = $5
		 WHERE session_id = $1`,
		sessionID, endedAt, totalTurns, escalated, pq.Array(subjectsCovered))
	if err != nil {
		return fmt.Errorf("store: record session end: %w", err)
	}
	return nil
}

// TranscriptTurn is one committed conversation item (§6).
type TranscriptTurn struct {
	SessionID  string
	TurnNumber int
	Role       string
	Speaker    string
	Subject    string
	Text       string
	OccurredAt time.Time
}

// RecordTranscriptTurn inserts a row into transcript_turns (one row per
// committed item, §6).
func (c *Client) RecordTranscriptTurn(ctx context.Context, t TranscriptTurn) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO transcript_turns (session_id, turn_number, role, speaker, subject, text, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.SessionID, t.TurnNumber, t.Role, t.Speaker, t.Subject, t.Text, t.OccurredAt)
	if err != nil {
		return fmt.Errorf("store: record transcript turn: %w", err)
	}
	return nil
}

// RoutingDecision is one routing.decision span's persisted counterpart.
type RoutingDecision struct {
	SessionID       string
	FromAgent       string
	ToAgent         string
	QuestionSummary string
	DecisionMs      float64
	OccurredAt      time.Time
}

// RecordRoutingDecision inserts a row into routing_decisions (one row per
// routing span, §6).
func (c *Client) RecordRoutingDecision(ctx context.Context, d RoutingDecision) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO routing_decisions (session_id, from_agent, to_agent, question_summary, decision_ms, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		d.SessionID, d.FromAgent, d.ToAgent, d.QuestionSummary, d.DecisionMs, d.OccurredAt)
	if err != nil {
		return fmt.Errorf("store: record routing decision: %w", err)
	}
	return nil
}

// RecordEscalation inserts a row into escalation_events (one row per
// escalation, carrying the teacher-side join token, §6).
func (c *Client) RecordEscalation(ctx context.Context, sessionID, roomName, reason, joinToken string, occurredAt time.Time) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO escalation_events (session_id, room_name, reason, join_token, occurred_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		sessionID, roomName, reason, joinToken, occurredAt)
	if err != nil {
		return fmt.Errorf("store: record escalation: %w", err)
	}
	return nil
}
