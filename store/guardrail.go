package store

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/brightclass/voicetutor/safety"
)

// RecordSafetyEvent implements safety.AuditSink, inserting a row into
// guardrail_events (one row per safety event, categories_flagged as a set,
// §6).
func (c *Client) RecordSafetyEvent(ctx context.Context, event safety.SafetyEvent) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO guardrail_events (session_id, agent_name, original_text, rewritten_text, categories_flagged, peak_score, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.SessionID, event.AgentName, event.OriginalText, event.RewrittenText,
		pq.Array(event.FlaggedCategories), event.PeakScore, event.Timestamp)
	if err != nil {
		return fmt.Errorf("store: record safety event: %w", err)
	}
	return nil
}

var _ safety.AuditSink = (*Client)(nil)
