package safety

import (
	"context"
	"time"

	"github.com/brightclass/voicetutor/telemetry"
)

// SafetyEvent is the audit record written (fire-and-forget) whenever a
// rewrite occurs (§3).
type SafetyEvent struct {
	SessionID         string
	AgentName         string
	OriginalText      string
	RewrittenText     string
	FlaggedCategories []string
	PeakScore         float64
	Timestamp         time.Time
}

// AuditSink persists SafetyEvents. Implemented by the store package.
type AuditSink interface {
	RecordSafetyEvent(ctx context.Context, event SafetyEvent) error
}

// Filter is the Safety Filter (§4.1): a per-sentence two-stage content
// check-and-possibly-rewrite pipeline with audit emission. Moderation and
// rewriter share no state and are invoked independently; Filter itself is
// safe for concurrent use as long as its ModerationClient/RewriteClient/
// AuditSink are.
type Filter struct {
	Moderation       ModerationClient
	Rewriter         RewriteClient
	Audit            AuditSink // nil disables audit emission
	FallbackSentence string
}

// New builds a Filter. audit may be nil to disable audit emission (e.g. in
// tests that don't exercise persistence).
func New(moderation ModerationClient, rewriter RewriteClient, audit AuditSink, fallbackSentence string) *Filter {
	return &Filter{
		Moderation:       moderation,
		Rewriter:         rewriter,
		Audit:            audit,
		FallbackSentence: fallbackSentence,
	}
}

// Check delegates to the moderation client and emits a guardrail.check span.
// A moderation failure is treated as not-flagged (fail-open on telemetry);
// the failure is logged but never returned to the caller, since the speech
// path must not surface background errors (§7).
func (f *Filter) Check(ctx context.Context, text string) CheckResult {
	start := time.Now()
	result, err := f.Moderation.Check(ctx, text)
	elapsedMs := float64(time.Since(start).Milliseconds())

	if err != nil {
		telemetry.FromContext(ctx).Warn(ctx, "safety: moderation check failed, failing open", "error", err)
		result = CheckResult{Flagged: false}
	}

	telemetry.GuardrailCheck(ctx, len(text), result.Flagged, result.PeakScore, elapsedMs).End()
	return result
}

// Rewrite invokes the rewriter and emits a guardrail.rewrite span. On any
// rewriter error it returns the fixed fallback sentence instead (§4.1).
func (f *Filter) Rewrite(ctx context.Context, text string) string {
	start := time.Now()
	rewritten, err := f.Rewriter.Rewrite(ctx, text)
	elapsedMs := float64(time.Since(start).Milliseconds())

	if err != nil {
		telemetry.FromContext(ctx).Warn(ctx, "safety: rewrite failed, using fallback sentence", "error", err)
		rewritten = f.FallbackSentence
	}

	telemetry.GuardrailRewrite(ctx, len(text), len(rewritten), elapsedMs).End()
	return rewritten
}

// CheckAndRewrite calls Check; if not flagged it returns text unchanged.
// If flagged, it calls Rewrite, fires a safety-event audit record
// asynchronously (never blocking the speech path), and returns the
// rewritten text (§4.1).
func (f *Filter) CheckAndRewrite(ctx context.Context, text, sessionID, agentName string) string {
	result := f.Check(ctx, text)
	if !result.Flagged {
		return text
	}

	rewritten := f.Rewrite(ctx, text)
	telemetry.SafetyRewriteRecorded(ctx)

	if f.Audit != nil {
		event := SafetyEvent{
			SessionID:         sessionID,
			AgentName:         agentName,
			OriginalText:      text,
			RewrittenText:     rewritten,
			FlaggedCategories: categoryStrings(result.FlaggedCategories()),
			PeakScore:         result.PeakScore,
			Timestamp:         time.Now(),
		}
		logger := telemetry.FromContext(ctx)
		auditCtx := context.WithoutCancel(ctx)
		go func() {
			if err := f.Audit.RecordSafetyEvent(auditCtx, event); err != nil {
				logger.Warn(auditCtx, "safety: audit write failed", "error", err, "session_id", sessionID)
			}
		}()
	}

	return rewritten
}

func categoryStrings(cats []Category) []string {
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = string(c)
	}
	return out
}
