package hitl

import (
	"context"
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"

	"github.com/brightclass/voicetutor/telemetry"
)

const defaultTokenTTL = time.Hour

func init() {
	Register("livekit", newLiveKitManager)
}

// liveKitManager mints a room-join access token scoped to the teacher
// identity and, if configured, persists the escalation (§6).
type liveKitManager struct {
	apiKey, apiSecret string
	ttl               time.Duration
	store             EscalationStore
}

func newLiveKitManager(cfg Config) (Manager, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("hitl: livekit manager requires api key and secret")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &liveKitManager{apiKey: cfg.APIKey, apiSecret: cfg.APISecret, ttl: ttl, store: cfg.Store}, nil
}

// RequestEscalation mints a teacher-side join token for roomName and
// records the escalation event. A persistence failure is logged and
// swallowed (§4.4: "if the escalation store write fails ... the failure is
// logged; the student's session continues") — it never invalidates the
// freshly minted token.
func (m *liveKitManager) RequestEscalation(ctx context.Context, sessionID, roomName, reason string) (string, error) {
	grant := &auth.VideoGrant{RoomJoin: true, Room: roomName}
	token, err := auth.NewAccessToken(m.apiKey, m.apiSecret).
		AddGrant(grant).
		SetIdentity("teacher-" + sessionID).
		SetValidFor(m.ttl).
		ToJWT()
	if err != nil {
		return "", fmt.Errorf("hitl: mint teacher join token: %w", err)
	}

	if m.store != nil {
		if err := m.store.RecordEscalation(ctx, sessionID, roomName, reason, token, time.Now()); err != nil {
			telemetry.FromContext(ctx).Warn(ctx, "hitl: escalation store write failed", "error", err, "session_id", sessionID)
		}
	}

	return token, nil
}
