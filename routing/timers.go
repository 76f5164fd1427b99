package routing

import (
	"context"
	"sync"
	"time"

	"github.com/brightclass/voicetutor/telemetry"
)

// startDrain schedules the drain task: sleep DrainDelay so the outgoing
// agent's transition sentence finishes, then gracefully close the pipeline
// session. A WatchdogTimeout fallback guarantees close even if the drain
// task is lost (§4.4). Close is called at most once.
func (c *Controller) startDrain(ctx context.Context) {
	if c.Close == nil {
		return
	}

	var once sync.Once
	closeOnce := func(reason string) {
		once.Do(func() {
			closeCtx := context.WithoutCancel(ctx)
			if err := c.Close.Close(closeCtx); err != nil {
				telemetry.FromContext(closeCtx).Warn(closeCtx, "routing: pipeline session close failed", "error", err, "reason", reason, "session_id", c.Session.SessionID)
			}
		})
	}

	go func() {
		select {
		case <-time.After(c.DrainDelay):
			closeOnce("drain")
		case <-time.After(c.WatchdogTimeout):
			closeOnce("watchdog")
		}
	}()
}
