package observability

import (
	"context"
	"time"
)

// Default latency thresholds above which an operation is reported as slow.
// Single-variable operations are expected to stay within one RPC round trip;
// batch, export, and import operations get a wider budget.
const (
	DefaultSlowSingle = 5 * time.Millisecond
	DefaultSlowBatch  = 30 * time.Millisecond
)

// Operation identifies one instrumented backend call.
type Operation struct {
	Name          string
	Backend       string
	SessionID     string
	SlowThreshold time.Duration
}

// Instrument runs fn and emits start/stop/exception events around it, tagged
// with the operation's session, backend, and name. A stop event is emitted on
// success, an exception event on failure; exceeding SlowThreshold emits an
// additional slow-operation warning without affecting the call's outcome.
func Instrument(ctx context.Context, obs Observer, op Operation, fn func(context.Context) error) error {
	if obs == nil {
		obs = NoOpObserver{}
	}

	start := time.Now()
	obs.OnEvent(ctx, Event{
		Type:      EventOperationStart,
		Level:     LevelVerbose,
		Timestamp: start,
		Source:    op.Backend,
		Data: map[string]any{
			"session_id": op.SessionID,
			"backend":    op.Backend,
			"operation":  op.Name,
		},
	})

	err := fn(ctx)
	duration := time.Since(start)

	if err != nil {
		obs.OnEvent(ctx, Event{
			Type:      EventOperationException,
			Level:     LevelError,
			Timestamp: time.Now(),
			Source:    op.Backend,
			Data: map[string]any{
				"session_id":  op.SessionID,
				"backend":     op.Backend,
				"operation":   op.Name,
				"duration_us": duration.Microseconds(),
				"error":       err.Error(),
			},
		})
	} else {
		obs.OnEvent(ctx, Event{
			Type:      EventOperationStop,
			Level:     LevelVerbose,
			Timestamp: time.Now(),
			Source:    op.Backend,
			Data: map[string]any{
				"session_id":  op.SessionID,
				"backend":     op.Backend,
				"operation":   op.Name,
				"duration_us": duration.Microseconds(),
				"status":      "ok",
			},
		})
	}

	if op.SlowThreshold > 0 && duration > op.SlowThreshold {
		obs.OnEvent(ctx, Event{
			Type:      EventOperationSlow,
			Level:     LevelWarning,
			Timestamp: time.Now(),
			Source:    op.Backend,
			Data: map[string]any{
				"session_id":   op.SessionID,
				"backend":      op.Backend,
				"operation":    op.Name,
				"duration_us":  duration.Microseconds(),
				"threshold_us": op.SlowThreshold.Microseconds(),
			},
		})
	}

	return err
}
