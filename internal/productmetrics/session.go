package productmetrics

import (
	"context"
	"fmt"
)

// SessionKeyPrefix holds the open canvas metrics session per storage scope,
// so one canvas keeps one session across CLI invocations.
const SessionKeyPrefix = "srl-product-metrics-session-v1"

// CanvasSession returns the open session of the canvas in scope. The bool is
// true when the session was created by this call.
func (t *Tracker) CanvasSession(ctx context.Context, scope string) (string, bool, error) {
	key := SessionKeyPrefix + ":" + scope
	id, ok, err := t.kv.Get(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("read metrics session: %w", err)
	}
	if ok && id != "" {
		return id, false, nil
	}
	id = NewSessionID("canvas")
	if err := t.kv.Set(ctx, key, id); err != nil {
		return "", false, fmt.Errorf("write metrics session: %w", err)
	}
	return id, true, nil
}

// EndCanvasSession closes the session so the next canvas in scope opens a
// new one.
func (t *Tracker) EndCanvasSession(ctx context.Context, scope string) error {
	if err := t.kv.Delete(ctx, SessionKeyPrefix+":"+scope); err != nil {
		return fmt.Errorf("remove metrics session: %w", err)
	}
	return nil
}
