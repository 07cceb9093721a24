// Package janitor runs a cron-scheduled sweep that flips sessions inactive
// once their lastSeenAt falls outside the configured idle window. Nothing
// is ever deleted; the sweep only corrects the active flag for tabs that
// vanished without a clean disconnect.
package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"annotated/pkg/logger"
	"annotated/pkg/store"
)

const defaultCron = "* * * * *"

// ConnectionChecker reports whether a session currently holds a live
// socket; such sessions are never swept regardless of lastSeenAt.
type ConnectionChecker interface {
	HasConnection(sessionID string) bool
}

// Config controls the sweep schedule and idle window.
type Config struct {
	Cron      string
	IdleAfter time.Duration
}

// Start validates the cron expression and launches the scheduler
// goroutine. It returns a cancel func stopping the scheduler.
func Start(ctx context.Context, st *store.Store, conns ConnectionChecker, cfg Config) (context.CancelFunc, error) {
	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = defaultCron
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid janitor cron expression: %s", cfg.Cron)
	}
	if cfg.IdleAfter <= 0 {
		cfg.IdleAfter = 10 * time.Minute
	}
	logger.Info("janitor_enabled", "cron", cronExpr, "idle_after", cfg.IdleAfter.String())

	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, st, conns, cfg, cronExpr)
	return cancel, nil
}

// runScheduler computes the next cron tick with gronx and sleeps until it,
// yielding sharp scheduling with full cron syntax.
func runScheduler(ctx context.Context, st *store.Store, conns ConnectionChecker, cfg Config, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("janitor_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("janitor_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := RunOnce(st, conns, cfg.IdleAfter); err != nil {
				logger.Error("janitor_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("janitor_stopping")
			return
		}
	}
}

// RunOnce performs a single sweep. Exported so tests and admin triggers
// can invoke it on demand.
func RunOnce(st *store.Store, conns ConnectionChecker, idleAfter time.Duration) error {
	sessions, err := st.ListSessions()
	if err != nil {
		return err
	}
	cutoff := time.Now().UTC().Add(-idleAfter)
	swept := 0
	for _, sess := range sessions {
		if !sess.Active {
			continue
		}
		if conns != nil && conns.HasConnection(sess.ID) {
			continue
		}
		last, err := time.Parse(time.RFC3339, sess.LastSeenAt)
		if err != nil {
			logger.Warn("janitor_bad_timestamp", "session", sess.ID, "lastSeenAt", sess.LastSeenAt)
			continue
		}
		if last.After(cutoff) {
			continue
		}
		inactive := false
		if _, err := st.UpdateSession(sess.ID, store.SessionPatch{Active: &inactive}); err != nil {
			logger.Warn("janitor_sweep_failed", "session", sess.ID, "error", err)
			continue
		}
		swept++
	}
	if swept > 0 {
		logger.Info("janitor_swept", "count", swept)
	}
	return nil
}
