// Package compaction runs the scheduled maintenance pass that physically
// drops old tombstones from the local conversation. Deletion in the sync
// path is always tombstoning; this is the only place entries are really
// removed, and only once they are old enough that every replica should
// have seen the delete.
package compaction

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"chatsync/pkg/config"
	"chatsync/pkg/localstate"
	"chatsync/pkg/logger"
	"chatsync/pkg/metrics"
	"chatsync/pkg/timeutil"
)

const defaultPeriod = 30 * 24 * time.Hour

// Start starts the compaction scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, cfg config.CompactionConfig, st *localstate.State) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("compaction_disabled")
		return func() {}, nil
	}

	// map empty cron to default daily @03:00
	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = "0 3 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("compaction_invalid_cron", "cron", cfg.Cron)
		return nil, fmt.Errorf("invalid compaction cron expression: %s", cfg.Cron)
	}

	period := cfg.Period.Duration()
	if period <= 0 {
		period = defaultPeriod
	}

	logger.Info("compaction_enabled", "cron", cronExpr, "period", period.String(), "dry_run", cfg.DryRun)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cronExpr, period, cfg.DryRun, st)
	return cancel, nil
}

// runScheduler computes the next tick for the cron expression with gronx
// and sleeps until then.
func runScheduler(ctx context.Context, cronExpr string, period time.Duration, dryRun bool, st *localstate.State) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("compaction_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("compaction_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := RunOnce(st, period, dryRun); err != nil {
				logger.Error("compaction_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("compaction_scheduler_stopping")
			return
		}
	}
}

// RunOnce performs a single compaction pass. Exposed so an admin trigger
// or test can run it without the scheduler.
func RunOnce(st *localstate.State, period time.Duration, dryRun bool) error {
	cutoff := timeutil.NowMs() - period.Milliseconds()
	if dryRun {
		n := countExpired(st, cutoff)
		logger.Info("compaction_dry_run", "would_remove", n, "cutoff", cutoff)
		return nil
	}
	n, err := st.Compact(cutoff)
	if err != nil {
		return fmt.Errorf("compact tombstones: %w", err)
	}
	if n > 0 {
		metrics.TombstonesCompacted.Add(float64(n))
	}
	logger.Info("compaction_done", "removed", n, "cutoff", cutoff)
	return nil
}

func countExpired(st *localstate.State, cutoff int64) int {
	n := 0
	for _, m := range st.Messages() {
		if m.Deleted && m.EffectiveUpdate() < cutoff {
			n++
			continue
		}
		for _, p := range m.Parts {
			if p.Deleted && p.EffectiveUpdate() < cutoff {
				n++
			}
		}
	}
	return n
}
