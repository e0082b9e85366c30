// Package retention purges settled friend requests on a cron schedule.
// Messages and friendships are kept forever; only the request ledger is
// trimmed, since settled rows carry no state the friend edges do not.
package retention

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"chatrelay/pkg/config"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/store"
)

const defaultCron = "0 2 * * *"

// Start starts the purge scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, eff config.EffectiveConfigResult) (context.CancelFunc, error) {
	ret := eff.Config.Retention
	if !ret.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}

	cronExpr := ret.Cron
	if cronExpr == "" {
		cronExpr = defaultCron
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", ret.Cron)
		return nil, fmt.Errorf("invalid retention cron expression: %s", ret.Cron)
	}
	period, err := ParsePeriod(ret.Period)
	if err != nil {
		return nil, err
	}

	logger.Info("retention_enabled", "cron", cronExpr, "period", period, "dry_run", ret.DryRun)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, ret, cronExpr, period)
	return cancel, nil
}

// ParsePeriod parses a retention period. Accepts time.ParseDuration syntax
// plus a day suffix ("30d"). Empty means 30 days.
func ParsePeriod(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 30 * 24 * time.Hour, nil
	}
	if strings.HasSuffix(raw, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(raw, "d"))
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid retention period: %s", raw)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid retention period: %s", raw)
	}
	return d, nil
}

// runScheduler computes the next tick with gronx and sleeps until then.
func runScheduler(ctx context.Context, ret config.RetentionConfig, cronExpr string, period time.Duration) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := RunOnce(ret, period); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}

// RunOnce deletes settled friend requests older than the period. At most
// BatchSize rows are removed per run so a large backlog drains gradually.
func RunOnce(ret config.RetentionConfig, period time.Duration) error {
	cutoff := time.Now().UTC().Add(-period)
	settled, err := store.ListSettledRequestsBefore(cutoff)
	if err != nil {
		return err
	}
	batch := ret.BatchSize
	if batch <= 0 {
		batch = 1000
	}
	if len(settled) > batch {
		settled = settled[:batch]
	}

	if ret.DryRun {
		logger.Info("retention_dry_run", "would_delete", len(settled), "cutoff", cutoff)
		return nil
	}
	deleted := 0
	for _, fr := range settled {
		if err := store.DeleteFriendRequest(fr.ReceiverID, fr.RequestID); err != nil {
			logger.Error("retention_delete_failed", "request", fr.RequestID, "error", err)
			continue
		}
		deleted++
	}
	logger.Info("retention_run_complete", "deleted", deleted, "cutoff", cutoff)
	return nil
}
