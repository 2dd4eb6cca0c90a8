package convstore

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/adhocore/gronx"
)

// systemContextKey stores process-wide launch/cleanup bookkeeping as an
// ordinary conversation record under a reserved key, reusing
// GetOrCreate/IncrementLaunch/SetSetting rather than adding a second
// keyspace to the persisted schema for a single counter.
const systemContextKey = "system:launches"

// RunStartupCleanup records a launch event and, if policy says enough time
// or launches have elapsed since the last cleanup, deletes stale
// conversation messages and prunes old rate-limit events (spec §4.5).
func (s *Store) RunStartupCleanup(ctx context.Context, retainDays int) error {
	rec, err := s.db.GetOrCreate(ctx, systemContextKey)
	if err != nil {
		return err
	}
	launchCount, err := s.db.IncrementLaunch(ctx, systemContextKey)
	if err != nil {
		return err
	}

	settings, err := s.db.GetSettings(ctx, systemContextKey)
	if err != nil {
		return err
	}
	lastCleanupLaunch, _ := strconv.Atoi(settings["last_cleanup_launch"])
	lastCleanupAt := rec.ModeratedUntil // reused field: last cleanup timestamp, not a real moderation

	due := false
	switch s.cleanupPolicy.Method {
	case "launches":
		due = launchCount-lastCleanupLaunch > s.cleanupPolicy.Threshold
	case "days":
		due = lastCleanupAt.IsZero() || time.Since(lastCleanupAt) > time.Duration(s.cleanupPolicy.Threshold)*24*time.Hour
	case "cron":
		return nil // handled by RunCronCleanup's own ticker, not at startup
	default:
		return nil
	}
	if !due {
		return nil
	}

	if err := s.purgeStale(ctx, retainDays); err != nil {
		return err
	}
	s.rateLimiter.PruneOlderThan(time.Hour)

	if err := s.db.SetSetting(ctx, systemContextKey, "last_cleanup_launch", strconv.Itoa(launchCount)); err != nil {
		return err
	}
	return s.db.SetModeration(ctx, systemContextKey, time.Now())
}

// RunCronCleanup runs purgeStale every time s.cleanupPolicy.Schedule comes
// due, until ctx is canceled. Use this instead of (or alongside)
// RunStartupCleanup when operators want cleanup on a wall-clock schedule
// rather than tied to process restarts.
func (s *Store) RunCronCleanup(ctx context.Context, retainDays int, logger *slog.Logger) {
	expr := gronx.New()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			due, err := expr.IsDue(s.cleanupPolicy.Schedule)
			if err != nil {
				logger.Warn("invalid auto-clean cron schedule", "schedule", s.cleanupPolicy.Schedule, "error", err)
				return
			}
			if !due {
				continue
			}
			if err := s.purgeStale(ctx, retainDays); err != nil {
				logger.Error("scheduled conversation cleanup failed", "error", err)
				continue
			}
			s.rateLimiter.PruneOlderThan(time.Hour)
		}
	}
}

// purgeStale deletes every conversation whose last activity predates
// retainDays, matching spec §4.5's "deletes conversation messages older
// than retain_days".
func (s *Store) purgeStale(ctx context.Context, retainDays int) error {
	cutoff := time.Now().Add(-time.Duration(retainDays) * 24 * time.Hour)
	stale, err := s.db.ListStale(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, key := range stale {
		if key == systemContextKey {
			continue
		}
		if err := s.db.Clear(ctx, key); err != nil {
			return err
		}
	}
	return nil
}
