// Package retention ages out usage records. A Janitor periodically finds
// records older than the retention window and archives and/or purges them.
//
// Modes:
//   - purge-only:        delete expired records (default without an archiver)
//   - archive-and-purge: archive, then delete only if archiving succeeded
//   - archive-only:      archive but keep the records
//
// Purged records drop out of the in-memory usage totals on the next start,
// when the ledger replays its sink.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/liammagee/six-authors-in-search-of-a-character/pkg/models"
	"github.com/rs/zerolog/log"
)

// DefaultInterval is how often a sweep runs when none is configured.
const DefaultInterval = time.Hour

// Mode selects what a sweep does with expired records.
type Mode string

const (
	ModePurgeOnly       Mode = "purge-only"
	ModeArchiveAndPurge Mode = "archive-and-purge"
	ModeArchiveOnly     Mode = "archive-only"
)

// Source is a usage store that can list and delete old records.
type Source interface {
	ExpiredBefore(ctx context.Context, cutoff time.Time) ([]models.UsageRecord, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Archiver writes expired records to durable storage and returns where.
type Archiver interface {
	Kind() string
	ArchiveUsage(ctx context.Context, recs []models.UsageRecord) (string, error)
}

// CycleStats tracks what happened in a single sweep.
type CycleStats struct {
	Expired  int
	Archived int
	Purged   int64
	Location string
}

// Janitor periodically archives and purges expired usage records.
type Janitor struct {
	source   Source
	archiver Archiver
	mode     Mode
	maxAge   time.Duration
	interval time.Duration
	now      func() time.Time
}

// NewJanitor creates a janitor for records older than maxAge. A nil archiver
// forces purge-only; a non-nil one defaults to archive-and-purge.
func NewJanitor(src Source, maxAge, interval time.Duration, archiver Archiver, mode Mode) *Janitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	switch {
	case archiver == nil:
		mode = ModePurgeOnly
	case mode == "":
		mode = ModeArchiveAndPurge
	}
	return &Janitor{
		source:   src,
		archiver: archiver,
		mode:     mode,
		maxAge:   maxAge,
		interval: interval,
		now:      time.Now,
	}
}

// WithClock replaces the janitor's time source.
func (j *Janitor) WithClock(now func() time.Time) *Janitor {
	j.now = now
	return j
}

// Start sweeps once immediately, then on every interval until ctx is done.
func (j *Janitor) Start(ctx context.Context) {
	log.Info().
		Dur("interval", j.interval).
		Dur("max_age", j.maxAge).
		Str("mode", string(j.mode)).
		Msg("🧹 Usage retention janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Usage retention janitor stopped")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	start := time.Now()
	stats, err := j.RunCycle(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Retention cycle failed")
		return
	}
	if stats.Expired > 0 {
		log.Info().
			Int("expired", stats.Expired).
			Int("archived", stats.Archived).
			Int64("purged", stats.Purged).
			Str("location", stats.Location).
			Dur("elapsed", time.Since(start)).
			Msg("Retention cycle complete")
	}
}

// RunCycle performs one sweep. Records are never purged when archiving
// was required and failed.
func (j *Janitor) RunCycle(ctx context.Context) (CycleStats, error) {
	var stats CycleStats
	cutoff := j.now().Add(-j.maxAge)

	expired, err := j.source.ExpiredBefore(ctx, cutoff)
	if err != nil {
		return stats, fmt.Errorf("find expired usage: %w", err)
	}
	stats.Expired = len(expired)
	if len(expired) == 0 {
		return stats, nil
	}

	if j.mode != ModePurgeOnly {
		loc, err := j.archiver.ArchiveUsage(ctx, expired)
		if err != nil {
			return stats, fmt.Errorf("archive usage to %s: %w", j.archiver.Kind(), err)
		}
		stats.Archived = len(expired)
		stats.Location = loc
	}
	if j.mode == ModeArchiveOnly {
		return stats, nil
	}

	n, err := j.source.PurgeBefore(ctx, cutoff)
	if err != nil {
		return stats, err
	}
	stats.Purged = n
	return stats, nil
}
