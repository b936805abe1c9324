// Package usage records token usage for successful completions.
// Only counts are kept; message content never reaches the ledger.
package usage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/liammagee/six-authors-in-search-of-a-character/pkg/models"
	"github.com/rs/zerolog/log"
)

// Sink durably stores usage records.
type Sink interface {
	Write(ctx context.Context, rec models.UsageRecord) error
	Load(ctx context.Context) ([]models.UsageRecord, error)
	Close() error
}

// Ledger aggregates usage in memory and forwards records to an optional sink.
type Ledger struct {
	mu     sync.RWMutex
	totals *models.UsageSummary
	byKey  map[models.ConversationKey]*models.UsageSummary
	sink   Sink
	now    func() time.Time
}

// NewLedger creates a ledger. When sink is non-nil its records are replayed
// into the in-memory totals.
func NewLedger(ctx context.Context, sink Sink) (*Ledger, error) {
	l := &Ledger{
		totals: models.NewUsageSummary(),
		byKey:  make(map[models.ConversationKey]*models.UsageSummary),
		sink:   sink,
		now:    time.Now,
	}
	if sink == nil {
		return l, nil
	}
	recs, err := sink.Load(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		l.add(rec)
	}
	log.Info().Int("records", len(recs)).Msg("📊 Usage ledger restored")
	return l, nil
}

// Record adds one completion. Sink failures are logged, not returned: the
// chat reply has already been produced.
func (l *Ledger) Record(ctx context.Context, rec models.UsageRecord) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = l.now().UTC()
	}

	l.mu.Lock()
	l.add(rec)
	l.mu.Unlock()

	if l.sink != nil {
		if err := l.sink.Write(ctx, rec); err != nil {
			log.Warn().Err(err).Str("key", string(rec.Key)).Msg("Failed to write usage record")
		}
	}
}

func (l *Ledger) add(rec models.UsageRecord) {
	addTo(l.totals, rec)
	s, ok := l.byKey[rec.Key]
	if !ok {
		s = models.NewUsageSummary()
		l.byKey[rec.Key] = s
	}
	addTo(s, rec)
}

func addTo(s *models.UsageSummary, rec models.UsageRecord) {
	s.Requests++
	s.TotalTokens += int64(rec.Tokens)
	s.ByProvider[rec.Provider] += int64(rec.Tokens)
	s.ByModel[rec.Model] += int64(rec.Tokens)
}

// Summary returns a copy of the usage for key.
func (l *Ledger) Summary(key models.ConversationKey) *models.UsageSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.byKey[key]
	if !ok {
		return models.NewUsageSummary()
	}
	return clone(s)
}

// Totals returns a copy of the usage across every conversation.
func (l *Ledger) Totals() *models.UsageSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return clone(l.totals)
}

// Close closes the sink, if any.
func (l *Ledger) Close() error {
	if l.sink == nil {
		return nil
	}
	return l.sink.Close()
}

func clone(s *models.UsageSummary) *models.UsageSummary {
	out := models.NewUsageSummary()
	out.Requests = s.Requests
	out.TotalTokens = s.TotalTokens
	for k, v := range s.ByProvider {
		out.ByProvider[k] = v
	}
	for k, v := range s.ByModel {
		out.ByModel[k] = v
	}
	return out
}
