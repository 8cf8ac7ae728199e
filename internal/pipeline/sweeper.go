package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/model"
	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/store"
)

// Sweeper re-marks documents stuck in processing as failed. A document left
// in processing beyond MaxAge was orphaned by a crashed or cancelled worker.
type Sweeper struct {
	Store    store.Store
	Interval time.Duration
	MaxAge   time.Duration
}

func NewSweeper(s store.Store, interval, maxAge time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Sweeper{Store: s, Interval: interval, MaxAge: maxAge}
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				log.Printf("[sweeper] sweep failed: %v", err)
			}
		}
	}
}

// SweepOnce fails every document stuck in processing for longer than MaxAge.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.MaxAge)
	stuck, err := s.Store.ListStuckDocuments(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, doc := range stuck {
		failed := model.ExtractionFailed
		reason := "orphaned"
		now := time.Now().UTC()
		patch := store.DocumentPatch{
			ExtractionStatus: &failed,
			ProcessingError:  &reason,
			ProcessedAt:      &now,
		}
		if err := s.Store.PatchDocument(ctx, doc.ID, patch); err != nil {
			log.Printf("[sweeper] document %s: %v", doc.ID, err)
			continue
		}
		log.Printf("[sweeper] document %s: orphaned after %s in processing", doc.ID, s.MaxAge)
	}
	return nil
}
