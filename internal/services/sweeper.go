package services

import (
	"context"
	"time"

	"marketplace-api/internal/database"
	"marketplace-api/pkg/logging"

	"gorm.io/gorm"
)

// Sweeper periodically clears expired offers and payment links. Every
// state-changing path checks expiry itself, so a late sweep changes nothing
// observable.
type Sweeper struct {
	db       *gorm.DB
	interval time.Duration
	now      Clock
}

// NewSweeper creates a sweeper running every interval
func NewSweeper(db *gorm.DB, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Sweeper{db: db, interval: interval, now: systemClock}
}

// SetClock replaces the time source
func (s *Sweeper) SetClock(clock Clock) {
	s.now = clock
}

// Start runs the sweep loop until ctx is cancelled
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, _, err := s.RunOnce(ctx); err != nil {
				logging.Errorf("Expiry sweep failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce performs one sweep and reports how many offers and payments it expired
func (s *Sweeper) RunOnce(ctx context.Context) (int64, int64, error) {
	db := s.db.WithContext(ctx)
	now := s.now()

	offers, err := database.PurgeExpiredOffers(db, now)
	if err != nil {
		return 0, 0, err
	}
	payments, err := database.ExpireOpenPayments(db, now)
	if err != nil {
		return offers, 0, err
	}

	if offers > 0 || payments > 0 {
		logging.Infof("Expiry sweep: removed %d offers, expired %d payments", offers, payments)
	}
	return offers, payments, nil
}
