package services

import (
	"context"
	"time"

	"github.com/otpeak/otp-service/internal/logging"
	"go.uber.org/zap"
)

// Purger removes expired unverified records
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// CleanupSweeper periodically purges expired unverified OTP records. The TTL
// index is the backstop; the sweeper keeps the collection tight between
// Mongo's own expiry passes and backs the manual cleanup endpoint.
type CleanupSweeper struct {
	purger   Purger
	interval time.Duration
	done     chan struct{}
}

// NewCleanupSweeper creates a sweeper and starts its background loop
func NewCleanupSweeper(purger Purger, interval time.Duration) *CleanupSweeper {
	s := &CleanupSweeper{
		purger:   purger,
		interval: interval,
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *CleanupSweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(context.Background()); err != nil {
				logging.Logger.Error("OTP cleanup sweep failed", zap.Error(err))
			}
		case <-s.done:
			return
		}
	}
}

// RunOnce executes a single purge pass and returns the number of records removed
func (s *CleanupSweeper) RunOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	removed, err := s.purger.PurgeExpired(ctx)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		logging.Logger.Info("purged expired OTP records", zap.Int64("removed", removed))
	}
	return removed, nil
}

// Stop terminates the background loop
func (s *CleanupSweeper) Stop() {
	close(s.done)
}
