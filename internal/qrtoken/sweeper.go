package qrtoken

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// Sweeper periodically rotates corporate card QR tokens so leaked or
// screenshotted codes age out on a bounded schedule.
type Sweeper struct {
	manager  *Manager
	interval time.Duration
	ttl      time.Duration
}

// NewSweeper constructs a Sweeper. Returns nil when interval is not
// positive, which disables the sweep.
func NewSweeper(manager *Manager, interval, ttl time.Duration) *Sweeper {
	if manager == nil || interval <= 0 || ttl <= 0 {
		return nil
	}
	return &Sweeper{manager: manager, interval: interval, ttl: ttl}
}

// Start launches the sweep loop in a background goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	if s == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go s.run(ctx)
	log.Infof("qr rotation sweeper started (interval=%s ttl=%s)", s.interval, s.ttl)
}

func (s *Sweeper) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		s.sweepOnce(ctx)
		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	rotated, errRotate := s.manager.BatchRotate(ctx, s.ttl)
	if errRotate != nil {
		log.Errorf("qr rotation sweep failed: %v", errRotate)
		return
	}
	if rotated > 0 {
		log.Infof("qr rotation sweep rotated %d cards", rotated)
	}
}
