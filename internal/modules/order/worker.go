// README: Background maintenance for the order pool.
package order

import (
	"context"
	"time"

	"taxihub/internal/logger"
)

// PromoteScheduled moves scheduled orders whose pickup time is inside the
// lead window into the live pool. Returns how many orders were promoted.
func (s *Service) PromoteScheduled(ctx context.Context) (int, error) {
	due, err := s.store.ListScheduledDue(ctx, s.now().Add(scheduledLeadWindow))
	if err != nil {
		return 0, err
	}
	promoted := 0
	for _, o := range due {
		ok, err := s.store.UpdateStatus(ctx, o.ID, StatusScheduled, StatusRequested, o.StatusVersion)
		if err != nil {
			return promoted, err
		}
		if !ok {
			continue // raced with a cancellation
		}
		s.appendEvent(ctx, o.ID, StatusScheduled, StatusRequested, "system", nil)
		s.notify(ctx, o, BroadcastAdd)
		promoted++
	}
	return promoted, nil
}

// ExpireUnaccepted cancels orders that have been sitting in the pool without
// a driver for longer than maxAge.
func (s *Service) ExpireUnaccepted(ctx context.Context, maxAge time.Duration) (int, error) {
	stale, err := s.store.ListUnacceptedBefore(ctx, s.now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, o := range stale {
		ok, err := s.store.CancelOrder(ctx, o.ID, o.Status, o.StatusVersion, "no driver accepted in time", "system")
		if err != nil {
			return expired, err
		}
		if !ok {
			continue // someone accepted or cancelled meanwhile
		}
		s.appendEvent(ctx, o.ID, o.Status, StatusCancelled, "system", nil)
		s.notify(ctx, o, BroadcastRemove)
		expired++
	}
	return expired, nil
}

// Monitor runs the order maintenance passes on a fixed interval.
type Monitor struct {
	svc          *Service
	interval     time.Duration
	offerTimeout time.Duration
	log          logger.ILogger
}

func NewMonitor(svc *Service, interval, offerTimeout time.Duration, log logger.ILogger) *Monitor {
	if log == nil {
		log = logger.Nop()
	}
	return &Monitor{svc: svc, interval: interval, offerTimeout: offerTimeout, log: log}
}

// Run blocks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("order monitor stopped")
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	if n, err := m.svc.PromoteScheduled(ctx); err != nil {
		m.log.Error("promote scheduled orders", logger.Error(err))
	} else if n > 0 {
		m.log.Info("scheduled orders promoted", logger.Int("count", n))
	}

	if n, err := m.svc.ExpireUnaccepted(ctx, m.offerTimeout); err != nil {
		m.log.Error("expire unaccepted orders", logger.Error(err))
	} else if n > 0 {
		m.log.Info("stale orders cancelled", logger.Int("count", n))
	}
}
