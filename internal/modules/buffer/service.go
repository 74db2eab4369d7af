// README: Buffer engine; batches waiting orders and releases them as one wave.
package buffer

import (
	"context"
	"errors"
	"log"
	"time"

	"expo/internal/config"
	"expo/internal/latch"
	"expo/internal/metrics"
	"expo/internal/modules/order"
	"expo/internal/notify"
	"expo/internal/realtime"
	"expo/internal/types"
)

var ErrEmptyBuffer = errors.New("buffer is empty")

// OrderReleaser is the slice of the order store the buffer engine needs.
type OrderReleaser interface {
	ListBuffered(ctx context.Context) ([]*order.Order, error)
	ActiveCount(ctx context.Context) (int, error)
	MoveToReady(ctx context.Context, ids []types.ID) (int, error)
	SetNotifyError(ctx context.Context, id types.ID, msg string) error
	ClearNotifyError(ctx context.Context, id types.ID) error
}

type Service struct {
	orders   OrderReleaser
	notifier notify.Notifier
	latch    latch.Latch
	pub      realtime.Publisher
	metrics  *metrics.Collector
	settings config.BufferSettings
}

func NewService(
	orders OrderReleaser,
	notifier notify.Notifier,
	lt latch.Latch,
	pub realtime.Publisher,
	m *metrics.Collector,
	settings config.BufferSettings,
) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if lt == nil {
		lt = latch.NewMemory()
	}
	if pub == nil {
		pub = realtime.NopPublisher{}
	}
	return &Service{
		orders:   orders,
		notifier: notifier,
		latch:    lt,
		pub:      pub,
		metrics:  m,
		settings: settings,
	}
}

// Run drives the countdown. A tick failure is logged and the loop continues;
// the timer must never crash the process.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Tick(ctx, time.Now()); err != nil {
				log.Printf("buffer: tick: %v", err)
			}
		}
	}
}

// Tick evaluates the current wave and releases it when expired.
func (s *Service) Tick(ctx context.Context, now time.Time) error {
	w, err := s.CurrentWave(ctx, now)
	if errors.Is(err, ErrEmptyBuffer) {
		if s.metrics != nil {
			s.metrics.SetBufferedOrders(0)
		}
		return nil
	}
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.SetBufferedOrders(len(w.OrderIDs))
	}
	if !w.Expired(now) {
		return nil
	}
	return s.release(ctx, w)
}

// DispatchNow is the manual override: same release path, same duplicate guard.
func (s *Service) DispatchNow(ctx context.Context) error {
	w, err := s.CurrentWave(ctx, time.Now())
	if err != nil {
		return err
	}
	return s.release(ctx, w)
}

// CurrentWave computes the shared countdown from the buffered set.
func (s *Service) CurrentWave(ctx context.Context, now time.Time) (Wave, error) {
	buffered, err := s.orders.ListBuffered(ctx)
	if err != nil {
		return Wave{}, err
	}
	if len(buffered) == 0 {
		return Wave{}, ErrEmptyBuffer
	}

	active, err := s.orders.ActiveCount(ctx)
	if err != nil {
		return Wave{}, err
	}

	oldest := buffered[0]
	anchorReady := oldest.CreatedAt
	if oldest.ReadyAt != nil {
		anchorReady = *oldest.ReadyAt
	}

	ids := make([]types.ID, len(buffered))
	for i, o := range buffered {
		ids[i] = o.ID
	}
	return Wave{
		AnchorID:      oldest.ID,
		AnchorReadyAt: anchorReady,
		Duration:      WaveDuration(active, now.Weekday(), s.settings),
		OrderIDs:      ids,
	}, nil
}

// release moves the whole wave to ready in one batch. The latch (keyed by the
// anchor order, so it resets exactly when the buffer's oldest order changes)
// suppresses duplicate firing between the tick and a manual click; the
// store-level status condition makes whichever loses a harmless no-op.
func (s *Service) release(ctx context.Context, w Wave) error {
	ok, err := s.latch.Acquire(ctx, "expo:buffer:wave:"+string(w.AnchorID))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	moved, err := s.orders.MoveToReady(ctx, w.OrderIDs)
	if err != nil {
		return err
	}
	if moved == 0 {
		return nil
	}
	if s.metrics != nil {
		s.metrics.RecordDispatchWave(moved)
		s.metrics.SetBufferedOrders(0)
	}
	s.pub.Publish(ctx, realtime.Change{Entity: "order"})

	// Notification failures never roll the release back.
	errs := s.notifier.OrdersReady(ctx, w.OrderIDs)
	failed := make(map[types.ID]string, len(errs))
	for _, e := range errs {
		failed[e.OrderID] = e.Message
		if s.metrics != nil {
			s.metrics.RecordNotifyFailure()
		}
	}
	for _, id := range w.OrderIDs {
		if msg, ok := failed[id]; ok {
			if err := s.orders.SetNotifyError(ctx, id, msg); err != nil {
				log.Printf("buffer: persist notify error for %s: %v", id, err)
			}
			continue
		}
		if err := s.orders.ClearNotifyError(ctx, id); err != nil {
			log.Printf("buffer: clear notify error for %s: %v", id, err)
		}
	}
	return nil
}
