// README: Oven board; per-item exit countdowns with a one-shot audible alert.
package oven

import (
	"context"
	"sync"
	"time"

	"expo/internal/config"
	"expo/internal/metrics"
	"expo/internal/modules/item"
	"expo/internal/types"
)

// ItemSource is the slice of the item module the oven board reads from.
type ItemSource interface {
	ListInOven(ctx context.Context) ([]*item.Item, error)
}

// Entry is one oven slot as rendered on the board. Alert is true on exactly
// one snapshot per oven cycle: the first one where the countdown crosses the
// alert threshold. The client plays the sound when it sees it; polling again
// must not replay it.
type Entry struct {
	ItemID           types.ID  `json:"item_id"`
	OrderID          types.ID  `json:"order_id"`
	Product          string    `json:"product"`
	Quantity         int       `json:"quantity"`
	EnteredAt        time.Time `json:"entered_at"`
	ExitAt           time.Time `json:"exit_at"`
	RemainingSeconds int       `json:"remaining_seconds"`
	Alert            bool      `json:"alert"`
}

type alertKey struct {
	itemID  types.ID
	entered int64
}

type Service struct {
	items    ItemSource
	metrics  *metrics.Collector
	settings config.OvenSettings

	mu      sync.Mutex
	alerted map[alertKey]bool
}

func NewService(items ItemSource, m *metrics.Collector, settings config.OvenSettings) *Service {
	return &Service{
		items:    items,
		metrics:  m,
		settings: settings,
		alerted:  make(map[alertKey]bool),
	}
}

// Snapshot returns the current oven board. Countdowns clamp at zero; an
// overdue item stays on the board until someone marks it ready.
func (s *Service) Snapshot(ctx context.Context, now time.Time) ([]Entry, error) {
	inOven, err := s.items.ListInOven(ctx)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.SetOvenItems(len(inOven))
	}
	return s.build(inOven, now), nil
}

func (s *Service) build(inOven []*item.Item, now time.Time) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(inOven))
	live := make(map[alertKey]bool, len(inOven))
	for _, it := range inOven {
		if it.OvenEntryAt == nil {
			continue
		}
		exit := it.OvenEntryAt.Add(time.Duration(s.settings.DefaultSeconds) * time.Second)
		if it.EstimatedExitAt != nil {
			exit = *it.EstimatedExitAt
		}
		remaining := int(exit.Sub(now).Seconds())
		if remaining < 0 {
			remaining = 0
		}

		// Keyed by entry time so a hypothetical second cycle alerts again.
		key := alertKey{itemID: it.ID, entered: it.OvenEntryAt.UnixNano()}
		live[key] = true
		alert := false
		if remaining <= s.settings.AlertThresholdSeconds && !s.alerted[key] {
			s.alerted[key] = true
			alert = true
		}

		entries = append(entries, Entry{
			ItemID:           it.ID,
			OrderID:          it.OrderID,
			Product:          it.Product,
			Quantity:         it.Quantity,
			EnteredAt:        *it.OvenEntryAt,
			ExitAt:           exit,
			RemainingSeconds: remaining,
			Alert:            alert,
		})
	}

	// Drop latches for items that left the oven.
	for key := range s.alerted {
		if !live[key] {
			delete(s.alerted, key)
		}
	}
	return entries
}
