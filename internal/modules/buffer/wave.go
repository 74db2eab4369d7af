// README: Wave computation; shared countdown anchored at the oldest buffered order.
package buffer

import (
	"time"

	"expo/internal/config"
	"expo/internal/types"
)

// Wave is the computed dispatch group: every order currently in
// waiting_buffer, expiring together on one shared countdown. The anchor is
// the oldest ready_at; orders joining mid-wave do not restart the timer.
type Wave struct {
	AnchorID      types.ID
	AnchorReadyAt time.Time
	Duration      time.Duration
	OrderIDs      []types.ID
}

func (w Wave) ExpiresAt() time.Time {
	return w.AnchorReadyAt.Add(w.Duration)
}

func (w Wave) Remaining(now time.Time) time.Duration {
	r := w.ExpiresAt().Sub(now)
	if r < 0 {
		return 0
	}
	return r
}

func (w Wave) Expired(now time.Time) bool {
	return !now.Before(w.ExpiresAt())
}

// WaveDuration selects the buffer length: dynamic volume tier first, then the
// weekday static value, then the global default. The safety cap always wins —
// freshness over grouping.
func WaveDuration(activeOrders int, day time.Weekday, b config.BufferSettings) time.Duration {
	minutes := 0
	if b.Dynamic {
		minutes = tierMinutes(activeOrders, b.Tiers)
	}
	if minutes == 0 {
		minutes = b.WeekdayMinutesFor(day)
	}
	if minutes == 0 {
		minutes = b.DefaultMinutes
	}
	if b.SafetyCapMinutes > 0 && minutes > b.SafetyCapMinutes {
		minutes = b.SafetyCapMinutes
	}
	return time.Duration(minutes) * time.Minute
}

func tierMinutes(active int, tiers []config.VolumeTier) int {
	for _, t := range tiers {
		if active < t.MinOrders {
			continue
		}
		if t.MaxOrders == 0 || active <= t.MaxOrders {
			return t.Minutes
		}
	}
	return 0
}
