// README: Urgency bypass predicate; stale orders skip the buffer entirely.
package order

import (
	"time"

	"expo/internal/config"
)

// IsUrgent reports whether an order has aged past the configured threshold.
// Evaluated at the moment the last item completes: urgent orders route to
// individual dispatch instead of the buffer wave.
func IsUrgent(createdAt, now time.Time, s config.UrgencySettings) bool {
	if !s.Enabled {
		return false
	}
	age := now.Sub(createdAt)
	return age >= time.Duration(s.ThresholdMinutes)*time.Minute
}
