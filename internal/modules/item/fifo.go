// README: FIFO aging levels for queue highlighting.
package item

import (
	"time"

	"expo/internal/config"
)

type AgeLevel string

const (
	AgeOK       AgeLevel = "ok"
	AgeWarn     AgeLevel = "warn"
	AgeCritical AgeLevel = "critical"
)

// AgeLevelFor grades how long an unfinished item has been sitting in the
// queue, so the tablets can highlight orders at risk of jumping the FIFO.
func AgeLevelFor(createdAt, now time.Time, f config.FifoSettings) AgeLevel {
	if !f.Enabled {
		return AgeOK
	}
	age := now.Sub(createdAt)
	if f.CriticalMinutes > 0 && age >= time.Duration(f.CriticalMinutes)*time.Minute {
		return AgeCritical
	}
	if f.WarnMinutes > 0 && age >= time.Duration(f.WarnMinutes)*time.Minute {
		return AgeWarn
	}
	return AgeOK
}
