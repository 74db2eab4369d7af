// README: Operational settings (buffer tiers, urgency, oven, dispatch grace) loaded from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// VolumeTier maps a contiguous active-order count range to a buffer length.
// MaxOrders == 0 means unbounded (the top "9+" tier).
type VolumeTier struct {
	MinOrders int `yaml:"min_orders"`
	MaxOrders int `yaml:"max_orders"`
	Minutes   int `yaml:"minutes"`
}

type BufferSettings struct {
	Dynamic          bool           `yaml:"dynamic"`
	Tiers            []VolumeTier   `yaml:"tiers"`
	WeekdayMinutes   map[string]int `yaml:"weekday_minutes"`
	DefaultMinutes   int            `yaml:"default_minutes"`
	SafetyCapMinutes int            `yaml:"safety_cap_minutes"`
}

type UrgencySettings struct {
	Enabled          bool `yaml:"enabled"`
	ThresholdMinutes int  `yaml:"threshold_minutes"`
}

type OvenSettings struct {
	DefaultSeconds        int `yaml:"default_seconds"`
	AlertThresholdSeconds int `yaml:"alert_threshold_seconds"`
}

type DispatchSettings struct {
	GraceSeconds int `yaml:"grace_seconds"`
}

type FifoSettings struct {
	Enabled         bool `yaml:"enabled"`
	WarnMinutes     int  `yaml:"warn_minutes"`
	CriticalMinutes int  `yaml:"critical_minutes"`
}

type Settings struct {
	Buffer   BufferSettings   `yaml:"buffer"`
	Urgency  UrgencySettings  `yaml:"urgency"`
	Oven     OvenSettings     `yaml:"oven"`
	Dispatch DispatchSettings `yaml:"dispatch"`
	Fifo     FifoSettings     `yaml:"fifo"`
}

func DefaultSettings() Settings {
	return Settings{
		Buffer: BufferSettings{
			Dynamic:          false,
			DefaultMinutes:   5,
			SafetyCapMinutes: 10,
		},
		Urgency:  UrgencySettings{Enabled: true, ThresholdMinutes: 25},
		Oven:     OvenSettings{DefaultSeconds: 300, AlertThresholdSeconds: 10},
		Dispatch: DispatchSettings{GraceSeconds: 3},
		Fifo:     FifoSettings{Enabled: true, WarnMinutes: 10, CriticalMinutes: 15},
	}
}

// LoadSettings reads the YAML settings file; a missing file yields defaults.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

func (s Settings) Validate() error {
	if s.Buffer.SafetyCapMinutes <= 0 {
		return fmt.Errorf("buffer.safety_cap_minutes must be positive")
	}
	if s.Buffer.DefaultMinutes <= 0 {
		return fmt.Errorf("buffer.default_minutes must be positive")
	}
	for i, t := range s.Buffer.Tiers {
		if t.MinOrders < 1 || t.Minutes <= 0 {
			return fmt.Errorf("buffer.tiers[%d] invalid", i)
		}
		if t.MaxOrders != 0 && t.MaxOrders < t.MinOrders {
			return fmt.Errorf("buffer.tiers[%d] max_orders < min_orders", i)
		}
	}
	if s.Urgency.ThresholdMinutes <= 0 {
		return fmt.Errorf("urgency.threshold_minutes must be positive")
	}
	if s.Oven.DefaultSeconds <= 0 {
		return fmt.Errorf("oven.default_seconds must be positive")
	}
	if s.Dispatch.GraceSeconds < 0 {
		return fmt.Errorf("dispatch.grace_seconds must not be negative")
	}
	return nil
}

// Grace returns the safety-net grace window as a duration.
func (s DispatchSettings) Grace() time.Duration {
	return time.Duration(s.GraceSeconds) * time.Second
}

// WeekdayMinutesFor looks up the static buffer length for a weekday, falling
// back to the default when the day is not configured.
func (b BufferSettings) WeekdayMinutesFor(day time.Weekday) int {
	if m, ok := b.WeekdayMinutes[weekdayKey(day)]; ok && m > 0 {
		return m
	}
	return b.DefaultMinutes
}

func weekdayKey(day time.Weekday) string {
	switch day {
	case time.Monday:
		return "monday"
	case time.Tuesday:
		return "tuesday"
	case time.Wednesday:
		return "wednesday"
	case time.Thursday:
		return "thursday"
	case time.Friday:
		return "friday"
	case time.Saturday:
		return "saturday"
	default:
		return "sunday"
	}
}
