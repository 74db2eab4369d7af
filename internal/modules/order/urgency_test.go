// README: Urgency bypass predicate tests.
package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"expo/internal/config"
)

func TestIsUrgent(t *testing.T) {
	now := time.Date(2025, 3, 14, 19, 30, 0, 0, time.UTC)
	settings := config.UrgencySettings{Enabled: true, ThresholdMinutes: 25}

	cases := []struct {
		name string
		age  time.Duration
		want bool
	}{
		{"fresh order", 2 * time.Minute, false},
		{"just under threshold", 24*time.Minute + 59*time.Second, false},
		{"exactly at threshold", 25 * time.Minute, true},
		{"well past threshold", 40 * time.Minute, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := IsUrgent(now.Add(-tc.age), now, settings)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestIsUrgentDisabled(t *testing.T) {
	now := time.Now()
	settings := config.UrgencySettings{Enabled: false, ThresholdMinutes: 25}
	assert.False(t, IsUrgent(now.Add(-2*time.Hour), now, settings),
		"bypass disabled: even very old orders route through the buffer")
}
