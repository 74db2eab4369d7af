// README: FIFO aging level tests.
package item

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"expo/internal/config"
)

func TestAgeLevelFor(t *testing.T) {
	f := config.FifoSettings{Enabled: true, WarnMinutes: 10, CriticalMinutes: 15}
	now := time.Now()

	assert.Equal(t, AgeOK, AgeLevelFor(now.Add(-5*time.Minute), now, f))
	assert.Equal(t, AgeWarn, AgeLevelFor(now.Add(-10*time.Minute), now, f))
	assert.Equal(t, AgeWarn, AgeLevelFor(now.Add(-14*time.Minute), now, f))
	assert.Equal(t, AgeCritical, AgeLevelFor(now.Add(-15*time.Minute), now, f))
}

func TestAgeLevelForDisabled(t *testing.T) {
	f := config.FifoSettings{Enabled: false, WarnMinutes: 10, CriticalMinutes: 15}
	now := time.Now()
	assert.Equal(t, AgeOK, AgeLevelFor(now.Add(-time.Hour), now, f))
}
