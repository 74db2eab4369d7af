// README: Safety-net armer tests (no database).
package order

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"expo/internal/types"
)

type fireRecorder struct {
	mu    sync.Mutex
	fired []types.ID
}

func (r *fireRecorder) fire(id types.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, id)
}

func (r *fireRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fired)
}

func TestSafetyNetFiresAfterGrace(t *testing.T) {
	rec := &fireRecorder{}
	n := newSafetyNet(20*time.Millisecond, rec.fire)
	defer n.Stop()

	n.Arm("o1")
	assert.True(t, n.Armed("o1"))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
	assert.False(t, n.Armed("o1"), "timer clears itself after firing")
}

func TestSafetyNetRearmDoesNotExtendDeadline(t *testing.T) {
	rec := &fireRecorder{}
	n := newSafetyNet(30*time.Millisecond, rec.fire)
	defer n.Stop()

	n.Arm("o1")
	// Redundant re-evaluations while the condition still holds.
	time.Sleep(10 * time.Millisecond)
	n.Arm("o1")
	time.Sleep(10 * time.Millisecond)
	n.Arm("o1")

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, rec.count(), "one deadline, one fire")
}

func TestSafetyNetDisarm(t *testing.T) {
	rec := &fireRecorder{}
	n := newSafetyNet(20*time.Millisecond, rec.fire)
	defer n.Stop()

	n.Arm("o1")
	n.Disarm("o1")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, rec.count(), "disarmed timers must not fire against stale state")
}

func TestSafetyNetStopCancelsAll(t *testing.T) {
	rec := &fireRecorder{}
	n := newSafetyNet(20*time.Millisecond, rec.fire)

	n.Arm("o1")
	n.Arm("o2")
	n.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
}
