// README: Oven safety net; auto-dispatches a finished order when the master action never fires.
package order

import (
	"sync"
	"time"

	"expo/internal/types"
)

// safetyNet arms a one-shot timer per order when its oven block is done and no
// explicit master-ready arrives. Arming is idempotent (the original deadline
// stands); a change in the item set disarms it so the timer never fires
// against stale state.
type safetyNet struct {
	mu     sync.Mutex
	grace  time.Duration
	timers map[types.ID]*time.Timer
	fire   func(types.ID)
}

func newSafetyNet(grace time.Duration, fire func(types.ID)) *safetyNet {
	return &safetyNet{
		grace:  grace,
		timers: make(map[types.ID]*time.Timer),
		fire:   fire,
	}
}

func (n *safetyNet) Arm(id types.ID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, armed := n.timers[id]; armed {
		return
	}
	n.timers[id] = time.AfterFunc(n.grace, func() {
		n.mu.Lock()
		delete(n.timers, id)
		n.mu.Unlock()
		n.fire(id)
	})
}

func (n *safetyNet) Disarm(id types.ID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if t, ok := n.timers[id]; ok {
		t.Stop()
		delete(n.timers, id)
	}
}

func (n *safetyNet) Armed(id types.ID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.timers[id]
	return ok
}

func (n *safetyNet) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, t := range n.timers {
		t.Stop()
		delete(n.timers, id)
	}
}
