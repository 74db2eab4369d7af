package realtime

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncerCoalescesBurst(t *testing.T) {
	var fires atomic.Int32
	d := newDebouncer(20*time.Millisecond, func() { fires.Add(1) })
	defer d.Stop()

	for i := 0; i < 10; i++ {
		d.Trigger()
		time.Sleep(time.Millisecond)
	}

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), fires.Load(), "burst should coalesce into one fire")
}

func TestDebouncerFiresAgainAfterQuietWindow(t *testing.T) {
	var fires atomic.Int32
	d := newDebouncer(10*time.Millisecond, func() { fires.Add(1) })
	defer d.Stop()

	d.Trigger()
	time.Sleep(30 * time.Millisecond)
	d.Trigger()
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, int32(2), fires.Load())
}

func TestDebouncerStopCancelsPending(t *testing.T) {
	var fires atomic.Int32
	d := newDebouncer(20*time.Millisecond, func() { fires.Add(1) })

	d.Trigger()
	d.Stop()
	time.Sleep(40 * time.Millisecond)

	assert.Equal(t, int32(0), fires.Load())
}
