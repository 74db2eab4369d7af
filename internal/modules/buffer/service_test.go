// README: Buffer engine release tests against in-memory fakes.
package buffer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expo/internal/config"
	"expo/internal/latch"
	"expo/internal/modules/order"
	"expo/internal/notify"
	"expo/internal/types"
)

type fakeOrders struct {
	mu          sync.Mutex
	buffered    []*order.Order
	active      int
	moveCalls   [][]types.ID
	consume     bool // remove released orders from the buffered set
	notifyErrs  map[types.ID]string
	clearedErrs []types.ID
}

func (f *fakeOrders) ListBuffered(ctx context.Context) ([]*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*order.Order, len(f.buffered))
	copy(out, f.buffered)
	return out, nil
}

func (f *fakeOrders) ActiveCount(ctx context.Context) (int, error) {
	return f.active, nil
}

func (f *fakeOrders) MoveToReady(ctx context.Context, ids []types.ID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moveCalls = append(f.moveCalls, ids)
	moved := 0
	remaining := f.buffered[:0]
	for _, o := range f.buffered {
		released := false
		for _, id := range ids {
			if o.ID == id {
				released = true
				break
			}
		}
		if released {
			moved++
			if f.consume {
				continue
			}
		}
		remaining = append(remaining, o)
	}
	f.buffered = remaining
	return moved, nil
}

func (f *fakeOrders) SetNotifyError(ctx context.Context, id types.ID, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notifyErrs == nil {
		f.notifyErrs = map[types.ID]string{}
	}
	f.notifyErrs[id] = msg
	return nil
}

func (f *fakeOrders) ClearNotifyError(ctx context.Context, id types.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearedErrs = append(f.clearedErrs, id)
	return nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls [][]types.ID
	errs  []notify.OrderError
}

func (n *recordingNotifier) OrdersReady(ctx context.Context, ids []types.ID) []notify.OrderError {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, ids)
	return n.errs
}

func bufferedOrder(id types.ID, readyAt time.Time) *order.Order {
	return &order.Order{
		ID:        id,
		Status:    order.StatusWaitingBuffer,
		CreatedAt: readyAt.Add(-10 * time.Minute),
		ReadyAt:   &readyAt,
	}
}

func testBufferSettings() config.BufferSettings {
	return config.BufferSettings{DefaultMinutes: 5, SafetyCapMinutes: 10}
}

func TestReleaseMovesWholeWaveInOneBatch(t *testing.T) {
	t0 := time.Now().Add(-6 * time.Minute)
	fo := &fakeOrders{
		buffered: []*order.Order{
			bufferedOrder("o1", t0),
			bufferedOrder("o2", t0.Add(30*time.Second)),
		},
		active:  2,
		consume: true,
	}
	fn := &recordingNotifier{}
	svc := NewService(fo, fn, latch.NewMemory(), nil, nil, testBufferSettings())

	require.NoError(t, svc.Tick(context.Background(), time.Now()))

	require.Len(t, fo.moveCalls, 1, "one statement for the whole wave")
	assert.ElementsMatch(t, []types.ID{"o1", "o2"}, fo.moveCalls[0])
	require.Len(t, fn.calls, 1, "one notification for the whole wave")
	assert.ElementsMatch(t, []types.ID{"o1", "o2"}, fn.calls[0])
	assert.ElementsMatch(t, []types.ID{"o1", "o2"}, fo.clearedErrs)
}

func TestTickBeforeExpiryDoesNotRelease(t *testing.T) {
	now := time.Now()
	fo := &fakeOrders{
		buffered: []*order.Order{bufferedOrder("o1", now.Add(-time.Minute))},
		active:   1,
		consume:  true,
	}
	svc := NewService(fo, nil, latch.NewMemory(), nil, nil, testBufferSettings())

	require.NoError(t, svc.Tick(context.Background(), now))
	assert.Empty(t, fo.moveCalls)
}

func TestDispatchNowIgnoresRemainingTime(t *testing.T) {
	fo := &fakeOrders{
		buffered: []*order.Order{bufferedOrder("o1", time.Now())},
		active:   1,
		consume:  true,
	}
	svc := NewService(fo, nil, latch.NewMemory(), nil, nil, testBufferSettings())

	require.NoError(t, svc.DispatchNow(context.Background()))
	require.Len(t, fo.moveCalls, 1)
}

func TestDispatchNowEmptyBuffer(t *testing.T) {
	svc := NewService(&fakeOrders{}, nil, latch.NewMemory(), nil, nil, testBufferSettings())

	err := svc.DispatchNow(context.Background())
	assert.ErrorIs(t, err, ErrEmptyBuffer)
}

func TestDuplicateFireIsSuppressedByLatch(t *testing.T) {
	t0 := time.Now().Add(-6 * time.Minute)
	// consume=false simulates the race window where a second evaluator still
	// sees the wave before the batch update lands.
	fo := &fakeOrders{
		buffered: []*order.Order{bufferedOrder("o1", t0)},
		active:   1,
		consume:  false,
	}
	svc := NewService(fo, nil, latch.NewMemory(), nil, nil, testBufferSettings())

	now := time.Now()
	require.NoError(t, svc.Tick(context.Background(), now))
	require.NoError(t, svc.Tick(context.Background(), now))
	require.NoError(t, svc.DispatchNow(context.Background()))

	assert.Len(t, fo.moveCalls, 1, "latch keyed by the wave anchor admits one release")
}

func TestNotifyFailureIsPersistedPerOrder(t *testing.T) {
	t0 := time.Now().Add(-6 * time.Minute)
	fo := &fakeOrders{
		buffered: []*order.Order{
			bufferedOrder("o1", t0),
			bufferedOrder("o2", t0.Add(time.Second)),
		},
		active:  2,
		consume: true,
	}
	fn := &recordingNotifier{
		errs: []notify.OrderError{{OrderID: "o2", Message: "printer offline"}},
	}
	svc := NewService(fo, fn, latch.NewMemory(), nil, nil, testBufferSettings())

	require.NoError(t, svc.DispatchNow(context.Background()))

	assert.Equal(t, "printer offline", fo.notifyErrs["o2"])
	assert.Equal(t, []types.ID{"o1"}, fo.clearedErrs)
	// The release itself is not rolled back.
	require.Len(t, fo.moveCalls, 1)
}
