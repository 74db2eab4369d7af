// README: Item state machine; claim/release/oven/ready transitions and their guards.
package item

import (
	"context"
	"errors"

	"expo/internal/metrics"
	"expo/internal/realtime"
	"expo/internal/types"
)

var (
	ErrClaimConflict      = errors.New("item already claimed")
	ErrNotClaimedByCaller = errors.New("item not claimed by caller")
	ErrInvalidState       = errors.New("invalid item state transition")
	ErrNotFound           = errors.New("item not found")
	ErrConflict           = errors.New("item state conflict")
	ErrBadRequest         = errors.New("bad request")
)

// Aggregator re-evaluates order-level status whenever an item changes.
// Implemented by the order service; calls must tolerate redundant invocation.
type Aggregator interface {
	ItemChanged(ctx context.Context, orderID types.ID)
}

type Service struct {
	store       *Store
	agg         Aggregator
	pub         realtime.Publisher
	metrics     *metrics.Collector
	defaultOven int
}

func NewService(store *Store, agg Aggregator, pub realtime.Publisher, m *metrics.Collector, defaultOvenSeconds int) *Service {
	if pub == nil {
		pub = realtime.NopPublisher{}
	}
	return &Service{store: store, agg: agg, pub: pub, metrics: m, defaultOven: defaultOvenSeconds}
}

type ClaimCommand struct {
	ItemID     types.ID
	OperatorID types.ID
}

type ReleaseCommand struct {
	ItemID     types.ID
	OperatorID types.ID
}

type OvenCommand struct {
	ItemID      types.ID
	OperatorID  types.ID
	OvenSeconds int
}

type ReadyCommand struct {
	ItemID types.ID
}

type ReadyResult struct {
	AlreadyReady bool
}

// Claim moves pending → in_prep for exactly one operator. Losers of the race
// get ErrClaimConflict; the caller refreshes and lets the operator retry.
func (s *Service) Claim(ctx context.Context, cmd ClaimCommand) error {
	if cmd.ItemID == "" || cmd.OperatorID == "" {
		return ErrBadRequest
	}
	ok, err := s.store.Claim(ctx, cmd.ItemID, cmd.OperatorID)
	if err != nil {
		return err
	}
	if !ok {
		if _, err := s.store.Get(ctx, cmd.ItemID); err != nil {
			return err
		}
		if s.metrics != nil {
			s.metrics.RecordClaimConflict()
		}
		return ErrClaimConflict
	}
	s.publish(ctx, cmd.ItemID)
	return nil
}

// Release returns a claimed item to the shared pool. No cooldown: any
// operator may reclaim immediately.
func (s *Service) Release(ctx context.Context, cmd ReleaseCommand) error {
	if cmd.ItemID == "" || cmd.OperatorID == "" {
		return ErrBadRequest
	}
	ok, err := s.store.Release(ctx, cmd.ItemID, cmd.OperatorID)
	if err != nil {
		return err
	}
	if !ok {
		if _, err := s.store.Get(ctx, cmd.ItemID); err != nil {
			return err
		}
		return ErrNotClaimedByCaller
	}
	s.publish(ctx, cmd.ItemID)
	return nil
}

// SendToOven is one-way; there is no pull-back operation.
func (s *Service) SendToOven(ctx context.Context, cmd OvenCommand) error {
	if cmd.ItemID == "" || cmd.OperatorID == "" {
		return ErrBadRequest
	}
	secs := cmd.OvenSeconds
	if secs <= 0 {
		secs = s.defaultOven
	}
	ok, err := s.store.SendToOven(ctx, cmd.ItemID, cmd.OperatorID, secs)
	if err != nil {
		return err
	}
	if !ok {
		if _, err := s.store.Get(ctx, cmd.ItemID); err != nil {
			return err
		}
		return ErrNotClaimedByCaller
	}
	s.publish(ctx, cmd.ItemID)
	return nil
}

// MarkReady completes an item. Concurrent tablets race to mark the same item;
// a second call is a success reporting AlreadyReady, and ready_at keeps its
// first value. A pending item cannot be marked ready: nothing was prepared.
func (s *Service) MarkReady(ctx context.Context, cmd ReadyCommand) (ReadyResult, error) {
	if cmd.ItemID == "" {
		return ReadyResult{}, ErrBadRequest
	}
	it, err := s.store.Get(ctx, cmd.ItemID)
	if err != nil {
		return ReadyResult{}, err
	}
	if it.Status == StatusReady {
		return ReadyResult{AlreadyReady: true}, nil
	}
	if !CanTransition(it.Status, StatusReady) {
		return ReadyResult{}, ErrInvalidState
	}
	ok, err := s.store.MarkReady(ctx, cmd.ItemID, it.Status)
	if err != nil {
		return ReadyResult{}, err
	}
	if !ok {
		// Lost a race; if the winner made it ready we are done.
		cur, err := s.store.Get(ctx, cmd.ItemID)
		if err != nil {
			return ReadyResult{}, err
		}
		if cur.Status == StatusReady {
			return ReadyResult{AlreadyReady: true}, nil
		}
		return ReadyResult{}, ErrConflict
	}
	s.publish(ctx, cmd.ItemID)
	if s.agg != nil {
		s.agg.ItemChanged(ctx, it.OrderID)
	}
	return ReadyResult{}, nil
}

// Cancel is the external-event path (upstream removed the item). Cancelled
// items never block order completion, so the aggregator runs afterwards.
func (s *Service) Cancel(ctx context.Context, itemID types.ID) error {
	if itemID == "" {
		return ErrBadRequest
	}
	it, err := s.store.Get(ctx, itemID)
	if errors.Is(err, ErrNotFound) {
		return nil // already gone elsewhere; treat as processed
	}
	if err != nil {
		return err
	}
	if it.Status == StatusReady || it.Status == StatusCancelled {
		if it.Status == StatusCancelled {
			return nil
		}
		return ErrInvalidState
	}
	ok, err := s.store.Cancel(ctx, itemID)
	if err != nil {
		return err
	}
	if ok {
		s.publish(ctx, itemID)
		if s.agg != nil {
			s.agg.ItemChanged(ctx, it.OrderID)
		}
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Item, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListQueue(ctx context.Context, f QueueFilter) ([]*Item, error) {
	return s.store.ListQueue(ctx, f)
}

func (s *Service) ListByOrder(ctx context.Context, orderID types.ID) ([]*Item, error) {
	return s.store.ListByOrder(ctx, orderID)
}

func (s *Service) ListInOven(ctx context.Context) ([]*Item, error) {
	return s.store.ListInOven(ctx)
}

func (s *Service) publish(ctx context.Context, id types.ID) {
	s.pub.Publish(ctx, realtime.Change{Entity: "item", ID: id})
}
