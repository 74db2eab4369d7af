// README: Order aggregation engine; derives order status from item composition and owns dispatch.
package order

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"expo/internal/config"
	"expo/internal/latch"
	"expo/internal/metrics"
	"expo/internal/notify"
	"expo/internal/realtime"
	"expo/internal/types"
)

var (
	ErrInvalidState    = errors.New("invalid order state transition")
	ErrNotFound        = errors.New("order not found")
	ErrConflict        = errors.New("order state conflict")
	ErrSiblingsPending = errors.New("sibling items still in production")
	ErrBadRequest      = errors.New("bad request")
)

type Service struct {
	store    *Store
	notifier notify.Notifier
	closer   notify.Closer
	latch    latch.Latch
	pub      realtime.Publisher
	metrics  *metrics.Collector
	settings config.Settings
	safety   *safetyNet
}

func NewService(
	store *Store,
	notifier notify.Notifier,
	closer notify.Closer,
	lt latch.Latch,
	pub realtime.Publisher,
	m *metrics.Collector,
	settings config.Settings,
) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if closer == nil {
		closer = notify.Nop{}
	}
	if lt == nil {
		lt = latch.NewMemory()
	}
	if pub == nil {
		pub = realtime.NopPublisher{}
	}
	s := &Service{
		store:    store,
		notifier: notifier,
		closer:   closer,
		latch:    lt,
		pub:      pub,
		metrics:  m,
		settings: settings,
	}
	s.safety = newSafetyNet(settings.Dispatch.Grace(), s.safetyFire)
	return s
}

// Stop cancels every armed safety-net timer. Called on shutdown.
func (s *Service) Stop() {
	s.safety.Stop()
}

type IngestItem struct {
	Product  string
	Quantity int
	Sector   *types.Sector
	Notes    string
	Flavors  string
	EdgeType string
}

type IngestCommand struct {
	ExternalRef  string
	CustomerName string
	Address      string
	Lat          *float64
	Lng          *float64
	Total        decimal.Decimal
	OrderType    OrderType
	Items        []IngestItem
}

// Ingest creates an order and its decomposed items (webhook or simulated).
func (s *Service) Ingest(ctx context.Context, cmd IngestCommand) (types.ID, error) {
	if len(cmd.Items) == 0 || !ValidOrderType(cmd.OrderType) {
		return "", ErrBadRequest
	}
	for _, it := range cmd.Items {
		if it.Product == "" || it.Quantity < 1 {
			return "", ErrBadRequest
		}
	}

	id := types.ID(uuid.NewString())
	now := time.Now()
	o := &Order{
		ID:           id,
		CustomerName: cmd.CustomerName,
		Address:      cmd.Address,
		Lat:          cmd.Lat,
		Lng:          cmd.Lng,
		Total:        cmd.Total,
		OrderType:    cmd.OrderType,
		Status:       StatusPending,
		CreatedAt:    now,
	}
	if cmd.ExternalRef != "" {
		o.ExternalRef = &cmd.ExternalRef
	}

	rows := make([]NewItem, len(cmd.Items))
	for i, it := range cmd.Items {
		rows[i] = NewItem{
			ID:       types.ID(uuid.NewString()),
			Sector:   it.Sector,
			Product:  it.Product,
			Quantity: it.Quantity,
			Notes:    it.Notes,
			Flavors:  it.Flavors,
			EdgeType: it.EdgeType,
		}
	}
	if err := s.store.CreateWithItems(ctx, o, rows); err != nil {
		return "", err
	}
	_ = s.store.AppendEvent(ctx, &Event{
		OrderID:    id,
		FromStatus: "",
		ToStatus:   StatusPending,
		ActorType:  "upstream",
		CreatedAt:  now,
	})
	s.publish(ctx, id)
	return id, nil
}

// ItemChanged is the hook the item state machine calls on every item
// transition. It must tolerate redundant and concurrent invocation, so all
// it does is re-run the idempotent evaluation and log failures.
func (s *Service) ItemChanged(ctx context.Context, orderID types.ID) {
	if err := s.Reevaluate(ctx, orderID); err != nil {
		log.Printf("order %s: reevaluate: %v", orderID, err)
	}
}

// Reevaluate derives the order-level status from its item composition.
// Orders whose items all passed through sectors only complete immediately;
// orders with an oven block wait for master-ready or the safety net.
func (s *Service) Reevaluate(ctx context.Context, orderID types.ID) error {
	o, err := s.store.Get(ctx, orderID)
	if errors.Is(err, ErrNotFound) {
		s.safety.Disarm(orderID)
		return nil
	}
	if err != nil {
		return err
	}
	if o.Status != StatusPending {
		s.safety.Disarm(orderID)
		return nil
	}

	counts, err := s.store.ItemStatusCounts(ctx, orderID)
	if err != nil {
		return err
	}
	if !counts.AllDone() {
		s.safety.Disarm(orderID)
		return nil
	}
	if counts.OvenTouched > 0 {
		// Oven orders wait for the explicit master action; the net catches
		// the case where it never comes.
		s.safety.Arm(orderID)
		return nil
	}
	return s.complete(ctx, o, "system", nil)
}

type MasterReadyCommand struct {
	OrderID    types.ID
	OperatorID types.ID
}

// MasterReady is the full-order dispatch action for the oven panel: it
// force-completes the order's remaining in_oven items and releases the order.
// Gated on every sibling item being done, so a pizza cannot ship before its
// side dish.
func (s *Service) MasterReady(ctx context.Context, cmd MasterReadyCommand) error {
	if cmd.OrderID == "" || cmd.OperatorID == "" {
		return ErrBadRequest
	}
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return err
	}
	switch o.Status {
	case StatusPending:
	case StatusWaitingBuffer, StatusReady, StatusDispatched:
		return nil // another tablet got here first
	default:
		return ErrInvalidState
	}

	counts, err := s.store.ItemStatusCounts(ctx, cmd.OrderID)
	if err != nil {
		return err
	}
	if counts.PendingPrep > 0 {
		return ErrSiblingsPending
	}
	if counts.InOven == 0 && counts.Ready == 0 {
		return ErrInvalidState
	}
	if counts.InOven > 0 {
		if _, err := s.store.MarkOvenItemsReady(ctx, cmd.OrderID); err != nil {
			return err
		}
	}
	s.safety.Disarm(cmd.OrderID)
	return s.complete(ctx, o, "operator", &cmd.OperatorID)
}

// complete routes a finished order: urgent skips the buffer and dispatches
// individually, everything else enters the wave. CAS makes a lost race a
// no-op, so the timer path and the click path can both call this safely.
func (s *Service) complete(ctx context.Context, o *Order, actorType string, actorID *types.ID) error {
	urgent := IsUrgent(o.CreatedAt, time.Now(), s.settings.Urgency)
	to := StatusWaitingBuffer
	if urgent {
		to = StatusReady
	}

	ok, err := s.store.UpdateStatus(ctx, o.ID, o.Status, to, o.StatusVersion, urgent)
	if err != nil {
		return err
	}
	if !ok {
		cur, err := s.store.Get(ctx, o.ID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}
		if cur.Status != StatusPending {
			return nil // someone else completed it
		}
		return ErrConflict
	}

	_ = s.store.AppendEvent(ctx, &Event{
		OrderID:    o.ID,
		FromStatus: o.Status,
		ToStatus:   to,
		ActorType:  actorType,
		ActorID:    actorID,
		CreatedAt:  time.Now(),
	})
	s.publish(ctx, o.ID)

	if urgent {
		if s.metrics != nil {
			s.metrics.RecordUrgentBypass()
		}
		s.notifyOrders(ctx, []types.ID{o.ID})
	}
	return nil
}

// safetyFire runs on the safety-net timer goroutine: state check first, latch
// second, so whichever of timer and master action wins, the loser no-ops.
func (s *Service) safetyFire(orderID types.ID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	o, err := s.store.Get(ctx, orderID)
	if err != nil || o.Status != StatusPending {
		return
	}
	counts, err := s.store.ItemStatusCounts(ctx, orderID)
	if err != nil || !counts.AllDone() || counts.InOven > 0 {
		return
	}
	ok, err := s.latch.Acquire(ctx, "expo:safety:order:"+string(orderID))
	if err != nil {
		log.Printf("order %s: safety latch: %v", orderID, err)
		return
	}
	if !ok {
		return
	}
	if s.metrics != nil {
		s.metrics.RecordSafetyNetFire()
	}
	if err := s.complete(ctx, o, "system", nil); err != nil {
		log.Printf("order %s: safety dispatch: %v", orderID, err)
	}
}

// MarkCollected records the delivery pickup (ready → dispatched).
func (s *Service) MarkCollected(ctx context.Context, orderID types.ID) error {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status == StatusDispatched {
		return nil
	}
	if !CanTransition(o.Status, StatusDispatched) {
		return ErrInvalidState
	}
	ok, err := s.store.UpdateStatus(ctx, orderID, o.Status, StatusDispatched, o.StatusVersion, false)
	if err != nil {
		return err
	}
	if !ok {
		cur, err := s.store.Get(ctx, orderID)
		if err == nil && cur.Status == StatusDispatched {
			return nil
		}
		return ErrConflict
	}
	_ = s.store.AppendEvent(ctx, &Event{
		OrderID:    orderID,
		FromStatus: o.Status,
		ToStatus:   StatusDispatched,
		ActorType:  "upstream",
		CreatedAt:  time.Now(),
	})
	s.publish(ctx, orderID)
	return nil
}

// ForceClose asks the upstream source to close the order, then deletes it
// locally. An upstream failure is logged, not fatal: the board must be able
// to clear a stuck order regardless.
func (s *Service) ForceClose(ctx context.Context, orderID types.ID) error {
	if err := s.closer.CloseOrder(ctx, orderID); err != nil {
		log.Printf("order %s: upstream close: %v", orderID, err)
	}
	s.safety.Disarm(orderID)
	deleted, err := s.store.Delete(ctx, orderID)
	if err != nil {
		return err
	}
	if deleted {
		s.publish(ctx, orderID)
	}
	return nil
}

// CancelByExternalRef handles the upstream cancellation callback.
func (s *Service) CancelByExternalRef(ctx context.Context, ref string) error {
	o, err := s.store.GetByExternalRef(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	s.safety.Disarm(o.ID)
	if _, err := s.store.Delete(ctx, o.ID); err != nil {
		return err
	}
	s.publish(ctx, o.ID)
	return nil
}

// RetryNotify re-attempts the ready notification for a single order after a
// recorded failure. The retry is decoupled from any timer on purpose.
func (s *Service) RetryNotify(ctx context.Context, orderID types.ID) error {
	if _, err := s.store.Get(ctx, orderID); err != nil {
		return err
	}
	s.notifyOrders(ctx, []types.ID{orderID})
	return nil
}

// notifyOrders invokes the external collaborator; local state stands whatever
// the outcome, failures become per-order error text.
func (s *Service) notifyOrders(ctx context.Context, ids []types.ID) {
	errs := s.notifier.OrdersReady(ctx, ids)
	failed := make(map[types.ID]string, len(errs))
	for _, e := range errs {
		failed[e.OrderID] = e.Message
		if s.metrics != nil {
			s.metrics.RecordNotifyFailure()
		}
	}
	for _, id := range ids {
		if msg, ok := failed[id]; ok {
			if err := s.store.SetNotifyError(ctx, id, msg); err != nil {
				log.Printf("order %s: persist notify error: %v", id, err)
			}
			continue
		}
		if err := s.store.ClearNotifyError(ctx, id); err != nil {
			log.Printf("order %s: clear notify error: %v", id, err)
		}
	}
	if len(errs) > 0 {
		s.publish(ctx, "")
	}
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Order, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, statuses []Status) ([]*Order, error) {
	return s.store.List(ctx, statuses)
}

func (s *Service) publish(ctx context.Context, id types.ID) {
	s.pub.Publish(ctx, realtime.Change{Entity: "order", ID: id})
}
