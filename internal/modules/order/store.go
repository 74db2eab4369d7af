// README: Order store backed by PostgreSQL; CAS status updates and batch release.
package order

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"expo/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const orderColumns = `
	id, external_ref, customer_name, address, lat, lng, total, order_type,
	status, status_version, urgent, notify_error, created_at, ready_at, dispatched_at`

// NewItem carries one decomposed item row created together with its order.
type NewItem struct {
	ID       types.ID
	Sector   *types.Sector
	Product  string
	Quantity int
	Notes    string
	Flavors  string
	EdgeType string
}

// CreateWithItems inserts the order and its items in one transaction, so a
// half-ingested order can never appear on the boards.
func (s *Store) CreateWithItems(ctx context.Context, o *Order, items []NewItem) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (
			id, external_ref, customer_name, address, lat, lng, total, order_type,
			status, status_version, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		string(o.ID),
		o.ExternalRef,
		o.CustomerName,
		o.Address,
		o.Lat, o.Lng,
		o.Total,
		string(o.OrderType),
		string(o.Status),
		o.StatusVersion,
		o.CreatedAt,
	)
	if err != nil {
		return err
	}

	for i, it := range items {
		// Stagger created_at so queue order follows ingestion order.
		_, err = tx.Exec(ctx, `
			INSERT INTO items (
				id, order_id, sector, product, quantity, notes, flavors, edge_type,
				status, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', $9)`,
			string(it.ID),
			string(o.ID),
			sectorPtr(it.Sector),
			it.Product,
			it.Quantity,
			it.Notes,
			it.Flavors,
			it.EdgeType,
			o.CreatedAt.Add(time.Duration(i)*time.Microsecond),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `SELECT`+orderColumns+` FROM orders WHERE id = $1`, string(id))
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

func (s *Store) GetByExternalRef(ctx context.Context, ref string) (*Order, error) {
	row := s.db.QueryRow(ctx, `SELECT`+orderColumns+` FROM orders WHERE external_ref = $1`, ref)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

// UpdateStatus is the order-level CAS: the row moves only if it still carries
// the status and version the caller read. ready_at keeps its first value so
// batch release does not clobber the buffer-entry timestamp.
func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, urgent bool) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET status = $1,
		    status_version = status_version + 1,
		    urgent = CASE WHEN $2 THEN TRUE ELSE urgent END,
		    ready_at = CASE WHEN $1 IN ('waiting_buffer', 'ready') THEN COALESCE(ready_at, NOW()) ELSE ready_at END,
		    dispatched_at = CASE WHEN $1 = 'dispatched' THEN NOW() ELSE dispatched_at END
		WHERE id = $3 AND status = $4 AND status_version = $5`,
		string(to),
		urgent,
		string(id),
		string(from),
		version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MoveToReady releases a batch of buffered orders in one statement. Orders
// that left waiting_buffer in the meantime are silently skipped, which makes
// duplicate wave firing a no-op.
func (s *Store) MoveToReady(ctx context.Context, ids []types.ID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ss := make([]string, len(ids))
	for i, id := range ids {
		ss[i] = string(id)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET status = 'ready', status_version = status_version + 1
		WHERE id = ANY($1) AND status = 'waiting_buffer'`,
		ss,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ListBuffered returns the waiting_buffer set oldest ready_at first; the head
// anchors the shared wave countdown.
func (s *Store) ListBuffered(ctx context.Context) ([]*Order, error) {
	rows, err := s.db.Query(ctx,
		`SELECT`+orderColumns+` FROM orders WHERE status = 'waiting_buffer' ORDER BY ready_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

// ActiveCount feeds dynamic tier selection: orders still being produced or
// already staged count toward current volume.
func (s *Store) ActiveCount(ctx context.Context) (int, error) {
	row := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE status IN ('pending', 'waiting_buffer')`,
	)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) List(ctx context.Context, statuses []Status) ([]*Order, error) {
	query := `SELECT` + orderColumns + ` FROM orders`
	var args []any
	if len(statuses) > 0 {
		ss := make([]string, len(statuses))
		for i, st := range statuses {
			ss[i] = string(st)
		}
		args = append(args, ss)
		query += ` WHERE status = ANY($1)`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

// ItemCounts is the aggregation input: the order-level status is a pure
// function of these numbers.
type ItemCounts struct {
	PendingPrep int // pending or in_prep (siblings still being produced)
	InOven      int
	Ready       int
	Cancelled   int
	OvenTouched int // items that entered the oven at some point
	Total       int
}

// AllDone reports whether every non-cancelled item is ready and at least one
// item survives cancellation.
func (c ItemCounts) AllDone() bool {
	return c.PendingPrep == 0 && c.InOven == 0 && c.Ready > 0
}

func (s *Store) ItemStatusCounts(ctx context.Context, orderID types.ID) (ItemCounts, error) {
	row := s.db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status IN ('pending', 'in_prep')),
			COUNT(*) FILTER (WHERE status = 'in_oven'),
			COUNT(*) FILTER (WHERE status = 'ready'),
			COUNT(*) FILTER (WHERE status = 'cancelled'),
			COUNT(*) FILTER (WHERE oven_entry_at IS NOT NULL),
			COUNT(*)
		FROM items WHERE order_id = $1`,
		string(orderID),
	)
	var c ItemCounts
	err := row.Scan(&c.PendingPrep, &c.InOven, &c.Ready, &c.Cancelled, &c.OvenTouched, &c.Total)
	return c, err
}

// MarkOvenItemsReady force-completes an order's oven block (the master-ready
// action): every in_oven item of the order goes ready in one statement.
func (s *Store) MarkOvenItemsReady(ctx context.Context, orderID types.ID) (int, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE items
		SET status = 'ready', ready_at = COALESCE(ready_at, NOW()), claimed_by = NULL
		WHERE order_id = $1 AND status = 'in_oven'`,
		string(orderID),
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) SetNotifyError(ctx context.Context, id types.ID, msg string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE orders SET notify_error = $2 WHERE id = $1`,
		string(id), msg,
	)
	return err
}

func (s *Store) ClearNotifyError(ctx context.Context, id types.ID) error {
	_, err := s.db.Exec(ctx,
		`UPDATE orders SET notify_error = NULL WHERE id = $1`,
		string(id),
	)
	return err
}

// Delete removes the order; items cascade.
func (s *Store) Delete(ctx context.Context, id types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM orders WHERE id = $1`, string(id))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO order_events (
			order_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.OrderID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		idPtr(e.ActorID),
		e.CreatedAt,
	)
	return err
}

func scanOrders(rows pgx.Rows) ([]*Order, error) {
	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var o Order
	var externalRef, notifyError *string
	var lat, lng *float64
	var total decimal.Decimal
	var readyAt, dispatchedAt *time.Time
	var orderType string

	err := row.Scan(
		&o.ID, &externalRef, &o.CustomerName, &o.Address, &lat, &lng, &total, &orderType,
		&o.Status, &o.StatusVersion, &o.Urgent, &notifyError,
		&o.CreatedAt, &readyAt, &dispatchedAt,
	)
	if err != nil {
		return nil, err
	}
	o.ExternalRef = externalRef
	o.Lat = lat
	o.Lng = lng
	o.Total = total
	o.OrderType = OrderType(orderType)
	o.NotifyError = notifyError
	o.ReadyAt = readyAt
	o.DispatchedAt = dispatchedAt
	return &o, nil
}

func sectorPtr(v *types.Sector) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
