// README: Item store backed by PostgreSQL; every mutation is a conditional update (CAS).
package item

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"expo/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const itemColumns = `
	id, order_id, sector, product, quantity, notes, flavors, edge_type,
	status, claimed_by, claimed_at, oven_entry_at, estimated_exit_at, ready_at, created_at`

func (s *Store) Create(ctx context.Context, it *Item) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO items (
			id, order_id, sector, product, quantity, notes, flavors, edge_type,
			status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		string(it.ID),
		string(it.OrderID),
		sectorPtr(it.Sector),
		it.Product,
		it.Quantity,
		it.Notes,
		it.Flavors,
		it.EdgeType,
		string(it.Status),
		it.CreatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Item, error) {
	row := s.db.QueryRow(ctx, `SELECT`+itemColumns+` FROM items WHERE id = $1`, string(id))
	it, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return it, err
}

// Claim is the single strict mutual-exclusion point: first writer wins, every
// concurrent loser sees zero rows affected.
func (s *Store) Claim(ctx context.Context, id, operatorID types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE items
		SET status = 'in_prep', claimed_by = $2, claimed_at = NOW()
		WHERE id = $1 AND status = 'pending'`,
		string(id), string(operatorID),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) Release(ctx context.Context, id, operatorID types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE items
		SET status = 'pending', claimed_by = NULL, claimed_at = NULL
		WHERE id = $1 AND status = 'in_prep' AND claimed_by = $2`,
		string(id), string(operatorID),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) SendToOven(ctx context.Context, id, operatorID types.ID, ovenSeconds int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE items
		SET status = 'in_oven',
		    oven_entry_at = NOW(),
		    estimated_exit_at = NOW() + make_interval(secs => $3)
		WHERE id = $1 AND status = 'in_prep' AND claimed_by = $2`,
		string(id), string(operatorID), ovenSeconds,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkReady moves one item to ready from the given status. COALESCE keeps
// ready_at from being overwritten when two tablets race on the same item.
func (s *Store) MarkReady(ctx context.Context, id types.ID, from Status) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE items
		SET status = 'ready',
		    ready_at = COALESCE(ready_at, NOW()),
		    claimed_by = NULL
		WHERE id = $1 AND status = $2`,
		string(id), string(from),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) Cancel(ctx context.Context, id types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE items
		SET status = 'cancelled', claimed_by = NULL
		WHERE id = $1 AND status IN ('pending', 'in_prep', 'in_oven')`,
		string(id),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// QueueFilter narrows the production queue by sector and/or status set.
type QueueFilter struct {
	Sector   *types.Sector
	Statuses []Status
}

// ListQueue returns items in queue order (oldest first).
func (s *Store) ListQueue(ctx context.Context, f QueueFilter) ([]*Item, error) {
	query := `SELECT` + itemColumns + ` FROM items`
	var conds []string
	var args []any
	if f.Sector != nil {
		args = append(args, string(*f.Sector))
		conds = append(conds, fmt.Sprintf("sector = $%d", len(args)))
	}
	if len(f.Statuses) > 0 {
		ss := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			ss[i] = string(st)
		}
		args = append(args, ss)
		conds = append(conds, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

func (s *Store) ListByOrder(ctx context.Context, orderID types.ID) ([]*Item, error) {
	rows, err := s.db.Query(ctx,
		`SELECT`+itemColumns+` FROM items WHERE order_id = $1 ORDER BY created_at ASC`,
		string(orderID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

func (s *Store) ListInOven(ctx context.Context) ([]*Item, error) {
	rows, err := s.db.Query(ctx,
		`SELECT`+itemColumns+` FROM items WHERE status = 'in_oven' ORDER BY oven_entry_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

func scanItems(rows pgx.Rows) ([]*Item, error) {
	var out []*Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	var it Item
	var sector, claimedBy *string
	var claimedAt, ovenEntryAt, estimatedExitAt, readyAt *time.Time

	err := row.Scan(
		&it.ID, &it.OrderID, &sector, &it.Product, &it.Quantity,
		&it.Notes, &it.Flavors, &it.EdgeType,
		&it.Status, &claimedBy, &claimedAt, &ovenEntryAt, &estimatedExitAt, &readyAt,
		&it.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if sector != nil {
		v := types.Sector(*sector)
		it.Sector = &v
	}
	if claimedBy != nil {
		v := types.ID(*claimedBy)
		it.ClaimedBy = &v
	}
	it.ClaimedAt = claimedAt
	it.OvenEntryAt = ovenEntryAt
	it.EstimatedExitAt = estimatedExitAt
	it.ReadyAt = readyAt
	return &it, nil
}

func sectorPtr(v *types.Sector) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
