// README: Aggregation engine tests (DB-backed; skip without EXPO_TEST_DSN).
package order

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"expo/internal/config"
	"expo/internal/modules/item"
	"expo/internal/types"
)

func TestCanTransitionOrder(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		// forward flow
		{StatusPending, StatusWaitingBuffer, true},
		{StatusWaitingBuffer, StatusReady, true},
		{StatusReady, StatusDispatched, true},
		{StatusDispatched, StatusClosed, true},
		// urgency bypass skips the buffer
		{StatusPending, StatusReady, true},
		// termination from any non-terminal state
		{StatusPending, StatusCancelled, true},
		{StatusWaitingBuffer, StatusClosed, true},
		{StatusReady, StatusCancelled, true},
		// monotonic: no going back
		{StatusWaitingBuffer, StatusPending, false},
		{StatusReady, StatusWaitingBuffer, false},
		{StatusDispatched, StatusReady, false},
		// terminal states
		{StatusClosed, StatusPending, false},
		{StatusCancelled, StatusReady, false},
		// no skipping dispatch
		{StatusPending, StatusDispatched, false},
		{StatusWaitingBuffer, StatusDispatched, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestItemCountsAllDone(t *testing.T) {
	cases := []struct {
		name   string
		counts ItemCounts
		want   bool
	}{
		{"everything ready", ItemCounts{Ready: 3, Total: 3}, true},
		{"cancelled items do not block", ItemCounts{Ready: 2, Cancelled: 1, Total: 3}, true},
		{"sibling still in prep", ItemCounts{PendingPrep: 1, Ready: 2, Total: 3}, false},
		{"item still in oven", ItemCounts{InOven: 1, Ready: 2, Total: 3}, false},
		{"all cancelled is not done", ItemCounts{Cancelled: 2, Total: 2}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.counts.AllDone(); got != tc.want {
				t.Errorf("AllDone() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCompletionEntersBuffer(t *testing.T) {
	env := setupTestEnv(t, config.DefaultSettings())
	ctx := context.Background()

	orderID := env.ingest(t, "web-1", []IngestItem{
		{Product: "margherita", Quantity: 1, Sector: sector("dough")},
		{Product: "tiramisu", Quantity: 1, Sector: sector("desserts")},
	})

	items := env.items(t, orderID)
	env.finishItem(t, items[0].ID, "t1")

	o, err := env.orders.Get(ctx, orderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if o.Status != StatusPending {
		t.Fatalf("one item ready, order must stay pending, got %s", o.Status)
	}

	env.finishItem(t, items[1].ID, "t2")

	o, err = env.orders.Get(ctx, orderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if o.Status != StatusWaitingBuffer {
		t.Fatalf("all items ready, expected waiting_buffer, got %s", o.Status)
	}
	if o.ReadyAt == nil {
		t.Fatal("ready_at marks the buffer entry and must be set")
	}
}

func TestCancelledItemDoesNotBlockCompletion(t *testing.T) {
	env := setupTestEnv(t, config.DefaultSettings())
	ctx := context.Background()

	orderID := env.ingest(t, "web-2", []IngestItem{
		{Product: "diavola", Quantity: 1, Sector: sector("dough")},
		{Product: "cola", Quantity: 2, Sector: sector("bar")},
	})

	items := env.items(t, orderID)
	if err := env.itemSvc.Cancel(ctx, items[1].ID); err != nil {
		t.Fatalf("cancel item: %v", err)
	}
	env.finishItem(t, items[0].ID, "t1")

	o, err := env.orders.Get(ctx, orderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if o.Status != StatusWaitingBuffer {
		t.Fatalf("cancelled sibling must not block, got %s", o.Status)
	}
}

func TestUrgencyBypassRouting(t *testing.T) {
	env := setupTestEnv(t, config.DefaultSettings())
	ctx := context.Background()

	orderID := env.ingest(t, "web-3", []IngestItem{
		{Product: "capricciosa", Quantity: 1, Sector: sector("dough")},
	})

	// Age the order past the urgency threshold.
	_, err := env.db.Exec(ctx,
		`UPDATE orders SET created_at = NOW() - INTERVAL '30 minutes' WHERE id = $1`,
		string(orderID),
	)
	if err != nil {
		t.Fatalf("age order: %v", err)
	}

	items := env.items(t, orderID)
	env.finishItem(t, items[0].ID, "t1")

	o, err := env.orders.Get(ctx, orderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if o.Status != StatusReady {
		t.Fatalf("urgent order must skip the buffer, got %s", o.Status)
	}
	if !o.Urgent {
		t.Fatal("urgent flag must be persisted for individual dispatch")
	}

	var bufferEntries int
	err = env.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM order_events WHERE order_id = $1 AND to_status = 'waiting_buffer'`,
		string(orderID),
	).Scan(&bufferEntries)
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	if bufferEntries != 0 {
		t.Fatal("urgent order must never pass through waiting_buffer")
	}
}

func TestMasterReadyGatedOnSiblings(t *testing.T) {
	env := setupTestEnv(t, config.DefaultSettings())
	ctx := context.Background()

	orderID := env.ingest(t, "web-4", []IngestItem{
		{Product: "quattro formaggi", Quantity: 1, Sector: sector("dough")},
		{Product: "bruschetta", Quantity: 1, Sector: sector("starters")},
	})

	items := env.items(t, orderID)
	pizza, side := items[0].ID, items[1].ID

	env.claim(t, pizza, "t1")
	if err := env.itemSvc.SendToOven(ctx, item.OvenCommand{ItemID: pizza, OperatorID: "t1", OvenSeconds: 120}); err != nil {
		t.Fatalf("send to oven: %v", err)
	}

	err := env.orders.MasterReady(ctx, MasterReadyCommand{OrderID: orderID, OperatorID: "t1"})
	if err != ErrSiblingsPending {
		t.Fatalf("side still pending: got %v, want ErrSiblingsPending", err)
	}

	env.finishItem(t, side, "t2")

	if err := env.orders.MasterReady(ctx, MasterReadyCommand{OrderID: orderID, OperatorID: "t1"}); err != nil {
		t.Fatalf("master ready: %v", err)
	}

	o, err := env.orders.Get(ctx, orderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if o.Status != StatusWaitingBuffer {
		t.Fatalf("expected waiting_buffer after master ready, got %s", o.Status)
	}

	it, err := env.itemSvc.Get(ctx, pizza)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if it.Status != item.StatusReady {
		t.Fatalf("master ready must complete oven items, got %s", it.Status)
	}

	// Second master action from another tablet: idempotent success.
	if err := env.orders.MasterReady(ctx, MasterReadyCommand{OrderID: orderID, OperatorID: "t2"}); err != nil {
		t.Fatalf("repeat master ready: %v", err)
	}
}

func TestSafetyNetAutoDispatch(t *testing.T) {
	settings := config.DefaultSettings()
	settings.Dispatch.GraceSeconds = 0 // fire as soon as the net arms

	env := setupTestEnv(t, settings)
	ctx := context.Background()

	orderID := env.ingest(t, "web-5", []IngestItem{
		{Product: "marinara", Quantity: 1, Sector: sector("dough")},
	})

	items := env.items(t, orderID)
	env.claim(t, items[0].ID, "t1")
	if err := env.itemSvc.SendToOven(ctx, item.OvenCommand{ItemID: items[0].ID, OperatorID: "t1", OvenSeconds: 60}); err != nil {
		t.Fatalf("send to oven: %v", err)
	}
	if _, err := env.itemSvc.MarkReady(ctx, item.ReadyCommand{ItemID: items[0].ID}); err != nil {
		t.Fatalf("mark ready: %v", err)
	}

	// No master-ready call: the net must dispatch on its own.
	deadline := time.Now().Add(2 * time.Second)
	for {
		o, err := env.orders.Get(ctx, orderID)
		if err != nil {
			t.Fatalf("get order: %v", err)
		}
		if o.Status == StatusWaitingBuffer {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("safety net did not dispatch, status still %s", o.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}

	var dispatches int
	err := env.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM order_events WHERE order_id = $1 AND to_status = 'waiting_buffer'`,
		string(orderID),
	).Scan(&dispatches)
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	if dispatches != 1 {
		t.Fatalf("expected exactly one dispatch, got %d", dispatches)
	}
}

func TestForceCloseDeletesOrder(t *testing.T) {
	env := setupTestEnv(t, config.DefaultSettings())
	ctx := context.Background()

	orderID := env.ingest(t, "web-6", []IngestItem{
		{Product: "margherita", Quantity: 1, Sector: sector("dough")},
	})

	if err := env.orders.ForceClose(ctx, orderID); err != nil {
		t.Fatalf("force close: %v", err)
	}
	if _, err := env.orders.Get(ctx, orderID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after force close, got %v", err)
	}
	// Closing again is a no-op, not an error.
	if err := env.orders.ForceClose(ctx, orderID); err != nil {
		t.Fatalf("repeat force close: %v", err)
	}

	items, err := env.itemSvc.ListByOrder(ctx, orderID)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 0 {
		t.Fatal("items must cascade on order deletion")
	}
}

type testEnv struct {
	db      *pgxpool.Pool
	orders  *Service
	itemSvc *item.Service
}

func setupTestEnv(t *testing.T, settings config.Settings) *testEnv {
	t.Helper()

	dsn := os.Getenv("EXPO_TEST_DSN")
	if dsn == "" {
		t.Skip("EXPO_TEST_DSN not set; skipping DB-backed tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := applyMigration(ctx, db); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	if _, err := db.Exec(ctx, "TRUNCATE TABLE order_events, items, orders"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}

	orders := NewService(NewStore(db), nil, nil, nil, nil, nil, settings)
	t.Cleanup(orders.Stop)
	items := item.NewService(item.NewStore(db), orders, nil, nil, settings.Oven.DefaultSeconds)
	return &testEnv{db: db, orders: orders, itemSvc: items}
}

func (e *testEnv) ingest(t *testing.T, ref string, items []IngestItem) types.ID {
	t.Helper()
	id, err := e.orders.Ingest(context.Background(), IngestCommand{
		ExternalRef:  ref,
		CustomerName: "Test Customer",
		Address:      "Via Roma 1",
		Total:        decimal.NewFromInt(30),
		OrderType:    TypeDelivery,
		Items:        items,
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	return id
}

func (e *testEnv) items(t *testing.T, orderID types.ID) []*item.Item {
	t.Helper()
	items, err := e.itemSvc.ListByOrder(context.Background(), orderID)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	return items
}

func (e *testEnv) claim(t *testing.T, itemID, operator types.ID) {
	t.Helper()
	if err := e.itemSvc.Claim(context.Background(), item.ClaimCommand{ItemID: itemID, OperatorID: operator}); err != nil {
		t.Fatalf("claim %s: %v", itemID, err)
	}
}

func (e *testEnv) finishItem(t *testing.T, itemID, operator types.ID) {
	t.Helper()
	e.claim(t, itemID, operator)
	if _, err := e.itemSvc.MarkReady(context.Background(), item.ReadyCommand{ItemID: itemID}); err != nil {
		t.Fatalf("mark ready %s: %v", itemID, err)
	}
}

func sector(name string) *types.Sector {
	s := types.Sector(name)
	return &s
}

func applyMigration(ctx context.Context, db *pgxpool.Pool) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	path := filepath.Join(root, "migrations", "0001_init.sql")
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	cleaned := stripSQLComments(string(content))
	for _, stmt := range splitSQL(cleaned) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

func stripSQLComments(input string) string {
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	return b.String()
}

func splitSQL(input string) []string {
	parts := strings.Split(input, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		stmt := strings.TrimSpace(p)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}
