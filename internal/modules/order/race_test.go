// README: DB-backed concurrency tests for order state transitions (run with -race).
package order

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"taxihub/internal/types"
)

func TestPGConcurrentAcceptSameOrder(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	svc := NewService(Deps{Store: store, Tariffs: testTariffs()})

	o, err := svc.Create(ctx, CreateCommand{
		ClientID: "c_race",
		TariffID: "standard",
		Pickup:   types.Point{Lat: 41.31, Lng: 69.24},
		Dropoff:  types.Point{Lat: 41.35, Lng: 69.30},
		Payment:  types.PayCash,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		driverID := types.ID(fmt.Sprintf("d_race_%d", i))
		wg.Add(1)
		go func(did types.ID) {
			defer wg.Done()
			errs <- svc.Accept(ctx, AcceptCommand{OrderID: o.ID, DriverID: did})
		}(driverID)
	}

	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if err != ErrConflict && err != ErrInvalidState && err != ErrDriverBusy {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 success, got %d", success)
	}

	cur, err := svc.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if cur.Status != StatusAccepted {
		t.Fatalf("unexpected final status: %s", cur.Status)
	}
	if cur.DriverID == nil || *cur.DriverID == "" {
		t.Fatal("expected driver_id to be set")
	}
}

func TestPGConcurrentAcceptTwoOrdersSameDriver(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	svc := NewService(Deps{Store: store, Tariffs: testTariffs()})

	var orders []*Order
	for _, clientID := range []types.ID{"c_race", "c_race_2"} {
		o, err := svc.Create(ctx, CreateCommand{
			ClientID: clientID,
			TariffID: "standard",
			Pickup:   types.Point{Lat: 41.31, Lng: 69.24},
			Dropoff:  types.Point{Lat: 41.35, Lng: 69.30},
			Payment:  types.PayCash,
		})
		if err != nil {
			t.Fatalf("create order for %s: %v", clientID, err)
		}
		orders = append(orders, o)
	}

	// One driver races itself across two different orders. The statements
	// update different rows, so only the unique index on active driver_id
	// keeps the driver from holding both.
	var wg sync.WaitGroup
	errs := make(chan error, len(orders))
	for _, o := range orders {
		o := o
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- svc.Accept(ctx, AcceptCommand{OrderID: o.ID, DriverID: "d_race_0"})
		}()
	}
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if err != ErrDriverBusy && err != ErrConflict {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 success, got %d", success)
	}

	bound := 0
	for _, o := range orders {
		cur, err := svc.Get(ctx, o.ID)
		if err != nil {
			t.Fatalf("get order: %v", err)
		}
		if cur.Status == StatusAccepted {
			bound++
			if cur.DriverID == nil || *cur.DriverID != "d_race_0" {
				t.Fatalf("accepted order bound to %v, want d_race_0", cur.DriverID)
			}
		}
	}
	if bound != 1 {
		t.Fatalf("driver bound to %d active orders, want 1", bound)
	}
}

func TestPGConcurrentAcceptVsCancel(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	svc := NewService(Deps{Store: store, Tariffs: testTariffs()})

	o, err := svc.Create(ctx, CreateCommand{
		ClientID: "c_race",
		TariffID: "standard",
		Pickup:   types.Point{Lat: 41.31, Lng: 69.24},
		Dropoff:  types.Point{Lat: 41.35, Lng: 69.30},
		Payment:  types.PayCash,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- svc.Accept(ctx, AcceptCommand{OrderID: o.ID, DriverID: "d_race_0"})
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- svc.Cancel(ctx, CancelCommand{OrderID: o.ID, ActorType: "client", ActorID: "c_race", Reason: "changed my mind"})
	}()
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if err != ErrConflict && err != ErrInvalidState {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	// Accept-then-cancel can both succeed; cancel-then-accept leaves one.
	if success < 1 || success > 2 {
		t.Fatalf("expected 1 or 2 successes, got %d", success)
	}

	cur, err := svc.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if success == 2 && cur.Status != StatusCancelled {
		t.Fatalf("expected cancelled after accept+cancel, got %s", cur.Status)
	}
	if cur.Status == StatusCancelled && cur.DriverID != nil {
		t.Fatal("cancelled order must not keep a driver binding")
	}
}

func setupTestStore(t *testing.T) *PGStore {
	t.Helper()

	dsn := os.Getenv("TAXIHUB_TEST_DSN")
	if dsn == "" {
		t.Skip("TAXIHUB_TEST_DSN not set; skipping DB-backed race tests")
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

	if _, err := db.Exec(ctx, "TRUNCATE TABLE order_state_events, order_stops, orders"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	seedFixtures(t, ctx, db)

	return NewPGStore(db)
}

func applyMigration(ctx context.Context, db *pgxpool.Pool) error {
	var exists bool
	err := db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables WHERE table_name = 'orders'
		)`).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	root, err := repoRoot()
	if err != nil {
		return err
	}
	sql, err := os.ReadFile(filepath.Join(root, "migrations", "000001_init.up.sql"))
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, string(sql))
	return err
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found above %s", dir)
		}
		dir = parent
	}
}

func seedFixtures(t *testing.T, ctx context.Context, db *pgxpool.Pool) {
	t.Helper()
	_, err := db.Exec(ctx, `
		INSERT INTO tariffs (id, name, active, base_fare, per_km, currency)
		VALUES ('standard', 'Standard', TRUE, 100, 10, 'UZS')
		ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		t.Fatalf("seed tariff: %v", err)
	}
	users := []struct {
		id   string
		role string
	}{
		{"c_race", "client"}, {"c_race_2", "client"},
		{"d_race_0", "driver"}, {"d_race_1", "driver"}, {"d_race_2", "driver"}, {"d_race_3", "driver"},
		{"d_race_4", "driver"}, {"d_race_5", "driver"}, {"d_race_6", "driver"}, {"d_race_7", "driver"},
	}
	for _, u := range users {
		_, err := db.Exec(ctx, `
			INSERT INTO users (id, role, name, phone)
			VALUES ($1, $2, '', $1)
			ON CONFLICT (id) DO NOTHING`, u.id, u.role)
		if err != nil {
			t.Fatalf("seed user %s: %v", u.id, err)
		}
	}
}
