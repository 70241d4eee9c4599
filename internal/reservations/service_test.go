package reservations

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/eventrentph/eventrent-backend/internal/availability"
	"github.com/eventrentph/eventrent-backend/internal/inventory"
	"github.com/eventrentph/eventrent-backend/pkg/db/models"
	"github.com/eventrentph/eventrent-backend/pkg/enums"
	pkgerrors "github.com/eventrentph/eventrent-backend/pkg/errors"
	"github.com/eventrentph/eventrent-backend/pkg/logger"
	"github.com/eventrentph/eventrent-backend/pkg/outbox"
	"github.com/eventrentph/eventrent-backend/pkg/types"
)

func setupReservationsDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:reservations_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	for _, ddl := range []string{
		`CREATE TABLE inventory_items (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  category TEXT NOT NULL,
  service_type TEXT NOT NULL,
  unit_price_centavos INTEGER NOT NULL,
  location TEXT NOT NULL DEFAULT 'both',
  capacity_per_day INTEGER,
  description TEXT,
  active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE batches (
  id TEXT PRIMARY KEY,
  item_id TEXT NOT NULL,
  batch_label TEXT NOT NULL,
  supplier TEXT,
  qty_received INTEGER NOT NULL,
  qty_on_hand INTEGER NOT NULL,
  unit_cost_centavos INTEGER NOT NULL DEFAULT 0,
  expires_at DATETIME,
  location TEXT,
  notes TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE reservations (
  id TEXT PRIMARY KEY,
  booking_id TEXT NOT NULL,
  item_id TEXT NOT NULL,
  qty INTEGER NOT NULL,
  start_date DATETIME NOT NULL,
  end_date DATETIME NOT NULL,
  status TEXT NOT NULL DEFAULT 'held',
  hold_expires_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE reservation_allocations (
  id TEXT PRIMARY KEY,
  reservation_id TEXT NOT NULL,
  batch_id TEXT NOT NULL,
  qty INTEGER NOT NULL,
  created_at DATETIME
);`,
		`CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	} {
		require.NoError(t, db.Exec(ddl).Error)
	}
	return db
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r *gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newTestService(t *testing.T, db *gorm.DB) Service {
	t.Helper()

	logg := logger.New(logger.Options{ServiceName: "test"})
	checker, err := availability.NewChecker(availability.NewRepository(db))
	require.NoError(t, err)

	svc, err := NewService(
		&gormTxRunner{db: db},
		NewRepository(db),
		inventory.NewRepository(db),
		checker,
		outbox.NewService(outbox.NewRepository(db), logg),
		logg,
		30*time.Minute,
	)
	require.NoError(t, err)
	return svc
}

func seedItem(t *testing.T, db *gorm.DB, serviceType enums.ServiceType) *models.InventoryItem {
	t.Helper()

	item := &models.InventoryItem{
		ID:                uuid.New(),
		Name:              "Folding Table",
		Category:          "furniture",
		ServiceType:       serviceType,
		UnitPriceCentavos: 15000,
		Location:          enums.ItemLocationBoth,
		Active:            true,
	}
	require.NoError(t, db.Create(item).Error)
	return item
}

func seedBatch(t *testing.T, db *gorm.DB, itemID uuid.UUID, label string, qty int, expires *time.Time) *models.Batch {
	t.Helper()

	batch := &models.Batch{
		ID:          uuid.New(),
		ItemID:      itemID,
		BatchLabel:  label,
		QtyReceived: qty,
		QtyOnHand:   qty,
		ExpiresAt:   expires,
	}
	require.NoError(t, db.Create(batch).Error)
	return batch
}

func dateRange(t *testing.T, start, end string) types.DateRange {
	t.Helper()
	rng, err := types.ParseDateRange(start, end)
	require.NoError(t, err)
	return rng
}

func batchQty(t *testing.T, db *gorm.DB, batchID uuid.UUID) int {
	t.Helper()
	var batch models.Batch
	require.NoError(t, db.First(&batch, "id = ?", batchID).Error)
	return batch.QtyOnHand
}

func TestReserveDrawsBatchesSoonestExpiryFirst(t *testing.T) {
	t.Parallel()

	db := setupReservationsDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	item := seedItem(t, db, enums.ServiceTypeEquipment)
	july := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	june := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	later := seedBatch(t, db, item.ID, "L-JUL", 4, &july)
	never := seedBatch(t, db, item.ID, "L-NONE", 4, nil)
	sooner := seedBatch(t, db, item.ID, "L-JUN", 2, &june)

	res, err := svc.Reserve(ctx, ReserveRequest{
		BookingID: uuid.New(),
		ItemID:    item.ID,
		Range:     dateRange(t, "2026-09-10", "2026-09-12"),
		Qty:       5,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if len(res.Allocations) != 2 {
		t.Fatalf("expected 2 allocations, got %d", len(res.Allocations))
	}
	if res.Allocations[0].BatchID != sooner.ID || res.Allocations[0].Qty != 2 {
		t.Fatalf("first allocation should drain the soonest-expiring batch: %+v", res.Allocations[0])
	}
	if res.Allocations[1].BatchID != later.ID || res.Allocations[1].Qty != 3 {
		t.Fatalf("second allocation should come from the July batch: %+v", res.Allocations[1])
	}

	// Holds never touch physical batch quantities.
	for _, batch := range []struct {
		id  uuid.UUID
		qty int
	}{{sooner.ID, 2}, {later.ID, 4}, {never.ID, 4}} {
		if got := batchQty(t, db, batch.id); got != batch.qty {
			t.Fatalf("hold changed physical stock of batch %s to %d", batch.id, got)
		}
	}
	if res.Status != enums.ReservationStatusHeld {
		t.Fatalf("expected held status, got %s", res.Status)
	}
	if res.HoldExpiresAt == nil || !res.HoldExpiresAt.After(time.Now()) {
		t.Fatalf("hold expiry not set in the future: %v", res.HoldExpiresAt)
	}
}

func TestReserveInsufficientStockLeavesNothingBehind(t *testing.T) {
	t.Parallel()

	db := setupReservationsDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	item := seedItem(t, db, enums.ServiceTypeEquipment)
	batch := seedBatch(t, db, item.ID, "L-1", 5, nil)

	_, err := svc.Reserve(ctx, ReserveRequest{
		BookingID: uuid.New(),
		ItemID:    item.ID,
		Range:     dateRange(t, "2026-09-10", "2026-09-12"),
		Qty:       8,
	})
	if err == nil {
		t.Fatal("expected insufficient stock error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("unexpected error: %v", err)
	}

	var reservationCount int64
	require.NoError(t, db.Model(&models.Reservation{}).Count(&reservationCount).Error)
	if reservationCount != 0 {
		t.Fatalf("failed reserve left %d reservation rows", reservationCount)
	}
	if got := batchQty(t, db, batch.ID); got != 5 {
		t.Fatalf("failed reserve changed batch quantity to %d", got)
	}
}

func TestOverlappingHoldsShareTheSameStock(t *testing.T) {
	t.Parallel()

	db := setupReservationsDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	item := seedItem(t, db, enums.ServiceTypeEquipment)
	seedBatch(t, db, item.ID, "L-1", 5, nil)

	// First hold takes 3 of 5 over Sep 10-12.
	_, err := svc.Reserve(ctx, ReserveRequest{
		BookingID: uuid.New(),
		ItemID:    item.ID,
		Range:     dateRange(t, "2026-09-10", "2026-09-12"),
		Qty:       3,
	})
	if err != nil {
		t.Fatalf("first reserve: %v", err)
	}

	// 3 more on overlapping dates exceeds the 2 remaining.
	_, err = svc.Reserve(ctx, ReserveRequest{
		BookingID: uuid.New(),
		ItemID:    item.ID,
		Range:     dateRange(t, "2026-09-12", "2026-09-13"),
		Qty:       3,
	})
	if err == nil {
		t.Fatal("expected overlapping reserve to fail")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDisjointWindowsShareTheSameUnits(t *testing.T) {
	t.Parallel()

	db := setupReservationsDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	item := seedItem(t, db, enums.ServiceTypeEquipment)
	seedBatch(t, db, item.ID, "L-1", 5, nil)

	// All 5 units are held for early September.
	_, err := svc.Reserve(ctx, ReserveRequest{
		BookingID: uuid.New(),
		ItemID:    item.ID,
		Range:     dateRange(t, "2026-09-01", "2026-09-03"),
		Qty:       5,
	})
	if err != nil {
		t.Fatalf("september reserve: %v", err)
	}

	// An October rental uses the same equipment after it comes back.
	octRes, err := svc.Reserve(ctx, ReserveRequest{
		BookingID: uuid.New(),
		ItemID:    item.ID,
		Range:     dateRange(t, "2026-10-01", "2026-10-03"),
		Qty:       5,
	})
	if err != nil {
		t.Fatalf("disjoint october reserve: %v", err)
	}
	if got := len(octRes.Allocations); got != 1 || octRes.Allocations[0].Qty != 5 {
		t.Fatalf("october hold should occupy the full batch, got %+v", octRes.Allocations)
	}

	// October itself is now fully committed.
	_, err = svc.Reserve(ctx, ReserveRequest{
		BookingID: uuid.New(),
		ItemID:    item.ID,
		Range:     dateRange(t, "2026-10-03", "2026-10-04"),
		Qty:       1,
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("expected insufficient stock in october, got %v", err)
	}
}

func TestReleaseFreesExactBatchesAndIsIdempotent(t *testing.T) {
	t.Parallel()

	db := setupReservationsDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	item := seedItem(t, db, enums.ServiceTypeEquipment)
	june := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	first := seedBatch(t, db, item.ID, "L-JUN", 2, &june)
	second := seedBatch(t, db, item.ID, "L-NONE", 4, nil)
	window := dateRange(t, "2026-09-10", "2026-09-10")

	res, err := svc.Reserve(ctx, ReserveRequest{
		BookingID: uuid.New(),
		ItemID:    item.ID,
		Range:     window,
		Qty:       4,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	// Only 2 of 6 are left on that day while the hold is live.
	_, err = svc.Reserve(ctx, ReserveRequest{
		BookingID: uuid.New(), ItemID: item.ID, Range: window, Qty: 3,
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("expected insufficient stock while held, got %v", err)
	}

	if err := svc.Release(ctx, res.ID); err != nil {
		t.Fatalf("release: %v", err)
	}

	var reloaded models.Reservation
	require.NoError(t, db.First(&reloaded, "id = ?", res.ID).Error)
	if reloaded.Status != enums.ReservationStatusReleased {
		t.Fatalf("expected released, got %s", reloaded.Status)
	}

	// The released units are back on their exact batches: a fresh hold for
	// the same window draws FEFO from the june batch again.
	again, err := svc.Reserve(ctx, ReserveRequest{
		BookingID: uuid.New(), ItemID: item.ID, Range: window, Qty: 4,
	})
	if err != nil {
		t.Fatalf("reserve after release: %v", err)
	}
	if len(again.Allocations) != 2 ||
		again.Allocations[0].BatchID != first.ID || again.Allocations[0].Qty != 2 ||
		again.Allocations[1].BatchID != second.ID || again.Allocations[1].Qty != 2 {
		t.Fatalf("unexpected allocations after release: %+v", again.Allocations)
	}

	// A second release of the first reservation must not free the live
	// hold's units.
	if err := svc.Release(ctx, res.ID); err != nil {
		t.Fatalf("second release: %v", err)
	}
	_, err = svc.Reserve(ctx, ReserveRequest{
		BookingID: uuid.New(), ItemID: item.ID, Range: window, Qty: 3,
	})
	typed = pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("double release freed held units: %v", err)
	}
}

func TestExpireFreesTheWindowAndQueuesEvent(t *testing.T) {
	t.Parallel()

	db := setupReservationsDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	item := seedItem(t, db, enums.ServiceTypeEquipment)
	seedBatch(t, db, item.ID, "L-1", 3, nil)
	window := dateRange(t, "2026-09-10", "2026-09-11")

	res, err := svc.Reserve(ctx, ReserveRequest{
		BookingID: uuid.New(),
		ItemID:    item.ID,
		Range:     window,
		Qty:       2,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if err := svc.Expire(ctx, res.ID); err != nil {
		t.Fatalf("expire: %v", err)
	}

	// The expired hold no longer counts against the window.
	if _, err := svc.Reserve(ctx, ReserveRequest{
		BookingID: uuid.New(), ItemID: item.ID, Range: window, Qty: 3,
	}); err != nil {
		t.Fatalf("reserve after expiry: %v", err)
	}

	var reloaded models.Reservation
	require.NoError(t, db.First(&reloaded, "id = ?", res.ID).Error)
	if reloaded.Status != enums.ReservationStatusExpired {
		t.Fatalf("expected expired, got %s", reloaded.Status)
	}

	var events int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.OutboxEventReservationExpired).
		Count(&events).Error)
	if events != 1 {
		t.Fatalf("expected 1 expiry event, got %d", events)
	}
}

func TestConfirmStopsTheExpirySweep(t *testing.T) {
	t.Parallel()

	db := setupReservationsDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	item := seedItem(t, db, enums.ServiceTypeEquipment)
	seedBatch(t, db, item.ID, "L-1", 3, nil)

	res, err := svc.Reserve(ctx, ReserveRequest{
		BookingID: uuid.New(),
		ItemID:    item.ID,
		Range:     dateRange(t, "2026-09-10", "2026-09-11"),
		Qty:       1,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	// Backdate the hold so it would be sweepable if still held.
	past := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&models.Reservation{}).
		Where("id = ?", res.ID).
		Update("hold_expires_at", past).Error)

	if err := svc.Confirm(ctx, res.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	expired, err := svc.ListExpiredHeld(ctx, time.Now(), 10)
	if err != nil {
		t.Fatalf("list expired: %v", err)
	}
	if len(expired) != 0 {
		t.Fatalf("confirmed reservation still listed as expired hold")
	}

	// Confirm twice is a no-op, confirm after release conflicts.
	if err := svc.Confirm(ctx, res.ID); err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	require.NoError(t, db.Model(&models.Reservation{}).
		Where("id = ?", res.ID).
		Update("status", enums.ReservationStatusReleased).Error)
	err = svc.Confirm(ctx, res.ID)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestConcurrentReservesNeverOversell(t *testing.T) {
	db := setupReservationsDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	item := seedItem(t, db, enums.ServiceTypeEquipment)
	seedBatch(t, db, item.ID, "L-1", 1, nil)
	rng := dateRange(t, "2026-09-10", "2026-09-12")

	var wg sync.WaitGroup
	results := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Reserve(ctx, ReserveRequest{
				BookingID: uuid.New(),
				ItemID:    item.ID,
				Range:     rng,
				Qty:       1,
			})
			results[i] = err
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one winner, got %d", succeeded)
	}

	var held int64
	require.NoError(t, db.Model(&models.Reservation{}).
		Where("status = ?", enums.ReservationStatusHeld).
		Count(&held).Error)
	if held != 1 {
		t.Fatalf("expected 1 held reservation, got %d", held)
	}
}
