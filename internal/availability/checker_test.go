package availability

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/eventrentph/eventrent-backend/pkg/db/models"
	"github.com/eventrentph/eventrent-backend/pkg/enums"
	pkgerrors "github.com/eventrentph/eventrent-backend/pkg/errors"
	"github.com/eventrentph/eventrent-backend/pkg/types"
)

func setupAvailabilityDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:availability_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	for _, ddl := range []string{
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
	} {
		require.NoError(t, db.Exec(ddl).Error)
	}
	return db
}

func newTestChecker(t *testing.T, db *gorm.DB) Checker {
	t.Helper()
	checker, err := NewChecker(NewRepository(db))
	require.NoError(t, err)
	return checker
}

func seedReservation(t *testing.T, db *gorm.DB, itemID uuid.UUID, qty int, status enums.ReservationStatus, start, end string) {
	t.Helper()

	rng, err := types.ParseDateRange(start, end)
	require.NoError(t, err)
	res := &models.Reservation{
		ID:        uuid.New(),
		BookingID: uuid.New(),
		ItemID:    itemID,
		Qty:       qty,
		StartDate: rng.Start,
		EndDate:   rng.End,
		Status:    status,
	}
	require.NoError(t, db.Create(res).Error)
}

func testRange(t *testing.T, start, end string) types.DateRange {
	t.Helper()
	rng, err := types.ParseDateRange(start, end)
	require.NoError(t, err)
	return rng
}

func TestCheckCountableSubtractsOnlyOverlappingHolds(t *testing.T) {
	t.Parallel()

	db := setupAvailabilityDB(t)
	checker := newTestChecker(t, db)
	ctx := context.Background()

	item := &models.InventoryItem{ID: uuid.New(), ServiceType: enums.ServiceTypeEquipment}

	// 10 physical units, 4 of them committed to Sep 10-12.
	require.NoError(t, db.Create(&models.Batch{
		ID: uuid.New(), ItemID: item.ID, BatchLabel: "L-1", QtyReceived: 10, QtyOnHand: 10,
	}).Error)
	seedReservation(t, db, item.ID, 4, enums.ReservationStatusHeld, "2026-09-10", "2026-09-12")

	// Overlapping window: 10 on hand minus the 4 overlapping leaves 6.
	result, err := checker.Check(ctx, item, testRange(t, "2026-09-11", "2026-09-13"), 6)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !result.Available || result.Remaining != 6 {
		t.Fatalf("expected 6 available on overlapping dates, got %+v", result)
	}
	result, err = checker.Check(ctx, item, testRange(t, "2026-09-11", "2026-09-13"), 7)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if result.Available || result.Shortfall != 1 {
		t.Fatalf("expected shortfall of 1, got %+v", result)
	}

	// Disjoint window: the hold does not touch it, all 10 reservable.
	result, err = checker.Check(ctx, item, testRange(t, "2026-10-01", "2026-10-03"), 10)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !result.Available || result.Remaining != 10 {
		t.Fatalf("expected full stock on disjoint dates, got %+v", result)
	}
}

func TestCheckCountableIgnoresSettledReservations(t *testing.T) {
	t.Parallel()

	db := setupAvailabilityDB(t)
	checker := newTestChecker(t, db)
	ctx := context.Background()

	item := &models.InventoryItem{ID: uuid.New(), ServiceType: enums.ServiceTypeEquipment}
	require.NoError(t, db.Create(&models.Batch{
		ID: uuid.New(), ItemID: item.ID, BatchLabel: "L-1", QtyReceived: 5, QtyOnHand: 5,
	}).Error)
	seedReservation(t, db, item.ID, 5, enums.ReservationStatusReleased, "2026-09-10", "2026-09-12")
	seedReservation(t, db, item.ID, 5, enums.ReservationStatusExpired, "2026-09-10", "2026-09-12")

	result, err := checker.Check(ctx, item, testRange(t, "2026-09-10", "2026-09-12"), 5)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !result.Available || result.Remaining != 5 {
		t.Fatalf("settled reservations should not count: %+v", result)
	}
}

func TestCheckCapacityWorstDayRules(t *testing.T) {
	t.Parallel()

	db := setupAvailabilityDB(t)
	checker := newTestChecker(t, db)
	ctx := context.Background()

	capacity := 3
	item := &models.InventoryItem{
		ID:             uuid.New(),
		ServiceType:    enums.ServiceTypeService,
		CapacityPerDay: &capacity,
	}

	// Sep 10 has 2 booked, Sep 11 has 1.
	seedReservation(t, db, item.ID, 2, enums.ReservationStatusConfirmed, "2026-09-10", "2026-09-10")
	seedReservation(t, db, item.ID, 1, enums.ReservationStatusHeld, "2026-09-10", "2026-09-11")

	result, err := checker.Check(ctx, item, testRange(t, "2026-09-10", "2026-09-11"), 1)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if result.Available {
		t.Fatalf("sep 10 is fully booked, expected unavailable: %+v", result)
	}
	if result.Shortfall != 1 || result.Remaining != 0 {
		t.Fatalf("unexpected capacity math: %+v", result)
	}

	result, err = checker.Check(ctx, item, testRange(t, "2026-09-11", "2026-09-11"), 2)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !result.Available || result.Remaining != 2 {
		t.Fatalf("sep 11 should fit 2 more: %+v", result)
	}
}

func TestCheckCapacityRequiresConfiguredCapacity(t *testing.T) {
	t.Parallel()

	db := setupAvailabilityDB(t)
	checker := newTestChecker(t, db)

	item := &models.InventoryItem{ID: uuid.New(), ServiceType: enums.ServiceTypeService}
	_, err := checker.Check(context.Background(), item, testRange(t, "2026-09-10", "2026-09-10"), 1)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, err = checker.Check(context.Background(), item, testRange(t, "2026-09-10", "2026-09-10"), 0)
	typed = pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for zero qty, got %v", err)
	}
}

func TestCheckCapacityDayBoundaries(t *testing.T) {
	t.Parallel()

	db := setupAvailabilityDB(t)
	checker := newTestChecker(t, db)
	ctx := context.Background()

	capacity := 1
	item := &models.InventoryItem{
		ID:             uuid.New(),
		ServiceType:    enums.ServiceTypeService,
		CapacityPerDay: &capacity,
	}
	seedReservation(t, db, item.ID, 1, enums.ReservationStatusConfirmed, "2026-09-10", "2026-09-12")

	// Back-to-back on the following day is fine; sharing the end day is not.
	result, err := checker.Check(ctx, item, testRange(t, "2026-09-13", "2026-09-14"), 1)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !result.Available {
		t.Fatalf("adjacent range should be free: %+v", result)
	}

	result, err = checker.Check(ctx, item, testRange(t, "2026-09-12", "2026-09-13"), 1)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if result.Available {
		t.Fatalf("shared end day should collide: %+v", result)
	}
}
