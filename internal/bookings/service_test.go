package bookings

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/eventrentph/eventrent-backend/internal/availability"
	"github.com/eventrentph/eventrent-backend/internal/inventory"
	"github.com/eventrentph/eventrent-backend/internal/reservations"
	"github.com/eventrentph/eventrent-backend/pkg/db/models"
	"github.com/eventrentph/eventrent-backend/pkg/enums"
	pkgerrors "github.com/eventrentph/eventrent-backend/pkg/errors"
	"github.com/eventrentph/eventrent-backend/pkg/logger"
	"github.com/eventrentph/eventrent-backend/pkg/outbox"
	"github.com/eventrentph/eventrent-backend/pkg/types"
)

func setupBookingsDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:bookings_" + uuid.NewString() + "?mode=memory&cache=shared"
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
		`CREATE TABLE bookings (
  id TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL,
  item_id TEXT NOT NULL,
  qty INTEGER NOT NULL,
  start_date DATETIME NOT NULL,
  end_date DATETIME NOT NULL,
  event_location TEXT,
  status TEXT NOT NULL DEFAULT 'pending',
  payment_status TEXT NOT NULL DEFAULT 'unpaid',
  total_centavos INTEGER NOT NULL,
  amount_paid_centavos INTEGER NOT NULL DEFAULT 0,
  notes TEXT,
  cancelled_at DATETIME,
  completed_at DATETIME,
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

type bookingTestEnv struct {
	db           *gorm.DB
	bookings     Service
	reservations reservations.Service
}

func newBookingTestEnv(t *testing.T) *bookingTestEnv {
	t.Helper()

	db := setupBookingsDB(t)
	logg := logger.New(logger.Options{ServiceName: "test"})
	tx := &gormTxRunner{db: db}
	inventoryRepo := inventory.NewRepository(db)
	publisher := outbox.NewService(outbox.NewRepository(db), logg)

	checker, err := availability.NewChecker(availability.NewRepository(db))
	require.NoError(t, err)

	reservationSvc, err := reservations.NewService(
		tx, reservations.NewRepository(db), inventoryRepo, checker, publisher, logg, 30*time.Minute,
	)
	require.NoError(t, err)

	bookingSvc, err := NewService(tx, NewRepository(db), inventoryRepo, reservationSvc, publisher, logg)
	require.NoError(t, err)

	return &bookingTestEnv{db: db, bookings: bookingSvc, reservations: reservationSvc}
}

func (e *bookingTestEnv) seedItem(t *testing.T, priceCentavos int64, stock int) *models.InventoryItem {
	t.Helper()

	item := &models.InventoryItem{
		ID:                uuid.New(),
		Name:              "Sound System",
		Category:          "audio",
		ServiceType:       enums.ServiceTypeEquipment,
		UnitPriceCentavos: priceCentavos,
		Location:          enums.ItemLocationBoth,
		Active:            true,
	}
	require.NoError(t, e.db.Create(item).Error)
	require.NoError(t, e.db.Create(&models.Batch{
		ID: uuid.New(), ItemID: item.ID, BatchLabel: "L-1", QtyReceived: stock, QtyOnHand: stock,
	}).Error)
	return item
}

func futureRange(t *testing.T, daysOut, length int) types.DateRange {
	t.Helper()
	start := time.Now().UTC().AddDate(0, 0, daysOut)
	rng, err := types.NewDateRange(start, start.AddDate(0, 0, length-1))
	require.NoError(t, err)
	return rng
}

func customer() Actor {
	return Actor{UserID: uuid.New(), Role: enums.MemberRoleCustomer}
}

func TestCreateBookingPlacesHold(t *testing.T) {
	t.Parallel()

	env := newBookingTestEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, 50000, 5)
	actor := customer()

	booking, err := env.bookings.Create(ctx, actor, CreateInput{
		ItemID: item.ID,
		Range:  futureRange(t, 14, 3),
		Qty:    2,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if booking.Status != enums.BookingStatusPending {
		t.Fatalf("expected pending, got %s", booking.Status)
	}
	if booking.PaymentStatus != enums.BookingPaymentStatusUnpaid {
		t.Fatalf("expected unpaid, got %s", booking.PaymentStatus)
	}
	// 500 pesos x 2 units x 3 days.
	if booking.TotalCentavos != 300000 {
		t.Fatalf("expected total 300000, got %d", booking.TotalCentavos)
	}

	var res models.Reservation
	require.NoError(t, env.db.First(&res, "booking_id = ?", booking.ID).Error)
	if res.Status != enums.ReservationStatusHeld || res.Qty != 2 {
		t.Fatalf("unexpected reservation: %+v", res)
	}

	var allocated int64
	require.NoError(t, env.db.Model(&models.ReservationAllocation{}).
		Where("reservation_id = ?", res.ID).
		Select("COALESCE(SUM(qty), 0)").
		Scan(&allocated).Error)
	if allocated != 2 {
		t.Fatalf("expected 2 units committed to the batch ledger, got %d", allocated)
	}
	var batch models.Batch
	require.NoError(t, env.db.First(&batch, "item_id = ?", item.ID).Error)
	if batch.QtyOnHand != 5 {
		t.Fatalf("hold changed physical stock to %d", batch.QtyOnHand)
	}

	var events int64
	require.NoError(t, env.db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.OutboxEventBookingCreated).
		Count(&events).Error)
	if events != 1 {
		t.Fatalf("expected booking.created event, got %d", events)
	}
}

func TestCreateBookingValidation(t *testing.T) {
	t.Parallel()

	env := newBookingTestEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, 50000, 5)
	actor := customer()

	past, err := types.NewDateRange(
		time.Now().UTC().AddDate(0, 0, -3),
		time.Now().UTC().AddDate(0, 0, -1),
	)
	require.NoError(t, err)

	cases := []struct {
		name  string
		input CreateInput
	}{
		{"past start date", CreateInput{ItemID: item.ID, Range: past, Qty: 1}},
		{"zero quantity", CreateInput{ItemID: item.ID, Range: futureRange(t, 7, 1), Qty: 0}},
		{"missing item", CreateInput{Range: futureRange(t, 7, 1), Qty: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.bookings.Create(ctx, actor, tc.input)
			typed := pkgerrors.As(err)
			if typed == nil || typed.Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	require.NoError(t, env.db.Model(&models.InventoryItem{}).
		Where("id = ?", item.ID).
		Update("active", false).Error)
	_, err = env.bookings.Create(ctx, actor, CreateInput{ItemID: item.ID, Range: futureRange(t, 7, 1), Qty: 1})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for inactive item, got %v", err)
	}
}

func TestGetEnforcesOwnership(t *testing.T) {
	t.Parallel()

	env := newBookingTestEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, 50000, 5)
	owner := customer()

	booking, err := env.bookings.Create(ctx, owner, CreateInput{
		ItemID: item.ID, Range: futureRange(t, 7, 1), Qty: 1,
	})
	require.NoError(t, err)

	_, err = env.bookings.Get(ctx, customer(), booking.ID)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("stranger should see not found, got %v", err)
	}

	admin := Actor{UserID: uuid.New(), Role: enums.MemberRoleAdmin}
	if _, err := env.bookings.Get(ctx, admin, booking.ID); err != nil {
		t.Fatalf("admin should see any booking: %v", err)
	}
}

func TestCancelReleasesHold(t *testing.T) {
	t.Parallel()

	env := newBookingTestEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, 50000, 5)
	actor := customer()
	window := futureRange(t, 7, 2)

	booking, err := env.bookings.Create(ctx, actor, CreateInput{
		ItemID: item.ID, Range: window, Qty: 3,
	})
	require.NoError(t, err)

	cancelled, err := env.bookings.Cancel(ctx, actor, booking.ID, "change of plans")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != enums.BookingStatusCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("unexpected cancel state: %+v", cancelled)
	}

	var res models.Reservation
	require.NoError(t, env.db.First(&res, "booking_id = ?", booking.ID).Error)
	if res.Status != enums.ReservationStatusReleased {
		t.Fatalf("expected released reservation, got %s", res.Status)
	}

	// The released units are bookable again over the same dates.
	if _, err := env.bookings.Create(ctx, actor, CreateInput{
		ItemID: item.ID, Range: window, Qty: 5,
	}); err != nil {
		t.Fatalf("rebook after cancel: %v", err)
	}

	// Repeat cancel is a quiet no-op that does not free the new hold.
	if _, err := env.bookings.Cancel(ctx, actor, booking.ID, "again"); err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	_, err = env.bookings.Create(ctx, actor, CreateInput{
		ItemID: item.ID, Range: window, Qty: 1,
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("expected insufficient stock after rebooking, got %v", err)
	}
}

func TestVerifiedDownPaymentConfirmsBooking(t *testing.T) {
	t.Parallel()

	env := newBookingTestEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, 50000, 5)
	actor := customer()

	booking, err := env.bookings.Create(ctx, actor, CreateInput{
		ItemID: item.ID, Range: futureRange(t, 7, 2), Qty: 1,
	})
	require.NoError(t, err)

	err = env.db.Transaction(func(tx *gorm.DB) error {
		return env.bookings.SetPaymentStateTx(ctx, tx, booking.ID, enums.BookingPaymentStatusProcessing)
	})
	require.NoError(t, err)

	// 30% down on a 1000-peso booking.
	var updated *models.Booking
	err = env.db.Transaction(func(tx *gorm.DB) error {
		updated, err = env.bookings.ApplyVerifiedPaymentTx(ctx, tx, booking.ID, 30000, actor)
		return err
	})
	if err != nil {
		t.Fatalf("apply payment: %v", err)
	}

	if updated.Status != enums.BookingStatusConfirmed {
		t.Fatalf("down payment should confirm, got %s", updated.Status)
	}
	if updated.PaymentStatus != enums.BookingPaymentStatusPaid {
		t.Fatalf("expected paid, got %s", updated.PaymentStatus)
	}
	if updated.AmountPaidCentavos != 30000 || updated.RemainingCentavos() != 70000 {
		t.Fatalf("unexpected money state: paid=%d remaining=%d", updated.AmountPaidCentavos, updated.RemainingCentavos())
	}

	var res models.Reservation
	require.NoError(t, env.db.First(&res, "booking_id = ?", booking.ID).Error)
	if res.Status != enums.ReservationStatusConfirmed {
		t.Fatalf("reservation should be confirmed, got %s", res.Status)
	}

	var events int64
	require.NoError(t, env.db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.OutboxEventBookingConfirmed).
		Count(&events).Error)
	if events != 1 {
		t.Fatalf("expected booking.confirmed event, got %d", events)
	}
}

func TestApplyVerifiedPaymentRejectsCancelledBooking(t *testing.T) {
	t.Parallel()

	env := newBookingTestEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, 50000, 5)
	actor := customer()

	booking, err := env.bookings.Create(ctx, actor, CreateInput{
		ItemID: item.ID, Range: futureRange(t, 7, 1), Qty: 1,
	})
	require.NoError(t, err)
	_, err = env.bookings.Cancel(ctx, actor, booking.ID, "cancelled before paying")
	require.NoError(t, err)

	err = env.db.Transaction(func(tx *gorm.DB) error {
		_, err := env.bookings.ApplyVerifiedPaymentTx(ctx, tx, booking.ID, 10000, actor)
		return err
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestExpireHoldCancelsPendingBooking(t *testing.T) {
	t.Parallel()

	env := newBookingTestEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, 50000, 5)
	actor := customer()
	window := futureRange(t, 7, 1)

	booking, err := env.bookings.Create(ctx, actor, CreateInput{
		ItemID: item.ID, Range: window, Qty: 2,
	})
	require.NoError(t, err)

	var res models.Reservation
	require.NoError(t, env.db.First(&res, "booking_id = ?", booking.ID).Error)

	if err := env.bookings.ExpireHold(ctx, res); err != nil {
		t.Fatalf("expire hold: %v", err)
	}

	var reloadedRes models.Reservation
	require.NoError(t, env.db.First(&reloadedRes, "id = ?", res.ID).Error)
	if reloadedRes.Status != enums.ReservationStatusExpired {
		t.Fatalf("expected expired reservation, got %s", reloadedRes.Status)
	}

	var reloadedBooking models.Booking
	require.NoError(t, env.db.First(&reloadedBooking, "id = ?", booking.ID).Error)
	if reloadedBooking.Status != enums.BookingStatusCancelled {
		t.Fatalf("expected cancelled booking, got %s", reloadedBooking.Status)
	}

	// The expired hold frees its dates for a full-stock rebooking.
	if _, err := env.bookings.Create(ctx, actor, CreateInput{
		ItemID: item.ID, Range: window, Qty: 5,
	}); err != nil {
		t.Fatalf("rebook after expiry: %v", err)
	}
}

func TestAdminTransition(t *testing.T) {
	t.Parallel()

	env := newBookingTestEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, 50000, 5)
	actor := customer()
	admin := Actor{UserID: uuid.New(), Role: enums.MemberRoleAdmin}

	booking, err := env.bookings.Create(ctx, actor, CreateInput{
		ItemID: item.ID, Range: futureRange(t, 7, 1), Qty: 1,
	})
	require.NoError(t, err)

	confirmed := enums.BookingStatusConfirmed
	_, err = env.bookings.AdminTransition(ctx, actor, booking.ID, TransitionInput{Status: &confirmed})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("customer transition should be forbidden, got %v", err)
	}

	updated, err := env.bookings.AdminTransition(ctx, admin, booking.ID, TransitionInput{Status: &confirmed})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if updated.Status != enums.BookingStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", updated.Status)
	}
	var res models.Reservation
	require.NoError(t, env.db.First(&res, "booking_id = ?", booking.ID).Error)
	if res.Status != enums.ReservationStatusConfirmed {
		t.Fatalf("admin confirm should confirm the hold, got %s", res.Status)
	}

	completed := enums.BookingStatusCompleted
	updated, err = env.bookings.AdminTransition(ctx, admin, booking.ID, TransitionInput{Status: &completed})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if updated.Status != enums.BookingStatusCompleted || updated.CompletedAt == nil {
		t.Fatalf("unexpected completion state: %+v", updated)
	}

	// Completed is terminal.
	_, err = env.bookings.AdminTransition(ctx, admin, booking.ID, TransitionInput{Status: &confirmed})
	typed = pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}

	_, err = env.bookings.AdminTransition(ctx, admin, booking.ID, TransitionInput{})
	typed = pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("empty transition should fail validation, got %v", err)
	}
}

func TestCompleteDueClosesEndedBookings(t *testing.T) {
	t.Parallel()

	env := newBookingTestEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, 50000, 5)

	ended := &models.Booking{
		ID:            uuid.New(),
		CustomerID:    uuid.New(),
		ItemID:        item.ID,
		Qty:           1,
		StartDate:     time.Now().UTC().AddDate(0, 0, -5),
		EndDate:       time.Now().UTC().AddDate(0, 0, -2),
		Status:        enums.BookingStatusConfirmed,
		PaymentStatus: enums.BookingPaymentStatusPaid,
		TotalCentavos: 50000,
	}
	stillRunning := &models.Booking{
		ID:            uuid.New(),
		CustomerID:    uuid.New(),
		ItemID:        item.ID,
		Qty:           1,
		StartDate:     time.Now().UTC().AddDate(0, 0, -1),
		EndDate:       time.Now().UTC().AddDate(0, 0, 3),
		Status:        enums.BookingStatusConfirmed,
		PaymentStatus: enums.BookingPaymentStatusPaid,
		TotalCentavos: 50000,
	}
	require.NoError(t, env.db.Create(ended).Error)
	require.NoError(t, env.db.Create(stillRunning).Error)

	completed, err := env.bookings.CompleteDue(ctx, time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("complete due: %v", err)
	}
	if completed != 1 {
		t.Fatalf("expected 1 completion, got %d", completed)
	}

	var reloaded models.Booking
	require.NoError(t, env.db.First(&reloaded, "id = ?", ended.ID).Error)
	if reloaded.Status != enums.BookingStatusCompleted || reloaded.CompletedAt == nil {
		t.Fatalf("unexpected completion state: %+v", reloaded)
	}

	reloaded = models.Booking{}
	require.NoError(t, env.db.First(&reloaded, "id = ?", stillRunning.ID).Error)
	if reloaded.Status != enums.BookingStatusConfirmed {
		t.Fatalf("running booking should stay confirmed, got %s", reloaded.Status)
	}
}
