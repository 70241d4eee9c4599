package payments

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/eventrentph/eventrent-backend/internal/availability"
	"github.com/eventrentph/eventrent-backend/internal/bookings"
	"github.com/eventrentph/eventrent-backend/internal/inventory"
	"github.com/eventrentph/eventrent-backend/internal/reservations"
	"github.com/eventrentph/eventrent-backend/pkg/config"
	"github.com/eventrentph/eventrent-backend/pkg/db/models"
	"github.com/eventrentph/eventrent-backend/pkg/enums"
	pkgerrors "github.com/eventrentph/eventrent-backend/pkg/errors"
	"github.com/eventrentph/eventrent-backend/pkg/logger"
	"github.com/eventrentph/eventrent-backend/pkg/outbox"
	"github.com/eventrentph/eventrent-backend/pkg/qr"
	"github.com/eventrentph/eventrent-backend/pkg/types"
)

func setupPaymentsDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:payments_" + uuid.NewString() + "?mode=memory&cache=shared"
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
		`CREATE TABLE payments (
  id TEXT PRIMARY KEY,
  booking_id TEXT,
  user_id TEXT NOT NULL,
  amount_centavos INTEGER NOT NULL,
  reference_number TEXT NOT NULL UNIQUE,
  transaction_id TEXT,
  payment_type TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'processing',
  extracted_amount_centavos INTEGER,
  extracted_reference TEXT,
  ocr_confidence TEXT,
  ocr_raw_text TEXT,
  amount_match INTEGER,
  reference_match INTEGER,
  verification_issues TEXT,
  flagged_for_review INTEGER NOT NULL DEFAULT 0,
  review_notes TEXT,
  reviewed_by TEXT,
  reviewed_at DATETIME,
  verified_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
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

type paymentsTestEnv struct {
	db       *gorm.DB
	bookings bookings.Service
	payments Service
}

func newPaymentsTestEnv(t *testing.T) *paymentsTestEnv {
	t.Helper()

	db := setupPaymentsDB(t)
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
	bookingSvc, err := bookings.NewService(tx, bookings.NewRepository(db), inventoryRepo, reservationSvc, publisher, logg)
	require.NoError(t, err)

	paymentSvc, err := NewService(tx, NewRepository(db), bookingSvc, config.PaymentsConfig{
		MerchantName:            "EventRent PH",
		MerchantCity:            "Quezon City",
		MerchantAccount:         "09170000000",
		DownPaymentPercent:      30,
		AmountToleranceCentavos: 100,
	}, logg)
	require.NoError(t, err)

	return &paymentsTestEnv{db: db, bookings: bookingSvc, payments: paymentSvc}
}

// seedBooking creates a pending booking worth 1000 pesos.
func (e *paymentsTestEnv) seedBooking(t *testing.T, actor bookings.Actor) *models.Booking {
	t.Helper()
	ctx := context.Background()

	item := &models.InventoryItem{
		ID:                uuid.New(),
		Name:              "Catering Set",
		Category:          "catering",
		ServiceType:       enums.ServiceTypeEquipment,
		UnitPriceCentavos: 50000,
		Location:          enums.ItemLocationBoth,
		Active:            true,
	}
	require.NoError(t, e.db.Create(item).Error)
	require.NoError(t, e.db.Create(&models.Batch{
		ID: uuid.New(), ItemID: item.ID, BatchLabel: "L-1", QtyReceived: 5, QtyOnHand: 5,
	}).Error)

	start := time.Now().UTC().AddDate(0, 0, 7)
	rng, err := types.NewDateRange(start, start.AddDate(0, 0, 1))
	require.NoError(t, err)
	booking, err := e.bookings.Create(ctx, actor, bookings.CreateInput{ItemID: item.ID, Range: rng, Qty: 1})
	require.NoError(t, err)
	return booking
}

var referenceShape = regexp.MustCompile(`^EVT-[0-9]{8}-[0-9a-f]{10}$`)

func TestCreateQRFullPayment(t *testing.T) {
	t.Parallel()

	env := newPaymentsTestEnv(t)
	ctx := context.Background()
	actor := bookings.Actor{UserID: uuid.New(), Role: enums.MemberRoleCustomer}
	booking := env.seedBooking(t, actor)

	result, err := env.payments.CreateQR(ctx, actor, QRRequest{
		BookingID:   booking.ID,
		PaymentType: enums.PaymentTypeFull,
	})
	if err != nil {
		t.Fatalf("create qr: %v", err)
	}

	if result.AmountCentavos != booking.TotalCentavos {
		t.Fatalf("full payment should cover the balance, got %d", result.AmountCentavos)
	}
	if !referenceShape.MatchString(result.ReferenceNumber) {
		t.Fatalf("unexpected reference shape %q", result.ReferenceNumber)
	}
	if !qr.Verify(result.Payload) {
		t.Fatalf("payload fails crc check: %s", result.Payload)
	}
	if !strings.Contains(result.Payload, result.ReferenceNumber) || !strings.Contains(result.Payload, "1000.00") {
		t.Fatalf("payload missing reference or amount: %s", result.Payload)
	}

	var payment models.Payment
	require.NoError(t, env.db.First(&payment, "id = ?", result.PaymentID).Error)
	if payment.Status != enums.PaymentStatusProcessing || payment.PaymentType != enums.PaymentTypeFull {
		t.Fatalf("unexpected payment row: %+v", payment)
	}

	var reloaded models.Booking
	require.NoError(t, env.db.First(&reloaded, "id = ?", booking.ID).Error)
	if reloaded.PaymentStatus != enums.BookingPaymentStatusProcessing {
		t.Fatalf("booking payment should be processing, got %s", reloaded.PaymentStatus)
	}
}

func TestCreateQRDownPayment(t *testing.T) {
	t.Parallel()

	env := newPaymentsTestEnv(t)
	ctx := context.Background()
	actor := bookings.Actor{UserID: uuid.New(), Role: enums.MemberRoleCustomer}
	booking := env.seedBooking(t, actor)

	result, err := env.payments.CreateQR(ctx, actor, QRRequest{
		BookingID:   booking.ID,
		PaymentType: enums.PaymentTypeDownPayment,
	})
	if err != nil {
		t.Fatalf("create qr: %v", err)
	}
	// 30% of 1000 pesos.
	if result.AmountCentavos != 30000 {
		t.Fatalf("expected 30000 centavos down, got %d", result.AmountCentavos)
	}

	// Once anything is paid the balance must be settled in full.
	require.NoError(t, env.db.Model(&models.Booking{}).
		Where("id = ?", booking.ID).
		Updates(map[string]any{"amount_paid_centavos": 30000, "payment_status": enums.BookingPaymentStatusPaid}).Error)
	require.NoError(t, env.db.Model(&models.Payment{}).
		Where("id = ?", result.PaymentID).
		Update("status", enums.PaymentStatusPaid).Error)

	_, err = env.payments.CreateQR(ctx, actor, QRRequest{
		BookingID:   booking.ID,
		PaymentType: enums.PaymentTypeDownPayment,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("second down payment should conflict, got %v", err)
	}

	balance, err := env.payments.CreateQR(ctx, actor, QRRequest{
		BookingID:   booking.ID,
		PaymentType: enums.PaymentTypeFull,
	})
	if err != nil {
		t.Fatalf("balance qr: %v", err)
	}
	if balance.AmountCentavos != 70000 {
		t.Fatalf("expected remaining 70000 centavos, got %d", balance.AmountCentavos)
	}
}

func TestCreateQRSupersedesStaleQR(t *testing.T) {
	t.Parallel()

	env := newPaymentsTestEnv(t)
	ctx := context.Background()
	actor := bookings.Actor{UserID: uuid.New(), Role: enums.MemberRoleCustomer}
	booking := env.seedBooking(t, actor)

	first, err := env.payments.CreateQR(ctx, actor, QRRequest{BookingID: booking.ID, PaymentType: enums.PaymentTypeFull})
	require.NoError(t, err)
	second, err := env.payments.CreateQR(ctx, actor, QRRequest{BookingID: booking.ID, PaymentType: enums.PaymentTypeFull})
	require.NoError(t, err)

	if first.ReferenceNumber == second.ReferenceNumber {
		t.Fatal("each QR must carry a fresh reference")
	}

	var stale models.Payment
	require.NoError(t, env.db.First(&stale, "id = ?", first.PaymentID).Error)
	if stale.Status != enums.PaymentStatusSuperseded {
		t.Fatalf("old payment should be superseded, got %s", stale.Status)
	}
	var live models.Payment
	require.NoError(t, env.db.First(&live, "id = ?", second.PaymentID).Error)
	if live.Status != enums.PaymentStatusProcessing {
		t.Fatalf("new payment should be processing, got %s", live.Status)
	}
}

func TestCreateQRCustomAmount(t *testing.T) {
	t.Parallel()

	env := newPaymentsTestEnv(t)
	ctx := context.Background()
	actor := bookings.Actor{UserID: uuid.New(), Role: enums.MemberRoleCustomer}
	booking := env.seedBooking(t, actor)

	// A partial amount below the balance is honored as-is.
	result, err := env.payments.CreateQR(ctx, actor, QRRequest{
		BookingID:      booking.ID,
		PaymentType:    enums.PaymentTypeFull,
		AmountCentavos: 20000,
	})
	if err != nil {
		t.Fatalf("create qr: %v", err)
	}
	if result.AmountCentavos != 20000 {
		t.Fatalf("custom amount should be honored, got %d", result.AmountCentavos)
	}
	if !strings.Contains(result.Payload, "200.00") {
		t.Fatalf("payload should carry the custom amount: %s", result.Payload)
	}

	_, err = env.payments.CreateQR(ctx, actor, QRRequest{
		BookingID:      booking.ID,
		PaymentType:    enums.PaymentTypeFull,
		AmountCentavos: booking.TotalCentavos + 1,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("amount above the balance should fail validation, got %v", err)
	}

	// The down payment cap binds too: 30% of 1000 pesos is the most a down
	// payment QR may ask for.
	_, err = env.payments.CreateQR(ctx, actor, QRRequest{
		BookingID:      booking.ID,
		PaymentType:    enums.PaymentTypeDownPayment,
		AmountCentavos: 30001,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("amount above the down payment should fail validation, got %v", err)
	}

	_, err = env.payments.CreateQR(ctx, actor, QRRequest{
		BookingID:      booking.ID,
		PaymentType:    enums.PaymentTypeFull,
		AmountCentavos: -500,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("negative amount should fail validation, got %v", err)
	}
}

func TestRequeueStaleVerifying(t *testing.T) {
	t.Parallel()

	env := newPaymentsTestEnv(t)
	ctx := context.Background()
	actor := bookings.Actor{UserID: uuid.New(), Role: enums.MemberRoleCustomer}

	stale, err := env.payments.CreateQR(ctx, actor, QRRequest{
		BookingID: env.seedBooking(t, actor).ID, PaymentType: enums.PaymentTypeFull,
	})
	require.NoError(t, err)
	fresh, err := env.payments.CreateQR(ctx, actor, QRRequest{
		BookingID: env.seedBooking(t, actor).ID, PaymentType: enums.PaymentTypeFull,
	})
	require.NoError(t, err)

	// One verification died an hour ago, the other just started.
	require.NoError(t, env.db.Model(&models.Payment{}).
		Where("id = ?", stale.PaymentID).
		Updates(map[string]any{
			"status":     enums.PaymentStatusVerifying,
			"updated_at": time.Now().UTC().Add(-time.Hour),
		}).Error)
	require.NoError(t, env.db.Model(&models.Payment{}).
		Where("id = ?", fresh.PaymentID).
		Update("status", enums.PaymentStatusVerifying).Error)

	requeued, err := env.payments.RequeueStaleVerifying(ctx, 10*time.Minute, 10)
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if requeued != 1 {
		t.Fatalf("expected 1 requeued payment, got %d", requeued)
	}

	var reloaded models.Payment
	require.NoError(t, env.db.First(&reloaded, "id = ?", stale.PaymentID).Error)
	if reloaded.Status != enums.PaymentStatusProcessing {
		t.Fatalf("stale payment should be back in processing, got %s", reloaded.Status)
	}
	reloaded = models.Payment{}
	require.NoError(t, env.db.First(&reloaded, "id = ?", fresh.PaymentID).Error)
	if reloaded.Status != enums.PaymentStatusVerifying {
		t.Fatalf("in-flight verification must be left alone, got %s", reloaded.Status)
	}
}

func TestCreateQRStateGuards(t *testing.T) {
	t.Parallel()

	env := newPaymentsTestEnv(t)
	ctx := context.Background()
	actor := bookings.Actor{UserID: uuid.New(), Role: enums.MemberRoleCustomer}

	t.Run("verifying payment blocks a new qr", func(t *testing.T) {
		booking := env.seedBooking(t, actor)
		result, err := env.payments.CreateQR(ctx, actor, QRRequest{BookingID: booking.ID, PaymentType: enums.PaymentTypeFull})
		require.NoError(t, err)
		require.NoError(t, env.db.Model(&models.Payment{}).
			Where("id = ?", result.PaymentID).
			Update("status", enums.PaymentStatusVerifying).Error)

		_, err = env.payments.CreateQR(ctx, actor, QRRequest{BookingID: booking.ID, PaymentType: enums.PaymentTypeFull})
		if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
			t.Fatalf("expected state conflict, got %v", err)
		}
	})

	t.Run("cancelled booking", func(t *testing.T) {
		booking := env.seedBooking(t, actor)
		_, err := env.bookings.Cancel(ctx, actor, booking.ID, "no longer needed")
		require.NoError(t, err)

		_, err = env.payments.CreateQR(ctx, actor, QRRequest{BookingID: booking.ID, PaymentType: enums.PaymentTypeFull})
		if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
			t.Fatalf("expected state conflict, got %v", err)
		}
	})

	t.Run("stranger cannot request a qr", func(t *testing.T) {
		booking := env.seedBooking(t, actor)
		stranger := bookings.Actor{UserID: uuid.New(), Role: enums.MemberRoleCustomer}
		_, err := env.payments.CreateQR(ctx, stranger, QRRequest{BookingID: booking.ID, PaymentType: enums.PaymentTypeFull})
		if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("unknown payment type", func(t *testing.T) {
		_, err := env.payments.CreateQR(ctx, actor, QRRequest{BookingID: uuid.New(), PaymentType: "installment"})
		if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}
