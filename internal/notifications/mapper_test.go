package notifications

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/eventrentph/eventrent-backend/pkg/enums"
	"github.com/eventrentph/eventrent-backend/pkg/outbox/payloads"
	"github.com/eventrentph/eventrent-backend/pkg/outbox/registry"
)

func resolvedWith(payload interface{}) *registry.ResolvedEvent {
	return &registry.ResolvedEvent{Payload: payload}
}

func TestFromEventBookingCreated(t *testing.T) {
	t.Parallel()

	bookingID := uuid.New()
	customerID := uuid.New()
	row, ok := fromEvent(resolvedWith(&payloads.BookingCreatedEvent{
		BookingID:  bookingID,
		CustomerID: customerID,
		Qty:        2,
		StartDate:  time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC),
	}))
	if !ok {
		t.Fatal("booking.created should notify")
	}
	if row.RecipientID != customerID || row.Kind != enums.NotificationKindBookingCreated {
		t.Fatalf("unexpected row: %+v", row)
	}
	if !strings.Contains(row.Message, "Sep 10, 2026") || !strings.Contains(row.Message, "Sep 12, 2026") {
		t.Fatalf("message missing dates: %s", row.Message)
	}
	if row.Link == nil || *row.Link != "/bookings/"+bookingID.String() {
		t.Fatalf("unexpected link: %v", row.Link)
	}
}

func TestFromEventConfirmedMentionsBalance(t *testing.T) {
	t.Parallel()

	row, ok := fromEvent(resolvedWith(&payloads.BookingConfirmedEvent{
		BookingID:          uuid.New(),
		CustomerID:         uuid.New(),
		AmountPaidCentavos: 30000,
		RemainingCentavos:  70000,
	}))
	if !ok {
		t.Fatal("booking.confirmed should notify")
	}
	if !strings.Contains(row.Message, "₱700.00") {
		t.Fatalf("expected remaining balance in message, got %s", row.Message)
	}

	fullyPaid, ok := fromEvent(resolvedWith(&payloads.BookingConfirmedEvent{
		BookingID:  uuid.New(),
		CustomerID: uuid.New(),
	}))
	if !ok {
		t.Fatal("booking.confirmed should notify")
	}
	if strings.Contains(fullyPaid.Message, "balance") {
		t.Fatalf("fully paid confirmation should not mention a balance: %s", fullyPaid.Message)
	}
}

func TestFromEventPaymentVerified(t *testing.T) {
	t.Parallel()

	paymentID := uuid.New()
	userID := uuid.New()
	row, ok := fromEvent(resolvedWith(&payloads.PaymentVerifiedEvent{
		PaymentID:       paymentID,
		UserID:          userID,
		ReferenceNumber: "EVT-20260901-0a1b2c3d4e",
		AmountCentavos:  100000,
	}))
	if !ok {
		t.Fatal("payment.verified should notify")
	}
	if row.RecipientID != userID || row.Kind != enums.NotificationKindPaymentVerified {
		t.Fatalf("unexpected row: %+v", row)
	}
	if !strings.Contains(row.Message, "₱1000.00") || !strings.Contains(row.Message, "EVT-20260901-0a1b2c3d4e") {
		t.Fatalf("message missing amount or reference: %s", row.Message)
	}
}

func TestFromEventSilentEvents(t *testing.T) {
	t.Parallel()

	if _, ok := fromEvent(resolvedWith(&payloads.ReservationExpiredEvent{})); ok {
		t.Fatal("reservation.expired must not notify directly")
	}
	if _, ok := fromEvent(resolvedWith(struct{}{})); ok {
		t.Fatal("unknown payloads must not notify")
	}
}
