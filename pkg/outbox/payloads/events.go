package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/eventrentph/eventrent-backend/pkg/enums"
)

// BookingCreatedEvent signals a new booking holding inventory.
type BookingCreatedEvent struct {
	BookingID     uuid.UUID `json:"bookingId"`
	CustomerID    uuid.UUID `json:"customerId"`
	ItemID        uuid.UUID `json:"itemId"`
	Qty           int       `json:"qty"`
	StartDate     time.Time `json:"startDate"`
	EndDate       time.Time `json:"endDate"`
	TotalCentavos int64     `json:"totalCentavos"`
}

// BookingConfirmedEvent is emitted when a booking locks in after payment.
type BookingConfirmedEvent struct {
	BookingID          uuid.UUID `json:"bookingId"`
	CustomerID         uuid.UUID `json:"customerId"`
	AmountPaidCentavos int64     `json:"amountPaidCentavos"`
	RemainingCentavos  int64     `json:"remainingCentavos"`
}

// BookingCancelledEvent is emitted when a booking cancels and its hold releases.
type BookingCancelledEvent struct {
	BookingID   uuid.UUID `json:"bookingId"`
	CustomerID  uuid.UUID `json:"customerId"`
	CancelledAt time.Time `json:"cancelledAt"`
	Reason      string    `json:"reason,omitempty"`
}

// BookingCompletedEvent reports the completion sweep closing out a booking.
type BookingCompletedEvent struct {
	BookingID   uuid.UUID `json:"bookingId"`
	CustomerID  uuid.UUID `json:"customerId"`
	CompletedAt time.Time `json:"completedAt"`
}

// PaymentVerifiedEvent is emitted when a receipt auto-approves or an admin
// approves a flagged payment.
type PaymentVerifiedEvent struct {
	PaymentID       uuid.UUID         `json:"paymentId"`
	BookingID       *uuid.UUID        `json:"bookingId,omitempty"`
	UserID          uuid.UUID         `json:"userId"`
	ReferenceNumber string            `json:"referenceNumber"`
	AmountCentavos  int64             `json:"amountCentavos"`
	PaymentType     enums.PaymentType `json:"paymentType"`
}

// PaymentFlaggedEvent is emitted when verification drops a payment into the
// manual review queue.
type PaymentFlaggedEvent struct {
	PaymentID       uuid.UUID  `json:"paymentId"`
	BookingID       *uuid.UUID `json:"bookingId,omitempty"`
	UserID          uuid.UUID  `json:"userId"`
	ReferenceNumber string     `json:"referenceNumber"`
	Issues          []string   `json:"issues"`
}

// PaymentFailedEvent is emitted when an admin rejects a flagged payment.
type PaymentFailedEvent struct {
	PaymentID       uuid.UUID  `json:"paymentId"`
	BookingID       *uuid.UUID `json:"bookingId,omitempty"`
	UserID          uuid.UUID  `json:"userId"`
	ReferenceNumber string     `json:"referenceNumber"`
	Reason          string     `json:"reason,omitempty"`
}

// ReservationExpiredEvent reports a hold released by the expiry sweep.
type ReservationExpiredEvent struct {
	ReservationID uuid.UUID `json:"reservationId"`
	BookingID     uuid.UUID `json:"bookingId"`
	ItemID        uuid.UUID `json:"itemId"`
	Qty           int       `json:"qty"`
	ExpiredAt     time.Time `json:"expiredAt"`
}

// StockAdjustedEvent records an admin quantity change on an item.
type StockAdjustedEvent struct {
	ItemID  uuid.UUID  `json:"itemId"`
	BatchID *uuid.UUID `json:"batchId,omitempty"`
	Delta   int        `json:"delta"`
	Reason  string     `json:"reason"`
	ActorID uuid.UUID  `json:"actorId"`
}
