package enums

import "fmt"

// OutboxEventType enumerates the domain events emitted through the
// transactional outbox.
type OutboxEventType string

const (
	OutboxEventBookingCreated     OutboxEventType = "booking.created"
	OutboxEventBookingConfirmed   OutboxEventType = "booking.confirmed"
	OutboxEventBookingCancelled   OutboxEventType = "booking.cancelled"
	OutboxEventBookingCompleted   OutboxEventType = "booking.completed"
	OutboxEventPaymentVerified    OutboxEventType = "payment.verified"
	OutboxEventPaymentFlagged     OutboxEventType = "payment.flagged"
	OutboxEventPaymentFailed      OutboxEventType = "payment.failed"
	OutboxEventReservationExpired OutboxEventType = "reservation.expired"
	OutboxEventStockAdjusted      OutboxEventType = "inventory.stock_adjusted"
)

var validOutboxEventTypes = []OutboxEventType{
	OutboxEventBookingCreated,
	OutboxEventBookingConfirmed,
	OutboxEventBookingCancelled,
	OutboxEventBookingCompleted,
	OutboxEventPaymentVerified,
	OutboxEventPaymentFlagged,
	OutboxEventPaymentFailed,
	OutboxEventReservationExpired,
	OutboxEventStockAdjusted,
}

// String implements fmt.Stringer.
func (t OutboxEventType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known OutboxEventType.
func (t OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into an OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	OutboxAggregateBooking       OutboxAggregateType = "booking"
	OutboxAggregatePayment       OutboxAggregateType = "payment"
	OutboxAggregateReservation   OutboxAggregateType = "reservation"
	OutboxAggregateInventoryItem OutboxAggregateType = "inventory_item"
)

var validOutboxAggregateTypes = []OutboxAggregateType{
	OutboxAggregateBooking,
	OutboxAggregatePayment,
	OutboxAggregateReservation,
	OutboxAggregateInventoryItem,
}

// String implements fmt.Stringer.
func (t OutboxAggregateType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known OutboxAggregateType.
func (t OutboxAggregateType) IsValid() bool {
	for _, candidate := range validOutboxAggregateTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// OutboxDLQErrorReason classifies why an outbox event landed in the DLQ.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts_exceeded"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)
