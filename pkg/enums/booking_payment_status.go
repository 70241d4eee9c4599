package enums

import "fmt"

// BookingPaymentStatus is the payment sub-state carried on a booking.
type BookingPaymentStatus string

const (
	BookingPaymentStatusUnpaid        BookingPaymentStatus = "unpaid"
	BookingPaymentStatusProcessing    BookingPaymentStatus = "processing"
	BookingPaymentStatusPaid          BookingPaymentStatus = "paid"
	BookingPaymentStatusFailed        BookingPaymentStatus = "failed"
	BookingPaymentStatusPendingReview BookingPaymentStatus = "pending_review"
)

var validBookingPaymentStatuses = []BookingPaymentStatus{
	BookingPaymentStatusUnpaid,
	BookingPaymentStatusProcessing,
	BookingPaymentStatusPaid,
	BookingPaymentStatusFailed,
	BookingPaymentStatusPendingReview,
}

// String implements fmt.Stringer.
func (b BookingPaymentStatus) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BookingPaymentStatus.
func (b BookingPaymentStatus) IsValid() bool {
	for _, candidate := range validBookingPaymentStatuses {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBookingPaymentStatus converts raw input into a BookingPaymentStatus.
func ParseBookingPaymentStatus(value string) (BookingPaymentStatus, error) {
	for _, candidate := range validBookingPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid booking payment status %q", value)
}
