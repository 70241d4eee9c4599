package enums

import "fmt"

// NotificationKind identifies which lifecycle event a notification row records.
type NotificationKind string

const (
	NotificationKindBookingCreated     NotificationKind = "booking_created"
	NotificationKindBookingConfirmed   NotificationKind = "booking_confirmed"
	NotificationKindBookingCancelled   NotificationKind = "booking_cancelled"
	NotificationKindBookingCompleted   NotificationKind = "booking_completed"
	NotificationKindPaymentVerified    NotificationKind = "payment_verified"
	NotificationKindPaymentFlagged     NotificationKind = "payment_flagged"
	NotificationKindPaymentFailed      NotificationKind = "payment_failed"
	NotificationKindReservationExpired NotificationKind = "reservation_expired"
)

var validNotificationKinds = []NotificationKind{
	NotificationKindBookingCreated,
	NotificationKindBookingConfirmed,
	NotificationKindBookingCancelled,
	NotificationKindBookingCompleted,
	NotificationKindPaymentVerified,
	NotificationKindPaymentFlagged,
	NotificationKindPaymentFailed,
	NotificationKindReservationExpired,
}

// String implements fmt.Stringer.
func (k NotificationKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known NotificationKind.
func (k NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseNotificationKind converts raw input into a NotificationKind.
func ParseNotificationKind(value string) (NotificationKind, error) {
	for _, candidate := range validNotificationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification kind %q", value)
}
