package enums

import "fmt"

// PaymentStatus tracks the lifecycle of an individual payment record.
type PaymentStatus string

const (
	PaymentStatusProcessing    PaymentStatus = "processing"
	PaymentStatusVerifying     PaymentStatus = "verifying"
	PaymentStatusPaid          PaymentStatus = "paid"
	PaymentStatusFailed        PaymentStatus = "failed"
	PaymentStatusPendingReview PaymentStatus = "pending_review"
	PaymentStatusSuperseded    PaymentStatus = "superseded"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusProcessing,
	PaymentStatusVerifying,
	PaymentStatusPaid,
	PaymentStatusFailed,
	PaymentStatusPendingReview,
	PaymentStatusSuperseded,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// Settled reports whether the payment has reached a terminal outcome.
func (p PaymentStatus) Settled() bool {
	return p == PaymentStatusPaid || p == PaymentStatusFailed || p == PaymentStatusSuperseded
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
