package bookings

import (
	"fmt"

	"github.com/eventrentph/eventrent-backend/pkg/enums"
	pkgerrors "github.com/eventrentph/eventrent-backend/pkg/errors"
)

// statusTransitions is the full lifecycle graph for booking status. A status
// missing from the map is terminal.
var statusTransitions = map[enums.BookingStatus][]enums.BookingStatus{
	enums.BookingStatusPending: {
		enums.BookingStatusConfirmed,
		enums.BookingStatusCancelled,
	},
	enums.BookingStatusConfirmed: {
		enums.BookingStatusCompleted,
		enums.BookingStatusCancelled,
	},
}

// paymentTransitions is the lifecycle graph for the payment sub-state.
var paymentTransitions = map[enums.BookingPaymentStatus][]enums.BookingPaymentStatus{
	enums.BookingPaymentStatusUnpaid: {
		enums.BookingPaymentStatusProcessing,
	},
	enums.BookingPaymentStatusProcessing: {
		enums.BookingPaymentStatusPaid,
		enums.BookingPaymentStatusPendingReview,
		enums.BookingPaymentStatusFailed,
	},
	enums.BookingPaymentStatusPendingReview: {
		enums.BookingPaymentStatusPaid,
		enums.BookingPaymentStatusFailed,
	},
	enums.BookingPaymentStatusFailed: {
		enums.BookingPaymentStatusProcessing,
	},
	// A paid booking reopens when the customer pays the remaining balance
	// after a down payment.
	enums.BookingPaymentStatusPaid: {
		enums.BookingPaymentStatusProcessing,
	},
}

// CanTransitionStatus reports whether the status move is legal.
func CanTransitionStatus(from, to enums.BookingStatus) bool {
	for _, candidate := range statusTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// CanTransitionPayment reports whether the payment sub-state move is legal.
func CanTransitionPayment(from, to enums.BookingPaymentStatus) bool {
	for _, candidate := range paymentTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// TransitionStatus validates the move against the lifecycle graph. Same-state
// moves are accepted as no-ops so retried requests stay idempotent.
func TransitionStatus(from, to enums.BookingStatus) error {
	if from == to {
		return nil
	}
	if !CanTransitionStatus(from, to) {
		return pkgerrors.New(
			pkgerrors.CodeStateConflict,
			fmt.Sprintf("booking cannot move from %s to %s", from, to),
		)
	}
	return nil
}

// TransitionPayment validates the payment sub-state move.
func TransitionPayment(from, to enums.BookingPaymentStatus) error {
	if from == to {
		return nil
	}
	if !CanTransitionPayment(from, to) {
		return pkgerrors.New(
			pkgerrors.CodeStateConflict,
			fmt.Sprintf("booking payment cannot move from %s to %s", from, to),
		)
	}
	return nil
}
