package notifications

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eventrentph/eventrent-backend/pkg/db/models"
	"github.com/eventrentph/eventrent-backend/pkg/enums"
	"github.com/eventrentph/eventrent-backend/pkg/outbox/payloads"
	"github.com/eventrentph/eventrent-backend/pkg/outbox/registry"
)

// fromEvent maps a decoded domain event to the notification row it produces,
// or reports false for events that do not notify anyone.
func fromEvent(resolved *registry.ResolvedEvent) (models.Notification, bool) {
	switch payload := resolved.Payload.(type) {
	case *payloads.BookingCreatedEvent:
		return models.Notification{
			RecipientID: payload.CustomerID,
			Kind:        enums.NotificationKindBookingCreated,
			Title:       "Booking received",
			Message: fmt.Sprintf(
				"Your booking for %d unit(s) from %s to %s is on hold. Complete payment to confirm it.",
				payload.Qty,
				payload.StartDate.Format("Jan 2, 2006"),
				payload.EndDate.Format("Jan 2, 2006"),
			),
			Link: bookingLink(payload.BookingID),
		}, true

	case *payloads.BookingConfirmedEvent:
		message := "Your booking is confirmed. See you at the event!"
		if payload.RemainingCentavos > 0 {
			message = fmt.Sprintf(
				"Your booking is confirmed with a down payment. Remaining balance: %s.",
				pesos(payload.RemainingCentavos),
			)
		}
		return models.Notification{
			RecipientID: payload.CustomerID,
			Kind:        enums.NotificationKindBookingConfirmed,
			Title:       "Booking confirmed",
			Message:     message,
			Link:        bookingLink(payload.BookingID),
		}, true

	case *payloads.BookingCancelledEvent:
		message := "Your booking has been cancelled and its items released."
		if payload.Reason != "" {
			message = fmt.Sprintf("Your booking has been cancelled: %s.", payload.Reason)
		}
		return models.Notification{
			RecipientID: payload.CustomerID,
			Kind:        enums.NotificationKindBookingCancelled,
			Title:       "Booking cancelled",
			Message:     message,
			Link:        bookingLink(payload.BookingID),
		}, true

	case *payloads.BookingCompletedEvent:
		return models.Notification{
			RecipientID: payload.CustomerID,
			Kind:        enums.NotificationKindBookingCompleted,
			Title:       "Booking completed",
			Message:     "Thanks for renting with us. We hope the event went well!",
			Link:        bookingLink(payload.BookingID),
		}, true

	case *payloads.PaymentVerifiedEvent:
		return models.Notification{
			RecipientID: payload.UserID,
			Kind:        enums.NotificationKindPaymentVerified,
			Title:       "Payment verified",
			Message: fmt.Sprintf(
				"Your payment of %s (ref %s) has been verified.",
				pesos(payload.AmountCentavos), payload.ReferenceNumber,
			),
			Link: paymentLink(payload.PaymentID),
		}, true

	case *payloads.PaymentFlaggedEvent:
		return models.Notification{
			RecipientID: payload.UserID,
			Kind:        enums.NotificationKindPaymentFlagged,
			Title:       "Receipt under review",
			Message: fmt.Sprintf(
				"We could not automatically verify your receipt for ref %s. Our team is reviewing it.",
				payload.ReferenceNumber,
			),
			Link: paymentLink(payload.PaymentID),
		}, true

	case *payloads.PaymentFailedEvent:
		message := fmt.Sprintf("Your payment with ref %s was rejected.", payload.ReferenceNumber)
		if payload.Reason != "" {
			message = fmt.Sprintf("Your payment with ref %s was rejected: %s.", payload.ReferenceNumber, payload.Reason)
		}
		return models.Notification{
			RecipientID: payload.UserID,
			Kind:        enums.NotificationKindPaymentFailed,
			Title:       "Payment rejected",
			Message:     message,
			Link:        paymentLink(payload.PaymentID),
		}, true

	case *payloads.ReservationExpiredEvent:
		// The expiry event does not carry the customer id; the owner is
		// notified through the cancellation that follows it.
		return models.Notification{}, false

	default:
		return models.Notification{}, false
	}
}

func pesos(centavos int64) string {
	return "₱" + decimal.New(centavos, -2).StringFixed(2)
}

func bookingLink(id uuid.UUID) *string {
	link := "/bookings/" + id.String()
	return &link
}

func paymentLink(id uuid.UUID) *string {
	link := "/payments/" + id.String()
	return &link
}
