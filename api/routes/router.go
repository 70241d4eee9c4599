package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	bookingcontrollers "github.com/eventrentph/eventrent-backend/api/controllers/bookings"
	inventorycontrollers "github.com/eventrentph/eventrent-backend/api/controllers/inventory"
	notificationcontrollers "github.com/eventrentph/eventrent-backend/api/controllers/notifications"
	paymentcontrollers "github.com/eventrentph/eventrent-backend/api/controllers/payments"
	"github.com/eventrentph/eventrent-backend/api/handlers"
	"github.com/eventrentph/eventrent-backend/api/middleware"
	"github.com/eventrentph/eventrent-backend/internal/availability"
	"github.com/eventrentph/eventrent-backend/internal/bookings"
	"github.com/eventrentph/eventrent-backend/internal/inventory"
	"github.com/eventrentph/eventrent-backend/internal/notifications"
	"github.com/eventrentph/eventrent-backend/internal/payments"
	"github.com/eventrentph/eventrent-backend/internal/payments/receipts"
	"github.com/eventrentph/eventrent-backend/pkg/config"
	"github.com/eventrentph/eventrent-backend/pkg/logger"
	pkgredis "github.com/eventrentph/eventrent-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	redisClient *pkgredis.Client,
	inventoryService inventory.Service,
	availabilityChecker availability.Checker,
	bookingsService bookings.Service,
	paymentsService payments.Service,
	receiptsService receipts.Service,
	notificationsService notifications.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Get("/healthz", handlers.Healthz(cfg, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/inventory/items", func(r chi.Router) {
			r.Get("/", inventorycontrollers.ListItems(inventoryService, logg))
			r.Get("/{itemID}", inventorycontrollers.DetailItem(inventoryService, logg))
			r.Get("/{itemID}/availability", inventorycontrollers.CheckAvailability(inventoryService, availabilityChecker, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole("admin", logg))
				r.Post("/", inventorycontrollers.CreateItem(inventoryService, logg))
				r.Get("/{itemID}/batches", inventorycontrollers.ListBatches(inventoryService, logg))
				r.Post("/{itemID}/batches", inventorycontrollers.AddBatch(inventoryService, logg))
				r.Post("/{itemID}/adjustments", inventorycontrollers.Adjust(inventoryService, logg))
			})
		})

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", bookingcontrollers.Create(bookingsService, logg))
			r.Get("/", bookingcontrollers.List(bookingsService, logg))
			r.Get("/{bookingID}", bookingcontrollers.Detail(bookingsService, logg))
			r.Post("/{bookingID}/cancel", bookingcontrollers.Cancel(bookingsService, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole("admin", logg))
				r.Put("/{bookingID}", bookingcontrollers.Transition(bookingsService, logg))
			})
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/qr", paymentcontrollers.CreateQR(paymentsService, logg))
			r.Get("/{paymentID}", paymentcontrollers.Detail(paymentsService, logg))
			r.Post("/{paymentID}/receipt", paymentcontrollers.UploadReceipt(receiptsService, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole("admin", logg))
				r.Get("/review-queue", paymentcontrollers.ReviewQueue(paymentsService, logg))
				r.Post("/{paymentID}/review", paymentcontrollers.Review(receiptsService, logg))
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", notificationcontrollers.List(notificationsService, logg))
			r.Get("/unread-count", notificationcontrollers.UnreadCount(notificationsService, logg))
			r.Post("/{notificationID}/read", notificationcontrollers.MarkRead(notificationsService, logg))
			r.Post("/read-all", notificationcontrollers.MarkAllRead(notificationsService, logg))
		})
	})

	return r
}
