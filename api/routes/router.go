package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/venturetrips/venture-backend/api/controllers"
	webhookcontrollers "github.com/venturetrips/venture-backend/api/controllers/webhooks"
	"github.com/venturetrips/venture-backend/api/middleware"
	"github.com/venturetrips/venture-backend/internal/bookings"
	"github.com/venturetrips/venture-backend/internal/payments"
	"github.com/venturetrips/venture-backend/internal/payouts"
	"github.com/venturetrips/venture-backend/pkg/config"
	"github.com/venturetrips/venture-backend/pkg/db"
	"github.com/venturetrips/venture-backend/pkg/enums"
	"github.com/venturetrips/venture-backend/pkg/logger"
	"github.com/venturetrips/venture-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	bookingService bookings.Service,
	paymentService payments.Service,
	payoutService payouts.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payment", webhookcontrollers.PaymentWebhook(paymentService, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", controllers.CreateBooking(bookingService, logg))
			r.Get("/", controllers.ListBookings(bookingService, logg))
			r.Get("/{id}", controllers.GetBooking(bookingService, logg))
			r.Post("/{id}/cancel", controllers.CancelBooking(bookingService, logg))
			r.Post("/{id}/payment-session", controllers.CreatePaymentSession(paymentService, logg))
		})

		r.Route("/guide/bookings", func(r chi.Router) {
			r.Use(middleware.RequireRole(string(enums.UserRoleGuide), logg))
			r.Post("/{id}/approve", controllers.GuideApproveBooking(bookingService, logg))
			r.Post("/{id}/reject", controllers.GuideRejectBooking(bookingService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(string(enums.UserRoleAdmin), logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/payouts", func(r chi.Router) {
			r.Get("/", controllers.AdminListPayouts(payoutService, logg))
			r.Get("/preview", controllers.AdminPayoutPreview(payoutService, logg))
			r.Post("/run", controllers.AdminRunPayouts(payoutService, logg))
			r.Post("/{id}/mark-paid", controllers.AdminMarkPayoutPaid(payoutService, logg))
		})

		r.Post("/bookings/{id}/cancel", controllers.AdminCancelBooking(bookingService, logg))
	})

	return r
}
