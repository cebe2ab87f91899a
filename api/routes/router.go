package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wecinema/wecinema-backend/api/controllers"
	webhookcontrollers "github.com/wecinema/wecinema-backend/api/controllers/webhooks"
	"github.com/wecinema/wecinema-backend/api/middleware"
	"github.com/wecinema/wecinema-backend/internal/access"
	"github.com/wecinema/wecinema-backend/internal/deposits"
	"github.com/wecinema/wecinema-backend/internal/movies"
	"github.com/wecinema/wecinema-backend/internal/payments"
	"github.com/wecinema/wecinema-backend/internal/registry"
	"github.com/wecinema/wecinema-backend/internal/sessions"
	"github.com/wecinema/wecinema-backend/internal/subscriptions"
	squarewebhook "github.com/wecinema/wecinema-backend/internal/webhooks/square"
	"github.com/wecinema/wecinema-backend/pkg/config"
	"github.com/wecinema/wecinema-backend/pkg/db"
	"github.com/wecinema/wecinema-backend/pkg/enums"
	"github.com/wecinema/wecinema-backend/pkg/logger"
	"github.com/wecinema/wecinema-backend/pkg/redis"
	"github.com/wecinema/wecinema-backend/pkg/square"
)

// RouterParams bundles everything the HTTP surface needs.
type RouterParams struct {
	Config             *config.Config
	Logger             *logger.Logger
	DB                 db.Pinger
	Redis              *redis.Client
	AccessService      access.Service
	SessionsService    sessions.Service
	DepositsService    deposits.Service
	SubscriptionsSvc   subscriptions.Service
	RegistryService    registry.Service
	PaymentsService    payments.Service
	MoviesRepo         movies.Repository
	SquareClient       *square.Client
	SquareWebhookSvc   *squarewebhook.Service
	SquareWebhookGuard *squarewebhook.IdempotencyGuard
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, params.DB, params.Redis, logg))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/square", webhookcontrollers.SquareWebhook(params.SquareWebhookSvc, params.SquareClient, params.SquareWebhookGuard, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(params.Redis, logg))

		r.Route("/v1", func(r chi.Router) {
			r.Post("/access/request", controllers.RequestAccess(params.AccessService, logg))

			r.Route("/movies", func(r chi.Router) {
				r.Get("/", controllers.ListMovies(params.MoviesRepo, logg))
				r.Get("/{movieId}", controllers.MovieDetail(params.MoviesRepo, logg))
				r.Get("/{movieId}/access", controllers.AccessInfo(params.AccessService, logg))
				r.Get("/{movieId}/resume", controllers.ResumePosition(params.SessionsService, logg))
			})

			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", controllers.ListSessions(params.SessionsService, logg))
				r.Post("/{sessionId}/position", controllers.UpdatePosition(params.SessionsService, logg))
				r.Post("/{sessionId}/release", controllers.ReleaseSession(params.SessionsService, logg))
			})

			r.Post("/playback/position", controllers.TrackOwnershipPosition(params.SessionsService, logg))

			r.Get("/library", controllers.Library(params.RegistryService, logg))

			r.Get("/payments/confirmations/{id}", controllers.PaymentConfirmationDetail(params.PaymentsService, logg))

			r.Route("/deposits", func(r chi.Router) {
				r.Post("/", controllers.SubmitDeposit(params.DepositsService, logg))
				r.Get("/", controllers.ListDeposits(params.DepositsService, logg))
			})

			r.Route("/subscription", func(r chi.Router) {
				r.Get("/", controllers.SubscriptionDetail(params.SubscriptionsSvc, logg))
				r.Post("/cancel", controllers.CancelSubscription(params.SubscriptionsSvc, logg))
				r.Post("/reactivate", controllers.ReactivateSubscription(params.SubscriptionsSvc, logg))
			})
		})

		r.Route("/admin/v1", func(r chi.Router) {
			r.Use(middleware.RequireRole(string(enums.UserRoleAdmin), logg))

			r.Route("/deposits", func(r chi.Router) {
				r.Get("/pending", controllers.ListPendingDeposits(params.DepositsService, logg))
				r.Post("/{id}/receive", controllers.ReceiveDeposit(params.DepositsService, logg))
				r.Post("/{id}/complete", controllers.CompleteDeposit(params.DepositsService, logg))
				r.Post("/{id}/reject", controllers.RejectDeposit(params.DepositsService, logg))
			})

			r.Route("/registry", func(r chi.Router) {
				r.Post("/copies", controllers.CreateCopy(params.RegistryService, logg))
				r.Post("/copies/{id}/transfer", controllers.TransferCopy(params.RegistryService, logg))
				r.Delete("/copies/{id}", controllers.DeleteCopy(params.RegistryService, logg))
				r.Get("/copies/{id}/history", controllers.CopyHistory(params.RegistryService, logg))
				r.Get("/movies/{movieId}/copies", controllers.ListMovieCopies(params.RegistryService, logg))
			})

			r.Post("/subscriptions/grant-lifetime", controllers.GrantLifetime(params.SubscriptionsSvc, logg))
		})
	})

	return r
}
