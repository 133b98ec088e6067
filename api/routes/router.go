package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/library-backend/api/controllers"
	"github.com/angelmondragon/library-backend/api/middleware"
	"github.com/angelmondragon/library-backend/internal/auth"
	"github.com/angelmondragon/library-backend/internal/catalog"
	"github.com/angelmondragon/library-backend/internal/lending"
	"github.com/angelmondragon/library-backend/internal/query"
	"github.com/angelmondragon/library-backend/pkg/auth/session"
	"github.com/angelmondragon/library-backend/pkg/config"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/library-backend/pkg/redis"
)

// RedisStore is the slice of the redis client the HTTP layer depends on.
type RedisStore interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
	Ping(ctx context.Context) error
}

// Services bundles the domain services exposed over HTTP.
type Services struct {
	Auth     auth.Service
	Register auth.RegisterService
	Catalog  catalog.Service
	Lending  lending.Service
	Query    query.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisStore RedisStore,
	sessions session.AccessSessionChecker,
	gatherer prometheus.Gatherer,
	httpMetrics *metrics.HTTPMetrics,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(httpMetrics),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	loginPolicy := middleware.LoginRateLimitPolicy(cfg.AuthRateLimit)
	registerPolicy := middleware.RegisterRateLimitPolicy(cfg.AuthRateLimit)

	var redisPinger controllers.Pinger
	if redisStore != nil {
		redisPinger = redisStore
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisPinger))
	})

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	authenticate := middleware.Auth(cfg.JWT, sessions, logg)

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, redisStore, logg)).Post("/login", controllers.AuthLogin(svc.Auth, logg))
		r.With(middleware.AuthRateLimit(registerPolicy, redisStore, logg)).Post("/register", controllers.AuthRegister(svc.Register, svc.Auth, logg))
		r.Post("/refresh", controllers.AuthRefresh(svc.Auth, logg))
		r.With(authenticate).Post("/logout", controllers.AuthLogout(svc.Auth, logg))
	})

	if !cfg.App.IsProd() {
		r.With(middleware.AuthRateLimit(registerPolicy, redisStore, logg)).
			Post("/api/admin/v1/auth/register", controllers.AdminAuthRegister(svc.Register, svc.Auth, logg))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authenticate)
		r.Use(middleware.Idempotency(redisStore, logg))

		r.Route("/books", func(r chi.Router) {
			r.Get("/", controllers.ListAvailableBooks(svc.Query, logg))
			r.Get("/{bookId}", controllers.GetBook(svc.Catalog, logg))
			r.Post("/{bookId}/borrow", controllers.BorrowBook(svc.Lending, logg))
			r.Post("/{bookId}/return", controllers.ReturnBook(svc.Lending, logg))
		})
		r.Route("/loans", func(r chi.Router) {
			r.Get("/", controllers.ListLoans(svc.Query, logg))
			r.Post("/{loanId}/return", controllers.ReturnLoan(svc.Lending, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(authenticate)
		r.Use(middleware.RequireCatalogManager(logg))
		r.Use(middleware.Idempotency(redisStore, logg))

		r.Route("/books", func(r chi.Router) {
			r.Get("/", controllers.AdminListBooks(svc.Catalog, logg))
			r.Post("/", controllers.AdminCreateBook(svc.Catalog, logg))
			r.Put("/{bookId}", controllers.AdminUpdateBook(svc.Catalog, logg))
			r.Delete("/{bookId}", controllers.AdminDeleteBook(svc.Catalog, logg))
		})
		r.Get("/loans/overdue", controllers.AdminOverdueLoans(svc.Query, logg))
		r.Get("/stats", controllers.AdminStats(svc.Query, logg))
	})

	return r
}
