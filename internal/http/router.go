package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/citywatch/api/internal/admin"
	"github.com/citywatch/api/internal/config"
	"github.com/citywatch/api/internal/evidence"
	httpmiddleware "github.com/citywatch/api/internal/http/middleware"
	"github.com/citywatch/api/internal/issue"
	"github.com/citywatch/api/internal/moderation"
	"github.com/citywatch/api/internal/otp"
	"github.com/citywatch/api/internal/service"
	"github.com/citywatch/api/internal/taxonomy"
)

const jsonBodyLimit = 1 << 20

// Check probes one dependency for readiness.
type Check func(ctx context.Context) error

// Services are the application services the handlers delegate to.
type Services struct {
	Auth       *service.AuthService
	OTP        *otp.Service
	Issues     *issue.Service
	Moderation *moderation.Service
	Admin      *admin.Service
	Evidence   *evidence.Service
	Taxonomy   *taxonomy.Service
	Checks     map[string]Check
}

type Handler struct {
	cfg *config.Config
	svc Services
}

// NewRouter builds the API router.
func NewRouter(cfg *config.Config, svc Services) http.Handler {
	h := &Handler{cfg: cfg, svc: svc}

	publicLimiter := httpmiddleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond(), cfg.RateLimit.MaxRequests)
	userLimiter := httpmiddleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond(), cfg.RateLimit.MaxRequests)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(httpmiddleware.Logging)
	r.Use(httpmiddleware.Recover)
	r.Use(httpmiddleware.CORS(cfg.AllowOrigins))
	r.Use(httpmiddleware.RequestMeta)

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)

	if cfg.Upload.Dir != "" {
		prefix := cfg.Upload.PublicPath
		r.Handle(prefix+"/*", http.StripPrefix(prefix, http.FileServer(http.Dir(cfg.Upload.Dir))))
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(httpmiddleware.IPRateLimit(publicLimiter))

		// multipart bodies get their own ceiling in Upload
		api.Group(func(up chi.Router) {
			up.Use(httpmiddleware.Auth(svc.Auth))
			up.Use(httpmiddleware.UserRateLimit(userLimiter))
			up.Post("/upload", h.Upload)
		})

		api.Group(func(api chi.Router) {
			api.Use(chimiddleware.RequestSize(jsonBodyLimit))

			api.Route("/auth", func(a chi.Router) {
				a.Post("/register", h.Register)
				a.Post("/login", h.Login)
				a.Group(func(a chi.Router) {
					a.Use(httpmiddleware.Auth(svc.Auth))
					a.Get("/me", h.Me)
					a.Post("/logout", h.Logout)
				})
			})

			api.Route("/otp", func(o chi.Router) {
				o.Post("/send", h.SendOTP)
				o.Post("/verify", h.VerifyOTP)
				o.Post("/resend", h.ResendOTP)
			})

			api.Get("/categories", h.ListCategories)
			api.Get("/cities", h.ListCities)
			api.Get("/cities/{id}/wards", h.ListWards)
			api.Get("/cities/{id}/departments", h.ListDepartments)

			api.Route("/issues", func(is chi.Router) {
				is.Group(func(pub chi.Router) {
					pub.Use(httpmiddleware.OptionalAuth(svc.Auth))
					pub.Get("/", h.ListIssues)
					pub.Get("/{id}", h.GetIssue)
					pub.Get("/{id}/timeline", h.IssueTimeline)
				})
				is.Group(func(priv chi.Router) {
					priv.Use(httpmiddleware.Auth(svc.Auth))
					priv.Use(httpmiddleware.UserRateLimit(userLimiter))
					priv.Post("/", h.CreateIssue)
					priv.Get("/my", h.MyIssues)
					priv.Patch("/{id}", h.UpdateIssue)
					priv.Delete("/{id}", h.DeleteIssue)
					priv.Post("/{id}/upvote", h.Upvote)
					priv.Delete("/{id}/upvote", h.RemoveUpvote)
					priv.Post("/{id}/evidence", h.AttachEvidence)
				})
			})

			api.Route("/moderation", func(m chi.Router) {
				m.Use(httpmiddleware.Auth(svc.Auth))
				m.Use(httpmiddleware.RequireCapability(service.CapModerate))
				m.Get("/queue", h.ModerationQueue)
				m.Get("/queue/stats", h.ModerationStats)
				m.Post("/{id}/review", h.StartReview)
				m.Post("/{id}/verify", h.VerifyIssue)
				m.Post("/{id}/reject", h.RejectIssue)
				m.Post("/{id}/escalate", h.EscalateIssue)
			})

			api.Route("/authority/issues", func(a chi.Router) {
				a.Use(httpmiddleware.Auth(svc.Auth))
				a.Use(httpmiddleware.RequireCapability(service.CapRespondToIssues))
				a.Post("/{id}/action-taken", h.MarkActionTaken)
				a.Post("/{id}/resolve", h.ResolveIssue)
				a.Post("/{id}/close", h.CloseIssue)
			})

			api.Route("/admin", func(a chi.Router) {
				a.Use(httpmiddleware.Auth(svc.Auth))
				a.Group(func(rep chi.Router) {
					rep.Use(httpmiddleware.RequireCapability(service.CapViewReports))
					rep.Get("/stats", h.AdminStats)
					rep.Get("/activity", h.AdminActivity)
					rep.Get("/trends", h.AdminTrends)
				})
				a.Group(func(mgr chi.Router) {
					mgr.Use(httpmiddleware.RequireCapability(service.CapManageUsers))
					mgr.Get("/users", h.AdminUsers)
					mgr.Patch("/users/{id}", h.AdminUpdateUser)
				})
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"status": "ok", "timestamp": time.Now().UTC()})
}

// Ready runs every dependency check.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failures := map[string]string{}
	for name, check := range h.svc.Checks {
		if err := check(ctx); err != nil {
			failures[name] = err.Error()
		}
	}

	if len(failures) > 0 {
		writeEnvelope(w, http.StatusServiceUnavailable, Envelope{
			Success: false,
			Data:    failures,
			Error:   &ErrorBody{Code: "UNAVAILABLE", Message: "Dependencies unavailable"},
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]bool{"ready": true})
}
