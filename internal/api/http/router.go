package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/mind-engage/gabarito/internal/answerkey"
	auth "github.com/mind-engage/gabarito/internal/auth/middleware"
	"github.com/mind-engage/gabarito/internal/correction"
	"github.com/mind-engage/gabarito/internal/logging"
	"github.com/mind-engage/gabarito/internal/metrics"
	"github.com/mind-engage/gabarito/internal/rbac"
	"github.com/mind-engage/gabarito/internal/storage"
	"github.com/mind-engage/gabarito/internal/users"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Deps struct {
	Logger      *zap.Logger
	Auth        *auth.AuthService
	Users       *users.Store
	AnswerKeys  *answerkey.Service
	Corrections *correction.Service
	Blobs       storage.BlobStore
	Metrics     *metrics.Metrics
	DB          Pinger

	CORSOrigins    []string
	MaxUploadBytes int64
	// AllowRoleFallback keeps the token's role when the users table cannot
	// be read (offline mode).
	AllowRoleFallback bool
}

// NewRouter builds the HTTP surface. Corrections run without the request
// timeout since the detector enforces its own deadline.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxUpload := d.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logging.RequestLogger(logger), middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", readyHandler(d.DB))
	r.Handle("/metrics", d.Metrics.Handler())

	r.Group(func(pub chi.Router) {
		pub.Use(middleware.Timeout(30 * time.Second))
		pub.Post("/auth/login", LoginHandler(d.Users, d.Auth, logger))
		pub.Post("/users", SignupHandler(d.Users, logger))
	})

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(d.Auth))
		pr.Use(auth.AttachRole(userRole(d.Users), d.AllowRoleFallback))

		pr.Group(func(cr chi.Router) {
			cr.Use(middleware.Timeout(30 * time.Second))

			cr.With(rbac.Require(rbac.PermChangePassword)).
				Post("/users/change-password", ChangePasswordHandler(d.Users, logger))

			cr.With(rbac.Require(rbac.PermAnswerKeyView)).
				Get("/answer-keys", ListAnswerKeysHandler(d.AnswerKeys, logger))
			cr.With(rbac.Require(rbac.PermAnswerKeyCreate)).
				Post("/answer-keys", CreateAnswerKeyHandler(d.AnswerKeys, logger))
			cr.With(rbac.Require(rbac.PermAnswerKeyView)).
				Get("/answer-keys/{id}", GetAnswerKeyHandler(d.AnswerKeys, logger))
			cr.With(rbac.Require(rbac.PermAnswerKeyUpdate)).
				Put("/answer-keys/{id}", UpdateAnswerKeyHandler(d.AnswerKeys, logger))
			cr.With(rbac.Require(rbac.PermAnswerKeyDelete)).
				Delete("/answer-keys/{id}", DeleteAnswerKeyHandler(d.AnswerKeys, logger))
			cr.With(rbac.Require(rbac.PermCorrectionView)).
				Get("/answer-keys/{id}/corrections", CorrectionHistoryHandler(d.Corrections, logger))

			cr.With(rbac.Require(rbac.PermSheetView)).Route("/sheets", func(sr chi.Router) {
				MountSheets(sr, d.Blobs, logger)
			})
		})

		pr.With(rbac.Require(rbac.PermCorrectionRun)).
			Post("/answer-keys/{id}/corrections", CorrectSheetHandler(d.Corrections, maxUpload, logger))
		pr.With(rbac.Require(rbac.PermCorrectionRun)).
			Post("/answer-keys/{id}/corrections/batch", CorrectBatchHandler(d.Corrections, maxUpload, logger))
	})

	return r
}

func userRole(store *users.Store) auth.RoleLookup {
	return func(ctx context.Context, sub string) (string, error) {
		u, err := store.Get(ctx, sub)
		if errors.Is(err, users.ErrNotFound) {
			return "", auth.ErrUnknownSubject
		}
		if err != nil {
			return "", err
		}
		return u.Role, nil
	}
}

func readyHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, errorBody{"Unavailable", "banco de dados indisponível"})
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
