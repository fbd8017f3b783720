package router

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"github.com/maridaapp/settlement/internal/auth"
	"github.com/maridaapp/settlement/internal/server/handlers"
	"github.com/maridaapp/settlement/internal/settlement"
	"github.com/maridaapp/settlement/internal/storage"
)

type Options struct {
	log    *slog.Logger
	secret []byte
}

func NewRouter(store storage.Storage, stl *settlement.Settlement, opts ...Option) chi.Router {
	r := chi.NewRouter()

	rOpts := Options{
		log:    slog.New(slog.NewJSONHandler(os.Stdout, nil)),
		secret: []byte(""),
	}

	for _, opt := range opts {
		opt(&rOpts)
	}

	tokenAuth := jwtauth.New("HS256", rOpts.secret, nil)

	r.Use(
		middleware.Recoverer,
		middleware.StripSlashes,
		middleware.Logger,
	)

	h := handlers.NewHandlers(store, stl,
		handlers.WithLogger(rOpts.log),
		handlers.WithAuth(auth.NewJWTAuth(rOpts.secret)),
	)

	r.Get("/ping", h.Ping)

	r.Group(func(r chi.Router) {
		r.Post("/api/user/register", h.UserRegister)
		r.Post("/api/user/login", h.UserLogin)
	})

	r.Group(func(r chi.Router) {
		r.Use(
			jwtauth.Verifier(tokenAuth),
			jwtauth.Authenticator(tokenAuth),
		)

		r.Put("/api/user/payment-info", h.UpdatePaymentInfo)
		r.Get("/api/user/balance", h.GetUserBalance)
		r.Get("/api/user/withdrawals", h.GetUserWithdrawals)
		r.Post("/api/user/withdrawals", h.CreateWithdrawal)
		r.Post("/api/user/withdrawals/{withdrawalID}/cancel", h.CancelWithdrawal)
	})

	return r
}

type Option func(r *Options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.log = logger
	}
}

func WithSecret(secret []byte) Option {
	return func(o *Options) {
		o.secret = secret
	}
}
