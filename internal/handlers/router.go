package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	localmw "github.com/arailymkabykenova/MemeBattle/internal/middleware"
)

// RouterOptions customises router setup for tests.
type RouterOptions struct {
	DisableRateLimit     bool
	DisableRequestLogger bool
	CustomMiddleware     []func(http.Handler) http.Handler
}

// NewRouter assembles the application router: shared middleware, the
// authenticated API surface, the websocket endpoint and the health
// probes.
func NewRouter(h *Handler, opts *RouterOptions) *chi.Mux {
	if opts == nil {
		opts = &RouterOptions{}
	}

	r := chi.NewRouter()

	if !opts.DisableRequestLogger {
		r.Use(chimw.Logger)
	}
	r.Use(chimw.Recoverer)
	r.Use(localmw.RequestSizeLimiter(h.cfg.Server.MaxRequestSize))
	r.Use(localmw.SecurityHeaders())
	if !opts.DisableRateLimit {
		limiter := localmw.NewRateLimiter(h.cfg.Server.RateLimit, h.cfg.Server.RateLimitBurst)
		r.Use(limiter.Middleware())
	}
	for _, mw := range opts.CustomMiddleware {
		r.Use(mw)
	}

	r.Route("/api", func(r chi.Router) {
		// The request timeout stays off the websocket endpoint, which
		// holds its connection open for the whole session.
		r.Use(chimw.Timeout(h.cfg.Server.RequestTimeout))
		r.Use(h.Authenticate)

		r.Route("/rooms", func(r chi.Router) {
			r.Post("/", h.CreateRoom)
			r.Get("/", h.ListRooms)
			r.Get("/current", h.CurrentRoom)
			r.Post("/join-by-code", h.JoinRoomByCode)

			r.Route("/{roomID}", func(r chi.Router) {
				r.Get("/", h.RoomDetails)
				r.Get("/qr", h.RoomQR)
				r.Get("/state", h.GameState)
				r.Post("/join", h.JoinRoom)
				r.Post("/leave", h.LeaveRoom)
				r.Post("/start", h.StartGame)
				r.Post("/ping", h.Ping)
			})
		})

		r.Route("/games/{gameID}", func(r chi.Router) {
			r.Get("/cards", h.RoundCards)
			r.Get("/choices", h.VotingChoices)
			r.Post("/choices", h.SubmitChoice)
			r.Post("/votes", h.SubmitVote)
		})
	})

	r.With(h.Authenticate).Get("/ws", h.ServeWS)

	r.Get("/health/live", h.HealthLive)
	r.Get("/health/ready", h.HealthReady)

	return r
}
