// Package handlers is the action gateway: it authenticates clients,
// routes HTTP and websocket actions to the engine services, and maps
// domain errors onto transport codes.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/arailymkabykenova/MemeBattle/internal/auth"
	"github.com/arailymkabykenova/MemeBattle/internal/config"
	"github.com/arailymkabykenova/MemeBattle/internal/engine"
	"github.com/arailymkabykenova/MemeBattle/internal/game"
	"github.com/arailymkabykenova/MemeBattle/internal/store"
	"github.com/arailymkabykenova/MemeBattle/internal/ws"
)

// ReadyCheck reports one dependency's availability for the readiness
// probe.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps carries everything the gateway routes to.
type Deps struct {
	BaseCtx  context.Context
	Store    store.Store
	Rooms    *engine.RoomService
	Rounds   *engine.RoundService
	Coord    *engine.Coordinator
	Presence *engine.Presence
	Registry *ws.Registry
	Verifier *auth.Verifier
	Config   *config.ServerConfig
	Log      *zap.Logger
	Ready    []ReadyCheck
}

// Handler holds dependencies for HTTP and websocket handlers.
type Handler struct {
	baseCtx  context.Context
	store    store.Store
	rooms    *engine.RoomService
	rounds   *engine.RoundService
	coord    *engine.Coordinator
	presence *engine.Presence
	registry *ws.Registry
	verifier *auth.Verifier
	cfg      *config.ServerConfig
	log      *zap.Logger
	ready    []ReadyCheck
}

func New(d Deps) *Handler {
	if d.BaseCtx == nil {
		d.BaseCtx = context.Background()
	}
	return &Handler{
		baseCtx:  d.BaseCtx,
		store:    d.Store,
		rooms:    d.Rooms,
		rounds:   d.Rounds,
		coord:    d.Coord,
		presence: d.Presence,
		registry: d.Registry,
		verifier: d.Verifier,
		cfg:      d.Config,
		log:      d.Log,
		ready:    d.Ready,
	}
}

type ctxKey int

const userKey ctxKey = iota

func withUser(ctx context.Context, u *game.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func userFrom(ctx context.Context) *game.User {
	u, _ := ctx.Value(userKey).(*game.User)
	return u
}

// Authenticate resolves the bearer credential into a full user record
// and stores it on the request context. The websocket endpoint passes
// the token as a query parameter because browser clients cannot set
// headers on the upgrade request.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			h.writeError(w, game.Unauthenticated("missing bearer token"))
			return
		}
		ident, err := h.verifier.Verify(token)
		if err != nil {
			h.writeError(w, err)
			return
		}
		user, err := h.store.GetUser(r.Context(), ident.UserID)
		if err != nil {
			h.writeError(w, game.Unauthenticated("unknown user"))
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("response write failed", zap.Error(err))
	}
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return game.Validation("malformed request body")
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, game.Validation("invalid " + name)
	}
	return id, nil
}
