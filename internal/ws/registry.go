// Package ws tracks the live client sessions of one server instance
// and fans room events out to them. The registry is authoritative for
// who-to-send-to locally; room membership itself lives in the store.
package ws

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arailymkabykenova/MemeBattle/internal/bus"
	"github.com/arailymkabykenova/MemeBattle/internal/game"
	"github.com/arailymkabykenova/MemeBattle/internal/store"
)

// Message is one outbound JSON frame.
type Message map[string]any

// Session is a single live client transport. Send must not block:
// implementations queue the frame or fail fast.
type Session interface {
	Send(msg Message) error
	Close()
}

// DropFunc runs after the session of a room participant is removed,
// so presence bookkeeping can count the disconnect.
type DropFunc func(ctx context.Context, roomID, userID int64)

// Registry indexes sessions by user and by room. Every room with at
// least one local member holds a bus subscription whose events are
// broadcast to those members. All mutation happens under one mutex;
// socket sends never do.
type Registry struct {
	store   store.Store
	bus     bus.Bus
	log     *zap.Logger
	onDrop  DropFunc
	baseCtx context.Context

	mu       sync.Mutex
	sessions map[int64]Session
	rooms    map[int64]map[int64]struct{}
	userRoom map[int64]int64
	cancels  map[int64]func()
}

func NewRegistry(baseCtx context.Context, st store.Store, b bus.Bus, onDrop DropFunc, log *zap.Logger) *Registry {
	return &Registry{
		store:    st,
		bus:      b,
		log:      log,
		onDrop:   onDrop,
		baseCtx:  baseCtx,
		sessions: make(map[int64]Session),
		rooms:    make(map[int64]map[int64]struct{}),
		userRoom: make(map[int64]int64),
		cancels:  make(map[int64]func()),
	}
}

// Attach registers a session for the user, closing any prior one. The
// room association is re-derived from the store, not taken from the
// client, so a reconnecting socket lands back in its live room no
// matter what it asked for. Returns the resolved room id, 0 for none.
func (r *Registry) Attach(ctx context.Context, user *game.User, sess Session) int64 {
	var roomID int64
	room, err := r.store.GetUserActiveRoom(ctx, user.ID)
	switch {
	case err == nil:
		roomID = room.ID
	case game.KindOf(err) != game.KindNotFound:
		r.log.Warn("room sync failed on attach",
			zap.Int64("user_id", user.ID), zap.Error(err))
	}

	r.mu.Lock()
	prior := r.sessions[user.ID]
	r.sessions[user.ID] = sess
	if roomID != 0 {
		r.joinLocked(user.ID, roomID)
	} else {
		r.leaveLocked(user.ID)
	}
	r.mu.Unlock()

	if prior != nil {
		r.log.Info("superseding live session", zap.Int64("user_id", user.ID))
		prior.Close()
	}

	msg := Message{
		"type":      "connection_established",
		"user_id":   user.ID,
		"nickname":  user.Nickname,
		"room_id":   nil,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if roomID != 0 {
		msg["room_id"] = roomID
	}
	r.Send(user.ID, msg)
	return roomID
}

// Detach removes the session if it is still the registered one, then
// reports the drop so the participant's disconnect counter moves. A
// stale detach from a superseded connection is ignored.
func (r *Registry) Detach(ctx context.Context, userID int64, sess Session) {
	r.mu.Lock()
	cur := r.sessions[userID]
	if cur == nil || (sess != nil && cur != sess) {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, userID)
	roomID := r.leaveLocked(userID)
	r.mu.Unlock()

	cur.Close()
	if roomID != 0 && r.onDrop != nil {
		r.onDrop(ctx, roomID, userID)
	}
}

// JoinRoom records a local room association. Bookkeeping only: the
// caller has already gone through the room service. Users without a
// live session are not indexed.
func (r *Registry) JoinRoom(userID, roomID int64) {
	r.mu.Lock()
	if _, ok := r.sessions[userID]; ok {
		r.joinLocked(userID, roomID)
	}
	r.mu.Unlock()
}

// LeaveRoom clears the local room association.
func (r *Registry) LeaveRoom(userID int64) {
	r.mu.Lock()
	r.leaveLocked(userID)
	r.mu.Unlock()
}

func (r *Registry) joinLocked(userID, roomID int64) {
	if prev, ok := r.userRoom[userID]; ok {
		if prev == roomID {
			return
		}
		r.dropFromRoomLocked(userID, prev)
	}
	members := r.rooms[roomID]
	if members == nil {
		members = make(map[int64]struct{})
		r.rooms[roomID] = members
		r.subscribeLocked(roomID)
	}
	members[userID] = struct{}{}
	r.userRoom[userID] = roomID
}

// leaveLocked returns the room the user was in, 0 if none.
func (r *Registry) leaveLocked(userID int64) int64 {
	roomID, ok := r.userRoom[userID]
	if !ok {
		return 0
	}
	delete(r.userRoom, userID)
	r.dropFromRoomLocked(userID, roomID)
	return roomID
}

func (r *Registry) dropFromRoomLocked(userID, roomID int64) {
	members := r.rooms[roomID]
	delete(members, userID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
		r.unsubscribeLocked(roomID)
	}
}

// subscribeLocked opens the bus feed for a room gaining its first
// local member. The pump goroutine exits when the subscription is
// cancelled and its channel closes.
func (r *Registry) subscribeLocked(roomID int64) {
	if r.bus == nil {
		return
	}
	ch, cancel := r.bus.Subscribe(roomID)
	r.cancels[roomID] = cancel
	go r.pump(ch)
}

func (r *Registry) unsubscribeLocked(roomID int64) {
	if cancel, ok := r.cancels[roomID]; ok {
		delete(r.cancels, roomID)
		cancel()
	}
}

func (r *Registry) pump(ch <-chan bus.Event) {
	for e := range ch {
		r.BroadcastRoom(e.RoomID, Outbound(e), 0)
	}
}

// Outbound flattens a bus event into its wire form: the kind becomes
// the type field and payload keys rise to the top level.
func Outbound(e bus.Event) Message {
	msg := make(Message, len(e.Payload)+2)
	for k, v := range e.Payload {
		msg[k] = v
	}
	msg["type"] = string(e.Kind)
	msg["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339)
	return msg
}

// Send delivers a message to one user, best effort. A session that
// cannot take the frame is detached; the client reconnects on its own.
func (r *Registry) Send(userID int64, msg Message) {
	r.mu.Lock()
	sess := r.sessions[userID]
	r.mu.Unlock()
	if sess == nil {
		return
	}
	if err := sess.Send(msg); err != nil {
		r.log.Warn("dropping unwritable session",
			zap.Int64("user_id", userID), zap.Error(err))
		r.Detach(r.baseCtx, userID, sess)
	}
}

// BroadcastRoom delivers a message to every local member of the room.
// excludeUser 0 excludes nobody.
func (r *Registry) BroadcastRoom(roomID int64, msg Message, excludeUser int64) {
	r.mu.Lock()
	targets := make([]int64, 0, len(r.rooms[roomID]))
	for userID := range r.rooms[roomID] {
		if userID == excludeUser {
			continue
		}
		targets = append(targets, userID)
	}
	r.mu.Unlock()

	for _, userID := range targets {
		r.Send(userID, msg)
	}
}

// IsConnected reports whether the user has a live session here.
func (r *Registry) IsConnected(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[userID]
	return ok
}

// UserRoom returns the local room association, 0 if none.
func (r *Registry) UserRoom(userID int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userRoom[userID]
}

// Stats reports session and room counts for the readiness probe.
func (r *Registry) Stats() (sessions, rooms int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions), len(r.rooms)
}

// CloseAll tears down every session and subscription on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	cancels := r.cancels
	r.sessions = make(map[int64]Session)
	r.rooms = make(map[int64]map[int64]struct{})
	r.userRoom = make(map[int64]int64)
	r.cancels = make(map[int64]func())
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	for _, s := range sessions {
		s.Close()
	}
}
