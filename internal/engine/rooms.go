package engine

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arailymkabykenova/MemeBattle/internal/bus"
	"github.com/arailymkabykenova/MemeBattle/internal/config"
	"github.com/arailymkabykenova/MemeBattle/internal/game"
	"github.com/arailymkabykenova/MemeBattle/internal/store"
)

// RoomService manages the room lifecycle from creation to the moment a
// game starts.
type RoomService struct {
	store    store.Store
	bus      bus.Bus
	log      *zap.Logger
	locks    *Locks
	presence *Presence
	cfg      config.GameSettings
}

// NewRoomService returns a room lifecycle manager.
func NewRoomService(st store.Store, b bus.Bus, locks *Locks, presence *Presence, log *zap.Logger, cfg config.GameSettings) *RoomService {
	return &RoomService{store: st, bus: b, locks: locks, presence: presence, log: log, cfg: cfg}
}

// CreateRoom opens a new room with the creator as its first active
// participant. Public rooms derive their demographic from the creator's
// age; private rooms always use the mixed demographic. A join code is
// generated for private rooms and, on request, for public ones.
func (s *RoomService) CreateRoom(ctx context.Context, creatorID int64, maxPlayers int, isPublic, wantCode bool) (*game.Room, error) {
	user, err := s.store.GetUser(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if !user.ProfileComplete() {
		return nil, game.ErrProfileIncomplete
	}
	if maxPlayers < s.cfg.MinPlayersPerRoom || maxPlayers > s.cfg.MaxPlayersPerRoom {
		return nil, game.Validation(fmt.Sprintf("max players must be between %d and %d",
			s.cfg.MinPlayersPerRoom, s.cfg.MaxPlayersPerRoom))
	}
	if _, err := s.store.GetCreatorActiveRoom(ctx, creatorID); err == nil {
		return nil, game.ErrActiveRoomExists
	} else if !errors.Is(err, game.ErrRoomNotFound) {
		return nil, err
	}
	if _, err := s.store.GetUserActiveRoom(ctx, creatorID); err == nil {
		return nil, game.ErrActiveRoomExists
	} else if !errors.Is(err, game.ErrRoomNotFound) {
		return nil, err
	}

	ageGroup := game.AgeMixed
	if isPublic {
		ageGroup = game.AgeGroupFor(user.Age(time.Now()))
	}
	code := ""
	if wantCode || !isPublic {
		code, err = s.generateCode(ctx)
		if err != nil {
			return nil, err
		}
	}

	room := &game.Room{
		CreatorID:  creatorID,
		MaxPlayers: maxPlayers,
		Status:     game.RoomWaiting,
		Code:       code,
		IsPublic:   isPublic,
		AgeGroup:   ageGroup,
	}
	err = s.store.RunInTx(ctx, func(tx store.Store) error {
		if err := tx.CreateRoom(ctx, room); err != nil {
			return err
		}
		now := time.Now()
		return tx.CreateParticipant(ctx, &game.Participant{
			RoomID:       room.ID,
			UserID:       creatorID,
			Status:       game.ParticipantActive,
			Connection:   game.ConnConnected,
			LastActivity: now,
			LastPing:     now,
			JoinedAt:     now,
			Nickname:     user.Nickname,
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("room created",
		zap.Int64("room_id", room.ID),
		zap.Int64("creator_id", creatorID),
		zap.Bool("is_public", isPublic),
		zap.String("age_group", string(ageGroup)))
	return room, nil
}

// JoinByID adds the user to a public room. Private rooms require the
// code path.
func (s *RoomService) JoinByID(ctx context.Context, userID, roomID int64) (*game.RoomDetails, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return s.join(ctx, userID, room, false)
}

// JoinByCode adds the user to the room with the given join code. The
// code grants access to private rooms.
func (s *RoomService) JoinByCode(ctx context.Context, userID int64, code string) (*game.RoomDetails, error) {
	room, err := s.store.GetRoomByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.join(ctx, userID, room, true)
}

func (s *RoomService) join(ctx context.Context, userID int64, room *game.Room, viaCode bool) (*game.RoomDetails, error) {
	unlock := s.locks.Lock(room.ID)
	defer unlock()

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.ProfileComplete() {
		return nil, game.ErrProfileIncomplete
	}

	p, err := s.store.GetParticipant(ctx, room.ID, userID)
	switch {
	case err == nil && p.Status == game.ParticipantActive:
		// Already a member; joining again is a no-op.
		if err := s.presence.Touch(ctx, room.ID, userID); err != nil {
			return nil, err
		}
		return s.assemble(ctx, room)

	case err == nil && p.Status == game.ParticipantDisconnected:
		if err := s.presence.Reconnect(ctx, room.ID, userID); err != nil {
			return nil, err
		}
		return s.assemble(ctx, room)

	case err == nil:
		// Departed earlier. Excluded players stay out, voluntary
		// leavers may re-enter while the room is still waiting.
		if !s.presence.CanRejoin(p) {
			return nil, game.PermissionDenied("excluded from this room")
		}
		if room.Status != game.RoomWaiting {
			return nil, game.ErrRoomNotWaiting
		}
		if err := s.checkCapacity(ctx, room); err != nil {
			return nil, err
		}
		if err := s.store.SetParticipantStatus(ctx, room.ID, userID, game.ParticipantActive); err != nil {
			return nil, err
		}
		if err := s.presence.Touch(ctx, room.ID, userID); err != nil {
			return nil, err
		}

	case errors.Is(err, game.ErrNotParticipant):
		if room.Status != game.RoomWaiting {
			return nil, game.ErrRoomNotWaiting
		}
		if !viaCode && !room.IsPublic {
			return nil, game.ErrPrivateRoom
		}
		if err := s.checkCapacity(ctx, room); err != nil {
			return nil, err
		}
		if other, err := s.store.GetUserActiveRoom(ctx, userID); err == nil && other.ID != room.ID {
			return nil, game.ErrActiveRoomExists
		} else if err != nil && !errors.Is(err, game.ErrRoomNotFound) {
			return nil, err
		}
		now := time.Now()
		if err := s.store.CreateParticipant(ctx, &game.Participant{
			RoomID:       room.ID,
			UserID:       userID,
			Status:       game.ParticipantActive,
			Connection:   game.ConnConnected,
			LastActivity: now,
			LastPing:     now,
			JoinedAt:     now,
			Nickname:     user.Nickname,
		}); err != nil {
			return nil, err
		}

	default:
		return nil, err
	}

	s.log.Info("player joined room", zap.Int64("room_id", room.ID), zap.Int64("user_id", userID))
	s.publish(ctx, room.ID, bus.PlayerJoined, map[string]any{
		"user_id":  userID,
		"nickname": user.Nickname,
	})
	return s.assemble(ctx, room)
}

func (s *RoomService) checkCapacity(ctx context.Context, room *game.Room) error {
	active, err := s.store.ListActiveParticipants(ctx, room.ID)
	if err != nil {
		return err
	}
	if len(active) >= room.MaxPlayers {
		return game.ErrRoomFull
	}
	return nil
}

// Leave removes the user from the room. When the creator leaves a room
// that has not started yet, the room is cancelled.
func (s *RoomService) Leave(ctx context.Context, userID, roomID int64) error {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	p, err := s.store.GetParticipant(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if p.Status == game.ParticipantLeft {
		return nil
	}
	if err := s.store.SetParticipantStatus(ctx, roomID, userID, game.ParticipantLeft); err != nil {
		return err
	}
	if err := s.store.SetConnection(ctx, roomID, userID, game.ConnDisconnected); err != nil {
		return err
	}
	s.publish(ctx, roomID, bus.PlayerLeft, map[string]any{
		"user_id":  userID,
		"nickname": p.Nickname,
		"reason":   "left",
	})
	if room.CreatorID == userID && room.Status == game.RoomWaiting {
		if err := s.store.SetRoomStatus(ctx, roomID, game.RoomCancelled); err != nil {
			return err
		}
		s.log.Info("room cancelled by creator leave", zap.Int64("room_id", roomID))
	}
	return nil
}

// StartGame transitions a waiting room into playing and creates its
// game. Only the creator may start, and at least the minimum number of
// active participants must be present.
func (s *RoomService) StartGame(ctx context.Context, userID, roomID int64) (*game.Game, error) {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.CreatorID != userID {
		return nil, game.ErrNotCreator
	}
	switch room.Status {
	case game.RoomWaiting:
	case game.RoomPlaying:
		return nil, game.ErrGameAlreadyStarted
	default:
		return nil, game.ErrRoomNotWaiting
	}
	active, err := s.store.ListActiveParticipants(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if len(active) < s.cfg.MinPlayersPerRoom {
		return nil, game.ErrNotEnoughPlayers
	}

	g := &game.Game{RoomID: roomID, Status: game.GameStarting}
	err = s.store.RunInTx(ctx, func(tx store.Store) error {
		if err := tx.SetRoomStatus(ctx, roomID, game.RoomPlaying); err != nil {
			return err
		}
		return tx.CreateGame(ctx, g)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("game created",
		zap.Int64("room_id", roomID),
		zap.Int64("game_id", g.ID),
		zap.Int("players", len(active)))
	return g, nil
}

// ListPublic returns joinable public rooms.
func (s *RoomService) ListPublic(ctx context.Context, limit int) ([]game.RoomSummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.ListPublicRooms(ctx, limit)
}

// CurrentRoom returns the one non-terminal room the user belongs to.
func (s *RoomService) CurrentRoom(ctx context.Context, userID int64) (*game.RoomDetails, error) {
	room, err := s.store.GetUserActiveRoom(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.assemble(ctx, room)
}

// Details returns the full read model for one room. Private rooms are
// visible to their participants only.
func (s *RoomService) Details(ctx context.Context, roomID, viewerID int64) (*game.RoomDetails, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsPublic {
		p, err := s.store.GetParticipant(ctx, roomID, viewerID)
		if err != nil || p.Status == game.ParticipantLeft {
			return nil, game.ErrNotParticipant
		}
	}
	return s.assemble(ctx, room)
}

func (s *RoomService) assemble(ctx context.Context, room *game.Room) (*game.RoomDetails, error) {
	parts, err := s.store.ListParticipants(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	current := make([]game.Participant, 0, len(parts))
	activeCount := 0
	for _, p := range parts {
		if p.Status == game.ParticipantLeft {
			continue
		}
		if p.Status == game.ParticipantActive {
			activeCount++
		}
		current = append(current, p)
	}
	return &game.RoomDetails{
		Room:         *room,
		Participants: current,
		CanStartGame: room.Status == game.RoomWaiting && activeCount >= s.cfg.MinPlayersPerRoom,
	}, nil
}

func (s *RoomService) generateCode(ctx context.Context) (string, error) {
	const maxAttempts = 10
	for i := 0; i < maxAttempts; i++ {
		code, err := randomCode(s.cfg.RoomCodeAlphabet, s.cfg.RoomCodeLength)
		if err != nil {
			return "", game.Internal("generate room code", err)
		}
		inUse, err := s.store.CodeInUse(ctx, code)
		if err != nil {
			return "", err
		}
		if !inUse {
			return code, nil
		}
	}
	return "", game.ErrCodeExhausted
}

func randomCode(alphabet string, length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	code := make([]byte, length)
	for i, b := range buf {
		code[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(code), nil
}

func (s *RoomService) publish(ctx context.Context, roomID int64, kind bus.Kind, payload map[string]any) {
	if err := s.bus.Publish(ctx, bus.Event{RoomID: roomID, Kind: kind, Payload: payload}); err != nil {
		s.log.Warn("publish room event", zap.String("kind", string(kind)), zap.Error(err))
	}
}
