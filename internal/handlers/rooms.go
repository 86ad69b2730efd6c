package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/arailymkabykenova/MemeBattle/internal/game"
)

const (
	defaultListLimit    = 20
	defaultRoomCapacity = 6
)

type createRoomRequest struct {
	MaxPlayers   int  `json:"max_players"`
	IsPublic     bool `json:"is_public"`
	GenerateCode bool `json:"generate_code"`
}

type joinByCodeRequest struct {
	RoomCode string `json:"room_code"`
}

type roomResponse struct {
	ID             int64             `json:"id"`
	CreatorID      int64             `json:"creator_id"`
	MaxPlayers     int               `json:"max_players"`
	Status         game.RoomStatus   `json:"status"`
	RoomCode       string            `json:"room_code,omitempty"`
	IsPublic       bool              `json:"is_public"`
	AgeGroup       game.AgeGroup     `json:"age_group,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	CurrentPlayers int               `json:"current_players"`
}

type participantResponse struct {
	ID           int64                  `json:"id"`
	RoomID       int64                  `json:"room_id"`
	UserID       int64                  `json:"user_id"`
	UserNickname string                 `json:"user_nickname"`
	Status       game.ParticipantStatus `json:"status"`
	Connection   game.ConnectionStatus  `json:"connection"`
	JoinedAt     time.Time              `json:"joined_at"`
}

type roomDetailResponse struct {
	roomResponse
	Participants    []participantResponse `json:"participants"`
	CreatorNickname string                `json:"creator_nickname"`
	CanStartGame    bool                  `json:"can_start_game"`
}

type gameResponse struct {
	ID           int64           `json:"id"`
	RoomID       int64           `json:"room_id"`
	Status       game.GameStatus `json:"status"`
	CurrentRound int             `json:"current_round"`
	WinnerID     int64           `json:"winner_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}

func roomFrom(r *game.Room, players int) roomResponse {
	return roomResponse{
		ID:             r.ID,
		CreatorID:      r.CreatorID,
		MaxPlayers:     r.MaxPlayers,
		Status:         r.Status,
		RoomCode:       r.Code,
		IsPublic:       r.IsPublic,
		AgeGroup:       r.AgeGroup,
		CreatedAt:      r.CreatedAt,
		CurrentPlayers: players,
	}
}

func detailFrom(d *game.RoomDetails) roomDetailResponse {
	parts := make([]participantResponse, 0, len(d.Participants))
	creatorNickname := ""
	active := 0
	for _, p := range d.Participants {
		if p.Status == game.ParticipantActive {
			active++
		}
		if p.UserID == d.CreatorID {
			creatorNickname = p.Nickname
		}
		parts = append(parts, participantResponse{
			ID:           p.ID,
			RoomID:       p.RoomID,
			UserID:       p.UserID,
			UserNickname: p.Nickname,
			Status:       p.Status,
			Connection:   p.Connection,
			JoinedAt:     p.JoinedAt,
		})
	}
	return roomDetailResponse{
		roomResponse:    roomFrom(&d.Room, active),
		Participants:    parts,
		CreatorNickname: creatorNickname,
		CanStartGame:    d.CanStartGame,
	}
}

func gameFrom(g *game.Game) gameResponse {
	resp := gameResponse{
		ID:           g.ID,
		RoomID:       g.RoomID,
		Status:       g.Status,
		CurrentRound: g.CurrentRound,
		WinnerID:     g.WinnerID,
		CreatedAt:    g.CreatedAt,
	}
	if !g.FinishedAt.IsZero() {
		at := g.FinishedAt
		resp.FinishedAt = &at
	}
	return resp
}

// CreateRoom opens a new room with the caller as creator.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	req := createRoomRequest{MaxPlayers: defaultRoomCapacity, IsPublic: true}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	room, err := h.rooms.CreateRoom(r.Context(), user.ID, req.MaxPlayers, req.IsPublic, req.GenerateCode)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.registry.JoinRoom(user.ID, room.ID)
	h.writeJSON(w, http.StatusCreated, roomFrom(room, 1))
}

// ListRooms returns public waiting rooms with free seats.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			h.writeError(w, game.Validation("limit must be between 1 and 100"))
			return
		}
		limit = n
	}
	rooms, err := h.rooms.ListPublic(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]roomResponse, 0, len(rooms))
	for i := range rooms {
		out = append(out, roomFrom(&rooms[i].Room, rooms[i].ParticipantCount))
	}
	h.writeJSON(w, http.StatusOK, out)
}

// CurrentRoom returns the caller's one non-terminal room.
func (h *Handler) CurrentRoom(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	details, err := h.rooms.CurrentRoom(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, detailFrom(details))
}

// RoomDetails returns one room with its participant list.
func (h *Handler) RoomDetails(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	roomID, err := pathID(r, "roomID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	details, err := h.rooms.Details(r.Context(), roomID, user.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, detailFrom(details))
}

// JoinRoom adds the caller to a public room by id.
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	roomID, err := pathID(r, "roomID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	details, err := h.rooms.JoinByID(r.Context(), user.ID, roomID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.registry.JoinRoom(user.ID, details.ID)
	h.writeJSON(w, http.StatusOK, detailFrom(details))
}

// JoinRoomByCode adds the caller to the room matching the join code,
// private rooms included.
func (h *Handler) JoinRoomByCode(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	var req joinByCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.RoomCode == "" {
		h.writeError(w, game.Validation("room_code is required"))
		return
	}
	details, err := h.rooms.JoinByCode(r.Context(), user.ID, req.RoomCode)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.registry.JoinRoom(user.ID, details.ID)
	h.writeJSON(w, http.StatusOK, detailFrom(details))
}

// LeaveRoom removes the caller from the room.
func (h *Handler) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	roomID, err := pathID(r, "roomID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.rooms.Leave(r.Context(), user.ID, roomID); err != nil {
		h.writeError(w, err)
		return
	}
	h.registry.LeaveRoom(user.ID)
	h.writeJSON(w, http.StatusOK, map[string]any{"message": "left the room"})
}

// StartGame starts the game in the caller's room and kicks off the
// first round.
func (h *Handler) StartGame(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	roomID, err := pathID(r, "roomID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	g, err := h.rooms.StartGame(r.Context(), user.ID, roomID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.coord.Begin(r.Context(), g.ID); err != nil {
		// The game row exists in starting state; recovery re-runs the
		// first round on next boot if this was transient.
		h.writeError(w, err)
		return
	}
	fresh, err := h.store.GetGame(r.Context(), g.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, gameFrom(fresh))
}

// Ping refreshes the caller's activity timestamps in the room.
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	roomID, err := pathID(r, "roomID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.presence.Touch(r.Context(), roomID, user.ID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"message":   "pong",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
