package handlers

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/arailymkabykenova/MemeBattle/internal/game"
	"github.com/arailymkabykenova/MemeBattle/internal/ws"
)

// actionFrame is one inbound websocket message. Payload fields ride
// under data so the action tag stays separate from user input.
type actionFrame struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

type joinRoomData struct {
	RoomID   int64  `json:"room_id"`
	RoomCode string `json:"room_code"`
}

type startGameData struct {
	RoomID int64 `json:"room_id"`
}

type choiceData struct {
	GameID     int64  `json:"game_id"`
	CardType   string `json:"card_type"`
	CardNumber int    `json:"card_number"`
}

type voteData struct {
	GameID   int64 `json:"game_id"`
	ChoiceID int64 `json:"choice_id"`
}

// dispatch runs one inbound action. Mutating actions answer through
// the room events they cause; only reads and failures get a direct
// reply frame.
func (h *Handler) dispatch(ctx context.Context, user *game.User, sess ws.Session, raw []byte) {
	var frame actionFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		h.sendError(sess, game.Validation("malformed frame"))
		return
	}
	if frame.Action == "" {
		h.sendError(sess, game.Validation("action field is required"))
		return
	}

	var err error
	switch frame.Action {
	case "ping":
		err = h.actionPing(ctx, user, sess)
	case "join_room":
		err = h.actionJoinRoom(ctx, user, sess, frame.Data)
	case "leave_room":
		err = h.actionLeaveRoom(ctx, user, sess)
	case "start_game":
		err = h.actionStartGame(ctx, user, frame.Data)
	case "submit_card_choice":
		err = h.actionSubmitChoice(ctx, user, frame.Data)
	case "submit_vote":
		err = h.actionSubmitVote(ctx, user, frame.Data)
	case "get_game_state":
		err = h.actionGameState(ctx, user, sess)
	default:
		err = game.Validation("unknown action: " + frame.Action)
	}
	if err != nil {
		h.sendError(sess, err)
	}
}

func (h *Handler) sendError(sess ws.Session, err error) {
	kind := game.KindOf(err)
	msg := err.Error()
	if kind == game.KindInternal {
		h.log.Error("socket action failed", zap.Error(err))
		msg = "internal error"
	}
	_ = sess.Send(ws.Message{
		"type":      "error",
		"code":      codeFor(kind),
		"message":   msg,
		"timestamp": wireNow(),
	})
}

func wireNow() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func unmarshalData(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return game.Validation("data field is required")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return game.Validation("malformed data field")
	}
	return nil
}

func (h *Handler) actionPing(ctx context.Context, user *game.User, sess ws.Session) error {
	roomID := h.registry.UserRoom(user.ID)
	if roomID != 0 {
		if err := h.presence.Touch(ctx, roomID, user.ID); err != nil {
			// A finished room can outlive its registry entry briefly;
			// the keepalive itself still succeeds.
			h.log.Debug("ping touch failed", zap.Int64("user_id", user.ID), zap.Error(err))
		}
	}
	msg := ws.Message{"type": "pong", "timestamp": wireNow()}
	if roomID != 0 {
		msg["room_id"] = roomID
	}
	_ = sess.Send(msg)
	return nil
}

func (h *Handler) actionJoinRoom(ctx context.Context, user *game.User, sess ws.Session, raw json.RawMessage) error {
	var d joinRoomData
	if err := unmarshalData(raw, &d); err != nil {
		return err
	}

	var details *game.RoomDetails
	var err error
	switch {
	case d.RoomCode != "":
		details, err = h.rooms.JoinByCode(ctx, user.ID, d.RoomCode)
	case d.RoomID != 0:
		details, err = h.rooms.JoinByID(ctx, user.ID, d.RoomID)
	default:
		return game.Validation("room_id or room_code is required")
	}
	if err != nil {
		return err
	}

	h.registry.JoinRoom(user.ID, details.ID)
	// The joiner was not yet in the room's local set when the join
	// event fanned out, so they get a direct copy.
	_ = sess.Send(ws.Message{
		"type":      "player_joined",
		"user_id":   user.ID,
		"nickname":  user.Nickname,
		"room_id":   details.ID,
		"timestamp": wireNow(),
	})
	return nil
}

func (h *Handler) actionLeaveRoom(ctx context.Context, user *game.User, sess ws.Session) error {
	roomID, err := h.resolveRoom(ctx, user.ID)
	if err != nil {
		return err
	}
	if err := h.rooms.Leave(ctx, user.ID, roomID); err != nil {
		return err
	}
	h.registry.LeaveRoom(user.ID)
	_ = sess.Send(ws.Message{
		"type":      "player_left",
		"user_id":   user.ID,
		"nickname":  user.Nickname,
		"room_id":   roomID,
		"reason":    "left",
		"timestamp": wireNow(),
	})
	return nil
}

func (h *Handler) actionStartGame(ctx context.Context, user *game.User, raw json.RawMessage) error {
	var d startGameData
	if len(raw) > 0 {
		if err := unmarshalData(raw, &d); err != nil {
			return err
		}
	}
	roomID := d.RoomID
	if roomID == 0 {
		var err error
		roomID, err = h.resolveRoom(ctx, user.ID)
		if err != nil {
			return err
		}
	}
	g, err := h.rooms.StartGame(ctx, user.ID, roomID)
	if err != nil {
		return err
	}
	return h.coord.Begin(ctx, g.ID)
}

func (h *Handler) actionSubmitChoice(ctx context.Context, user *game.User, raw json.RawMessage) error {
	var d choiceData
	if err := unmarshalData(raw, &d); err != nil {
		return err
	}
	if d.GameID == 0 {
		return game.Validation("game_id is required")
	}
	_, err := h.rounds.SubmitChoice(ctx, user.ID, d.GameID, game.CardType(d.CardType), d.CardNumber)
	return err
}

func (h *Handler) actionSubmitVote(ctx context.Context, user *game.User, raw json.RawMessage) error {
	var d voteData
	if err := unmarshalData(raw, &d); err != nil {
		return err
	}
	if d.GameID == 0 || d.ChoiceID == 0 {
		return game.Validation("game_id and choice_id are required")
	}
	_, err := h.rounds.SubmitVote(ctx, user.ID, d.GameID, d.ChoiceID)
	return err
}

func (h *Handler) actionGameState(ctx context.Context, user *game.User, sess ws.Session) error {
	roomID, err := h.resolveRoom(ctx, user.ID)
	if err != nil {
		return err
	}
	view, err := h.rounds.State(ctx, user.ID, roomID)
	if err != nil {
		return err
	}
	_ = sess.Send(ws.Message{
		"type":      "game_state",
		"state":     view,
		"timestamp": wireNow(),
	})
	return nil
}

// resolveRoom finds the caller's room: the local socket index first,
// the store as fallback for sockets that attached before joining.
func (h *Handler) resolveRoom(ctx context.Context, userID int64) (int64, error) {
	if roomID := h.registry.UserRoom(userID); roomID != 0 {
		return roomID, nil
	}
	room, err := h.store.GetUserActiveRoom(ctx, userID)
	if err != nil {
		return 0, game.Validation("not in any room")
	}
	return room.ID, nil
}
