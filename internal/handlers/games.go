package handlers

import (
	"net/http"
	"time"

	"github.com/arailymkabykenova/MemeBattle/internal/game"
)

type submitChoiceRequest struct {
	CardType   string `json:"card_type"`
	CardNumber int    `json:"card_number"`
}

type submitVoteRequest struct {
	ChoiceID int64 `json:"choice_id"`
}

type choiceResponse struct {
	ID          int64         `json:"id"`
	RoundID     int64         `json:"round_id"`
	CardType    game.CardType `json:"card_type"`
	CardNumber  int           `json:"card_number"`
	SubmittedAt time.Time     `json:"submitted_at"`
}

type voteResponse struct {
	ID        int64     `json:"id"`
	RoundID   int64     `json:"round_id"`
	ChoiceID  int64     `json:"choice_id"`
	CreatedAt time.Time `json:"created_at"`
}

// GameState returns the full snapshot of the caller's room and its
// running game.
func (h *Handler) GameState(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	roomID, err := pathID(r, "roomID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	view, err := h.rounds.State(r.Context(), user.ID, roomID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// RoundCards deals the caller's hand for the current round.
func (h *Handler) RoundCards(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	gameID, err := pathID(r, "gameID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	hand, err := h.rounds.HandForRound(r.Context(), user.ID, gameID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"cards": hand})
}

// VotingChoices lists the anonymised choices the caller can vote on.
func (h *Handler) VotingChoices(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	gameID, err := pathID(r, "gameID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	choices, err := h.rounds.ChoicesForVoting(r.Context(), user.ID, gameID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"choices": choices})
}

// SubmitChoice records the caller's card for the current round.
func (h *Handler) SubmitChoice(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	gameID, err := pathID(r, "gameID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req submitChoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	choice, err := h.rounds.SubmitChoice(r.Context(), user.ID, gameID, game.CardType(req.CardType), req.CardNumber)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, choiceResponse{
		ID:          choice.ID,
		RoundID:     choice.RoundID,
		CardType:    choice.CardType,
		CardNumber:  choice.CardNumber,
		SubmittedAt: choice.SubmittedAt,
	})
}

// SubmitVote records the caller's vote for another player's choice.
func (h *Handler) SubmitVote(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	gameID, err := pathID(r, "gameID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req submitVoteRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.ChoiceID == 0 {
		h.writeError(w, game.Validation("choice_id is required"))
		return
	}
	vote, err := h.rounds.SubmitVote(r.Context(), user.ID, gameID, req.ChoiceID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, voteResponse{
		ID:        vote.ID,
		RoundID:   vote.RoundID,
		ChoiceID:  vote.ChoiceID,
		CreatedAt: vote.CreatedAt,
	})
}
