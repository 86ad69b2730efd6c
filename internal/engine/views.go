package engine

import (
	"context"
	"errors"
	"time"

	"github.com/arailymkabykenova/MemeBattle/internal/game"
)

// StateView is the full game snapshot for one viewer. It is served on
// demand and pushed on reconnect so clients can resynchronise.
type StateView struct {
	RoomID       int64           `json:"room_id"`
	RoomStatus   game.RoomStatus `json:"room_status"`
	GameID       int64           `json:"game_id,omitempty"`
	GameStatus   game.GameStatus `json:"game_status,omitempty"`
	CurrentRound int             `json:"current_round,omitempty"`
	Round        *RoundView      `json:"round,omitempty"`
	Players      []PlayerView    `json:"players"`
	HasChosen    bool            `json:"has_chosen"`
	HasVoted     bool            `json:"has_voted"`
}

// RoundView is the public projection of the current round.
type RoundView struct {
	ID                int64     `json:"id"`
	Number            int       `json:"number"`
	SituationText     string    `json:"situation_text"`
	SelectionDeadline time.Time `json:"selection_deadline"`
	VotingDeadline    time.Time `json:"voting_deadline"`
	ChoiceCount       int       `json:"choice_count"`
	VoteCount         int       `json:"vote_count"`
}

// PlayerView is one participant row in the snapshot.
type PlayerView struct {
	UserID     int64                  `json:"user_id"`
	Nickname   string                 `json:"nickname"`
	Status     game.ParticipantStatus `json:"status"`
	Connection game.ConnectionStatus  `json:"connection"`
}

// ChoiceView is the anonymised projection of one submitted choice
// during voting. Card owners stay hidden until the results.
type ChoiceView struct {
	ChoiceID   int64         `json:"choice_id"`
	CardType   game.CardType `json:"card_type"`
	CardNumber int           `json:"card_number"`
	ImageURL   string        `json:"image_url"`
	VoteCount  int           `json:"vote_count"`
}

// State builds the snapshot of the viewer's room and its game, if one
// is running. The viewer must be a current participant.
func (s *RoundService) State(ctx context.Context, userID, roomID int64) (*StateView, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	p, err := s.store.GetParticipant(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if p.Status == game.ParticipantLeft {
		return nil, game.ErrNotParticipant
	}

	parts, err := s.store.ListParticipants(ctx, roomID)
	if err != nil {
		return nil, err
	}
	sv := &StateView{
		RoomID:     roomID,
		RoomStatus: room.Status,
		Players:    make([]PlayerView, 0, len(parts)),
	}
	for _, part := range parts {
		if part.Status == game.ParticipantLeft {
			continue
		}
		sv.Players = append(sv.Players, PlayerView{
			UserID:     part.UserID,
			Nickname:   part.Nickname,
			Status:     part.Status,
			Connection: part.Connection,
		})
	}

	g, err := s.store.GetActiveGame(ctx, roomID)
	if errors.Is(err, game.ErrGameNotFound) {
		return sv, nil
	}
	if err != nil {
		return nil, err
	}
	sv.GameID = g.ID
	sv.GameStatus = g.Status
	sv.CurrentRound = g.CurrentRound
	if g.CurrentRound == 0 {
		return sv, nil
	}

	round, err := s.store.GetCurrentRound(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	choices, err := s.store.CountChoices(ctx, round.ID)
	if err != nil {
		return nil, err
	}
	votes, err := s.store.CountVotes(ctx, round.ID)
	if err != nil {
		return nil, err
	}
	sv.Round = &RoundView{
		ID:                round.ID,
		Number:            round.Number,
		SituationText:     round.SituationText,
		SelectionDeadline: round.SelectionDeadline,
		VotingDeadline:    round.VotingDeadline,
		ChoiceCount:       choices,
		VoteCount:         votes,
	}
	if sv.HasChosen, err = s.store.HasChoice(ctx, round.ID, userID); err != nil {
		return nil, err
	}
	if sv.HasVoted, err = s.store.HasVote(ctx, round.ID, userID); err != nil {
		return nil, err
	}
	return sv, nil
}

// HandForRound deals the viewer's hand for the current card-selection
// phase.
func (s *RoundService) HandForRound(ctx context.Context, userID, gameID int64) ([]CardView, error) {
	g, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.Status != game.GameCardSelection {
		return nil, game.ErrWrongPhase
	}
	p, err := s.store.GetParticipant(ctx, g.RoomID, userID)
	if err != nil {
		return nil, err
	}
	if p.Status == game.ParticipantLeft {
		return nil, game.ErrNotParticipant
	}
	return s.cards.DealHand(ctx, userID)
}

// ChoicesForVoting lists the current round's choices without their
// owners, excluding the viewer's own, ordered by submission time.
func (s *RoundService) ChoicesForVoting(ctx context.Context, userID, gameID int64) ([]ChoiceView, error) {
	g, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.Status != game.GameVoting {
		return nil, game.ErrWrongPhase
	}
	p, err := s.store.GetParticipant(ctx, g.RoomID, userID)
	if err != nil {
		return nil, err
	}
	if p.Status == game.ParticipantLeft {
		return nil, game.ErrNotParticipant
	}
	round, err := s.store.GetCurrentRound(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	choices, err := s.store.ListChoices(ctx, round.ID)
	if err != nil {
		return nil, err
	}
	tally, err := s.store.TallyRound(ctx, round.ID)
	if err != nil {
		return nil, err
	}
	counts := make(map[int64]int, len(tally))
	for _, t := range tally {
		counts[t.ChoiceID] = t.Votes
	}

	out := make([]ChoiceView, 0, len(choices))
	for _, c := range choices {
		if c.UserID == userID {
			continue
		}
		out = append(out, ChoiceView{
			ChoiceID:   c.ID,
			CardType:   c.CardType,
			CardNumber: c.CardNumber,
			ImageURL:   s.cards.View(c.CardType, c.CardNumber).ImageURL,
			VoteCount:  counts[c.ID],
		})
	}
	return out, nil
}
