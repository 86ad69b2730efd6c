package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arailymkabykenova/MemeBattle/internal/bus"
	"github.com/arailymkabykenova/MemeBattle/internal/config"
	"github.com/arailymkabykenova/MemeBattle/internal/game"
	"github.com/arailymkabykenova/MemeBattle/internal/store"
)

// RoundService owns the per-round phase machine: card selection,
// voting and result aggregation. All mutations run under the room lock
// so player actions and deadline timers never interleave.
type RoundService struct {
	store    store.Store
	bus      bus.Bus
	log      *zap.Logger
	locks    *Locks
	presence *Presence
	cards    *CardService
	sink     SituationSink
	cfg      config.GameSettings

	// coord is wired in by NewCoordinator.
	coord *Coordinator

	// baseCtx is what deadline timers run on; they outlive the request
	// that scheduled them.
	baseCtx context.Context
}

// NewRoundService returns a round controller. A nil sink disables
// remote situation generation and rounds use the built-in fallbacks.
func NewRoundService(baseCtx context.Context, st store.Store, b bus.Bus, locks *Locks, presence *Presence, cards *CardService, sink SituationSink, log *zap.Logger, cfg config.GameSettings) *RoundService {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &RoundService{
		store:    st,
		bus:      b,
		log:      log,
		locks:    locks,
		presence: presence,
		cards:    cards,
		sink:     sink,
		cfg:      cfg,
		baseCtx:  baseCtx,
	}
}

// StartRound begins the next round of the game. An empty situationText
// inserts a placeholder and queues remote generation; the final text
// arrives later through the situation_generated event.
func (s *RoundService) StartRound(ctx context.Context, gameID int64, situationText string) error {
	g, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(g.RoomID)
	defer unlock()
	g, err = s.store.GetGame(ctx, gameID)
	if err != nil {
		return err
	}
	return s.startRoundLocked(ctx, g, situationText)
}

func (s *RoundService) startRoundLocked(ctx context.Context, g *game.Game, situationText string) error {
	if g.Status != game.GameStarting && g.Status != game.GameRoundResults {
		return nil
	}
	if _, err := s.presence.CleanupExcluded(ctx, g.RoomID); err != nil {
		return err
	}
	active, err := s.store.ListActiveParticipants(ctx, g.RoomID)
	if err != nil {
		return err
	}
	if len(active) < s.cfg.MinPlayersPerRoom {
		return s.coord.endLocked(ctx, g, ReasonTooFewPlayers)
	}
	room, err := s.store.GetRoom(ctx, g.RoomID)
	if err != nil {
		return err
	}

	next := g.CurrentRound + 1
	duration := s.cfg.SelectionDuration(next)
	now := time.Now()

	queued := situationText == "" && s.sink != nil
	text := situationText
	if text == "" {
		if queued {
			text = fmt.Sprintf("Generating situation for round %d...", next)
		} else {
			text = FallbackSituation(next)
		}
	}

	round := &game.Round{
		GameID:            g.ID,
		Number:            next,
		SituationText:     text,
		DurationSeconds:   int(duration.Seconds()),
		StartedAt:         now,
		SelectionDeadline: now.Add(duration),
		VotingDeadline:    now.Add(duration + s.cfg.VotingTimeout),
	}
	err = s.store.RunInTx(ctx, func(tx store.Store) error {
		if err := tx.CreateRound(ctx, round); err != nil {
			return err
		}
		return tx.AdvanceGameRound(ctx, g.ID, game.GameCardSelection, next)
	})
	if err != nil {
		return err
	}
	g.Status = game.GameCardSelection
	g.CurrentRound = next

	if queued {
		job := Job{
			GameID:      g.ID,
			RoomID:      g.RoomID,
			RoundID:     round.ID,
			RoundNumber: next,
			AgeGroup:    room.AgeGroup,
		}
		if err := s.sink.Enqueue(ctx, job); err != nil {
			s.log.Warn("enqueue situation job", zap.Int64("game_id", g.ID), zap.Error(err))
			text = FallbackSituation(next)
			round.SituationText = text
			if err := s.store.SetRoundText(ctx, round.ID, text); err != nil {
				return err
			}
		} else {
			s.publish(ctx, g.RoomID, bus.SituationGenerating, map[string]any{
				"game_id":      g.ID,
				"round_number": next,
			})
		}
	}

	s.log.Info("round started",
		zap.Int64("game_id", g.ID),
		zap.Int64("round_id", round.ID),
		zap.Int("round_number", next),
		zap.Duration("selection_window", duration))
	s.publish(ctx, g.RoomID, bus.RoundStarted, map[string]any{
		"game_id":          g.ID,
		"round_id":         round.ID,
		"round_number":     next,
		"situation_text":   text,
		"duration_seconds": round.DurationSeconds,
	})
	s.armTimers(g.ID, round)
	return nil
}

// armTimers schedules both deadline callbacks for a round. A timer
// firing after its phase has moved on is harmless; every handler
// rechecks state under the room lock first.
func (s *RoundService) armTimers(gameID int64, round *game.Round) {
	roundID := round.ID
	time.AfterFunc(time.Until(round.SelectionDeadline), func() { s.onSelectionDeadline(gameID, roundID) })
	time.AfterFunc(time.Until(round.VotingDeadline), func() { s.onVotingDeadline(gameID, roundID) })
}

// SubmitChoice records the user's hidden card pick for the current
// round. When every connected participant has chosen, voting begins
// early.
func (s *RoundService) SubmitChoice(ctx context.Context, userID, gameID int64, ct game.CardType, number int) (*game.Choice, error) {
	g, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(g.RoomID)
	defer unlock()

	g, err = s.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.Status != game.GameCardSelection {
		return nil, game.ErrWrongPhase
	}
	round, err := s.store.GetCurrentRound(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if now.After(round.SelectionDeadline) {
		return nil, game.ErrDeadlinePassed
	}
	p, err := s.store.GetParticipant(ctx, g.RoomID, userID)
	if err != nil {
		return nil, err
	}
	if p.Status == game.ParticipantLeft {
		return nil, game.ErrNotParticipant
	}
	if !s.cards.InCatalogue(ct, number) {
		return nil, game.Validation("unknown card")
	}
	owns, err := s.store.UserOwnsCard(ctx, userID, ct, number)
	if err != nil {
		return nil, err
	}
	if !owns {
		return nil, game.ErrCardNotOwned
	}

	choice := &game.Choice{
		RoundID:     round.ID,
		UserID:      userID,
		CardType:    ct,
		CardNumber:  number,
		SubmittedAt: now,
	}
	if err := s.store.CreateChoice(ctx, choice); err != nil {
		return nil, err
	}
	if err := s.presence.Touch(ctx, g.RoomID, userID); err != nil {
		s.log.Warn("touch after choice", zap.Int64("user_id", userID), zap.Error(err))
	}
	s.publish(ctx, g.RoomID, bus.PlayerChoiceSubmitted, map[string]any{
		"game_id":     g.ID,
		"round_id":    round.ID,
		"user_id":     userID,
		"card_type":   string(ct),
		"card_number": number,
	})

	done, err := s.allConnectedActed(ctx, g.RoomID, round.ID, s.store.CountChoices)
	if err != nil {
		s.log.Warn("selection completion check", zap.Int64("round_id", round.ID), zap.Error(err))
	} else if done {
		if err := s.beginVotingLocked(ctx, g, round); err != nil && !errors.Is(err, game.ErrNotEnoughChoices) {
			s.log.Error("begin voting early", zap.Int64("round_id", round.ID), zap.Error(err))
		}
	}
	return choice, nil
}

// SubmitVote records a vote for another player's choice. When every
// connected participant has voted, the round finalises early.
func (s *RoundService) SubmitVote(ctx context.Context, userID, gameID, choiceID int64) (*game.Vote, error) {
	g, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(g.RoomID)
	defer unlock()

	g, err = s.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.Status != game.GameVoting {
		return nil, game.ErrWrongPhase
	}
	round, err := s.store.GetCurrentRound(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if now.After(round.VotingDeadline) {
		return nil, game.ErrDeadlinePassed
	}
	p, err := s.store.GetParticipant(ctx, g.RoomID, userID)
	if err != nil {
		return nil, err
	}
	if p.Status == game.ParticipantLeft {
		return nil, game.ErrNotParticipant
	}
	choice, err := s.store.GetChoice(ctx, choiceID)
	if err != nil {
		return nil, err
	}
	if choice.RoundID != round.ID {
		return nil, game.Validation("choice is not part of this round")
	}
	if choice.UserID == userID {
		return nil, game.ErrOwnChoiceVote
	}

	vote := &game.Vote{
		RoundID:   round.ID,
		VoterID:   userID,
		ChoiceID:  choiceID,
		CreatedAt: now,
	}
	if err := s.store.CreateVote(ctx, vote); err != nil {
		return nil, err
	}
	if err := s.presence.Touch(ctx, g.RoomID, userID); err != nil {
		s.log.Warn("touch after vote", zap.Int64("user_id", userID), zap.Error(err))
	}
	s.publish(ctx, g.RoomID, bus.VoteSubmitted, map[string]any{
		"game_id":   g.ID,
		"round_id":  round.ID,
		"voter_id":  userID,
		"choice_id": choiceID,
	})

	done, err := s.allConnectedActed(ctx, g.RoomID, round.ID, s.store.CountVotes)
	if err != nil {
		s.log.Warn("voting completion check", zap.Int64("round_id", round.ID), zap.Error(err))
	} else if done {
		if err := s.finaliseRoundLocked(ctx, g, round, false); err != nil {
			s.log.Error("finalise round early", zap.Int64("round_id", round.ID), zap.Error(err))
		}
	}
	return vote, nil
}

// allConnectedActed reports whether every currently connected
// participant has acted this phase. A lone connected player never
// triggers the early advance.
func (s *RoundService) allConnectedActed(ctx context.Context, roomID, roundID int64, count func(context.Context, int64) (int, error)) (bool, error) {
	acted, err := count(ctx, roundID)
	if err != nil {
		return false, err
	}
	connected, err := s.store.CountConnected(ctx, roomID)
	if err != nil {
		return false, err
	}
	return connected > 1 && acted >= connected, nil
}

// beginVotingLocked moves the round into the voting phase. It refuses
// when fewer than the minimum number of choices came in; the
// selection-deadline handler decides what happens to such rounds.
func (s *RoundService) beginVotingLocked(ctx context.Context, g *game.Game, round *game.Round) error {
	if g.Status != game.GameCardSelection {
		return nil
	}
	total, err := s.store.CountChoices(ctx, round.ID)
	if err != nil {
		return err
	}
	if total < s.cfg.MinPlayersPerRoom {
		return game.ErrNotEnoughChoices
	}
	if err := s.store.SetGameStatus(ctx, g.ID, game.GameVoting); err != nil {
		return err
	}
	g.Status = game.GameVoting
	s.log.Info("voting started",
		zap.Int64("game_id", g.ID),
		zap.Int64("round_id", round.ID),
		zap.Int("choices", total))
	s.publish(ctx, g.RoomID, bus.VotingStarted, map[string]any{
		"game_id":         g.ID,
		"round_id":        round.ID,
		"voting_deadline": round.VotingDeadline.UTC().Format(time.RFC3339),
		"total_choices":   total,
	})
	return nil
}

// finaliseRoundLocked aggregates the votes, awards the round winner and
// parks the game in round_results until the next-round trigger fires.
func (s *RoundService) finaliseRoundLocked(ctx context.Context, g *game.Game, round *game.Round, autoAdvanced bool) error {
	if g.Status != game.GameVoting {
		return nil
	}
	tally, err := s.store.TallyRound(ctx, round.ID)
	if err != nil {
		return err
	}
	var winner *game.ChoiceTally
	if len(tally) > 0 && tally[0].Votes > 0 {
		winner = &tally[0]
	}

	now := time.Now()
	err = s.store.RunInTx(ctx, func(tx store.Store) error {
		if winner != nil {
			if err := tx.AddRating(ctx, winner.UserID, roundWinPoints); err != nil {
				return err
			}
		}
		if err := tx.SetGameStatus(ctx, g.ID, game.GameRoundResults); err != nil {
			return err
		}
		return tx.FinishRound(ctx, round.ID, now, autoAdvanced)
	})
	if err != nil {
		return err
	}
	g.Status = game.GameRoundResults

	var winnerUserID, winnerNickname any
	maxVotes := 0
	if winner != nil {
		winnerUserID = winner.UserID
		winnerNickname = winner.Nickname
		maxVotes = winner.Votes
	}
	s.log.Info("round finalised",
		zap.Int64("game_id", g.ID),
		zap.Int64("round_id", round.ID),
		zap.Int("round_number", round.Number),
		zap.Int("max_votes", maxVotes),
		zap.Bool("auto_advanced", autoAdvanced))
	s.publish(ctx, g.RoomID, bus.RoundResultsCalculated, map[string]any{
		"game_id":              g.ID,
		"round_id":             round.ID,
		"round_number":         round.Number,
		"winner_user_id":       winnerUserID,
		"winner_nickname":      winnerNickname,
		"max_votes":            maxVotes,
		"total_choices":        len(tally),
		"next_round_starts_in": int(s.cfg.ResultsDisplay.Seconds()),
	})

	gameID := g.ID
	time.AfterFunc(s.cfg.ResultsDisplay, func() {
		if err := s.coord.AdvanceAfterResults(s.baseCtx, gameID); err != nil {
			s.log.Error("advance after results", zap.Int64("game_id", gameID), zap.Error(err))
		}
	})
	return nil
}

// onSelectionDeadline fires when the card-selection window closes.
// Active participants without a choice take a missed-action strike;
// with enough choices the round moves to voting, otherwise the game
// ends.
func (s *RoundService) onSelectionDeadline(gameID, roundID int64) {
	ctx := s.baseCtx
	g, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		s.log.Error("selection deadline: load game", zap.Int64("game_id", gameID), zap.Error(err))
		return
	}
	unlock := s.locks.Lock(g.RoomID)
	defer unlock()

	g, err = s.store.GetGame(ctx, gameID)
	if err != nil {
		s.log.Error("selection deadline: reload game", zap.Int64("game_id", gameID), zap.Error(err))
		return
	}
	round, ok := s.timerRound(ctx, g, game.GameCardSelection, roundID)
	if !ok {
		return
	}

	s.strikeMissing(ctx, g, round.ID, game.PhaseCardSelection, s.store.HasChoice)

	if err := s.beginVotingLocked(ctx, g, round); err != nil {
		if errors.Is(err, game.ErrNotEnoughChoices) {
			if err := s.coord.endLocked(ctx, g, ReasonTooFewChoices); err != nil {
				s.log.Error("end game after selection deadline", zap.Int64("game_id", g.ID), zap.Error(err))
			}
			return
		}
		s.log.Error("begin voting at deadline", zap.Int64("round_id", round.ID), zap.Error(err))
	}
}

// onVotingDeadline fires when the voting window closes. Active
// participants without a vote take a missed-action strike and the round
// finalises with whatever votes came in.
func (s *RoundService) onVotingDeadline(gameID, roundID int64) {
	ctx := s.baseCtx
	g, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		s.log.Error("voting deadline: load game", zap.Int64("game_id", gameID), zap.Error(err))
		return
	}
	unlock := s.locks.Lock(g.RoomID)
	defer unlock()

	g, err = s.store.GetGame(ctx, gameID)
	if err != nil {
		s.log.Error("voting deadline: reload game", zap.Int64("game_id", gameID), zap.Error(err))
		return
	}
	round, ok := s.timerRound(ctx, g, game.GameVoting, roundID)
	if !ok {
		return
	}

	s.strikeMissing(ctx, g, round.ID, game.PhaseVoting, s.store.HasVote)

	if err := s.finaliseRoundLocked(ctx, g, round, true); err != nil {
		s.log.Error("finalise round at deadline", zap.Int64("round_id", round.ID), zap.Error(err))
	}
}

// timerRound validates that a fired timer still applies: the game must
// sit in the expected phase and the round must still be the current,
// unfinished one.
func (s *RoundService) timerRound(ctx context.Context, g *game.Game, want game.GameStatus, roundID int64) (*game.Round, bool) {
	if g.Status != want {
		return nil, false
	}
	round, err := s.store.GetRound(ctx, roundID)
	if err != nil {
		s.log.Error("timer: load round", zap.Int64("round_id", roundID), zap.Error(err))
		return nil, false
	}
	if round.Number != g.CurrentRound || !round.FinishedAt.IsZero() {
		return nil, false
	}
	return round, true
}

// strikeMissing records a missed action for every active participant
// who has not acted this phase.
func (s *RoundService) strikeMissing(ctx context.Context, g *game.Game, roundID int64, phase string, acted func(context.Context, int64, int64) (bool, error)) {
	active, err := s.store.ListActiveParticipants(ctx, g.RoomID)
	if err != nil {
		s.log.Error("strike missing: list participants", zap.Int64("room_id", g.RoomID), zap.Error(err))
		return
	}
	for _, p := range active {
		has, err := acted(ctx, roundID, p.UserID)
		if err != nil {
			s.log.Warn("strike missing: check action", zap.Int64("user_id", p.UserID), zap.Error(err))
			continue
		}
		if has {
			continue
		}
		if _, err := s.presence.RecordMissed(ctx, g.RoomID, p.UserID, phase); err != nil {
			s.log.Warn("record missed action", zap.Int64("user_id", p.UserID), zap.Error(err))
		}
	}
}

func (s *RoundService) publish(ctx context.Context, roomID int64, kind bus.Kind, payload map[string]any) {
	if err := s.bus.Publish(ctx, bus.Event{RoomID: roomID, Kind: kind, Payload: payload}); err != nil {
		s.log.Warn("publish round event", zap.String("kind", string(kind)), zap.Error(err))
	}
}
