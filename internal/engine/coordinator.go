// Package engine implements the game rules: room lifecycle, presence
// tracking, the per-round phase machine and the game-level coordinator.
// Persistence goes through the store, fan-out through the event bus;
// per-room locks keep player actions and deadline timers serial.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/arailymkabykenova/MemeBattle/internal/bus"
	"github.com/arailymkabykenova/MemeBattle/internal/config"
	"github.com/arailymkabykenova/MemeBattle/internal/game"
	"github.com/arailymkabykenova/MemeBattle/internal/store"
)

// Reasons a game ends early.
const (
	ReasonTooFewPlayers = "too few players"
	ReasonTooFewChoices = "not enough card choices"
)

// Rating awards.
const (
	roundWinPoints = 1
	victoryPoints  = 5
)

// timeoutWarnWindow is how close a phase deadline must be before a
// warning event goes out.
const timeoutWarnWindow = 10 * time.Second

// Coordinator drives the game-level machine: it starts rounds, advances
// past the results display and settles the final leaderboard.
type Coordinator struct {
	store    store.Store
	bus      bus.Bus
	log      *zap.Logger
	locks    *Locks
	presence *Presence
	cards    *CardService
	rounds   *RoundService
	cfg      config.GameSettings
	baseCtx  context.Context
}

// NewCoordinator wires the coordinator and the round service together;
// the two invoke each other across the round boundary.
func NewCoordinator(baseCtx context.Context, st store.Store, b bus.Bus, locks *Locks, presence *Presence, cards *CardService, rounds *RoundService, log *zap.Logger, cfg config.GameSettings) *Coordinator {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	c := &Coordinator{
		store:    st,
		bus:      b,
		log:      log,
		locks:    locks,
		presence: presence,
		cards:    cards,
		rounds:   rounds,
		cfg:      cfg,
		baseCtx:  baseCtx,
	}
	rounds.coord = c
	return c
}

// Begin starts the first round of a fresh game.
func (c *Coordinator) Begin(ctx context.Context, gameID int64) error {
	return c.rounds.StartRound(ctx, gameID, "")
}

// AdvanceAfterResults moves the game on once the results display has
// elapsed: either the next round starts or the game ends.
func (c *Coordinator) AdvanceAfterResults(ctx context.Context, gameID int64) error {
	g, err := c.store.GetGame(ctx, gameID)
	if err != nil {
		return err
	}
	unlock := c.locks.Lock(g.RoomID)
	defer unlock()

	g, err = c.store.GetGame(ctx, gameID)
	if err != nil {
		return err
	}
	if g.Status != game.GameRoundResults {
		return nil
	}
	if g.CurrentRound >= c.cfg.MaxRounds {
		return c.endLocked(ctx, g, fmt.Sprintf("all %d rounds completed", c.cfg.MaxRounds))
	}
	return c.rounds.startRoundLocked(ctx, g, "")
}

// End finishes the game for the given reason.
func (c *Coordinator) End(ctx context.Context, gameID int64, reason string) error {
	g, err := c.store.GetGame(ctx, gameID)
	if err != nil {
		return err
	}
	unlock := c.locks.Lock(g.RoomID)
	defer unlock()

	g, err = c.store.GetGame(ctx, gameID)
	if err != nil {
		return err
	}
	return c.endLocked(ctx, g, reason)
}

// endLocked settles the leaderboard, rewards the overall winner and
// closes both the game and its room. The winner must have taken at
// least one round.
func (c *Coordinator) endLocked(ctx context.Context, g *game.Game, reason string) error {
	if g.Status == game.GameFinished {
		return nil
	}
	standings, err := c.standingsLocked(ctx, g)
	if err != nil {
		return err
	}
	var winner *game.PlayerStanding
	if len(standings) > 0 && standings[0].RoundWins > 0 {
		winner = &standings[0]
	}

	var winnerID int64
	if winner != nil {
		winnerID = winner.UserID
	}
	now := time.Now()
	err = c.store.RunInTx(ctx, func(tx store.Store) error {
		if winner != nil {
			if err := tx.AddRating(ctx, winner.UserID, victoryPoints); err != nil {
				return err
			}
		}
		if err := tx.FinishGame(ctx, g.ID, winnerID, now); err != nil {
			return err
		}
		return tx.SetRoomStatus(ctx, g.RoomID, game.RoomFinished)
	})
	if err != nil {
		return err
	}
	g.Status = game.GameFinished

	if winner != nil {
		if card, err := c.cards.AwardStandardCard(ctx, winner.UserID); err != nil {
			c.log.Warn("award victory card", zap.Int64("user_id", winner.UserID), zap.Error(err))
		} else if card != nil {
			c.log.Info("victory card awarded",
				zap.Int64("user_id", winner.UserID),
				zap.String("card", card.ID))
		}
	}

	var winnerUserID, winnerNickname any
	if winner != nil {
		winnerUserID = winner.UserID
		winnerNickname = winner.Nickname
	}
	c.log.Info("game ended",
		zap.Int64("game_id", g.ID),
		zap.Int64("room_id", g.RoomID),
		zap.String("reason", reason),
		zap.Int("total_rounds", g.CurrentRound),
		zap.Int64("winner_id", winnerID))
	c.publish(ctx, g.RoomID, bus.GameEnded, map[string]any{
		"game_id":         g.ID,
		"winner_id":       winnerUserID,
		"winner_nickname": winnerNickname,
		"total_rounds":    g.CurrentRound,
		"leaderboard":     standings,
		"reason":          reason,
	})
	return nil
}

// Standings exposes the leaderboard for a game at any point.
func (c *Coordinator) Standings(ctx context.Context, gameID int64) ([]game.PlayerStanding, error) {
	g, err := c.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	unlock := c.locks.Lock(g.RoomID)
	defer unlock()
	return c.standingsLocked(ctx, g)
}

// standingsLocked builds the leaderboard: round wins first, then total
// votes received, with user id as the final stable tiebreak. A round is
// won by the most-voted choice; within a round, earlier submissions win
// vote ties.
func (c *Coordinator) standingsLocked(ctx context.Context, g *game.Game) ([]game.PlayerStanding, error) {
	parts, err := c.store.ListParticipants(ctx, g.RoomID)
	if err != nil {
		return nil, err
	}
	rounds, err := c.store.ListRounds(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	wins := make(map[int64]int)
	votes := make(map[int64]int)
	for _, r := range rounds {
		if r.FinishedAt.IsZero() {
			continue
		}
		tally, err := c.store.TallyRound(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		for _, t := range tally {
			votes[t.UserID] += t.Votes
		}
		if len(tally) > 0 && tally[0].Votes > 0 {
			wins[tally[0].UserID]++
		}
	}

	standings := make([]game.PlayerStanding, 0, len(parts))
	for _, p := range parts {
		standings = append(standings, game.PlayerStanding{
			UserID:     p.UserID,
			Nickname:   p.Nickname,
			RoundWins:  wins[p.UserID],
			TotalVotes: votes[p.UserID],
		})
	}
	sort.Slice(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.RoundWins != b.RoundWins {
			return a.RoundWins > b.RoundWins
		}
		if a.TotalVotes != b.TotalVotes {
			return a.TotalVotes > b.TotalVotes
		}
		return a.UserID < b.UserID
	})
	return standings, nil
}

// Recover re-derives deadline timers for games that were mid-flight
// when the process stopped. Games parked in starting or round_results
// are pushed forward immediately.
func (c *Coordinator) Recover(ctx context.Context) error {
	games, err := c.store.ListGamesInStatus(ctx,
		game.GameStarting, game.GameCardSelection, game.GameVoting, game.GameRoundResults)
	if err != nil {
		return err
	}
	for i := range games {
		g := games[i]
		switch g.Status {
		case game.GameStarting:
			if err := c.rounds.StartRound(ctx, g.ID, ""); err != nil {
				c.log.Error("recover: start round", zap.Int64("game_id", g.ID), zap.Error(err))
			}
		case game.GameRoundResults:
			if err := c.AdvanceAfterResults(ctx, g.ID); err != nil {
				c.log.Error("recover: advance after results", zap.Int64("game_id", g.ID), zap.Error(err))
			}
		default:
			round, err := c.store.GetCurrentRound(ctx, g.ID)
			if err != nil {
				c.log.Error("recover: load current round", zap.Int64("game_id", g.ID), zap.Error(err))
				continue
			}
			c.rounds.armTimers(g.ID, round)
			c.log.Info("recovered in-flight game",
				zap.Int64("game_id", g.ID),
				zap.String("status", string(g.Status)),
				zap.Int("round_number", round.Number))
		}
	}
	return nil
}

// RunHousekeeping periodically scans active games for stale
// participants and publishes deadline warnings. It blocks until ctx is
// cancelled.
func (c *Coordinator) RunHousekeeping(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.housekeep(ctx)
		}
	}
}

func (c *Coordinator) housekeep(ctx context.Context) {
	games, err := c.store.ListGamesInStatus(ctx, game.GameCardSelection, game.GameVoting)
	if err != nil {
		c.log.Error("housekeeping: list games", zap.Error(err))
		return
	}
	for i := range games {
		g := games[i]
		if _, err := c.presence.ScanTimeouts(ctx, g.RoomID); err != nil {
			c.log.Warn("housekeeping: scan timeouts", zap.Int64("room_id", g.RoomID), zap.Error(err))
		}
		round, err := c.store.GetCurrentRound(ctx, g.ID)
		if err != nil {
			continue
		}
		deadline := round.SelectionDeadline
		action := game.PhaseCardSelection
		if g.Status == game.GameVoting {
			deadline = round.VotingDeadline
			action = game.PhaseVoting
		}
		left := time.Until(deadline)
		if left > 0 && left <= timeoutWarnWindow {
			c.publish(ctx, g.RoomID, bus.TimeoutWarning, map[string]any{
				"game_id":      g.ID,
				"round_id":     round.ID,
				"action_type":  action,
				"seconds_left": int(left.Seconds()),
			})
		}
	}
}

func (c *Coordinator) publish(ctx context.Context, roomID int64, kind bus.Kind, payload map[string]any) {
	if err := c.bus.Publish(ctx, bus.Event{RoomID: roomID, Kind: kind, Payload: payload}); err != nil {
		c.log.Warn("publish game event", zap.String("kind", string(kind)), zap.Error(err))
	}
}
