package store

import (
	"context"
	"time"

	"github.com/arailymkabykenova/MemeBattle/internal/game"
)

// Store is the persistence boundary. The database is the source of
// truth for rooms, games and presence; in-memory state elsewhere is
// advisory. Postgres is the production implementation, Memory backs
// tests and single-node development.
type Store interface {
	UserStore
	RoomStore
	GameStore

	// RunInTx executes fn against a transactional view of the store.
	// Multi-row mutations that form one logical step go through here.
	RunInTx(ctx context.Context, fn func(Store) error) error
}

// UserStore covers account reads, rating adjustments and card ownership.
type UserStore interface {
	GetUser(ctx context.Context, userID int64) (*game.User, error)
	AddRating(ctx context.Context, userID int64, delta float64) error

	ListUserCards(ctx context.Context, userID int64) ([]game.UserCard, error)
	UserOwnsCard(ctx context.Context, userID int64, ct game.CardType, number int) (bool, error)
	AddUserCard(ctx context.Context, userID int64, ct game.CardType, number int) error
}

// RoomStore covers rooms and their participants.
type RoomStore interface {
	CreateRoom(ctx context.Context, r *game.Room) error
	GetRoom(ctx context.Context, roomID int64) (*game.Room, error)
	GetRoomByCode(ctx context.Context, code string) (*game.Room, error)
	CodeInUse(ctx context.Context, code string) (bool, error)
	SetRoomStatus(ctx context.Context, roomID int64, status game.RoomStatus) error
	ListPublicRooms(ctx context.Context, limit int) ([]game.RoomSummary, error)

	// GetUserActiveRoom returns the non-terminal room where the user is
	// an active participant, if any.
	GetUserActiveRoom(ctx context.Context, userID int64) (*game.Room, error)
	// GetCreatorActiveRoom returns the creator's non-terminal room, if any.
	GetCreatorActiveRoom(ctx context.Context, creatorID int64) (*game.Room, error)

	CreateParticipant(ctx context.Context, p *game.Participant) error
	GetParticipant(ctx context.Context, roomID, userID int64) (*game.Participant, error)
	ListParticipants(ctx context.Context, roomID int64) ([]game.Participant, error)
	ListActiveParticipants(ctx context.Context, roomID int64) ([]game.Participant, error)
	CountConnected(ctx context.Context, roomID int64) (int, error)

	SetParticipantStatus(ctx context.Context, roomID, userID int64, st game.ParticipantStatus) error
	SetConnection(ctx context.Context, roomID, userID int64, st game.ConnectionStatus) error
	TouchParticipant(ctx context.Context, roomID, userID int64, now time.Time) error
	IncrementDisconnects(ctx context.Context, roomID, userID int64) (int, error)
	IncrementMissedActions(ctx context.Context, roomID, userID int64) (int, error)

	// MarkStaleTimeouts flips connected participants whose last activity
	// precedes cutoff to the timeout connection state.
	MarkStaleTimeouts(ctx context.Context, roomID int64, cutoff time.Time) ([]int64, error)
	// ExcludeOverLimit marks participants whose counters reached the hard
	// limits as left and returns their user ids.
	ExcludeOverLimit(ctx context.Context, roomID int64, maxDisconnects, maxMissed int) ([]int64, error)
}

// GameStore covers games, rounds, choices and votes.
type GameStore interface {
	CreateGame(ctx context.Context, g *game.Game) error
	GetGame(ctx context.Context, gameID int64) (*game.Game, error)
	GetActiveGame(ctx context.Context, roomID int64) (*game.Game, error)
	SetGameStatus(ctx context.Context, gameID int64, st game.GameStatus) error
	// AdvanceGameRound moves the game into st with the given round number
	// in one write.
	AdvanceGameRound(ctx context.Context, gameID int64, st game.GameStatus, round int) error
	FinishGame(ctx context.Context, gameID, winnerID int64, at time.Time) error
	// ListGamesInStatus is used on boot to re-derive deadline timers.
	ListGamesInStatus(ctx context.Context, statuses ...game.GameStatus) ([]game.Game, error)

	CreateRound(ctx context.Context, r *game.Round) error
	GetRound(ctx context.Context, roundID int64) (*game.Round, error)
	GetCurrentRound(ctx context.Context, gameID int64) (*game.Round, error)
	ListRounds(ctx context.Context, gameID int64) ([]game.Round, error)
	SetRoundText(ctx context.Context, roundID int64, text string) error
	FinishRound(ctx context.Context, roundID int64, at time.Time, autoAdvanced bool) error

	CreateChoice(ctx context.Context, c *game.Choice) error
	GetChoice(ctx context.Context, choiceID int64) (*game.Choice, error)
	ListChoices(ctx context.Context, roundID int64) ([]game.Choice, error)
	CountChoices(ctx context.Context, roundID int64) (int, error)
	HasChoice(ctx context.Context, roundID, userID int64) (bool, error)

	CreateVote(ctx context.Context, v *game.Vote) error
	CountVotes(ctx context.Context, roundID int64) (int, error)
	HasVote(ctx context.Context, roundID, voterID int64) (bool, error)

	// TallyRound returns one row per choice with its vote count, ordered
	// by votes descending then submission time ascending, so the first
	// row is the round winner.
	TallyRound(ctx context.Context, roundID int64) ([]game.ChoiceTally, error)
}
