package game

import "time"

// GameStatus represents the phase of a running game.
type GameStatus string

const (
	GameStarting      GameStatus = "starting"
	GameCardSelection GameStatus = "card_selection"
	GameVoting        GameStatus = "voting"
	GameRoundResults  GameStatus = "round_results"
	GameFinished      GameStatus = "finished"
)

// Phase names used for missed-action accounting.
const (
	PhaseCardSelection = "card_selection"
	PhaseVoting        = "voting"
)

// MaxRounds is the hard cap on rounds per game.
const MaxRounds = 7

// Game is one play session of a room.
type Game struct {
	ID           int64
	RoomID       int64
	Status       GameStatus
	CurrentRound int
	WinnerID     int64 // 0 until finished
	CreatedAt    time.Time
	FinishedAt   time.Time // zero until finished
}

// Round is one selection/voting/results cycle within a game.
type Round struct {
	ID                int64
	GameID            int64
	Number            int
	SituationText     string
	DurationSeconds   int
	StartedAt         time.Time
	SelectionDeadline time.Time
	VotingDeadline    time.Time
	FinishedAt        time.Time // zero until finished
	AutoAdvanced      bool
}

// CardType partitions the card collection.
type CardType string

const (
	CardStarter  CardType = "starter"
	CardStandard CardType = "standard"
	CardUnique   CardType = "unique"
)

// Valid reports whether t is one of the known card types.
func (t CardType) Valid() bool {
	return t == CardStarter || t == CardStandard || t == CardUnique
}

// Choice is a player's hidden card pick for a round.
type Choice struct {
	ID          int64
	RoundID     int64
	UserID      int64
	CardType    CardType
	CardNumber  int
	SubmittedAt time.Time
}

// Vote is a player's vote for another player's choice.
type Vote struct {
	ID        int64
	RoundID   int64
	VoterID   int64
	ChoiceID  int64
	CreatedAt time.Time
}

// ChoiceTally is the per-choice vote count for one round, ordered by
// votes descending and submission time ascending, so the first entry
// is the round winner.
type ChoiceTally struct {
	ChoiceID    int64
	UserID      int64
	Nickname    string
	Votes       int
	SubmittedAt time.Time
}

// PlayerStanding is one leaderboard row at game end.
type PlayerStanding struct {
	UserID     int64  `json:"user_id"`
	Nickname   string `json:"nickname"`
	RoundWins  int    `json:"round_wins"`
	TotalVotes int    `json:"total_votes"`
}
