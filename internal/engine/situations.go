package engine

import (
	"context"

	"github.com/arailymkabykenova/MemeBattle/internal/game"
)

// Job describes one situation-generation request. It is produced when a
// round starts with no situation text and consumed by the generation
// workers, which write the final text back to the round.
type Job struct {
	GameID      int64         `json:"game_id"`
	RoomID      int64         `json:"room_id"`
	RoundID     int64         `json:"round_id"`
	RoundNumber int           `json:"round_number"`
	AgeGroup    game.AgeGroup `json:"age_group"`
	Language    string        `json:"language,omitempty"`
}

// SituationSink hands generation jobs to the queue. A nil sink disables
// remote generation and rounds fall back to the built-in texts.
type SituationSink interface {
	Enqueue(ctx context.Context, job Job) error
}

// FallbackSituations are served when remote generation is unavailable.
var FallbackSituations = []string{
	"Your face when you find money you hid in last year's winter coat.",
	"When you accidentally like someone's photo from 5 years ago.",
	"Trying to cook something from a TikTok video recipe.",
	"When your cat looks at you like you owe it money.",
	"That moment you confidently say 'yes' having no idea what the question was.",
	"Your face when someone sits right next to you on an empty bus.",
	"When you pretend to get a joke and laugh 3 seconds after everyone else.",
}

// FallbackSituation picks a deterministic fallback text for a round.
func FallbackSituation(round int) string {
	if round < 1 {
		round = 1
	}
	return FallbackSituations[(round-1)%len(FallbackSituations)]
}
