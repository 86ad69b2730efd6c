package bus

import (
	"context"
	"time"
)

// Kind tags every event published on the room bus. The set is closed;
// consumers switch on the kinds they handle and ignore the rest.
type Kind string

const (
	SituationGenerating       Kind = "situation_generating"
	SituationGenerated        Kind = "situation_generated"
	SituationGenerationFailed Kind = "situation_generation_failed"
	RoundStarted              Kind = "round_started"
	VotingStarted             Kind = "voting_started"
	PlayerChoiceSubmitted     Kind = "player_choice_submitted"
	VoteSubmitted             Kind = "vote_submitted"
	RoundResultsCalculated    Kind = "round_results_calculated"
	GameEnded                 Kind = "game_ended"
	PlayerJoined              Kind = "player_joined"
	PlayerLeft                Kind = "player_left"
	PlayerDisconnected        Kind = "player_disconnected"
	PlayerReconnected         Kind = "player_reconnected"
	TimeoutWarning            Kind = "timeout_warning"
)

// Event is a single room-scoped notification. Payload keys are the
// wire-level field names; the socket layer flattens them into the
// outbound client message.
type Event struct {
	RoomID    int64
	Kind      Kind
	Payload   map[string]any
	Timestamp time.Time
}

// Bus fans events out to room subscribers, across instances when the
// transport supports it. Delivery is at-least-once and ordering is
// best-effort; consumers must tolerate both.
type Bus interface {
	// Publish delivers e to every subscriber of e.RoomID. An error means
	// the cross-instance leg failed; local delivery has already happened.
	Publish(ctx context.Context, e Event) error

	// Subscribe returns a channel of events for one room and a function
	// releasing the subscription. The channel is closed on release.
	Subscribe(roomID int64) (<-chan Event, func())
}

// envelope is the wire form carried over Redis pub/sub.
type envelope struct {
	RoomID    int64          `json:"room_id"`
	Kind      Kind           `json:"event_type"`
	Payload   map[string]any `json:"event_data"`
	Timestamp time.Time      `json:"timestamp"`
	Origin    string         `json:"origin,omitempty"`
}
