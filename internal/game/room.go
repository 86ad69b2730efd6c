package game

import "time"

// RoomStatus represents the lifecycle state of a room
type RoomStatus string

const (
	RoomWaiting   RoomStatus = "waiting"
	RoomPlaying   RoomStatus = "playing"
	RoomFinished  RoomStatus = "finished"
	RoomCancelled RoomStatus = "cancelled"
)

// Terminal reports whether the room can no longer host a game.
func (s RoomStatus) Terminal() bool {
	return s == RoomFinished || s == RoomCancelled
}

// AgeGroup is the demographic tag used to bias situation generation.
// Private rooms always use AgeMixed.
type AgeGroup string

const (
	AgeKids        AgeGroup = "kids"
	AgeTeens       AgeGroup = "teens"
	AgeYoungAdults AgeGroup = "young_adults"
	AgeAdults      AgeGroup = "adults"
	AgeSeniors     AgeGroup = "seniors"
	AgeMixed       AgeGroup = "mixed"
)

// AgeGroupFor buckets an age into a demographic tag.
func AgeGroupFor(age int) AgeGroup {
	switch {
	case age < 13:
		return AgeKids
	case age < 18:
		return AgeTeens
	case age < 30:
		return AgeYoungAdults
	case age < 60:
		return AgeAdults
	default:
		return AgeSeniors
	}
}

// Room is a lobby that hosts at most one game at a time.
type Room struct {
	ID         int64
	CreatorID  int64
	MaxPlayers int
	Status     RoomStatus
	Code       string // empty for public rooms created without a code
	IsPublic   bool
	AgeGroup   AgeGroup
	CreatedAt  time.Time
}

// ParticipantStatus is a user's membership state in a room.
// Left is terminal; it never reverts.
type ParticipantStatus string

const (
	ParticipantActive       ParticipantStatus = "active"
	ParticipantDisconnected ParticipantStatus = "disconnected"
	ParticipantLeft         ParticipantStatus = "left"
)

// ConnectionStatus tracks transport-level liveness of a participant.
type ConnectionStatus string

const (
	ConnConnected    ConnectionStatus = "connected"
	ConnDisconnected ConnectionStatus = "disconnected"
	ConnTimeout      ConnectionStatus = "timeout"
)

// Participant is a user's membership record in a room.
type Participant struct {
	ID              int64
	RoomID          int64
	UserID          int64
	Status          ParticipantStatus
	Connection      ConnectionStatus
	LastActivity    time.Time
	LastPing        time.Time
	DisconnectCount int
	MissedActions   int
	JoinedAt        time.Time

	// Nickname is joined in from the users table for reads that need it.
	Nickname string
}

// RoomSummary is the public-listing projection of a room.
type RoomSummary struct {
	Room
	ParticipantCount int
}

// RoomDetails is the full read model for one room.
type RoomDetails struct {
	Room
	Participants []Participant
	CanStartGame bool
}
