package game

import "errors"

// ErrorKind classifies a domain failure for the gateway, which maps
// kinds onto transport status codes.
type ErrorKind int

const (
	KindNotFound ErrorKind = iota + 1
	KindPermissionDenied
	KindValidationFailed
	KindAuthenticationFailed
	KindConflict
	KindExternalUnavailable
	KindInternal
)

// Error is a domain error with a taxonomy kind.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches two domain errors on kind and message so wrapped copies of
// a sentinel still compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

func NotFound(msg string) *Error         { return &Error{Kind: KindNotFound, Message: msg} }
func PermissionDenied(msg string) *Error { return &Error{Kind: KindPermissionDenied, Message: msg} }
func Validation(msg string) *Error       { return &Error{Kind: KindValidationFailed, Message: msg} }
func Unauthenticated(msg string) *Error {
	return &Error{Kind: KindAuthenticationFailed, Message: msg}
}
func Conflict(msg string) *Error { return &Error{Kind: KindConflict, Message: msg} }
func External(msg string, err error) *Error {
	return &Error{Kind: KindExternalUnavailable, Message: msg, Err: err}
}
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf extracts the taxonomy kind from any error chain. Unclassified
// errors are treated as internal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

var (
	ErrRoomNotFound  = NotFound("room not found")
	ErrGameNotFound  = NotFound("game not found")
	ErrRoundNotFound = NotFound("round not found")
	ErrUserNotFound  = NotFound("user not found")

	ErrRoomFull           = Validation("room is full")
	ErrRoomNotWaiting     = Validation("room is not accepting players")
	ErrGameAlreadyStarted = Validation("game has already started")
	ErrNotEnoughPlayers   = Validation("not enough players to start")
	ErrProfileIncomplete  = Validation("profile must be complete to play")
	ErrWrongPhase         = Validation("action not allowed in the current phase")
	ErrDeadlinePassed     = Validation("phase deadline has passed")
	ErrAlreadyChose       = Validation("card already chosen this round")
	ErrNotEnoughChoices   = Validation("not enough card choices to start voting")
	ErrAlreadyVoted       = Validation("vote already cast this round")
	ErrCardNotOwned       = Validation("card is not in your collection")
	ErrOwnChoiceVote      = Validation("cannot vote for your own card")

	ErrNotParticipant = PermissionDenied("not a participant of this room")
	ErrNotCreator     = PermissionDenied("only the room creator can do this")
	ErrPrivateRoom    = PermissionDenied("private room requires a join code")

	ErrActiveRoomExists = Conflict("an active room already exists for this user")
	ErrCodeExhausted    = Conflict("could not generate a unique room code")
)
