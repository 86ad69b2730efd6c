package game

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"not found sentinel", ErrRoomNotFound, KindNotFound},
		{"validation sentinel", ErrRoomFull, KindValidationFailed},
		{"permission sentinel", ErrNotCreator, KindPermissionDenied},
		{"conflict sentinel", ErrActiveRoomExists, KindConflict},
		{"auth helper", Unauthenticated("bad token"), KindAuthenticationFailed},
		{"external helper", External("generator down", errors.New("timeout")), KindExternalUnavailable},
		{"wrapped keeps the kind", fmt.Errorf("join room: %w", ErrRoomNotFound), KindNotFound},
		{"plain errors are internal", errors.New("boom"), KindInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Errorf("KindOf = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestSentinelMatching(t *testing.T) {
	wrapped := fmt.Errorf("start game in room 7: %w", ErrNotEnoughPlayers)
	if !errors.Is(wrapped, ErrNotEnoughPlayers) {
		t.Error("wrapped sentinel did not match")
	}
	if errors.Is(wrapped, ErrRoomFull) {
		t.Error("matched a different sentinel")
	}

	// Fresh errors with the same kind and message compare equal, so a
	// store can rebuild a sentinel without sharing the pointer.
	rebuilt := NotFound("room not found")
	if !errors.Is(rebuilt, ErrRoomNotFound) {
		t.Error("rebuilt sentinel did not match")
	}
}

func TestErrorMessages(t *testing.T) {
	plain := Validation("room is full")
	if plain.Error() != "room is full" {
		t.Errorf("Error() = %q", plain.Error())
	}

	cause := errors.New("connection refused")
	wrapped := Internal("query rooms", cause)
	if wrapped.Error() != "query rooms: connection refused" {
		t.Errorf("Error() = %q", wrapped.Error())
	}
	if !errors.Is(wrapped, cause) {
		t.Error("cause not reachable through Unwrap")
	}
}
