package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/arailymkabykenova/MemeBattle/internal/game"
)

func TestStateView(t *testing.T) {
	t.Run("waiting room carries no game section", func(t *testing.T) {
		env := newTestEnv(t)
		a := env.seedPlayer(t, "ana")
		b := env.seedPlayer(t, "bob")
		room, err := env.rooms.CreateRoom(env.ctx, a.ID, 4, true, false)
		if err != nil {
			t.Fatalf("CreateRoom: %v", err)
		}
		if _, err := env.rooms.JoinByID(env.ctx, b.ID, room.ID); err != nil {
			t.Fatalf("join: %v", err)
		}

		sv, err := env.rounds.State(env.ctx, a.ID, room.ID)
		if err != nil {
			t.Fatalf("State: %v", err)
		}
		if sv.RoomStatus != game.RoomWaiting || sv.GameID != 0 || sv.Round != nil {
			t.Errorf("state = %+v, want bare waiting room", sv)
		}
		if len(sv.Players) != 2 {
			t.Errorf("players = %d, want 2", len(sv.Players))
		}
	})

	t.Run("running game fills the round section", func(t *testing.T) {
		env := newTestEnv(t)
		a := env.seedPlayer(t, "ana")
		b := env.seedPlayer(t, "bob")
		c := env.seedPlayer(t, "cleo")
		room, g := env.newGame(t, a, b, c)
		env.submitAll(t, g.ID, a)

		sv, err := env.rounds.State(env.ctx, a.ID, room.ID)
		if err != nil {
			t.Fatalf("State: %v", err)
		}
		if sv.GameID != g.ID || sv.GameStatus != game.GameCardSelection || sv.CurrentRound != 1 {
			t.Errorf("game section = %+v", sv)
		}
		if sv.Round == nil {
			t.Fatal("round section missing")
		}
		if sv.Round.Number != 1 || sv.Round.ChoiceCount != 1 || sv.Round.VoteCount != 0 {
			t.Errorf("round section = %+v", sv.Round)
		}
		if !sv.HasChosen || sv.HasVoted {
			t.Errorf("viewer flags = chosen %v voted %v, want chosen only", sv.HasChosen, sv.HasVoted)
		}

		other, err := env.rounds.State(env.ctx, b.ID, room.ID)
		if err != nil {
			t.Fatalf("State for b: %v", err)
		}
		if other.HasChosen {
			t.Error("b marked as having chosen")
		}
	})

	t.Run("left players are hidden and refused", func(t *testing.T) {
		env := newTestEnv(t)
		a := env.seedPlayer(t, "ana")
		b := env.seedPlayer(t, "bob")
		c := env.seedPlayer(t, "cleo")
		room, _ := env.newGame(t, a, b, c)
		if err := env.rooms.Leave(env.ctx, b.ID, room.ID); err != nil {
			t.Fatalf("Leave: %v", err)
		}

		if _, err := env.rounds.State(env.ctx, b.ID, room.ID); !errors.Is(err, game.ErrNotParticipant) {
			t.Errorf("leaver state error = %v, want %v", err, game.ErrNotParticipant)
		}
		sv, err := env.rounds.State(env.ctx, a.ID, room.ID)
		if err != nil {
			t.Fatalf("State: %v", err)
		}
		for _, p := range sv.Players {
			if p.UserID == b.ID {
				t.Error("left player still listed")
			}
		}
		if len(sv.Players) != 2 {
			t.Errorf("players = %d, want 2", len(sv.Players))
		}
	})

	t.Run("finished game drops back to the room view", func(t *testing.T) {
		env := newTestEnv(t)
		a := env.seedPlayer(t, "ana")
		b := env.seedPlayer(t, "bob")
		c := env.seedPlayer(t, "cleo")
		room, g := env.newGame(t, a, b, c)
		if err := env.coord.End(env.ctx, g.ID, "room closed"); err != nil {
			t.Fatalf("End: %v", err)
		}

		sv, err := env.rounds.State(env.ctx, a.ID, room.ID)
		if err != nil {
			t.Fatalf("State: %v", err)
		}
		if sv.GameID != 0 || sv.Round != nil {
			t.Errorf("state = %+v, want no game section", sv)
		}
		if sv.RoomStatus != game.RoomFinished {
			t.Errorf("room status = %s, want finished", sv.RoomStatus)
		}
	})
}

func TestHandForRound(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedPlayer(t, "ana")
	b := env.seedPlayer(t, "bob")
	c := env.seedPlayer(t, "cleo")
	_, g := env.newGame(t, a, b, c)

	hand, err := env.rounds.HandForRound(env.ctx, a.ID, g.ID)
	if err != nil {
		t.Fatalf("HandForRound: %v", err)
	}
	if len(hand) != 3 {
		t.Fatalf("hand size = %d, want 3", len(hand))
	}
	for _, cv := range hand {
		if cv.CardType != game.CardStarter || cv.IsUnique {
			t.Errorf("card = %+v, want starter", cv)
		}
		if want := fmt.Sprintf("https://cards.test/memes/starter/%d.jpg", cv.CardNumber); cv.ImageURL != want {
			t.Errorf("image url = %q, want %q", cv.ImageURL, want)
		}
		if want := fmt.Sprintf("starter_%d", cv.CardNumber); cv.ID != want {
			t.Errorf("card id = %q, want %q", cv.ID, want)
		}
	}

	env.submitAll(t, g.ID, a, b, c)
	if _, err := env.rounds.HandForRound(env.ctx, a.ID, g.ID); !errors.Is(err, game.ErrWrongPhase) {
		t.Errorf("hand during voting error = %v, want %v", err, game.ErrWrongPhase)
	}
}

func TestChoicesForVoting(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedPlayer(t, "ana")
	b := env.seedPlayer(t, "bob")
	c := env.seedPlayer(t, "cleo")
	_, g := env.newGame(t, a, b, c)

	if _, err := env.rounds.ChoicesForVoting(env.ctx, a.ID, g.ID); !errors.Is(err, game.ErrWrongPhase) {
		t.Fatalf("choices during selection error = %v, want %v", err, game.ErrWrongPhase)
	}

	env.submitAll(t, g.ID, a, b, c)
	round := env.currentRound(t, g.ID)
	byUser := env.choiceByUser(t, round.ID)
	if _, err := env.rounds.SubmitVote(env.ctx, a.ID, g.ID, byUser[b.ID].ID); err != nil {
		t.Fatalf("vote: %v", err)
	}

	views, err := env.rounds.ChoicesForVoting(env.ctx, c.ID, g.ID)
	if err != nil {
		t.Fatalf("ChoicesForVoting: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("choices = %d, want 2 without the viewer's own", len(views))
	}
	// Submission order is preserved: ana's choice first, then bob's.
	if views[0].ChoiceID != byUser[a.ID].ID || views[1].ChoiceID != byUser[b.ID].ID {
		t.Errorf("order = %d,%d, want %d,%d", views[0].ChoiceID, views[1].ChoiceID, byUser[a.ID].ID, byUser[b.ID].ID)
	}
	if views[1].VoteCount != 1 || views[0].VoteCount != 0 {
		t.Errorf("vote counts = %d,%d, want 0,1", views[0].VoteCount, views[1].VoteCount)
	}
	for _, v := range views {
		if v.ChoiceID == byUser[c.ID].ID {
			t.Error("viewer's own choice listed")
		}
		if v.ImageURL == "" {
			t.Errorf("choice %d has no image url", v.ChoiceID)
		}
	}
}
