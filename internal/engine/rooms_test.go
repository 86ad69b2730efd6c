package engine

import (
	"errors"
	"strings"
	"testing"

	"github.com/arailymkabykenova/MemeBattle/internal/bus"
	"github.com/arailymkabykenova/MemeBattle/internal/game"
)

func TestCreateRoom(t *testing.T) {
	t.Run("public room derives demographic from creator age", func(t *testing.T) {
		env := newTestEnv(t)
		creator := env.seedPlayer(t, "ana")

		room, err := env.rooms.CreateRoom(env.ctx, creator.ID, 4, true, false)
		if err != nil {
			t.Fatalf("CreateRoom: %v", err)
		}
		if room.AgeGroup != game.AgeAdults {
			t.Errorf("age group = %s, want %s", room.AgeGroup, game.AgeAdults)
		}
		if room.Code != "" {
			t.Errorf("unrequested code = %q, want empty", room.Code)
		}
		if !room.IsPublic || room.Status != game.RoomWaiting {
			t.Errorf("room = %+v, want public waiting", room)
		}

		p, err := env.store.GetParticipant(env.ctx, room.ID, creator.ID)
		if err != nil {
			t.Fatalf("creator participant: %v", err)
		}
		if p.Status != game.ParticipantActive || p.Connection != game.ConnConnected {
			t.Errorf("creator participant = %s/%s, want active/connected", p.Status, p.Connection)
		}
	})

	t.Run("private room is mixed and coded", func(t *testing.T) {
		env := newTestEnv(t)
		creator := env.seedPlayer(t, "bela")

		room, err := env.rooms.CreateRoom(env.ctx, creator.ID, 4, false, false)
		if err != nil {
			t.Fatalf("CreateRoom: %v", err)
		}
		if room.AgeGroup != game.AgeMixed {
			t.Errorf("age group = %s, want mixed", room.AgeGroup)
		}
		if len(room.Code) != env.cfg.Game.RoomCodeLength {
			t.Fatalf("code %q has length %d, want %d", room.Code, len(room.Code), env.cfg.Game.RoomCodeLength)
		}
		for _, r := range room.Code {
			if !strings.ContainsRune(env.cfg.Game.RoomCodeAlphabet, r) {
				t.Errorf("code %q contains %q outside the alphabet", room.Code, r)
			}
		}
	})

	t.Run("public room can request a code", func(t *testing.T) {
		env := newTestEnv(t)
		creator := env.seedPlayer(t, "cleo")

		room, err := env.rooms.CreateRoom(env.ctx, creator.ID, 4, true, true)
		if err != nil {
			t.Fatalf("CreateRoom: %v", err)
		}
		if room.Code == "" {
			t.Error("requested code missing on public room")
		}
	})

	t.Run("one active room per creator", func(t *testing.T) {
		env := newTestEnv(t)
		creator := env.seedPlayer(t, "dana")

		if _, err := env.rooms.CreateRoom(env.ctx, creator.ID, 4, true, false); err != nil {
			t.Fatalf("first CreateRoom: %v", err)
		}
		_, err := env.rooms.CreateRoom(env.ctx, creator.ID, 4, true, false)
		if !errors.Is(err, game.ErrActiveRoomExists) {
			t.Errorf("second CreateRoom error = %v, want %v", err, game.ErrActiveRoomExists)
		}
	})

	t.Run("incomplete profile rejected", func(t *testing.T) {
		env := newTestEnv(t)
		u := &game.User{DeviceID: "dev-x", Nickname: "eve"}
		env.store.SeedUser(u)

		_, err := env.rooms.CreateRoom(env.ctx, u.ID, 4, true, false)
		if !errors.Is(err, game.ErrProfileIncomplete) {
			t.Errorf("CreateRoom error = %v, want %v", err, game.ErrProfileIncomplete)
		}
	})

	t.Run("capacity bounds", func(t *testing.T) {
		env := newTestEnv(t)
		creator := env.seedPlayer(t, "fred")

		for _, capacity := range []int{0, 1, 2, 9} {
			if _, err := env.rooms.CreateRoom(env.ctx, creator.ID, capacity, true, false); game.KindOf(err) != game.KindValidationFailed {
				t.Errorf("capacity %d error kind = %v, want validation", capacity, game.KindOf(err))
			}
		}
		if _, err := env.rooms.CreateRoom(env.ctx, creator.ID, 8, true, false); err != nil {
			t.Errorf("capacity 8: %v", err)
		}
	})
}

func TestJoinRoom(t *testing.T) {
	t.Run("join public by id", func(t *testing.T) {
		env := newTestEnv(t)
		creator := env.seedPlayer(t, "ana")
		joiner := env.seedPlayer(t, "bob")
		room, err := env.rooms.CreateRoom(env.ctx, creator.ID, 4, true, false)
		if err != nil {
			t.Fatalf("CreateRoom: %v", err)
		}

		ch, cancel := env.bus.Subscribe(room.ID)
		defer cancel()

		details, err := env.rooms.JoinByID(env.ctx, joiner.ID, room.ID)
		if err != nil {
			t.Fatalf("JoinByID: %v", err)
		}
		if len(details.Participants) != 2 {
			t.Fatalf("participants = %d, want 2", len(details.Participants))
		}

		ev := eventOf(t, drainEvents(ch), bus.PlayerJoined)
		if ev.Payload["user_id"] != joiner.ID || ev.Payload["nickname"] != "bob" {
			t.Errorf("player_joined payload = %v", ev.Payload)
		}
	})

	t.Run("private room needs the code", func(t *testing.T) {
		env := newTestEnv(t)
		creator := env.seedPlayer(t, "ana")
		joiner := env.seedPlayer(t, "bob")
		room, err := env.rooms.CreateRoom(env.ctx, creator.ID, 4, false, false)
		if err != nil {
			t.Fatalf("CreateRoom: %v", err)
		}

		if _, err := env.rooms.JoinByID(env.ctx, joiner.ID, room.ID); !errors.Is(err, game.ErrPrivateRoom) {
			t.Errorf("JoinByID error = %v, want %v", err, game.ErrPrivateRoom)
		}
		if _, err := env.rooms.JoinByCode(env.ctx, joiner.ID, room.Code); err != nil {
			t.Errorf("JoinByCode: %v", err)
		}
	})

	t.Run("unknown code", func(t *testing.T) {
		env := newTestEnv(t)
		joiner := env.seedPlayer(t, "bob")
		if _, err := env.rooms.JoinByCode(env.ctx, joiner.ID, "ZZZZZZ"); !errors.Is(err, game.ErrRoomNotFound) {
			t.Errorf("JoinByCode error = %v, want %v", err, game.ErrRoomNotFound)
		}
	})

	t.Run("full room refused", func(t *testing.T) {
		env := newTestEnv(t)
		creator := env.seedPlayer(t, "ana")
		second := env.seedPlayer(t, "bob")
		third := env.seedPlayer(t, "cleo")
		fourth := env.seedPlayer(t, "dan")
		room, err := env.rooms.CreateRoom(env.ctx, creator.ID, 3, true, false)
		if err != nil {
			t.Fatalf("CreateRoom: %v", err)
		}
		for _, u := range []*game.User{second, third} {
			if _, err := env.rooms.JoinByID(env.ctx, u.ID, room.ID); err != nil {
				t.Fatalf("join %s: %v", u.Nickname, err)
			}
		}
		if _, err := env.rooms.JoinByID(env.ctx, fourth.ID, room.ID); !errors.Is(err, game.ErrRoomFull) {
			t.Errorf("fourth join error = %v, want %v", err, game.ErrRoomFull)
		}
	})

	t.Run("one room at a time", func(t *testing.T) {
		env := newTestEnv(t)
		a := env.seedPlayer(t, "ana")
		b := env.seedPlayer(t, "bob")
		joiner := env.seedPlayer(t, "cleo")
		first, err := env.rooms.CreateRoom(env.ctx, a.ID, 4, true, false)
		if err != nil {
			t.Fatalf("CreateRoom: %v", err)
		}
		secondRoom, err := env.rooms.CreateRoom(env.ctx, b.ID, 4, true, false)
		if err != nil {
			t.Fatalf("CreateRoom: %v", err)
		}
		if _, err := env.rooms.JoinByID(env.ctx, joiner.ID, first.ID); err != nil {
			t.Fatalf("first join: %v", err)
		}
		if _, err := env.rooms.JoinByID(env.ctx, joiner.ID, secondRoom.ID); !errors.Is(err, game.ErrActiveRoomExists) {
			t.Errorf("cross-room join error = %v, want %v", err, game.ErrActiveRoomExists)
		}
	})

	t.Run("join is idempotent for members", func(t *testing.T) {
		env := newTestEnv(t)
		creator := env.seedPlayer(t, "ana")
		joiner := env.seedPlayer(t, "bob")
		room, err := env.rooms.CreateRoom(env.ctx, creator.ID, 4, true, false)
		if err != nil {
			t.Fatalf("CreateRoom: %v", err)
		}
		if _, err := env.rooms.JoinByID(env.ctx, joiner.ID, room.ID); err != nil {
			t.Fatalf("first join: %v", err)
		}
		details, err := env.rooms.JoinByID(env.ctx, joiner.ID, room.ID)
		if err != nil {
			t.Fatalf("second join: %v", err)
		}
		if len(details.Participants) != 2 {
			t.Errorf("participants after rejoin = %d, want 2", len(details.Participants))
		}
	})

	t.Run("no new joins after start", func(t *testing.T) {
		env := newTestEnv(t)
		a := env.seedPlayer(t, "ana")
		b := env.seedPlayer(t, "bob")
		c := env.seedPlayer(t, "cleo")
		late := env.seedPlayer(t, "dana")
		room, _ := env.newGame(t, a, b, c)

		if _, err := env.rooms.JoinByID(env.ctx, late.ID, room.ID); !errors.Is(err, game.ErrRoomNotWaiting) {
			t.Errorf("late join error = %v, want %v", err, game.ErrRoomNotWaiting)
		}
	})

	t.Run("voluntary leaver can rejoin while waiting", func(t *testing.T) {
		env := newTestEnv(t)
		creator := env.seedPlayer(t, "ana")
		joiner := env.seedPlayer(t, "bob")
		room, err := env.rooms.CreateRoom(env.ctx, creator.ID, 4, true, false)
		if err != nil {
			t.Fatalf("CreateRoom: %v", err)
		}
		if _, err := env.rooms.JoinByID(env.ctx, joiner.ID, room.ID); err != nil {
			t.Fatalf("join: %v", err)
		}
		if err := env.rooms.Leave(env.ctx, joiner.ID, room.ID); err != nil {
			t.Fatalf("leave: %v", err)
		}
		details, err := env.rooms.JoinByID(env.ctx, joiner.ID, room.ID)
		if err != nil {
			t.Fatalf("rejoin: %v", err)
		}
		if len(details.Participants) != 2 {
			t.Errorf("participants after rejoin = %d, want 2", len(details.Participants))
		}
	})
}

func TestLeave(t *testing.T) {
	t.Run("leave publishes and marks left", func(t *testing.T) {
		env := newTestEnv(t)
		creator := env.seedPlayer(t, "ana")
		joiner := env.seedPlayer(t, "bob")
		room, err := env.rooms.CreateRoom(env.ctx, creator.ID, 4, true, false)
		if err != nil {
			t.Fatalf("CreateRoom: %v", err)
		}
		if _, err := env.rooms.JoinByID(env.ctx, joiner.ID, room.ID); err != nil {
			t.Fatalf("join: %v", err)
		}

		ch, cancel := env.bus.Subscribe(room.ID)
		defer cancel()
		if err := env.rooms.Leave(env.ctx, joiner.ID, room.ID); err != nil {
			t.Fatalf("Leave: %v", err)
		}

		ev := eventOf(t, drainEvents(ch), bus.PlayerLeft)
		if ev.Payload["reason"] != "left" {
			t.Errorf("player_left reason = %v, want left", ev.Payload["reason"])
		}
		p, err := env.store.GetParticipant(env.ctx, room.ID, joiner.ID)
		if err != nil {
			t.Fatalf("participant: %v", err)
		}
		if p.Status != game.ParticipantLeft {
			t.Errorf("status = %s, want left", p.Status)
		}

		// Leaving twice is a no-op.
		if err := env.rooms.Leave(env.ctx, joiner.ID, room.ID); err != nil {
			t.Errorf("repeat Leave: %v", err)
		}
	})

	t.Run("creator leave cancels a waiting room", func(t *testing.T) {
		env := newTestEnv(t)
		creator := env.seedPlayer(t, "ana")
		room, err := env.rooms.CreateRoom(env.ctx, creator.ID, 4, true, false)
		if err != nil {
			t.Fatalf("CreateRoom: %v", err)
		}
		if err := env.rooms.Leave(env.ctx, creator.ID, room.ID); err != nil {
			t.Fatalf("Leave: %v", err)
		}
		got, err := env.store.GetRoom(env.ctx, room.ID)
		if err != nil {
			t.Fatalf("GetRoom: %v", err)
		}
		if got.Status != game.RoomCancelled {
			t.Errorf("room status = %s, want cancelled", got.Status)
		}
	})

	t.Run("strangers cannot leave", func(t *testing.T) {
		env := newTestEnv(t)
		creator := env.seedPlayer(t, "ana")
		stranger := env.seedPlayer(t, "bob")
		room, err := env.rooms.CreateRoom(env.ctx, creator.ID, 4, true, false)
		if err != nil {
			t.Fatalf("CreateRoom: %v", err)
		}
		if err := env.rooms.Leave(env.ctx, stranger.ID, room.ID); !errors.Is(err, game.ErrNotParticipant) {
			t.Errorf("Leave error = %v, want %v", err, game.ErrNotParticipant)
		}
	})
}

func TestStartGame(t *testing.T) {
	t.Run("creator starts with enough players", func(t *testing.T) {
		env := newTestEnv(t)
		a := env.seedPlayer(t, "ana")
		b := env.seedPlayer(t, "bob")
		c := env.seedPlayer(t, "cleo")
		room, err := env.rooms.CreateRoom(env.ctx, a.ID, 4, true, false)
		if err != nil {
			t.Fatalf("CreateRoom: %v", err)
		}
		for _, u := range []*game.User{b, c} {
			if _, err := env.rooms.JoinByID(env.ctx, u.ID, room.ID); err != nil {
				t.Fatalf("join: %v", err)
			}
		}

		g, err := env.rooms.StartGame(env.ctx, a.ID, room.ID)
		if err != nil {
			t.Fatalf("StartGame: %v", err)
		}
		if g.Status != game.GameStarting || g.CurrentRound != 0 {
			t.Errorf("game = %s round %d, want starting round 0", g.Status, g.CurrentRound)
		}
		gotRoom, err := env.store.GetRoom(env.ctx, room.ID)
		if err != nil {
			t.Fatalf("GetRoom: %v", err)
		}
		if gotRoom.Status != game.RoomPlaying {
			t.Errorf("room status = %s, want playing", gotRoom.Status)
		}

		if _, err := env.rooms.StartGame(env.ctx, a.ID, room.ID); !errors.Is(err, game.ErrGameAlreadyStarted) {
			t.Errorf("second start error = %v, want %v", err, game.ErrGameAlreadyStarted)
		}
	})

	t.Run("only the creator starts", func(t *testing.T) {
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
		if _, err := env.rooms.StartGame(env.ctx, b.ID, room.ID); !errors.Is(err, game.ErrNotCreator) {
			t.Errorf("StartGame error = %v, want %v", err, game.ErrNotCreator)
		}
	})

	t.Run("needs three active players", func(t *testing.T) {
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
		if _, err := env.rooms.StartGame(env.ctx, a.ID, room.ID); !errors.Is(err, game.ErrNotEnoughPlayers) {
			t.Errorf("StartGame error = %v, want %v", err, game.ErrNotEnoughPlayers)
		}
	})
}

func TestRoomListingAndDetails(t *testing.T) {
	t.Run("public listing skips private and started rooms", func(t *testing.T) {
		env := newTestEnv(t)
		a := env.seedPlayer(t, "ana")
		b := env.seedPlayer(t, "bob")
		open, err := env.rooms.CreateRoom(env.ctx, a.ID, 4, true, false)
		if err != nil {
			t.Fatalf("CreateRoom: %v", err)
		}
		if _, err := env.rooms.CreateRoom(env.ctx, b.ID, 4, false, false); err != nil {
			t.Fatalf("CreateRoom private: %v", err)
		}

		rooms, err := env.rooms.ListPublic(env.ctx, 0)
		if err != nil {
			t.Fatalf("ListPublic: %v", err)
		}
		if len(rooms) != 1 || rooms[0].ID != open.ID {
			t.Errorf("ListPublic = %+v, want only room %d", rooms, open.ID)
		}
	})

	t.Run("private details are participant only", func(t *testing.T) {
		env := newTestEnv(t)
		creator := env.seedPlayer(t, "ana")
		stranger := env.seedPlayer(t, "bob")
		room, err := env.rooms.CreateRoom(env.ctx, creator.ID, 4, false, false)
		if err != nil {
			t.Fatalf("CreateRoom: %v", err)
		}

		if _, err := env.rooms.Details(env.ctx, room.ID, stranger.ID); !errors.Is(err, game.ErrNotParticipant) {
			t.Errorf("stranger details error = %v, want %v", err, game.ErrNotParticipant)
		}
		if _, err := env.rooms.Details(env.ctx, room.ID, creator.ID); err != nil {
			t.Errorf("creator details: %v", err)
		}
	})

	t.Run("can_start_game tracks the player floor", func(t *testing.T) {
		env := newTestEnv(t)
		a := env.seedPlayer(t, "ana")
		b := env.seedPlayer(t, "bob")
		c := env.seedPlayer(t, "cleo")
		room, err := env.rooms.CreateRoom(env.ctx, a.ID, 4, true, false)
		if err != nil {
			t.Fatalf("CreateRoom: %v", err)
		}

		details, err := env.rooms.Details(env.ctx, room.ID, a.ID)
		if err != nil {
			t.Fatalf("Details: %v", err)
		}
		if details.CanStartGame {
			t.Error("CanStartGame true with one player")
		}
		for _, u := range []*game.User{b, c} {
			if _, err := env.rooms.JoinByID(env.ctx, u.ID, room.ID); err != nil {
				t.Fatalf("join: %v", err)
			}
		}
		details, err = env.rooms.Details(env.ctx, room.ID, a.ID)
		if err != nil {
			t.Fatalf("Details: %v", err)
		}
		if !details.CanStartGame {
			t.Error("CanStartGame false with three players")
		}
	})

	t.Run("current room follows membership", func(t *testing.T) {
		env := newTestEnv(t)
		a := env.seedPlayer(t, "ana")
		room, err := env.rooms.CreateRoom(env.ctx, a.ID, 4, true, false)
		if err != nil {
			t.Fatalf("CreateRoom: %v", err)
		}

		details, err := env.rooms.CurrentRoom(env.ctx, a.ID)
		if err != nil {
			t.Fatalf("CurrentRoom: %v", err)
		}
		if details.ID != room.ID {
			t.Errorf("current room = %d, want %d", details.ID, room.ID)
		}

		if err := env.rooms.Leave(env.ctx, a.ID, room.ID); err != nil {
			t.Fatalf("Leave: %v", err)
		}
		if _, err := env.rooms.CurrentRoom(env.ctx, a.ID); !errors.Is(err, game.ErrRoomNotFound) {
			t.Errorf("CurrentRoom after leave = %v, want %v", err, game.ErrRoomNotFound)
		}
	})
}

func TestRoomCodeGeneration(t *testing.T) {
	codes := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := randomCode("ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789", 6)
		if err != nil {
			t.Fatalf("randomCode: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("code %q length = %d, want 6", code, len(code))
		}
		codes[code] = true
	}
	// 200 draws from a 36^6 space colliding would point at a broken
	// generator.
	if len(codes) < 190 {
		t.Errorf("only %d distinct codes out of 200", len(codes))
	}
}
