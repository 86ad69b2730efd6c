package engine

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/arailymkabykenova/MemeBattle/internal/bus"
	"github.com/arailymkabykenova/MemeBattle/internal/config"
	"github.com/arailymkabykenova/MemeBattle/internal/game"
	"github.com/arailymkabykenova/MemeBattle/internal/store"
)

const testManifest = `{"base_url":"https://cards.test/memes","folders":{"starter":5,"standard":10,"unique":3}}`

type testEnv struct {
	ctx      context.Context
	store    *store.MemoryStore
	bus      *bus.Local
	cfg      *config.ServerConfig
	presence *Presence
	cards    *CardService
	rooms    *RoomService
	rounds   *RoundService
	coord    *Coordinator
}

// newTestEnv wires the full engine over the memory store. Deadlines are
// pushed an hour out so tests drive phase transitions explicitly.
func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWith(t, nil)
}

func newTestEnvWith(t *testing.T, mutate func(*config.ServerConfig)) *testEnv {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Game.SelectionSeconds = []int{3600}
	cfg.Game.VotingTimeout = time.Hour
	cfg.Game.ResultsDisplay = time.Hour
	if mutate != nil {
		mutate(cfg)
	}

	st := store.NewMemoryStore()
	b := bus.NewLocal()
	log := zap.NewNop()
	locks := NewLocks()
	cat, err := game.NewManifestCatalogue([]byte(testManifest))
	if err != nil {
		t.Fatalf("parse test manifest: %v", err)
	}
	presence := NewPresence(st, b, log, cfg.Presence)
	cards := NewCardService(st, cat)
	rounds := NewRoundService(context.Background(), st, b, locks, presence, cards, nil, log, cfg.Game)
	coord := NewCoordinator(context.Background(), st, b, locks, presence, cards, rounds, log, cfg.Game)
	rooms := NewRoomService(st, b, locks, presence, log, cfg.Game)

	return &testEnv{
		ctx:      context.Background(),
		store:    st,
		bus:      b,
		cfg:      cfg,
		presence: presence,
		cards:    cards,
		rooms:    rooms,
		rounds:   rounds,
		coord:    coord,
	}
}

// seedPlayer creates a complete user profile owning starter cards 1-3.
func (e *testEnv) seedPlayer(t *testing.T, nickname string) *game.User {
	t.Helper()
	u := &game.User{
		DeviceID:  "device-" + nickname,
		Nickname:  nickname,
		BirthDate: time.Date(1995, 6, 15, 0, 0, 0, 0, time.UTC),
		Gender:    game.GenderOther,
	}
	e.store.SeedUser(u)
	for n := 1; n <= 3; n++ {
		if err := e.store.AddUserCard(e.ctx, u.ID, game.CardStarter, n); err != nil {
			t.Fatalf("seed cards for %s: %v", nickname, err)
		}
	}
	return u
}

// newGame creates a room holding the given players and starts its game.
// The first player is the creator; the game is returned in
// card_selection on round 1.
func (e *testEnv) newGame(t *testing.T, players ...*game.User) (*game.Room, *game.Game) {
	t.Helper()
	room, err := e.rooms.CreateRoom(e.ctx, players[0].ID, len(players), true, false)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	for _, p := range players[1:] {
		if _, err := e.rooms.JoinByID(e.ctx, p.ID, room.ID); err != nil {
			t.Fatalf("join %s: %v", p.Nickname, err)
		}
	}
	g, err := e.rooms.StartGame(e.ctx, players[0].ID, room.ID)
	if err != nil {
		t.Fatalf("start game: %v", err)
	}
	if err := e.coord.Begin(e.ctx, g.ID); err != nil {
		t.Fatalf("begin game: %v", err)
	}
	got, err := e.store.GetGame(e.ctx, g.ID)
	if err != nil {
		t.Fatalf("reload game: %v", err)
	}
	return room, got
}

func (e *testEnv) gameStatus(t *testing.T, gameID int64) game.GameStatus {
	t.Helper()
	g, err := e.store.GetGame(e.ctx, gameID)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	return g.Status
}

func (e *testEnv) currentRound(t *testing.T, gameID int64) *game.Round {
	t.Helper()
	r, err := e.store.GetCurrentRound(e.ctx, gameID)
	if err != nil {
		t.Fatalf("current round: %v", err)
	}
	return r
}

// submitAll submits starter card 1 for every listed player.
func (e *testEnv) submitAll(t *testing.T, gameID int64, players ...*game.User) {
	t.Helper()
	for _, p := range players {
		if _, err := e.rounds.SubmitChoice(e.ctx, p.ID, gameID, game.CardStarter, 1); err != nil {
			t.Fatalf("submit choice for %s: %v", p.Nickname, err)
		}
	}
}

// choiceByUser maps submitter ids to their choice for the round.
func (e *testEnv) choiceByUser(t *testing.T, roundID int64) map[int64]game.Choice {
	t.Helper()
	choices, err := e.store.ListChoices(e.ctx, roundID)
	if err != nil {
		t.Fatalf("list choices: %v", err)
	}
	out := make(map[int64]game.Choice, len(choices))
	for _, c := range choices {
		out[c.UserID] = c
	}
	return out
}

// drainEvents returns everything currently buffered on ch.
func drainEvents(ch <-chan bus.Event) []bus.Event {
	var out []bus.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventOf(t *testing.T, events []bus.Event, kind bus.Kind) bus.Event {
	t.Helper()
	for _, ev := range events {
		if ev.Kind == kind {
			return ev
		}
	}
	t.Fatalf("no %s event among %d events", kind, len(events))
	return bus.Event{}
}

func hasEvent(events []bus.Event, kind bus.Kind) bool {
	for _, ev := range events {
		if ev.Kind == kind {
			return true
		}
	}
	return false
}

// recordingSink captures enqueued situation jobs.
type recordingSink struct {
	jobs []Job
	err  error
}

func (s *recordingSink) Enqueue(ctx context.Context, job Job) error {
	if s.err != nil {
		return s.err
	}
	s.jobs = append(s.jobs, job)
	return nil
}
