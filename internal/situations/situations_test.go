package situations

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/arailymkabykenova/MemeBattle/internal/bus"
	"github.com/arailymkabykenova/MemeBattle/internal/engine"
	"github.com/arailymkabykenova/MemeBattle/internal/game"
	"github.com/arailymkabykenova/MemeBattle/internal/store"
)

func TestHTTPGenerator(t *testing.T) {
	t.Run("posts the request and returns the text", func(t *testing.T) {
		var got Request
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(body, &got); err != nil {
				t.Errorf("request body: %v", err)
			}
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"situation_text":"When the test passes first try."}`)
		}))
		defer srv.Close()

		gen := NewHTTPGenerator(srv.URL, time.Second)
		text, err := gen.Generate(context.Background(), Request{
			AgeGroup:    game.AgeAdults,
			Language:    "en",
			RoundNumber: 3,
		})
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if text != "When the test passes first try." {
			t.Errorf("text = %q", text)
		}
		if got.AgeGroup != game.AgeAdults || got.Language != "en" || got.RoundNumber != 3 {
			t.Errorf("request = %+v", got)
		}
	})

	t.Run("surfaces bad statuses", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		if _, err := NewHTTPGenerator(srv.URL, time.Second).Generate(context.Background(), Request{}); err == nil {
			t.Fatal("expected an error for a 503")
		}
	})

	t.Run("rejects empty texts", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"situation_text":"   "}`)
		}))
		defer srv.Close()

		if _, err := NewHTTPGenerator(srv.URL, time.Second).Generate(context.Background(), Request{}); err == nil {
			t.Fatal("expected an error for blank text")
		}
	})
}

func TestQueuePayload(t *testing.T) {
	q := NewQueue(nil, "jobs", "en")

	raw, err := q.payload(engine.Job{GameID: 7, RoundNumber: 2, AgeGroup: game.AgeTeens})
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["language"] != "en" {
		t.Errorf("language = %v, want default en", decoded["language"])
	}
	if decoded["age_group"] != "teens" || decoded["round_number"] != float64(2) {
		t.Errorf("payload = %v", decoded)
	}

	raw, err = q.payload(engine.Job{GameID: 7, Language: "kk"})
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["language"] != "kk" {
		t.Errorf("language = %v, want kk preserved", decoded["language"])
	}
}

type stubGenerator struct {
	text string
	err  error
	last Request
}

func (g *stubGenerator) Generate(ctx context.Context, req Request) (string, error) {
	g.last = req
	return g.text, g.err
}

func workerFixture(t *testing.T, gen Generator) (*Worker, *store.MemoryStore, *bus.Local, engine.Job) {
	t.Helper()
	st := store.NewMemoryStore()
	b := bus.NewLocal()

	ctx := context.Background()
	room := &game.Room{CreatorID: 1, MaxPlayers: 4, Status: game.RoomPlaying, AgeGroup: game.AgeAdults}
	if err := st.CreateRoom(ctx, room); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	g := &game.Game{RoomID: room.ID, Status: game.GameCardSelection, CurrentRound: 1}
	if err := st.CreateGame(ctx, g); err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	round := &game.Round{GameID: g.ID, Number: 1, SituationText: "Generating situation for round 1..."}
	if err := st.CreateRound(ctx, round); err != nil {
		t.Fatalf("CreateRound: %v", err)
	}

	w := NewWorker(nil, "jobs", st, b, gen, zap.NewNop(), "en")
	job := engine.Job{
		GameID:      g.ID,
		RoomID:      room.ID,
		RoundID:     round.ID,
		RoundNumber: 1,
		AgeGroup:    game.AgeAdults,
	}
	return w, st, b, job
}

func TestWorkerProcess(t *testing.T) {
	t.Run("writes generated text and announces it", func(t *testing.T) {
		gen := &stubGenerator{text: "Your face when the deploy works on Friday."}
		w, st, b, job := workerFixture(t, gen)

		ch, cancel := b.Subscribe(job.RoomID)
		defer cancel()
		w.process(context.Background(), job)

		round, err := st.GetRound(context.Background(), job.RoundID)
		if err != nil {
			t.Fatalf("GetRound: %v", err)
		}
		if round.SituationText != gen.text {
			t.Errorf("situation = %q, want generated text", round.SituationText)
		}
		if gen.last.Language != "en" || gen.last.AgeGroup != game.AgeAdults {
			t.Errorf("generator request = %+v", gen.last)
		}

		var ev bus.Event
		select {
		case ev = <-ch:
		default:
			t.Fatal("no event published")
		}
		if ev.Kind != bus.SituationGenerated || ev.Payload["situation_text"] != gen.text {
			t.Errorf("event = %+v", ev)
		}
	})

	t.Run("failure swaps in a fallback", func(t *testing.T) {
		gen := &stubGenerator{err: errors.New("model offline")}
		w, st, b, job := workerFixture(t, gen)

		ch, cancel := b.Subscribe(job.RoomID)
		defer cancel()
		w.process(context.Background(), job)

		round, err := st.GetRound(context.Background(), job.RoundID)
		if err != nil {
			t.Fatalf("GetRound: %v", err)
		}
		want := engine.FallbackSituation(1)
		if round.SituationText != want {
			t.Errorf("situation = %q, want fallback %q", round.SituationText, want)
		}

		var ev bus.Event
		select {
		case ev = <-ch:
		default:
			t.Fatal("no event published")
		}
		if ev.Kind != bus.SituationGenerationFailed {
			t.Errorf("event kind = %s, want %s", ev.Kind, bus.SituationGenerationFailed)
		}
		if ev.Payload["situation_text"] != want || ev.Payload["error"] != "model offline" {
			t.Errorf("payload = %v", ev.Payload)
		}
	})
}
