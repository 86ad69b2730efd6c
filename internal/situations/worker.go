package situations

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/arailymkabykenova/MemeBattle/internal/bus"
	"github.com/arailymkabykenova/MemeBattle/internal/engine"
	"github.com/arailymkabykenova/MemeBattle/internal/store"
)

// popTimeout bounds each blocking pop so the loop notices a cancelled
// context.
const popTimeout = 5 * time.Second

// Worker consumes situation jobs and writes the outcome back onto the
// round.
type Worker struct {
	rdb      *redis.Client
	name     string
	store    store.Store
	bus      bus.Bus
	gen      Generator
	log      *zap.Logger
	language string
}

// NewWorker returns a worker popping from the named list.
func NewWorker(rdb *redis.Client, name string, st store.Store, b bus.Bus, gen Generator, log *zap.Logger, language string) *Worker {
	return &Worker{
		rdb:      rdb,
		name:     name,
		store:    st,
		bus:      b,
		gen:      gen,
		log:      log,
		language: language,
	}
}

// Run blocks popping jobs until ctx is cancelled. Start one goroutine
// per configured worker.
func (w *Worker) Run(ctx context.Context) {
	for {
		res, err := w.rdb.BRPop(ctx, popTimeout, w.name).Result()
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			w.log.Warn("pop situation job", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		// BRPop yields [list, value].
		if len(res) != 2 {
			continue
		}
		var job engine.Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			w.log.Error("decode situation job", zap.Error(err))
			continue
		}
		w.process(ctx, job)
	}
}

// process generates the text for one round. Failures swap in a
// fallback so the round never stays on its placeholder.
func (w *Worker) process(ctx context.Context, job engine.Job) {
	lang := job.Language
	if lang == "" {
		lang = w.language
	}
	text, err := w.gen.Generate(ctx, Request{
		AgeGroup:    job.AgeGroup,
		Language:    lang,
		RoundNumber: job.RoundNumber,
	})
	if err != nil {
		fallback := engine.FallbackSituation(job.RoundNumber)
		w.log.Warn("situation generation failed",
			zap.Int64("game_id", job.GameID),
			zap.Int("round_number", job.RoundNumber),
			zap.Error(err))
		if err := w.store.SetRoundText(ctx, job.RoundID, fallback); err != nil {
			w.log.Error("write fallback situation", zap.Int64("round_id", job.RoundID), zap.Error(err))
			return
		}
		w.publish(ctx, job.RoomID, bus.SituationGenerationFailed, map[string]any{
			"game_id":        job.GameID,
			"round_number":   job.RoundNumber,
			"error":          err.Error(),
			"situation_text": fallback,
		})
		return
	}

	if err := w.store.SetRoundText(ctx, job.RoundID, text); err != nil {
		w.log.Error("write generated situation", zap.Int64("round_id", job.RoundID), zap.Error(err))
		return
	}
	w.log.Info("situation generated",
		zap.Int64("game_id", job.GameID),
		zap.Int("round_number", job.RoundNumber))
	w.publish(ctx, job.RoomID, bus.SituationGenerated, map[string]any{
		"game_id":        job.GameID,
		"round_number":   job.RoundNumber,
		"situation_text": text,
		"age_group":      string(job.AgeGroup),
		"language":       lang,
	})
}

func (w *Worker) publish(ctx context.Context, roomID int64, kind bus.Kind, payload map[string]any) {
	if err := w.bus.Publish(ctx, bus.Event{RoomID: roomID, Kind: kind, Payload: payload}); err != nil {
		w.log.Warn("publish situation event", zap.String("kind", string(kind)), zap.Error(err))
	}
}
