package situations

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/arailymkabykenova/MemeBattle/internal/engine"
)

// Queue pushes situation jobs onto a Redis list. It is the production
// engine.SituationSink.
type Queue struct {
	rdb      *redis.Client
	name     string
	language string
}

// NewQueue returns a queue writing to the named list. language fills
// jobs that do not carry one.
func NewQueue(rdb *redis.Client, name, language string) *Queue {
	return &Queue{rdb: rdb, name: name, language: language}
}

// Enqueue appends the job to the list.
func (q *Queue) Enqueue(ctx context.Context, job engine.Job) error {
	payload, err := q.payload(job)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.name, payload).Err()
}

func (q *Queue) payload(job engine.Job) ([]byte, error) {
	if job.Language == "" {
		job.Language = q.language
	}
	return json.Marshal(job)
}
