// Package queue hands claim jobs between the reservation path and the
// claim workers through a Redis list. Delivery is at least once; the
// job steps are idempotent, so a redelivered job converges instead of
// double-applying.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/deptagency/algomart-sub001/fault"
)

// Step of the claim saga a job should run next.
type Step string

const (
	StepEnsureFunded Step = "ensure-funded"
	StepMint         Step = "mint"
	StepTransfer     Step = "transfer"
)

// ClaimJob is one unit of claim work for a reserved pack.
type ClaimJob struct {
	PackID string `json:"packId"`
	UserID string `json:"userId"`
	Step   Step   `json:"step"`
}

// Queue is a Redis-backed FIFO of claim jobs.
type Queue struct {
	rdb *redis.Client
	key string
}

// New connects to Redis and binds the queue to key.
func New(addr, password string, database int, key string) *Queue {
	return &Queue{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       database,
		}),
		key: key,
	}
}

// Enqueue pushes a job onto the queue.
func (q *Queue) Enqueue(ctx context.Context, job ClaimJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fault.Wrap(err)
	}
	return fault.Wrap(q.rdb.LPush(ctx, q.key, payload).Err())
}

// Dequeue blocks up to timeout for the next job. A nil job with nil
// error means the wait timed out.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*ClaimJob, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fault.Wrap(err)
	}
	if len(res) != 2 {
		return nil, fault.Systemf("unexpected BRPOP reply of %d elements", len(res))
	}

	var job ClaimJob
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fault.Wrap(err)
	}
	return &job, nil
}

// Close releases the Redis connection.
func (q *Queue) Close() error {
	return q.rdb.Close()
}
