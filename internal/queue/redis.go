package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mtr002/Job-Runner/internal/jobs"
)

// ErrEmpty is returned by Pop when no payload arrived within the wait window.
var ErrEmpty = errors.New("queue empty")

const deadSuffix = ":dead"

// Config holds Redis configuration.
type Config struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	Key        string
}

// Redis is a job list in a Redis instance. BLPOP on the consumer side and
// RPUSH on the producer side keep it FIFO.
type Redis struct {
	client *redis.Client
	key    string
}

// DeadLetter is what lands on the dead-letter list for a rejected payload.
type DeadLetter struct {
	Payload  string    `json:"payload"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

// Connect opens a client and pings it. The caller owns the result and must Close it.
func Connect(ctx context.Context, cfg Config) (*Redis, error) {
	if cfg.Key == "" {
		return nil, fmt.Errorf("queue key cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	return NewRedis(client, cfg.Key), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, key string) *Redis {
	return &Redis{client: client, key: key}
}

func (r *Redis) Key() string {
	return r.key
}

func (r *Redis) DeadKey() string {
	return r.key + deadSuffix
}

// Pop blocks for at most timeout waiting for the next payload. Redis counts
// blocking timeouts in seconds, so anything below one second waits one second.
func (r *Redis) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	res, err := r.client.BLPop(ctx, timeout, r.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("failed to pop from %s: %w", r.key, err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BLPOP reply of %d elements", len(res))
	}
	return []byte(res[1]), nil
}

// Push appends a payload to the tail of the list.
func (r *Redis) Push(ctx context.Context, payload []byte) error {
	if err := r.client.RPush(ctx, r.key, payload).Err(); err != nil {
		return fmt.Errorf("failed to push to %s: %w", r.key, err)
	}
	return nil
}

// DeadLetter parks a payload the runner refused, along with the reason.
func (r *Redis) DeadLetter(ctx context.Context, payload []byte, reason string) error {
	entry, err := jobs.JSON.Marshal(DeadLetter{
		Payload:  string(payload),
		Reason:   reason,
		FailedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}
	if err := r.client.RPush(ctx, r.DeadKey(), entry).Err(); err != nil {
		return fmt.Errorf("failed to push to %s: %w", r.DeadKey(), err)
	}
	return nil
}

// DeadLetters returns up to limit entries from the head of the dead-letter list.
func (r *Redis) DeadLetters(ctx context.Context, limit int64) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}
	raw, err := r.client.LRange(ctx, r.DeadKey(), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", r.DeadKey(), err)
	}

	letters := make([]DeadLetter, 0, len(raw))
	for _, item := range raw {
		var letter DeadLetter
		if err := jobs.JSON.Unmarshal([]byte(item), &letter); err != nil {
			return nil, fmt.Errorf("failed to decode dead letter: %w", err)
		}
		letters = append(letters, letter)
	}
	return letters, nil
}

func (r *Redis) Len(ctx context.Context) (int64, error) {
	n, err := r.client.LLen(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get length of %s: %w", r.key, err)
	}
	return n, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
