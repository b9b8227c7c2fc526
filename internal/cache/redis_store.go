// Package cache keeps the denormalized copy of each plan in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/CDLUC3/dmptool-narrative-generator/internal/dmp"
	"github.com/klauspost/compress/zstd"
	"github.com/redis/go-redis/v9"
)

// ErrAlreadyCached is returned by Create when a copy already exists
var ErrAlreadyCached = errors.New("plan already cached")

const (
	currentPrefix = "dmp:"
	versionPrefix = "dmp-version:"
)

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)
)

// RedisStore holds one current document per plan plus immutable copies of
// every document it replaced, keyed by that document's modified timestamp.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func currentKey(id string) string {
	return currentPrefix + id
}

func versionKey(id, modified string) string {
	return versionPrefix + id + "#" + modified
}

// Get returns the cached plan, or nil when there is none
func (s *RedisStore) Get(ctx context.Context, id string) (*dmp.Plan, error) {
	return s.load(ctx, currentKey(id))
}

// GetVersion returns the archived copy whose modified timestamp equals
// version, or nil when there is none.
func (s *RedisStore) GetVersion(ctx context.Context, id, version string) (*dmp.Plan, error) {
	return s.load(ctx, versionKey(id, version))
}

// Create stores the first copy of a plan
func (s *RedisStore) Create(ctx context.Context, plan *dmp.Plan) error {
	payload, err := encode(plan)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, currentKey(plan.DMPID.Identifier), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("create cached plan: %w", err)
	}
	if !ok {
		return ErrAlreadyCached
	}
	return nil
}

// Replace swaps in a whole new document and keeps the previous one as an
// immutable version.
func (s *RedisStore) Replace(ctx context.Context, plan *dmp.Plan) error {
	payload, err := encode(plan)
	if err != nil {
		return err
	}
	id := plan.DMPID.Identifier
	previous, err := s.client.SetArgs(ctx, currentKey(id), payload, redis.SetArgs{Get: true}).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("replace cached plan: %w", err)
	}

	old, err := decode([]byte(previous))
	if err != nil {
		// unreadable copies are dropped rather than archived
		return nil
	}
	if old.Modified == "" || old.Modified == plan.Modified {
		return nil
	}
	if err := s.client.SetNX(ctx, versionKey(id, old.Modified), []byte(previous), 0).Err(); err != nil {
		return fmt.Errorf("archive plan version: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) load(ctx context.Context, key string) (*dmp.Plan, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached plan: %w", err)
	}
	return decode(data)
}

func encode(plan *dmp.Plan) ([]byte, error) {
	raw, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("marshal plan: %w", err)
	}
	return encoder.EncodeAll(raw, nil), nil
}

func decode(data []byte) (*dmp.Plan, error) {
	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress cached plan: %w", err)
	}
	var plan dmp.Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, fmt.Errorf("unmarshal cached plan: %w", err)
	}
	return &plan, nil
}
