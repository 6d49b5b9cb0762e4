package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const redisKeyPrefix = "monti:callmonitor:"

// RedisSnapshotStore implements SnapshotStore using Redis. Each snapshot is a
// JSON string with a TTL; a per-agent sorted set scored by end time indexes it.
type RedisSnapshotStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisSnapshotStore connects to Redis and verifies the connection
func NewRedisSnapshotStore(ctx context.Context, cfg RedisConfig, logger zerolog.Logger) (*RedisSnapshotStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Dur("ttl", cfg.TTL).
		Msg("Redis snapshot store initialized")

	return NewRedisSnapshotStoreWithClient(client, cfg.TTL, logger), nil
}

// NewRedisSnapshotStoreWithClient wraps an existing client
func NewRedisSnapshotStoreWithClient(client redis.UniversalClient, ttl time.Duration, logger zerolog.Logger) *RedisSnapshotStore {
	return &RedisSnapshotStore{client: client, ttl: ttl, logger: logger}
}

// SaveCallSnapshot implements SnapshotStore
func (s *RedisSnapshotStore) SaveCallSnapshot(ctx context.Context, snap types.CallSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal call snapshot: %w", err)
	}

	score := float64(time.Now().Unix())
	if end, err := time.Parse(time.RFC3339, snap.EndTime); err == nil {
		score = float64(end.Unix())
	}

	indexKey := s.agentKey(snap.AgentID)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.callKey(snap.CallID), data, s.ttl)
	pipe.ZAdd(ctx, indexKey, redis.Z{Score: score, Member: snap.CallID})
	if s.ttl > 0 {
		pipe.Expire(ctx, indexKey, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store call snapshot in Redis: %w", err)
	}

	s.logger.Debug().
		Str("call_id", snap.CallID).
		Str("agent_id", snap.AgentID).
		Msg("call snapshot stored in Redis")
	return nil
}

// ListAgentSnapshots implements SnapshotStore. Index members whose snapshot
// has already expired are skipped.
func (s *RedisSnapshotStore) ListAgentSnapshots(ctx context.Context, agentID string, limit int) ([]types.CallSnapshot, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	callIDs, err := s.client.ZRevRange(ctx, s.agentKey(agentID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read agent index from Redis: %w", err)
	}
	if len(callIDs) == 0 {
		return []types.CallSnapshot{}, nil
	}

	keys := make([]string, len(callIDs))
	for i, id := range callIDs {
		keys[i] = s.callKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read call snapshots from Redis: %w", err)
	}

	snaps := make([]types.CallSnapshot, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var snap types.CallSnapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			s.logger.Warn().Err(err).Str("call_id", callIDs[i]).Msg("skipping malformed snapshot")
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// Close closes the Redis client
func (s *RedisSnapshotStore) Close() error {
	return s.client.Close()
}

func (s *RedisSnapshotStore) callKey(callID string) string {
	return redisKeyPrefix + "call:" + callID
}

func (s *RedisSnapshotStore) agentKey(agentID string) string {
	return redisKeyPrefix + "agent:" + agentID + ":calls"
}
