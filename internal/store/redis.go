package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/BTreeMap/SkinPipe/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "skinpipe"
	redisOpTimeout   = 3 * time.Second
)

// RedisStore keeps sessions, settings and completions in Redis. Session
// state expires on its own after the configured TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(opts ...Option) (*RedisStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.RedisAddr == "" {
		slog.Error("RedisStore address not set")
		return nil, fmt.Errorf("redis address not set")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  redisOpTimeout,
		WriteTimeout: redisOpTimeout,
	})
	return newRedisStoreWithClient(client, cfg)
}

func newRedisStoreWithClient(client *redis.Client, cfg Opts) (*RedisStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Error("RedisStore ping failed", "error", err)
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	s := &RedisStore{client: client, prefix: cfg.KeyPrefix, ttl: cfg.FlowStateTTL}
	if s.prefix == "" {
		s.prefix = defaultKeyPrefix
	}
	if s.ttl <= 0 {
		s.ttl = DefaultFlowStateTTL
	}
	slog.Debug("RedisStore connected", "prefix", s.prefix, "ttl", s.ttl)
	return s, nil
}

func (s *RedisStore) flowKey(sessionID, flowType string) string {
	return fmt.Sprintf("%s:flow:%s:%s", s.prefix, flowType, sessionID)
}

func (s *RedisStore) settingsKey(owner string) string {
	return fmt.Sprintf("%s:settings:%s", s.prefix, owner)
}

func (s *RedisStore) ownersKey() string      { return s.prefix + ":owners" }
func (s *RedisStore) completionsKey() string { return s.prefix + ":completions" }

func opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), redisOpTimeout)
}

// SaveFlowState stores the session and refreshes its TTL.
func (s *RedisStore) SaveFlowState(state models.FlowState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	ctx, cancel := opContext()
	defer cancel()
	if err := s.client.Set(ctx, s.flowKey(state.SessionID, string(state.FlowType)), data, s.ttl).Err(); err != nil {
		slog.Error("RedisStore SaveFlowState failed", "error", err, "sessionID", state.SessionID)
		return fmt.Errorf("redis set flow state: %w", err)
	}
	slog.Debug("RedisStore SaveFlowState succeeded", "sessionID", state.SessionID, "state", state.CurrentState)
	return nil
}

// GetFlowState retrieves the state of one session.
func (s *RedisStore) GetFlowState(sessionID, flowType string) (*models.FlowState, error) {
	ctx, cancel := opContext()
	defer cancel()
	raw, err := s.client.Get(ctx, s.flowKey(sessionID, flowType)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		slog.Error("RedisStore GetFlowState failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("redis get flow state: %w", err)
	}
	var state models.FlowState
	if err := json.Unmarshal(raw, &state); err != nil {
		slog.Error("RedisStore GetFlowState decode failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("decode flow state: %w", err)
	}
	return &state, nil
}

// DeleteFlowState removes the state of one session.
func (s *RedisStore) DeleteFlowState(sessionID, flowType string) error {
	ctx, cancel := opContext()
	defer cancel()
	if err := s.client.Del(ctx, s.flowKey(sessionID, flowType)).Err(); err != nil {
		return fmt.Errorf("redis delete flow state: %w", err)
	}
	return nil
}

// PurgeFlowStates is a no-op: Redis expires idle sessions itself.
func (s *RedisStore) PurgeFlowStates(before time.Time) (int, error) {
	return 0, nil
}

// GetSetting reads one field of the owner's settings hash.
func (s *RedisStore) GetSetting(owner, key string) (string, bool, error) {
	ctx, cancel := opContext()
	defer cancel()
	v, err := s.client.HGet(ctx, s.settingsKey(owner), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		slog.Error("RedisStore GetSetting failed", "error", err, "owner", owner, "key", key)
		return "", false, fmt.Errorf("redis get setting: %w", err)
	}
	return v, true, nil
}

// SetSetting writes one field of the owner's settings hash and records the owner.
func (s *RedisStore) SetSetting(owner, key, value string) error {
	ctx, cancel := opContext()
	defer cancel()
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.settingsKey(owner), key, value)
		pipe.SAdd(ctx, s.ownersKey(), owner)
		return nil
	})
	if err != nil {
		slog.Error("RedisStore SetSetting failed", "error", err, "owner", owner, "key", key)
		return fmt.Errorf("redis set setting: %w", err)
	}
	return nil
}

// ListSettingOwners returns all owners with stored settings, sorted.
func (s *RedisStore) ListSettingOwners() ([]string, error) {
	ctx, cancel := opContext()
	defer cancel()
	owners, err := s.client.SMembers(ctx, s.ownersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list owners: %w", err)
	}
	sort.Strings(owners)
	return owners, nil
}

// AddCompletion appends a completion to the completions list.
func (s *RedisStore) AddCompletion(c models.Completion) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	ctx, cancel := opContext()
	defer cancel()
	if err := s.client.RPush(ctx, s.completionsKey(), data).Err(); err != nil {
		slog.Error("RedisStore AddCompletion failed", "error", err, "sessionID", c.SessionID)
		return fmt.Errorf("redis add completion: %w", err)
	}
	return nil
}

// ListCompletions returns completions in insertion order. Undecodable
// entries are skipped.
func (s *RedisStore) ListCompletions() ([]models.Completion, error) {
	ctx, cancel := opContext()
	defer cancel()
	raw, err := s.client.LRange(ctx, s.completionsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list completions: %w", err)
	}
	out := make([]models.Completion, 0, len(raw))
	for _, r := range raw {
		var c models.Completion
		if err := json.Unmarshal([]byte(r), &c); err != nil {
			slog.Warn("RedisStore ListCompletions: skipping corrupt entry", "error", err)
			continue
		}
		if c.Answers == nil {
			c.Answers = models.AnswerSet{}
		}
		out = append(out, c)
	}
	return out, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
