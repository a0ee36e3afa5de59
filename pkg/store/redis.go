package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/wavemark/playback-triggers/pkg/scenario"
)

const (
	// DefaultKeyPrefix namespaces all engine keys in Redis.
	DefaultKeyPrefix = "playback_triggers:"

	// versionField holds the scenario version stamp inside each actions hash.
	versionField = "__version"
)

// RedisStore persists action records and counters in Redis. Each scenario
// owns one hash of action records plus one JSON counter value, so a version
// purge is a single DEL.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store on an existing Redis client. An empty prefix
// falls back to DefaultKeyPrefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) actionsKey(scenarioID string) string {
	return fmt.Sprintf("%sactions:%s", s.prefix, scenarioID)
}

func (s *RedisStore) counterKey(scenarioID string) string {
	return fmt.Sprintf("%scounter:%s", s.prefix, scenarioID)
}

// ensureVersion validates the stored version stamp of the actions hash,
// purging the hash when the scenario was re-authored under a new stamp.
func (s *RedisStore) ensureVersion(ctx context.Context, sc *scenario.Scenario) error {
	key := s.actionsKey(sc.ID)

	stored, err := s.client.HGet(ctx, key, versionField).Result()
	if err == redis.Nil {
		if err := s.client.HSet(ctx, key, versionField, sc.Version).Err(); err != nil {
			return fmt.Errorf("failed to stamp version for scenario %s: %w", sc.ID, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read version for scenario %s: %w", sc.ID, err)
	}

	if stored != sc.Version {
		logrus.Infof("scenario %s version changed (%q -> %q), purging persisted state", sc.ID, stored, sc.Version)
		if err := s.client.Del(ctx, key, s.counterKey(sc.ID)).Err(); err != nil {
			return fmt.Errorf("failed to purge stale state for scenario %s: %w", sc.ID, err)
		}
		if err := s.client.HSet(ctx, key, versionField, sc.Version).Err(); err != nil {
			return fmt.Errorf("failed to stamp version for scenario %s: %w", sc.ID, err)
		}
	}
	return nil
}

// Actioned implements Store.
func (s *RedisStore) Actioned(ctx context.Context, sc *scenario.Scenario, playerID, trackID string, kind scenario.ActionKind) (bool, error) {
	if err := s.ensureVersion(ctx, sc); err != nil {
		return false, err
	}

	_, err := s.client.HGet(ctx, s.actionsKey(sc.ID), recordField(playerID, trackID, kind)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read action record: %w", err)
	}
	return true, nil
}

// MarkActioned implements Store.
func (s *RedisStore) MarkActioned(ctx context.Context, sc *scenario.Scenario, playerID, trackID string, kind scenario.ActionKind) error {
	if err := s.ensureVersion(ctx, sc); err != nil {
		return err
	}

	field := recordField(playerID, trackID, kind)
	if err := s.client.HSet(ctx, s.actionsKey(sc.ID), field, "1").Err(); err != nil {
		return fmt.Errorf("failed to write action record: %w", err)
	}
	logrus.Debugf("marked actioned: scenario=%s %s", sc.ID, field)
	return nil
}

// AnyActioned implements Store.
func (s *RedisStore) AnyActioned(ctx context.Context, sc *scenario.Scenario) (bool, error) {
	if err := s.ensureVersion(ctx, sc); err != nil {
		return false, err
	}

	n, err := s.client.HLen(ctx, s.actionsKey(sc.ID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to count action records: %w", err)
	}
	// The version field is always present.
	return n > 1, nil
}

// Counter implements Store.
func (s *RedisStore) Counter(ctx context.Context, sc *scenario.Scenario, now time.Time) (*Counter, error) {
	key := s.counterKey(sc.ID)

	data, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return &Counter{Version: sc.Version}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read counter for scenario %s: %w", sc.ID, err)
	}

	var c Counter
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal counter for scenario %s: %w", sc.ID, err)
	}

	if c.Version != sc.Version || c.Expired(now) {
		logrus.Debugf("purging counter for scenario %s (version=%q expired=%v)", sc.ID, c.Version, c.Expired(now))
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return nil, fmt.Errorf("failed to purge counter for scenario %s: %w", sc.ID, err)
		}
		return &Counter{Version: sc.Version}, nil
	}
	return &c, nil
}

// IncrCounter implements Store.
func (s *RedisStore) IncrCounter(ctx context.Context, sc *scenario.Scenario, now time.Time, span time.Duration) (*Counter, error) {
	c, err := s.Counter(ctx, sc, now)
	if err != nil {
		return nil, err
	}

	if c.TimesFired == 0 && span > 0 {
		// Expiration is computed once at creation and not recomputed until
		// it naturally elapses.
		c.ExpiresAt = now.Add(span)
	}
	c.TimesFired++
	c.Version = sc.Version

	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal counter for scenario %s: %w", sc.ID, err)
	}
	if err := s.client.Set(ctx, s.counterKey(sc.ID), data, 0).Err(); err != nil {
		return nil, fmt.Errorf("failed to write counter for scenario %s: %w", sc.ID, err)
	}
	return c, nil
}

// Reset implements Store.
func (s *RedisStore) Reset(ctx context.Context, scenarioID string) error {
	if err := s.client.Del(ctx, s.actionsKey(scenarioID), s.counterKey(scenarioID)).Err(); err != nil {
		return fmt.Errorf("failed to reset scenario %s: %w", scenarioID, err)
	}
	logrus.Infof("reset persisted state for scenario %s", scenarioID)
	return nil
}
