package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	snapshotv1 "github.com/exlabs/exchange-engine/internal/domain/snapshot/v1"
	"github.com/exlabs/exchange-engine/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Store persists engine snapshots in Redis under a single key.
type Store struct {
	key         string
	logger      logger.Interface
	redisclient redis.UniversalClient
}

var _ snapshotv1.Store = (*Store)(nil)

// NewSnapshotStore creates a new snapshot store over an existing Redis client.
func NewSnapshotStore(redisclient redis.UniversalClient, key string, log logger.Interface) *Store {
	return &Store{
		key:         key,
		redisclient: redisclient,
		logger:      log,
	}
}

// Store stores the snapshot in Redis.
func (s *Store) Store(ctx context.Context, snapshot *snapshotv1.Snapshot) error {
	buf, err := json.Marshal(snapshot)
	if err != nil {
		s.logger.ErrorContext(ctx, err, logger.Field{
			Key:   "key",
			Value: s.key,
		})
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := s.redisclient.Set(ctx, s.key, buf, 0).Err(); err != nil {
		s.logger.ErrorContext(ctx, err, logger.Field{
			Key:   "key",
			Value: s.key,
		})
		return fmt.Errorf("store snapshot: %w", err)
	}

	s.logger.InfoContext(ctx, "snapshot stored", logger.Field{
		Key:   "key",
		Value: s.key,
	}, logger.Field{
		Key:   "orderOffset",
		Value: snapshot.OrderOffset,
	})
	return nil
}

// LoadStore loads the snapshot from Redis. A missing key is not an error;
// it returns a nil snapshot so the caller can hydrate from elsewhere.
func (s *Store) LoadStore(ctx context.Context) (*snapshotv1.Snapshot, error) {
	data, err := s.redisclient.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		s.logger.WarnContext(ctx, "no snapshot found", logger.Field{
			Key:   "key",
			Value: s.key,
		})
		return nil, nil
	}
	if err != nil {
		s.logger.ErrorContext(ctx, err, logger.Field{
			Key:   "key",
			Value: s.key,
		})
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snapshot snapshotv1.Snapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		s.logger.ErrorContext(ctx, err, logger.Field{
			Key:   "key",
			Value: s.key,
		})
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snapshot, nil
}
