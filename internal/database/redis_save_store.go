package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"novel-client/internal/interfaces"
	"novel-client/internal/models"
)

// Compile-time check to ensure redisSaveStore implements SaveStore
var _ interfaces.SaveStore = (*redisSaveStore)(nil)

type redisSaveStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisSaveStore creates a Redis-backed SaveStore. Payloads are kept
// as JSON under save:{workID}:{slot}, one key per slot, no TTL — saves
// live until overwritten or deleted.
func NewRedisSaveStore(client *redis.Client, logger *zap.Logger) interfaces.SaveStore {
	return &redisSaveStore{
		client: client,
		logger: logger.Named("RedisSaveStore"),
	}
}

func saveKey(workID string, slot int) string {
	return fmt.Sprintf("save:%s:%d", workID, slot)
}

func (r *redisSaveStore) PutSave(ctx context.Context, workID string, slot int, payload *models.SavePayload) error {
	if slot < models.MinSaveSlot || slot > models.MaxSaveSlot {
		return models.ErrSaveSlotInvalid
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal save payload: %w", err)
	}
	key := saveKey(workID, slot)
	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		r.logger.Error("Failed to write save to redis", zap.Error(err), zap.String("key", key))
		return fmt.Errorf("failed to write save to redis: %w", err)
	}
	r.logger.Debug("Save written", zap.String("key", key))
	return nil
}

func (r *redisSaveStore) GetSave(ctx context.Context, workID string, slot int) (*models.SavePayload, error) {
	if slot < models.MinSaveSlot || slot > models.MaxSaveSlot {
		return nil, models.ErrSaveSlotInvalid
	}
	key := saveKey(workID, slot)
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrSaveNotFound
		}
		r.logger.Error("Failed to read save from redis", zap.Error(err), zap.String("key", key))
		return nil, fmt.Errorf("failed to read save from redis: %w", err)
	}
	var payload models.SavePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		r.logger.Error("Corrupted save payload in redis", zap.Error(err), zap.String("key", key))
		return nil, fmt.Errorf("corrupted save payload in redis for %s: %w", key, err)
	}
	return &payload, nil
}

func (r *redisSaveStore) DeleteSave(ctx context.Context, workID string, slot int) error {
	if slot < models.MinSaveSlot || slot > models.MaxSaveSlot {
		return models.ErrSaveSlotInvalid
	}
	key := saveKey(workID, slot)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.logger.Error("Failed to delete save from redis", zap.Error(err), zap.String("key", key))
		return fmt.Errorf("failed to delete save from redis: %w", err)
	}
	return nil
}
