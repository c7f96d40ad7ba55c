package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/actflow/actflow/pkg/models"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "actflow:executions:"

// RedisStore persists execution records in Redis so worker restarts keep
// their execution history.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the Redis instance described by url, e.g.
// redis://localhost:6379/0.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Save(ctx context.Context, info *models.ExecutionInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to encode execution %s: %w", info.ID, err)
	}

	return s.client.Set(ctx, redisKeyPrefix+info.ID, data, 0).Err()
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.ExecutionInfo, bool, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, err
	}

	var info models.ExecutionInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, false, fmt.Errorf("corrupt execution record %s: %w", id, err)
	}

	return &info, true, nil
}

func (s *RedisStore) List(ctx context.Context) ([]*models.ExecutionInfo, error) {
	var records []*models.ExecutionInfo

	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}

		if err != nil {
			return nil, err
		}

		var info models.ExecutionInfo
		if err := json.Unmarshal(data, &info); err != nil {
			return nil, fmt.Errorf("corrupt execution record %s: %w", iter.Val(), err)
		}

		records = append(records, &info)
	}

	if err := iter.Err(); err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].StartTime.Before(records[j].StartTime)
	})

	return records, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, redisKeyPrefix+id).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
