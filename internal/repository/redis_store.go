package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisOTPStore keeps OTP records in Redis. SetNX with a TTL provides the
// atomic insert-if-absent; expiry is handled entirely by Redis.
type RedisOTPStore struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisOTPStore(client *redis.Client, logger *logrus.Logger) *RedisOTPStore {
	return &RedisOTPStore{
		client: client,
		logger: logger,
	}
}

func (s *RedisOTPStore) Get(ctx context.Context, key string) (string, bool, error) {
	code, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		s.logger.WithError(err).Error("Failed to get OTP from Redis")
		return "", false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return code, true, nil
}

func (s *RedisOTPStore) Add(ctx context.Context, key, code string, ttl time.Duration) (bool, error) {
	created, err := s.client.SetNX(ctx, key, code, ttl).Result()
	if err != nil {
		s.logger.WithError(err).Error("Failed to store OTP in Redis")
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return created, nil
}

func (s *RedisOTPStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.logger.WithError(err).Error("Failed to delete OTP from Redis")
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
