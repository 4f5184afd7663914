// Package redis 提供 Redis 幂等索引实现
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// IdempotencyStore 基于 SETNX + TTL 的幂等索引
// 键按用户隔离，同一用户的 key 在保留窗口内重复注册时返回首次绑定的 jobID
type IdempotencyStore struct {
	client    *Client
	retention time.Duration
}

// NewIdempotencyStore 创建幂等索引
func NewIdempotencyStore(client *Client, retention time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		client:    client,
		retention: retention,
	}
}

// buildKey 幂等键的存储键，按用户隔离避免跨用户占用
func buildKey(userID, key string) string {
	return fmt.Sprintf("idem:%s:%s", userID, key)
}

// Register 尝试绑定 (userID, key) -> jobID
// 返回最终绑定的 jobID 以及本次是否为首次注册
func (s *IdempotencyStore) Register(ctx context.Context, userID, key, jobID string) (string, bool, error) {
	ctx, span := tracer.Start(ctx, "idempotency.Register",
		trace.WithAttributes(attribute.String("idempotency.key", key)))
	defer span.End()

	storageKey := buildKey(userID, key)
	created, err := s.client.rdb.SetNX(ctx, storageKey, jobID, s.retention).Result()
	if err != nil {
		span.RecordError(err)
		return "", false, fmt.Errorf("failed to register idempotency key: %w", err)
	}
	if created {
		span.SetAttributes(attribute.Bool("idempotency.created", true))
		return jobID, true, nil
	}

	// 已被占用，读取首次绑定的任务
	bound, err := s.client.rdb.Get(ctx, storageKey).Result()
	if err == redis.Nil {
		// 注册与过期之间的窄窗口，重试一次绑定
		if retried, retryErr := s.client.rdb.SetNX(ctx, storageKey, jobID, s.retention).Result(); retryErr == nil && retried {
			return jobID, true, nil
		}
		bound, err = s.client.rdb.Get(ctx, storageKey).Result()
	}
	if err != nil {
		span.RecordError(err)
		return "", false, fmt.Errorf("failed to read idempotency binding: %w", err)
	}

	span.SetAttributes(attribute.Bool("idempotency.created", false))
	return bound, false, nil
}

// Lookup 查询 (userID, key) 当前绑定的 jobID，未命中返回空串
func (s *IdempotencyStore) Lookup(ctx context.Context, userID, key string) (string, error) {
	ctx, span := tracer.Start(ctx, "idempotency.Lookup",
		trace.WithAttributes(attribute.String("idempotency.key", key)))
	defer span.End()

	bound, err := s.client.rdb.Get(ctx, buildKey(userID, key)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to lookup idempotency key: %w", err)
	}
	return bound, nil
}
