// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/authapi/internal/platform/constants"
)

// # Session Repository

// RedisSessionStore implements [SessionStore] using Redis.
//
// Keys are "auth:session:<sha256(id)>" so a Redis dump never exposes a usable
// session cookie.
type RedisSessionStore struct {
	client *redis.Client
}

// NewRedisSessionStore creates a new Redis-backed SessionStore.
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

/*
Save stores a session record with its TTL.

Parameters:
  - context: context.Context
  - idHash: string (Hash of the opaque session id)
  - record: SessionRecord
  - ttl: time.Duration

Returns:
  - error: Execution errors
*/
func (repository *RedisSessionStore) Save(context context.Context, idHash string, record SessionRecord, ttl time.Duration) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("redis_session_encode_failed: %w", err)
	}

	if err := repository.client.Set(context, constants.RedisPrefixSession+idHash, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis_session_set_failed: %w", err)
	}

	return nil
}

/*
Load retrieves a session record.

Returns:
  - *SessionRecord: The stored record
  - error: ErrSessionNotFound if absent or expired, or connectivity errors
*/
func (repository *RedisSessionStore) Load(context context.Context, idHash string) (*SessionRecord, error) {
	payload, err := repository.client.Get(context, constants.RedisPrefixSession+idHash).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("redis_session_get_failed: %w", err)
	}

	var record SessionRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("redis_session_decode_failed: %w", err)
	}

	return &record, nil
}

/*
Delete removes a session. Deleting an absent session is not an error.
*/
func (repository *RedisSessionStore) Delete(context context.Context, idHash string) error {
	if err := repository.client.Del(context, constants.RedisPrefixSession+idHash).Err(); err != nil {
		return fmt.Errorf("redis_session_delete_failed: %w", err)
	}
	return nil
}

// # Remembered Device Repository

// RedisDeviceStore implements [DeviceStore] using Redis.
type RedisDeviceStore struct {
	client *redis.Client
}

// NewRedisDeviceStore creates a new Redis-backed DeviceStore.
func NewRedisDeviceStore(client *redis.Client) *RedisDeviceStore {
	return &RedisDeviceStore{client: client}
}

/*
Remember records that deviceID belongs to userID for the given TTL.
*/
func (repository *RedisDeviceStore) Remember(context context.Context, deviceID, userID string, ttl time.Duration) error {
	if err := repository.client.Set(context, constants.RedisPrefixDevice+deviceID, userID, ttl).Err(); err != nil {
		return fmt.Errorf("redis_device_set_failed: %w", err)
	}
	return nil
}

/*
IsRemembered reports whether deviceID is still remembered for userID.
*/
func (repository *RedisDeviceStore) IsRemembered(context context.Context, deviceID, userID string) (bool, error) {
	owner, err := repository.client.Get(context, constants.RedisPrefixDevice+deviceID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis_device_get_failed: %w", err)
	}
	return owner == userID, nil
}

/*
Forget removes the marker for deviceID.
*/
func (repository *RedisDeviceStore) Forget(context context.Context, deviceID string) error {
	if err := repository.client.Del(context, constants.RedisPrefixDevice+deviceID).Err(); err != nil {
		return fmt.Errorf("redis_device_delete_failed: %w", err)
	}
	return nil
}
