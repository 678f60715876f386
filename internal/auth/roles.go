package auth

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ClaimRoles answers capability questions from the verified credential
// already attached to the request context. The id must match: a caller's
// token never vouches for anyone else.
type ClaimRoles struct{}

func (ClaimRoles) IsDriver(ctx context.Context, userID string) (bool, error) {
	id, ok := FromContext(ctx)
	if !ok || id.ID != userID {
		return false, nil
	}
	return id.Role == RoleDriver, nil
}

// RedisRoles looks drivers up in a set maintained by the identity
// service, so capability can be revoked without reissuing tokens.
type RedisRoles struct {
	client *redis.Client
	key    string
}

func NewRedisRoles(client *redis.Client, key string) *RedisRoles {
	if key == "" {
		key = "drivers"
	}
	return &RedisRoles{client: client, key: key}
}

func (r *RedisRoles) IsDriver(ctx context.Context, userID string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, r.key, userID).Result()
	if err != nil {
		return false, fmt.Errorf("driver lookup for %s: %w", userID, err)
	}
	return ok, nil
}
