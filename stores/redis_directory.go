package stores

import (
	"context"
	"fmt"

	"github.com/classware/access"
	"github.com/redis/go-redis/v9"
)

// RedisUserStore resolves roster records from Redis hashes (key: user:{id})
type RedisUserStore struct {
	client *redis.Client
	keyFmt string // format string, e.g. "user:%s"
}

func NewRedisUserStore(client *redis.Client) *RedisUserStore {
	return &RedisUserStore{client: client, keyFmt: "user:%s"}
}

func (r *RedisUserStore) key(id string) string {
	return fmt.Sprintf(r.keyFmt, id)
}

func (r *RedisUserStore) PutUser(ctx context.Context, u *access.User) error {
	return r.client.HSet(ctx, r.key(u.ID), map[string]interface{}{
		"school_id": u.SchoolID,
		"role":      string(u.Role),
		"class_id":  u.ClassID,
	}).Err()
}

func (r *RedisUserStore) GetUser(ctx context.Context, id string) (*access.User, error) {
	fields, err := r.client.HGetAll(ctx, r.key(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", access.ErrUserNotFound, id)
	}
	return &access.User{
		ID:       id,
		SchoolID: fields["school_id"],
		Role:     access.Role(fields["role"]),
		ClassID:  fields["class_id"],
	}, nil
}
