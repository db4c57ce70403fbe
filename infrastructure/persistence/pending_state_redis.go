package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"post-planner/domain/model"
	"post-planner/domain/repository"

	"github.com/redis/go-redis/v9"
)

const pendingStatePrefix = "planner:oauth_state:"

// PendingStateRedis keeps authorization states in Redis with an expiry, so they
// survive a web process restart but never reach durable storage.
type PendingStateRedis struct {
	client redis.Cmdable
}

var _ repository.IPendingState = (*PendingStateRedis)(nil)

func NewPendingStateRedis(client redis.Cmdable) *PendingStateRedis {
	return &PendingStateRedis{client: client}
}

// NewRedisClient connects and pings the server.
func NewRedisClient(ctx context.Context, addr, username, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: username,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func (s *PendingStateRedis) Put(ctx context.Context, st *model.PendingAuthorizationState, ttl time.Duration) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, pendingStatePrefix+st.State, raw, 2*ttl).Err()
}

// Take uses GETDEL so two concurrent callbacks cannot both consume a state.
func (s *PendingStateRedis) Take(ctx context.Context, state string) (*model.PendingAuthorizationState, error) {
	raw, err := s.client.GetDel(ctx, pendingStatePrefix+state).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	var st model.PendingAuthorizationState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode pending state: %w", err)
	}
	return &st, nil
}
