package repository

import (
	"context"
	"time"

	"post-planner/domain/model"
)

// IAuth stores the paired token and identity records keyed by origin.
type IAuth interface {
	GetToken(ctx context.Context, origin string) (*model.TokenRecord, error)
	GetIdentity(ctx context.Context, origin string) (*model.AccountIdentity, error)
	// Put stores token and identity together in one commit.
	Put(ctx context.Context, origin string, token *model.TokenRecord, identity *model.AccountIdentity) error
	PutIdentity(ctx context.Context, origin string, identity *model.AccountIdentity) error
	// Remove deletes both records for the origin in one commit.
	Remove(ctx context.Context, origin string) error
}

// IClientRegistration stores OAuth apps registered on remote instances.
type IClientRegistration interface {
	Get(ctx context.Context, origin, clientID string) (*model.ClientRegistration, error)
	FindByRedirect(ctx context.Context, origin, redirectURI string) (*model.ClientRegistration, error)
	Create(ctx context.Context, reg *model.ClientRegistration) error
}

// IPendingState holds in-progress authorization attempts. Take must remove the
// entry it returns so a state can be consumed only once.
type IPendingState interface {
	Put(ctx context.Context, st *model.PendingAuthorizationState, ttl time.Duration) error
	Take(ctx context.Context, state string) (*model.PendingAuthorizationState, error)
}
