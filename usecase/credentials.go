package usecase

import (
	"context"
	"errors"
	"time"

	"post-planner/domain/model"
	"post-planner/domain/repository"
	"post-planner/infrastructure/logger"
)

// ICredentials owns the paired token/identity records of every origin. Nothing
// else writes them.
type ICredentials interface {
	Authenticate(ctx context.Context, origin string, grant *repository.TokenGrant, identity *model.AccountIdentity) error
	RefreshIdentity(ctx context.Context, origin string, identity *model.AccountIdentity) error
	Invalidate(ctx context.Context, origin string) error
	Token(ctx context.Context, origin string) (*model.TokenRecord, error)
	Identity(ctx context.Context, origin string) (*model.AccountIdentity, error)
	// ResolveIdentity returns the cached identity, or re-verifies the stored
	// token and caches the result. A rejected token invalidates the origin.
	ResolveIdentity(ctx context.Context, origin string) (*model.AccountIdentity, error)
}

type credentials struct {
	authRepo repository.IAuth
	remote   repository.IRemoteService
	now      func() time.Time
}

func NewCredentials(authRepo repository.IAuth, remote repository.IRemoteService) ICredentials {
	return &credentials{authRepo: authRepo, remote: remote, now: time.Now}
}

func (c *credentials) Authenticate(ctx context.Context, origin string, grant *repository.TokenGrant, identity *model.AccountIdentity) error {
	rec := &model.TokenRecord{AccessToken: grant.AccessToken, UpdatedAt: c.now().UTC()}
	if grant.TokenType != "" {
		tt := grant.TokenType
		rec.TokenType = &tt
	}
	if grant.Scope != "" {
		sc := grant.Scope
		rec.Scope = &sc
	}
	if err := c.authRepo.Put(ctx, origin, rec, identity); err != nil {
		return storeError("saving credentials failed", err)
	}
	logger.GetLogger().WithFields(map[string]interface{}{"origin": origin, "account": identity.Acct}).Info("credentials stored")
	return nil
}

func (c *credentials) RefreshIdentity(ctx context.Context, origin string, identity *model.AccountIdentity) error {
	if err := c.authRepo.PutIdentity(ctx, origin, identity); err != nil {
		return storeError("saving identity failed", err)
	}
	return nil
}

func (c *credentials) Invalidate(ctx context.Context, origin string) error {
	if err := c.authRepo.Remove(ctx, origin); err != nil {
		return storeError("removing credentials failed", err)
	}
	logger.GetLogger().WithField("origin", origin).Info("credentials invalidated")
	return nil
}

// Token returns the stored token or a not_logged_in error.
func (c *credentials) Token(ctx context.Context, origin string) (*model.TokenRecord, error) {
	tok, err := c.authRepo.GetToken(ctx, origin)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notLoggedIn()
	}
	if err != nil {
		return nil, storeError("reading token failed", err)
	}
	return tok, nil
}

// Identity returns the cached identity or a not_logged_in error.
func (c *credentials) Identity(ctx context.Context, origin string) (*model.AccountIdentity, error) {
	id, err := c.authRepo.GetIdentity(ctx, origin)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notLoggedIn()
	}
	if err != nil {
		return nil, storeError("reading identity failed", err)
	}
	return id, nil
}

func (c *credentials) ResolveIdentity(ctx context.Context, origin string) (*model.AccountIdentity, error) {
	if id, err := c.Identity(ctx, origin); err == nil {
		return id, nil
	} else if KindOf(err) != KindUnauthorized {
		return nil, err
	}
	tok, err := c.Token(ctx, origin)
	if err != nil {
		return nil, err
	}
	identity, err := c.remote.VerifyCredentials(ctx, origin, tok.AccessToken)
	if err != nil {
		if repository.IsTokenRejected(err) {
			if invErr := c.Invalidate(ctx, origin); invErr != nil {
				return nil, invErr
			}
		}
		return nil, remoteError("verifying credentials failed", err)
	}
	if err := c.RefreshIdentity(ctx, origin, identity); err != nil {
		return nil, err
	}
	return identity, nil
}
