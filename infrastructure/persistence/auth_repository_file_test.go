package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"post-planner/domain/model"
	"post-planner/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const origin = "https://social.example"

func TestAuthFileRepository_PairedRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "auth.json")
	repo := NewAuthFileRepository(path)

	tok := &model.TokenRecord{AccessToken: "tok", TokenType: strPtr("Bearer"), UpdatedAt: time.Now().UTC()}
	id := &model.AccountIdentity{ID: "42", Username: "alice", Acct: "alice", DisplayName: "Alice"}
	require.NoError(t, repo.Put(ctx, origin, tok, id))

	reloaded := NewAuthFileRepository(path)
	gotTok, err := reloaded.GetToken(ctx, origin)
	require.NoError(t, err)
	assert.Equal(t, "tok", gotTok.AccessToken)
	gotID, err := reloaded.GetIdentity(ctx, origin)
	require.NoError(t, err)
	assert.Equal(t, "alice", gotID.Username)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"identities"`)
	assert.Contains(t, string(raw), `"tokens"`)
}

func TestAuthFileRepository_RemoveDeletesBoth(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "auth.json")
	repo := NewAuthFileRepository(path)
	require.NoError(t, repo.Put(ctx, origin, &model.TokenRecord{AccessToken: "tok"}, &model.AccountIdentity{ID: "1", Username: "a", Acct: "a"}))

	require.NoError(t, repo.Remove(ctx, origin))
	require.NoError(t, repo.Remove(ctx, origin))

	reloaded := NewAuthFileRepository(path)
	_, err := reloaded.GetToken(ctx, origin)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = reloaded.GetIdentity(ctx, origin)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAuthFileRepository_PutIdentityKeepsToken(t *testing.T) {
	ctx := context.Background()
	repo := NewAuthFileRepository(filepath.Join(t.TempDir(), "auth.json"))
	require.NoError(t, repo.Put(ctx, origin, &model.TokenRecord{AccessToken: "tok"}, &model.AccountIdentity{ID: "1", Username: "a", Acct: "a"}))

	require.NoError(t, repo.PutIdentity(ctx, origin, &model.AccountIdentity{ID: "1", Username: "a", Acct: "a", DisplayName: "Renamed"}))

	tok, err := repo.GetToken(ctx, origin)
	require.NoError(t, err)
	assert.Equal(t, "tok", tok.AccessToken)
	id, err := repo.GetIdentity(ctx, origin)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", id.DisplayName)
}

func TestClientRegistrationFileRepository(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "clients.json")
	repo := NewClientRegistrationFileRepository(path)
	reg := &model.ClientRegistration{Origin: origin, ClientID: "cid", ClientSecret: "secret", RedirectURI: "http://localhost/cb"}
	require.NoError(t, repo.Create(ctx, reg))
	assert.Error(t, repo.Create(ctx, reg), "registrations are immutable")

	reloaded := NewClientRegistrationFileRepository(path)
	got, err := reloaded.Get(ctx, origin, "cid")
	require.NoError(t, err)
	assert.Equal(t, "secret", got.ClientSecret)

	byRedirect, err := reloaded.FindByRedirect(ctx, origin, "http://localhost/cb")
	require.NoError(t, err)
	assert.Equal(t, "cid", byRedirect.ClientID)

	_, err = reloaded.Get(ctx, origin, "unknown")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
