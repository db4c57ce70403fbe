package usecase_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"post-planner/domain/model"
	"post-planner/domain/repository"
	"post-planner/infrastructure/persistence"
	"post-planner/usecase"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	instance = "social.example"
	origin   = "https://social.example"
)

type MockRemote struct {
	mock.Mock
}

func (m *MockRemote) RegisterApp(ctx context.Context, origin string, req repository.AppRegistration) (*model.ClientRegistration, error) {
	args := m.Called(ctx, origin, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ClientRegistration), args.Error(1)
}

func (m *MockRemote) AuthorizeURL(reg *model.ClientRegistration, scope, state string) string {
	args := m.Called(reg, scope, state)
	return args.String(0)
}

func (m *MockRemote) ExchangeCode(ctx context.Context, reg *model.ClientRegistration, code string) (*repository.TokenGrant, error) {
	args := m.Called(ctx, reg, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.TokenGrant), args.Error(1)
}

func (m *MockRemote) VerifyCredentials(ctx context.Context, origin, accessToken string) (*model.AccountIdentity, error) {
	args := m.Called(ctx, origin, accessToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AccountIdentity), args.Error(1)
}

func (m *MockRemote) PublishStatus(ctx context.Context, origin, accessToken string, draft model.StatusDraft) (string, error) {
	args := m.Called(ctx, origin, accessToken, draft)
	return args.String(0), args.Error(1)
}

func (m *MockRemote) AccountStatuses(ctx context.Context, origin, accessToken, accountID, maxID string, limit int) ([]model.RemoteStatus, error) {
	args := m.Called(ctx, origin, accessToken, accountID, maxID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RemoteStatus), args.Error(1)
}

func (m *MockRemote) Probe(ctx context.Context, origin string) error {
	args := m.Called(ctx, origin)
	return args.Error(0)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	dir     string
	remote  *MockRemote
	posts   *persistence.PostFileRepository
	auth    *persistence.AuthFileRepository
	clients *persistence.ClientRegistrationFileRepository
	pending *persistence.PendingStateMemory
	creds   usecase.ICredentials
	engine  *usecase.PostEngine
	clock   *fakeClock
	events  []model.PostEvent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		dir:     dir,
		remote:  new(MockRemote),
		posts:   persistence.NewPostFileRepository(filepath.Join(dir, "posts.json")),
		auth:    persistence.NewAuthFileRepository(filepath.Join(dir, "auth.json")),
		clients: persistence.NewClientRegistrationFileRepository(filepath.Join(dir, "clients.json")),
		pending: persistence.NewPendingStateMemory(),
		clock:   &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	f.pending.WithClock(f.clock.Now)
	f.creds = usecase.NewCredentials(f.auth, f.remote)
	f.engine = usecase.NewPostEngine(f.posts, f.creds, f.remote, usecase.EngineConfig{
		PublishTimeout: time.Second,
		Now:            f.clock.Now,
	}).WithBroadcaster(func(ev model.PostEvent) { f.events = append(f.events, ev) })
	return f
}

// login stores a token and identity for the test origin.
func (f *fixture) login(t *testing.T, accountID string) {
	t.Helper()
	tt := "Bearer"
	require.NoError(t, f.auth.Put(context.Background(), origin,
		&model.TokenRecord{AccessToken: "tok-" + accountID, TokenType: &tt, UpdatedAt: f.clock.Now()},
		&model.AccountIdentity{ID: accountID, Username: "user" + accountID, Acct: "user" + accountID},
	))
}

func (f *fixture) loggedOut(t *testing.T) {
	t.Helper()
	_, err := f.auth.GetToken(context.Background(), origin)
	require.ErrorIs(t, err, repository.ErrNotFound)
	_, err = f.auth.GetIdentity(context.Background(), origin)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func requireKind(t *testing.T, err error, kind usecase.ErrorKind, code string) {
	t.Helper()
	require.Error(t, err)
	ue, ok := usecase.AsError(err)
	require.True(t, ok, "expected usecase error, got %v", err)
	require.Equal(t, kind, ue.Kind, ue.Error())
	if code != "" {
		require.Equal(t, code, ue.Code)
	}
}

func strPtr(s string) *string { return &s }
