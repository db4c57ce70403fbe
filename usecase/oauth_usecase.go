package usecase

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"post-planner/domain/dto"
	"post-planner/domain/model"
	"post-planner/domain/repository"
	"post-planner/infrastructure/logger"
)

// StateTTL is the default lifetime of an authorization attempt.
const StateTTL = 10 * time.Minute

// IOAuthUsecase runs the authorization-code flow against remote instances.
type IOAuthUsecase interface {
	RegisterApp(ctx context.Context, req *dto.InstanceRequest) (*model.ClientRegistration, error)
	Authorize(ctx context.Context, q *dto.AuthorizeQuery) (*AuthorizeResult, error)
	// Callback completes a flow. The result is returned even on failure once
	// the state has been resolved, so callers can still honor its redirect.
	Callback(ctx context.Context, q *dto.CallbackQuery) (*CallbackResult, error)
	Me(ctx context.Context, instance string) (*model.AccountIdentity, error)
	Logout(ctx context.Context, instance string) error
}

type AuthorizeResult struct {
	AuthorizeURL string `json:"authorizeUrl"`
	State        string `json:"state"`
}

type CallbackResult struct {
	Origin   string                 `json:"instance"`
	Identity *model.AccountIdentity `json:"account,omitempty"`
	Redirect *string                `json:"-"`
}

// OAuthConfig describes the app registered on remote instances.
type OAuthConfig struct {
	AppName     string
	Website     string
	Scopes      string
	RedirectURI string
	// AllowedRedirectOrigins lists origins the post-login redirect may point to.
	// Relative paths are always allowed.
	AllowedRedirectOrigins []string
	// StateTTL bounds the time between authorize and callback.
	StateTTL time.Duration
	Now      func() time.Time
}

type oauthUsecase struct {
	clients repository.IClientRegistration
	pending repository.IPendingState
	creds   ICredentials
	remote  repository.IRemoteService
	cfg     OAuthConfig
}

func NewOAuthUsecase(clients repository.IClientRegistration, pending repository.IPendingState, creds ICredentials, remote repository.IRemoteService, cfg OAuthConfig) IOAuthUsecase {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Scopes == "" {
		cfg.Scopes = "read write"
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = StateTTL
	}
	if cfg.AppName == "" {
		cfg.AppName = "post-planner"
	}
	return &oauthUsecase{clients: clients, pending: pending, creds: creds, remote: remote, cfg: cfg}
}

// RegisterApp reuses the newest registration for the origin and redirect URI
// when it covers the requested scopes, and registers a new app otherwise.
func (u *oauthUsecase) RegisterApp(ctx context.Context, req *dto.InstanceRequest) (*model.ClientRegistration, error) {
	origin, err := NormalizeOrigin(req.Instance)
	if err != nil {
		return nil, err
	}
	redirectURI := strings.TrimSpace(req.RedirectURI)
	if redirectURI == "" {
		redirectURI = u.cfg.RedirectURI
	}
	if redirectURI == "" {
		return nil, validationError("redirectUri is required")
	}
	scopes := normalizeScopes(req.Scopes)
	if scopes == "" {
		scopes = normalizeScopes(u.cfg.Scopes)
	}

	existing, err := u.clients.FindByRedirect(ctx, origin, redirectURI)
	switch {
	case err == nil && scopesCovered(existing.Scopes, scopes):
		return existing, nil
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return nil, storeError("reading client registrations failed", err)
	}

	if err := u.remote.Probe(ctx, origin); err != nil {
		return nil, remoteError("instance did not answer", err)
	}
	reg, err := u.remote.RegisterApp(ctx, origin, repository.AppRegistration{
		ClientName:  u.cfg.AppName,
		RedirectURI: redirectURI,
		Scopes:      scopes,
		Website:     u.cfg.Website,
	})
	if err != nil {
		return nil, remoteError("registering app failed", err)
	}
	reg.Origin = origin
	if err := u.clients.Create(ctx, reg); err != nil {
		return nil, storeError("saving client registration failed", err)
	}
	logger.GetLogger().WithFields(map[string]interface{}{"origin": origin, "client_id": reg.ClientID}).Info("app registered")
	return reg, nil
}

func (u *oauthUsecase) Authorize(ctx context.Context, q *dto.AuthorizeQuery) (*AuthorizeResult, error) {
	origin, err := NormalizeOrigin(q.Instance)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(q.ClientID) == "" {
		return nil, validationError("clientId is required")
	}
	reg, err := u.clients.Get(ctx, origin, q.ClientID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &Error{Kind: KindValidation, Code: CodeUnknownClient, Message: "client is not registered for this instance"}
	}
	if err != nil {
		return nil, storeError("reading client registration failed", err)
	}
	scope := normalizeScopes(q.Scope)
	if scope == "" {
		scope = normalizeScopes(reg.Scopes)
	}
	if !scopesCovered(reg.Scopes, scope) {
		return nil, validationError("scope exceeds the scopes the client was registered with")
	}

	var redirect *string
	if q.Redirect != "" {
		if !u.redirectAllowed(q.Redirect) {
			return nil, validationError("redirect is not an allowed location")
		}
		r := q.Redirect
		redirect = &r
	}

	state, err := newState()
	if err != nil {
		return nil, fmt.Errorf("generating state: %w", err)
	}
	pending := &model.PendingAuthorizationState{
		State:       state,
		Origin:      origin,
		ClientID:    reg.ClientID,
		CreatedAt:   u.cfg.Now().UTC(),
		RedirectURI: redirect,
	}
	if err := u.pending.Put(ctx, pending, u.cfg.StateTTL); err != nil {
		return nil, storeError("saving authorization state failed", err)
	}
	return &AuthorizeResult{AuthorizeURL: u.remote.AuthorizeURL(reg, scope, state), State: state}, nil
}

func (u *oauthUsecase) Callback(ctx context.Context, q *dto.CallbackQuery) (*CallbackResult, error) {
	if q.State == "" {
		return nil, &Error{Kind: KindValidation, Code: CodeInvalidState, Message: "state is required"}
	}
	st, err := u.pending.Take(ctx, q.State)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &Error{Kind: KindValidation, Code: CodeInvalidState, Message: "unknown or already used state"}
	}
	if err != nil {
		return nil, storeError("reading authorization state failed", err)
	}
	result := &CallbackResult{Origin: st.Origin, Redirect: st.RedirectURI}
	lg := logger.GetLogger().WithField("origin", st.Origin)

	if u.cfg.Now().Sub(st.CreatedAt) > u.cfg.StateTTL {
		return result, &Error{Kind: KindValidation, Code: CodeStateExpired, Message: "authorization attempt expired, start again"}
	}
	if q.Error != "" {
		msg := q.Error
		if q.ErrorDescription != "" {
			msg = q.ErrorDescription
		}
		lg.WithField("provider_error", q.Error).Warn("authorization denied by instance")
		return result, &Error{Kind: KindUnauthorized, Code: CodeAuthorizationDenied, Message: msg}
	}
	if q.Code == "" {
		return result, validationError("code is required")
	}
	reg, err := u.clients.Get(ctx, st.Origin, st.ClientID)
	if errors.Is(err, repository.ErrNotFound) {
		return result, &Error{Kind: KindValidation, Code: CodeUnknownClient, Message: "client is not registered for this instance"}
	}
	if err != nil {
		return result, storeError("reading client registration failed", err)
	}

	grant, err := u.remote.ExchangeCode(ctx, reg, q.Code)
	if err != nil {
		lg.WithField("error", err).Warn("code exchange failed")
		return result, remoteError("token exchange failed", err)
	}
	identity, err := u.remote.VerifyCredentials(ctx, st.Origin, grant.AccessToken)
	if err != nil {
		lg.WithField("error", err).Warn("verifying new token failed")
		return result, remoteError("verifying credentials failed", err)
	}
	if err := u.creds.Authenticate(ctx, st.Origin, grant, identity); err != nil {
		return result, err
	}
	result.Identity = identity
	return result, nil
}

func (u *oauthUsecase) Me(ctx context.Context, instance string) (*model.AccountIdentity, error) {
	origin, err := NormalizeOrigin(instance)
	if err != nil {
		return nil, err
	}
	return u.creds.ResolveIdentity(ctx, origin)
}

func (u *oauthUsecase) Logout(ctx context.Context, instance string) error {
	origin, err := NormalizeOrigin(instance)
	if err != nil {
		return err
	}
	return u.creds.Invalidate(ctx, origin)
}

// redirectAllowed accepts same-site paths and absolute URLs on an allowed origin.
func (u *oauthUsecase) redirectAllowed(raw string) bool {
	if strings.HasPrefix(raw, "/") {
		return !strings.HasPrefix(raw, "//") && !strings.HasPrefix(raw, "/\\")
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return false
	}
	origin := strings.ToLower(parsed.Scheme + "://" + parsed.Host)
	for _, allowed := range u.cfg.AllowedRedirectOrigins {
		if strings.TrimRight(strings.ToLower(allowed), "/") == origin {
			return true
		}
	}
	return false
}

func newState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func normalizeScopes(raw string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(raw, ",", " ")), " ")
}

// scopesCovered reports whether every scope in requested is in granted.
func scopesCovered(granted, requested string) bool {
	set := map[string]struct{}{}
	for _, s := range strings.Fields(granted) {
		set[s] = struct{}{}
	}
	for _, s := range strings.Fields(requested) {
		if _, ok := set[s]; !ok {
			return false
		}
	}
	return true
}
