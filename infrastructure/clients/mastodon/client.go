package mastodon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"post-planner/domain/model"
	"post-planner/domain/repository"

	"github.com/google/go-querystring/query"
	"golang.org/x/oauth2"
)

const maxBodyBytes = 1 << 20

// Client talks to Mastodon-compatible instances.
type Client struct {
	httpClient     *http.Client
	authTimeout    time.Duration
	requestTimeout time.Duration
	userAgent      string
}

// Config represents adapter configuration
type Config struct {
	// AuthTimeout bounds every call made during the authorization flow.
	AuthTimeout time.Duration
	// RequestTimeout bounds publishing and history calls.
	RequestTimeout time.Duration
	UserAgent      string
	HTTPClient     *http.Client
}

var _ repository.IRemoteService = (*Client)(nil)

// NewClient creates a new remote instance client
func NewClient(cfg Config) *Client {
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = 5 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "post-planner/1.0"
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		httpClient:     hc,
		authTimeout:    cfg.AuthTimeout,
		requestTimeout: cfg.RequestTimeout,
		userAgent:      cfg.UserAgent,
	}
}

type appForm struct {
	ClientName   string `url:"client_name"`
	RedirectURIs string `url:"redirect_uris"`
	Scopes       string `url:"scopes"`
	Website      string `url:"website,omitempty"`
}

type appResponse struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURI  string `json:"redirect_uri"`
}

// RegisterApp creates an OAuth application on the instance.
func (c *Client) RegisterApp(ctx context.Context, origin string, req repository.AppRegistration) (*model.ClientRegistration, error) {
	const op = "register app"
	form, err := query.Values(appForm{
		ClientName:   req.ClientName,
		RedirectURIs: req.RedirectURI,
		Scopes:       req.Scopes,
		Website:      req.Website,
	})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.authTimeout)
	defer cancel()

	var out appResponse
	if err := c.doForm(ctx, op, origin+"/api/v1/apps", "", form, &out); err != nil {
		return nil, err
	}
	if out.ClientID == "" || out.ClientSecret == "" {
		return nil, &repository.RemoteError{Code: repository.RemoteMalformed, Op: op, Err: errors.New("missing client credentials")}
	}
	redirect := req.RedirectURI
	if out.RedirectURI != "" {
		redirect = out.RedirectURI
	}
	return &model.ClientRegistration{
		Origin:       origin,
		ClientID:     out.ClientID,
		ClientSecret: out.ClientSecret,
		RedirectURI:  redirect,
		Scopes:       req.Scopes,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

func oauthConfig(reg *model.ClientRegistration, scope string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     reg.ClientID,
		ClientSecret: reg.ClientSecret,
		RedirectURL:  reg.RedirectURI,
		Scopes:       strings.Fields(scope),
		Endpoint: oauth2.Endpoint{
			AuthURL:   reg.Origin + "/oauth/authorize",
			TokenURL:  reg.Origin + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthorizeURL builds the user-facing authorization URL (response_type=code).
func (c *Client) AuthorizeURL(reg *model.ClientRegistration, scope, state string) string {
	if scope == "" {
		scope = reg.Scopes
	}
	return oauthConfig(reg, scope).AuthCodeURL(state)
}

// ExchangeCode trades an authorization code for an access token with a
// form-encoded POST to the token endpoint.
func (c *Client) ExchangeCode(ctx context.Context, reg *model.ClientRegistration, code string) (*repository.TokenGrant, error) {
	const op = "exchange code"
	ctx, cancel := context.WithTimeout(ctx, c.authTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := oauthConfig(reg, reg.Scopes).Exchange(ctx, code)
	if err != nil {
		return nil, classifyExchangeError(op, err)
	}
	grant := &repository.TokenGrant{AccessToken: tok.AccessToken, TokenType: tok.TokenType}
	if scope, ok := tok.Extra("scope").(string); ok {
		grant.Scope = scope
	}
	return grant, nil
}

func classifyExchangeError(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return &repository.RemoteError{Code: repository.RemoteUpstream, Op: op, Status: status, Err: err}
	}
	var ue *url.Error
	if errors.As(err, &ue) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &repository.RemoteError{Code: repository.RemoteUnreachable, Op: op, Err: err}
	}
	// Undecodable body or a 2xx without access_token.
	return &repository.RemoteError{Code: repository.RemoteMalformed, Op: op, Err: err}
}

type accountResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Acct        string `json:"acct"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar"`
}

// VerifyCredentials resolves the account that owns accessToken.
func (c *Client) VerifyCredentials(ctx context.Context, origin, accessToken string) (*model.AccountIdentity, error) {
	const op = "verify credentials"
	ctx, cancel := context.WithTimeout(ctx, c.authTimeout)
	defer cancel()

	var acc accountResponse
	if err := c.doJSON(ctx, op, http.MethodGet, origin+"/api/v1/accounts/verify_credentials", accessToken, nil, &acc); err != nil {
		return nil, err
	}
	if acc.ID == "" || acc.Username == "" || acc.Acct == "" {
		return nil, &repository.RemoteError{Code: repository.RemoteMalformed, Op: op, Err: errors.New("account is missing id, username or acct")}
	}
	identity := &model.AccountIdentity{
		ID:          acc.ID,
		Username:    acc.Username,
		Acct:        acc.Acct,
		DisplayName: acc.DisplayName,
	}
	if acc.Avatar != "" {
		avatar := acc.Avatar
		identity.Avatar = &avatar
	}
	return identity, nil
}

type statusForm struct {
	Status     string `url:"status"`
	Visibility string `url:"visibility,omitempty"`
}

// PublishStatus posts a status and returns its remote id.
func (c *Client) PublishStatus(ctx context.Context, origin, accessToken string, draft model.StatusDraft) (string, error) {
	const op = "publish status"
	form, err := query.Values(statusForm{Status: draft.Text, Visibility: string(draft.Visibility)})
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var out struct {
		ID string `json:"id"`
	}
	if err := c.doForm(ctx, op, origin+"/api/v1/statuses", accessToken, form, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", &repository.RemoteError{Code: repository.RemoteMalformed, Op: op, Err: errors.New("status id missing")}
	}
	return out.ID, nil
}

type historyQuery struct {
	Limit          int    `url:"limit"`
	MaxID          string `url:"max_id,omitempty"`
	ExcludeReblogs bool   `url:"exclude_reblogs,omitempty"`
}

type statusResponse struct {
	ID         string          `json:"id"`
	CreatedAt  time.Time       `json:"created_at"`
	URL        string          `json:"url"`
	Content    string          `json:"content"`
	Visibility string          `json:"visibility"`
	Reblog     json.RawMessage `json:"reblog"`
}

// AccountStatuses fetches one page of the account's status history.
func (c *Client) AccountStatuses(ctx context.Context, origin, accessToken, accountID, maxID string, limit int) ([]model.RemoteStatus, error) {
	const op = "account statuses"
	q, err := query.Values(historyQuery{Limit: limit, MaxID: maxID, ExcludeReblogs: true})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/api/v1/accounts/%s/statuses?%s", origin, url.PathEscape(accountID), q.Encode())
	var page []statusResponse
	if err := c.doJSON(ctx, op, http.MethodGet, endpoint, accessToken, nil, &page); err != nil {
		return nil, err
	}
	out := make([]model.RemoteStatus, 0, len(page))
	for _, s := range page {
		reblogged := len(s.Reblog) > 0 && string(s.Reblog) != "null"
		out = append(out, model.RemoteStatus{
			ID:         s.ID,
			CreatedAt:  s.CreatedAt,
			URL:        s.URL,
			Content:    s.Content,
			Visibility: s.Visibility,
			Reblogged:  reblogged,
		})
	}
	return out, nil
}

// Probe checks that origin answers like a Mastodon-compatible instance.
func (c *Client) Probe(ctx context.Context, origin string) error {
	ctx, cancel := context.WithTimeout(ctx, c.authTimeout)
	defer cancel()
	var out map[string]interface{}
	return c.doJSON(ctx, "probe instance", http.MethodGet, origin+"/api/v1/instance", "", nil, &out)
}

func (c *Client) doForm(ctx context.Context, op, endpoint, accessToken string, form url.Values, out interface{}) error {
	return c.doJSON(ctx, op, http.MethodPost, endpoint, accessToken, form, out)
}

func (c *Client) doJSON(ctx context.Context, op, method, endpoint, accessToken string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return &repository.RemoteError{Code: repository.RemoteUnreachable, Op: op, Err: err}
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &repository.RemoteError{Code: repository.RemoteUnreachable, Op: op, Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &repository.RemoteError{Code: repository.RemoteUnreachable, Op: op, Status: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		if accessToken != "" {
			return &repository.RemoteError{Code: repository.RemoteTokenRejected, Op: op, Status: resp.StatusCode}
		}
		return &repository.RemoteError{Code: repository.RemoteUpstream, Op: op, Status: resp.StatusCode, Err: errors.New(snippet(raw))}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &repository.RemoteError{Code: repository.RemoteUpstream, Op: op, Status: resp.StatusCode, Err: errors.New(snippet(raw))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &repository.RemoteError{Code: repository.RemoteMalformed, Op: op, Status: resp.StatusCode, Err: err}
	}
	return nil
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		return "empty response body"
	}
	return s
}
