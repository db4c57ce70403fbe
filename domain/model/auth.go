package model

import "time"

// PendingAuthorizationState correlates an authorize redirect with its callback.
type PendingAuthorizationState struct {
	State       string    `json:"state"`
	Origin      string    `json:"origin"`
	ClientID    string    `json:"clientId"`
	CreatedAt   time.Time `json:"createdAt"`
	RedirectURI *string   `json:"redirectUri,omitempty"`
}

// ClientRegistration is an OAuth application registered on one instance.
type ClientRegistration struct {
	Origin       string    `json:"origin"`
	ClientID     string    `json:"clientId"`
	ClientSecret string    `json:"clientSecret"`
	RedirectURI  string    `json:"redirectUri"`
	Scopes       string    `json:"scopes"`
	CreatedAt    time.Time `json:"createdAt"`
}

// TokenRecord holds the access token currently in use for an origin.
type TokenRecord struct {
	AccessToken string    `json:"accessToken"`
	TokenType   *string   `json:"tokenType,omitempty"`
	Scope       *string   `json:"scope,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// AccountIdentity is the remote account a token belongs to.
type AccountIdentity struct {
	ID          string  `json:"id"`
	Username    string  `json:"username"`
	Acct        string  `json:"acct"`
	DisplayName string  `json:"displayName"`
	Avatar      *string `json:"avatar,omitempty"`
}

// RemoteStatus is a status as returned by the remote API.
type RemoteStatus struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	URL        string    `json:"url"`
	Content    string    `json:"content"`
	Visibility string    `json:"visibility"`
	Reblogged  bool      `json:"-"`
}

// StatusDraft is what gets published for a planned post.
type StatusDraft struct {
	Text       string
	Visibility Visibility
}
