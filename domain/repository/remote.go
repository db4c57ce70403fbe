package repository

import (
	"context"
	"errors"
	"fmt"

	"post-planner/domain/model"
)

// Remote error codes. They double as the lastError value of failed posts.
const (
	RemoteTokenRejected = "token_rejected"
	RemoteUnreachable   = "instance_unreachable"
	RemoteUpstream      = "upstream_error"
	RemoteMalformed     = "malformed_response"
)

// RemoteError classifies a failed call to a remote instance.
type RemoteError struct {
	Code   string
	Op     string
	Status int
	Err    error
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Code)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *RemoteError) Unwrap() error { return e.Err }

// RemoteErrorCode extracts the classification code; unclassified errors count
// as upstream failures.
func RemoteErrorCode(err error) string {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Code
	}
	return RemoteUpstream
}

// IsTokenRejected reports whether the remote refused the access token.
func IsTokenRejected(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Code == RemoteTokenRejected
}

// AppRegistration is the request sent when registering an OAuth app.
type AppRegistration struct {
	ClientName  string
	RedirectURI string
	Scopes      string
	Website     string
}

// TokenGrant is the result of an authorization-code exchange.
type TokenGrant struct {
	AccessToken string
	TokenType   string
	Scope       string
}

// IRemoteService is the outbound surface of a remote instance.
type IRemoteService interface {
	RegisterApp(ctx context.Context, origin string, req AppRegistration) (*model.ClientRegistration, error)
	AuthorizeURL(reg *model.ClientRegistration, scope, state string) string
	ExchangeCode(ctx context.Context, reg *model.ClientRegistration, code string) (*TokenGrant, error)
	VerifyCredentials(ctx context.Context, origin, accessToken string) (*model.AccountIdentity, error)
	PublishStatus(ctx context.Context, origin, accessToken string, draft model.StatusDraft) (string, error)
	// AccountStatuses returns one page of an account's statuses, newest first.
	AccountStatuses(ctx context.Context, origin, accessToken, accountID, maxID string, limit int) ([]model.RemoteStatus, error)
	Probe(ctx context.Context, origin string) error
}
