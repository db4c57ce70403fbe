package usecase

import (
	"errors"
	"fmt"

	"post-planner/domain/repository"
)

// ErrorKind groups usecase failures by how callers should react to them.
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindNotFound
	KindForbidden
	KindConflict
	KindUnauthorized
	KindUpstream
	KindPersistence
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindUpstream:
		return "upstream"
	case KindPersistence:
		return "persistence"
	}
	return "unknown"
}

// Error codes surfaced to API callers and stored as lastError on posts.
const (
	CodeInvalidInput        = "invalid_input"
	CodeNotLoggedIn         = "not_logged_in"
	CodeMissingOwner        = "missing_owner_account"
	CodeAccountMismatch     = "account_mismatch"
	CodePostNotFound        = "post_not_found"
	CodeNotOwner            = "not_owner"
	CodePostInFlight        = "post_in_flight"
	CodeInvalidTransition   = "invalid_transition"
	CodeUnknownClient       = "unknown_client"
	CodeInvalidState        = "invalid_state"
	CodeStateExpired        = "state_expired"
	CodeAuthorizationDenied = "authorization_denied"
	CodeStoreFailure        = "store_failure"
)

type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// AsError returns the usecase error carried by err, if any.
func AsError(err error) (*Error, bool) {
	var ue *Error
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// KindOf reports the kind of err; unclassified errors are persistence failures.
func KindOf(err error) ErrorKind {
	if ue, ok := AsError(err); ok {
		return ue.Kind
	}
	return KindPersistence
}

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Code: CodeInvalidInput, Message: msg}
}

func notLoggedIn() *Error {
	return &Error{Kind: KindUnauthorized, Code: CodeNotLoggedIn, Message: "not logged in"}
}

func storeError(op string, err error) *Error {
	return &Error{Kind: KindPersistence, Code: CodeStoreFailure, Message: op, Err: err}
}

// remoteError maps an adapter failure onto the interactive taxonomy.
func remoteError(op string, err error) *Error {
	code := repository.RemoteErrorCode(err)
	if code == repository.RemoteTokenRejected {
		return &Error{Kind: KindUnauthorized, Code: code, Message: "access token rejected", Err: err}
	}
	return &Error{Kind: KindUpstream, Code: code, Message: op, Err: err}
}
