package model

import "time"

// PostStatus is the lifecycle state of a planned post.
type PostStatus string

const (
	PostStatusDraft     PostStatus = "draft"
	PostStatusScheduled PostStatus = "scheduled"
	PostStatusSending   PostStatus = "sending"
	PostStatusSent      PostStatus = "sent"
	PostStatusFailed    PostStatus = "failed"
	PostStatusCanceled  PostStatus = "canceled"
)

// Visibility mirrors the remote status visibility levels.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
	VisibilityDirect   Visibility = "direct"
)

// MaxPostLength is the character limit of a post body.
const MaxPostLength = 500

// Valid reports whether v is one of the four known visibilities.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityUnlisted, VisibilityPrivate, VisibilityDirect:
		return true
	}
	return false
}

// Valid reports whether s is a known post status.
func (s PostStatus) Valid() bool {
	switch s {
	case PostStatusDraft, PostStatusScheduled, PostStatusSending, PostStatusSent, PostStatusFailed, PostStatusCanceled:
		return true
	}
	return false
}

// PlannedPost is a post waiting to be (or already) delivered to a remote instance.
type PlannedPost struct {
	ID             string     `json:"id"`
	OwnerOrigin    string     `json:"ownerOrigin"`
	OwnerAccountID *string    `json:"ownerAccountId,omitempty"`
	ScheduledAt    time.Time  `json:"scheduledAt"`
	Text           string     `json:"text"`
	Visibility     Visibility `json:"visibility"`
	Status         PostStatus `json:"status"`
	Attempts       int        `json:"attempts"`
	LastError      *string    `json:"lastError,omitempty"`
	SentAt         *time.Time `json:"sentAt,omitempty"`
	RemoteID       *string    `json:"remoteId,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Clone returns a deep copy so callers never share pointer fields with a store.
func (p *PlannedPost) Clone() *PlannedPost {
	if p == nil {
		return nil
	}
	c := *p
	if p.OwnerAccountID != nil {
		v := *p.OwnerAccountID
		c.OwnerAccountID = &v
	}
	if p.LastError != nil {
		v := *p.LastError
		c.LastError = &v
	}
	if p.SentAt != nil {
		v := *p.SentAt
		c.SentAt = &v
	}
	if p.RemoteID != nil {
		v := *p.RemoteID
		c.RemoteID = &v
	}
	return &c
}

// PostFilter selects posts of one account whose ScheduledAt falls in [From, To).
type PostFilter struct {
	Origin    string
	AccountID string
	From      time.Time
	To        time.Time
}

// Matches applies the filter to a single post.
func (f PostFilter) Matches(p *PlannedPost) bool {
	if p.OwnerOrigin != f.Origin {
		return false
	}
	if p.OwnerAccountID == nil || *p.OwnerAccountID != f.AccountID {
		return false
	}
	if !f.From.IsZero() && p.ScheduledAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !p.ScheduledAt.Before(f.To) {
		return false
	}
	return true
}

// OnThisDayPost is a past remote status published on the same calendar day.
type OnThisDayPost struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"createdAt"`
	URL        string    `json:"url,omitempty"`
	Content    string    `json:"content"`
	Visibility string    `json:"visibility"`
	Year       int       `json:"year"`
}

// Post event types broadcast to stream subscribers.
const (
	PostEventCreated = "post.created"
	PostEventUpdated = "post.updated"
	PostEventDeleted = "post.deleted"
	PostEventStatus  = "post.status"
)

// PostEvent notifies listeners about a change to a planned post.
type PostEvent struct {
	Type string       `json:"type"`
	Post *PlannedPost `json:"post"`
}
