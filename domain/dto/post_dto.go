package dto

import "time"

// PostCreateRequest is the body of POST /posts.
type PostCreateRequest struct {
	Instance    string    `json:"instance" binding:"required"`
	ScheduledAt time.Time `json:"scheduledAt" binding:"required"`
	Text        string    `json:"text"`
	Visibility  string    `json:"visibility,omitempty"`
}

// PostUpdateRequest represents fields that can be changed on a planned post.
// Pointer fields distinguish an omitted field (nil) from an explicit value.
type PostUpdateRequest struct {
	Instance    string     `json:"instance"`
	Text        *string    `json:"text"`
	Visibility  *string    `json:"visibility"`
	Status      *string    `json:"status"`
	ScheduledAt *time.Time `json:"scheduledAt"`
}

// PostListQuery binds GET /posts.
type PostListQuery struct {
	Instance string `form:"instance" binding:"required"`
	From     string `form:"from"`
	To       string `form:"to"`
}

// OnThisDayQuery binds GET /posts/on-this-day.
type OnThisDayQuery struct {
	Instance   string `form:"instance" binding:"required"`
	Month      int    `form:"month" binding:"required,min=1,max=12"`
	Day        int    `form:"day" binding:"required,min=1,max=31"`
	BeforeYear int    `form:"beforeYear"`
}

// InstanceRequest carries just an instance URL (logout, app registration).
type InstanceRequest struct {
	Instance    string `json:"instance" binding:"required"`
	RedirectURI string `json:"redirectUri,omitempty"`
	Scopes      string `json:"scopes,omitempty"`
}

// AuthorizeQuery binds GET /auth/authorize.
type AuthorizeQuery struct {
	Instance string `form:"instance" binding:"required"`
	ClientID string `form:"clientId" binding:"required"`
	Scope    string `form:"scope"`
	Redirect string `form:"redirect"`
}

// CallbackQuery binds GET /auth/callback.
type CallbackQuery struct {
	Code             string `form:"code"`
	State            string `form:"state"`
	Error            string `form:"error"`
	ErrorDescription string `form:"error_description"`
}
