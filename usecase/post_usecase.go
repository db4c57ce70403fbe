package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"post-planner/domain/dto"
	"post-planner/domain/model"
	"post-planner/domain/repository"
	"post-planner/infrastructure/logger"

	"github.com/google/uuid"
)

const (
	defaultHistoryPages    = 8
	defaultHistoryPageSize = 40
	defaultPublishTimeout  = 15 * time.Second
	defaultTickInterval    = 20 * time.Second
)

// IPostUsecase is the user-facing side of the post lifecycle.
type IPostUsecase interface {
	Create(ctx context.Context, req *dto.PostCreateRequest) (*model.PlannedPost, error)
	Update(ctx context.Context, id string, req *dto.PostUpdateRequest) (*model.PlannedPost, error)
	Delete(ctx context.Context, id, instance string) error
	List(ctx context.Context, req *dto.PostListQuery) ([]*model.PlannedPost, error)
	OnThisDay(ctx context.Context, req *dto.OnThisDayQuery) ([]*model.OnThisDayPost, error)
}

// EngineConfig tunes the post engine. Zero values fall back to defaults.
type EngineConfig struct {
	TickInterval    time.Duration
	PublishTimeout  time.Duration
	HistoryPages    int
	HistoryPageSize int
	Now             func() time.Time
}

// PostEngine tracks planned posts through their lifecycle and delivers due
// ones. It serves both the HTTP handlers and the scheduler loop.
type PostEngine struct {
	postRepo  repository.IPost
	creds     ICredentials
	remote    repository.IRemoteService
	locks     *inFlight
	cfg       EngineConfig
	broadcast func(model.PostEvent)
}

var (
	_ IPostUsecase = (*PostEngine)(nil)
	_ IScheduler   = (*PostEngine)(nil)
)

func NewPostEngine(postRepo repository.IPost, creds ICredentials, remote repository.IRemoteService, cfg EngineConfig) *PostEngine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	if cfg.HistoryPages <= 0 {
		cfg.HistoryPages = defaultHistoryPages
	}
	if cfg.HistoryPageSize <= 0 {
		cfg.HistoryPageSize = defaultHistoryPageSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &PostEngine{
		postRepo:  postRepo,
		creds:     creds,
		remote:    remote,
		locks:     newInFlight(),
		cfg:       cfg,
		broadcast: func(model.PostEvent) {},
	}
}

// WithBroadcaster registers a callback invoked after every committed change.
func (e *PostEngine) WithBroadcaster(fn func(model.PostEvent)) *PostEngine {
	if fn != nil {
		e.broadcast = fn
	}
	return e
}

func (e *PostEngine) now() time.Time { return e.cfg.Now().UTC() }

func (e *PostEngine) emit(kind string, p *model.PlannedPost) {
	e.broadcast(model.PostEvent{Type: kind, Post: p.Clone()})
}

func (e *PostEngine) Create(ctx context.Context, req *dto.PostCreateRequest) (*model.PlannedPost, error) {
	origin, err := NormalizeOrigin(req.Instance)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if req.ScheduledAt.IsZero() {
		return nil, validationError("scheduledAt is required")
	}
	if !req.ScheduledAt.After(now) {
		return nil, validationError("scheduledAt must be in the future")
	}
	if err := validateText(req.Text); err != nil {
		return nil, err
	}
	visibility, err := parseVisibility(req.Visibility)
	if err != nil {
		return nil, err
	}
	identity, err := e.creds.ResolveIdentity(ctx, origin)
	if err != nil {
		return nil, err
	}

	accountID := identity.ID
	post := &model.PlannedPost{
		ID:             uuid.NewString(),
		OwnerOrigin:    origin,
		OwnerAccountID: &accountID,
		ScheduledAt:    req.ScheduledAt.UTC(),
		Text:           req.Text,
		Visibility:     visibility,
		Status:         model.PostStatusScheduled,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.postRepo.Save(ctx, post); err != nil {
		return nil, storeError("saving post failed", err)
	}
	logger.GetLogger().WithFields(map[string]interface{}{
		"post_id":      post.ID,
		"origin":       origin,
		"scheduled_at": post.ScheduledAt,
	}).Info("post scheduled")
	e.emit(model.PostEventCreated, post)
	return post, nil
}

// userTransitions lists the status changes a user may request. A request that
// keeps the current status is always allowed for editable posts.
var userTransitions = map[model.PostStatus][]model.PostStatus{
	model.PostStatusDraft:     {model.PostStatusScheduled, model.PostStatusCanceled},
	model.PostStatusScheduled: {model.PostStatusDraft, model.PostStatusCanceled},
	model.PostStatusFailed:    {model.PostStatusScheduled, model.PostStatusDraft},
	// Reachable only when no delivery holds the marker, i.e. an interrupted run.
	model.PostStatusSending: {model.PostStatusScheduled, model.PostStatusDraft},
}

func canTransition(from, to model.PostStatus) bool {
	for _, s := range userTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (e *PostEngine) Update(ctx context.Context, id string, req *dto.PostUpdateRequest) (*model.PlannedPost, error) {
	if !e.locks.acquire(id) {
		return nil, inFlightError()
	}
	defer e.locks.release(id)

	current, err := e.ownedPost(ctx, id, req.Instance)
	if err != nil {
		return nil, err
	}
	switch current.Status {
	case model.PostStatusSent, model.PostStatusCanceled:
		return nil, &Error{Kind: KindValidation, Code: CodeInvalidTransition, Message: fmt.Sprintf("a %s post can no longer be changed", current.Status)}
	}

	next := current.Clone()
	if req.Text != nil {
		if err := validateText(*req.Text); err != nil {
			return nil, err
		}
		next.Text = *req.Text
	}
	if req.Visibility != nil {
		v, err := parseVisibility(*req.Visibility)
		if err != nil {
			return nil, err
		}
		next.Visibility = v
	}
	if req.ScheduledAt != nil {
		if req.ScheduledAt.IsZero() {
			return nil, validationError("scheduledAt must be a valid timestamp")
		}
		next.ScheduledAt = req.ScheduledAt.UTC()
	}
	if req.Status != nil {
		target := model.PostStatus(strings.ToLower(strings.TrimSpace(*req.Status)))
		if !target.Valid() {
			return nil, validationError(fmt.Sprintf("unknown status %q", *req.Status))
		}
		if target != current.Status && !canTransition(current.Status, target) {
			return nil, &Error{Kind: KindValidation, Code: CodeInvalidTransition, Message: fmt.Sprintf("cannot change status from %s to %s", current.Status, target)}
		}
		next.Status = target
	}

	now := e.now()
	rescheduled := !next.ScheduledAt.Equal(current.ScheduledAt)
	if next.Status == model.PostStatusSending {
		return nil, &Error{Kind: KindValidation, Code: CodeInvalidTransition, Message: "a post left in sending must be rescheduled or moved back to draft"}
	}
	rearmed := next.Status == model.PostStatusScheduled && current.Status != model.PostStatusScheduled
	if next.Status == model.PostStatusScheduled && rescheduled && !next.ScheduledAt.After(now) {
		return nil, validationError("scheduledAt must be in the future")
	}
	if rearmed {
		next.LastError = nil
	}
	next.UpdatedAt = now

	if err := e.postRepo.Save(ctx, next); err != nil {
		return nil, storeError("saving post failed", err)
	}
	logger.GetLogger().WithFields(map[string]interface{}{
		"post_id": next.ID,
		"from":    current.Status,
		"to":      next.Status,
	}).Info("post updated")
	e.emit(model.PostEventUpdated, next)
	return next, nil
}

func (e *PostEngine) Delete(ctx context.Context, id, instance string) error {
	if !e.locks.acquire(id) {
		return inFlightError()
	}
	defer e.locks.release(id)

	post, err := e.ownedPost(ctx, id, instance)
	if err != nil {
		return err
	}
	if err := e.postRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return postNotFound(id)
		}
		return storeError("deleting post failed", err)
	}
	logger.GetLogger().WithField("post_id", id).Info("post deleted")
	e.emit(model.PostEventDeleted, post)
	return nil
}

func (e *PostEngine) List(ctx context.Context, req *dto.PostListQuery) ([]*model.PlannedPost, error) {
	origin, err := NormalizeOrigin(req.Instance)
	if err != nil {
		return nil, err
	}
	from, err := parseBound("from", req.From)
	if err != nil {
		return nil, err
	}
	to, err := parseBound("to", req.To)
	if err != nil {
		return nil, err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return nil, validationError("to must not be before from")
	}
	identity, err := e.creds.ResolveIdentity(ctx, origin)
	if err != nil {
		return nil, err
	}
	posts, err := e.postRepo.List(ctx, model.PostFilter{Origin: origin, AccountID: identity.ID, From: from, To: to})
	if err != nil {
		return nil, storeError("listing posts failed", err)
	}
	return posts, nil
}

// OnThisDay walks the account's remote history and keeps statuses written on
// the given month and day of earlier years, newest first.
func (e *PostEngine) OnThisDay(ctx context.Context, req *dto.OnThisDayQuery) ([]*model.OnThisDayPost, error) {
	origin, err := NormalizeOrigin(req.Instance)
	if err != nil {
		return nil, err
	}
	if req.Month < 1 || req.Month > 12 || req.Day < 1 || req.Day > 31 {
		return nil, validationError("month and day must form a calendar date")
	}
	// 2000 is a leap year, so Feb 29 stays valid.
	if d := time.Date(2000, time.Month(req.Month), req.Day, 0, 0, 0, 0, time.UTC); d.Day() != req.Day {
		return nil, validationError("month and day must form a calendar date")
	}
	beforeYear := req.BeforeYear
	if beforeYear == 0 {
		beforeYear = e.now().Year()
	}

	tok, err := e.creds.Token(ctx, origin)
	if err != nil {
		return nil, err
	}
	identity, err := e.creds.ResolveIdentity(ctx, origin)
	if err != nil {
		return nil, err
	}

	out := []*model.OnThisDayPost{}
	maxID := ""
	for page := 0; page < e.cfg.HistoryPages; page++ {
		statuses, err := e.remote.AccountStatuses(ctx, origin, tok.AccessToken, identity.ID, maxID, e.cfg.HistoryPageSize)
		if err != nil {
			if repository.IsTokenRejected(err) {
				if invErr := e.creds.Invalidate(ctx, origin); invErr != nil {
					return nil, invErr
				}
			}
			return nil, remoteError("fetching account history failed", err)
		}
		for _, s := range statuses {
			if s.Reblogged {
				continue
			}
			created := s.CreatedAt.UTC()
			if int(created.Month()) != req.Month || created.Day() != req.Day || created.Year() >= beforeYear {
				continue
			}
			out = append(out, &model.OnThisDayPost{
				ID:         s.ID,
				CreatedAt:  created,
				URL:        s.URL,
				Content:    s.Content,
				Visibility: s.Visibility,
				Year:       created.Year(),
			})
		}
		if len(statuses) < e.cfg.HistoryPageSize {
			break
		}
		maxID = statuses[len(statuses)-1].ID
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ownedPost loads a post and checks it belongs to the caller's current
// identity on instance.
func (e *PostEngine) ownedPost(ctx context.Context, id, instance string) (*model.PlannedPost, error) {
	origin, err := NormalizeOrigin(instance)
	if err != nil {
		return nil, err
	}
	post, err := e.postRepo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, postNotFound(id)
	}
	if err != nil {
		return nil, storeError("reading post failed", err)
	}
	identity, err := e.creds.ResolveIdentity(ctx, origin)
	if err != nil {
		return nil, err
	}
	if post.OwnerOrigin != origin || post.OwnerAccountID == nil || *post.OwnerAccountID != identity.ID {
		return nil, &Error{Kind: KindForbidden, Code: CodeNotOwner, Message: "post belongs to another account"}
	}
	return post, nil
}

func validateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return validationError("text is required")
	}
	if utf8.RuneCountInString(text) > model.MaxPostLength {
		return validationError(fmt.Sprintf("text exceeds %d characters", model.MaxPostLength))
	}
	return nil
}

func parseVisibility(raw string) (model.Visibility, error) {
	if strings.TrimSpace(raw) == "" {
		return model.VisibilityPublic, nil
	}
	v := model.Visibility(strings.ToLower(strings.TrimSpace(raw)))
	if !v.Valid() {
		return "", validationError(fmt.Sprintf("unknown visibility %q", raw))
	}
	return v, nil
}

func parseBound(name, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, validationError(name + " must be an RFC 3339 timestamp")
	}
	return t.UTC(), nil
}

func postNotFound(id string) *Error {
	return &Error{Kind: KindNotFound, Code: CodePostNotFound, Message: "post " + id + " not found"}
}

func inFlightError() *Error {
	return &Error{Kind: KindConflict, Code: CodePostInFlight, Message: "post is being delivered, try again shortly"}
}
