package usecase

import (
	"context"
	"errors"
	"time"

	"post-planner/domain/model"
	"post-planner/domain/repository"
	"post-planner/infrastructure/logger"
)

// IScheduler drives delivery of due posts.
type IScheduler interface {
	// Run ticks until ctx is canceled. Ticks never overlap.
	Run(ctx context.Context) error
	Tick(ctx context.Context) error
	// RecoverStuck re-arms posts left in sending by an interrupted run.
	RecoverStuck(ctx context.Context) (int, error)
}

func (e *PostEngine) Run(ctx context.Context) error {
	lg := logger.GetLogger()
	lg.WithField("interval", e.cfg.TickInterval.String()).Info("scheduler started")
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	for {
		if err := e.Tick(ctx); err != nil {
			lg.WithField("error", err).Error("scheduler tick failed")
		}
		select {
		case <-ctx.Done():
			lg.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick claims every due post, persists the claim once, then delivers them one
// by one. A failure to deliver one post never affects the others. Once claimed,
// the batch is finished even if ctx is canceled: a delivery that started runs to
// completion and posts not yet started go back to scheduled.
func (e *PostEngine) Tick(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}
	now := e.now()
	due, err := e.postRepo.ListByStatus(ctx, model.PostStatusScheduled, now)
	if err != nil {
		return storeError("listing due posts failed", err)
	}
	claimed := make([]*model.PlannedPost, 0, len(due))
	for _, p := range due {
		if post := e.claim(ctx, p.ID, now); post != nil {
			claimed = append(claimed, post)
		}
	}
	if len(claimed) == 0 {
		return nil
	}
	if err := e.postRepo.SaveAll(ctx, claimed); err != nil {
		for _, p := range claimed {
			e.locks.release(p.ID)
		}
		return storeError("marking posts as sending failed", err)
	}
	for _, p := range claimed {
		e.emit(model.PostEventStatus, p)
	}

	batchCtx := context.WithoutCancel(ctx)
	var unsaved []*model.PlannedPost
	for _, p := range claimed {
		if ctx.Err() != nil {
			p.Status = model.PostStatusScheduled
			p.UpdatedAt = e.now()
			logger.GetLogger().WithField("post_id", p.ID).Info("shutdown requested, post handed back to the schedule")
		} else {
			e.deliver(batchCtx, p)
		}
		if err := e.postRepo.Save(batchCtx, p); err != nil {
			logger.GetLogger().WithFields(map[string]interface{}{"post_id": p.ID, "error": err}).Error("recording delivery outcome failed")
			unsaved = append(unsaved, p)
		} else {
			e.emit(model.PostEventStatus, p)
		}
		e.locks.release(p.ID)
	}
	if len(unsaved) > 0 {
		if err := e.postRepo.SaveAll(batchCtx, unsaved); err != nil {
			return storeError("recording delivery outcomes failed", err)
		}
		for _, p := range unsaved {
			e.emit(model.PostEventStatus, p)
		}
	}
	return nil
}

// claim takes the marker for id and re-reads the post under it. The listing is
// a snapshot, so a user may have deleted, canceled or rescheduled the post since.
func (e *PostEngine) claim(ctx context.Context, id string, now time.Time) *model.PlannedPost {
	if !e.locks.acquire(id) {
		return nil
	}
	post, err := e.postRepo.Get(ctx, id)
	if err != nil || post.Status != model.PostStatusScheduled || post.ScheduledAt.After(now) {
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			logger.GetLogger().WithFields(map[string]interface{}{"post_id": id, "error": err}).Error("re-reading due post failed")
		}
		e.locks.release(id)
		return nil
	}
	post.Status = model.PostStatusSending
	post.UpdatedAt = now
	return post
}

// deliver publishes p and records the outcome on it in memory.
func (e *PostEngine) deliver(ctx context.Context, p *model.PlannedPost) {
	lg := logger.GetLogger().WithFields(map[string]interface{}{"post_id": p.ID, "origin": p.OwnerOrigin})
	fail := func(code string) {
		p.Status = model.PostStatusFailed
		p.Attempts++
		p.LastError = &code
		p.UpdatedAt = e.now()
		lg.WithFields(map[string]interface{}{"code": code, "attempts": p.Attempts}).Warn("post delivery failed")
	}

	if p.OwnerAccountID == nil {
		fail(CodeMissingOwner)
		return
	}
	identity, err := e.creds.ResolveIdentity(ctx, p.OwnerOrigin)
	if err != nil {
		fail(failureCode(err))
		return
	}
	if identity.ID != *p.OwnerAccountID {
		fail(CodeAccountMismatch)
		return
	}
	tok, err := e.creds.Token(ctx, p.OwnerOrigin)
	if err != nil {
		fail(failureCode(err))
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, e.cfg.PublishTimeout)
	remoteID, err := e.remote.PublishStatus(pubCtx, p.OwnerOrigin, tok.AccessToken, model.StatusDraft{Text: p.Text, Visibility: p.Visibility})
	cancel()
	if err != nil {
		if repository.IsTokenRejected(err) {
			if invErr := e.creds.Invalidate(ctx, p.OwnerOrigin); invErr != nil {
				lg.WithField("error", invErr).Error("invalidating rejected credentials failed")
			}
		}
		lg.WithField("error", err).Debug("publish returned an error")
		fail(repository.RemoteErrorCode(err))
		return
	}

	now := e.now()
	p.Status = model.PostStatusSent
	p.SentAt = &now
	p.RemoteID = &remoteID
	p.LastError = nil
	p.UpdatedAt = now
	lg.WithField("remote_id", remoteID).Info("post delivered")
}

// failureCode picks the lastError code for a failed credential lookup.
func failureCode(err error) string {
	if ue, ok := AsError(err); ok && ue.Code != "" {
		return ue.Code
	}
	return repository.RemoteErrorCode(err)
}

func (e *PostEngine) RecoverStuck(ctx context.Context) (int, error) {
	stuck, err := e.postRepo.ListByStatus(ctx, model.PostStatusSending, time.Time{})
	if err != nil {
		return 0, storeError("listing stuck posts failed", err)
	}
	now := e.now()
	rearmed := make([]*model.PlannedPost, 0, len(stuck))
	for _, p := range stuck {
		if e.locks.held(p.ID) {
			continue
		}
		p.Status = model.PostStatusScheduled
		p.UpdatedAt = now
		rearmed = append(rearmed, p)
	}
	if len(rearmed) == 0 {
		return 0, nil
	}
	if err := e.postRepo.SaveAll(ctx, rearmed); err != nil {
		return 0, storeError("re-arming stuck posts failed", err)
	}
	for _, p := range rearmed {
		logger.GetLogger().WithField("post_id", p.ID).Warn("post found in sending at startup, re-armed")
		e.emit(model.PostEventStatus, p)
	}
	return len(rearmed), nil
}
