package repository

import (
	"context"
	"errors"
	"time"

	"post-planner/domain/model"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("record not found")

// IPost is the durable store of planned posts. Every mutating call is committed
// (flushed) before it returns.
type IPost interface {
	Get(ctx context.Context, id string) (*model.PlannedPost, error)
	Save(ctx context.Context, post *model.PlannedPost) error
	// SaveAll upserts a batch and commits it once.
	SaveAll(ctx context.Context, posts []*model.PlannedPost) error
	Delete(ctx context.Context, id string) error
	// List returns posts matching the filter ordered by ScheduledAt then ID.
	List(ctx context.Context, filter model.PostFilter) ([]*model.PlannedPost, error)
	// ListByStatus returns posts in the given status with ScheduledAt <= dueBefore.
	// A zero dueBefore disables the time bound.
	ListByStatus(ctx context.Context, status model.PostStatus, dueBefore time.Time) ([]*model.PlannedPost, error)
}
