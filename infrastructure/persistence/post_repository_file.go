package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"post-planner/domain/model"
	"post-planner/domain/repository"
)

type postsDocument struct {
	Posts []*model.PlannedPost `json:"posts"`
}

// PostFileRepository keeps all planned posts in memory and rewrites a single
// JSON document on every mutation.
type PostFileRepository struct {
	mu    sync.RWMutex
	path  string
	posts map[string]*model.PlannedPost
}

var _ repository.IPost = (*PostFileRepository)(nil)

// NewPostFileRepository loads path (missing or malformed files yield an empty store).
func NewPostFileRepository(path string) *PostFileRepository {
	r := &PostFileRepository{path: path, posts: map[string]*model.PlannedPost{}}
	var doc postsDocument
	readJSONFile(path, &doc)
	for _, p := range doc.Posts {
		if p == nil || p.ID == "" {
			continue
		}
		r.posts[p.ID] = p
	}
	return r
}

func (r *PostFileRepository) Get(_ context.Context, id string) (*model.PlannedPost, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.posts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *PostFileRepository) Save(ctx context.Context, post *model.PlannedPost) error {
	return r.SaveAll(ctx, []*model.PlannedPost{post})
}

func (r *PostFileRepository) SaveAll(_ context.Context, posts []*model.PlannedPost) error {
	if len(posts) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := make(map[string]*model.PlannedPost, len(posts))
	for _, p := range posts {
		if _, seen := previous[p.ID]; !seen {
			previous[p.ID] = r.posts[p.ID]
		}
		r.posts[p.ID] = p.Clone()
	}
	if err := r.flushLocked(); err != nil {
		for id, old := range previous {
			if old == nil {
				delete(r.posts, id)
			} else {
				r.posts[id] = old
			}
		}
		return err
	}
	return nil
}

func (r *PostFileRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.posts[id]
	if !ok {
		return repository.ErrNotFound
	}
	delete(r.posts, id)
	if err := r.flushLocked(); err != nil {
		r.posts[id] = old
		return err
	}
	return nil
}

func (r *PostFileRepository) List(_ context.Context, filter model.PostFilter) ([]*model.PlannedPost, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.PlannedPost, 0)
	for _, p := range r.posts {
		if filter.Matches(p) {
			out = append(out, p.Clone())
		}
	}
	sortBySchedule(out)
	return out, nil
}

func (r *PostFileRepository) ListByStatus(_ context.Context, status model.PostStatus, dueBefore time.Time) ([]*model.PlannedPost, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.PlannedPost, 0)
	for _, p := range r.posts {
		if p.Status != status {
			continue
		}
		if !dueBefore.IsZero() && p.ScheduledAt.After(dueBefore) {
			continue
		}
		out = append(out, p.Clone())
	}
	sortBySchedule(out)
	return out, nil
}

func (r *PostFileRepository) flushLocked() error {
	doc := postsDocument{Posts: make([]*model.PlannedPost, 0, len(r.posts))}
	for _, p := range r.posts {
		doc.Posts = append(doc.Posts, p)
	}
	sortBySchedule(doc.Posts)
	return writeJSONAtomic(r.path, doc)
}

// sortBySchedule orders by the ISO-8601 rendering of ScheduledAt, ties by ID.
func sortBySchedule(posts []*model.PlannedPost) {
	sort.SliceStable(posts, func(i, j int) bool {
		a, b := posts[i], posts[j]
		if !a.ScheduledAt.Equal(b.ScheduledAt) {
			return a.ScheduledAt.Before(b.ScheduledAt)
		}
		return a.ID < b.ID
	})
}
