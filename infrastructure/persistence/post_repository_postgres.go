package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"post-planner/domain/model"
	"post-planner/domain/repository"
)

const postColumns = `id, owner_origin, owner_account_id, scheduled_at, text, visibility, status, attempts, last_error, sent_at, remote_id, created_at, updated_at`

const upsertPostQuery = `INSERT INTO planned_posts (` + postColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET
			owner_origin=EXCLUDED.owner_origin,
			owner_account_id=EXCLUDED.owner_account_id,
			scheduled_at=EXCLUDED.scheduled_at,
			text=EXCLUDED.text,
			visibility=EXCLUDED.visibility,
			status=EXCLUDED.status,
			attempts=EXCLUDED.attempts,
			last_error=EXCLUDED.last_error,
			sent_at=EXCLUDED.sent_at,
			remote_id=EXCLUDED.remote_id,
			updated_at=EXCLUDED.updated_at`

// PostRepository implements planned post persistence on PostgreSQL.
type PostRepository struct {
	db *sql.DB
}

var _ repository.IPost = (*PostRepository)(nil)

func NewPostRepository(db *sql.DB) *PostRepository { return &PostRepository{db: db} }

func (r *PostRepository) Get(ctx context.Context, id string) (*model.PlannedPost, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM planned_posts WHERE id=$1`, id)
	p, err := scanPost(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *PostRepository) Save(ctx context.Context, post *model.PlannedPost) error {
	_, err := r.db.ExecContext(ctx, upsertPostQuery, postArgs(post)...)
	return err
}

func (r *PostRepository) SaveAll(ctx context.Context, posts []*model.PlannedPost) (err error) {
	if len(posts) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, p := range posts {
		if _, err = tx.ExecContext(ctx, upsertPostQuery, postArgs(p)...); err != nil {
			return fmt.Errorf("upsert post %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

func (r *PostRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM planned_posts WHERE id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *PostRepository) List(ctx context.Context, filter model.PostFilter) ([]*model.PlannedPost, error) {
	conds := []string{"owner_origin=$1", "owner_account_id=$2"}
	args := []interface{}{filter.Origin, filter.AccountID}
	if !filter.From.IsZero() {
		args = append(args, filter.From.UTC())
		conds = append(conds, fmt.Sprintf("scheduled_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To.UTC())
		conds = append(conds, fmt.Sprintf("scheduled_at < $%d", len(args)))
	}
	q := `SELECT ` + postColumns + ` FROM planned_posts WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY scheduled_at ASC, id ASC`
	return r.query(ctx, q, args...)
}

func (r *PostRepository) ListByStatus(ctx context.Context, status model.PostStatus, dueBefore time.Time) ([]*model.PlannedPost, error) {
	if dueBefore.IsZero() {
		return r.query(ctx, `SELECT `+postColumns+` FROM planned_posts WHERE status=$1 ORDER BY scheduled_at ASC, id ASC`, string(status))
	}
	return r.query(ctx, `SELECT `+postColumns+` FROM planned_posts WHERE status=$1 AND scheduled_at <= $2 ORDER BY scheduled_at ASC, id ASC`, string(status), dueBefore.UTC())
}

func (r *PostRepository) query(ctx context.Context, q string, args ...interface{}) ([]*model.PlannedPost, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := make([]*model.PlannedPost, 0)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPost(row rowScanner) (*model.PlannedPost, error) {
	p := &model.PlannedPost{}
	var ownerAccount, lastError, remoteID sql.NullString
	var sentAt sql.NullTime
	var visibility, status string
	if err := row.Scan(&p.ID, &p.OwnerOrigin, &ownerAccount, &p.ScheduledAt, &p.Text, &visibility, &status, &p.Attempts, &lastError, &sentAt, &remoteID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Visibility = model.Visibility(visibility)
	p.Status = model.PostStatus(status)
	if ownerAccount.Valid {
		v := ownerAccount.String
		p.OwnerAccountID = &v
	}
	if lastError.Valid {
		v := lastError.String
		p.LastError = &v
	}
	if remoteID.Valid {
		v := remoteID.String
		p.RemoteID = &v
	}
	if sentAt.Valid {
		v := sentAt.Time
		p.SentAt = &v
	}
	return p, nil
}

func postArgs(p *model.PlannedPost) []interface{} {
	var sentAt sql.NullTime
	if p.SentAt != nil {
		sentAt = sql.NullTime{Time: p.SentAt.UTC(), Valid: true}
	}
	return []interface{}{
		p.ID, p.OwnerOrigin, nullString(p.OwnerAccountID), p.ScheduledAt.UTC(), p.Text,
		string(p.Visibility), string(p.Status), p.Attempts, nullString(p.LastError),
		sentAt, nullString(p.RemoteID), p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
