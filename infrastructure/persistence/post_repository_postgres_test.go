package persistence

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"post-planner/domain/model"
	"post-planner/domain/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var postRowColumns = []string{"id", "owner_origin", "owner_account_id", "scheduled_at", "text", "visibility", "status", "attempts", "last_error", "sent_at", "remote_id", "created_at", "updated_at"}

func TestPostRepository_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostRepository(db)
	at := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM planned_posts WHERE id=$1`)).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows(postRowColumns).
			AddRow("p1", origin, "42", at, "Hello", "unlisted", "failed", 2, "token_rejected", nil, nil, at, at))

	p, err := repo.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, model.VisibilityUnlisted, p.Visibility)
	assert.Equal(t, model.PostStatusFailed, p.Status)
	assert.Equal(t, 2, p.Attempts)
	require.NotNil(t, p.LastError)
	assert.Equal(t, "token_rejected", *p.LastError)
	require.NotNil(t, p.OwnerAccountID)
	assert.Equal(t, "42", *p.OwnerAccountID)
	assert.Nil(t, p.RemoteID)
	assert.Nil(t, p.SentAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepository_GetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM planned_posts WHERE id=$1`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(postRowColumns))

	_, err = NewPostRepository(db).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepository_SaveAllCommitsOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Now().UTC()
	posts := []*model.PlannedPost{newPost("a", at), newPost("b", at)}

	mock.ExpectBegin()
	for range posts {
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO planned_posts`)).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	require.NoError(t, NewPostRepository(db).SaveAll(context.Background(), posts))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepository_SaveAllRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO planned_posts`)).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = NewPostRepository(db).SaveAll(context.Background(), []*model.PlannedPost{newPost("a", time.Now())})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepository_DeleteMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM planned_posts WHERE id=$1`)).
		WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, NewPostRepository(db).Delete(context.Background(), "gone"), repository.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepository_ListWindow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	from := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE owner_origin=$1 AND owner_account_id=$2 AND scheduled_at >= $3 AND scheduled_at < $4 ORDER BY scheduled_at ASC, id ASC`)).
		WithArgs(origin, "42", from, to).
		WillReturnRows(sqlmock.NewRows(postRowColumns).
			AddRow("p1", origin, "42", from, "one", "public", "scheduled", 0, nil, nil, nil, from, from).
			AddRow("p2", origin, "42", from.Add(time.Hour), "two", "public", "sent", 1, nil, from, "99", from, from))

	list, err := NewPostRepository(db).List(context.Background(), model.PostFilter{Origin: origin, AccountID: "42", From: from, To: to})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "p1", list[0].ID)
	require.NotNil(t, list[1].RemoteID)
	assert.Equal(t, "99", *list[1].RemoteID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsurePostSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS planned_posts`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE INDEX IF NOT EXISTS idx_planned_posts_status_scheduled_at`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE INDEX IF NOT EXISTS idx_planned_posts_owner`)).WillReturnError(errors.New("permission denied"))

	require.NoError(t, EnsurePostSchema(db))
	require.NoError(t, mock.ExpectationsWereMet())
}
