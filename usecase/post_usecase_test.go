package usecase_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"post-planner/domain/dto"
	"post-planner/domain/model"
	"post-planner/domain/repository"
	"post-planner/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func (f *fixture) create(t *testing.T, in time.Duration, text string) *model.PlannedPost {
	t.Helper()
	p, err := f.engine.Create(context.Background(), &dto.PostCreateRequest{
		Instance:    instance,
		ScheduledAt: f.clock.Now().Add(in),
		Text:        text,
	})
	require.NoError(t, err)
	return p
}

func TestCreate_Scheduled(t *testing.T) {
	f := newFixture(t)
	f.login(t, "42")

	p := f.create(t, time.Minute, "Hello")
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, origin, p.OwnerOrigin)
	require.NotNil(t, p.OwnerAccountID)
	assert.Equal(t, "42", *p.OwnerAccountID)
	assert.Equal(t, model.PostStatusScheduled, p.Status)
	assert.Equal(t, model.VisibilityPublic, p.Visibility)
	assert.Equal(t, 0, p.Attempts)
	assert.True(t, p.CreatedAt.Equal(p.UpdatedAt))

	stored, err := f.posts.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Text, stored.Text)
	require.Len(t, f.events, 1)
	assert.Equal(t, model.PostEventCreated, f.events[0].Type)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	f.login(t, "42")
	now := f.clock.Now()

	cases := []struct {
		name string
		req  dto.PostCreateRequest
		msg  string
	}{
		{"past", dto.PostCreateRequest{Instance: instance, ScheduledAt: now.Add(-time.Second), Text: "hi"}, "future"},
		{"now", dto.PostCreateRequest{Instance: instance, ScheduledAt: now, Text: "hi"}, "future"},
		{"empty text", dto.PostCreateRequest{Instance: instance, ScheduledAt: now.Add(time.Hour), Text: "   "}, "text"},
		{"too long", dto.PostCreateRequest{Instance: instance, ScheduledAt: now.Add(time.Hour), Text: strings.Repeat("é", 501)}, "500"},
		{"visibility", dto.PostCreateRequest{Instance: instance, ScheduledAt: now.Add(time.Hour), Text: "hi", Visibility: "friends"}, "visibility"},
		{"instance", dto.PostCreateRequest{Instance: "ftp://x", ScheduledAt: now.Add(time.Hour), Text: "hi"}, "instance"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := tc.req
			_, err := f.engine.Create(context.Background(), &req)
			requireKind(t, err, usecase.KindValidation, "")
			assert.Contains(t, err.Error(), tc.msg)
		})
	}

	// exactly 500 multi-byte characters is fine
	_, err := f.engine.Create(context.Background(), &dto.PostCreateRequest{Instance: instance, ScheduledAt: now.Add(time.Hour), Text: strings.Repeat("é", 500), Visibility: "Unlisted"})
	require.NoError(t, err)
}

func TestCreate_NotLoggedIn(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Create(context.Background(), &dto.PostCreateRequest{
		Instance:    instance,
		ScheduledAt: f.clock.Now().Add(time.Hour),
		Text:        "hi",
	})
	requireKind(t, err, usecase.KindUnauthorized, usecase.CodeNotLoggedIn)
}

func TestUpdate_PastScheduleDependsOnResultingStatus(t *testing.T) {
	f := newFixture(t)
	f.login(t, "42")
	p := f.create(t, time.Hour, "Hello")
	past := f.clock.Now().Add(-time.Hour)

	_, err := f.engine.Update(context.Background(), p.ID, &dto.PostUpdateRequest{Instance: instance, ScheduledAt: &past})
	requireKind(t, err, usecase.KindValidation, usecase.CodeInvalidInput)
	assert.Contains(t, err.Error(), "future")

	f.clock.Advance(time.Second)
	updated, err := f.engine.Update(context.Background(), p.ID, &dto.PostUpdateRequest{Instance: instance, ScheduledAt: &past, Status: strPtr("draft")})
	require.NoError(t, err)
	assert.Equal(t, model.PostStatusDraft, updated.Status)
	assert.True(t, updated.ScheduledAt.Equal(past))
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))

	// scheduling the draft while moving it to a past time is refused
	earlier := past.Add(-time.Minute)
	_, err = f.engine.Update(context.Background(), p.ID, &dto.PostUpdateRequest{Instance: instance, Status: strPtr("scheduled"), ScheduledAt: &earlier})
	requireKind(t, err, usecase.KindValidation, usecase.CodeInvalidInput)

	future := f.clock.Now().Add(time.Hour)
	updated, err = f.engine.Update(context.Background(), p.ID, &dto.PostUpdateRequest{Instance: instance, Status: strPtr("scheduled"), ScheduledAt: &future, Text: strPtr("Edited"), Visibility: strPtr("private")})
	require.NoError(t, err)
	assert.Equal(t, model.PostStatusScheduled, updated.Status)
	assert.Equal(t, "Edited", updated.Text)
	assert.Equal(t, model.VisibilityPrivate, updated.Visibility)
}

func TestUpdate_Transitions(t *testing.T) {
	f := newFixture(t)
	f.login(t, "42")
	ctx := context.Background()

	p := f.create(t, time.Hour, "Hello")
	_, err := f.engine.Update(ctx, p.ID, &dto.PostUpdateRequest{Instance: instance, Status: strPtr("sent")})
	requireKind(t, err, usecase.KindValidation, usecase.CodeInvalidTransition)

	canceled, err := f.engine.Update(ctx, p.ID, &dto.PostUpdateRequest{Instance: instance, Status: strPtr("canceled")})
	require.NoError(t, err)
	assert.Equal(t, model.PostStatusCanceled, canceled.Status)

	_, err = f.engine.Update(ctx, p.ID, &dto.PostUpdateRequest{Instance: instance, Status: strPtr("scheduled")})
	requireKind(t, err, usecase.KindValidation, usecase.CodeInvalidTransition)

	_, err = f.engine.Update(ctx, p.ID, &dto.PostUpdateRequest{Instance: instance, Status: strPtr("bogus")})
	requireKind(t, err, usecase.KindValidation, "")

	// failed posts can be re-armed and keep their attempt count
	failed := f.create(t, time.Hour, "Again")
	failed.Status = model.PostStatusFailed
	failed.Attempts = 2
	failed.LastError = strPtr(repository.RemoteUpstream)
	require.NoError(t, f.posts.Save(ctx, failed))

	_, err = f.engine.Update(ctx, failed.ID, &dto.PostUpdateRequest{Instance: instance, Status: strPtr("canceled")})
	requireKind(t, err, usecase.KindValidation, usecase.CodeInvalidTransition)

	rearmed, err := f.engine.Update(ctx, failed.ID, &dto.PostUpdateRequest{Instance: instance, Status: strPtr("scheduled")})
	require.NoError(t, err)
	assert.Equal(t, model.PostStatusScheduled, rearmed.Status)
	assert.Equal(t, 2, rearmed.Attempts)
	assert.Nil(t, rearmed.LastError)

}

func TestUpdate_RetryFailedPostWithoutNewTime(t *testing.T) {
	f := newFixture(t)
	f.login(t, "42")
	ctx := context.Background()

	failed := f.create(t, time.Minute, "Retry me")
	failed.Status = model.PostStatusFailed
	failed.Attempts = 1
	failed.LastError = strPtr(repository.RemoteUnreachable)
	require.NoError(t, f.posts.Save(ctx, failed))
	f.clock.Advance(time.Hour)

	rearmed, err := f.engine.Update(ctx, failed.ID, &dto.PostUpdateRequest{Instance: instance, Status: strPtr("scheduled")})
	require.NoError(t, err)
	assert.Equal(t, model.PostStatusScheduled, rearmed.Status)
	assert.True(t, rearmed.ScheduledAt.Equal(failed.ScheduledAt))
	assert.Nil(t, rearmed.LastError)
	assert.Equal(t, 1, rearmed.Attempts)
}

func TestUpdateAndDelete_PostLeftInSending(t *testing.T) {
	f := newFixture(t)
	f.login(t, "42")
	ctx := context.Background()

	stuck := f.create(t, time.Hour, "Stuck")
	stuck.Status = model.PostStatusSending
	require.NoError(t, f.posts.Save(ctx, stuck))

	// no delivery holds the post, so the user may move it on
	_, err := f.engine.Update(ctx, stuck.ID, &dto.PostUpdateRequest{Instance: instance, Text: strPtr("x")})
	requireKind(t, err, usecase.KindValidation, usecase.CodeInvalidTransition)
	draft, err := f.engine.Update(ctx, stuck.ID, &dto.PostUpdateRequest{Instance: instance, Status: strPtr("draft")})
	require.NoError(t, err)
	assert.Equal(t, model.PostStatusDraft, draft.Status)

	other := f.create(t, time.Hour, "Also stuck")
	other.Status = model.PostStatusSending
	require.NoError(t, f.posts.Save(ctx, other))
	require.NoError(t, f.engine.Delete(ctx, other.ID, instance))
	_, err = f.posts.Get(ctx, other.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUpdate_OwnershipAndNotFound(t *testing.T) {
	f := newFixture(t)
	f.login(t, "42")
	p := f.create(t, time.Hour, "Hello")

	_, err := f.engine.Update(context.Background(), "missing", &dto.PostUpdateRequest{Instance: instance, Text: strPtr("x")})
	requireKind(t, err, usecase.KindNotFound, usecase.CodePostNotFound)

	f.login(t, "99")
	_, err = f.engine.Update(context.Background(), p.ID, &dto.PostUpdateRequest{Instance: instance, Text: strPtr("x")})
	requireKind(t, err, usecase.KindForbidden, usecase.CodeNotOwner)
	err = f.engine.Delete(context.Background(), p.ID, instance)
	requireKind(t, err, usecase.KindForbidden, usecase.CodeNotOwner)

	_, err = f.engine.Update(context.Background(), p.ID, &dto.PostUpdateRequest{Instance: "other.example", Text: strPtr("x")})
	requireKind(t, err, usecase.KindUnauthorized, usecase.CodeNotLoggedIn)
}

func TestDelete_Twice(t *testing.T) {
	f := newFixture(t)
	f.login(t, "42")
	p := f.create(t, time.Hour, "Hello")

	require.NoError(t, f.engine.Delete(context.Background(), p.ID, instance))
	err := f.engine.Delete(context.Background(), p.ID, instance)
	requireKind(t, err, usecase.KindNotFound, usecase.CodePostNotFound)
}

func TestList_Window(t *testing.T) {
	f := newFixture(t)
	f.login(t, "42")
	t0 := f.clock.Now()
	for i := 1; i <= 4; i++ {
		f.create(t, time.Duration(5-i)*time.Hour, fmt.Sprintf("post %d", i))
	}
	f.login(t, "99")
	f.create(t, 2*time.Hour, "someone else")
	f.login(t, "42")

	posts, err := f.engine.List(context.Background(), &dto.PostListQuery{
		Instance: instance,
		From:     t0.Add(2 * time.Hour).Format(time.RFC3339),
		To:       t0.Add(4 * time.Hour).Format(time.RFC3339),
	})
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "post 3", posts[0].Text)
	assert.Equal(t, "post 2", posts[1].Text)

	all, err := f.engine.List(context.Background(), &dto.PostListQuery{Instance: instance})
	require.NoError(t, err)
	assert.Len(t, all, 4)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].ScheduledAt.Before(all[i-1].ScheduledAt))
	}

	_, err = f.engine.List(context.Background(), &dto.PostListQuery{Instance: instance, From: "yesterday"})
	requireKind(t, err, usecase.KindValidation, "")
}

func statusAt(id string, ts string) model.RemoteStatus {
	created, _ := time.Parse(time.RFC3339, ts)
	return model.RemoteStatus{ID: id, CreatedAt: created, Content: "<p>" + id + "</p>", Visibility: "public"}
}

func TestOnThisDay_PagesAndFilters(t *testing.T) {
	f := newFixture(t)
	f.login(t, "42")
	f.engine = usecase.NewPostEngine(f.posts, f.creds, f.remote, usecase.EngineConfig{Now: f.clock.Now, HistoryPageSize: 2, HistoryPages: 3})

	page1 := []model.RemoteStatus{statusAt("9", "2024-03-01T08:00:00Z"), statusAt("8", "2023-03-01T10:00:00Z")}
	reblog := statusAt("7", "2022-03-01T10:00:00Z")
	reblog.Reblogged = true
	page2 := []model.RemoteStatus{reblog, statusAt("6", "2022-02-28T10:00:00Z")}
	page3 := []model.RemoteStatus{statusAt("5", "2021-03-01T23:00:00Z")}

	f.remote.On("AccountStatuses", mock.Anything, origin, "tok-42", "42", "", 2).Return(page1, nil).Once()
	f.remote.On("AccountStatuses", mock.Anything, origin, "tok-42", "42", "8", 2).Return(page2, nil).Once()
	f.remote.On("AccountStatuses", mock.Anything, origin, "tok-42", "42", "6", 2).Return(page3, nil).Once()

	posts, err := f.engine.OnThisDay(context.Background(), &dto.OnThisDayQuery{Instance: instance, Month: 3, Day: 1})
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "8", posts[0].ID)
	assert.Equal(t, 2023, posts[0].Year)
	assert.Equal(t, "5", posts[1].ID)
	f.remote.AssertExpectations(t)
}

func TestOnThisDay_StopsAtPageLimit(t *testing.T) {
	f := newFixture(t)
	f.login(t, "42")

	full := make([]model.RemoteStatus, 40)
	for i := range full {
		full[i] = statusAt(fmt.Sprintf("%d", 1000-i), "2020-06-15T10:00:00Z")
	}
	f.remote.On("AccountStatuses", mock.Anything, origin, "tok-42", "42", mock.Anything, 40).Return(full, nil)

	posts, err := f.engine.OnThisDay(context.Background(), &dto.OnThisDayQuery{Instance: instance, Month: 6, Day: 15, BeforeYear: 2021})
	require.NoError(t, err)
	assert.Len(t, posts, 8*40)
	f.remote.AssertNumberOfCalls(t, "AccountStatuses", 8)
}

func TestOnThisDay_Errors(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.OnThisDay(context.Background(), &dto.OnThisDayQuery{Instance: instance, Month: 3, Day: 1})
	requireKind(t, err, usecase.KindUnauthorized, usecase.CodeNotLoggedIn)

	f.login(t, "42")
	_, err = f.engine.OnThisDay(context.Background(), &dto.OnThisDayQuery{Instance: instance, Month: 2, Day: 30})
	requireKind(t, err, usecase.KindValidation, "")

	f.remote.On("AccountStatuses", mock.Anything, origin, "tok-42", "42", "", 40).
		Return(nil, &repository.RemoteError{Code: repository.RemoteTokenRejected, Op: "account statuses", Status: 401}).Once()
	_, err = f.engine.OnThisDay(context.Background(), &dto.OnThisDayQuery{Instance: instance, Month: 3, Day: 1})
	requireKind(t, err, usecase.KindUnauthorized, repository.RemoteTokenRejected)
	f.loggedOut(t)
}
