package courses

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vovakirdan/campus-server/internal/store"
	"github.com/vovakirdan/campus-server/internal/store/sqlstore"
)

type fixture struct {
	svc    *Service
	st     *sqlstore.Store
	public *store.CourseSummary
	member *store.CourseSummary
	users  map[store.Role]*store.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st, err := sqlstore.New(ctx, sqlstore.Options{Driver: sqlstore.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f := &fixture{svc: New(st), st: st, users: map[store.Role]*store.User{}}
	for _, role := range []store.Role{store.RoleUser, store.RoleMember, store.RoleAdmin} {
		u, err := st.CreateUser(ctx, string(role)+"@example.com", "hash", role)
		require.NoError(t, err)
		f.users[role] = u
	}

	f.public, err = f.svc.CreateCourse(ctx, CourseInput{Title: "Go Basics", Slug: "go-basics", Visibility: store.VisibilityPublic})
	require.NoError(t, err)
	f.member, err = f.svc.CreateCourse(ctx, CourseInput{Title: "Go Internals", Slug: "go-internals", Visibility: store.VisibilityMember})
	require.NoError(t, err)
	return f
}

func (f *fixture) lesson(t *testing.T, courseID int64, index int, published bool) *store.Lesson {
	t.Helper()
	l, err := f.svc.CreateLesson(context.Background(), LessonInput{
		CourseID:   courseID,
		Index:      index,
		Title:      "Lesson",
		ContentURL: "lessons/video.mp4",
		Published:  published,
	})
	require.NoError(t, err)
	return l
}

func slugs(items []*store.CourseSummary) []string {
	out := make([]string, 0, len(items))
	for _, c := range items {
		out = append(out, c.Slug)
	}
	return out
}

func TestListVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		viewer *store.User
		params ListParams
		want   []string
	}{
		{name: "anonymous", viewer: nil, want: []string{"go-basics"}},
		{name: "user", viewer: f.users[store.RoleUser], want: []string{"go-basics"}},
		{name: "member", viewer: f.users[store.RoleMember], want: []string{"go-basics", "go-internals"}},
		{name: "admin", viewer: f.users[store.RoleAdmin], want: []string{"go-basics", "go-internals"}},
		{
			name:   "anonymous asking for member courses",
			viewer: nil,
			params: ListParams{Visibility: store.VisibilityMember},
			want:   []string{},
		},
		{
			name:   "member narrowing to member courses",
			viewer: f.users[store.RoleMember],
			params: ListParams{Visibility: store.VisibilityMember},
			want:   []string{"go-internals"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := f.svc.List(ctx, tt.viewer, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, slugs(page.Items))
			if len(tt.want) == 0 {
				assert.Nil(t, page.NextCursor)
			}
		})
	}
}

func TestListPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.users[store.RoleAdmin]
	f.lesson(t, f.public.ID, 1, true)
	f.lesson(t, f.public.ID, 2, false)

	page, err := f.svc.List(ctx, admin, ListParams{Limit: 1})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "go-basics", page.Items[0].Slug)
	assert.Equal(t, 2, page.Items[0].LessonsCount)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, f.public.ID, *page.NextCursor)

	page, err = f.svc.List(ctx, admin, ListParams{Limit: 1, Cursor: *page.NextCursor})
	require.NoError(t, err)
	assert.Equal(t, []string{"go-internals"}, slugs(page.Items))

	page, err = f.svc.List(ctx, admin, ListParams{Limit: 1, Cursor: *page.NextCursor})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Nil(t, page.NextCursor)

	for _, params := range []ListParams{{Limit: MaxPageSize + 1}, {Limit: -1}, {Visibility: "secret"}, {Cursor: -5}} {
		_, err := f.svc.List(ctx, admin, params)
		assert.ErrorIs(t, err, ErrInvalidInput, "params %+v", params)
	}
}

func TestGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l2 := f.lesson(t, f.public.ID, 2, true)
	l1 := f.lesson(t, f.public.ID, 1, true)
	f.lesson(t, f.public.ID, 3, false)
	l4 := f.lesson(t, f.public.ID, 4, true)

	detail, err := f.svc.Get(ctx, nil, "go-basics")
	require.NoError(t, err)
	assert.Equal(t, 3, detail.Course.LessonsCount)
	require.Len(t, detail.Lessons, 3)
	assert.Equal(t, []int64{l1.ID, l2.ID, l4.ID}, []int64{detail.Lessons[0].ID, detail.Lessons[1].ID, detail.Lessons[2].ID})
	assert.Nil(t, detail.Progress)

	user := f.users[store.RoleUser]
	detail, err = f.svc.Get(ctx, user, "go-basics")
	require.NoError(t, err)
	require.NotNil(t, detail.Progress)
	assert.Equal(t, 0, *detail.Progress)

	require.NoError(t, f.svc.MarkProgress(ctx, user.ID, ProgressInput{LessonID: l1.ID, Status: store.ProgressDone, Percent: 100}))
	require.NoError(t, f.svc.MarkProgress(ctx, user.ID, ProgressInput{LessonID: l2.ID, Status: store.ProgressInProgress, Percent: 40}))
	detail, err = f.svc.Get(ctx, user, "go-basics")
	require.NoError(t, err)
	assert.Equal(t, 33, *detail.Progress)

	require.NoError(t, f.svc.MarkProgress(ctx, user.ID, ProgressInput{LessonID: l2.ID, Status: store.ProgressDone, Percent: 100}))
	detail, err = f.svc.Get(ctx, user, "go-basics")
	require.NoError(t, err)
	assert.Equal(t, 66, *detail.Progress)
}

func TestGetAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Get(ctx, nil, "missing")
	assert.ErrorIs(t, err, ErrCourseNotFound)

	_, err = f.svc.Get(ctx, nil, "go-internals")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.Get(ctx, f.users[store.RoleUser], "go-internals")
	assert.ErrorIs(t, err, ErrForbidden)

	detail, err := f.svc.Get(ctx, f.users[store.RoleMember], "go-internals")
	require.NoError(t, err)
	assert.Empty(t, detail.Lessons)
	assert.Nil(t, detail.Progress, "no progress for a course without published lessons")
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cover := "not a url"

	_, err := f.svc.CreateCourse(ctx, CourseInput{Title: "Dup", Slug: "go-basics", Visibility: store.VisibilityPublic})
	assert.ErrorIs(t, err, ErrSlugTaken)

	bad := []CourseInput{
		{Slug: "no-title", Visibility: store.VisibilityPublic},
		{Title: "Bad slug", Slug: "Bad Slug", Visibility: store.VisibilityPublic},
		{Title: "Bad visibility", Slug: "bad-visibility", Visibility: "private"},
		{Title: "Bad cover", Slug: "bad-cover", Visibility: store.VisibilityPublic, CoverURL: &cover},
	}
	for _, in := range bad {
		_, err := f.svc.CreateCourse(ctx, in)
		assert.ErrorIs(t, err, ErrInvalidInput, "input %+v", in)
	}

	_, err = f.svc.CreateLesson(ctx, LessonInput{CourseID: 999, Title: "Orphan", ContentURL: "x.mp4"})
	assert.ErrorIs(t, err, ErrCourseNotFound)
	_, err = f.svc.CreateLesson(ctx, LessonInput{CourseID: f.public.ID, ContentURL: "x.mp4"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	l, err := f.svc.CreateLesson(ctx, LessonInput{CourseID: f.public.ID, Title: "Draft", ContentURL: "x.mp4"})
	require.NoError(t, err)
	assert.False(t, l.Published)
}

func TestMarkProgressValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.users[store.RoleUser]
	l := f.lesson(t, f.public.ID, 1, true)

	tests := []struct {
		name string
		in   ProgressInput
		want error
	}{
		{name: "unknown status", in: ProgressInput{LessonID: l.ID, Status: "started", Percent: 10}, want: ErrInvalidInput},
		{name: "percent above range", in: ProgressInput{LessonID: l.ID, Status: store.ProgressDone, Percent: 101}, want: ErrInvalidInput},
		{name: "negative percent", in: ProgressInput{LessonID: l.ID, Status: store.ProgressDone, Percent: -1}, want: ErrInvalidInput},
		{name: "missing lesson", in: ProgressInput{LessonID: 999, Status: store.ProgressDone, Percent: 100}, want: ErrLessonNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, f.svc.MarkProgress(ctx, user.ID, tt.in), tt.want)
		})
	}
}
