package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/vovakirdan/campus-server/internal/store"
)

// ==== CourseStore implementation ====

// ListCourses returns courses with their lesson counts, ordered by id and
// starting after filter.AfterID.
func (q *queries) ListCourses(ctx context.Context, filter store.CourseFilter) ([]*store.CourseSummary, error) {
	if len(filter.Visibilities) == 0 {
		return []*store.CourseSummary{}, nil
	}

	query, args, err := sqlx.In(`
		SELECT c.id, c.title, c.slug, c.visibility, c.cover_url, COUNT(l.id) AS lessons_count
		FROM courses c
		LEFT JOIN lessons l ON l.course_id = c.id
		WHERE c.visibility IN (?) AND c.id > ?
		GROUP BY c.id, c.title, c.slug, c.visibility, c.cover_url
		ORDER BY c.id
		LIMIT ?
	`, filter.Visibilities, filter.AfterID, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("build course query: %w", err)
	}

	courses := []*store.CourseSummary{}
	if err := q.selectAll(ctx, &courses, query, args...); err != nil {
		return nil, mapErr("list courses", err)
	}
	return courses, nil
}

// GetCourseByID retrieves a course by ID.
func (q *queries) GetCourseByID(ctx context.Context, id int64) (*store.Course, error) {
	var course store.Course
	query := `SELECT id, title, slug, visibility, cover_url FROM courses WHERE id = ?`
	if err := q.get(ctx, &course, query, id); err != nil {
		return nil, mapErr("query course", err)
	}
	return &course, nil
}

// GetCourseBySlug retrieves a course by slug.
func (q *queries) GetCourseBySlug(ctx context.Context, slug string) (*store.Course, error) {
	var course store.Course
	query := `SELECT id, title, slug, visibility, cover_url FROM courses WHERE slug = ?`
	if err := q.get(ctx, &course, query, slug); err != nil {
		return nil, mapErr("query course", err)
	}
	return &course, nil
}

// CreateCourse inserts a course and fills in its ID.
func (q *queries) CreateCourse(ctx context.Context, course *store.Course) error {
	query := `
		INSERT INTO courses (title, slug, visibility, cover_url)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`
	if err := q.get(ctx, &course.ID, query, course.Title, course.Slug, course.Visibility, course.CoverURL); err != nil {
		return mapErr("insert course", err)
	}
	return nil
}

// GetLesson retrieves a lesson by ID.
func (q *queries) GetLesson(ctx context.Context, id int64) (*store.Lesson, error) {
	var lesson store.Lesson
	query := `
		SELECT id, course_id, idx, title, content_url, duration_sec, published
		FROM lessons
		WHERE id = ?
	`
	if err := q.get(ctx, &lesson, query, id); err != nil {
		return nil, mapErr("query lesson", err)
	}
	return &lesson, nil
}

// CreateLesson inserts a lesson and fills in its ID.
func (q *queries) CreateLesson(ctx context.Context, lesson *store.Lesson) error {
	query := `
		INSERT INTO lessons (course_id, idx, title, content_url, duration_sec, published)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	err := q.get(ctx, &lesson.ID, query,
		lesson.CourseID,
		lesson.Index,
		lesson.Title,
		lesson.ContentURL,
		lesson.DurationSec,
		lesson.Published,
	)
	if err != nil {
		return mapErr("insert lesson", err)
	}
	return nil
}

// ListPublishedLessons returns the published lessons of a course ordered by index.
func (q *queries) ListPublishedLessons(ctx context.Context, courseID int64) ([]*store.Lesson, error) {
	query := `
		SELECT id, course_id, idx, title, content_url, duration_sec, published
		FROM lessons
		WHERE course_id = ? AND published = ?
		ORDER BY idx, id
	`
	lessons := []*store.Lesson{}
	if err := q.selectAll(ctx, &lessons, query, courseID, true); err != nil {
		return nil, mapErr("list lessons", err)
	}
	return lessons, nil
}

// CountCompletedLessons counts lessons of a course marked done by the user.
func (q *queries) CountCompletedLessons(ctx context.Context, courseID, userID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM progress p
		JOIN lessons l ON l.id = p.lesson_id
		WHERE l.course_id = ? AND l.published = ? AND p.user_id = ? AND p.status = ?
	`
	var n int
	if err := q.get(ctx, &n, query, courseID, true, userID, store.ProgressDone); err != nil {
		return 0, mapErr("count completed lessons", err)
	}
	return n, nil
}

// UpsertProgress inserts or updates the (user, lesson) progress row and fills in its ID.
func (q *queries) UpsertProgress(ctx context.Context, p *store.LessonProgress) error {
	query := `
		INSERT INTO progress (user_id, lesson_id, status, percent)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, lesson_id)
		DO UPDATE SET status = excluded.status, percent = excluded.percent
		RETURNING id
	`
	if err := q.get(ctx, &p.ID, query, p.UserID, p.LessonID, p.Status, p.Percent); err != nil {
		return mapErr("upsert progress", err)
	}
	return nil
}
