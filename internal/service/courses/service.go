package courses

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/vovakirdan/campus-server/internal/store"
)

// Common errors for course operations.
var (
	ErrCourseNotFound = errors.New("course not found")
	ErrLessonNotFound = errors.New("lesson not found")
	ErrForbidden      = errors.New("forbidden")
	ErrSlugTaken      = errors.New("slug already taken")
	ErrInvalidInput   = errors.New("invalid input")
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 50
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ListParams are the query parameters of a course listing.
type ListParams struct {
	// Visibility narrows the listing; empty means every visibility the viewer may see.
	Visibility store.CourseVisibility
	Limit      int
	Cursor     int64
}

// Page is one page of a course listing. NextCursor is nil when the page is empty.
type Page struct {
	Items      []*store.CourseSummary
	NextCursor *int64
}

// Detail is a course with its published lessons and, for signed-in viewers, their progress.
type Detail struct {
	Course   store.CourseSummary
	Lessons  []*store.Lesson
	Progress *int
}

// Service provides course, lesson and progress operations.
type Service struct {
	store store.Store
}

// New creates a new course service.
func New(st store.Store) *Service {
	return &Service{store: st}
}

// visibleTo returns the visibilities viewer may see. A nil viewer is anonymous.
func visibleTo(viewer *store.User) []store.CourseVisibility {
	if viewer != nil && viewer.Role.AtLeast(store.RoleMember) {
		return []store.CourseVisibility{store.VisibilityPublic, store.VisibilityMember}
	}
	return []store.CourseVisibility{store.VisibilityPublic}
}

func validVisibility(v store.CourseVisibility) bool {
	return v == store.VisibilityPublic || v == store.VisibilityMember
}

// List returns a page of courses visible to viewer, ordered by id.
func (s *Service) List(ctx context.Context, viewer *store.User, params ListParams) (*Page, error) {
	limit := params.Limit
	if limit == 0 {
		limit = DefaultPageSize
	}
	if limit < 0 || limit > MaxPageSize {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidInput, MaxPageSize)
	}
	if params.Cursor < 0 {
		return nil, fmt.Errorf("%w: cursor must not be negative", ErrInvalidInput)
	}

	allowed := visibleTo(viewer)
	if params.Visibility != "" {
		if !validVisibility(params.Visibility) {
			return nil, fmt.Errorf("%w: unknown visibility %q", ErrInvalidInput, params.Visibility)
		}
		filtered := allowed[:0:0]
		for _, v := range allowed {
			if v == params.Visibility {
				filtered = append(filtered, v)
			}
		}
		allowed = filtered
	}

	items, err := s.store.ListCourses(ctx, store.CourseFilter{
		Visibilities: allowed,
		AfterID:      params.Cursor,
		Limit:        limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}

	page := &Page{Items: items}
	if len(items) > 0 {
		last := items[len(items)-1].ID
		page.NextCursor = &last
	}
	return page, nil
}

// Get returns a course by slug with its published lessons. Member courses
// are forbidden to viewers below the member role.
func (s *Service) Get(ctx context.Context, viewer *store.User, slug string) (*Detail, error) {
	course, err := s.store.GetCourseBySlug(ctx, slug)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCourseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}

	if course.Visibility == store.VisibilityMember && (viewer == nil || !viewer.Role.AtLeast(store.RoleMember)) {
		return nil, ErrForbidden
	}

	lessons, err := s.store.ListPublishedLessons(ctx, course.ID)
	if err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}

	detail := &Detail{
		Course:  store.CourseSummary{Course: *course, LessonsCount: len(lessons)},
		Lessons: lessons,
	}

	if viewer != nil && len(lessons) > 0 {
		done, err := s.store.CountCompletedLessons(ctx, course.ID, viewer.ID)
		if err != nil {
			return nil, fmt.Errorf("count completed lessons: %w", err)
		}
		percent := done * 100 / len(lessons)
		detail.Progress = &percent
	}

	return detail, nil
}

// CourseInput describes a course to create.
type CourseInput struct {
	Title      string
	Slug       string
	Visibility store.CourseVisibility
	CoverURL   *string
}

// Validate checks the course fields.
func (in CourseInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required, validation.RuneLength(1, 200)),
		validation.Field(&in.Slug, validation.Required, validation.Length(1, 100), validation.Match(slugPattern)),
		validation.Field(&in.Visibility, validation.Required, validation.In(store.VisibilityPublic, store.VisibilityMember)),
		validation.Field(&in.CoverURL, validation.NilOrNotEmpty, is.URL),
	)
}

// CreateCourse creates a course.
func (s *Service) CreateCourse(ctx context.Context, in CourseInput) (*store.CourseSummary, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	course := &store.Course{
		Title:      in.Title,
		Slug:       in.Slug,
		Visibility: in.Visibility,
		CoverURL:   in.CoverURL,
	}
	if err := s.store.CreateCourse(ctx, course); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrSlugTaken
		}
		return nil, fmt.Errorf("create course: %w", err)
	}
	return &store.CourseSummary{Course: *course}, nil
}

// LessonInput describes a lesson to create. Lessons are unpublished unless Published is set.
type LessonInput struct {
	CourseID    int64
	Index       int
	Title       string
	ContentURL  string
	DurationSec *int
	Published   bool
}

// Validate checks the lesson fields.
func (in LessonInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.CourseID, validation.Required, validation.Min(int64(1))),
		validation.Field(&in.Index, validation.Min(0)),
		validation.Field(&in.Title, validation.Required, validation.RuneLength(1, 200)),
		validation.Field(&in.ContentURL, validation.Required),
		validation.Field(&in.DurationSec, validation.NilOrNotEmpty, validation.Min(1)),
	)
}

// CreateLesson adds a lesson to an existing course.
func (s *Service) CreateLesson(ctx context.Context, in LessonInput) (*store.Lesson, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if _, err := s.store.GetCourseByID(ctx, in.CourseID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("get course: %w", err)
	}

	lesson := &store.Lesson{
		CourseID:    in.CourseID,
		Index:       in.Index,
		Title:       in.Title,
		ContentURL:  in.ContentURL,
		DurationSec: in.DurationSec,
		Published:   in.Published,
	}
	if err := s.store.CreateLesson(ctx, lesson); err != nil {
		return nil, fmt.Errorf("create lesson: %w", err)
	}
	return lesson, nil
}

// ProgressInput is a progress report for one lesson.
type ProgressInput struct {
	LessonID int64
	Status   store.ProgressStatus
	Percent  int
}

// Validate checks the progress fields.
func (in ProgressInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.LessonID, validation.Required, validation.Min(int64(1))),
		validation.Field(&in.Status, validation.Required, validation.In(store.ProgressInProgress, store.ProgressDone)),
		validation.Field(&in.Percent, validation.Min(0), validation.Max(100)),
	)
}

// MarkProgress records the user's progress on a lesson, replacing any earlier report.
func (s *Service) MarkProgress(ctx context.Context, userID int64, in ProgressInput) error {
	if err := in.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if _, err := s.store.GetLesson(ctx, in.LessonID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrLessonNotFound
		}
		return fmt.Errorf("get lesson: %w", err)
	}

	err := s.store.UpsertProgress(ctx, &store.LessonProgress{
		UserID:   userID,
		LessonID: in.LessonID,
		Status:   in.Status,
		Percent:  in.Percent,
	})
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}
