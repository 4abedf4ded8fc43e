package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/campus-server/internal/service/courses"
	"github.com/vovakirdan/campus-server/internal/store"
)

// CourseHandlers provides HTTP handlers for courses, lessons and progress.
type CourseHandlers struct {
	courses *courses.Service
	log     *zerolog.Logger
}

// NewCourseHandlers creates a new course handlers instance.
func NewCourseHandlers(svc *courses.Service, logger *zerolog.Logger) *CourseHandlers {
	return &CourseHandlers{
		courses: svc,
		log:     logger,
	}
}

// ListCoursesQuery holds the query parameters of GET /courses.
type ListCoursesQuery struct {
	Visibility string `form:"visibility"`
	Limit      int    `form:"limit" binding:"omitempty,min=1,max=50"`
	Cursor     int64  `form:"cursor" binding:"omitempty,min=0"`
}

// CreateCourseRequest represents the create course request body.
type CreateCourseRequest struct {
	Title      string  `json:"title" binding:"required"`
	Slug       string  `json:"slug" binding:"required"`
	Visibility string  `json:"visibility" binding:"required"`
	CoverURL   *string `json:"cover_url"`
}

// CreateLessonRequest represents the create lesson request body.
type CreateLessonRequest struct {
	CourseID    int64  `json:"course_id" binding:"required"`
	Index       int    `json:"index"`
	Title       string `json:"title" binding:"required"`
	ContentURL  string `json:"content_url" binding:"required"`
	DurationSec *int   `json:"duration_sec"`
	Published   bool   `json:"published"`
}

// MarkProgressRequest represents the progress mark request body.
type MarkProgressRequest struct {
	LessonID int64  `json:"lesson_id" binding:"required"`
	Status   string `json:"status" binding:"required"`
	Percent  int    `json:"percent"`
}

// ListCourses returns a page of courses visible to the caller.
// GET /courses?visibility=&limit=&cursor=
func (h *CourseHandlers) ListCourses(c *gin.Context) {
	var q ListCoursesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid query parameters"})
		return
	}

	page, err := h.courses.List(c.Request.Context(), currentUser(c), courses.ListParams{
		Visibility: store.CourseVisibility(q.Visibility),
		Limit:      q.Limit,
		Cursor:     q.Cursor,
	})
	if err != nil {
		h.fail(c, err, "failed to list courses")
		return
	}

	c.JSON(http.StatusOK, courseListResponse(page))
}

// GetCourse returns a course with its published lessons.
// GET /courses/:slug
func (h *CourseHandlers) GetCourse(c *gin.Context) {
	detail, err := h.courses.Get(c.Request.Context(), currentUser(c), c.Param("slug"))
	if err != nil {
		h.fail(c, err, "failed to get course")
		return
	}

	c.JSON(http.StatusOK, courseDetailResponse(detail))
}

// CreateCourse creates a course.
// POST /admin/courses
func (h *CourseHandlers) CreateCourse(c *gin.Context) {
	var req CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	course, err := h.courses.CreateCourse(c.Request.Context(), courses.CourseInput{
		Title:      req.Title,
		Slug:       req.Slug,
		Visibility: store.CourseVisibility(req.Visibility),
		CoverURL:   req.CoverURL,
	})
	if err != nil {
		h.fail(c, err, "failed to create course")
		return
	}

	h.log.Info().Int64("course_id", course.ID).Str("slug", course.Slug).Msg("course created")
	c.JSON(http.StatusCreated, courseResponse(course))
}

// CreateLesson adds a lesson to a course.
// POST /admin/lessons
func (h *CourseHandlers) CreateLesson(c *gin.Context) {
	var req CreateLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	lesson, err := h.courses.CreateLesson(c.Request.Context(), courses.LessonInput{
		CourseID:    req.CourseID,
		Index:       req.Index,
		Title:       req.Title,
		ContentURL:  req.ContentURL,
		DurationSec: req.DurationSec,
		Published:   req.Published,
	})
	if err != nil {
		h.fail(c, err, "failed to create lesson")
		return
	}

	c.JSON(http.StatusCreated, lessonResponse(lesson))
}

// MarkProgress records the caller's progress on a lesson.
// POST /progress/mark
func (h *CourseHandlers) MarkProgress(c *gin.Context) {
	var req MarkProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	err := h.courses.MarkProgress(c.Request.Context(), currentUser(c).ID, courses.ProgressInput{
		LessonID: req.LessonID,
		Status:   store.ProgressStatus(req.Status),
		Percent:  req.Percent,
	})
	if err != nil {
		h.fail(c, err, "failed to mark progress")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *CourseHandlers) fail(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, courses.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, courses.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
	case errors.Is(err, courses.ErrCourseNotFound), errors.Is(err, courses.ErrLessonNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, courses.ErrSlugTaken):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	default:
		h.log.Error().Err(err).Msg(msg)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
