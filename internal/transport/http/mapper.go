package http

import (
	"time"

	"github.com/vovakirdan/campus-server/internal/service/courses"
	"github.com/vovakirdan/campus-server/internal/store"
)

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

// ProfileResponse represents a profile in API responses.
type ProfileResponse struct {
	Name      *string `json:"name"`
	AvatarURL *string `json:"avatar_url"`
	Locale    string  `json:"locale"`
}

// MeResponse is the body of GET /me.
type MeResponse struct {
	UserResponse
	Profile *ProfileResponse `json:"profile"`
}

// CourseResponse represents a course in API responses.
type CourseResponse struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	Slug         string  `json:"slug"`
	Visibility   string  `json:"visibility"`
	CoverURL     *string `json:"cover_url"`
	LessonsCount int     `json:"lessons_count"`
}

// LessonResponse represents a lesson in API responses.
type LessonResponse struct {
	ID          int64  `json:"id"`
	CourseID    int64  `json:"course_id"`
	Index       int    `json:"index"`
	Title       string `json:"title"`
	ContentURL  string `json:"content_url"`
	DurationSec *int   `json:"duration_sec"`
	Published   bool   `json:"published"`
}

// CourseListResponse is one page of courses.
type CourseListResponse struct {
	Items      []CourseResponse `json:"items"`
	NextCursor *int64           `json:"next_cursor"`
}

// ProgressResponse is the viewer's completion of a course.
type ProgressResponse struct {
	Percent int `json:"percent"`
}

// CourseDetailResponse is a course with its published lessons.
type CourseDetailResponse struct {
	Course   CourseResponse    `json:"course"`
	Lessons  []LessonResponse  `json:"lessons"`
	Progress *ProgressResponse `json:"progress"`
}

func userResponse(u *store.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func profileResponse(p *store.Profile) *ProfileResponse {
	if p == nil {
		return nil
	}
	return &ProfileResponse{Name: p.Name, AvatarURL: p.AvatarURL, Locale: p.Locale}
}

func courseResponse(c *store.CourseSummary) CourseResponse {
	return CourseResponse{
		ID:           c.ID,
		Title:        c.Title,
		Slug:         c.Slug,
		Visibility:   string(c.Visibility),
		CoverURL:     c.CoverURL,
		LessonsCount: c.LessonsCount,
	}
}

func lessonResponse(l *store.Lesson) LessonResponse {
	return LessonResponse{
		ID:          l.ID,
		CourseID:    l.CourseID,
		Index:       l.Index,
		Title:       l.Title,
		ContentURL:  l.ContentURL,
		DurationSec: l.DurationSec,
		Published:   l.Published,
	}
}

func courseListResponse(page *courses.Page) CourseListResponse {
	items := make([]CourseResponse, 0, len(page.Items))
	for _, c := range page.Items {
		items = append(items, courseResponse(c))
	}
	return CourseListResponse{Items: items, NextCursor: page.NextCursor}
}

func courseDetailResponse(d *courses.Detail) CourseDetailResponse {
	lessons := make([]LessonResponse, 0, len(d.Lessons))
	for _, l := range d.Lessons {
		lessons = append(lessons, lessonResponse(l))
	}
	resp := CourseDetailResponse{
		Course:  courseResponse(&d.Course),
		Lessons: lessons,
	}
	if d.Progress != nil {
		resp.Progress = &ProgressResponse{Percent: *d.Progress}
	}
	return resp
}
