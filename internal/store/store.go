package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an insert violates a unique constraint.
	ErrConflict = errors.New("conflict")
)

// Role is the access level of a user. Roles are ordered: guest < user < member < admin.
type Role string

const (
	RoleGuest  Role = "guest"
	RoleUser   Role = "user"
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

var roleRank = map[Role]int{
	RoleGuest:  0,
	RoleUser:   1,
	RoleMember: 2,
	RoleAdmin:  3,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r grants at least the privileges of min.
func (r Role) AtLeast(min Role) bool {
	rank, ok := roleRank[r]
	if !ok {
		return false
	}
	return rank >= roleRank[min]
}

// User represents an account.
type User struct {
	ID           int64     `db:"id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Role         Role      `db:"role"`
	CreatedAt    time.Time `db:"created_at"`
}

// Profile holds user-facing account details.
type Profile struct {
	UserID    int64   `db:"user_id"`
	Name      *string `db:"name"`
	AvatarURL *string `db:"avatar_url"`
	Locale    string  `db:"locale"`
}

// Channel is a chat channel addressed by slug.
type Channel struct {
	ID       int64  `db:"id"`
	Slug     string `db:"slug"`
	ReadOnly bool   `db:"is_readonly"`
}

// Attachments is the ordered attachment list of a message, stored as a JSON array.
type Attachments []json.RawMessage

// Message is a persisted chat message. Messages are soft-deleted only.
type Message struct {
	ID          int64       `db:"id"`
	ChannelID   int64       `db:"channel_id"`
	UserID      int64       `db:"user_id"`
	ParentID    *int64      `db:"parent_id"`
	Text        string      `db:"text"`
	Attachments Attachments `db:"attachments"`
	Pinned      bool        `db:"pinned"`
	DeletedAt   *time.Time  `db:"deleted_at"`
	CreatedAt   time.Time   `db:"created_at"`
}

// CourseVisibility controls who can see a course.
type CourseVisibility string

const (
	VisibilityPublic CourseVisibility = "public"
	VisibilityMember CourseVisibility = "member"
)

// Course is a collection of lessons.
type Course struct {
	ID         int64            `db:"id"`
	Title      string           `db:"title"`
	Slug       string           `db:"slug"`
	Visibility CourseVisibility `db:"visibility"`
	CoverURL   *string          `db:"cover_url"`
}

// CourseSummary is a course with its lesson count, as returned by listings.
type CourseSummary struct {
	Course
	LessonsCount int `db:"lessons_count"`
}

// Lesson is a single unit of a course.
type Lesson struct {
	ID          int64  `db:"id"`
	CourseID    int64  `db:"course_id"`
	Index       int    `db:"idx"`
	Title       string `db:"title"`
	ContentURL  string `db:"content_url"`
	DurationSec *int   `db:"duration_sec"`
	Published   bool   `db:"published"`
}

// ProgressStatus is the completion state of a lesson for a user.
type ProgressStatus string

const (
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressDone       ProgressStatus = "done"
)

// LessonProgress tracks one user's progress on one lesson.
type LessonProgress struct {
	ID       int64          `db:"id"`
	UserID   int64          `db:"user_id"`
	LessonID int64          `db:"lesson_id"`
	Status   ProgressStatus `db:"status"`
	Percent  int            `db:"percent"`
}

// Invite grants a role to whoever redeems it first before it expires.
type Invite struct {
	Code        string    `db:"code"`
	RoleToGrant Role      `db:"role_to_grant"`
	ExpiresAt   time.Time `db:"expires_at"`
	UsedBy      *int64    `db:"used_by"`
	CreatedAt   time.Time `db:"created_at"`
}

// AuditEntry records a privileged action.
type AuditEntry struct {
	ID        int64     `db:"id"`
	ActorID   int64     `db:"actor_id"`
	Action    string    `db:"action"`
	Entity    string    `db:"entity"`
	EntityID  string    `db:"entity_id"`
	Meta      Meta      `db:"meta"`
	CreatedAt time.Time `db:"created_at"`
}

// CourseFilter narrows a course listing.
type CourseFilter struct {
	// Visibilities lists the visibilities the caller may see.
	Visibilities []CourseVisibility
	// AfterID is the pagination cursor; zero means from the start.
	AfterID int64
	Limit   int
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a user together with an empty profile.
	CreateUser(ctx context.Context, email, passwordHash string, role Role) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// GetProfile retrieves the profile of a user.
	GetProfile(ctx context.Context, userID int64) (*Profile, error)

	// UpdateUserRole sets the role of a user.
	UpdateUserRole(ctx context.Context, userID int64, role Role) error
}

// ChannelStore handles chat channel persistence.
type ChannelStore interface {
	// GetChannelBySlug retrieves a channel by slug.
	GetChannelBySlug(ctx context.Context, slug string) (*Channel, error)

	// CreateChannel inserts a channel. Returns ErrConflict if the slug is taken.
	CreateChannel(ctx context.Context, slug string, readOnly bool) (*Channel, error)
}

// MessageStore handles chat message persistence.
type MessageStore interface {
	// InsertMessage persists msg and fills in its ID and CreatedAt.
	InsertMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// MarkMessageDeleted sets deleted_at and returns the updated message.
	MarkMessageDeleted(ctx context.Context, id int64, at time.Time) (*Message, error)

	// SetMessagePinned sets the pinned flag and returns the updated message.
	SetMessagePinned(ctx context.Context, id int64, pinned bool) (*Message, error)
}

// CourseStore handles courses, lessons and progress.
type CourseStore interface {
	ListCourses(ctx context.Context, filter CourseFilter) ([]*CourseSummary, error)
	GetCourseByID(ctx context.Context, id int64) (*Course, error)
	GetCourseBySlug(ctx context.Context, slug string) (*Course, error)
	CreateCourse(ctx context.Context, course *Course) error
	GetLesson(ctx context.Context, id int64) (*Lesson, error)
	CreateLesson(ctx context.Context, lesson *Lesson) error
	ListPublishedLessons(ctx context.Context, courseID int64) ([]*Lesson, error)

	// CountCompletedLessons counts lessons of a course marked done by the user.
	CountCompletedLessons(ctx context.Context, courseID, userID int64) (int, error)

	// UpsertProgress inserts or updates the (user, lesson) progress row.
	UpsertProgress(ctx context.Context, p *LessonProgress) error
}

// InviteStore handles invite persistence.
type InviteStore interface {
	CreateInvite(ctx context.Context, inv *Invite) error
	GetInvite(ctx context.Context, code string) (*Invite, error)

	// MarkInviteUsed sets used_by. Returns ErrConflict if the invite was already used.
	MarkInviteUsed(ctx context.Context, code string, userID int64) error

	// DeleteExpiredInvites removes unused invites that expired before the given time.
	DeleteExpiredInvites(ctx context.Context, before time.Time) (int64, error)
}

// AuditStore handles the audit log.
type AuditStore interface {
	AppendAudit(ctx context.Context, entry *AuditEntry) error
	ListAudit(ctx context.Context, entity, entityID string) ([]*AuditEntry, error)
}

// Queries is the full set of operations available both on the store and inside a transaction.
type Queries interface {
	UserStore
	ChannelStore
	MessageStore
	CourseStore
	InviteStore
	AuditStore
}

// Store aggregates all storage interfaces.
type Store interface {
	Queries

	// WithinTx runs fn inside a transaction. The transaction commits when fn returns nil
	// and rolls back otherwise, including when fn panics.
	WithinTx(ctx context.Context, fn func(q Queries) error) error

	// Close closes the underlying database connection.
	Close() error
}
