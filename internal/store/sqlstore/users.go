package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/vovakirdan/campus-server/internal/store"
)

// ==== UserStore implementation ====

// CreateUser inserts a user and its default profile.
// Callers that need both rows to land atomically run it inside WithinTx.
func (q *queries) CreateUser(ctx context.Context, email, passwordHash string, role store.Role) (*store.User, error) {
	user := store.User{
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}

	query := `
		INSERT INTO users (email, password_hash, role, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`
	if err := q.get(ctx, &user.ID, query, user.Email, user.PasswordHash, user.Role, user.CreatedAt); err != nil {
		return nil, mapErr("insert user", err)
	}

	if _, err := q.exec(ctx, `INSERT INTO profiles (user_id, locale) VALUES (?, 'en')`, user.ID); err != nil {
		return nil, mapErr("insert profile", err)
	}

	return &user, nil
}

// GetUserByID retrieves a user by ID.
func (q *queries) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `
		SELECT id, email, password_hash, role, created_at
		FROM users
		WHERE id = ?
	`
	var user store.User
	if err := q.get(ctx, &user, query, id); err != nil {
		return nil, mapErr("query user", err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email.
func (q *queries) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	query := `
		SELECT id, email, password_hash, role, created_at
		FROM users
		WHERE email = ?
	`
	var user store.User
	if err := q.get(ctx, &user, query, email); err != nil {
		return nil, mapErr("query user by email", err)
	}
	return &user, nil
}

// GetProfile retrieves the profile of a user.
func (q *queries) GetProfile(ctx context.Context, userID int64) (*store.Profile, error) {
	query := `
		SELECT user_id, name, avatar_url, locale
		FROM profiles
		WHERE user_id = ?
	`
	var profile store.Profile
	if err := q.get(ctx, &profile, query, userID); err != nil {
		return nil, mapErr("query profile", err)
	}
	return &profile, nil
}

// UpdateUserRole sets the role of a user.
func (q *queries) UpdateUserRole(ctx context.Context, userID int64, role store.Role) error {
	res, err := q.exec(ctx, `UPDATE users SET role = ? WHERE id = ?`, role, userID)
	if err != nil {
		return mapErr("update role", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update role: %w", store.ErrNotFound)
	}
	return nil
}
