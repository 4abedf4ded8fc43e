package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/vovakirdan/campus-server/internal/store"
)

// ==== InviteStore implementation ====

// CreateInvite inserts an invite. Returns store.ErrConflict if the code is taken.
func (q *queries) CreateInvite(ctx context.Context, inv *store.Invite) error {
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO invites (code, role_to_grant, expires_at, used_by, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := q.exec(ctx, query, inv.Code, inv.RoleToGrant, inv.ExpiresAt.UTC(), inv.UsedBy, inv.CreatedAt.UTC())
	if err != nil {
		return mapErr("insert invite", err)
	}
	return nil
}

// GetInvite retrieves an invite by code.
func (q *queries) GetInvite(ctx context.Context, code string) (*store.Invite, error) {
	var inv store.Invite
	query := `
		SELECT code, role_to_grant, expires_at, used_by, created_at
		FROM invites
		WHERE code = ?
	`
	if err := q.get(ctx, &inv, query, code); err != nil {
		return nil, mapErr("query invite", err)
	}
	return &inv, nil
}

// MarkInviteUsed claims an invite for userID. The update only matches an
// unused invite, so concurrent redeemers cannot both succeed.
func (q *queries) MarkInviteUsed(ctx context.Context, code string, userID int64) error {
	res, err := q.exec(ctx, `UPDATE invites SET used_by = ? WHERE code = ? AND used_by IS NULL`, userID, code)
	if err != nil {
		return mapErr("mark invite used", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	if _, err := q.GetInvite(ctx, code); err != nil {
		return err
	}
	return fmt.Errorf("mark invite used: %w", store.ErrConflict)
}

// DeleteExpiredInvites removes unused invites that expired before the given time.
func (q *queries) DeleteExpiredInvites(ctx context.Context, before time.Time) (int64, error) {
	res, err := q.exec(ctx, `DELETE FROM invites WHERE used_by IS NULL AND expires_at < ?`, before.UTC())
	if err != nil {
		return 0, mapErr("delete expired invites", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// ==== AuditStore implementation ====

// AppendAudit appends an entry to the audit log and fills in its ID.
func (q *queries) AppendAudit(ctx context.Context, entry *store.AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Meta == nil {
		entry.Meta = store.Meta{}
	}
	query := `
		INSERT INTO audit_log (actor_id, action, entity, entity_id, meta, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	err := q.get(ctx, &entry.ID, query,
		entry.ActorID,
		entry.Action,
		entry.Entity,
		entry.EntityID,
		entry.Meta,
		entry.CreatedAt.UTC(),
	)
	if err != nil {
		return mapErr("insert audit entry", err)
	}
	return nil
}

// ListAudit returns the audit entries for one entity, oldest first.
func (q *queries) ListAudit(ctx context.Context, entity, entityID string) ([]*store.AuditEntry, error) {
	query := `
		SELECT id, actor_id, action, entity, entity_id, meta, created_at
		FROM audit_log
		WHERE entity = ? AND entity_id = ?
		ORDER BY id
	`
	entries := []*store.AuditEntry{}
	if err := q.selectAll(ctx, &entries, query, entity, entityID); err != nil {
		return nil, mapErr("list audit", err)
	}
	return entries, nil
}

