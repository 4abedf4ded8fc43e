package invites

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vovakirdan/campus-server/internal/store"
	"github.com/vovakirdan/campus-server/internal/utils"
)

// Errors returned by invite operations. The messages double as the API error strings.
var (
	ErrInvalidCode   = errors.New("invalid-code")
	ErrInviteUsed    = errors.New("invite-used")
	ErrInviteExpired = errors.New("invite-expired")
	ErrExpiryInPast  = errors.New("expired")
	ErrInvalidRole   = errors.New("invalid-role")
)

const (
	codeBytes    = 8
	codeAttempts = 3

	auditEntity = "invite"
)

// Service issues and redeems invites.
type Service struct {
	store store.Store
	now   func() time.Time
}

// New creates a new invite service.
func New(st store.Store) *Service {
	return &Service{
		store: st,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create issues an invite granting role until expiresAt and records it in the audit log.
func (s *Service) Create(ctx context.Context, actorID int64, role store.Role, expiresAt time.Time) (*store.Invite, error) {
	if !expiresAt.After(s.now()) {
		return nil, ErrExpiryInPast
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	// A code collision aborts the transaction, so each attempt gets a fresh one.
	for attempt := 1; ; attempt++ {
		inv, err := s.create(ctx, actorID, role, expiresAt.UTC())
		if err == nil {
			return inv, nil
		}
		if !errors.Is(err, store.ErrConflict) || attempt == codeAttempts {
			return nil, fmt.Errorf("create invite: %w", err)
		}
	}
}

func (s *Service) create(ctx context.Context, actorID int64, role store.Role, expiresAt time.Time) (*store.Invite, error) {
	code, err := utils.NewToken(codeBytes)
	if err != nil {
		return nil, err
	}
	inv := &store.Invite{
		Code:        code,
		RoleToGrant: role,
		ExpiresAt:   expiresAt,
		CreatedAt:   s.now(),
	}

	err = s.store.WithinTx(ctx, func(q store.Queries) error {
		if err := q.CreateInvite(ctx, inv); err != nil {
			return err
		}
		return q.AppendAudit(ctx, &store.AuditEntry{
			ActorID:  actorID,
			Action:   "invite.create",
			Entity:   auditEntity,
			EntityID: code,
			Meta:     store.Meta{"role": string(role)},
		})
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// Redeem consumes the invite and sets the user's role to the one it grants.
func (s *Service) Redeem(ctx context.Context, userID int64, code string) (store.Role, error) {
	var granted store.Role
	err := s.store.WithinTx(ctx, func(q store.Queries) error {
		inv, err := q.GetInvite(ctx, code)
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidCode
		}
		if err != nil {
			return err
		}
		if inv.UsedBy != nil {
			return ErrInviteUsed
		}
		if !inv.ExpiresAt.After(s.now()) {
			return ErrInviteExpired
		}

		if err := q.MarkInviteUsed(ctx, code, userID); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ErrInviteUsed
			}
			return err
		}
		if err := q.UpdateUserRole(ctx, userID, inv.RoleToGrant); err != nil {
			return err
		}

		granted = inv.RoleToGrant
		return q.AppendAudit(ctx, &store.AuditEntry{
			ActorID:  userID,
			Action:   "invite.redeem",
			Entity:   auditEntity,
			EntityID: code,
			Meta:     store.Meta{"role": string(granted)},
		})
	})
	if err != nil {
		return "", err
	}
	return granted, nil
}

// PurgeExpired deletes unused invites whose expiry has passed.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpiredInvites(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("purge expired invites: %w", err)
	}
	return n, nil
}
