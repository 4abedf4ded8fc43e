package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/campus-server/internal/service/invites"
	"github.com/vovakirdan/campus-server/internal/store"
)

// InviteHandlers provides HTTP handlers for invites.
type InviteHandlers struct {
	invites *invites.Service
	log     *zerolog.Logger
}

// NewInviteHandlers creates a new invite handlers instance.
func NewInviteHandlers(svc *invites.Service, logger *zerolog.Logger) *InviteHandlers {
	return &InviteHandlers{
		invites: svc,
		log:     logger,
	}
}

// CreateInviteRequest represents the create invite request body.
type CreateInviteRequest struct {
	RoleToGrant string    `json:"role_to_grant" binding:"required"`
	ExpiresAt   time.Time `json:"expires_at" binding:"required"`
}

// InviteResponse is the body of a created invite.
type InviteResponse struct {
	Code string `json:"code"`
}

// RedeemInviteRequest represents the redeem request body.
type RedeemInviteRequest struct {
	Code string `json:"code" binding:"required,min=6"`
}

// RedeemInviteResponse carries the role granted by a redeemed invite.
type RedeemInviteResponse struct {
	Role string `json:"role"`
}

// Create issues an invite.
// POST /admin/invites
func (h *InviteHandlers) Create(c *gin.Context) {
	var req CreateInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	actor := currentUser(c)
	inv, err := h.invites.Create(c.Request.Context(), actor.ID, store.Role(req.RoleToGrant), req.ExpiresAt)
	if err != nil {
		if errors.Is(err, invites.ErrExpiryInPast) || errors.Is(err, invites.ErrInvalidRole) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		h.log.Error().Err(err).Int64("user_id", actor.ID).Msg("failed to create invite")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Int64("user_id", actor.ID).Str("role", string(inv.RoleToGrant)).Msg("invite created")
	c.JSON(http.StatusCreated, InviteResponse{Code: inv.Code})
}

// Redeem consumes an invite and grants its role to the caller.
// POST /invites/redeem
func (h *InviteHandlers) Redeem(c *gin.Context) {
	var req RedeemInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	user := currentUser(c)
	role, err := h.invites.Redeem(c.Request.Context(), user.ID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, invites.ErrInvalidCode),
			errors.Is(err, invites.ErrInviteUsed),
			errors.Is(err, invites.ErrInviteExpired):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		default:
			h.log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to redeem invite")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	h.log.Info().Int64("user_id", user.ID).Str("role", string(role)).Msg("invite redeemed")
	c.JSON(http.StatusOK, RedeemInviteResponse{Role: string(role)})
}
