package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// URLSigner issues time-limited download URLs for stored objects.
type URLSigner interface {
	SignGet(ctx context.Context, key string) (string, error)
}

// StorageHandlers provides HTTP handlers for object storage.
type StorageHandlers struct {
	signer URLSigner
	log    *zerolog.Logger
}

// NewStorageHandlers creates a new storage handlers instance.
func NewStorageHandlers(signer URLSigner, logger *zerolog.Logger) *StorageHandlers {
	return &StorageHandlers{
		signer: signer,
		log:    logger,
	}
}

// SignedURLResponse is the body of GET /storage/sign.
type SignedURLResponse struct {
	URL string `json:"url"`
}

// Sign returns a presigned download URL for an object key.
// GET /storage/sign?key=
func (h *StorageHandlers) Sign(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "key is required"})
		return
	}
	if h.signer == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "storage is not configured"})
		return
	}

	url, err := h.signer.SignGet(c.Request.Context(), key)
	if err != nil {
		h.log.Warn().Err(err).Str("key", key).Msg("failed to sign url")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SignedURLResponse{URL: url})
}
