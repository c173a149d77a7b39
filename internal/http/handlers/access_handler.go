// Access HTTP handlers.
//
//   - GET  /access/{contentId}/{sessionId}  (single check)
//   - POST /access/batch                    (up to 10 checks)
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/zk-paygate/internal/access"
	"github.com/tbourn/zk-paygate/internal/domain"
)

// AccessResponse is the access state of one (content, session) pair.
type AccessResponse struct {
	HasAccess bool       `json:"hasAccess"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// AccessBatchRequest lists the pairs to check.
type AccessBatchRequest struct {
	Items []access.Item `json:"items" binding:"required"`
}

// AccessBatchResponse answers items in request order.
type AccessBatchResponse struct {
	Items []access.Status `json:"items"`
}

// CheckAccess godoc
// @ID          checkAccess
// @Summary     Check access
// @Description Reports whether the session currently grants access to the content. A confirmed session whose cached grant was lost gets it re-issued.
// @Tags        Access
// @Produce     json
//
// @Param       contentId  path  string  true  "Content ID"  example(article-1)
// @Param       sessionId  path  string  true  "Session ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.AccessResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /access/{contentId}/{sessionId} [get]
func (h *Handlers) CheckAccess(c *gin.Context) {
	ctx := c.Request.Context()
	contentID, sessionID := c.Param("contentId"), c.Param("sessionId")

	exp, found, err := h.access.Expiry(ctx, contentID, sessionID)
	if err != nil {
		failErr(c, err)
		return
	}
	if found {
		ok(c, http.StatusOK, AccessResponse{HasAccess: true, ExpiresAt: &exp})
		return
	}

	// The grant cache is an optimisation; the session row decides.
	view, err := h.payments.Status(ctx, sessionID)
	if err != nil || view.ContentID != contentID || view.Status != domain.StatusConfirmed || !view.HasAccess {
		ok(c, http.StatusOK, AccessResponse{})
		return
	}
	ok(c, http.StatusOK, AccessResponse{HasAccess: true, ExpiresAt: view.AccessExpiresAt})
}

// CheckAccessBatch godoc
// @ID          checkAccessBatch
// @Summary     Check access in bulk
// @Description Checks up to 10 (content, session) pairs against the grant cache.
// @Tags        Access
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.AccessBatchRequest  true  "Pairs to check"
//
// @Success     200  {object}  handlers.AccessBatchResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Empty or oversized batch"
// @Router      /access/batch [post]
func (h *Handlers) CheckAccessBatch(c *gin.Context) {
	var req AccessBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "items is required")
		return
	}
	out, err := h.access.HasBatch(c.Request.Context(), req.Items)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, AccessBatchResponse{Items: out})
}
