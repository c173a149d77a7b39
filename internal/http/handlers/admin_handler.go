// Admin HTTP handlers, mounted behind middleware.AdminOnly.
//
//   - GET  /admin/vkeys
//   - POST /admin/vkeys
//   - POST /admin/vkeys/reload
//   - POST /admin/vkeys/{circuit}/{version}/activate
//   - POST /admin/vkeys/{circuit}/{version}/retire
//   - GET  /admin/stats
//   - POST /admin/pause
//   - POST /admin/access/extend
//   - GET  /admin/attestations
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/zk-paygate/internal/domain"
	"github.com/tbourn/zk-paygate/internal/http/middleware"
	"github.com/tbourn/zk-paygate/internal/repo"
	"github.com/tbourn/zk-paygate/internal/utils"
	"github.com/tbourn/zk-paygate/internal/vkeys"
)

// RegisterKeyRequest uploads verification-key parameters (snarkjs
// verification_key.json) for one circuit version.
type RegisterKeyRequest struct {
	Circuit  string          `json:"circuit" binding:"required" example:"spend"`
	Version  string          `json:"version" binding:"required" example:"v2"`
	Params   json.RawMessage `json:"params" binding:"required" swaggertype:"object"`
	Activate bool            `json:"activate"`
}

// KeyListResponse lists every registered key.
type KeyListResponse struct {
	Keys []vkeys.Key `json:"keys"`
}

// StatsResponse summarises stored sessions and attestations.
type StatsResponse struct {
	Sessions     map[domain.SessionStatus]int64 `json:"sessions"`
	Attestations map[string]int64               `json:"attestations"`
	Paused       bool                           `json:"paused"`
}

// PauseRequest switches payment intake.
type PauseRequest struct {
	Paused *bool `json:"paused" binding:"required"`
}

// ExtendAccessRequest lengthens a grant by Seconds.
type ExtendAccessRequest struct {
	ContentID string `json:"contentId" binding:"required"`
	SessionID string `json:"sessionId" binding:"required"`
	Seconds   int64  `json:"seconds" binding:"required,min=1,max=31536000" example:"3600"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// AttestationListResponse wraps a page of attestations.
type AttestationListResponse struct {
	Attestations []domain.CrossChainAttestation `json:"attestations"`
	Pagination   Pagination                     `json:"pagination"`
}

// ListKeys godoc
// @ID          listKeys
// @Summary     List verification keys
// @Tags        Admin
// @Produce     json
// @Security    AdminToken
// @Success     200  {object}  handlers.KeyListResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid admin token"
// @Router      /admin/vkeys [get]
func (h *Handlers) ListKeys(c *gin.Context) {
	ok(c, http.StatusOK, KeyListResponse{Keys: h.keys.List()})
}

// RegisterKey godoc
// @ID          registerKey
// @Summary     Register a verification key
// @Description Stores parameters for (circuit, version) after validating size, name format and that they parse. Optionally activates the version.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    AdminToken
// @Param       body  body  handlers.RegisterKeyRequest  true  "Key upload"
// @Success     201  {object}  vkeys.Key
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid parameters"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid admin token"
// @Failure     409  {object}  handlers.ErrorResponse  "Version already registered"
// @Router      /admin/vkeys [post]
func (h *Handlers) RegisterKey(c *gin.Context) {
	var req RegisterKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "circuit, version and params are required")
		return
	}
	k, err := h.keys.Register(c.Request.Context(), strings.TrimSpace(req.Circuit), strings.TrimSpace(req.Version), req.Params, req.Activate)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, k)
}

// ReloadKeys godoc
// @ID          reloadKeys
// @Summary     Reload verification keys from the database
// @Tags        Admin
// @Security    AdminToken
// @Success     204  {string}  string  "No Content"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid admin token"
// @Router      /admin/vkeys/reload [post]
func (h *Handlers) ReloadKeys(c *gin.Context) {
	if err := h.keys.Reload(c.Request.Context()); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// ActivateKey godoc
// @ID          activateKey
// @Summary     Activate a key version
// @Description Makes the version the only active key of its circuit.
// @Tags        Admin
// @Security    AdminToken
// @Param       circuit  path  string  true  "Circuit"  example(spend)
// @Param       version  path  string  true  "Version"  example(v2)
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown or retired key"
// @Router      /admin/vkeys/{circuit}/{version}/activate [post]
func (h *Handlers) ActivateKey(c *gin.Context) {
	if err := h.keys.Activate(c.Request.Context(), c.Param("circuit"), c.Param("version")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// RetireKey godoc
// @ID          retireKey
// @Summary     Retire a key version
// @Description A retired key can no longer verify proofs.
// @Tags        Admin
// @Security    AdminToken
// @Param       circuit  path  string  true  "Circuit"  example(spend)
// @Param       version  path  string  true  "Version"  example(v1)
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown key"
// @Router      /admin/vkeys/{circuit}/{version}/retire [post]
func (h *Handlers) RetireKey(c *gin.Context) {
	if err := h.keys.Retire(c.Request.Context(), c.Param("circuit"), c.Param("version")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// Stats godoc
// @ID          adminStats
// @Summary     Session and attestation counts
// @Tags        Admin
// @Produce     json
// @Security    AdminToken
// @Success     200  {object}  handlers.StatsResponse
// @Router      /admin/stats [get]
func (h *Handlers) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	sessions, err := repo.SessionStats(ctx, h.db)
	if err != nil {
		failErr(c, err)
		return
	}
	atts, err := repo.AttestationStats(ctx, h.db)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, StatsResponse{Sessions: sessions, Attestations: atts, Paused: h.payments.Paused()})
}

// SetPaused godoc
// @ID          setPaused
// @Summary     Pause or resume payments
// @Description While paused, /pay and /bridge/verify answer 503 payments_paused.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    AdminToken
// @Param       body  body  handlers.PauseRequest  true  "Desired state"
// @Success     200  {object}  handlers.PauseRequest
// @Router      /admin/pause [post]
func (h *Handlers) SetPaused(c *gin.Context) {
	var req PauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "paused is required")
		return
	}
	h.payments.SetPaused(*req.Paused)
	middleware.LoggerFrom(c).Warn().Bool("paused", *req.Paused).Msg("payment intake toggled")
	ok(c, http.StatusOK, req)
}

// ExtendAccess godoc
// @ID          extendAccess
// @Summary     Extend an access grant
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    AdminToken
// @Param       body  body  handlers.ExtendAccessRequest  true  "Grant to extend"
// @Success     200  {object}  handlers.AccessResponse
// @Router      /admin/access/extend [post]
func (h *Handlers) ExtendAccess(c *gin.Context) {
	var req ExtendAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "contentId, sessionId and seconds (1..31536000) are required")
		return
	}
	exp, err := h.access.Extend(c.Request.Context(), req.ContentID, req.SessionID, time.Duration(req.Seconds)*time.Second)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, AccessResponse{HasAccess: true, ExpiresAt: &exp})
}

// RevokeAccess godoc
// @ID          revokeAccess
// @Summary     Revoke an access grant
// @Description Removes the grant and stops status lookups from re-issuing it.
// @Tags        Admin
// @Security    AdminToken
// @Param       contentId  path  string  true  "Content ID"
// @Param       sessionId  path  string  true  "Session ID"
// @Success     204  "Revoked"
// @Failure     404  {object}  handlers.ErrorResponse  "No confirmed session for this content"
// @Router      /admin/access/{contentId}/{sessionId} [delete]
func (h *Handlers) RevokeAccess(c *gin.Context) {
	contentID, sessionID := c.Param("contentId"), c.Param("sessionId")
	if err := h.payments.RevokeAccess(c.Request.Context(), contentID, sessionID); err != nil {
		failErr(c, err)
		return
	}
	middleware.LoggerFrom(c).Warn().Str("content_id", contentID).Str("session_id", sessionID).Msg("access revoked by operator")
	noContent(c)
}

// ListAttestations godoc
// @ID          listAttestations
// @Summary     List cross-chain attestations (paginated)
// @Tags        Admin
// @Produce     json
// @Security    AdminToken
// @Param       status     query  string  false  "VERIFIED or FAILED"
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.AttestationListResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad status filter"
// @Router      /admin/attestations [get]
func (h *Handlers) ListAttestations(c *gin.Context) {
	status := strings.ToUpper(c.Query("status"))
	if status != "" && status != domain.AttestationVerified && status != domain.AttestationFailed {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status must be VERIFIED or FAILED")
		return
	}
	page := utils.ParsePage(c.Query("page"), c.Query("page_size"), 20, 100)

	items, total, err := repo.ListAttestationsPage(c.Request.Context(), h.db, status, page.Offset(), page.Size)
	if err != nil {
		failErr(c, err)
		return
	}
	pages := page.TotalPages(total)
	ok(c, http.StatusOK, AttestationListResponse{
		Attestations: items,
		Pagination: Pagination{
			Page:       page.Number,
			PageSize:   page.Size,
			Total:      total,
			TotalPages: pages,
			HasNext:    page.Number < pages,
		},
	})
}
