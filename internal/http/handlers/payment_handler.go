// Payment HTTP handlers.
//
// This file exposes the direct payment flow:
//   - POST /quote              (price content, open a session)
//   - POST /pay                (submit a spend proof, receive the key)
//   - GET  /status/{sessionId} (session state and access)
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/zk-paygate/internal/domain"
	"github.com/tbourn/zk-paygate/internal/http/middleware"
	"github.com/tbourn/zk-paygate/internal/proof"
	"github.com/tbourn/zk-paygate/internal/services"
)

func formatAmount(v int64) string { return strconv.FormatInt(v, 10) }

// QuoteRequest is the JSON payload for a quote.
type QuoteRequest struct {
	ContentID     string `json:"contentId" binding:"required,max=32" example:"article-1"`
	HasCredential bool   `json:"hasCredential" example:"false"`
}

// QuoteResponse is a priced, expiring offer. Amounts are integer strings.
type QuoteResponse struct {
	SessionID   string    `json:"sessionId" example:"3f2a9c1e-7b4d-4c8e-9a21-0d5e6f7a8b9c"`
	ContentID   string    `json:"contentId" example:"article-1"`
	Price       string    `json:"price" example:"1000000"`
	PlatformFee string    `json:"platformFee" example:"20000"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// PayRequest carries a spend proof for a quoted session.
type PayRequest struct {
	SessionID              string       `json:"sessionId" binding:"required"`
	Nullifier              string       `json:"nullifier" binding:"required"`
	Proof                  proof.Proof  `json:"proof"`
	PublicValues           []string     `json:"publicValues" binding:"required"`
	VKeyVersion            string       `json:"vkeyVersion,omitempty"`
	CredentialProof        *proof.Proof `json:"credentialProof,omitempty"`
	CredentialPublicValues []string     `json:"credentialPublicValues,omitempty"`
	Payer                  string       `json:"payer,omitempty"`
}

// Quote godoc
// @ID          createQuote
// @Summary     Quote content
// @Description Prices a content item and opens a PENDING payment session. With an Idempotency-Key a retry returns the same session.
// @Tags        Payments
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false  "Deduplicates retries"  example(order-42)
// @Param       X-Client-ID      header  string  false  "Caller name for limits and idempotency"
// @Param       body             body    handlers.QuoteRequest  true  "Quote payload"
//
// @Success     200  {object}  handlers.QuoteResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown content"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /quote [post]
func (h *Handlers) Quote(c *gin.Context) {
	var req QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ContentID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "contentId is required")
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)

	q, replayed, err := h.payments.QuoteOnce(c.Request.Context(), middleware.ClientID(c), key, req.ContentID, req.HasCredential)
	if err != nil {
		failErr(c, err)
		return
	}
	if replayed {
		c.Header("Idempotent-Replayed", "true")
	}
	ok(c, http.StatusOK, quoteResponse(q))
}

func quoteResponse(q *services.Quote) QuoteResponse {
	return QuoteResponse{
		SessionID:   q.SessionID,
		ContentID:   q.ContentID,
		Price:       formatAmount(q.Price),
		PlatformFee: formatAmount(q.PlatformFee),
		ExpiresAt:   q.ExpiresAt,
	}
}

// Pay godoc
// @ID          pay
// @Summary     Pay with a zero-knowledge proof
// @Description Verifies a spend proof bound to the session's nullifier and amount. On success the session is CONFIRMED and the decryption key is returned.
// @Tags        Payments
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.PayRequest  true  "Proof submission"
//
// @Success     200  {object}  services.Payment
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed input, unknown or expired session"
// @Failure     401  {object}  handlers.ErrorResponse  "Proof did not verify"
// @Failure     409  {object}  handlers.ErrorResponse  "Nullifier already used or session closed"
// @Failure     429  {object}  handlers.ErrorResponse  "Too many failed proofs"
// @Failure     503  {object}  handlers.ErrorResponse  "No active key or payments paused"
// @Router      /pay [post]
func (h *Handlers) Pay(c *gin.Context) {
	var req PayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "sessionId, nullifier, proof and publicValues are required")
		return
	}

	p, err := h.payments.SubmitProof(c.Request.Context(), services.SubmitRequest{
		SessionID:              req.SessionID,
		Nullifier:              req.Nullifier,
		Proof:                  req.Proof,
		PublicValues:           req.PublicValues,
		VKeyVersion:            req.VKeyVersion,
		CredentialProof:        req.CredentialProof,
		CredentialPublicValues: req.CredentialPublicValues,
		PayerHint:              req.Payer,
	})
	if err != nil {
		// Paying an unknown session is a client mistake, not a missing resource.
		if errors.Is(err, services.ErrSessionNotFound) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown session")
			return
		}
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// Status godoc
// @ID          sessionStatus
// @Summary     Session status
// @Description Returns the session's lifecycle state and whether it currently grants access.
// @Tags        Payments
// @Produce     json
//
// @Param       sessionId  path  string  true  "Session ID (UUID)"  format(uuid)
//
// @Success     200  {object}  services.SessionView
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown session"
// @Router      /status/{sessionId} [get]
func (h *Handlers) Status(c *gin.Context) {
	v, err := h.payments.Status(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, v)
}

// paused answers 503 payments_paused when intake is switched off.
func (h *Handlers) paused(c *gin.Context) bool {
	if h.payments != nil && h.payments.Paused() {
		failErr(c, domain.ErrPaused)
		return true
	}
	return false
}
