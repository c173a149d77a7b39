// Bridge HTTP handler.
//
//   - POST /bridge/verify  (confirm a payment made on another chain)
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/zk-paygate/internal/bridge"
	"github.com/tbourn/zk-paygate/internal/domain"
	"github.com/tbourn/zk-paygate/internal/http/middleware"
)

// BridgeVerifyRequest names a guardian-signed message. Sequence is accepted
// as a JSON number or an integer string.
type BridgeVerifyRequest struct {
	OriginChain   uint16      `json:"originChain" binding:"required" example:"2"`
	OriginAddress string      `json:"originAddress" binding:"required" example:"0x000000000000000000000000aabbccddeeff00112233445566778899aabbccdd"`
	Sequence      json.Number `json:"sequence" swaggertype:"string" example:"1042"`
}

// BridgeVerifyResponse reports the confirmed session.
type BridgeVerifyResponse struct {
	SessionID string               `json:"sessionId"`
	ContentID string               `json:"contentId"`
	Status    domain.SessionStatus `json:"status" example:"CONFIRMED"`
}

// BridgeVerify godoc
// @ID          bridgeVerify
// @Summary     Verify a cross-chain payment
// @Description Fetches the guardian-signed message, checks origin, quorum, payload and freshness, and confirms the referenced session once.
// @Tags        Bridge
// @Accept      json
// @Produce     json
//
// @Param       X-Client-ID  header  string  false  "Caller name for rate limiting"
// @Param       body         body    handlers.BridgeVerifyRequest  true  "Message reference"
//
// @Success     200  {object}  handlers.BridgeVerifyResponse
// @Success     202  {object}  handlers.ErrorResponse  "Quorum not reached yet; retry later"
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed or stale message"
// @Failure     401  {object}  handlers.ErrorResponse  "Signatures did not verify"
// @Failure     409  {object}  handlers.ErrorResponse  "Message or nullifier already used"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     502  {object}  handlers.ErrorResponse  "Guardian API unavailable"
// @Failure     503  {object}  handlers.ErrorResponse  "Payments paused or bridge disabled"
// @Router      /bridge/verify [post]
func (h *Handlers) BridgeVerify(c *gin.Context) {
	if h.paused(c) {
		return
	}
	if h.bridge == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeConfiguration, "bridge verification is not configured")
		return
	}
	var req BridgeVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "originChain, originAddress and sequence are required")
		return
	}
	seq, err := strconv.ParseUint(req.Sequence.String(), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "sequence must be an unsigned integer")
		return
	}

	sess, err := h.bridge.VerifyAndProcess(c.Request.Context(), bridge.Request{
		OriginChain:   req.OriginChain,
		OriginAddress: req.OriginAddress,
		Sequence:      seq,
		ClientID:      middleware.ClientID(c),
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, BridgeVerifyResponse{
		SessionID: sess.ID,
		ContentID: sess.ContentID,
		Status:    sess.Status,
	})
}
