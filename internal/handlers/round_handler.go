package handlers

import (
	"errors"
	"math/big"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/raffleworks/raffle-backend/internal/services"
)

// RoundHandler handles round-related HTTP requests
type RoundHandler struct {
	roundService services.RoundService
}

// NewRoundHandler creates a new RoundHandler
func NewRoundHandler(roundService services.RoundService) *RoundHandler {
	return &RoundHandler{
		roundService: roundService,
	}
}

// EnterRequest is the payload for POST /entries
type EnterRequest struct {
	Participant string `json:"participant" binding:"required"`
	Amount      int64  `json:"amount" binding:"required"`
}

// Enter handles POST /entries
func (h *RoundHandler) Enter(c *gin.Context) {
	var request EnterRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.roundService.Enter(c.Request.Context(), request.Participant, request.Amount)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInsufficientPayment), errors.Is(err, services.ErrMissingParticipant):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrRoundNotOpen):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record entry: " + err.Error()})
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Entry accepted"})
}

// CheckEligibility handles GET /eligibility
func (h *RoundHandler) CheckEligibility(c *gin.Context) {
	c.JSON(http.StatusOK, h.roundService.CheckEligibility(c.Request.Context()))
}

// RequestSettlement handles POST /settlements
func (h *RoundHandler) RequestSettlement(c *gin.Context) {
	requestID, err := h.roundService.RequestSettlement(c.Request.Context())
	if err != nil {
		var notEligible *services.NotEligibleError
		if errors.As(err, &notEligible) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "eligibility": notEligible.Eligibility})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to request settlement: " + err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"requestId": requestID})
}

// DeliverRandomnessRequest is the payload the oracle POSTs on delivery.
// Random values are decimal strings; they routinely exceed 64 bits.
type DeliverRandomnessRequest struct {
	RequestID    string   `json:"requestId" binding:"required"`
	RandomValues []string `json:"randomValues" binding:"required"`
}

// DeliverRandomness handles POST /randomness (oracle callback)
func (h *RoundHandler) DeliverRandomness(c *gin.Context) {
	var request DeliverRandomnessRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	values := make([]*big.Int, 0, len(request.RandomValues))
	for _, s := range request.RandomValues {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid random value: " + s})
			return
		}
		values = append(values, v)
	}

	err := h.roundService.DeliverRandomness(c.Request.Context(), request.RequestID, values)
	if err != nil {
		var transferErr *services.TransferError
		switch {
		case errors.Is(err, services.ErrUnknownRequest):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrStaleRequest):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrNoRandomValues):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.As(err, &transferErr):
			// Settlement state is committed; only the payout failed.
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "winner": transferErr.Winner, "amount": transferErr.Amount})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to apply randomness: " + err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Settlement completed"})
}

// GetRound handles GET /round
func (h *RoundHandler) GetRound(c *gin.Context) {
	c.JSON(http.StatusOK, h.roundService.Snapshot(c.Request.Context()))
}

// RerequestRandomness handles POST /admin/rerequest
func (h *RoundHandler) RerequestRandomness(c *gin.Context) {
	requestID, err := h.roundService.RerequestRandomness(c.Request.Context())
	if err != nil {
		if errors.Is(err, services.ErrRequestNotStuck) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to re-request randomness: " + err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"requestId": requestID})
}
