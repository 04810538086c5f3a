package handlers

import (
	"net/http"

	apperrors "busticket/internal/errors"
	"busticket/internal/models"

	"github.com/gin-gonic/gin"
)

// ProcessPayment - POST /api/payments
// A declined charge is a 402 carrying the failed payment.
func (h *Handlers) ProcessPayment(c *gin.Context) {
	var req models.ProcessPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.services.Payments.ProcessPayment(c.Request.Context(), &req)
	if err != nil {
		if apperrors.IsGateway(err) && result != nil {
			_ = c.Error(err)
			c.JSON(http.StatusBadGateway, result)
			return
		}
		respondError(c, "process payment", err)
		return
	}

	switch {
	case !result.Success:
		c.JSON(http.StatusPaymentRequired, result)
	case result.AlreadyPaid:
		c.JSON(http.StatusOK, result)
	default:
		c.JSON(http.StatusCreated, result)
	}
}

// GetPayment - GET /api/payments/:id
func (h *Handlers) GetPayment(c *gin.Context) {
	details, err := h.services.Payments.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "get payment", err)
		return
	}

	c.JSON(http.StatusOK, details)
}

// RefundPayment - POST /api/payments/:id/refund
func (h *Handlers) RefundPayment(c *gin.Context) {
	var req models.RefundPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.services.Payments.RefundPayment(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		if apperrors.IsGateway(err) && result != nil {
			_ = c.Error(err)
			c.JSON(http.StatusBadGateway, result)
			return
		}
		respondError(c, "refund payment", err)
		return
	}

	if !result.Success {
		c.JSON(http.StatusPaymentRequired, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// VerifyPayment - POST /api/payments/:id/verify
func (h *Handlers) VerifyPayment(c *gin.Context) {
	txn, err := h.services.Payments.VerifyPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "verify payment", err)
		return
	}

	c.JSON(http.StatusOK, txn)
}

// CancelPayment - POST /api/payments/:id/cancel
func (h *Handlers) CancelPayment(c *gin.Context) {
	payment, err := h.services.Payments.CancelPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "cancel payment", err)
		return
	}

	c.JSON(http.StatusOK, payment)
}
