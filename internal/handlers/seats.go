package handlers

import (
	"net/http"

	apperrors "busticket/internal/errors"

	"github.com/gin-gonic/gin"
)

// GenerateSeatMapRequest - rows x columns seat layout for a schedule
type GenerateSeatMapRequest struct {
	ScheduleID string `json:"schedule_id" binding:"required"`
	Rows       int    `json:"rows" binding:"required,min=1,max=26"`
	Columns    int    `json:"columns" binding:"required,min=1,max=10"`
}

// ListSeats - GET /api/seats?schedule_id=
func (h *Handlers) ListSeats(c *gin.Context) {
	scheduleID := c.Query("schedule_id")
	if scheduleID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "schedule_id is required", Code: apperrors.CodeInvalidRequest})
		return
	}

	resp, err := h.services.Seats.ListSeatMap(c.Request.Context(), scheduleID)
	if err != nil {
		respondError(c, "list seats", err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// BlockSeat - PATCH /api/seats/:id/block
func (h *Handlers) BlockSeat(c *gin.Context) {
	seat, err := h.services.Seats.BlockSeat(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "block seat", err)
		return
	}

	c.JSON(http.StatusOK, seat)
}

// UnblockSeat - PATCH /api/seats/:id/unblock
func (h *Handlers) UnblockSeat(c *gin.Context) {
	seat, err := h.services.Seats.UnblockSeat(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "unblock seat", err)
		return
	}

	c.JSON(http.StatusOK, seat)
}

// GenerateSeatMap - POST /api/seats/generate
func (h *Handlers) GenerateSeatMap(c *gin.Context) {
	var req GenerateSeatMapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	seats, err := h.services.Seats.GenerateSeatMap(c.Request.Context(), req.ScheduleID, req.Rows, req.Columns)
	if err != nil {
		respondError(c, "generate seat map", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"schedule_id": req.ScheduleID, "seats": seats})
}
