package handlers

import (
	"net/http"

	"busticket/internal/models"

	"github.com/gin-gonic/gin"
)

func bookingResponse(d *models.TicketDetails) models.BookingResponse {
	return models.BookingResponse{
		TicketID:        d.Ticket.ID,
		TicketNumber:    d.Ticket.TicketNumber,
		SeatNumber:      d.Seat.SeatNumber,
		Fare:            d.Ticket.Fare,
		JourneyDateTime: d.Schedule.JourneyDateTime(),
		IsConfirmed:     d.Ticket.IsConfirmed,
	}
}

// CreateBooking - POST /api/bookings
func (h *Handlers) CreateBooking(c *gin.Context) {
	var req models.BookSeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	details, err := h.services.Bookings.BookSeat(c.Request.Context(), &req)
	if err != nil {
		respondError(c, "create booking", err)
		return
	}

	c.JSON(http.StatusCreated, bookingResponse(details))
}

// GetBooking - GET /api/bookings/:ticketNumber
func (h *Handlers) GetBooking(c *gin.Context) {
	details, err := h.services.Bookings.GetTicket(c.Request.Context(), c.Param("ticketNumber"))
	if err != nil {
		respondError(c, "get booking", err)
		return
	}

	c.JSON(http.StatusOK, details)
}

// CancelBooking - PATCH /api/bookings/cancel
// A refused cancellation is still a 200 with success=false.
func (h *Handlers) CancelBooking(c *gin.Context) {
	var req models.CancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.services.Cancellations.CancelBooking(c.Request.Context(), &req)
	if err != nil {
		respondError(c, "cancel booking", err)
		return
	}

	c.JSON(http.StatusOK, result)
}
