package handlers

import (
	"context"
	"net/http"
	"strconv"

	apperrors "busticket/internal/errors"
	"busticket/internal/logger"
	"busticket/internal/models"
	"busticket/internal/search"
	"busticket/internal/service"

	"github.com/gin-gonic/gin"
)

// TicketSearcher is satisfied by *search.ElasticsearchClient.
type TicketSearcher interface {
	SearchTickets(ctx context.Context, q search.TicketQuery) (*models.TicketSearchResponse, error)
}

type Handlers struct {
	services *service.Services
	search   TicketSearcher
}

// NewHandlers wires the HTTP layer. searcher may be nil when Elasticsearch
// is disabled; the search endpoint then answers 503.
func NewHandlers(services *service.Services, searcher TicketSearcher) *Handlers {
	return &Handlers{
		services: services,
		search:   searcher,
	}
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func statusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindBusinessRule:
		return http.StatusUnprocessableEntity
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindGateway:
		return http.StatusBadGateway
	case apperrors.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// respondError maps a service error onto a status code. Internal errors
// are logged and their message hidden from the client.
func respondError(c *gin.Context, op string, err error) {
	_ = c.Error(err)

	e, ok := apperrors.As(err)
	if !ok || e.Kind == apperrors.KindInternal {
		logger.WithContext(c.Request.Context()).Error("Failed to "+op, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to " + op,
			Code:  apperrors.CodeInternal,
		})
		return
	}

	c.JSON(statusFor(e.Kind), ErrorResponse{Error: e.Error(), Code: e.Code})
}

func badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: apperrors.CodeInvalidRequest})
}

// SearchTickets - GET /api/tickets/search
func (h *Handlers) SearchTickets(c *gin.Context) {
	if h.search == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "ticket search is disabled", Code: "SEARCH_DISABLED"})
		return
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "page must be >= 1", Code: apperrors.CodeInvalidRequest})
		return
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	if err != nil || pageSize < 1 || pageSize > 100 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "pageSize must be between 1 and 100", Code: apperrors.CodeInvalidRequest})
		return
	}

	q := search.TicketQuery{
		Text:       c.Query("query"),
		ScheduleID: c.Query("schedule_id"),
		Status:     c.Query("status"),
		Date:       c.Query("date"),
		Page:       page,
		PageSize:   pageSize,
	}
	if raw := c.Query("phone"); raw != "" {
		phone, err := models.NewPhoneNumber(raw)
		if err != nil {
			respondError(c, "search tickets", err)
			return
		}
		q.Phone = phone.String()
	}

	resp, err := h.search.SearchTickets(c.Request.Context(), q)
	if err != nil {
		respondError(c, "search tickets", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
