package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "busticket/internal/errors"
	"busticket/internal/external"
	"busticket/internal/models"
	"busticket/internal/repository"
	"busticket/internal/repository/memory"
	"busticket/internal/search"
	"busticket/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

type fakeSearcher struct {
	last search.TicketQuery
	resp *models.TicketSearchResponse
}

func (f *fakeSearcher) SearchTickets(_ context.Context, q search.TicketQuery) (*models.TicketSearchResponse, error) {
	f.last = q
	return f.resp, nil
}

type testEnv struct {
	router   *gin.Engine
	gateway  *external.MockGateway
	searcher *fakeSearcher
	schedule *models.Schedule
	seats    []models.Seat
}

func setupRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	env := &testEnv{
		gateway:  external.NewMockGateway(external.MockConfig{Enabled: true}),
		searcher: &fakeSearcher{resp: &models.TicketSearchResponse{}},
	}
	services := service.NewServices(service.Deps{
		Store:          store,
		Clock:          clockwork.NewFakeClockAt(testNow),
		Gateways:       external.NewRegistry(env.gateway),
		GatewayTimeout: time.Second,
	})

	departs := testNow.Add(48 * time.Hour)
	day := time.Date(departs.Year(), departs.Month(), departs.Day(), 0, 0, 0, 0, time.UTC)
	env.schedule = &models.Schedule{
		RouteName:      "Kampala - Nairobi",
		Origin:         "Kampala",
		Destination:    "Nairobi",
		BusNumber:      "UBA 204K",
		BusType:        "Executive",
		Date:           day,
		DepartureTime:  departs.Sub(day),
		Fare:           models.NewMoney(350000, "KES"),
		BoardingPoints: []string{"Kampala Park"},
		DroppingPoints: []string{"Nairobi CBD"},
		IsActive:       true,
	}
	ctx := context.Background()
	require.NoError(t, store.WithinTx(ctx, func(repos *repository.Repositories) error {
		return repos.Schedules.Create(ctx, env.schedule)
	}))
	seats, err := services.Seats.GenerateSeatMap(ctx, env.schedule.ID, 1, 2)
	require.NoError(t, err)
	env.seats = seats

	h := NewHandlers(services, env.searcher)
	r := gin.New()
	api := r.Group("/api")
	{
		bookings := api.Group("/bookings")
		{
			bookings.POST("", h.CreateBooking)
			bookings.GET("/:ticketNumber", h.GetBooking)
			bookings.PATCH("/cancel", h.CancelBooking)
		}

		payments := api.Group("/payments")
		{
			payments.POST("", h.ProcessPayment)
			payments.GET("/:id", h.GetPayment)
			payments.POST("/:id/refund", h.RefundPayment)
			payments.POST("/:id/verify", h.VerifyPayment)
			payments.POST("/:id/cancel", h.CancelPayment)
		}

		seats := api.Group("/seats")
		{
			seats.GET("", h.ListSeats)
			seats.POST("/generate", h.GenerateSeatMap)
			seats.PATCH("/:id/block", h.BlockSeat)
			seats.PATCH("/:id/unblock", h.UnblockSeat)
		}

		api.GET("/tickets/search", h.SearchTickets)
	}
	env.router = r
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (e *testEnv) bookSeat(t *testing.T, seatID string) models.BookingResponse {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/bookings", models.BookSeatRequest{
		ScheduleID:    e.schedule.ID,
		SeatID:        seatID,
		PassengerName: "Joseph Mukasa",
		Phone:         "+256 700 123456",
		BoardingPoint: "Kampala Park",
		DroppingPoint: "Nairobi CBD",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.BookingResponse](t, w)
}

func TestCreateBooking(t *testing.T) {
	env := setupRouter(t)

	booking := env.bookSeat(t, env.seats[0].ID)
	assert.NotEmpty(t, booking.TicketNumber)
	assert.Equal(t, "A1", booking.SeatNumber)
	assert.Equal(t, int64(350000), booking.Fare.Amount)
	assert.False(t, booking.IsConfirmed)

	w := env.do(t, http.MethodPost, "/api/bookings", models.BookSeatRequest{
		ScheduleID:    env.schedule.ID,
		SeatID:        env.seats[0].ID,
		PassengerName: "Second Passenger",
		Phone:         "+256 700 654321",
		BoardingPoint: "Kampala Park",
		DroppingPoint: "Nairobi CBD",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apperrors.CodeSeatNotAvailable, decode[ErrorResponse](t, w).Code)
}

func TestCreateBookingValidation(t *testing.T) {
	env := setupRouter(t)

	w := env.do(t, http.MethodPost, "/api/bookings", map[string]string{"seat_id": env.seats[0].ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperrors.CodeInvalidRequest, decode[ErrorResponse](t, w).Code)

	w = env.do(t, http.MethodPost, "/api/bookings", models.BookSeatRequest{
		ScheduleID:    env.schedule.ID,
		SeatID:        env.seats[0].ID,
		PassengerName: "Joseph Mukasa",
		Phone:         "+256 700 123456",
		BoardingPoint: "Entebbe",
		DroppingPoint: "Nairobi CBD",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, apperrors.CodeInvalidPoint, decode[ErrorResponse](t, w).Code)
}

func TestGetBooking(t *testing.T) {
	env := setupRouter(t)
	booking := env.bookSeat(t, env.seats[1].ID)

	w := env.do(t, http.MethodGet, "/api/bookings/"+booking.TicketNumber, nil)
	require.Equal(t, http.StatusOK, w.Code)
	details := decode[models.TicketDetails](t, w)
	assert.Equal(t, booking.TicketID, details.Ticket.ID)
	assert.Equal(t, "Joseph Mukasa", details.Passenger.Name)

	w = env.do(t, http.MethodGet, "/api/bookings/TKT-MISSING", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperrors.CodeTicketNotFound, decode[ErrorResponse](t, w).Code)
}

func TestPaymentFlow(t *testing.T) {
	env := setupRouter(t)
	booking := env.bookSeat(t, env.seats[0].ID)

	payReq := models.ProcessPaymentRequest{
		TicketID: booking.TicketID,
		Amount:   booking.Fare.Amount,
		Method:   string(models.MethodMobileMoney),
		Gateway:  string(models.GatewayMock),
	}
	w := env.do(t, http.MethodPost, "/api/payments", payReq)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	paid := decode[models.PaymentResult](t, w)
	require.True(t, paid.Success)
	require.NotNil(t, paid.Payment)
	paymentID := paid.Payment.ID

	w = env.do(t, http.MethodPost, "/api/payments", payReq)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[models.PaymentResult](t, w).AlreadyPaid)

	w = env.do(t, http.MethodPost, "/api/payments/"+paymentID+"/refund", models.RefundPaymentRequest{Amount: 100000, Reason: "partial"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[models.RefundResult](t, w).Success)

	w = env.do(t, http.MethodPost, "/api/payments/"+paymentID+"/refund", models.RefundPaymentRequest{Amount: 300000})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, apperrors.CodeRefundExceedsRemaining, decode[ErrorResponse](t, w).Code)

	w = env.do(t, http.MethodPost, "/api/payments/"+paymentID+"/verify", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/payments/"+paymentID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	details := decode[models.PaymentDetailsResponse](t, w)
	assert.Equal(t, int64(100000), details.Payment.RefundedAmount)
	require.Len(t, details.Transactions, 3)
	assert.Equal(t, models.ActionCharge, details.Transactions[0].Action)

	w = env.do(t, http.MethodPost, "/api/payments/"+paymentID+"/cancel", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, apperrors.CodeInvalidPaymentState, decode[ErrorResponse](t, w).Code)
}

func TestPaymentDeclined(t *testing.T) {
	env := setupRouter(t)
	booking := env.bookSeat(t, env.seats[0].ID)
	env.gateway.SetDecline(true)

	w := env.do(t, http.MethodPost, "/api/payments", models.ProcessPaymentRequest{
		TicketID: booking.TicketID,
		Amount:   booking.Fare.Amount,
		Method:   string(models.MethodCard),
		Gateway:  string(models.GatewayMock),
	})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	res := decode[models.PaymentResult](t, w)
	assert.False(t, res.Success)
	require.NotNil(t, res.Payment)
	assert.Equal(t, models.PaymentFailed, res.Payment.Status)
}

func TestPaymentUnknownGateway(t *testing.T) {
	env := setupRouter(t)
	booking := env.bookSeat(t, env.seats[0].ID)

	w := env.do(t, http.MethodPost, "/api/payments", models.ProcessPaymentRequest{
		TicketID: booking.TicketID,
		Amount:   booking.Fare.Amount,
		Method:   string(models.MethodCard),
		Gateway:  "paypal",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperrors.CodeUnknownGateway, decode[ErrorResponse](t, w).Code)
}

func TestCancelBooking(t *testing.T) {
	env := setupRouter(t)
	booking := env.bookSeat(t, env.seats[0].ID)

	w := env.do(t, http.MethodPatch, "/api/bookings/cancel", models.CancelBookingRequest{
		TicketNumber: booking.TicketNumber,
		Phone:        "+256 799 000000",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[models.CancellationResult](t, w).Success)

	w = env.do(t, http.MethodPatch, "/api/bookings/cancel", models.CancelBookingRequest{
		TicketNumber: booking.TicketNumber,
		Phone:        "+256 700 123456",
		Reason:       "change of plans",
	})
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[models.CancellationResult](t, w)
	assert.True(t, res.Success)
	assert.Equal(t, 100, res.RefundPercentage)
	assert.Equal(t, int64(350000), res.RefundAmount.Amount)

	w = env.do(t, http.MethodGet, "/api/seats?schedule_id="+env.schedule.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[models.SeatMapResponse](t, w).Available)
}

func TestSeatAdministration(t *testing.T) {
	env := setupRouter(t)
	seatID := env.seats[1].ID

	w := env.do(t, http.MethodPatch, "/api/seats/"+seatID+"/block", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.SeatBlocked, decode[models.Seat](t, w).Status)

	w = env.do(t, http.MethodPatch, "/api/seats/"+seatID+"/block", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodGet, "/api/seats?schedule_id="+env.schedule.ID, nil)
	assert.Equal(t, 1, decode[models.SeatMapResponse](t, w).Available)

	w = env.do(t, http.MethodPatch, "/api/seats/"+seatID+"/unblock", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.SeatAvailable, decode[models.Seat](t, w).Status)

	w = env.do(t, http.MethodGet, "/api/seats", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/seats/generate", GenerateSeatMapRequest{ScheduleID: env.schedule.ID, Rows: 2, Columns: 2})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSearchTickets(t *testing.T) {
	env := setupRouter(t)
	env.searcher.resp = &models.TicketSearchResponse{Total: 1, Tickets: []models.TicketDocument{{TicketNumber: "TKT-1"}}}

	w := env.do(t, http.MethodGet, "/api/tickets/search?query=mukasa&phone=0700123456&page=2&pageSize=5", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int64(1), decode[models.TicketSearchResponse](t, w).Total)
	assert.Equal(t, "mukasa", env.searcher.last.Text)
	assert.Equal(t, 2, env.searcher.last.Page)
	assert.Equal(t, 5, env.searcher.last.PageSize)
	assert.NotEmpty(t, env.searcher.last.Phone)

	w = env.do(t, http.MethodGet, "/api/tickets/search?pageSize=500", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHandlers(service.NewServices(service.Deps{Store: memory.NewStore()}), nil)
	r := gin.New()
	r.GET("/api/tickets/search", h.SearchTickets)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/tickets/search", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
