// Package memory is an in-process implementation of repository.Store used
// by tests and by the API when no database is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"busticket/internal/models"
	"busticket/internal/repository"

	"github.com/google/uuid"
)

type state struct {
	schedules    map[string]models.Schedule
	seats        map[string]models.Seat
	passengers   map[string]models.Passenger
	tickets      map[string]models.Ticket
	payments     map[string]models.Payment
	transactions []models.Transaction
}

func newState() *state {
	return &state{
		schedules:  make(map[string]models.Schedule),
		seats:      make(map[string]models.Seat),
		passengers: make(map[string]models.Passenger),
		tickets:    make(map[string]models.Ticket),
		payments:   make(map[string]models.Payment),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.schedules {
		c.schedules[k] = v
	}
	for k, v := range s.seats {
		c.seats[k] = v
	}
	for k, v := range s.passengers {
		c.passengers[k] = v
	}
	for k, v := range s.tickets {
		c.tickets[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	c.transactions = append([]models.Transaction(nil), s.transactions...)
	return c
}

// Store serializes every unit of work. A transaction operates on a copy
// of the state that replaces the live state only when fn succeeds.
type Store struct {
	mu sync.RWMutex
	st *state

	faultMu sync.Mutex
	faults  map[string]error
}

func NewStore() *Store {
	return &Store{st: newState(), faults: make(map[string]error)}
}

func (s *Store) WithinTx(ctx context.Context, fn func(repos *repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(s.repos(work)); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) View(ctx context.Context, fn func(repos *repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	snapshot := s.st.clone()
	s.mu.RUnlock()
	return fn(s.repos(snapshot))
}

// InjectFault makes the named operation (e.g. "tickets.create") fail with
// err until ClearFaults is called.
func (s *Store) InjectFault(op string, err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.faults[op] = err
}

func (s *Store) ClearFaults() {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.faults = make(map[string]error)
}

func (s *Store) fault(op string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	return s.faults[op]
}

func (s *Store) repos(st *state) *repository.Repositories {
	return &repository.Repositories{
		Schedules:    &scheduleRepo{s: s, st: st},
		Seats:        &seatRepo{s: s, st: st},
		Passengers:   &passengerRepo{s: s, st: st},
		Tickets:      &ticketRepo{s: s, st: st},
		Payments:     &paymentRepo{s: s, st: st},
		Transactions: &transactionRepo{s: s, st: st},
	}
}

type scheduleRepo struct {
	s  *Store
	st *state
}

func (r *scheduleRepo) GetScheduleWithDetails(_ context.Context, id string) (*models.Schedule, error) {
	sch, ok := r.st.schedules[id]
	if !ok {
		return nil, nil
	}
	return &sch, nil
}

func (r *scheduleRepo) Create(_ context.Context, sch *models.Schedule) error {
	if err := r.s.fault("schedules.create"); err != nil {
		return err
	}
	if sch.ID == "" {
		sch.ID = uuid.New().String()
	}
	if sch.Fare.Currency == "" {
		sch.Fare.Currency = models.DefaultCurrency
	}
	if sch.CreatedAt.IsZero() {
		sch.CreatedAt = time.Now().UTC()
	}
	r.st.schedules[sch.ID] = *sch
	return nil
}

type seatRepo struct {
	s  *Store
	st *state
}

func (r *seatRepo) GetByID(_ context.Context, id string) (*models.Seat, error) {
	seat, ok := r.st.seats[id]
	if !ok {
		return nil, nil
	}
	return &seat, nil
}

func (r *seatRepo) GetByIDForUpdate(ctx context.Context, id string) (*models.Seat, error) {
	return r.GetByID(ctx, id)
}

func (r *seatRepo) ListBySchedule(_ context.Context, scheduleID string) ([]models.Seat, error) {
	var seats []models.Seat
	for _, seat := range r.st.seats {
		if seat.ScheduleID == scheduleID {
			seats = append(seats, seat)
		}
	}
	sort.Slice(seats, func(i, j int) bool {
		if seats[i].Row != seats[j].Row {
			return seats[i].Row < seats[j].Row
		}
		return seats[i].Column < seats[j].Column
	})
	return seats, nil
}

func (r *seatRepo) Update(_ context.Context, seat *models.Seat) error {
	if err := r.s.fault("seats.update"); err != nil {
		return err
	}
	if _, ok := r.st.seats[seat.ID]; !ok {
		return errNotFound("seat", seat.ID)
	}
	r.st.seats[seat.ID] = *seat
	return nil
}

func (r *seatRepo) CreateSeatMap(_ context.Context, scheduleID string, rows, columns int) ([]models.Seat, error) {
	if err := r.s.fault("seats.create"); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	seats := make([]models.Seat, 0, rows*columns)
	for row := 1; row <= rows; row++ {
		for col := 1; col <= columns; col++ {
			seat := models.Seat{
				ID:         uuid.New().String(),
				ScheduleID: scheduleID,
				SeatNumber: models.SeatLabel(row, col),
				Row:        row,
				Column:     col,
				Status:     models.SeatAvailable,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			r.st.seats[seat.ID] = seat
			seats = append(seats, seat)
		}
	}
	return seats, nil
}

type passengerRepo struct {
	s  *Store
	st *state
}

func (r *passengerRepo) GetByPhone(_ context.Context, phone models.PhoneNumber) (*models.Passenger, error) {
	for _, p := range r.st.passengers {
		if p.Phone == phone {
			return &p, nil
		}
	}
	return nil, nil
}

func (r *passengerRepo) Upsert(_ context.Context, p *models.Passenger) error {
	if err := r.s.fault("passengers.upsert"); err != nil {
		return err
	}
	for id, existing := range r.st.passengers {
		if existing.Phone != p.Phone {
			continue
		}
		existing.Name = p.Name
		if p.Email != nil {
			existing.Email = p.Email
		}
		if p.Gender != nil {
			existing.Gender = p.Gender
		}
		if p.Age != nil {
			existing.Age = p.Age
		}
		existing.UpdatedAt = p.UpdatedAt
		r.st.passengers[id] = existing
		*p = existing
		return nil
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	r.st.passengers[p.ID] = *p
	return nil
}

type ticketRepo struct {
	s  *Store
	st *state
}

func (r *ticketRepo) Create(_ context.Context, t *models.Ticket) error {
	if err := r.s.fault("tickets.create"); err != nil {
		return err
	}
	for _, existing := range r.st.tickets {
		if existing.TicketNumber == t.TicketNumber {
			return repository.ErrDuplicateTicketNumber
		}
		if existing.SeatID == t.SeatID && !existing.IsCancelled {
			return errDuplicate("live ticket for seat", t.SeatID)
		}
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	r.st.tickets[t.ID] = *t
	return nil
}

func (r *ticketRepo) GetByIDForUpdate(_ context.Context, id string) (*models.Ticket, error) {
	t, ok := r.st.tickets[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *ticketRepo) details(t models.Ticket) models.TicketDetails {
	return models.TicketDetails{
		Ticket:    t,
		Passenger: r.st.passengers[t.PassengerID],
		Schedule:  r.st.schedules[t.ScheduleID],
		Seat:      r.st.seats[t.SeatID],
	}
}

func (r *ticketRepo) GetDetailsByID(_ context.Context, id string) (*models.TicketDetails, error) {
	t, ok := r.st.tickets[id]
	if !ok {
		return nil, nil
	}
	d := r.details(t)
	return &d, nil
}

func (r *ticketRepo) GetDetailsByNumber(_ context.Context, number string) (*models.TicketDetails, error) {
	for _, t := range r.st.tickets {
		if t.TicketNumber == number {
			d := r.details(t)
			return &d, nil
		}
	}
	return nil, nil
}

func (r *ticketRepo) Update(_ context.Context, t *models.Ticket) error {
	if err := r.s.fault("tickets.update"); err != nil {
		return err
	}
	if _, ok := r.st.tickets[t.ID]; !ok {
		return errNotFound("ticket", t.ID)
	}
	r.st.tickets[t.ID] = *t
	return nil
}

func (r *ticketRepo) ListDepartingBetween(_ context.Context, from, to time.Time) ([]models.TicketDetails, error) {
	var out []models.TicketDetails
	for _, t := range r.st.tickets {
		if t.IsCancelled {
			continue
		}
		sch, ok := r.st.schedules[t.ScheduleID]
		if !ok {
			continue
		}
		departs := sch.JourneyDateTime()
		if departs.Before(from) || !departs.Before(to) {
			continue
		}
		out = append(out, r.details(t))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Ticket.TicketNumber < out[j].Ticket.TicketNumber
	})
	return out, nil
}

type paymentRepo struct {
	s  *Store
	st *state
}

func (r *paymentRepo) Create(_ context.Context, p *models.Payment) error {
	if err := r.s.fault("payments.create"); err != nil {
		return err
	}
	for _, existing := range r.st.payments {
		if existing.TransactionID == p.TransactionID {
			return errDuplicate("payment transaction id", p.TransactionID)
		}
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	r.st.payments[p.ID] = *p
	return nil
}

func (r *paymentRepo) GetByID(_ context.Context, id string) (*models.Payment, error) {
	p, ok := r.st.payments[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *paymentRepo) GetByIDForUpdate(ctx context.Context, id string) (*models.Payment, error) {
	return r.GetByID(ctx, id)
}

func (r *paymentRepo) GetSucceededByTicket(_ context.Context, ticketID string) (*models.Payment, error) {
	for _, p := range r.st.payments {
		if p.TicketID != ticketID {
			continue
		}
		switch p.Status {
		case models.PaymentCompleted, models.PaymentPartiallyRefunded, models.PaymentRefunded:
			return &p, nil
		}
	}
	return nil, nil
}

func (r *paymentRepo) ListByTicket(_ context.Context, ticketID string) ([]models.Payment, error) {
	var out []models.Payment
	for _, p := range r.st.payments {
		if p.TicketID == ticketID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *paymentRepo) Update(_ context.Context, p *models.Payment) error {
	if err := r.s.fault("payments.update"); err != nil {
		return err
	}
	if _, ok := r.st.payments[p.ID]; !ok {
		return errNotFound("payment", p.ID)
	}
	r.st.payments[p.ID] = *p
	return nil
}

type transactionRepo struct {
	s  *Store
	st *state
}

func (r *transactionRepo) Append(_ context.Context, t *models.Transaction) error {
	if err := r.s.fault("transactions.append"); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	r.st.transactions = append(r.st.transactions, *t)
	return nil
}

func (r *transactionRepo) ListByPayment(_ context.Context, paymentID string) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, t := range r.st.transactions {
		if t.PaymentID == paymentID {
			out = append(out, t)
		}
	}
	return out, nil
}
