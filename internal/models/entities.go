package models

import (
	"time"

	apperrors "busticket/internal/errors"
)

// Schedule is a single departure of a bus on a route. It is owned by the
// schedule management surface and read-only here.
type Schedule struct {
	ID             string        `json:"id" db:"id"`
	RouteName      string        `json:"route_name" db:"route_name"`
	Origin         string        `json:"origin" db:"origin"`
	Destination    string        `json:"destination" db:"destination"`
	BusNumber      string        `json:"bus_number" db:"bus_number"`
	BusType        string        `json:"bus_type" db:"bus_type"`
	Date           time.Time     `json:"schedule_date" db:"schedule_date"`
	DepartureTime  time.Duration `json:"departure_time" db:"departure_time"`
	Fare           Money         `json:"fare"`
	BoardingPoints []string      `json:"boarding_points" db:"boarding_points"`
	DroppingPoints []string      `json:"dropping_points" db:"dropping_points"`
	IsActive       bool          `json:"is_active" db:"is_active"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
}

// JourneyDateTime is the schedule date plus the time of day the bus departs, in UTC.
func (s *Schedule) JourneyDateTime() time.Time {
	d := s.Date.UTC()
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC).Add(s.DepartureTime)
}

// HasBoardingPoint reports whether p is allowed. A schedule without a list accepts anything.
func (s *Schedule) HasBoardingPoint(p string) bool {
	return containsOrEmpty(s.BoardingPoints, p)
}

func (s *Schedule) HasDroppingPoint(p string) bool {
	return containsOrEmpty(s.DroppingPoints, p)
}

func containsOrEmpty(list []string, v string) bool {
	if len(list) == 0 {
		return true
	}
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Passenger is identified by normalized phone number
type Passenger struct {
	ID        string      `json:"id" db:"id"`
	Name      string      `json:"name" db:"name"`
	Phone     PhoneNumber `json:"phone" db:"phone"`
	Email     *string     `json:"email,omitempty" db:"email"`
	Gender    *string     `json:"gender,omitempty" db:"gender"`
	Age       *int        `json:"age,omitempty" db:"age"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}

// Ticket is never deleted; cancellation and confirmation are flags.
type Ticket struct {
	ID                 string     `json:"id" db:"id"`
	TicketNumber       string     `json:"ticket_number" db:"ticket_number"`
	ScheduleID         string     `json:"schedule_id" db:"schedule_id"`
	PassengerID        string     `json:"passenger_id" db:"passenger_id"`
	SeatID             string     `json:"seat_id" db:"seat_id"`
	BoardingPoint      string     `json:"boarding_point" db:"boarding_point"`
	DroppingPoint      string     `json:"dropping_point" db:"dropping_point"`
	Fare               Money      `json:"fare"`
	BookedAt           time.Time  `json:"booked_at" db:"booked_at"`
	IsConfirmed        bool       `json:"is_confirmed" db:"is_confirmed"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty" db:"confirmed_at"`
	IsCancelled        bool       `json:"is_cancelled" db:"is_cancelled"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancellationReason *string    `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// Confirm marks the ticket paid. Cancelled tickets can never be confirmed.
func (t *Ticket) Confirm(at time.Time) error {
	if t.IsCancelled {
		return apperrors.BusinessRule(apperrors.CodeCannotPayCancelled, "ticket %s is cancelled", t.TicketNumber)
	}
	if t.IsConfirmed {
		return apperrors.Conflict(apperrors.CodeAlreadyConfirmed, "ticket %s is already confirmed", t.TicketNumber)
	}
	t.IsConfirmed = true
	t.ConfirmedAt = &at
	return nil
}

func (t *Ticket) Cancel(at time.Time, reason string) error {
	if t.IsCancelled {
		return apperrors.Conflict(apperrors.CodeAlreadyCancelled, "ticket %s is already cancelled", t.TicketNumber)
	}
	t.IsCancelled = true
	t.CancelledAt = &at
	if reason != "" {
		t.CancellationReason = &reason
	}
	return nil
}

// TicketDetails is a ticket loaded together with everything it references
type TicketDetails struct {
	Ticket    Ticket    `json:"ticket"`
	Passenger Passenger `json:"passenger"`
	Schedule  Schedule  `json:"schedule"`
	Seat      Seat      `json:"seat"`
}

func (d *TicketDetails) Info() TicketInfo {
	info := TicketInfo{
		TicketID:        d.Ticket.ID,
		TicketNumber:    d.Ticket.TicketNumber,
		ScheduleID:      d.Ticket.ScheduleID,
		PassengerName:   d.Passenger.Name,
		Phone:           d.Passenger.Phone.String(),
		RouteName:       d.Schedule.RouteName,
		Origin:          d.Schedule.Origin,
		Destination:     d.Schedule.Destination,
		BusNumber:       d.Schedule.BusNumber,
		SeatNumber:      d.Seat.SeatNumber,
		BoardingPoint:   d.Ticket.BoardingPoint,
		DroppingPoint:   d.Ticket.DroppingPoint,
		JourneyDateTime: d.Schedule.JourneyDateTime(),
		Fare:            d.Ticket.Fare,
	}
	if d.Passenger.Email != nil {
		info.Email = *d.Passenger.Email
	}
	return info
}

// TicketInfo is the flat view handed to notification channels
type TicketInfo struct {
	TicketID        string    `json:"ticket_id"`
	TicketNumber    string    `json:"ticket_number"`
	ScheduleID      string    `json:"schedule_id"`
	PassengerName   string    `json:"passenger_name"`
	Phone           string    `json:"phone"`
	Email           string    `json:"email,omitempty"`
	RouteName       string    `json:"route_name"`
	Origin          string    `json:"origin"`
	Destination     string    `json:"destination"`
	BusNumber       string    `json:"bus_number"`
	SeatNumber      string    `json:"seat_number"`
	BoardingPoint   string    `json:"boarding_point"`
	DroppingPoint   string    `json:"dropping_point"`
	JourneyDateTime time.Time `json:"journey_datetime"`
	Fare            Money     `json:"fare"`
}
