package models

import (
	"fmt"
	"time"

	apperrors "busticket/internal/errors"
)

// SeatStatus is the closed set of states a seat can be in
type SeatStatus string

const (
	SeatAvailable SeatStatus = "AVAILABLE"
	SeatBooked    SeatStatus = "BOOKED"
	SeatSold      SeatStatus = "SOLD"
	SeatBlocked   SeatStatus = "BLOCKED"
)

// ParseSeatStatus rejects anything outside the enumeration.
func ParseSeatStatus(s string) (SeatStatus, error) {
	switch SeatStatus(s) {
	case SeatAvailable, SeatBooked, SeatSold, SeatBlocked:
		return SeatStatus(s), nil
	default:
		return "", fmt.Errorf("unknown seat status %q", s)
	}
}

type seatAction string

const (
	seatActionBook    seatAction = "book"
	seatActionConfirm seatAction = "confirm"
	seatActionCancel  seatAction = "cancel"
	seatActionBlock   seatAction = "block"
	seatActionUnblock seatAction = "unblock"
)

var seatTransitions = map[seatAction]map[SeatStatus]SeatStatus{
	seatActionBook:    {SeatAvailable: SeatBooked},
	seatActionConfirm: {SeatBooked: SeatSold},
	seatActionCancel:  {SeatBooked: SeatAvailable, SeatSold: SeatAvailable},
	seatActionBlock:   {SeatAvailable: SeatBlocked},
	seatActionUnblock: {SeatBlocked: SeatAvailable},
}

// Seat represents one seat of a schedule's seat map
type Seat struct {
	ID         string     `json:"id" db:"id"`
	ScheduleID string     `json:"schedule_id" db:"schedule_id"`
	SeatNumber string     `json:"seat_number" db:"seat_number"`
	Row        int        `json:"row" db:"row_number"`
	Column     int        `json:"column" db:"column_number"`
	Status     SeatStatus `json:"status" db:"status"`
	TicketID   *string    `json:"ticket_id,omitempty" db:"ticket_id"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

func (s *Seat) IsAvailable() bool {
	return s.Status == SeatAvailable
}

// IsHeld reports whether the seat is linked to a live ticket.
func (s *Seat) IsHeld() bool {
	switch s.Status {
	case SeatBooked, SeatSold:
		return true
	case SeatAvailable, SeatBlocked:
		return false
	default:
		return false
	}
}

// Book assigns the seat to a ticket. Only legal from AVAILABLE.
func (s *Seat) Book(ticketID string) error {
	if err := s.transition(seatActionBook); err != nil {
		return err
	}
	s.TicketID = &ticketID
	return nil
}

// ConfirmBooking finalizes a booked seat as sold.
func (s *Seat) ConfirmBooking() error {
	return s.transition(seatActionConfirm)
}

// CancelBooking releases a booked or sold seat.
func (s *Seat) CancelBooking() error {
	if err := s.transition(seatActionCancel); err != nil {
		return err
	}
	s.TicketID = nil
	return nil
}

func (s *Seat) Block() error {
	return s.transition(seatActionBlock)
}

func (s *Seat) Unblock() error {
	return s.transition(seatActionUnblock)
}

func (s *Seat) transition(action seatAction) error {
	next, ok := seatTransitions[action][s.Status]
	if !ok {
		if action == seatActionBook {
			return apperrors.Conflict(apperrors.CodeSeatNotAvailable,
				"seat %s is not available (status %s)", s.SeatNumber, s.Status)
		}
		return apperrors.Conflict(apperrors.CodeInvalidSeatTransition,
			"cannot %s seat %s in status %s", action, s.SeatNumber, s.Status)
	}
	s.Status = next
	return nil
}

// SeatLabel names a seat by row letter and column, e.g. row 2 column 3 is "B3".
// Rows past Z wrap to a two letter prefix (AA, AB, ...).
func SeatLabel(row, column int) string {
	return fmt.Sprintf("%s%d", rowLetters(row), column)
}

func rowLetters(row int) string {
	var out []byte
	for row > 0 {
		row--
		out = append([]byte{byte('A' + row%26)}, out...)
		row /= 26
	}
	return string(out)
}
