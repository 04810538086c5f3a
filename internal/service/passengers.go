package service

import (
	"context"
	"fmt"
	"strings"

	"busticket/internal/models"
	"busticket/internal/repository"

	"github.com/jonboulle/clockwork"
)

type PassengerDetails struct {
	Name   string
	Phone  models.PhoneNumber
	Email  *string
	Gender *string
	Age    *int
}

// PassengerRegistry finds or creates passengers keyed by normalized phone.
// It works inside the caller's transaction.
type PassengerRegistry struct {
	clock clockwork.Clock
}

func NewPassengerRegistry(clock clockwork.Clock) *PassengerRegistry {
	return &PassengerRegistry{clock: clock}
}

// Resolve returns the passenger for d.Phone. An existing record gets the
// newly supplied details; optional fields left empty keep their old value.
// The lookup and insert are a single upsert, so concurrent first bookings
// from one phone share a passenger.
func (r *PassengerRegistry) Resolve(ctx context.Context, repos *repository.Repositories, d PassengerDetails) (*models.Passenger, error) {
	ts := now(r.clock)
	p := &models.Passenger{
		Name:      strings.TrimSpace(d.Name),
		Phone:     d.Phone,
		Email:     d.Email,
		Gender:    d.Gender,
		Age:       d.Age,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	if err := repos.Passengers.Upsert(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to resolve passenger: %w", err)
	}
	return p, nil
}
