package repository

import (
	"context"
	"database/sql"
	"fmt"

	"busticket/internal/models"

	"github.com/google/uuid"
)

type PassengerRepo struct {
	q querier
}

const passengerColumns = `p.id, p.name, p.phone, p.email, p.gender, p.age, p.created_at, p.updated_at`

func passengerDest(p *models.Passenger, age *sql.NullInt64) []any {
	return []any{&p.ID, &p.Name, &p.Phone, &p.Email, &p.Gender, age, &p.CreatedAt, &p.UpdatedAt}
}

func applyAge(p *models.Passenger, age sql.NullInt64) {
	if age.Valid {
		v := int(age.Int64)
		p.Age = &v
	}
}

func (r *PassengerRepo) GetByPhone(ctx context.Context, phone models.PhoneNumber) (*models.Passenger, error) {
	query := `SELECT ` + passengerColumns + ` FROM passengers p WHERE p.phone = $1`

	var p models.Passenger
	var age sql.NullInt64
	if err := r.q.QueryRowContext(ctx, query, phone.String()).Scan(passengerDest(&p, &age)...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get passenger by phone: %w", err)
	}
	applyAge(&p, age)
	return &p, nil
}

func (r *PassengerRepo) Upsert(ctx context.Context, p *models.Passenger) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	query := `
		INSERT INTO passengers AS p (id, name, phone, email, gender, age, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (phone) DO UPDATE
		SET name = EXCLUDED.name,
			email = COALESCE(EXCLUDED.email, p.email),
			gender = COALESCE(EXCLUDED.gender, p.gender),
			age = COALESCE(EXCLUDED.age, p.age),
			updated_at = EXCLUDED.updated_at
		RETURNING ` + passengerColumns

	var age sql.NullInt64
	err := r.q.QueryRowContext(ctx, query, p.ID, p.Name, p.Phone.String(), p.Email, p.Gender, p.Age,
		p.CreatedAt, p.UpdatedAt).Scan(passengerDest(p, &age)...)
	if err != nil {
		return fmt.Errorf("failed to upsert passenger: %w", err)
	}
	p.Age = nil
	applyAge(p, age)
	return nil
}
