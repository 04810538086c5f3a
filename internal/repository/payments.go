package repository

import (
	"context"
	"database/sql"
	"fmt"

	"busticket/internal/models"

	"github.com/google/uuid"
)

type PaymentRepo struct {
	q querier
}

const paymentColumns = `id, ticket_id, amount, currency, method, gateway, status, transaction_id,
	gateway_transaction_id, refunded_amount, failure_reason, refund_reason, created_at, updated_at, completed_at`

func scanPayment(row rowScanner) (*models.Payment, error) {
	var p models.Payment
	var method, gateway, status string

	if err := row.Scan(&p.ID, &p.TicketID, &p.Amount.Amount, &p.Amount.Currency, &method, &gateway, &status,
		&p.TransactionID, &p.GatewayTxnID, &p.RefundedAmount, &p.FailureReason, &p.RefundReason,
		&p.CreatedAt, &p.UpdatedAt, &p.CompletedAt); err != nil {
		return nil, err
	}

	var err error
	if p.Method, err = models.ParsePaymentMethod(method); err != nil {
		return nil, err
	}
	if p.Gateway, err = models.ParseGatewayType(gateway); err != nil {
		return nil, err
	}
	if p.Status, err = models.ParsePaymentStatus(status); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepo) Create(ctx context.Context, p *models.Payment) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	query := `
		INSERT INTO payments (id, ticket_id, amount, currency, method, gateway, status, transaction_id,
			refunded_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.q.ExecContext(ctx, query, p.ID, p.TicketID, p.Amount.Amount, p.Amount.Currency,
		string(p.Method), string(p.Gateway), string(p.Status), p.TransactionID, p.RefundedAmount,
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *PaymentRepo) getOne(ctx context.Context, query string, arg any) (*models.Payment, error) {
	p, err := scanPayment(r.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

func (r *PaymentRepo) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
}

func (r *PaymentRepo) GetByIDForUpdate(ctx context.Context, id string) (*models.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id)
}

func (r *PaymentRepo) GetSucceededByTicket(ctx context.Context, ticketID string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE ticket_id = $1 AND status IN ('COMPLETED', 'PARTIALLY_REFUNDED', 'REFUNDED')
		LIMIT 1`
	return r.getOne(ctx, query, ticketID)
}

func (r *PaymentRepo) ListByTicket(ctx context.Context, ticketID string) ([]models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE ticket_id = $1 ORDER BY created_at`

	rows, err := r.q.QueryContext(ctx, query, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func (r *PaymentRepo) Update(ctx context.Context, p *models.Payment) error {
	query := `
		UPDATE payments
		SET status = $2, gateway_transaction_id = $3, refunded_amount = $4, failure_reason = $5,
			refund_reason = $6, updated_at = $7, completed_at = $8
		WHERE id = $1`

	res, err := r.q.ExecContext(ctx, query, p.ID, string(p.Status), p.GatewayTxnID, p.RefundedAmount,
		p.FailureReason, p.RefundReason, p.UpdatedAt, p.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to update payment %s: not found", p.ID)
	}
	return nil
}
