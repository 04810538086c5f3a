package repository

import (
	"context"
	"database/sql"
	"fmt"

	"busticket/internal/models"

	"github.com/google/uuid"
)

type TransactionRepo struct {
	q querier
}

func (r *TransactionRepo) Append(ctx context.Context, t *models.Transaction) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}

	var raw any
	if len(t.RawPayload) > 0 {
		raw = string(t.RawPayload)
	}

	query := `
		INSERT INTO payment_transactions (id, payment_id, action, amount, currency, success,
			gateway_transaction_id, response_code, message, raw_payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11)`

	_, err := r.q.ExecContext(ctx, query, t.ID, t.PaymentID, string(t.Action), t.Amount.Amount, t.Amount.Currency,
		t.Success, t.GatewayTxnID, t.ResponseCode, t.Message, raw, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepo) ListByPayment(ctx context.Context, paymentID string) ([]models.Transaction, error) {
	query := `
		SELECT id, payment_id, action, amount, currency, success, gateway_transaction_id,
			response_code, message, raw_payload, created_at
		FROM payment_transactions
		WHERE payment_id = $1
		ORDER BY created_at, id`

	rows, err := r.q.QueryContext(ctx, query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txns []models.Transaction
	for rows.Next() {
		var t models.Transaction
		var action string
		var gwID, code, msg sql.NullString
		var raw []byte
		if err := rows.Scan(&t.ID, &t.PaymentID, &action, &t.Amount.Amount, &t.Amount.Currency, &t.Success,
			&gwID, &code, &msg, &raw, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if t.Action, err = models.ParseTransactionAction(action); err != nil {
			return nil, err
		}
		t.GatewayTxnID, t.ResponseCode, t.Message = gwID.String, code.String, msg.String
		if len(raw) > 0 {
			t.RawPayload = raw
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}
