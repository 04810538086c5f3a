package models

import (
	"encoding/json"
	"fmt"
	"time"

	apperrors "busticket/internal/errors"
)

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "PENDING"
	PaymentProcessing        PaymentStatus = "PROCESSING"
	PaymentCompleted         PaymentStatus = "COMPLETED"
	PaymentFailed            PaymentStatus = "FAILED"
	PaymentCancelled         PaymentStatus = "CANCELLED"
	PaymentRefunded          PaymentStatus = "REFUNDED"
	PaymentPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch PaymentStatus(s) {
	case PaymentPending, PaymentProcessing, PaymentCompleted, PaymentFailed,
		PaymentCancelled, PaymentRefunded, PaymentPartiallyRefunded:
		return PaymentStatus(s), nil
	default:
		return "", fmt.Errorf("unknown payment status %q", s)
	}
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:           {PaymentProcessing, PaymentCancelled},
	PaymentProcessing:        {PaymentCompleted, PaymentFailed, PaymentCancelled},
	PaymentCompleted:         {PaymentRefunded, PaymentPartiallyRefunded},
	PaymentPartiallyRefunded: {PaymentPartiallyRefunded, PaymentRefunded},
}

// ValidPaymentTransition reports whether a payment may move from one status to another.
func ValidPaymentTransition(from, to PaymentStatus) bool {
	for _, s := range paymentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type PaymentMethod string

const (
	MethodCard         PaymentMethod = "card"
	MethodMobileMoney  PaymentMethod = "mobile_money"
	MethodCash         PaymentMethod = "cash"
	MethodBankTransfer PaymentMethod = "bank_transfer"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(s) {
	case MethodCard, MethodMobileMoney, MethodCash, MethodBankTransfer:
		return PaymentMethod(s), nil
	default:
		return "", fmt.Errorf("unknown payment method %q", s)
	}
}

// GatewayType selects the payment gateway implementation
type GatewayType string

const (
	GatewayMock   GatewayType = "mock"
	GatewayHub    GatewayType = "hub"
	GatewayStripe GatewayType = "stripe"
)

func ParseGatewayType(s string) (GatewayType, error) {
	switch GatewayType(s) {
	case GatewayMock, GatewayHub, GatewayStripe:
		return GatewayType(s), nil
	default:
		return "", fmt.Errorf("unknown gateway %q", s)
	}
}

// Payment is one attempt to pay for a ticket
type Payment struct {
	ID             string        `json:"id" db:"id"`
	TicketID       string        `json:"ticket_id" db:"ticket_id"`
	Amount         Money         `json:"amount"`
	Method         PaymentMethod `json:"method" db:"method"`
	Gateway        GatewayType   `json:"gateway" db:"gateway"`
	Status         PaymentStatus `json:"status" db:"status"`
	TransactionID  string        `json:"transaction_id" db:"transaction_id"`
	GatewayTxnID   *string       `json:"gateway_transaction_id,omitempty" db:"gateway_transaction_id"`
	RefundedAmount int64         `json:"refunded_amount" db:"refunded_amount"`
	FailureReason  *string       `json:"failure_reason,omitempty" db:"failure_reason"`
	RefundReason   *string       `json:"refund_reason,omitempty" db:"refund_reason"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
}

func (p *Payment) transition(to PaymentStatus) error {
	if !ValidPaymentTransition(p.Status, to) {
		return apperrors.BusinessRule(apperrors.CodeInvalidPaymentState,
			"payment %s cannot move from %s to %s", p.ID, p.Status, to)
	}
	p.Status = to
	return nil
}

func (p *Payment) MarkProcessing(at time.Time) error {
	if err := p.transition(PaymentProcessing); err != nil {
		return err
	}
	p.UpdatedAt = at
	return nil
}

func (p *Payment) Complete(gatewayTxnID string, at time.Time) error {
	if err := p.transition(PaymentCompleted); err != nil {
		return err
	}
	if gatewayTxnID != "" {
		p.GatewayTxnID = &gatewayTxnID
	}
	p.CompletedAt = &at
	p.UpdatedAt = at
	return nil
}

func (p *Payment) Fail(reason string, at time.Time) error {
	if err := p.transition(PaymentFailed); err != nil {
		return err
	}
	p.FailureReason = &reason
	p.UpdatedAt = at
	return nil
}

func (p *Payment) Cancel(at time.Time) error {
	if err := p.transition(PaymentCancelled); err != nil {
		return err
	}
	p.UpdatedAt = at
	return nil
}

// IsRefundable reports whether refunds may still be issued against p.
func (p *Payment) IsRefundable() bool {
	switch p.Status {
	case PaymentCompleted, PaymentPartiallyRefunded:
		return true
	case PaymentPending, PaymentProcessing, PaymentFailed, PaymentCancelled, PaymentRefunded:
		return false
	default:
		return false
	}
}

func (p *Payment) RemainingRefundable() Money {
	return Money{Amount: p.Amount.Amount - p.RefundedAmount, Currency: p.Amount.Currency}
}

// ApplyRefund records a settled refund and moves the payment to
// REFUNDED or PARTIALLY_REFUNDED.
func (p *Payment) ApplyRefund(amount int64, reason string, at time.Time) error {
	if !p.IsRefundable() {
		return apperrors.BusinessRule(apperrors.CodeRefundNotAllowed,
			"payment %s in status %s cannot be refunded", p.ID, p.Status)
	}
	if amount <= 0 {
		return apperrors.Validation(apperrors.CodeInvalidRequest, "refund amount must be positive")
	}
	if amount > p.RemainingRefundable().Amount {
		return apperrors.BusinessRule(apperrors.CodeRefundExceedsRemaining,
			"refund %d exceeds remaining refundable amount %d", amount, p.RemainingRefundable().Amount)
	}

	next := PaymentPartiallyRefunded
	if p.RefundedAmount+amount == p.Amount.Amount {
		next = PaymentRefunded
	}
	if err := p.transition(next); err != nil {
		return err
	}
	p.RefundedAmount += amount
	if reason != "" {
		p.RefundReason = &reason
	}
	p.UpdatedAt = at
	return nil
}

type TransactionAction string

const (
	ActionCharge TransactionAction = "charge"
	ActionRefund TransactionAction = "refund"
	ActionVerify TransactionAction = "verify"
)

func ParseTransactionAction(s string) (TransactionAction, error) {
	switch TransactionAction(s) {
	case ActionCharge, ActionRefund, ActionVerify:
		return TransactionAction(s), nil
	default:
		return "", fmt.Errorf("unknown transaction action %q", s)
	}
}

// Transaction is an immutable record of a single gateway interaction
type Transaction struct {
	ID           string            `json:"id" db:"id"`
	PaymentID    string            `json:"payment_id" db:"payment_id"`
	Action       TransactionAction `json:"action" db:"action"`
	Amount       Money             `json:"amount"`
	Success      bool              `json:"success" db:"success"`
	GatewayTxnID string            `json:"gateway_transaction_id,omitempty" db:"gateway_transaction_id"`
	ResponseCode string            `json:"response_code,omitempty" db:"response_code"`
	Message      string            `json:"message,omitempty" db:"message"`
	RawPayload   json.RawMessage   `json:"raw_payload,omitempty" db:"raw_payload"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
}
