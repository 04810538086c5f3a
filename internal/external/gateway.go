package external

import (
	"context"
	"encoding/json"
	"time"

	apperrors "busticket/internal/errors"
	"busticket/internal/models"
)

// Gateway is the capability every payment provider implements. A
// non-nil error means the call itself failed (network, timeout); a
// declined charge is a response with Success=false.
type Gateway interface {
	Name() models.GatewayType
	ProcessPayment(ctx context.Context, req GatewayPaymentRequest) (*GatewayResponse, error)
	ProcessRefund(ctx context.Context, req GatewayRefundRequest) (*GatewayResponse, error)
	VerifyPayment(ctx context.Context, transactionID string) (*GatewayResponse, error)
	IsAvailable(ctx context.Context) bool
}

type CustomerInfo struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

type GatewayPaymentRequest struct {
	TransactionID string               `json:"transaction_id"`
	Amount        int64                `json:"amount"`
	Currency      string               `json:"currency"`
	Method        models.PaymentMethod `json:"method"`
	Description   string               `json:"description,omitempty"`
	Customer      CustomerInfo         `json:"customer"`
}

type GatewayRefundRequest struct {
	TransactionID string `json:"transaction_id"`
	GatewayTxnID  string `json:"gateway_transaction_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Reason        string `json:"reason,omitempty"`
}

type GatewayResponse struct {
	Success      bool            `json:"success"`
	GatewayTxnID string          `json:"gateway_transaction_id"`
	ResponseCode string          `json:"response_code"`
	Message      string          `json:"message"`
	RawPayload   json.RawMessage `json:"raw_payload,omitempty"`
}

// GatewayConfig groups the settings of every gateway implementation
type GatewayConfig struct {
	Timeout time.Duration
	Mock    MockConfig
	Hub     HubConfig
	Stripe  StripeConfig
}

// Registry resolves the gateway named on a payment request
type Registry struct {
	gateways map[models.GatewayType]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[models.GatewayType]Gateway, len(gateways))}
	for _, g := range gateways {
		r.gateways[g.Name()] = g
	}
	return r
}

func (r *Registry) Get(t models.GatewayType) (Gateway, error) {
	g, ok := r.gateways[t]
	if !ok {
		return nil, apperrors.Validation(apperrors.CodeUnknownGateway, "gateway %s is not configured", t)
	}
	return g, nil
}

func (r *Registry) Names() []models.GatewayType {
	names := make([]models.GatewayType, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	return names
}

func rawJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
