package external

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"busticket/internal/models"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

type StripeConfig struct {
	SecretKey string
	// PaymentMethod is the payment method id charged for card payments,
	// e.g. pm_card_visa in test mode.
	PaymentMethod string
}

var ErrStripeNotConfigured = errors.New("stripe secret key is not set")

// StripeGateway charges cards through Stripe PaymentIntents
type StripeGateway struct {
	client        *client.API
	paymentMethod string
}

func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		return nil, ErrStripeNotConfigured
	}
	pm := cfg.PaymentMethod
	if pm == "" {
		pm = "pm_card_visa"
	}
	return &StripeGateway{
		client:        client.New(cfg.SecretKey, nil),
		paymentMethod: pm,
	}, nil
}

func (g *StripeGateway) Name() models.GatewayType {
	return models.GatewayStripe
}

func (g *StripeGateway) ProcessPayment(ctx context.Context, req GatewayPaymentRequest) (*GatewayResponse, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.Amount),
		Currency:           stripe.String(strings.ToLower(req.Currency)),
		PaymentMethod:      stripe.String(g.paymentMethod),
		Description:        stripe.String(req.Description),
		ConfirmationMethod: stripe.String("manual"),
		Confirm:            stripe.Bool(true),
		PaymentMethodTypes: []*string{stripe.String("card")},
		Metadata: map[string]string{
			"transaction_id": req.TransactionID,
			"phone":          req.Customer.Phone,
		},
	}
	if req.Customer.Email != "" {
		params.ReceiptEmail = stripe.String(req.Customer.Email)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.TransactionID)

	pi, err := g.client.PaymentIntents.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			return declined(string(stripeErr.Code), stripeErr.Msg, rawJSON(stripeErr)), nil
		}
		return nil, fmt.Errorf("stripe payment intent: %w", err)
	}

	resp := &GatewayResponse{
		GatewayTxnID: pi.ID,
		ResponseCode: string(pi.Status),
		RawPayload:   rawJSON(pi),
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		resp.Success = true
		resp.Message = "payment succeeded"
	default:
		resp.Message = fmt.Sprintf("payment intent in status %s", pi.Status)
	}
	return resp, nil
}

func (g *StripeGateway) ProcessRefund(ctx context.Context, req GatewayRefundRequest) (*GatewayResponse, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.GatewayTxnID),
		Amount:        stripe.Int64(req.Amount),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
		Metadata:      map[string]string{"transaction_id": req.TransactionID, "reason": req.Reason},
	}
	params.Context = ctx

	r, err := g.client.Refunds.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode < 500 {
			return declined(string(stripeErr.Code), stripeErr.Msg, rawJSON(stripeErr)), nil
		}
		return nil, fmt.Errorf("stripe refund: %w", err)
	}

	return &GatewayResponse{
		Success:      r.Status == stripe.RefundStatusSucceeded || r.Status == stripe.RefundStatusPending,
		GatewayTxnID: r.ID,
		ResponseCode: string(r.Status),
		Message:      fmt.Sprintf("refund %s", r.Status),
		RawPayload:   rawJSON(r),
	}, nil
}

// VerifyPayment looks the intent up by the transaction id stored in its metadata.
func (g *StripeGateway) VerifyPayment(ctx context.Context, transactionID string) (*GatewayResponse, error) {
	params := &stripe.PaymentIntentSearchParams{}
	params.Query = fmt.Sprintf("metadata['transaction_id']:'%s'", transactionID)
	params.Context = ctx

	iter := g.client.PaymentIntents.Search(params)
	for iter.Next() {
		pi := iter.PaymentIntent()
		return &GatewayResponse{
			Success:      pi.Status == stripe.PaymentIntentStatusSucceeded,
			GatewayTxnID: pi.ID,
			ResponseCode: string(pi.Status),
			Message:      fmt.Sprintf("payment intent in status %s", pi.Status),
			RawPayload:   rawJSON(pi),
		}, nil
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("stripe search: %w", err)
	}
	return declined("NOT_FOUND", "no payment intent for transaction", nil), nil
}

func (g *StripeGateway) IsAvailable(ctx context.Context) bool {
	params := &stripe.BalanceParams{}
	params.Context = ctx
	_, err := g.client.Balance.Get(params)
	return err == nil
}
