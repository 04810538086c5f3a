package external

import (
	"context"
	"fmt"
	"sync"
	"time"

	"busticket/internal/models"

	"github.com/google/uuid"
)

type MockConfig struct {
	Enabled bool
	Delay   time.Duration
}

// MockGateway approves everything unless told otherwise. Tests flip its
// behavior with SetDecline, SetError and SetAvailable.
type MockGateway struct {
	mu        sync.Mutex
	delay     time.Duration
	decline   bool
	err       error
	available bool
	charges   []GatewayPaymentRequest
	refunds   []GatewayRefundRequest
}

func NewMockGateway(cfg MockConfig) *MockGateway {
	return &MockGateway{delay: cfg.Delay, available: true}
}

func (m *MockGateway) Name() models.GatewayType {
	return models.GatewayMock
}

func (m *MockGateway) SetDecline(decline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decline = decline
}

func (m *MockGateway) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockGateway) SetAvailable(available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = available
}

func (m *MockGateway) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Charges returns the payment requests seen so far.
func (m *MockGateway) Charges() []GatewayPaymentRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]GatewayPaymentRequest(nil), m.charges...)
}

func (m *MockGateway) Refunds() []GatewayRefundRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]GatewayRefundRequest(nil), m.refunds...)
}

func (m *MockGateway) ProcessPayment(ctx context.Context, req GatewayPaymentRequest) (*GatewayResponse, error) {
	decline, err := m.settle(ctx)
	m.mu.Lock()
	m.charges = append(m.charges, req)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if decline {
		return &GatewayResponse{
			Success:      false,
			ResponseCode: "DECLINED",
			Message:      "payment declined by issuer",
			RawPayload:   rawJSON(map[string]any{"transaction_id": req.TransactionID, "status": "declined"}),
		}, nil
	}

	gwID := "MOCK-" + uuid.New().String()
	return &GatewayResponse{
		Success:      true,
		GatewayTxnID: gwID,
		ResponseCode: "00",
		Message:      "approved",
		RawPayload:   rawJSON(map[string]any{"transaction_id": req.TransactionID, "id": gwID, "amount": req.Amount, "status": "approved"}),
	}, nil
}

func (m *MockGateway) ProcessRefund(ctx context.Context, req GatewayRefundRequest) (*GatewayResponse, error) {
	decline, err := m.settle(ctx)
	m.mu.Lock()
	m.refunds = append(m.refunds, req)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if decline {
		return &GatewayResponse{Success: false, ResponseCode: "DECLINED", Message: "refund declined"}, nil
	}

	gwID := "MOCKREF-" + uuid.New().String()
	return &GatewayResponse{
		Success:      true,
		GatewayTxnID: gwID,
		ResponseCode: "00",
		Message:      "refunded",
		RawPayload:   rawJSON(map[string]any{"refund_id": gwID, "amount": req.Amount}),
	}, nil
}

func (m *MockGateway) VerifyPayment(ctx context.Context, transactionID string) (*GatewayResponse, error) {
	if _, err := m.settle(ctx); err != nil {
		return nil, err
	}
	return &GatewayResponse{
		Success:      true,
		ResponseCode: "00",
		Message:      fmt.Sprintf("transaction %s verified", transactionID),
	}, nil
}

func (m *MockGateway) IsAvailable(_ context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

// settle waits out the configured delay, honoring ctx.
func (m *MockGateway) settle(ctx context.Context) (bool, error) {
	m.mu.Lock()
	delay, decline, err := m.delay, m.decline, m.err
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, fmt.Errorf("mock gateway: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return decline, err
}
