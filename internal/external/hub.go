package external

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"busticket/internal/models"
)

// HubGateway talks to the payment hub over its signed-token HTTP API
type HubGateway struct {
	baseURL    string
	teamSlug   string
	password   string
	httpClient *http.Client
}

type HubConfig struct {
	BaseURL  string
	TeamSlug string
	Password string
	Timeout  time.Duration
}

type hubInitRequest struct {
	TeamSlug    string `json:"teamSlug"`
	Token       string `json:"token"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId"`
	Currency    string `json:"currency"`
	Description string `json:"description,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Method      string `json:"method,omitempty"`
}

type hubInitResponse struct {
	Success   bool   `json:"success"`
	PaymentID string `json:"paymentId"`
	OrderID   string `json:"orderId"`
	Status    string `json:"status"`
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

type hubCheckResponse struct {
	Success  bool `json:"success"`
	Payments []struct {
		PaymentID string `json:"paymentId"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
	} `json:"payments"`
}

type hubStatusResponse struct {
	Success   bool   `json:"success"`
	PaymentID string `json:"paymentId"`
	Status    string `json:"status"`
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

func NewHubGateway(cfg HubConfig) *HubGateway {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &HubGateway{
		baseURL:  cfg.BaseURL,
		teamSlug: cfg.TeamSlug,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (g *HubGateway) Name() models.GatewayType {
	return models.GatewayHub
}

// generateToken signs a request: the team credentials are merged into the
// parameters, values are concatenated in key order and hashed with SHA-256.
func (g *HubGateway) generateToken(params map[string]string) string {
	params["TeamSlug"] = g.teamSlug
	params["Password"] = g.password

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var tokenString string
	for _, key := range keys {
		tokenString += params[key]
	}

	hash := sha256.Sum256([]byte(tokenString))
	return hex.EncodeToString(hash[:])
}

// ProcessPayment initializes the hub payment and confirms it in one go.
func (g *HubGateway) ProcessPayment(ctx context.Context, req GatewayPaymentRequest) (*GatewayResponse, error) {
	initReq := hubInitRequest{
		TeamSlug: g.teamSlug,
		Token: g.generateToken(map[string]string{
			"Amount":   strconv.FormatInt(req.Amount, 10),
			"Currency": req.Currency,
			"OrderId":  req.TransactionID,
		}),
		Amount:      req.Amount,
		OrderID:     req.TransactionID,
		Currency:    req.Currency,
		Description: req.Description,
		Email:       req.Customer.Email,
		Phone:       req.Customer.Phone,
		Method:      string(req.Method),
	}

	var initResp hubInitResponse
	raw, err := g.post(ctx, "/api/v1/PaymentInit/init", initReq, &initResp)
	if err != nil {
		return nil, fmt.Errorf("failed to init payment: %w", err)
	}
	if !initResp.Success {
		return declined(initResp.ErrorCode, initResp.Message, raw), nil
	}

	confirmReq := map[string]any{
		"teamSlug": g.teamSlug,
		"token": g.generateToken(map[string]string{
			"Amount":    strconv.FormatInt(req.Amount, 10),
			"PaymentId": initResp.PaymentID,
		}),
		"paymentId": initResp.PaymentID,
		"amount":    req.Amount,
	}

	var confirmResp hubStatusResponse
	raw, err = g.post(ctx, "/api/v1/PaymentConfirm/confirm", confirmReq, &confirmResp)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm payment: %w", err)
	}
	if !confirmResp.Success {
		return declined(confirmResp.ErrorCode, confirmResp.Message, raw), nil
	}

	return &GatewayResponse{
		Success:      true,
		GatewayTxnID: initResp.PaymentID,
		ResponseCode: confirmResp.Status,
		Message:      "payment confirmed",
		RawPayload:   raw,
	}, nil
}

func (g *HubGateway) ProcessRefund(ctx context.Context, req GatewayRefundRequest) (*GatewayResponse, error) {
	body := map[string]any{
		"teamSlug": g.teamSlug,
		"token": g.generateToken(map[string]string{
			"Amount":    strconv.FormatInt(req.Amount, 10),
			"PaymentId": req.GatewayTxnID,
		}),
		"paymentId": req.GatewayTxnID,
		"amount":    req.Amount,
		"reason":    req.Reason,
	}

	var resp hubStatusResponse
	raw, err := g.post(ctx, "/api/v1/PaymentRefund/refund", body, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to refund payment: %w", err)
	}
	if !resp.Success {
		return declined(resp.ErrorCode, resp.Message, raw), nil
	}

	return &GatewayResponse{
		Success:      true,
		GatewayTxnID: resp.PaymentID,
		ResponseCode: resp.Status,
		Message:      "refund accepted",
		RawPayload:   raw,
	}, nil
}

func (g *HubGateway) VerifyPayment(ctx context.Context, transactionID string) (*GatewayResponse, error) {
	body := map[string]any{
		"teamSlug": g.teamSlug,
		"token":    g.generateToken(map[string]string{"OrderId": transactionID}),
		"orderId":  transactionID,
	}

	var resp hubCheckResponse
	raw, err := g.post(ctx, "/api/v1/PaymentCheck/check", body, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to check payment: %w", err)
	}
	if !resp.Success || len(resp.Payments) == 0 {
		return declined("NOT_FOUND", "payment not found at hub", raw), nil
	}

	p := resp.Payments[0]
	return &GatewayResponse{
		Success:      p.Status == "CONFIRMED" || p.Status == "REFUNDED",
		GatewayTxnID: p.PaymentID,
		ResponseCode: p.Status,
		Message:      "hub status " + p.Status,
		RawPayload:   raw,
	}, nil
}

func (g *HubGateway) IsAvailable(ctx context.Context) bool {
	if g.baseURL == "" || g.teamSlug == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

func (g *HubGateway) post(ctx context.Context, path string, body, out any) (json.RawMessage, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return raw, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return raw, fmt.Errorf("failed to decode response: %w", err)
	}
	return raw, nil
}

func declined(code, message string, raw json.RawMessage) *GatewayResponse {
	if message == "" {
		message = "declined by gateway"
	}
	return &GatewayResponse{
		Success:      false,
		ResponseCode: code,
		Message:      message,
		RawPayload:   raw,
	}
}
