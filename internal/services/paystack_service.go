package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/greengrey/guesthouse-backend/internal/config"
	"github.com/greengrey/guesthouse-backend/internal/metrics"
	"github.com/greengrey/guesthouse-backend/internal/models"
)

// ErrGatewayUnavailable wraps transport failures and 5xx answers from Paystack.
// Only these are worth retrying.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// Paystack transaction statuses returned by /transaction/verify
const (
	PaystackStatusSuccess   = "success"
	PaystackStatusFailed    = "failed"
	PaystackStatusReversed  = "reversed"
	PaystackStatusAbandoned = "abandoned"
)

// PaystackService handles payment gateway integration with Paystack
type PaystackService struct {
	config *config.PaymentConfig
	logger *logrus.Logger
	client *http.Client
}

// InitializeTransactionParams contains the parameters for a new checkout
type InitializeTransactionParams struct {
	Email       string
	Amount      float64 // major units; converted to minor units on the wire
	Currency    string
	Reference   string
	CallbackURL string
	Metadata    map[string]interface{}
}

// paystackInitializeRequest is the body sent to /transaction/initialize
type paystackInitializeRequest struct {
	Email       string                 `json:"email"`
	Amount      int64                  `json:"amount"`
	Currency    string                 `json:"currency,omitempty"`
	Reference   string                 `json:"reference"`
	CallbackURL string                 `json:"callback_url,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// PaystackInitializeResponse represents the response from /transaction/initialize
type PaystackInitializeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

// PaystackTransaction is the transaction object in verify responses and webhooks
type PaystackTransaction struct {
	ID              int64  `json:"id"`
	Status          string `json:"status"`
	Reference       string `json:"reference"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	GatewayResponse string `json:"gateway_response"`
	Channel         string `json:"channel"`
	PaidAt          string `json:"paid_at"`
}

// IsTerminalFailure reports whether the transaction can no longer succeed
func (t PaystackTransaction) IsTerminalFailure() bool {
	return t.Status == PaystackStatusFailed || t.Status == PaystackStatusReversed
}

// PaystackVerifyResponse represents the response from /transaction/verify/:reference
type PaystackVerifyResponse struct {
	Status  bool                `json:"status"`
	Message string              `json:"message"`
	Data    PaystackTransaction `json:"data"`

	// Raw is the full decoded body, stored as the payment's gateway_response
	Raw models.JSONB `json:"-"`
}

// IsSuccessful is true only when both the call and the transaction succeeded
func (r *PaystackVerifyResponse) IsSuccessful() bool {
	return r != nil && r.Status && r.Data.Status == PaystackStatusSuccess
}

// PaystackWebhookEvent represents a webhook payload from Paystack
type PaystackWebhookEvent struct {
	Event string              `json:"event"`
	Data  PaystackTransaction `json:"data"`
}

// NewPaystackService creates a new Paystack payment service
func NewPaystackService(cfg *config.PaymentConfig, logger *logrus.Logger) *PaystackService {
	return &PaystackService{
		config: cfg,
		logger: logger,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// IsConfigured returns true if payment gateway is properly configured
func (s *PaystackService) IsConfigured() bool {
	return s.config.SecretKey != ""
}

// InitializeTransaction starts a hosted checkout and returns the authorization URL
func (s *PaystackService) InitializeTransaction(ctx context.Context, params InitializeTransactionParams) (*PaystackInitializeResponse, error) {
	if !s.IsConfigured() {
		return nil, ErrGatewayNotConfigured
	}

	currency := params.Currency
	if currency == "" {
		currency = s.config.Currency
	}
	callbackURL := params.CallbackURL
	if callbackURL == "" {
		callbackURL = s.config.CallbackURL
	}

	body, err := json.Marshal(&paystackInitializeRequest{
		Email:       params.Email,
		Amount:      models.ToMinorUnits(params.Amount),
		Currency:    currency,
		Reference:   params.Reference,
		CallbackURL: callbackURL,
		Metadata:    params.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"reference": params.Reference,
		"amount":    params.Amount,
		"currency":  currency,
	}).Info("Initializing Paystack transaction")

	respBody, err := s.do(ctx, http.MethodPost, "/transaction/initialize", body)
	metrics.IncGatewayRequest("initialize", err)
	if err != nil {
		return nil, err
	}

	var initResp PaystackInitializeResponse
	if err := json.Unmarshal(respBody, &initResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if !initResp.Status || initResp.Data.AuthorizationURL == "" {
		return nil, fmt.Errorf("payment initialization rejected: %s", initResp.Message)
	}

	return &initResp, nil
}

// VerifyTransaction fetches the gateway's view of a transaction.
// A non-nil error means the answer is unknown, not that the payment failed.
func (s *PaystackService) VerifyTransaction(ctx context.Context, reference string) (*PaystackVerifyResponse, error) {
	if !s.IsConfigured() {
		return nil, ErrGatewayNotConfigured
	}

	respBody, err := s.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil)
	metrics.IncGatewayRequest("verify", err)
	if err != nil {
		return nil, err
	}

	var verifyResp PaystackVerifyResponse
	if err := json.Unmarshal(respBody, &verifyResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if err := json.Unmarshal(respBody, &verifyResp.Raw); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &verifyResp, nil
}

// ValidateWebhookSignature checks x-paystack-signature: hex HMAC-SHA512 of the raw body
func (s *PaystackService) ValidateWebhookSignature(body []byte, signature string) bool {
	if !s.IsConfigured() || signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(s.config.SecretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// ParseWebhook decodes a webhook payload. Call ValidateWebhookSignature first.
func (s *PaystackService) ParseWebhook(body []byte) (*PaystackWebhookEvent, error) {
	var event PaystackWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	if event.Event == "" || event.Data.Reference == "" {
		return nil, fmt.Errorf("webhook missing required fields")
	}
	return &event, nil
}

// do performs an authorized call and returns the body of a 2xx or 4xx answer.
// Transport errors and 5xx are wrapped in ErrGatewayUnavailable.
func (s *PaystackService) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(s.config.BaseURL, "/")+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.config.SecretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.WithError(err).WithField("path", path).Error("Failed to call Paystack")
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrGatewayUnavailable, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		s.logger.WithFields(logrus.Fields{
			"path":        path,
			"status_code": resp.StatusCode,
		}).Error("Paystack returned server error")
		return nil, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	s.logger.WithFields(logrus.Fields{
		"path":        path,
		"status_code": resp.StatusCode,
	}).Debug("Paystack response received")

	return respBody, nil
}
