package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/greengrey/guesthouse-backend/internal/config"
	"github.com/greengrey/guesthouse-backend/internal/database"
	"github.com/greengrey/guesthouse-backend/internal/models"
)

const (
	referenceSuffixLength = 6
	base36Alphabet        = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// PaymentGateway is the subset of the Paystack client the bridge needs
type PaymentGateway interface {
	InitializeTransaction(ctx context.Context, params InitializeTransactionParams) (*PaystackInitializeResponse, error)
	VerifyTransaction(ctx context.Context, reference string) (*PaystackVerifyResponse, error)
}

// PaymentBridge issues payment references and talks to the gateway
type PaymentBridge struct {
	payments PaymentStore
	gateway  PaymentGateway
	config   *config.PaymentConfig
	logger   *logrus.Logger

	// referenceRetry spaces out attempts after a reference collision
	referenceRetry RetryPolicy
	now      func() time.Time
}

// NewPaymentBridge creates a new payment bridge
func NewPaymentBridge(payments PaymentStore, gateway PaymentGateway, cfg *config.PaymentConfig, logger *logrus.Logger) *PaymentBridge {
	return &PaymentBridge{
		payments: payments,
		gateway:  gateway,
		config:   cfg,
		logger:   logger,
		now:      time.Now,

		referenceRetry: DefaultRetryPolicy(),
	}
}

// ============================================================================
// REFERENCES & PAYMENT ROWS
// ============================================================================

// GenerateReference returns PREFIX_<base36 unix ms>_<6 random base36>, upper-cased.
// Uniqueness is enforced by the payments_reference_key constraint, not by this function.
func (b *PaymentBridge) GenerateReference() (string, error) {
	suffix := make([]byte, referenceSuffixLength)
	max := big.NewInt(int64(len(base36Alphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate reference: %w", err)
		}
		suffix[i] = base36Alphabet[n.Int64()]
	}

	prefix := b.config.ReferencePrefix
	if prefix == "" {
		prefix = "GB"
	}
	stamp := strconv.FormatInt(b.now().UnixMilli(), 36)
	return strings.ToUpper(prefix + "_" + stamp + "_" + string(suffix)), nil
}

// CreatePayment inserts a pending payment row for a booking
func (b *PaymentBridge) CreatePayment(ctx context.Context, bookingID int64, reference string, amount float64, currency string) (*models.Payment, error) {
	if currency == "" {
		currency = b.config.Currency
	}
	payment := &models.Payment{
		BookingID: bookingID,
		Reference: reference,
		Amount:    models.RoundMoney(amount),
		Currency:  currency,
		Status:    models.PaymentStatusPending,
	}
	if err := b.payments.Create(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

// IssuePayment generates a reference and records the payment, retrying with a
// fresh reference when one collides with an existing row.
func (b *PaymentBridge) IssuePayment(ctx context.Context, bookingID int64, amount float64, currency string) (*models.Payment, error) {
	policy := b.referenceRetry
	policy.MaxAttempts = b.config.ReferenceAttempts

	var payment *models.Payment
	attempts := 0
	err := policy.Do(ctx, isDuplicateReference, func(ctx context.Context) error {
		attempts++
		reference, err := b.GenerateReference()
		if err != nil {
			return err
		}

		payment, err = b.CreatePayment(ctx, bookingID, reference, amount, currency)
		if isDuplicateReference(err) {
			b.logger.WithFields(logrus.Fields{
				"booking_id": bookingID,
				"reference":  reference,
				"attempt":    attempts,
			}).Warn("Payment reference collision, retrying")
		}
		return err
	})
	if isDuplicateReference(err) {
		return nil, fmt.Errorf("failed to issue a unique payment reference after %d attempts: %w", attempts, err)
	}
	if err != nil {
		return nil, err
	}
	return payment, nil
}

func isDuplicateReference(err error) bool {
	return errors.Is(err, database.ErrDuplicateReference)
}

// ============================================================================
// VERIFICATION
// ============================================================================

// Verification is the gateway's answer for one reference
type Verification struct {
	Verified      bool
	GatewayStatus string
	Payload       models.JSONB
}

// CheckPayment asks the gateway once. Transport and parse failures count as
// unverified; nothing is retried.
func (b *PaymentBridge) CheckPayment(ctx context.Context, reference string) Verification {
	resp, err := b.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		b.logger.WithError(err).WithField("reference", reference).Warn("Payment verification failed")
		return Verification{}
	}

	v := Verification{
		Verified:      resp.IsSuccessful(),
		GatewayStatus: resp.Data.Status,
		Payload:       resp.Raw,
	}
	if !v.Verified {
		b.logger.WithFields(logrus.Fields{
			"reference":      reference,
			"gateway_status": resp.Data.Status,
			"message":        resp.Message,
		}).Info("Payment not successful at gateway")
	}
	return v
}

// VerifyPayment is true only if the gateway reports overall success and the
// transaction status is "success". It never returns an error.
func (b *PaymentBridge) VerifyPayment(ctx context.Context, reference string) bool {
	return b.CheckPayment(ctx, reference).Verified
}

// ============================================================================
// COLLECTION
// ============================================================================

// CollectionRequest describes one checkout at the gateway
type CollectionRequest struct {
	Email       string
	Amount      float64
	Currency    string
	Reference   string
	CallbackURL string
	Metadata    map[string]interface{}
}

// CollectionOutcome tags the terminal state of a collection
type CollectionOutcome string

const (
	CollectionSucceeded      CollectionOutcome = "succeeded"
	CollectionCancelled      CollectionOutcome = "cancelled"
	CollectionTransportError CollectionOutcome = "transport_error"
)

// CollectionResult is what Await returns. Reference is set on success.
type CollectionResult struct {
	Outcome       CollectionOutcome
	Reference     string
	GatewayStatus string
	Err           error
}

// CollectionHandle tracks one checkout until it reaches a terminal outcome
type CollectionHandle struct {
	Reference        string
	AuthorizationURL string
	AccessCode       string

	bridge     *PaymentBridge
	cancelOnce sync.Once
	cancelled  chan struct{}
	detached   atomic.Bool
}

// Cancel reports that the guest abandoned the checkout. Await returns CollectionCancelled.
func (h *CollectionHandle) Cancel() {
	h.cancelOnce.Do(func() { close(h.cancelled) })
}

// detach stops Await and tells its owner the outcome is handled elsewhere
func (h *CollectionHandle) detach() {
	h.detached.Store(true)
	h.Cancel()
}

func (h *CollectionHandle) isDetached() bool {
	return h.detached.Load()
}

// CollectionError is returned by CollectPayment when the checkout never opened
type CollectionError struct {
	Outcome CollectionOutcome
	Err     error
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("failed to start collection (%s): %v", e.Outcome, e.Err)
}

func (e *CollectionError) Unwrap() error {
	return e.Err
}

// CollectPayment opens a checkout at the gateway. It calls initialize exactly
// once: the reference is fixed per payment, so a repeat after a lost response
// would be refused by Paystack as a duplicate.
func (b *PaymentBridge) CollectPayment(ctx context.Context, req CollectionRequest) (*CollectionHandle, error) {
	resp, err := b.gateway.InitializeTransaction(ctx, InitializeTransactionParams{
		Email:       req.Email,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Reference:   req.Reference,
		CallbackURL: req.CallbackURL,
		Metadata:    req.Metadata,
	})
	if err != nil {
		if isGatewayUnavailable(err) {
			return nil, &CollectionError{Outcome: CollectionTransportError, Err: err}
		}
		return nil, fmt.Errorf("failed to start collection: %w", err)
	}

	return &CollectionHandle{
		Reference:        req.Reference,
		AuthorizationURL: resp.Data.AuthorizationURL,
		AccessCode:       resp.Data.AccessCode,
		bridge:           b,
		cancelled:        make(chan struct{}),
	}, nil
}

// Await blocks until the checkout succeeds, fails, is cancelled, or ctx ends.
// The gateway is polled every PollInterval. A poll that cannot reach the
// gateway ends in CollectionTransportError; polls are not retried.
func (h *CollectionHandle) Await(ctx context.Context) CollectionResult {
	b := h.bridge
	interval := b.config.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.cancelled:
			return CollectionResult{Outcome: CollectionCancelled, Err: errors.New("collection cancelled by guest")}
		case <-ctx.Done():
			return CollectionResult{Outcome: CollectionCancelled, Err: ctx.Err()}
		case <-ticker.C:
		}

		resp, err := b.gateway.VerifyTransaction(ctx, h.Reference)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return CollectionResult{Outcome: CollectionCancelled, Err: ctx.Err()}
		case isGatewayUnavailable(err):
			return CollectionResult{Outcome: CollectionTransportError, Err: err}
		default:
			// Unparseable answer; keep polling until the deadline
			b.logger.WithError(err).WithField("reference", h.Reference).Warn("Collection poll failed")
			continue
		}

		if resp.IsSuccessful() {
			reference := resp.Data.Reference
			if reference == "" {
				reference = h.Reference
			}
			return CollectionResult{Outcome: CollectionSucceeded, Reference: reference, GatewayStatus: resp.Data.Status}
		}
		if resp.Data.IsTerminalFailure() {
			return CollectionResult{
				Outcome:       CollectionCancelled,
				GatewayStatus: resp.Data.Status,
				Err:           fmt.Errorf("gateway reported %s", resp.Data.Status),
			}
		}
	}
}

func isGatewayUnavailable(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable)
}
