package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/greengrey/guesthouse-backend/internal/database"
	"github.com/greengrey/guesthouse-backend/internal/models"
	"github.com/greengrey/guesthouse-backend/internal/services"
)

const (
	paystackSignatureHeader = "x-paystack-signature"
	eventChargeSuccess      = "charge.success"
)

// CheckoutWorkflow opens and abandons gateway checkouts
type CheckoutWorkflow interface {
	InitializePayment(ctx context.Context, reference, callbackURL string) (*services.PaymentSession, error)
	CancelPayment(ctx context.Context, reference string) error
}

// PaymentReconciler settles a reference against the gateway
type PaymentReconciler interface {
	Reconcile(ctx context.Context, reference string, source models.PaymentEventSource) (*services.ReconcileResult, error)
}

// WebhookVerifier authenticates and decodes gateway callbacks
type WebhookVerifier interface {
	ValidateWebhookSignature(body []byte, signature string) bool
	ParseWebhook(body []byte) (*services.PaystackWebhookEvent, error)
}

// PaymentHandler handles checkout, verification and gateway webhooks
type PaymentHandler struct {
	checkout    CheckoutWorkflow
	reconciler  PaymentReconciler
	webhooks    WebhookVerifier
	callbackURL string
	logger      *logrus.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(
	checkout CheckoutWorkflow,
	reconciler PaymentReconciler,
	webhooks WebhookVerifier,
	callbackURL string,
	logger *logrus.Logger,
) *PaymentHandler {
	return &PaymentHandler{
		checkout:    checkout,
		reconciler:  reconciler,
		webhooks:    webhooks,
		callbackURL: callbackURL,
		logger:      logger,
	}
}

// PaymentReferenceRequest carries a payment reference
type PaymentReferenceRequest struct {
	Reference string `json:"reference"`
}

// InitializePaymentRequest opens a checkout for a reference
type InitializePaymentRequest struct {
	Reference   string `json:"reference"`
	CallbackURL string `json:"callbackUrl"`
}

// bindReference reads {reference} and answers 400 when it is missing
func bindReference(c *gin.Context, dst *string) bool {
	var req PaymentReferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Reference) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Payment reference is required"})
		return false
	}
	*dst = strings.TrimSpace(req.Reference)
	return true
}

// ============================================================================
// VERIFY
// ============================================================================

// VerifyPayment handles POST /api/payment/verify
// @Summary Verify a payment with the gateway and settle the booking
// @Tags Payments
// @Accept json
// @Produce json
// @Param request body PaymentReferenceRequest true "Payment reference"
// @Success 200 {object} map[string]interface{} "Verification outcome"
// @Failure 400 {object} map[string]interface{} "Missing reference"
// @Router /payment/verify [post]
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	var reference string
	if !bindReference(c, &reference) {
		return
	}

	result, err := h.reconciler.Reconcile(c.Request.Context(), reference, models.PaymentSourceAPI)
	if err != nil {
		// Gateway and database detail stays in the logs
		logger := h.logger.WithError(err).WithField("reference", reference)
		if errors.Is(err, database.ErrPaymentNotFound) {
			logger.Info("Verification requested for unknown reference")
		} else {
			logger.Error("Payment verification errored")
		}
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"message": "Payment verification failed",
		})
		return
	}

	if !result.Successful() {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"message": "Payment verification failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Payment verified successfully",
	})
}

// ============================================================================
// CHECKOUT
// ============================================================================

// InitializePayment handles POST /api/payment/initialize
// @Summary Open a gateway checkout for a pending payment
// @Tags Payments
// @Accept json
// @Produce json
// @Param request body InitializePaymentRequest true "Reference and optional callback URL"
// @Success 200 {object} map[string]interface{} "Checkout opened"
// @Failure 404 {object} map[string]interface{} "Unknown reference"
// @Failure 409 {object} map[string]interface{} "Payment no longer pending"
// @Router /payment/initialize [post]
func (h *PaymentHandler) InitializePayment(c *gin.Context) {
	var req InitializePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Reference) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Payment reference is required"})
		return
	}

	callbackURL := req.CallbackURL
	if callbackURL == "" {
		callbackURL = h.callbackURL
	}

	session, err := h.checkout.InitializePayment(c.Request.Context(), strings.TrimSpace(req.Reference), callbackURL)
	if err != nil {
		status := statusForError(err)
		h.logger.WithError(err).WithField("reference", req.Reference).Warn("Failed to initialize payment")

		message := "Failed to initialize payment"
		switch status {
		case http.StatusNotFound:
			message = "Payment not found"
		case http.StatusConflict:
			message = "Payment is no longer pending"
		}
		c.JSON(status, gin.H{"success": false, "error": message})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"authorizationUrl": session.AuthorizationURL,
		"accessCode":       session.AccessCode,
		"reference":        session.Reference,
	})
}

// CancelPayment handles POST /api/payment/cancel when the guest closes checkout
func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	var reference string
	if !bindReference(c, &reference) {
		return
	}

	if err := h.checkout.CancelPayment(c.Request.Context(), reference); err != nil {
		status := statusForError(err)
		if status == http.StatusInternalServerError {
			h.logger.WithError(err).WithField("reference", reference).Error("Failed to cancel payment")
		}
		c.JSON(status, gin.H{"success": false, "error": "Failed to cancel payment"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ============================================================================
// WEBHOOK
// ============================================================================

// PaymentWebhook handles Paystack webhook callbacks
// @Summary Payment webhook callback
// @Description Called by Paystack; the body must carry a valid x-paystack-signature
// @Tags Payments
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{} "Webhook acknowledged"
// @Failure 401 {object} map[string]interface{} "Bad signature"
// @Router /payment/webhook [post]
func (h *PaymentHandler) PaymentWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.logger.WithError(err).Error("Failed to read webhook body")
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	if !h.webhooks.ValidateWebhookSignature(body, c.GetHeader(paystackSignatureHeader)) {
		h.logger.WithField("ip", c.ClientIP()).Warn("Rejected webhook with invalid signature")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	event, err := h.webhooks.ParseWebhook(body)
	if err != nil {
		// Acknowledge anyway so the gateway stops retrying a payload we cannot read
		h.logger.WithError(err).Warn("Failed to parse webhook payload")
		c.JSON(http.StatusOK, gin.H{"acknowledged": true})
		return
	}

	logger := h.logger.WithFields(logrus.Fields{
		"event":     event.Event,
		"reference": event.Data.Reference,
		"status":    event.Data.Status,
	})
	logger.Info("Paystack webhook received")

	if event.Event != eventChargeSuccess {
		c.JSON(http.StatusOK, gin.H{"acknowledged": true})
		return
	}

	result, err := h.reconciler.Reconcile(c.Request.Context(), event.Data.Reference, models.PaymentSourceWebhook)
	if err != nil {
		logger.WithError(err).Error("Failed to reconcile payment from webhook")
		c.JSON(http.StatusOK, gin.H{"acknowledged": true})
		return
	}

	logger.WithField("outcome", result.Outcome).Info("Webhook reconciled")
	c.JSON(http.StatusOK, gin.H{
		"acknowledged": true,
		"outcome":      result.Outcome,
	})
}
