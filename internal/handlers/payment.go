// internal/handlers/payment.go
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/devmart/devmart-backend/internal/services"
	"github.com/devmart/devmart-backend/internal/utils"
)

const maxWebhookBodyBytes = int64(65536)

type PaymentHandler struct {
	licenseService *services.LicenseService
	webhookSecret  string
}

func NewPaymentHandler(licenseService *services.LicenseService, webhookSecret string) *PaymentHandler {
	return &PaymentHandler{
		licenseService: licenseService,
		webhookSecret:  webhookSecret,
	}
}

// POST /payments/confirm
//
// The client only tells us which intent to check. The payment status is
// re-fetched from the provider, never taken from the request.
func (h *PaymentHandler) Confirm(c *gin.Context) {
	userID := utils.GetUserUUIDFromContext(c)
	if userID == nil {
		utils.UnauthorizedResponse(c, "authentication required")
		return
	}

	var req struct {
		PaymentIntentID string `json:"payment_intent_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid request body", err.Error())
		return
	}

	license, err := h.licenseService.ConfirmPayment(c.Request.Context(), req.PaymentIntentID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrLicenseNotFound):
			utils.NotFoundResponse(c, "payment")
		case errors.Is(err, services.ErrLicenseRefunded):
			utils.ConflictResponse(c, "this purchase has been refunded")
		case errors.Is(err, services.ErrPaymentNotCompleted):
			utils.ErrorResponse(c, http.StatusPaymentRequired, "PAYMENT_NOT_COMPLETED", "payment has not completed", nil)
		case errors.Is(err, services.ErrProviderFailure):
			utils.ErrorResponse(c, http.StatusBadGateway, "PAYMENT_PROVIDER_ERROR", "payment provider is unavailable", nil)
		default:
			utils.InternalErrorResponse(c, "failed to confirm payment")
		}
		return
	}

	utils.SuccessResponse(c, license)
}

// POST /payments/webhook
//
// Stripe delivery endpoint. The signature check is the authentication;
// the route is mounted outside the auth middleware.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes)

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	event, err := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		logrus.WithError(err).Warn("webhook signature verification failed")
		c.Status(http.StatusBadRequest)
		return
	}

	logrus.WithField("event_type", event.Type).Debug("received stripe event")

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			logrus.WithError(err).Error("failed to parse payment intent event")
			c.Status(http.StatusBadRequest)
			return
		}

		// ConfirmPayment re-fetches the intent from the provider, so a
		// forged event type cannot activate a license.
		_, err := h.licenseService.ConfirmPayment(c.Request.Context(), intent.ID)
		if err != nil && !errors.Is(err, services.ErrLicenseNotFound) &&
			!errors.Is(err, services.ErrPaymentNotCompleted) &&
			!errors.Is(err, services.ErrLicenseRefunded) {
			logrus.WithError(err).WithField("intent_id", intent.ID).Error("webhook confirmation failed")
			c.Status(http.StatusInternalServerError)
			return
		}

	default:
		// Unhandled event types are acknowledged so Stripe stops retrying.
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
