// internal/services/payment_provider.go
package services

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/customer"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"github.com/stripe/stripe-go/v74/refund"

	"github.com/devmart/devmart-backend/internal/config"
)

// ProviderIntent is the provider-side view of a single charge attempt.
type ProviderIntent struct {
	ID           string
	ClientSecret string
	Status       string
}

const (
	IntentStatusSucceeded = "succeeded"
	IntentStatusCanceled  = "canceled"
)

// PaymentProvider is the slice of the payment processor the licensing
// core needs. The server never trusts client-asserted success; it
// always re-queries the intent status through this interface.
type PaymentProvider interface {
	CreateCustomer(ctx context.Context, email string) (string, error)
	CreatePaymentIntent(ctx context.Context, amount float64, currency, customerID string, metadata map[string]string) (*ProviderIntent, error)
	RetrievePaymentIntent(ctx context.Context, intentID string) (*ProviderIntent, error)
	Refund(ctx context.Context, intentID string, amount float64) error
}

// StripeProvider implements PaymentProvider on stripe-go.
type StripeProvider struct{}

func NewStripeProvider(cfg config.PaymentConfig) *StripeProvider {
	stripe.Key = cfg.StripeSecretKey
	return &StripeProvider{}
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, email string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	params.Context = ctx

	cust, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create customer: %w", err)
	}

	return cust.ID, nil
}

func (p *StripeProvider) CreatePaymentIntent(ctx context.Context, amount float64, currency, customerID string, metadata map[string]string) (*ProviderIntent, error) {
	// Stripe amounts are in the smallest currency unit
	amountInCents := int64(amount * 100)

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountInCents),
		Currency: stripe.String(currency),
		Customer: stripe.String(customerID),
	}
	params.Context = ctx

	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	return &ProviderIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
	}, nil
}

func (p *StripeProvider) RetrievePaymentIntent(ctx context.Context, intentID string) (*ProviderIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := paymentintent.Get(intentID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment intent: %w", err)
	}

	return &ProviderIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
	}, nil
}

func (p *StripeProvider) Refund(ctx context.Context, intentID string, amount float64) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
		Amount:        stripe.Int64(int64(amount * 100)),
		Reason:        stripe.String("requested_by_customer"),
	}
	params.Context = ctx

	if _, err := refund.New(params); err != nil {
		return fmt.Errorf("failed to process refund: %w", err)
	}

	return nil
}
