package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	apperrors "inkbook/internal/errors"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const providerStripe = "stripe"

// StripeConfig holds card rail credentials.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// BaseURL overrides the Stripe API endpoint, used by tests.
	BaseURL string
	Timeout time.Duration
}

// DepositIntentInput describes the card deposit for a booking.
type DepositIntentInput struct {
	BookingID   string
	ClientEmail string
	AmountEUR   float64
	Description string
}

// DepositIntent is the created payment intent.
type DepositIntent struct {
	ID           string
	ClientSecret string
	Status       string
}

// StripeEvent is a verified webhook event reduced to what reconciliation needs.
type StripeEvent struct {
	ID              string
	Type            string
	PaymentIntentID string
	BookingID       string
	Status          string
}

type StripeClient struct {
	api           *client.API
	webhookSecret string
}

func NewStripeClient(cfg StripeConfig) *StripeClient {
	backendCfg := &stripe.BackendConfig{
		HTTPClient: newHTTPClient(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(cfg.BaseURL)
	}

	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
	}

	return &StripeClient{
		api:           client.New(cfg.SecretKey, backends),
		webhookSecret: cfg.WebhookSecret,
	}
}

// ToMinorUnits converts a EUR amount to cents.
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// CreateDepositIntent creates a EUR payment intent tagged with the booking
// id. The booking id doubles as the idempotency key.
func (c *StripeClient) CreateDepositIntent(ctx context.Context, in DepositIntentInput) (*DepositIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(ToMinorUnits(in.AmountEUR)),
		Currency: stripe.String(string(stripe.CurrencyEUR)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if in.Description != "" {
		params.Description = stripe.String(in.Description)
	}
	if in.ClientEmail != "" {
		params.ReceiptEmail = stripe.String(in.ClientEmail)
	}
	params.AddMetadata("booking_id", in.BookingID)
	params.AddMetadata("client_email", in.ClientEmail)
	params.SetIdempotencyKey(in.BookingID)
	params.Context = ctx

	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return nil, classifyStripeError("create payment intent", err)
	}

	return &DepositIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
	}, nil
}

// ParseWebhook verifies the Stripe-Signature header and extracts the
// payment intent of payment_intent.* events.
func (c *StripeClient) ParseWebhook(payload []byte, signature string) (*StripeEvent, error) {
	if c.webhookSecret == "" {
		return nil, apperrors.ErrNotConfigured
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidSignature, err)
	}

	out := &StripeEvent{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return out, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("failed to decode payment intent: %w", err)
	}
	out.PaymentIntentID = pi.ID
	out.Status = string(pi.Status)
	if pi.Metadata != nil {
		out.BookingID = pi.Metadata["booking_id"]
	}
	return out, nil
}

func classifyStripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == http.StatusTooManyRequests || stripeErr.HTTPStatusCode >= 500 {
			return apperrors.NewTransientError(providerStripe, op, err)
		}
		return apperrors.NewProviderError(providerStripe, op, err)
	}
	return apperrors.NewTransientError(providerStripe, op, err)
}
