package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	apperrors "inkbook/internal/errors"
	"inkbook/internal/external"
	"inkbook/internal/logger"
	"inkbook/internal/metrics"
	"inkbook/internal/models"
	"inkbook/internal/notify"

	"github.com/google/uuid"
)

// Webhook acknowledgement statuses
const (
	WebhookIgnoredTopic          = "ignored_topic"
	WebhookIgnoredNoID           = "ignored_no_id"
	WebhookIgnoredNoRef          = "ignored_no_ref"
	WebhookIgnoredNotConfigured  = "ignored_not_configured"
	WebhookIgnoredUnknownBooking = "ignored_unknown_booking"
	WebhookIgnoredCancelled      = "ignored_cancelled"
	WebhookIgnoredLookupRejected = "ignored_lookup_rejected"
	WebhookConfirmed             = "confirmed"
	WebhookAlreadyConfirmed      = "already_confirmed"
	WebhookPaymentFailed         = "payment_failed"
	WebhookPending               = "pending"
)

// Provider payment outcomes
const (
	OutcomeApproved = "approved"
	OutcomeFailed   = "failed"
	OutcomePending  = "pending"
)

const (
	providerMercadoPago = "mercadopago"
	providerStripe      = "stripe"
)

// PaymentNotification is what a Pix provider delivery identifies.
type PaymentNotification struct {
	Topic     string
	PaymentID string
}

// ParseNotification reads topic and payment id from either the query string
// (topic/type, id/data.id) or a JSON body. Query values win.
func ParseNotification(query url.Values, body []byte) PaymentNotification {
	n := PaymentNotification{
		Topic:     firstNonEmpty(query.Get("topic"), query.Get("type")),
		PaymentID: firstNonEmpty(query.Get("data.id"), query.Get("id")),
	}

	if len(body) > 0 && (n.Topic == "" || n.PaymentID == "") {
		var payload notificationBody
		if err := json.Unmarshal(body, &payload); err == nil {
			if n.Topic == "" {
				n.Topic = firstNonEmpty(payload.Topic, payload.Type, strings.Split(payload.Action, ".")[0])
			}
			if n.PaymentID == "" {
				n.PaymentID = firstNonEmpty(string(payload.Data.ID), string(payload.ID))
			}
		}
	}

	n.Topic = strings.ToLower(strings.TrimSpace(n.Topic))
	n.PaymentID = strings.TrimSpace(n.PaymentID)
	return n
}

type notificationBody struct {
	Topic  string     `json:"topic"`
	Type   string     `json:"type"`
	Action string     `json:"action"`
	ID     flexibleID `json:"id"`
	Data   struct {
		ID flexibleID `json:"id"`
	} `json:"data"`
}

// flexibleID accepts ids sent as JSON strings or numbers.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	*f = flexibleID(strings.Trim(string(data), `"`))
	if *f == "null" {
		*f = ""
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Reconciler applies provider payment notifications to bookings. Each
// receiving endpoint passes the notification channels it fires on a
// confirmation.
type Reconciler struct {
	bookings   BookingStore
	rails      WebhookRails
	dispatcher notify.Dispatcher
}

func NewReconciler(bookings BookingStore, rails WebhookRails, dispatcher notify.Dispatcher) *Reconciler {
	return &Reconciler{
		bookings:   bookings,
		rails:      rails,
		dispatcher: dispatcher,
	}
}

// HandlePix reconciles a Mercado Pago notification. A returned error means
// the provider should redeliver.
func (r *Reconciler) HandlePix(ctx context.Context, n PaymentNotification, channels []string) (*models.WebhookResult, error) {
	log := logger.WithContext(ctx).With("provider", providerMercadoPago, "payment_id", n.PaymentID)

	if n.Topic != "payment" {
		return r.ack(providerMercadoPago, WebhookIgnoredTopic, ""), nil
	}
	if n.PaymentID == "" {
		log.Warn("Payment notification without payment id")
		return r.ack(providerMercadoPago, WebhookIgnoredNoID, ""), nil
	}

	pix, err := r.rails.Pix(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotConfigured) {
			log.Warn("Payment notification received but Mercado Pago is not configured")
			return r.ack(providerMercadoPago, WebhookIgnoredNotConfigured, ""), nil
		}
		return nil, fmt.Errorf("failed to resolve pix provider: %w", err)
	}

	payment, err := pix.GetPayment(ctx, n.PaymentID)
	var perr *apperrors.ProviderError
	if err != nil && errors.As(err, &perr) && !perr.Retryable {
		// Redelivery cannot change a 4xx answer for this id
		log.Warn("Provider rejected payment lookup", "error", err)
		return r.ack(providerMercadoPago, WebhookIgnoredLookupRejected, ""), nil
	}
	if err != nil {
		metrics.WebhookOutcomes.WithLabelValues(providerMercadoPago, "lookup_failed").Inc()
		return nil, fmt.Errorf("failed to get payment %s: %w", n.PaymentID, err)
	}
	if payment.ExternalReference == "" {
		log.Warn("Payment has no external reference")
		return r.ack(providerMercadoPago, WebhookIgnoredNoRef, ""), nil
	}

	return r.Apply(ctx, providerMercadoPago, payment.ExternalReference, payment.ID, pixOutcome(payment.Status), channels)
}

func pixOutcome(status string) string {
	switch status {
	case external.MPStatusApproved:
		return OutcomeApproved
	case external.MPStatusRejected, external.MPStatusCancelled:
		return OutcomeFailed
	default:
		return OutcomePending
	}
}

// HandleStripe verifies and reconciles a Stripe event.
func (r *Reconciler) HandleStripe(ctx context.Context, payload []byte, signature string, channels []string) (*models.WebhookResult, error) {
	log := logger.WithContext(ctx).With("provider", providerStripe)

	card, err := r.rails.Card(ctx)
	if err == nil {
		var event *external.StripeEvent
		event, err = card.ParseWebhook(payload, signature)
		if err == nil {
			return r.applyStripe(ctx, event, channels)
		}
	}

	switch {
	case errors.Is(err, apperrors.ErrNotConfigured):
		log.Warn("Stripe event received but Stripe webhooks are not configured")
		return r.ack(providerStripe, WebhookIgnoredNotConfigured, ""), nil
	case errors.Is(err, apperrors.ErrInvalidSignature):
		metrics.WebhookOutcomes.WithLabelValues(providerStripe, "invalid_signature").Inc()
		return nil, err
	default:
		return nil, fmt.Errorf("failed to parse stripe event: %w", err)
	}
}

func (r *Reconciler) applyStripe(ctx context.Context, event *external.StripeEvent, channels []string) (*models.WebhookResult, error) {
	var outcome string
	switch event.Type {
	case "payment_intent.succeeded":
		outcome = OutcomeApproved
	case "payment_intent.payment_failed", "payment_intent.canceled":
		outcome = OutcomeFailed
	default:
		return r.ack(providerStripe, WebhookIgnoredTopic, ""), nil
	}

	if event.BookingID == "" {
		logger.WithContext(ctx).Warn("Stripe payment intent has no booking_id metadata",
			"payment_intent_id", event.PaymentIntentID)
		return r.ack(providerStripe, WebhookIgnoredNoRef, ""), nil
	}
	return r.Apply(ctx, providerStripe, event.BookingID, event.PaymentIntentID, outcome, channels)
}

// Apply moves a booking according to a provider outcome. Confirmation is a
// conditional update, so a redelivered approval changes nothing and fires
// no notifications.
func (r *Reconciler) Apply(ctx context.Context, provider, bookingID, paymentID, outcome string, channels []string) (*models.WebhookResult, error) {
	log := logger.WithContext(ctx).With("provider", provider, "booking_id", bookingID, "payment_id", paymentID)

	if _, err := uuid.Parse(bookingID); err != nil {
		log.Warn("Payment references an unknown booking")
		return r.ack(provider, WebhookIgnoredUnknownBooking, ""), nil
	}

	booking, err := r.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	if booking == nil {
		log.Warn("Payment references an unknown booking")
		return r.ack(provider, WebhookIgnoredUnknownBooking, ""), nil
	}

	switch outcome {
	case OutcomeApproved:
		confirmed, err := r.bookings.ConfirmPayment(ctx, bookingID, paymentID)
		if errors.Is(err, apperrors.ErrNotFound) {
			return r.ack(provider, WebhookIgnoredUnknownBooking, ""), nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to confirm booking: %w", err)
		}
		if !confirmed {
			if booking.Status == models.BookingStatusCancelled {
				log.Warn("Payment approved for a cancelled booking")
				return r.ack(provider, WebhookIgnoredCancelled, bookingID), nil
			}
			log.Info("Payment already confirmed")
			return r.ack(provider, WebhookAlreadyConfirmed, bookingID), nil
		}

		booking.Status = models.BookingStatusConfirmed
		booking.PaymentStatus = models.PaymentStatusPaid
		if paymentID != "" {
			booking.PaymentID = &paymentID
		}
		log.Info("Booking confirmed by payment")
		r.dispatcher.Dispatch(ctx, models.EventPaymentConfirmed, *booking, channels)

		result := r.ack(provider, WebhookConfirmed, bookingID)
		result.PaymentStatus = models.PaymentStatusPaid
		return result, nil

	case OutcomeFailed:
		if _, err := r.bookings.MarkPaymentFailed(ctx, bookingID, paymentID); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("failed to mark payment failed: %w", err)
		}
		log.Info("Payment failed")
		result := r.ack(provider, WebhookPaymentFailed, bookingID)
		result.PaymentStatus = models.PaymentStatusFailed
		return result, nil

	default:
		result := r.ack(provider, WebhookPending, bookingID)
		result.PaymentStatus = models.PaymentStatusPending
		return result, nil
	}
}

func (r *Reconciler) ack(provider, status, bookingID string) *models.WebhookResult {
	metrics.WebhookOutcomes.WithLabelValues(provider, status).Inc()
	return &models.WebhookResult{Status: status, BookingID: bookingID}
}
