package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "inkbook/internal/errors"
	"inkbook/internal/external"
	"inkbook/internal/logger"
	"inkbook/internal/metrics"
	"inkbook/internal/models"
	"inkbook/internal/repository"
)

// AlternativeMethod is suggested to the client when a rail fails.
const AlternativeMethod = models.PaymentMethodWise

type Config struct {
	// AllowMock lets the Pix rail answer with a sandbox payload when no
	// Mercado Pago credential is configured. Never set in production.
	AllowMock bool
	Bank      BankDetails
}

// BankDetails are the studio's manual transfer instructions.
type BankDetails struct {
	BankName      string
	AccountHolder string
	IBAN          string
	BIC           string
	PixKey        string
}

// Rails hands out provider clients with credentials resolved per call.
type Rails interface {
	Card(ctx context.Context) (external.CardProvider, error)
	Pix(ctx context.Context) (external.PixProvider, error)
}

// ReferenceStore records the payment reference on a booking.
type ReferenceStore interface {
	SetPaymentReference(ctx context.Context, id string, ref repository.PaymentReference) error
}

// InitiationError is a payment rail failure after the booking was stored.
// The booking stays PENDING and unpaid.
type InitiationError struct {
	BookingID   string
	Method      string
	Alternative string
	Err         error
}

func (e *InitiationError) Error() string {
	return fmt.Sprintf("payment initiation for booking %s via %s failed: %v", e.BookingID, e.Method, e.Err)
}

func (e *InitiationError) Unwrap() error {
	return e.Err
}

// Router branches a PENDING booking into exactly one payment rail and
// records exactly one payment reference.
type Router struct {
	cfg   Config
	rails Rails
	rates external.RateSource
	store ReferenceStore
}

func NewRouter(cfg Config, rails Rails, rates external.RateSource, store ReferenceStore) *Router {
	return &Router{
		cfg:   cfg,
		rails: rails,
		rates: rates,
		store: store,
	}
}

// Initiate calls at most one provider.
func (r *Router) Initiate(ctx context.Context, booking *models.Booking) (*models.CreateBookingResponse, error) {
	switch booking.PaymentMethod {
	case models.PaymentMethodStripe:
		return r.initiateCard(ctx, booking)
	case models.PaymentMethodPix:
		return r.initiatePix(ctx, booking)
	default:
		return r.initiateManual(ctx, booking)
	}
}

func (r *Router) initiateCard(ctx context.Context, booking *models.Booking) (*models.CreateBookingResponse, error) {
	card, err := r.rails.Card(ctx)
	if err != nil {
		return nil, r.fail(ctx, booking, "stripe", err)
	}

	intent, err := card.CreateDepositIntent(ctx, external.DepositIntentInput{
		BookingID:   booking.ID,
		ClientEmail: booking.ClientEmail,
		AmountEUR:   booking.DepositAmount,
		Description: depositDescription(booking),
	})
	if err != nil {
		return nil, r.fail(ctx, booking, "stripe", err)
	}

	metadata, err := json.Marshal(map[string]any{
		"amount_minor": external.ToMinorUnits(booking.DepositAmount),
		"currency":     "eur",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment metadata: %w", err)
	}

	ref := repository.PaymentReference{PaymentIntentID: intent.ID, Metadata: metadata}
	if err := r.record(ctx, booking, ref); err != nil {
		return nil, err
	}

	return &models.CreateBookingResponse{
		BookingID:    booking.ID,
		Success:      true,
		Method:       booking.PaymentMethod,
		ClientSecret: intent.ClientSecret,
	}, nil
}

type pixMetadata struct {
	QRCode       string    `json:"qr_code"`
	QRCodeBase64 string    `json:"qr_code_base64"`
	AmountBRL    float64   `json:"amount_brl"`
	ExchangeRate float64   `json:"exchange_rate"`
	RateSource   string    `json:"rate_source"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	Mock         bool      `json:"mock,omitempty"`
}

func (r *Router) initiatePix(ctx context.Context, booking *models.Booking) (*models.CreateBookingResponse, error) {
	rate := r.rates.EURToBRL(ctx)
	amountBRL := external.ConvertEURToBRL(booking.DepositAmount, rate.Value)

	var data *models.PixData
	pix, err := r.rails.Pix(ctx)
	switch {
	case errors.Is(err, apperrors.ErrNotConfigured) && r.cfg.AllowMock:
		logger.WithContext(ctx).Warn("Mercado Pago not configured, returning mock Pix payload",
			"booking_id", booking.ID)
		data = mockPix(booking, amountBRL)
	case err != nil:
		return nil, r.fail(ctx, booking, "mercadopago", err)
	default:
		payment, err := pix.CreatePixPayment(ctx, external.PixPaymentInput{
			BookingID:   booking.ID,
			AmountBRL:   amountBRL,
			Description: depositDescription(booking),
			PayerEmail:  booking.ClientEmail,
			PayerName:   booking.ClientName,
		})
		if err != nil {
			return nil, r.fail(ctx, booking, "mercadopago", err)
		}
		data = &models.PixData{
			PaymentID:    payment.ID,
			QRCode:       payment.QRCode,
			QRCodeBase64: payment.QRCodeBase64,
			ExpiresAt:    payment.ExpiresAt,
		}
	}
	data.AmountBRL = amountBRL
	data.ExchangeRate = rate.Value
	data.RateSource = rate.Source

	metadata, err := json.Marshal(pixMetadata{
		QRCode:       data.QRCode,
		QRCodeBase64: data.QRCodeBase64,
		AmountBRL:    data.AmountBRL,
		ExchangeRate: data.ExchangeRate,
		RateSource:   data.RateSource,
		ExpiresAt:    data.ExpiresAt,
		Mock:         data.Mock,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment metadata: %w", err)
	}

	ref := repository.PaymentReference{PixPaymentID: data.PaymentID, Metadata: metadata}
	if err := r.record(ctx, booking, ref); err != nil {
		return nil, err
	}

	return &models.CreateBookingResponse{
		BookingID: booking.ID,
		Success:   true,
		Method:    booking.PaymentMethod,
		PixData:   data,
	}, nil
}

func mockPix(booking *models.Booking, amountBRL float64) *models.PixData {
	return &models.PixData{
		PaymentID:    "mock-" + shortID(booking.ID),
		QRCode:       "00020126MOCK" + strings.ToUpper(shortID(booking.ID)) + "5204000053039865802BR6304MOCK",
		QRCodeBase64: "",
		AmountBRL:    amountBRL,
		ExpiresAt:    time.Now().Add(external.PixExpiry).UTC(),
		Mock:         true,
	}
}

func (r *Router) initiateManual(ctx context.Context, booking *models.Booking) (*models.CreateBookingResponse, error) {
	instructions := r.instructions(booking)

	metadata, err := json.Marshal(map[string]any{"method": booking.PaymentMethod})
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment metadata: %w", err)
	}

	ref := repository.PaymentReference{ManualReference: instructions.Reference, Metadata: metadata}
	if err := r.record(ctx, booking, ref); err != nil {
		return nil, err
	}

	return &models.CreateBookingResponse{
		BookingID:    booking.ID,
		Success:      true,
		Method:       booking.PaymentMethod,
		Instructions: instructions,
	}, nil
}

func (r *Router) instructions(booking *models.Booking) *models.ManualInstructions {
	out := &models.ManualInstructions{
		Reference: ManualReference(booking.ID),
		Method:    booking.PaymentMethod,
		AmountEUR: booking.DepositAmount,
	}

	bank := r.cfg.Bank
	switch booking.PaymentMethod {
	case models.PaymentMethodWise:
		out.BankName = bank.BankName
		out.AccountHolder = bank.AccountHolder
		out.IBAN = bank.IBAN
		out.BIC = bank.BIC
		out.Message = fmt.Sprintf("Transfer %.2f EUR and include %s in the payment reference. Your booking is confirmed once the studio receives it.",
			booking.DepositAmount, out.Reference)
	case models.PaymentMethodPixManual:
		out.AccountHolder = bank.AccountHolder
		out.PixKey = bank.PixKey
		out.Message = fmt.Sprintf("Send the deposit to the Pix key and include %s in the description. Your booking is confirmed once the studio receives it.",
			out.Reference)
	default:
		out.Message = fmt.Sprintf("Your request %s is pending. The studio will contact you to settle the deposit.", out.Reference)
	}
	return out
}

// ManualReference is the human-readable code for offline payments.
func ManualReference(bookingID string) string {
	return "REF-" + strings.ToUpper(shortID(bookingID))
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func depositDescription(booking *models.Booking) string {
	return fmt.Sprintf("Tattoo deposit %s %s %s", booking.CityName, booking.BookingDate, booking.BookingTime)
}

func (r *Router) record(ctx context.Context, booking *models.Booking, ref repository.PaymentReference) error {
	if err := r.store.SetPaymentReference(ctx, booking.ID, ref); err != nil {
		return fmt.Errorf("failed to record payment reference: %w", err)
	}

	switch {
	case ref.PaymentIntentID != "":
		booking.PaymentIntentID = &ref.PaymentIntentID
	case ref.PixPaymentID != "":
		booking.PixPaymentID = &ref.PixPaymentID
	case ref.ManualReference != "":
		booking.ManualReference = &ref.ManualReference
	}
	booking.PaymentMetadata = ref.Metadata
	return nil
}

func (r *Router) fail(ctx context.Context, booking *models.Booking, provider string, err error) error {
	metrics.PaymentInitFailures.WithLabelValues(provider).Inc()
	logger.WithContext(ctx).Error("Failed to initiate payment",
		"booking_id", booking.ID, "provider", provider, "error", err)

	if errors.Is(err, apperrors.ErrNotConfigured) {
		err = apperrors.NewProviderError(provider, "initiate payment", err)
	}
	return &InitiationError{
		BookingID:   booking.ID,
		Method:      booking.PaymentMethod,
		Alternative: AlternativeMethod,
		Err:         err,
	}
}
