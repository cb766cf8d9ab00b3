package external

import "context"

// CardProvider is the card rail.
type CardProvider interface {
	CreateDepositIntent(ctx context.Context, in DepositIntentInput) (*DepositIntent, error)
	ParseWebhook(payload []byte, signature string) (*StripeEvent, error)
}

// PixProvider is the Pix rail.
type PixProvider interface {
	CreatePixPayment(ctx context.Context, in PixPaymentInput) (*PixPayment, error)
	GetPayment(ctx context.Context, paymentID string) (*PixPayment, error)
}

// RateSource converts deposits for the Pix rail.
type RateSource interface {
	EURToBRL(ctx context.Context) Rate
}

type EmailSender interface {
	Send(ctx context.Context, msg Email) (string, error)
}

type WhatsAppSender interface {
	SendText(ctx context.Context, phone, text string) error
}

type CalendarWriter interface {
	InsertEvent(ctx context.Context, ev CalendarEvent) (string, error)
}

var (
	_ CardProvider   = (*StripeClient)(nil)
	_ PixProvider    = (*MercadoPagoClient)(nil)
	_ RateSource     = (*RateClient)(nil)
	_ EmailSender    = (*EmailClient)(nil)
	_ WhatsAppSender = (*WhatsAppClient)(nil)
	_ CalendarWriter = (*CalendarClient)(nil)
)
