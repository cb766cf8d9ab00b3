package integrations

import (
	"context"
	"fmt"
	"sort"
	"time"

	apperrors "inkbook/internal/errors"
	"inkbook/internal/external"
	"inkbook/internal/logger"
	"inkbook/internal/models"

	"github.com/kelseyhightower/envconfig"
)

// Service ids of the integration store
const (
	ServiceStripe         = "stripe"
	ServiceMercadoPago    = "mercadopago"
	ServiceResend         = "resend"
	ServiceEvolution      = "evolution"
	ServiceGoogleCalendar = "google_calendar"
)

// Credential sources
const (
	SourceStore = "store"
	SourceEnv   = "env"
)

// Config keys
const (
	KeySecretKey     = "secret_key"
	KeyWebhookSecret = "webhook_secret"
	KeyAccessToken   = "access_token"
	KeyAPIKey        = "api_key"
	KeyAPIURL        = "api_url"
	KeyInstance      = "instance"
	KeyFrom          = "from"
	KeyCalendarID    = "calendar_id"
	KeyBaseURL       = "base_url"
)

// RequiredKeys lists what a service needs to be usable.
var RequiredKeys = map[string][]string{
	ServiceStripe:         {KeySecretKey},
	ServiceMercadoPago:    {KeyAccessToken},
	ServiceResend:         {KeyAPIKey},
	ServiceEvolution:      {KeyAPIURL, KeyAPIKey, KeyInstance},
	ServiceGoogleCalendar: {KeyAccessToken},
}

// secretKeys are masked when listed.
var secretKeys = map[string]bool{
	KeySecretKey:     true,
	KeyWebhookSecret: true,
	KeyAccessToken:   true,
	KeyAPIKey:        true,
}

// IsSecret reports whether a config key holds a credential.
func IsSecret(key string) bool {
	return secretKeys[key]
}

// KnownService reports whether id is a supported service.
func KnownService(id string) bool {
	_, ok := RequiredKeys[id]
	return ok
}

// Services returns the supported service ids, sorted.
func Services() []string {
	ids := make([]string, 0, len(RequiredKeys))
	for id := range RequiredKeys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EnvCredentials is the environment fallback for every service.
type EnvCredentials struct {
	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	StripeAPIURL        string `envconfig:"STRIPE_API_URL"`

	MercadoPagoAccessToken string `envconfig:"MERCADOPAGO_ACCESS_TOKEN"`
	MercadoPagoAPIURL      string `envconfig:"MERCADOPAGO_API_URL"`

	ResendAPIKey string `envconfig:"RESEND_API_KEY"`
	ResendAPIURL string `envconfig:"RESEND_API_URL"`
	EmailFrom    string `envconfig:"EMAIL_FROM" default:"Inkbook <bookings@inkbook.studio>"`

	EvolutionAPIURL   string `envconfig:"EVOLUTION_API_URL"`
	EvolutionAPIKey   string `envconfig:"EVOLUTION_API_KEY"`
	EvolutionInstance string `envconfig:"EVOLUTION_INSTANCE"`

	GoogleCalendarToken  string `envconfig:"GOOGLE_CALENDAR_TOKEN"`
	GoogleCalendarID     string `envconfig:"GOOGLE_CALENDAR_ID" default:"primary"`
	GoogleCalendarAPIURL string `envconfig:"GOOGLE_CALENDAR_API_URL"`
}

func LoadEnvCredentials() (EnvCredentials, error) {
	var c EnvCredentials
	if err := envconfig.Process("", &c); err != nil {
		return EnvCredentials{}, fmt.Errorf("failed to load provider credentials: %w", err)
	}
	return c, nil
}

func (c EnvCredentials) settings(serviceID string) map[string]string {
	switch serviceID {
	case ServiceStripe:
		return map[string]string{KeySecretKey: c.StripeSecretKey, KeyWebhookSecret: c.StripeWebhookSecret, KeyBaseURL: c.StripeAPIURL}
	case ServiceMercadoPago:
		return map[string]string{KeyAccessToken: c.MercadoPagoAccessToken, KeyBaseURL: c.MercadoPagoAPIURL}
	case ServiceResend:
		return map[string]string{KeyAPIKey: c.ResendAPIKey, KeyFrom: c.EmailFrom, KeyBaseURL: c.ResendAPIURL}
	case ServiceEvolution:
		return map[string]string{KeyAPIURL: c.EvolutionAPIURL, KeyAPIKey: c.EvolutionAPIKey, KeyInstance: c.EvolutionInstance}
	case ServiceGoogleCalendar:
		return map[string]string{KeyAccessToken: c.GoogleCalendarToken, KeyCalendarID: c.GoogleCalendarID, KeyBaseURL: c.GoogleCalendarAPIURL}
	}
	return nil
}

// Store is the persisted integration settings.
type Store interface {
	Get(ctx context.Context, serviceID string) (*models.IntegrationConfig, error)
}

// Credentials are the resolved settings of one service.
type Credentials struct {
	ServiceID string
	Source    string
	Values    map[string]string
}

func (c Credentials) Get(key string) string {
	return c.Values[key]
}

// Resolver resolves provider credentials per call: an active, connected
// store entry wins, the environment is the fallback.
type Resolver struct {
	store   Store
	env     EnvCredentials
	timeout time.Duration
}

func NewResolver(store Store, env EnvCredentials, providers external.ProviderConfig) *Resolver {
	return &Resolver{
		store:   store,
		env:     env,
		timeout: providers.Timeout,
	}
}

// Resolve returns ErrNotConfigured when neither source has every
// required key.
func (r *Resolver) Resolve(ctx context.Context, serviceID string) (Credentials, error) {
	required, ok := RequiredKeys[serviceID]
	if !ok {
		return Credentials{}, fmt.Errorf("unknown integration %q", serviceID)
	}

	if r.store != nil {
		ic, err := r.store.Get(ctx, serviceID)
		if err != nil {
			logger.WithContext(ctx).Warn("Failed to read integration settings, using environment",
				"service", serviceID, "error", err)
		} else if ic != nil && ic.IsActive && ic.Status == models.IntegrationConnected && complete(ic.Config, required) {
			return Credentials{ServiceID: serviceID, Source: SourceStore, Values: ic.Config}, nil
		}
	}

	values := r.env.settings(serviceID)
	if complete(values, required) {
		return Credentials{ServiceID: serviceID, Source: SourceEnv, Values: values}, nil
	}

	return Credentials{}, fmt.Errorf("%s: %w", serviceID, apperrors.ErrNotConfigured)
}

func complete(values map[string]string, required []string) bool {
	for _, k := range required {
		if values[k] == "" {
			return false
		}
	}
	return true
}

// Card returns the Stripe client.
func (r *Resolver) Card(ctx context.Context) (external.CardProvider, error) {
	creds, err := r.Resolve(ctx, ServiceStripe)
	if err != nil {
		return nil, err
	}
	return external.NewStripeClient(external.StripeConfig{
		SecretKey:     creds.Get(KeySecretKey),
		WebhookSecret: creds.Get(KeyWebhookSecret),
		BaseURL:       creds.Get(KeyBaseURL),
		Timeout:       r.timeout,
	}), nil
}

// Pix returns the Mercado Pago client.
func (r *Resolver) Pix(ctx context.Context) (external.PixProvider, error) {
	creds, err := r.Resolve(ctx, ServiceMercadoPago)
	if err != nil {
		return nil, err
	}
	return external.NewMercadoPagoClient(external.MercadoPagoConfig{
		BaseURL:     creds.Get(KeyBaseURL),
		AccessToken: creds.Get(KeyAccessToken),
		Timeout:     r.timeout,
	}), nil
}

func (r *Resolver) Email(ctx context.Context) (external.EmailSender, error) {
	creds, err := r.Resolve(ctx, ServiceResend)
	if err != nil {
		return nil, err
	}
	from := creds.Get(KeyFrom)
	if from == "" {
		from = r.env.EmailFrom
	}
	return external.NewEmailClient(external.EmailConfig{
		BaseURL: creds.Get(KeyBaseURL),
		APIKey:  creds.Get(KeyAPIKey),
		From:    from,
		Timeout: r.timeout,
	}), nil
}

func (r *Resolver) WhatsApp(ctx context.Context) (external.WhatsAppSender, error) {
	creds, err := r.Resolve(ctx, ServiceEvolution)
	if err != nil {
		return nil, err
	}
	return external.NewWhatsAppClient(external.WhatsAppConfig{
		BaseURL:  creds.Get(KeyAPIURL),
		APIKey:   creds.Get(KeyAPIKey),
		Instance: creds.Get(KeyInstance),
		Timeout:  r.timeout,
	}), nil
}

func (r *Resolver) Calendar(ctx context.Context) (external.CalendarWriter, error) {
	creds, err := r.Resolve(ctx, ServiceGoogleCalendar)
	if err != nil {
		return nil, err
	}
	return external.NewCalendarClient(external.CalendarConfig{
		BaseURL:     creds.Get(KeyBaseURL),
		AccessToken: creds.Get(KeyAccessToken),
		CalendarID:  creds.Get(KeyCalendarID),
		Timeout:     r.timeout,
	}), nil
}
