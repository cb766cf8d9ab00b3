package integrations

import (
	"context"
	"errors"
	"testing"

	apperrors "inkbook/internal/errors"
	"inkbook/internal/external"
	"inkbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	items map[string]*models.IntegrationConfig
	err   error
}

func (f *fakeStore) Get(_ context.Context, serviceID string) (*models.IntegrationConfig, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.items[serviceID], nil
}

func TestResolve_StoreWinsOverEnv(t *testing.T) {
	store := &fakeStore{items: map[string]*models.IntegrationConfig{
		ServiceMercadoPago: {
			ServiceID: ServiceMercadoPago,
			IsActive:  true,
			Status:    models.IntegrationConnected,
			Config:    map[string]string{KeyAccessToken: "from-store"},
		},
	}}
	r := NewResolver(store, EnvCredentials{MercadoPagoAccessToken: "from-env"}, external.ProviderConfig{})

	creds, err := r.Resolve(context.Background(), ServiceMercadoPago)
	require.NoError(t, err)
	assert.Equal(t, SourceStore, creds.Source)
	assert.Equal(t, "from-store", creds.Get(KeyAccessToken))
}

func TestResolve_FallsBackToEnv(t *testing.T) {
	cases := map[string]*models.IntegrationConfig{
		"missing":      nil,
		"inactive":     {IsActive: false, Status: models.IntegrationConnected, Config: map[string]string{KeyAccessToken: "x"}},
		"disconnected": {IsActive: true, Status: models.IntegrationDisconnected, Config: map[string]string{KeyAccessToken: "x"}},
		"incomplete":   {IsActive: true, Status: models.IntegrationConnected, Config: map[string]string{}},
	}

	for name, ic := range cases {
		t.Run(name, func(t *testing.T) {
			store := &fakeStore{items: map[string]*models.IntegrationConfig{ServiceMercadoPago: ic}}
			r := NewResolver(store, EnvCredentials{MercadoPagoAccessToken: "from-env"}, external.ProviderConfig{})

			creds, err := r.Resolve(context.Background(), ServiceMercadoPago)
			require.NoError(t, err)
			assert.Equal(t, SourceEnv, creds.Source)
			assert.Equal(t, "from-env", creds.Get(KeyAccessToken))
		})
	}
}

func TestResolve_StoreErrorFallsBackToEnv(t *testing.T) {
	r := NewResolver(&fakeStore{err: errors.New("db down")}, EnvCredentials{StripeSecretKey: "sk"}, external.ProviderConfig{})

	creds, err := r.Resolve(context.Background(), ServiceStripe)
	require.NoError(t, err)
	assert.Equal(t, SourceEnv, creds.Source)
}

func TestResolve_NotConfigured(t *testing.T) {
	r := NewResolver(nil, EnvCredentials{EvolutionAPIURL: "http://evo", EvolutionAPIKey: "k"}, external.ProviderConfig{})

	_, err := r.Resolve(context.Background(), ServiceEvolution)
	assert.ErrorIs(t, err, apperrors.ErrNotConfigured)

	_, err = r.Pix(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrNotConfigured)
}

func TestResolve_UnknownService(t *testing.T) {
	r := NewResolver(nil, EnvCredentials{}, external.ProviderConfig{})
	_, err := r.Resolve(context.Background(), "paypal")
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperrors.ErrNotConfigured))
}

func TestResolver_TypedClients(t *testing.T) {
	env := EnvCredentials{
		StripeSecretKey:        "sk_test",
		MercadoPagoAccessToken: "mp",
		ResendAPIKey:           "re",
		EmailFrom:              "Studio <s@example.com>",
		EvolutionAPIURL:        "http://evo",
		EvolutionAPIKey:        "k",
		EvolutionInstance:      "studio",
		GoogleCalendarToken:    "g",
	}
	r := NewResolver(nil, env, external.ProviderConfig{})
	ctx := context.Background()

	card, err := r.Card(ctx)
	require.NoError(t, err)
	assert.NotNil(t, card)

	pix, err := r.Pix(ctx)
	require.NoError(t, err)
	assert.NotNil(t, pix)

	email, err := r.Email(ctx)
	require.NoError(t, err)
	assert.NotNil(t, email)

	wa, err := r.WhatsApp(ctx)
	require.NoError(t, err)
	assert.NotNil(t, wa)

	cal, err := r.Calendar(ctx)
	require.NoError(t, err)
	assert.NotNil(t, cal)
}

func TestLoadEnvCredentials(t *testing.T) {
	t.Setenv("MERCADOPAGO_ACCESS_TOKEN", "APP_USR-1")
	t.Setenv("EVOLUTION_INSTANCE", "studio")

	c, err := LoadEnvCredentials()
	require.NoError(t, err)
	assert.Equal(t, "APP_USR-1", c.MercadoPagoAccessToken)
	assert.Equal(t, "studio", c.EvolutionInstance)
	assert.Equal(t, "primary", c.GoogleCalendarID)
}

func TestServicesAndSecrets(t *testing.T) {
	assert.Equal(t, []string{"evolution", "google_calendar", "mercadopago", "resend", "stripe"}, Services())
	assert.True(t, KnownService(ServiceStripe))
	assert.False(t, KnownService("paypal"))
	assert.True(t, IsSecret(KeyAccessToken))
	assert.False(t, IsSecret(KeyInstance))
}
