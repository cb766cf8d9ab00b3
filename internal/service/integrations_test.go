package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	apperrors "inkbook/internal/errors"
	"inkbook/internal/integrations"
	"inkbook/internal/models"
	"inkbook/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret(""))
	assert.Equal(t, "****", MaskSecret("short"))
	assert.Equal(t, "****7890", MaskSecret("sk_test_1234567890"))
}

func TestIntegrationList_MasksSecretsAndListsAllServices(t *testing.T) {
	store := &memIntegrations{rows: map[string]models.IntegrationConfig{
		integrations.ServiceStripe: {
			ServiceID: integrations.ServiceStripe,
			IsActive:  true,
			Status:    models.IntegrationConnected,
			Config:    map[string]string{integrations.KeySecretKey: "sk_test_1234567890", integrations.KeyBaseURL: "https://api.stripe.com"},
		},
	}}
	svc := NewIntegrationService(store)

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, len(integrations.Services()))

	for _, ic := range list {
		if ic.ServiceID == integrations.ServiceStripe {
			assert.Equal(t, "****7890", ic.Config[integrations.KeySecretKey])
			assert.Equal(t, "https://api.stripe.com", ic.Config[integrations.KeyBaseURL])
			continue
		}
		assert.Equal(t, models.IntegrationDisconnected, ic.Status)
	}
	assert.Equal(t, "sk_test_1234567890", store.rows[integrations.ServiceStripe].Config[integrations.KeySecretKey])
}

func TestIntegrationUpsert(t *testing.T) {
	store := &memIntegrations{rows: map[string]models.IntegrationConfig{}}
	svc := NewIntegrationService(store)
	svc.now = clock

	_, err := svc.Upsert(context.Background(), integrations.ServiceEvolution, &models.UpsertIntegrationRequest{
		IsActive: true,
		Config:   map[string]string{integrations.KeyAPIKey: "evo-key"},
	})
	var verr *apperrors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "config.api_url")
	assert.Contains(t, verr.Fields, "config.instance")

	saved, err := svc.Upsert(context.Background(), integrations.ServiceMercadoPago, &models.UpsertIntegrationRequest{
		IsActive: true,
		Config:   map[string]string{integrations.KeyAccessToken: "APP_USR-123456789"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.IntegrationConnected, saved.Status)
	assert.Equal(t, "****6789", saved.Config[integrations.KeyAccessToken])

	// Sending back the masked value keeps the stored secret
	_, err = svc.Upsert(context.Background(), integrations.ServiceMercadoPago, &models.UpsertIntegrationRequest{
		IsActive: true,
		Config:   map[string]string{integrations.KeyAccessToken: "****6789"},
	})
	require.NoError(t, err)
	assert.Equal(t, "APP_USR-123456789", store.rows[integrations.ServiceMercadoPago].Config[integrations.KeyAccessToken])

	off, err := svc.Upsert(context.Background(), integrations.ServiceResend, &models.UpsertIntegrationRequest{IsActive: false})
	require.NoError(t, err)
	assert.Equal(t, models.IntegrationDisconnected, off.Status)

	_, err = svc.Upsert(context.Background(), "slack", &models.UpsertIntegrationRequest{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestExportBookings(t *testing.T) {
	b := pendingBooking("7d1c8a52-1111-4c3e-9c77-2b5f8f1a0001", models.PaymentMethodWise)
	ref := "REF-7D1C8A52"
	b.ManualReference = &ref
	svc := NewExportService(newMemBookings(b))

	data, contentType, err := svc.Bookings(context.Background(), FormatCSV, repository.BookingFilter{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(contentType, "text/csv"))
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "REF-7D1C8A52")
	assert.Contains(t, lines[1], "100.00")

	data, _, err = svc.Bookings(context.Background(), FormatXLSX, repository.BookingFilter{})
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Bookings")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, b.ID, rows[1][0])
	assert.Equal(t, "Paris", rows[1][3])

	_, _, err = svc.Bookings(context.Background(), "pdf", repository.BookingFilter{})
	var verr *apperrors.ValidationError
	assert.True(t, errors.As(err, &verr))
}
