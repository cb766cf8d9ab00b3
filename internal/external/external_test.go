package external

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	apperrors "inkbook/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
)

func TestMercadoPago_CreatePixPayment(t *testing.T) {
	var got mpCreatePaymentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payments", r.URL.Path)
		assert.Equal(t, "Bearer mp-token", r.Header.Get("Authorization"))
		assert.Equal(t, "booking-1", r.Header.Get("X-Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": 987654,
			"status": "pending",
			"external_reference": "booking-1",
			"transaction_amount": 325.5,
			"date_of_expiration": "2025-03-10T12:30:00Z",
			"point_of_interaction": {"transaction_data": {"qr_code": "000201", "qr_code_base64": "iVBOR"}}
		}`)
	}))
	defer srv.Close()

	c := NewMercadoPagoClient(MercadoPagoConfig{BaseURL: srv.URL, AccessToken: "mp-token"})
	p, err := c.CreatePixPayment(context.Background(), PixPaymentInput{
		BookingID:  "booking-1",
		AmountBRL:  325.5,
		PayerEmail: "ana@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "pix", got.PaymentMethodID)
	assert.Equal(t, "booking-1", got.ExternalReference)
	assert.Equal(t, 325.5, got.TransactionAmount)

	assert.Equal(t, "987654", p.ID)
	assert.Equal(t, "000201", p.QRCode)
	assert.Equal(t, "iVBOR", p.QRCodeBase64)
	assert.Equal(t, 2025, p.ExpiresAt.Year())
}

func TestMercadoPago_GetPaymentErrors(t *testing.T) {
	status := int32(http.StatusBadRequest)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(atomic.LoadInt32(&status)))
		_, _ = io.WriteString(w, `{"message":"nope"}`)
	}))
	defer srv.Close()

	c := NewMercadoPagoClient(MercadoPagoConfig{BaseURL: srv.URL, AccessToken: "t"})

	_, err := c.GetPayment(context.Background(), "1")
	require.Error(t, err)
	var pe *apperrors.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.False(t, pe.Retryable)

	atomic.StoreInt32(&status, http.StatusServiceUnavailable)
	_, err = c.GetPayment(context.Background(), "1")
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestDoJSON_TimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	hc := newHTTPClient(50 * time.Millisecond)
	err := doJSON(context.Background(), hc, "test", "slow", http.MethodGet, srv.URL, nil, nil, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
}

type memoryRateCache struct {
	values map[string]float64
	sets   int
}

func (m *memoryRateCache) GetFloat(_ context.Context, key string) (float64, bool, error) {
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memoryRateCache) SetFloat(_ context.Context, key string, value float64, _ time.Duration) error {
	m.values[key] = value
	m.sets++
	return nil
}

func TestRateClient_LiveThenCached(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = io.WriteString(w, `{"result":"success","rates":{"BRL":6.1234,"USD":1.08}}`)
	}))
	defer srv.Close()

	cache := &memoryRateCache{values: map[string]float64{}}
	c := NewRateClient(RatesConfig{URL: srv.URL, CacheTTL: time.Minute}, cache)

	first := c.EURToBRL(context.Background())
	assert.Equal(t, RateSourceLive, first.Source)
	assert.Equal(t, 6.1234, first.Value)

	second := c.EURToBRL(context.Background())
	assert.Equal(t, RateSourceCache, second.Source)
	assert.Equal(t, 6.1234, second.Value)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, cache.sets)
}

func TestRateClient_FallsBackOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewRateClient(RatesConfig{URL: srv.URL, Fallback: 6.5}, nil)
	rate := c.EURToBRL(context.Background())
	assert.Equal(t, RateSourceFallback, rate.Source)
	assert.Equal(t, 6.5, rate.Value)
}

func TestRateClient_LocalMemoExpires(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = io.WriteString(w, `{"rates":{"BRL":6.0}}`)
	}))
	defer srv.Close()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewRateClient(RatesConfig{URL: srv.URL, CacheTTL: 5 * time.Minute}, nil)
	c.now = func() time.Time { return now }

	c.EURToBRL(context.Background())
	c.EURToBRL(context.Background())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	now = now.Add(6 * time.Minute)
	rate := c.EURToBRL(context.Background())
	assert.Equal(t, RateSourceLive, rate.Source)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestConvertEURToBRL(t *testing.T) {
	assert.Equal(t, 325.62, ConvertEURToBRL(50, 6.5124))
	assert.Equal(t, 0.0, ConvertEURToBRL(0, 6.5))
}

func TestWhatsApp_SendText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/message/sendText/studio", r.URL.Path)
		assert.Equal(t, "evo-key", r.Header.Get("apikey"))

		var body evolutionTextRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "5511999998888", body.Number)
		assert.Contains(t, body.Text, "confirmed")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewWhatsAppClient(WhatsAppConfig{BaseURL: srv.URL, APIKey: "evo-key", Instance: "studio"})
	require.NoError(t, c.SendText(context.Background(), "+55 (11) 99999-8888", "Your session is confirmed"))
}

func TestEmail_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_123", r.Header.Get("Authorization"))

		var body resendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"ana@example.com"}, body.To)
		assert.Equal(t, "Studio <s@example.com>", body.From)
		_, _ = io.WriteString(w, `{"id":"msg_1"}`)
	}))
	defer srv.Close()

	c := NewEmailClient(EmailConfig{BaseURL: srv.URL, APIKey: "re_123", From: "Studio <s@example.com>"})
	id, err := c.Send(context.Background(), Email{To: "ana@example.com", Subject: "Hi", Text: "Hello"})
	require.NoError(t, err)
	assert.Equal(t, "msg_1", id)
}

func TestCalendar_InsertEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/calendar/v3/calendars/artist@example.com/events", r.URL.Path)
		assert.Equal(t, "Bearer g-token", r.Header.Get("Authorization"))

		var body gcalEventRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "2025-03-10T14:00:00Z", body.Start.DateTime)
		assert.Equal(t, "2025-03-10T17:00:00Z", body.End.DateTime)
		assert.Equal(t, "b-1", body.ExtendedProperties.Private["bookingId"])
		_, _ = io.WriteString(w, `{"id":"evt_1"}`)
	}))
	defer srv.Close()

	start := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	c := NewCalendarClient(CalendarConfig{BaseURL: srv.URL, AccessToken: "g-token", CalendarID: "artist@example.com"})
	id, err := c.InsertEvent(context.Background(), CalendarEvent{
		Summary:    "Ana: fine_line",
		Start:      start,
		End:        start.Add(3 * time.Hour),
		ExternalID: "b-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "evt_1", id)
}

func TestStripe_CreateDepositIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "booking-1", r.Header.Get("Idempotency-Key"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "5000", r.PostForm.Get("amount"))
		assert.Equal(t, "eur", r.PostForm.Get("currency"))
		assert.Equal(t, "booking-1", r.PostForm.Get("metadata[booking_id]"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"pi_1","object":"payment_intent","client_secret":"pi_1_secret","status":"requires_payment_method"}`)
	}))
	defer srv.Close()

	c := NewStripeClient(StripeConfig{SecretKey: "sk_test_123", BaseURL: srv.URL})
	intent, err := c.CreateDepositIntent(context.Background(), DepositIntentInput{
		BookingID:   "booking-1",
		ClientEmail: "ana@example.com",
		AmountEUR:   50,
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_1", intent.ID)
	assert.Equal(t, "pi_1_secret", intent.ClientSecret)
}

func TestStripe_ParseWebhook(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{
		"id": "evt_1",
		"object": "event",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_1", "object": "payment_intent", "status": "succeeded", "metadata": {"booking_id": "booking-1"}}}
	}`)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: secret})

	c := NewStripeClient(StripeConfig{SecretKey: "sk_test", WebhookSecret: secret})
	ev, err := c.ParseWebhook(signed.Payload, signed.Header)
	require.NoError(t, err)
	assert.Equal(t, "payment_intent.succeeded", ev.Type)
	assert.Equal(t, "pi_1", ev.PaymentIntentID)
	assert.Equal(t, "booking-1", ev.BookingID)

	_, err = c.ParseWebhook(payload, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, apperrors.ErrInvalidSignature)

	unconfigured := NewStripeClient(StripeConfig{SecretKey: "sk_test"})
	_, err = unconfigured.ParseWebhook(payload, signed.Header)
	assert.ErrorIs(t, err, apperrors.ErrNotConfigured)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.True(t, strings.HasSuffix(truncate(strings.Repeat("x", 10), 4), "..."))
}
