package payments

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	apperrors "inkbook/internal/errors"
	"inkbook/internal/external"
	"inkbook/internal/models"
	"inkbook/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCard struct {
	calls int
	err   error
	in    external.DepositIntentInput
}

func (f *fakeCard) CreateDepositIntent(_ context.Context, in external.DepositIntentInput) (*external.DepositIntent, error) {
	f.calls++
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &external.DepositIntent{ID: "pi_1", ClientSecret: "pi_1_secret"}, nil
}

func (f *fakeCard) ParseWebhook([]byte, string) (*external.StripeEvent, error) {
	return nil, errors.New("not used")
}

type fakePix struct {
	calls int
	err   error
	in    external.PixPaymentInput
}

func (f *fakePix) CreatePixPayment(_ context.Context, in external.PixPaymentInput) (*external.PixPayment, error) {
	f.calls++
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &external.PixPayment{ID: "123", QRCode: "000201", QRCodeBase64: "iVBOR", Status: external.MPStatusPending}, nil
}

func (f *fakePix) GetPayment(context.Context, string) (*external.PixPayment, error) {
	return nil, errors.New("not used")
}

type fakeRails struct {
	card    *fakeCard
	pix     *fakePix
	cardErr error
	pixErr  error
}

func (f *fakeRails) Card(context.Context) (external.CardProvider, error) {
	if f.cardErr != nil {
		return nil, f.cardErr
	}
	return f.card, nil
}

func (f *fakeRails) Pix(context.Context) (external.PixProvider, error) {
	if f.pixErr != nil {
		return nil, f.pixErr
	}
	return f.pix, nil
}

type fixedRate external.Rate

func (f fixedRate) EURToBRL(context.Context) external.Rate {
	return external.Rate(f)
}

type fakeRefStore struct {
	refs map[string]repository.PaymentReference
	err  error
}

func (f *fakeRefStore) SetPaymentReference(_ context.Context, id string, ref repository.PaymentReference) error {
	if f.err != nil {
		return f.err
	}
	f.refs[id] = ref
	return nil
}

func newTestRouter(cfg Config, rails *fakeRails, rate external.Rate) (*Router, *fakeRefStore) {
	store := &fakeRefStore{refs: map[string]repository.PaymentReference{}}
	return NewRouter(cfg, rails, fixedRate(rate), store), store
}

func pendingBooking(method string, deposit float64) *models.Booking {
	return &models.Booking{
		ID:            "3f2a9c1e-7b4d-4e21-9a55-0c1d2e3f4a5b",
		ClientName:    "Ana",
		ClientEmail:   "ana@example.com",
		BookingDate:   models.NewDate(2025, time.March, 10),
		BookingTime:   "14:00",
		CityName:      "Paris",
		DepositAmount: deposit,
		PaymentMethod: method,
		Status:        models.BookingStatusPending,
		PaymentStatus: models.PaymentStatusPending,
	}
}

func populatedRefs(ref repository.PaymentReference) int {
	n := 0
	for _, v := range []string{ref.PaymentIntentID, ref.PixPaymentID, ref.ManualReference} {
		if v != "" {
			n++
		}
	}
	return n
}

func TestInitiate_Stripe(t *testing.T) {
	rails := &fakeRails{card: &fakeCard{}, pix: &fakePix{}}
	r, store := newTestRouter(Config{}, rails, external.Rate{Value: 6, Source: external.RateSourceLive})
	b := pendingBooking(models.PaymentMethodStripe, 50)

	resp, err := r.Initiate(context.Background(), b)
	require.NoError(t, err)

	assert.Equal(t, "pi_1_secret", resp.ClientSecret)
	assert.Equal(t, b.ID, resp.BookingID)
	assert.Equal(t, b.ID, rails.card.in.BookingID)
	assert.Equal(t, 50.0, rails.card.in.AmountEUR)
	assert.Equal(t, 0, rails.pix.calls)

	ref := store.refs[b.ID]
	assert.Equal(t, "pi_1", ref.PaymentIntentID)
	assert.Equal(t, 1, populatedRefs(ref))
	require.NotNil(t, b.PaymentIntentID)
	assert.Nil(t, b.PixPaymentID)
	assert.Nil(t, b.ManualReference)
}

func TestInitiate_PixUsesLiveRate(t *testing.T) {
	rails := &fakeRails{card: &fakeCard{}, pix: &fakePix{}}
	r, store := newTestRouter(Config{}, rails, external.Rate{Value: 6.1, Source: external.RateSourceLive})
	b := pendingBooking(models.PaymentMethodPix, 100)

	resp, err := r.Initiate(context.Background(), b)
	require.NoError(t, err)
	require.NotNil(t, resp.PixData)

	assert.Equal(t, 610.0, rails.pix.in.AmountBRL)
	assert.Equal(t, b.ID, rails.pix.in.BookingID)
	assert.Equal(t, "123", resp.PixData.PaymentID)
	assert.Equal(t, "000201", resp.PixData.QRCode)
	assert.Equal(t, 610.0, resp.PixData.AmountBRL)
	assert.False(t, resp.PixData.Mock)
	assert.Equal(t, 0, rails.card.calls)

	ref := store.refs[b.ID]
	assert.Equal(t, "123", ref.PixPaymentID)
	assert.Equal(t, 1, populatedRefs(ref))

	var meta pixMetadata
	require.NoError(t, json.Unmarshal(ref.Metadata, &meta))
	assert.Equal(t, "000201", meta.QRCode)
	assert.Equal(t, "iVBOR", meta.QRCodeBase64)
	assert.Equal(t, 610.0, meta.AmountBRL)
}

func TestInitiate_PixFallbackRate(t *testing.T) {
	rails := &fakeRails{card: &fakeCard{}, pix: &fakePix{}}
	r, _ := newTestRouter(Config{}, rails, external.Rate{Value: 6.5, Source: external.RateSourceFallback})
	b := pendingBooking(models.PaymentMethodPix, 123.4)

	resp, err := r.Initiate(context.Background(), b)
	require.NoError(t, err)

	assert.Equal(t, 802.1, resp.PixData.AmountBRL)
	assert.Equal(t, external.RateSourceFallback, resp.PixData.RateSource)
	assert.Equal(t, 6.5, resp.PixData.ExchangeRate)
}

func TestInitiate_PixMockWhenNotConfigured(t *testing.T) {
	rails := &fakeRails{pixErr: apperrors.ErrNotConfigured}
	r, store := newTestRouter(Config{AllowMock: true}, rails, external.Rate{Value: 6, Source: external.RateSourceLive})
	b := pendingBooking(models.PaymentMethodPix, 50)

	resp, err := r.Initiate(context.Background(), b)
	require.NoError(t, err)
	assert.True(t, resp.PixData.Mock)
	assert.True(t, strings.HasPrefix(resp.PixData.PaymentID, "mock-"))
	assert.Equal(t, 300.0, resp.PixData.AmountBRL)
	assert.Equal(t, 1, populatedRefs(store.refs[b.ID]))
}

func TestInitiate_PixNotConfiguredWithoutMock(t *testing.T) {
	rails := &fakeRails{pixErr: apperrors.ErrNotConfigured}
	r, store := newTestRouter(Config{AllowMock: false}, rails, external.Rate{Value: 6, Source: external.RateSourceLive})
	b := pendingBooking(models.PaymentMethodPix, 50)

	_, err := r.Initiate(context.Background(), b)
	require.Error(t, err)

	var initErr *InitiationError
	require.True(t, errors.As(err, &initErr))
	assert.Equal(t, b.ID, initErr.BookingID)
	assert.Equal(t, models.PaymentMethodWise, initErr.Alternative)

	var pe *apperrors.ProviderError
	assert.True(t, errors.As(err, &pe))
	assert.Empty(t, store.refs)
}

func TestInitiate_ProviderFailureKeepsBookingPending(t *testing.T) {
	rails := &fakeRails{card: &fakeCard{err: apperrors.NewTransientError("stripe", "create", errors.New("timeout"))}}
	r, store := newTestRouter(Config{}, rails, external.Rate{})
	b := pendingBooking(models.PaymentMethodStripe, 50)

	_, err := r.Initiate(context.Background(), b)
	require.Error(t, err)

	var initErr *InitiationError
	require.True(t, errors.As(err, &initErr))
	assert.True(t, apperrors.IsRetryable(err))
	assert.Empty(t, store.refs)
	assert.Equal(t, models.BookingStatusPending, b.Status)
	assert.Equal(t, models.PaymentStatusPending, b.PaymentStatus)
	assert.Nil(t, b.PaymentIntentID)
}

func TestInitiate_WiseReturnsBankInstructions(t *testing.T) {
	rails := &fakeRails{card: &fakeCard{}, pix: &fakePix{}}
	cfg := Config{Bank: BankDetails{BankName: "Wise", AccountHolder: "Ink Studio", IBAN: "BE68539007547034", BIC: "TRWIBEB1XXX"}}
	r, store := newTestRouter(cfg, rails, external.Rate{})
	b := pendingBooking(models.PaymentMethodWise, 500)

	resp, err := r.Initiate(context.Background(), b)
	require.NoError(t, err)
	require.NotNil(t, resp.Instructions)

	assert.True(t, strings.HasPrefix(resp.Instructions.Reference, "REF-"))
	assert.Equal(t, "REF-3F2A9C1E", resp.Instructions.Reference)
	assert.Equal(t, "BE68539007547034", resp.Instructions.IBAN)
	assert.Equal(t, 500.0, resp.Instructions.AmountEUR)
	assert.Equal(t, models.BookingStatusPending, b.Status)
	assert.Equal(t, 0, rails.card.calls+rails.pix.calls)

	ref := store.refs[b.ID]
	assert.Equal(t, "REF-3F2A9C1E", ref.ManualReference)
	assert.Equal(t, 1, populatedRefs(ref))
}

func TestInitiate_OfflineMethods(t *testing.T) {
	for _, method := range []string{models.PaymentMethodStudio, models.PaymentMethodCreditCard, models.PaymentMethodPixManual, "unknown"} {
		t.Run(method, func(t *testing.T) {
			rails := &fakeRails{card: &fakeCard{}, pix: &fakePix{}}
			r, store := newTestRouter(Config{Bank: BankDetails{PixKey: "studio@pix"}}, rails, external.Rate{})
			b := pendingBooking(method, 80)

			resp, err := r.Initiate(context.Background(), b)
			require.NoError(t, err)
			require.NotNil(t, resp.Instructions)
			assert.Empty(t, resp.ClientSecret)
			assert.Nil(t, resp.PixData)
			assert.Equal(t, 1, populatedRefs(store.refs[b.ID]))
			assert.Equal(t, 0, rails.card.calls+rails.pix.calls)
		})
	}
}

func TestInitiate_RecordFailure(t *testing.T) {
	rails := &fakeRails{card: &fakeCard{}, pix: &fakePix{}}
	r := NewRouter(Config{}, rails, fixedRate{}, &fakeRefStore{err: errors.New("db down")})

	_, err := r.Initiate(context.Background(), pendingBooking(models.PaymentMethodWise, 10))
	require.Error(t, err)
	var initErr *InitiationError
	assert.False(t, errors.As(err, &initErr))
}

func TestManualReference(t *testing.T) {
	assert.Equal(t, "REF-ABCDEF12", ManualReference("abcdef12-3456-7890-abcd-ef1234567890"))
	assert.Equal(t, "REF-AB", ManualReference("ab"))
}
