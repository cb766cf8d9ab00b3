package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "inkbook/internal/errors"
	"inkbook/internal/external"
	"inkbook/internal/models"
	"inkbook/internal/repository"
	"inkbook/internal/tour"
)

var fixedNow = time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type memBookings struct {
	mu      sync.Mutex
	rows    map[string]*models.Booking
	seq     int
	confirm int
	err     error
}

func newMemBookings(bookings ...models.Booking) *memBookings {
	m := &memBookings{rows: map[string]*models.Booking{}}
	for _, b := range bookings {
		m.put(b)
	}
	return m
}

func (m *memBookings) put(b models.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if b.CreatedAt.IsZero() {
		b.CreatedAt = fixedNow.Add(time.Duration(m.seq) * time.Minute)
	}
	m.rows[b.ID] = &b
}

func (m *memBookings) get(id string) models.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

func (m *memBookings) Create(_ context.Context, b *models.Booking) error {
	if m.err != nil {
		return m.err
	}
	m.put(*b)
	return nil
}

func (m *memBookings) GetByID(_ context.Context, id string) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	b, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (m *memBookings) List(_ context.Context, f repository.BookingFilter) ([]models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Booking{}
	for _, b := range m.rows {
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if f.ClientEmail != "" && !strings.EqualFold(b.ClientEmail, f.ClientEmail) {
			continue
		}
		if f.CityName != "" && !tour.SameCity(b.CityName, f.CityName) {
			continue
		}
		if f.ArtistID != "" && b.ArtistID != f.ArtistID {
			continue
		}
		if (f.From != nil && b.BookingDate.Before(*f.From)) || (f.To != nil && b.BookingDate.After(*f.To)) {
			continue
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BookingDate.Equal(out[j].BookingDate) {
			return out[i].BookingDate.Before(out[j].BookingDate)
		}
		return out[i].BookingTime < out[j].BookingTime
	})
	return out, nil
}

func (m *memBookings) UpdateStatus(_ context.Context, id, status, paymentStatus string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	b.Status = status
	if paymentStatus != "" {
		b.PaymentStatus = paymentStatus
	}
	return nil
}

func (m *memBookings) ConfirmPayment(_ context.Context, id, paymentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok {
		return false, apperrors.ErrNotFound
	}
	if b.Status != models.BookingStatusPending || b.PaymentStatus == models.PaymentStatusPaid {
		return false, nil
	}
	m.confirm++
	b.Status = models.BookingStatusConfirmed
	b.PaymentStatus = models.PaymentStatusPaid
	if paymentID != "" {
		b.PaymentID = &paymentID
	}
	return true, nil
}

func (m *memBookings) MarkPaymentFailed(_ context.Context, id, paymentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok {
		return false, apperrors.ErrNotFound
	}
	if b.Status != models.BookingStatusPending || b.PaymentStatus != models.PaymentStatusPending {
		return false, nil
	}
	b.PaymentStatus = models.PaymentStatusFailed
	b.PaymentID = &paymentID
	return true, nil
}

func (m *memBookings) TakenSlots(_ context.Context, city string, date models.Date) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []string{}
	for _, b := range m.rows {
		if b.IsActive() && tour.SameCity(b.CityName, city) && b.BookingDate.Equal(date) {
			out = append(out, b.BookingTime)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memBookings) CountActiveByDay(_ context.Context, from, to models.Date) ([]repository.DayCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]*repository.DayCount{}
	for _, b := range m.rows {
		if !b.IsActive() || b.BookingDate.Before(from) || b.BookingDate.After(to) {
			continue
		}
		key := tour.CountKey(b.CityName, b.BookingDate)
		if counts[key] == nil {
			counts[key] = &repository.DayCount{CityName: strings.ToLower(b.CityName), Date: b.BookingDate}
		}
		counts[key].Count++
	}
	out := []repository.DayCount{}
	for _, dc := range counts {
		out = append(out, *dc)
	}
	return out, nil
}

func (m *memBookings) CountActiveInRange(_ context.Context, city string, from, to models.Date) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.rows {
		if b.IsActive() && tour.SameCity(b.CityName, city) && !b.BookingDate.Before(from) && !b.BookingDate.After(to) {
			n++
		}
	}
	return n, nil
}

func (m *memBookings) ClientEmails(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	out := []string{}
	for _, b := range m.rows {
		e := strings.ToLower(b.ClientEmail)
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	sort.Strings(out)
	return out, nil
}

type memTours struct {
	rows []models.TourSegment
}

func (m *memTours) List(context.Context) ([]models.TourSegment, error) {
	return append([]models.TourSegment(nil), m.rows...), nil
}

func (m *memTours) GetByID(_ context.Context, id string) (*models.TourSegment, error) {
	for _, s := range m.rows {
		if s.ID == id {
			cp := s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memTours) Create(_ context.Context, s *models.TourSegment) error {
	m.rows = append(m.rows, *s)
	return nil
}

func (m *memTours) Update(_ context.Context, s *models.TourSegment) error {
	for i := range m.rows {
		if m.rows[i].ID == s.ID {
			m.rows[i] = *s
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (m *memTours) Delete(_ context.Context, id string) error {
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return apperrors.ErrNotFound
}

type memClients struct {
	rows map[string]*models.Client
}

func newMemClients() *memClients {
	return &memClients{rows: map[string]*models.Client{}}
}

func (m *memClients) UpsertRollup(_ context.Context, c *models.Client) error {
	if old, ok := m.rows[c.Email]; ok {
		c.Tags = old.Tags
		c.Notes = old.Notes
		if old.WhatsappStatus != models.WhatsappUntouched {
			c.WhatsappStatus = old.WhatsappStatus
		}
	}
	cp := *c
	m.rows[c.Email] = &cp
	return nil
}

func (m *memClients) GetByEmail(_ context.Context, email string) (*models.Client, error) {
	c, ok := m.rows[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memClients) List(_ context.Context, q string, _ int) ([]models.Client, error) {
	out := []models.Client{}
	for _, c := range m.rows {
		if q == "" || strings.Contains(c.Email, strings.ToLower(q)) || strings.Contains(strings.ToLower(c.Name), strings.ToLower(q)) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (m *memClients) UpdateStaffFields(_ context.Context, email string, p models.UpdateClientRequest) (*models.Client, error) {
	c, ok := m.rows[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	if p.WhatsappStatus != nil {
		c.WhatsappStatus = *p.WhatsappStatus
	}
	if p.Tags != nil {
		c.Tags = *p.Tags
	}
	if p.Notes != nil {
		c.Notes = *p.Notes
	}
	cp := *c
	return &cp, nil
}

type fakeSearcher struct {
	indexed []string
	results []models.Client
	err     error
}

func (f *fakeSearcher) IndexClient(_ context.Context, c *models.Client) error {
	f.indexed = append(f.indexed, c.Email)
	return nil
}

func (f *fakeSearcher) SearchClients(context.Context, string, int) ([]models.Client, error) {
	return f.results, f.err
}

type memConsents struct {
	rows map[string]*models.ConsentSignature
}

func (m *memConsents) Create(_ context.Context, c *models.ConsentSignature) error {
	if _, ok := m.rows[c.BookingID]; ok {
		return apperrors.ErrConflict
	}
	cp := *c
	m.rows[c.BookingID] = &cp
	return nil
}

func (m *memConsents) GetByBookingID(_ context.Context, id string) (*models.ConsentSignature, error) {
	c, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	return c, nil
}

type memIntegrations struct {
	rows map[string]models.IntegrationConfig
}

func (m *memIntegrations) List(context.Context) ([]models.IntegrationConfig, error) {
	out := []models.IntegrationConfig{}
	for _, ic := range m.rows {
		out = append(out, ic)
	}
	return out, nil
}

func (m *memIntegrations) Get(_ context.Context, id string) (*models.IntegrationConfig, error) {
	ic, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	return &ic, nil
}

func (m *memIntegrations) Upsert(_ context.Context, ic *models.IntegrationConfig) error {
	m.rows[ic.ServiceID] = *ic
	return nil
}

type dispatched struct {
	Event    string
	Booking  models.Booking
	Channels []string
}

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []dispatched
}

func (d *recordingDispatcher) Dispatch(_ context.Context, event string, b models.Booking, channels []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatched{Event: event, Booking: b, Channels: channels})
}

func (d *recordingDispatcher) events(event string) []dispatched {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []dispatched
	for _, c := range d.calls {
		if c.Event == event {
			out = append(out, c)
		}
	}
	return out
}

type fakeInitiator struct {
	calls int
	err   error
}

func (f *fakeInitiator) Initiate(_ context.Context, b *models.Booking) (*models.CreateBookingResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	ref := "REF-TEST"
	b.ManualReference = &ref
	return &models.CreateBookingResponse{
		BookingID:    b.ID,
		Success:      true,
		Method:       b.PaymentMethod,
		Instructions: &models.ManualInstructions{Reference: ref},
	}, nil
}

type fakePix struct {
	payments map[string]*external.PixPayment
	err      error
	lookups  int
}

func (f *fakePix) CreatePixPayment(context.Context, external.PixPaymentInput) (*external.PixPayment, error) {
	return nil, errors.New("not used")
}

func (f *fakePix) GetPayment(_ context.Context, id string) (*external.PixPayment, error) {
	f.lookups++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.payments[id]
	if !ok {
		return nil, apperrors.NewProviderError("mercadopago", "get payment", errors.New("not found"))
	}
	return p, nil
}

type fakeCard struct {
	event *external.StripeEvent
	err   error
}

func (f *fakeCard) CreateDepositIntent(context.Context, external.DepositIntentInput) (*external.DepositIntent, error) {
	return nil, errors.New("not used")
}

func (f *fakeCard) ParseWebhook([]byte, string) (*external.StripeEvent, error) {
	return f.event, f.err
}

type fakeRails struct {
	pix     *fakePix
	card    *fakeCard
	pixErr  error
	cardErr error
}

func (f *fakeRails) Pix(context.Context) (external.PixProvider, error) {
	if f.pixErr != nil {
		return nil, f.pixErr
	}
	return f.pix, nil
}

func (f *fakeRails) Card(context.Context) (external.CardProvider, error) {
	if f.cardErr != nil {
		return nil, f.cardErr
	}
	return f.card, nil
}

func parisSegment() models.TourSegment {
	return models.TourSegment{
		ID:          "0b6e5c1a-0000-4000-8000-000000000001",
		CountryName: "France",
		CountryFlag: "🇫🇷",
		CityName:    "Paris",
		StartDate:   models.NewDate(2025, time.March, 10),
		EndDate:     models.NewDate(2025, time.March, 12),
		TimeSlots:   []string{"10:00", "14:00"},
	}
}

func pendingBooking(id, method string) models.Booking {
	return models.Booking{
		ID:            id,
		ArtistID:      "artist-1",
		ClientName:    "Ana Souza",
		ClientEmail:   "ana@example.com",
		ClientPhone:   "+55 11 91234-5678",
		BookingDate:   models.NewDate(2025, time.March, 11),
		BookingTime:   "10:00",
		CityName:      "Paris",
		TattooType:    "fine_line",
		DepositAmount: 100,
		PaymentMethod: method,
		Status:        models.BookingStatusPending,
		PaymentStatus: models.PaymentStatusPending,
	}
}
