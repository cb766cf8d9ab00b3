package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "inkbook/internal/errors"
	"inkbook/internal/external"
	"inkbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingChannel struct {
	name  string
	err   error
	panic bool
	delay time.Duration

	mu   sync.Mutex
	jobs []models.NotificationJob
	ctxs []context.Context
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Send(ctx context.Context, job models.NotificationJob) error {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	c.jobs = append(c.jobs, job)
	c.ctxs = append(c.ctxs, ctx)
	c.mu.Unlock()
	if c.panic {
		panic("boom")
	}
	return c.err
}

func (c *recordingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.jobs)
}

func testBooking() models.Booking {
	return models.Booking{
		ID:            "b-1",
		ClientName:    "Ana",
		ClientEmail:   "ana@example.com",
		ClientPhone:   "+55 11 99999-8888",
		BookingDate:   models.NewDate(2025, time.March, 10),
		BookingTime:   "14:00",
		DurationHours: 3,
		CityName:      "Paris",
		TattooType:    "fine_line",
		DepositAmount: 50,
	}
}

func TestMemoryDispatcher_FailuresAreIsolated(t *testing.T) {
	email := &recordingChannel{name: ChannelEmail, err: errors.New("smtp down")}
	whatsapp := &recordingChannel{name: ChannelWhatsApp, panic: true}
	calendar := &recordingChannel{name: ChannelCalendar}
	crm := &recordingChannel{name: ChannelCRM}

	d := NewMemoryDispatcher(NewRegistry(email, whatsapp, calendar, crm), time.Second)
	d.Dispatch(context.Background(), models.EventPaymentConfirmed, testBooking(), PaymentConfirmedChannels)
	d.Wait()

	assert.Equal(t, 1, email.count())
	assert.Equal(t, 1, whatsapp.count())
	assert.Equal(t, 1, calendar.count())
	assert.Equal(t, 1, crm.count())
}

func TestMemoryDispatcher_DoesNotBlockCaller(t *testing.T) {
	slow := &recordingChannel{name: ChannelEmail, delay: 200 * time.Millisecond}
	d := NewMemoryDispatcher(NewRegistry(slow), time.Second)

	start := time.Now()
	d.Dispatch(context.Background(), models.EventBookingCreated, testBooking(), []string{ChannelEmail})
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	d.Wait()
	assert.Equal(t, 1, slow.count())
}

func TestMemoryDispatcher_OutlivesRequestContext(t *testing.T) {
	ch := &recordingChannel{name: ChannelCRM, delay: 50 * time.Millisecond}
	d := NewMemoryDispatcher(NewRegistry(ch), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	d.Dispatch(ctx, models.EventBookingCreated, testBooking(), []string{ChannelCRM})
	cancel()
	d.Wait()

	require.Equal(t, 1, ch.count())
	assert.NoError(t, ch.ctxs[0].Err())
	_, hasDeadline := ch.ctxs[0].Deadline()
	assert.True(t, hasDeadline)
}

func TestRegistry_Run(t *testing.T) {
	unconfigured := &recordingChannel{name: ChannelEmail, err: apperrors.ErrNotConfigured}
	failing := &recordingChannel{name: ChannelCRM, err: errors.New("boom")}
	r := NewRegistry(unconfigured, failing)

	jobs := NewJobs(models.EventBookingCreated, testBooking(), []string{ChannelEmail, ChannelCRM, "fax"})
	require.Len(t, jobs, 3)

	assert.NoError(t, r.Run(context.Background(), jobs[0]))
	assert.Error(t, r.Run(context.Background(), jobs[1]))
	assert.NoError(t, r.Run(context.Background(), jobs[2]))
}

func TestRegistry_HandleMessage(t *testing.T) {
	transient := &recordingChannel{name: ChannelEmail, err: apperrors.NewTransientError("resend", "send", errors.New("timeout"))}
	rejected := &recordingChannel{name: ChannelWhatsApp, err: apperrors.NewProviderError("evolution", "send", errors.New("bad number"))}
	r := NewRegistry(transient, rejected)

	job := NewJobs(models.EventPaymentConfirmed, testBooking(), []string{ChannelEmail})[0]
	data, err := json.Marshal(job)
	require.NoError(t, err)
	assert.Error(t, r.HandleMessage(context.Background(), data))

	job.Channel = ChannelWhatsApp
	data, err = json.Marshal(job)
	require.NoError(t, err)
	assert.NoError(t, r.HandleMessage(context.Background(), data))

	assert.NoError(t, r.HandleMessage(context.Background(), []byte("{not json")))
	assert.Equal(t, "b-1", transient.jobs[0].Booking.ID)
}

type fakePublisher struct {
	mu       sync.Mutex
	err      error
	subjects []string
	jobs     []models.NotificationJob
}

func (p *fakePublisher) Publish(_ context.Context, subject string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subject)
	p.jobs = append(p.jobs, data.(models.NotificationJob))
	return nil
}

func TestBrokerDispatcher_Publishes(t *testing.T) {
	local := &recordingChannel{name: ChannelEmail}
	pub := &fakePublisher{}
	d := NewBrokerDispatcher(pub, models.SubjectNotifyJobs, NewMemoryDispatcher(NewRegistry(local), time.Second))

	d.Dispatch(context.Background(), models.EventBookingCreated, testBooking(), BookingCreatedChannels)
	d.Wait()

	require.Len(t, pub.jobs, 2)
	assert.Equal(t, []string{models.SubjectNotifyJobs, models.SubjectNotifyJobs}, pub.subjects)
	assert.Equal(t, ChannelCRM, pub.jobs[0].Channel)
	assert.Equal(t, ChannelEmail, pub.jobs[1].Channel)
	assert.NotEqual(t, pub.jobs[0].ID, pub.jobs[1].ID)
	assert.Equal(t, 0, local.count())
}

func TestBrokerDispatcher_FallsBackToMemory(t *testing.T) {
	local := &recordingChannel{name: ChannelEmail}
	pub := &fakePublisher{err: errors.New("broker down")}
	d := NewBrokerDispatcher(pub, models.SubjectNotifyJobs, NewMemoryDispatcher(NewRegistry(local), time.Second))

	d.Dispatch(context.Background(), models.EventBookingCreated, testBooking(), []string{ChannelEmail})
	d.Wait()

	assert.Equal(t, 1, local.count())
}

type fakeEmailSender struct {
	sent []external.Email
}

func (f *fakeEmailSender) Send(_ context.Context, msg external.Email) (string, error) {
	f.sent = append(f.sent, msg)
	return "msg_1", nil
}

type fakeResolver struct {
	email    *fakeEmailSender
	whatsapp *fakeWhatsApp
	calendar *fakeCalendar
	err      error
}

func (f *fakeResolver) Email(context.Context) (external.EmailSender, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.email, nil
}

func (f *fakeResolver) WhatsApp(context.Context) (external.WhatsAppSender, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.whatsapp, nil
}

func (f *fakeResolver) Calendar(context.Context) (external.CalendarWriter, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.calendar, nil
}

type fakeWhatsApp struct {
	phones []string
	texts  []string
}

func (f *fakeWhatsApp) SendText(_ context.Context, phone, text string) error {
	f.phones = append(f.phones, phone)
	f.texts = append(f.texts, text)
	return nil
}

type fakeCalendar struct {
	events []external.CalendarEvent
}

func (f *fakeCalendar) InsertEvent(_ context.Context, ev external.CalendarEvent) (string, error) {
	f.events = append(f.events, ev)
	return "evt_1", nil
}

func TestEmailChannel_ComposesPerEvent(t *testing.T) {
	sender := &fakeEmailSender{}
	ch := NewEmailChannel(&fakeResolver{email: sender}, "https://studio.example.com/")

	created := NewJobs(models.EventBookingCreated, testBooking(), []string{ChannelEmail})[0]
	confirmed := NewJobs(models.EventPaymentConfirmed, testBooking(), []string{ChannelEmail})[0]
	require.NoError(t, ch.Send(context.Background(), created))
	require.NoError(t, ch.Send(context.Background(), confirmed))

	require.Len(t, sender.sent, 2)
	assert.Contains(t, sender.sent[0].Subject, "received")
	assert.Contains(t, sender.sent[1].Subject, "confirmed")
	assert.Contains(t, sender.sent[1].Text, "https://studio.example.com/consent/b-1")
	assert.Equal(t, "ana@example.com", sender.sent[0].To)
}

func TestEmailChannel_NotConfigured(t *testing.T) {
	ch := NewEmailChannel(&fakeResolver{err: apperrors.ErrNotConfigured}, "")
	job := NewJobs(models.EventBookingCreated, testBooking(), []string{ChannelEmail})[0]
	assert.ErrorIs(t, ch.Send(context.Background(), job), apperrors.ErrNotConfigured)
}

func TestWhatsAppChannel_OnlyOnConfirmation(t *testing.T) {
	wa := &fakeWhatsApp{}
	ch := NewWhatsAppChannel(&fakeResolver{whatsapp: wa})

	created := NewJobs(models.EventBookingCreated, testBooking(), []string{ChannelWhatsApp})[0]
	require.NoError(t, ch.Send(context.Background(), created))
	assert.Empty(t, wa.texts)

	confirmed := NewJobs(models.EventPaymentConfirmed, testBooking(), []string{ChannelWhatsApp})[0]
	require.NoError(t, ch.Send(context.Background(), confirmed))
	require.Len(t, wa.texts, 1)
	assert.Contains(t, wa.texts[0], "confirmed")

	noPhone := testBooking()
	noPhone.ClientPhone = ""
	job := NewJobs(models.EventPaymentConfirmed, noPhone, []string{ChannelWhatsApp})[0]
	require.NoError(t, ch.Send(context.Background(), job))
	assert.Len(t, wa.texts, 1)
}

func TestCalendarChannel_InsertsSession(t *testing.T) {
	cal := &fakeCalendar{}
	ch := NewCalendarChannel(&fakeResolver{calendar: cal})

	job := NewJobs(models.EventPaymentConfirmed, testBooking(), []string{ChannelCalendar})[0]
	require.NoError(t, ch.Send(context.Background(), job))
	require.Len(t, cal.events, 1)

	ev := cal.events[0]
	assert.Equal(t, time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC), ev.Start)
	assert.Equal(t, time.Date(2025, 3, 10, 17, 0, 0, 0, time.UTC), ev.End)
	assert.Equal(t, "b-1", ev.ExternalID)
}

func TestSessionEvent_DefaultDuration(t *testing.T) {
	b := testBooking()
	b.DurationHours = 0
	ev, err := SessionEvent(b)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, ev.End.Sub(ev.Start))

	b.BookingTime = "2pm"
	_, err = SessionEvent(b)
	assert.Error(t, err)
}

type fakeRebuilder struct {
	emails []string
}

func (f *fakeRebuilder) Rebuild(_ context.Context, email string) (*models.Client, error) {
	f.emails = append(f.emails, email)
	return &models.Client{Email: email}, nil
}

func TestCRMChannel_RebuildsClient(t *testing.T) {
	rb := &fakeRebuilder{}
	ch := NewCRMChannel(rb)
	job := NewJobs(models.EventBookingCreated, testBooking(), []string{ChannelCRM})[0]
	require.NoError(t, ch.Send(context.Background(), job))
	assert.Equal(t, []string{"ana@example.com"}, rb.emails)
}
