package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"inkbook/internal/external"
	"inkbook/internal/models"
)

type EmailResolver interface {
	Email(ctx context.Context) (external.EmailSender, error)
}

type WhatsAppResolver interface {
	WhatsApp(ctx context.Context) (external.WhatsAppSender, error)
}

type CalendarResolver interface {
	Calendar(ctx context.Context) (external.CalendarWriter, error)
}

// ClientRebuilder recomputes the CRM rollup of one client.
type ClientRebuilder interface {
	Rebuild(ctx context.Context, email string) (*models.Client, error)
}

// EmailChannel sends the booking receipt and the confirmation email.
type EmailChannel struct {
	resolver      EmailResolver
	publicBaseURL string
}

func NewEmailChannel(resolver EmailResolver, publicBaseURL string) *EmailChannel {
	return &EmailChannel{resolver: resolver, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

func (c *EmailChannel) Name() string { return ChannelEmail }

func (c *EmailChannel) Send(ctx context.Context, job models.NotificationJob) error {
	b := job.Booking
	if b.ClientEmail == "" {
		return nil
	}

	sender, err := c.resolver.Email(ctx)
	if err != nil {
		return err
	}

	msg := c.compose(job)
	if _, err := sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send %s email: %w", job.Event, err)
	}
	return nil
}

func (c *EmailChannel) compose(job models.NotificationJob) external.Email {
	b := job.Booking
	consentURL := c.publicBaseURL + "/consent/" + b.ID

	var subject, body string
	switch job.Event {
	case models.EventPaymentConfirmed:
		subject = fmt.Sprintf("Your tattoo session in %s is confirmed", b.CityName)
		body = fmt.Sprintf("Hi %s,\n\nYour deposit was received and your session on %s at %s in %s is confirmed.\n\n"+
			"Please sign the consent form before your appointment: %s\n",
			b.ClientName, b.BookingDate, b.BookingTime, b.CityName, consentURL)
	default:
		subject = fmt.Sprintf("We received your booking request for %s", b.CityName)
		body = fmt.Sprintf("Hi %s,\n\nThanks for your request for %s at %s in %s. "+
			"We will confirm it as soon as the deposit of %.2f EUR is settled.\n\n"+
			"You can already sign the consent form: %s\n",
			b.ClientName, b.BookingDate, b.BookingTime, b.CityName, b.DepositAmount, consentURL)
	}

	return external.Email{
		To:      b.ClientEmail,
		Subject: subject,
		Text:    body,
		HTML:    "<p>" + strings.ReplaceAll(html.EscapeString(body), "\n", "<br>") + "</p>",
	}
}

// WhatsAppChannel messages the client once the deposit is paid.
type WhatsAppChannel struct {
	resolver WhatsAppResolver
}

func NewWhatsAppChannel(resolver WhatsAppResolver) *WhatsAppChannel {
	return &WhatsAppChannel{resolver: resolver}
}

func (c *WhatsAppChannel) Name() string { return ChannelWhatsApp }

func (c *WhatsAppChannel) Send(ctx context.Context, job models.NotificationJob) error {
	b := job.Booking
	if job.Event != models.EventPaymentConfirmed || external.NormalizePhone(b.ClientPhone) == "" {
		return nil
	}

	sender, err := c.resolver.WhatsApp(ctx)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("Hi %s! Your tattoo session on %s at %s in %s is confirmed. See you soon!",
		b.ClientName, b.BookingDate, b.BookingTime, b.CityName)
	if err := sender.SendText(ctx, b.ClientPhone, text); err != nil {
		return fmt.Errorf("failed to send whatsapp message: %w", err)
	}
	return nil
}

// CalendarChannel blocks the session on the artist's calendar.
type CalendarChannel struct {
	resolver CalendarResolver
}

func NewCalendarChannel(resolver CalendarResolver) *CalendarChannel {
	return &CalendarChannel{resolver: resolver}
}

func (c *CalendarChannel) Name() string { return ChannelCalendar }

func (c *CalendarChannel) Send(ctx context.Context, job models.NotificationJob) error {
	if job.Event != models.EventPaymentConfirmed {
		return nil
	}

	ev, err := SessionEvent(job.Booking)
	if err != nil {
		return err
	}

	writer, err := c.resolver.Calendar(ctx)
	if err != nil {
		return err
	}

	if _, err := writer.InsertEvent(ctx, ev); err != nil {
		return fmt.Errorf("failed to create calendar event: %w", err)
	}
	return nil
}

// SessionEvent places the session at the booked slot. Sessions without a
// duration block two hours.
func SessionEvent(b models.Booking) (external.CalendarEvent, error) {
	slot, err := time.Parse("15:04", b.BookingTime)
	if err != nil {
		return external.CalendarEvent{}, fmt.Errorf("invalid booking time %q: %w", b.BookingTime, err)
	}

	hours := b.DurationHours
	if hours <= 0 {
		hours = 2
	}

	start := b.BookingDate.Time.Add(time.Duration(slot.Hour())*time.Hour + time.Duration(slot.Minute())*time.Minute)
	return external.CalendarEvent{
		Summary:     fmt.Sprintf("%s: %s", b.ClientName, b.TattooType),
		Description: fmt.Sprintf("%s\nBody: %s\nEmail: %s\nPhone: %s", b.Description, b.BodyLocation, b.ClientEmail, b.ClientPhone),
		Location:    b.CityName,
		Start:       start,
		End:         start.Add(time.Duration(hours) * time.Hour),
		ExternalID:  b.ID,
	}, nil
}

// CRMChannel refreshes the client rollup after a booking event.
type CRMChannel struct {
	clients ClientRebuilder
}

func NewCRMChannel(clients ClientRebuilder) *CRMChannel {
	return &CRMChannel{clients: clients}
}

func (c *CRMChannel) Name() string { return ChannelCRM }

func (c *CRMChannel) Send(ctx context.Context, job models.NotificationJob) error {
	if job.Booking.ClientEmail == "" {
		return nil
	}
	if _, err := c.clients.Rebuild(ctx, job.Booking.ClientEmail); err != nil {
		return fmt.Errorf("failed to rebuild client: %w", err)
	}
	return nil
}
