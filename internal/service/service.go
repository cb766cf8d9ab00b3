package service

import (
	"context"
	"time"

	"inkbook/internal/external"
	"inkbook/internal/models"
	"inkbook/internal/notify"
	"inkbook/internal/repository"
)

// BookingStore is the persistence the booking flows need.
type BookingStore interface {
	Create(ctx context.Context, booking *models.Booking) error
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	List(ctx context.Context, filter repository.BookingFilter) ([]models.Booking, error)
	UpdateStatus(ctx context.Context, id, status, paymentStatus string) error
	ConfirmPayment(ctx context.Context, id, paymentID string) (bool, error)
	MarkPaymentFailed(ctx context.Context, id, paymentID string) (bool, error)
	TakenSlots(ctx context.Context, city string, date models.Date) ([]string, error)
	CountActiveByDay(ctx context.Context, from, to models.Date) ([]repository.DayCount, error)
	CountActiveInRange(ctx context.Context, city string, from, to models.Date) (int, error)
	ClientEmails(ctx context.Context) ([]string, error)
}

type TourStore interface {
	List(ctx context.Context) ([]models.TourSegment, error)
	GetByID(ctx context.Context, id string) (*models.TourSegment, error)
	Create(ctx context.Context, s *models.TourSegment) error
	Update(ctx context.Context, s *models.TourSegment) error
	Delete(ctx context.Context, id string) error
}

type ClientStore interface {
	UpsertRollup(ctx context.Context, c *models.Client) error
	GetByEmail(ctx context.Context, email string) (*models.Client, error)
	List(ctx context.Context, q string, limit int) ([]models.Client, error)
	UpdateStaffFields(ctx context.Context, email string, patch models.UpdateClientRequest) (*models.Client, error)
}

type ConsentStore interface {
	Create(ctx context.Context, c *models.ConsentSignature) error
	GetByBookingID(ctx context.Context, bookingID string) (*models.ConsentSignature, error)
}

type IntegrationStore interface {
	List(ctx context.Context) ([]models.IntegrationConfig, error)
	Get(ctx context.Context, serviceID string) (*models.IntegrationConfig, error)
	Upsert(ctx context.Context, ic *models.IntegrationConfig) error
}

// ClientSearcher is the optional full-text client directory.
type ClientSearcher interface {
	IndexClient(ctx context.Context, client *models.Client) error
	SearchClients(ctx context.Context, query string, limit int) ([]models.Client, error)
}

// PaymentInitiator starts the payment rail of a freshly stored booking.
type PaymentInitiator interface {
	Initiate(ctx context.Context, booking *models.Booking) (*models.CreateBookingResponse, error)
}

// WebhookRails hands out the provider clients webhooks are verified against.
type WebhookRails interface {
	Card(ctx context.Context) (external.CardProvider, error)
	Pix(ctx context.Context) (external.PixProvider, error)
}

type Services struct {
	Bookings     *BookingService
	Tours        *TourService
	Gaps         *GapService
	Webhooks     *Reconciler
	Consent      *ConsentService
	Clients      *ClientService
	Integrations *IntegrationService
	Export       *ExportService
}

// NewServices wires the services over the repositories. The client service
// is built by the caller because the CRM notifier depends on it.
func NewServices(repos *repository.Repositories, clients *ClientService, payments PaymentInitiator, rails WebhookRails, dispatcher notify.Dispatcher) *Services {
	return &Services{
		Bookings:     NewBookingService(repos.Bookings, repos.Tours, payments, dispatcher),
		Tours:        NewTourService(repos.Tours, repos.Bookings),
		Gaps:         NewGapService(repos.Tours, repos.Bookings),
		Webhooks:     NewReconciler(repos.Bookings, rails, dispatcher),
		Consent:      NewConsentService(repos.Consent, repos.Bookings),
		Clients:      clients,
		Integrations: NewIntegrationService(repos.Integrations),
		Export:       NewExportService(repos.Bookings),
	}
}

func today(now func() time.Time) models.Date {
	return models.DateOf(now().UTC())
}
