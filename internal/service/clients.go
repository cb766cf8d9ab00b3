package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	apperrors "inkbook/internal/errors"
	"inkbook/internal/logger"
	"inkbook/internal/models"
	"inkbook/internal/repository"
)

var whatsappStatuses = []string{
	models.WhatsappUntouched,
	models.WhatsappContacted,
	models.WhatsappCustomer,
	models.WhatsappChurned,
}

// ClientService maintains the CRM rollup of clients.
type ClientService struct {
	clients  ClientStore
	bookings BookingStore
	searcher ClientSearcher
}

// NewClientService builds the service. searcher may be nil when no search
// cluster is configured.
func NewClientService(clients ClientStore, bookings BookingStore, searcher ClientSearcher) *ClientService {
	return &ClientService{clients: clients, bookings: bookings, searcher: searcher}
}

// RollupClient derives the booking-owned fields of a client from its
// history. Contact details come from the latest booking, spending counts
// paid deposits and cancelled bookings are left out of the totals.
func RollupClient(email string, bookings []models.Booking) *models.Client {
	client := &models.Client{
		Email:          strings.ToLower(strings.TrimSpace(email)),
		WhatsappStatus: models.WhatsappUntouched,
		Tags:           []string{},
	}

	var latest *models.Booking
	for i := range bookings {
		b := &bookings[i]
		if latest == nil || b.CreatedAt.After(latest.CreatedAt) {
			latest = b
		}

		if b.PaymentStatus == models.PaymentStatusPaid {
			client.TotalSpent += b.DepositAmount
			client.WhatsappStatus = models.WhatsappCustomer
		}
		if b.Status == models.BookingStatusCancelled {
			continue
		}
		client.TotalBookings++

		if b.Status == models.BookingStatusConfirmed || b.Status == models.BookingStatusCompleted {
			if client.LastVisit == nil || b.BookingDate.After(*client.LastVisit) {
				d := b.BookingDate
				client.LastVisit = &d
			}
		}
	}

	if latest != nil {
		client.Name = latest.ClientName
		client.Phone = latest.ClientPhone
	}
	client.TotalSpent = math.Round(client.TotalSpent*100) / 100
	return client
}

// Rebuild recomputes one client from its bookings. It returns nil when the
// e-mail has no bookings.
func (s *ClientService) Rebuild(ctx context.Context, email string) (*models.Client, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, nil
	}

	bookings, err := s.bookings.List(ctx, repository.BookingFilter{ClientEmail: email})
	if err != nil {
		return nil, fmt.Errorf("failed to list client bookings: %w", err)
	}
	if len(bookings) == 0 {
		return nil, nil
	}

	client := RollupClient(email, bookings)
	if err := s.clients.UpsertRollup(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to upsert client: %w", err)
	}
	s.index(ctx, client)
	return client, nil
}

func (s *ClientService) index(ctx context.Context, client *models.Client) {
	if s.searcher == nil {
		return
	}
	if err := s.searcher.IndexClient(ctx, client); err != nil {
		// Log error but don't fail the operation
		logger.WithContext(ctx).Error("Failed to index client", "email", client.Email, "error", err)
	}
}

// Backfill rebuilds every client that ever booked. Failures of single
// clients do not stop the run.
func (s *ClientService) Backfill(ctx context.Context) (int, error) {
	emails, err := s.bookings.ClientEmails(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list client emails: %w", err)
	}

	var errs []error
	rebuilt := 0
	for _, email := range emails {
		if err := ctx.Err(); err != nil {
			return rebuilt, err
		}
		if _, err := s.Rebuild(ctx, email); err != nil {
			logger.WithContext(ctx).Error("Failed to rebuild client", "email", email, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", email, err))
			continue
		}
		rebuilt++
	}

	logger.WithContext(ctx).Info("Client backfill finished", "rebuilt", rebuilt, "failed", len(errs))
	return rebuilt, errors.Join(errs...)
}

// Search finds clients through the search cluster, falling back to SQL
// when it is unavailable.
func (s *ClientService) Search(ctx context.Context, q string, limit int) ([]models.Client, error) {
	q = strings.TrimSpace(q)
	if s.searcher != nil && q != "" {
		clients, err := s.searcher.SearchClients(ctx, q, limit)
		if err == nil {
			return clients, nil
		}
		logger.WithContext(ctx).Warn("Client search failed, falling back to database", "error", err)
	}

	clients, err := s.clients.List(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	return clients, nil
}

func (s *ClientService) Get(ctx context.Context, email string) (*models.Client, error) {
	client, err := s.clients.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	if client == nil {
		return nil, apperrors.ErrNotFound
	}
	return client, nil
}

// Update applies a staff patch to tags, notes and the WhatsApp stage.
func (s *ClientService) Update(ctx context.Context, email string, patch *models.UpdateClientRequest) (*models.Client, error) {
	if patch.WhatsappStatus != nil && !slices.Contains(whatsappStatuses, *patch.WhatsappStatus) {
		verr := apperrors.NewValidationError()
		verr.Add("whatsappStatus", "must be one of "+strings.Join(whatsappStatuses, ", "))
		return nil, verr
	}
	if patch.Tags != nil {
		tags := make([]string, 0, len(*patch.Tags))
		for _, t := range *patch.Tags {
			if t = strings.TrimSpace(t); t != "" && !slices.Contains(tags, t) {
				tags = append(tags, t)
			}
		}
		patch.Tags = &tags
	}

	client, err := s.clients.UpdateStaffFields(ctx, email, *patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update client: %w", err)
	}
	if client == nil {
		return nil, apperrors.ErrNotFound
	}
	s.index(ctx, client)
	return client, nil
}
