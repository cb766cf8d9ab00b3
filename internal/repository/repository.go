package repository

import (
	"inkbook/internal/database"
)

type Repositories struct {
	Bookings     *BookingRepository
	Tours        *TourRepository
	Clients      *ClientRepository
	Consent      *ConsentRepository
	Integrations *IntegrationRepository
}

func NewRepositories(db *database.DB) *Repositories {
	return &Repositories{
		Bookings:     NewBookingRepository(db),
		Tours:        NewTourRepository(db),
		Clients:      NewClientRepository(db),
		Consent:      NewConsentRepository(db),
		Integrations: NewIntegrationRepository(db),
	}
}
