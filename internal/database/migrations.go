package database

import (
	"fmt"
	"log/slog"
)

func (db *DB) RunMigrations() error {
	slog.Info("Running database migrations...")

	migrations := []string{
		createTourSegmentsTable,
		createBookingsTable,
		createBookingsDateIndex,
		createBookingsEmailIndex,
		createBookingsSlotIndex,
		createConsentFormsTable,
		createClientsTable,
		createIntegrationsTable,
	}

	for i, migration := range migrations {
		slog.Info("Running migration", "step", i+1)
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	slog.Info("All migrations completed successfully")
	return nil
}

const createTourSegmentsTable = `
CREATE TABLE IF NOT EXISTS tour_segments (
    id UUID PRIMARY KEY,
    country_name VARCHAR(100) NOT NULL,
    country_flag VARCHAR(16) NOT NULL DEFAULT '',
    city_name VARCHAR(100) NOT NULL,
    start_date DATE NOT NULL,
    end_date DATE NOT NULL,
    time_slots TEXT[] NOT NULL DEFAULT '{}',
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP NOT NULL DEFAULT NOW(),

    CHECK (start_date <= end_date)
);`

const createBookingsTable = `
CREATE TABLE IF NOT EXISTS bookings (
    id UUID PRIMARY KEY,
    artist_id VARCHAR(100) NOT NULL,
    client_name VARCHAR(200) NOT NULL,
    client_email VARCHAR(255) NOT NULL,
    client_phone VARCHAR(50) NOT NULL,
    client_language VARCHAR(10),
    booking_date DATE NOT NULL,
    booking_time VARCHAR(5) NOT NULL,
    duration_hours INTEGER NOT NULL DEFAULT 1,
    city_name VARCHAR(100) NOT NULL,
    tattoo_type VARCHAR(50) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    body_location VARCHAR(200) NOT NULL DEFAULT '',
    reference_images TEXT[] NOT NULL DEFAULT '{}',
    estimated_price DECIMAL(10,2),
    deposit_amount DECIMAL(10,2) NOT NULL,
    payment_method VARCHAR(20) NOT NULL,
    health_form JSONB,
    terms_accepted_at TIMESTAMP,
    status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
    payment_status VARCHAR(20) NOT NULL DEFAULT 'pending',
    payment_intent_id VARCHAR(255),
    pix_payment_id VARCHAR(255),
    manual_reference VARCHAR(50),
    payment_id VARCHAR(255),
    payment_metadata JSONB,
    availability_verified BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP NOT NULL DEFAULT NOW(),

    CHECK (deposit_amount > 0),
    CHECK (status IN ('PENDING', 'CONFIRMED', 'COMPLETED', 'CANCELLED')),
    CHECK (payment_status IN ('pending', 'paid', 'failed'))
);`

const createBookingsDateIndex = `
CREATE INDEX IF NOT EXISTS bookings_booking_date_idx ON bookings (booking_date);`

const createBookingsEmailIndex = `
CREATE INDEX IF NOT EXISTS bookings_client_email_idx ON bookings (LOWER(client_email));`

// One active booking per city, day and slot.
const createBookingsSlotIndex = `
CREATE UNIQUE INDEX IF NOT EXISTS bookings_active_slot_idx
    ON bookings (LOWER(city_name), booking_date, booking_time)
    WHERE status <> 'CANCELLED';`

const createConsentFormsTable = `
CREATE TABLE IF NOT EXISTS consent_forms (
    booking_id UUID PRIMARY KEY REFERENCES bookings(id),
    signature_image TEXT NOT NULL,
    health_data_snapshot JSONB,
    ip_address VARCHAR(64) NOT NULL DEFAULT '',
    user_agent TEXT NOT NULL DEFAULT '',
    signed_at TIMESTAMP NOT NULL DEFAULT NOW()
);`

const createClientsTable = `
CREATE TABLE IF NOT EXISTS clients (
    email VARCHAR(255) PRIMARY KEY,
    name VARCHAR(200) NOT NULL DEFAULT '',
    phone VARCHAR(50) NOT NULL DEFAULT '',
    total_bookings INTEGER NOT NULL DEFAULT 0,
    total_spent DECIMAL(12,2) NOT NULL DEFAULT 0,
    last_visit DATE,
    whatsapp_status VARCHAR(20) NOT NULL DEFAULT 'untouched',
    tags TEXT[] NOT NULL DEFAULT '{}',
    notes TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMP NOT NULL DEFAULT NOW(),

    CHECK (whatsapp_status IN ('untouched', 'contacted', 'customer', 'churned'))
);`

const createIntegrationsTable = `
CREATE TABLE IF NOT EXISTS integrations (
    service_id VARCHAR(50) PRIMARY KEY,
    is_active BOOLEAN NOT NULL DEFAULT FALSE,
    status VARCHAR(20) NOT NULL DEFAULT 'disconnected',
    config JSONB NOT NULL DEFAULT '{}',
    last_sync TIMESTAMP,

    CHECK (status IN ('connected', 'disconnected'))
);`
