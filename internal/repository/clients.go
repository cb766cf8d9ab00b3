package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"inkbook/internal/database"
	"inkbook/internal/models"

	"github.com/lib/pq"
)

type ClientRepository struct {
	db *database.DB
}

func NewClientRepository(db *database.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

const clientColumns = `email, name, phone, total_bookings, total_spent, last_visit, whatsapp_status, tags, notes, updated_at`

func scanClient(row rowScanner) (*models.Client, error) {
	var c models.Client
	var lastVisit *models.Date
	err := row.Scan(
		&c.Email,
		&c.Name,
		&c.Phone,
		&c.TotalBookings,
		&c.TotalSpent,
		&lastVisit,
		&c.WhatsappStatus,
		pq.Array(&c.Tags),
		&c.Notes,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.LastVisit = lastVisit
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return &c, nil
}

// UpsertRollup writes the booking-derived fields of a client. Staff-owned
// fields are kept; the WhatsApp stage only advances from untouched.
func (r *ClientRepository) UpsertRollup(ctx context.Context, c *models.Client) error {
	query := `
		INSERT INTO clients (email, name, phone, total_bookings, total_spent, last_visit, whatsapp_status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (email) DO UPDATE SET
		    name = EXCLUDED.name,
		    phone = EXCLUDED.phone,
		    total_bookings = EXCLUDED.total_bookings,
		    total_spent = EXCLUDED.total_spent,
		    last_visit = EXCLUDED.last_visit,
		    whatsapp_status = CASE
		        WHEN clients.whatsapp_status = 'untouched' THEN EXCLUDED.whatsapp_status
		        ELSE clients.whatsapp_status
		    END,
		    updated_at = NOW()
		RETURNING whatsapp_status, tags, notes, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		c.Email,
		c.Name,
		c.Phone,
		c.TotalBookings,
		c.TotalSpent,
		c.LastVisit,
		c.WhatsappStatus,
	).Scan(&c.WhatsappStatus, pq.Array(&c.Tags), &c.Notes, &c.UpdatedAt)
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return err
}

func (r *ClientRepository) GetByEmail(ctx context.Context, email string) (*models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE email = LOWER($1)`

	client, err := scanClient(r.db.QueryRowContext(ctx, query, strings.TrimSpace(email)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return client, err
}

// List returns clients matching q on name, e-mail or phone.
func (r *ClientRepository) List(ctx context.Context, q string, limit int) ([]models.Client, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + clientColumns + ` FROM clients`
	args := []any{}
	if q = strings.TrimSpace(q); q != "" {
		args = append(args, "%"+q+"%")
		query += ` WHERE name ILIKE $1 OR email ILIKE $1 OR phone ILIKE $1`
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY updated_at DESC LIMIT $%d`, len(args))

	rows, err := r.db.QueryWithRetry(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clients := []models.Client{}
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, *client)
	}
	return clients, rows.Err()
}

// UpdateStaffFields applies a staff patch and returns the updated client.
func (r *ClientRepository) UpdateStaffFields(ctx context.Context, email string, patch models.UpdateClientRequest) (*models.Client, error) {
	var tags any
	if patch.Tags != nil {
		tags = pq.Array(*patch.Tags)
	}

	query := `
		UPDATE clients
		SET whatsapp_status = COALESCE($2, whatsapp_status),
		    tags = COALESCE($3, tags),
		    notes = COALESCE($4, notes),
		    updated_at = NOW()
		WHERE email = LOWER($1)
		RETURNING ` + clientColumns

	client, err := scanClient(r.db.QueryRowContext(ctx, query, strings.TrimSpace(email), patch.WhatsappStatus, tags, patch.Notes))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return client, err
}
