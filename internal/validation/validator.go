// Package validation smoke-tests a running instance over HTTP: it books the
// first open slot of the tour and checks the public contract around it.
package validation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"inkbook/internal/models"
)

// SmokeValidator walks the public API of one instance.
type SmokeValidator struct {
	baseURL string
	client  *http.Client
}

func NewSmokeValidator(baseURL string) *SmokeValidator {
	return &SmokeValidator{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Run validates baseURL and logs each step.
func Run(ctx context.Context, baseURL string) error {
	slog.Info("Starting API validation", "url", baseURL)
	if err := NewSmokeValidator(baseURL).ValidateAll(ctx); err != nil {
		return err
	}
	slog.Info("API validation passed")
	return nil
}

// ValidateAll stops at the first broken step.
func (v *SmokeValidator) ValidateAll(ctx context.Context) error {
	if err := v.validateHealth(ctx); err != nil {
		return fmt.Errorf("health validation failed: %w", err)
	}

	city, date, slot, err := v.firstOpenSlot(ctx)
	if err != nil {
		return fmt.Errorf("tour validation failed: %w", err)
	}
	if city == "" {
		slog.Warn("No open slot on the tour, skipping booking checks")
		return nil
	}

	bookingID, err := v.validateBooking(ctx, city, date, slot)
	if err != nil {
		return fmt.Errorf("booking validation failed: %w", err)
	}

	if err := v.validateConsent(ctx, bookingID); err != nil {
		return fmt.Errorf("consent validation failed: %w", err)
	}

	if err := v.validateWebhooks(ctx); err != nil {
		return fmt.Errorf("webhook validation failed: %w", err)
	}

	return nil
}

func (v *SmokeValidator) validateHealth(ctx context.Context) error {
	var health struct {
		Status string `json:"status"`
	}
	if err := v.expect(ctx, "GET", "/health", nil, http.StatusOK, &health); err != nil {
		return err
	}
	if health.Status != "ok" {
		return fmt.Errorf("GET /health: status %q", health.Status)
	}
	slog.Info("Health endpoint valid")
	return nil
}

// firstOpenSlot returns an empty city when the tour has nothing bookable.
func (v *SmokeValidator) firstOpenSlot(ctx context.Context) (string, models.Date, string, error) {
	var cities []models.CityInfo
	if err := v.expect(ctx, "GET", "/api/tours/cities", nil, http.StatusOK, &cities); err != nil {
		return "", models.Date{}, "", err
	}

	for _, city := range cities {
		var dates models.DatesResponse
		path := "/api/tours/dates?city=" + url.QueryEscape(city.CityName)
		if err := v.expect(ctx, "GET", path, nil, http.StatusOK, &dates); err != nil {
			return "", models.Date{}, "", err
		}

		for _, date := range dates.Dates {
			var slots models.SlotsResponse
			path := fmt.Sprintf("/api/tours/slots?city=%s&date=%s", url.QueryEscape(city.CityName), date)
			if err := v.expect(ctx, "GET", path, nil, http.StatusOK, &slots); err != nil {
				return "", models.Date{}, "", err
			}
			if len(slots.Slots) > 0 {
				slog.Info("Tour endpoints valid", "city", city.CityName, "date", date.String(), "slot", slots.Slots[0])
				return city.CityName, date, slots.Slots[0], nil
			}
		}
	}
	return "", models.Date{}, "", nil
}

func (v *SmokeValidator) validateBooking(ctx context.Context, city string, date models.Date, slot string) (string, error) {
	req := models.CreateBookingRequest{
		ArtistID:      "smoke-test",
		ClientName:    "Smoke Test",
		ClientEmail:   "smoke-test@example.com",
		ClientPhone:   "+351 912 345 678",
		BookingDate:   date.String(),
		BookingTime:   slot,
		CityName:      city,
		TattooType:    "fine_line",
		BodyLocation:  "forearm",
		DepositAmount: 50,
		PaymentMethod: models.PaymentMethodStudio,
		HealthForm:    json.RawMessage(`{"smokeTest":true}`),
		TermsAccepted: true,
	}

	var created models.CreateBookingResponse
	if err := v.expect(ctx, "POST", "/api/bookings", req, http.StatusCreated, &created); err != nil {
		return "", err
	}
	if created.BookingID == "" || created.Instructions == nil || created.Instructions.Reference == "" {
		return "", fmt.Errorf("POST /api/bookings: expected bookingId and payment instructions")
	}

	// The same slot must now be taken
	if err := v.expect(ctx, "POST", "/api/bookings", req, http.StatusConflict, nil); err != nil {
		return "", err
	}

	slog.Info("Booking endpoints valid", "booking_id", created.BookingID)
	return created.BookingID, nil
}

func (v *SmokeValidator) validateConsent(ctx context.Context, bookingID string) error {
	var view models.ConsentView
	if err := v.expect(ctx, "GET", "/api/consent/"+bookingID, nil, http.StatusOK, &view); err != nil {
		return err
	}
	if view.BookingID != bookingID || view.Signed {
		return fmt.Errorf("GET /api/consent: unexpected view %+v", view)
	}

	if err := v.expect(ctx, "GET", "/api/consent/not-a-booking", nil, http.StatusNotFound, nil); err != nil {
		return err
	}
	slog.Info("Consent endpoints valid")
	return nil
}

func (v *SmokeValidator) validateWebhooks(ctx context.Context) error {
	var result models.WebhookResult
	if err := v.expect(ctx, "POST", "/api/webhooks/mercadopago?topic=merchant_order&id=1", map[string]string{}, http.StatusOK, &result); err != nil {
		return err
	}
	if result.Status != "ignored_topic" {
		return fmt.Errorf("POST /api/webhooks/mercadopago: status %q", result.Status)
	}
	slog.Info("Webhook endpoints valid")
	return nil
}

// expect sends body as JSON, checks the status code and decodes into out
// when out is not nil.
func (v *SmokeValidator) expect(ctx context.Context, method, path string, body any, status int, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: failed to marshal body: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, v.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != status {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: expected %d, got %d: %s", method, path, status, resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
	}
	return nil
}
