package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FlexibleBool accepts booleans sent as JSON booleans, strings or numbers.
// Web forms post checkbox values as "on" or "true".
type FlexibleBool bool

// UnmarshalJSON parses true/false, "1"/"0", "yes"/"no" and "on"/"off".
func (fb *FlexibleBool) UnmarshalJSON(data []byte) error {
	str := strings.Trim(string(data), `"`)

	switch strings.ToLower(str) {
	case "true", "1", "yes", "on":
		*fb = true
	case "false", "0", "no", "off", "", "null":
		*fb = false
	default:
		return fmt.Errorf("invalid boolean value: %s", str)
	}
	return nil
}

// Bool returns the plain bool value.
func (fb FlexibleBool) Bool() bool {
	return bool(fb)
}

// CreateBookingRequest is the body the booking site posts.
type CreateBookingRequest struct {
	ArtistID        string          `json:"artistId"`
	ClientName      string          `json:"clientName"`
	ClientEmail     string          `json:"clientEmail"`
	ClientPhone     string          `json:"clientPhone"`
	ClientLanguage  string          `json:"clientLanguage,omitempty"`
	BookingDate     string          `json:"bookingDate"`
	BookingTime     string          `json:"bookingTime"`
	DurationHours   int             `json:"durationHours"`
	CityName        string          `json:"cityName"`
	TattooType      string          `json:"tattooType"`
	Description     string          `json:"description"`
	BodyLocation    string          `json:"bodyLocation"`
	ReferenceImages []string        `json:"referenceImages"`
	EstimatedPrice  *float64        `json:"estimatedPrice,omitempty"`
	DepositAmount   float64         `json:"depositAmount"`
	PaymentMethod   string          `json:"paymentMethod"`
	HealthForm      json.RawMessage `json:"healthForm"`
	TermsAccepted   FlexibleBool    `json:"termsAccepted"`
}

// CreateBookingResponse is returned after a booking was persisted and its
// payment rail initiated. Exactly one of ClientSecret, PixData and
// Instructions is populated.
type CreateBookingResponse struct {
	BookingID    string              `json:"bookingId"`
	Success      bool                `json:"success"`
	Method       string              `json:"method"`
	ClientSecret string              `json:"clientSecret,omitempty"`
	PixData      *PixData            `json:"pixData,omitempty"`
	Instructions *ManualInstructions `json:"instructions,omitempty"`
}

// PixData carries what the site needs to render a Pix QR code.
type PixData struct {
	PaymentID    string    `json:"paymentId"`
	QRCode       string    `json:"qrCode"`
	QRCodeBase64 string    `json:"qrCodeBase64"`
	AmountBRL    float64   `json:"amountBrl"`
	ExchangeRate float64   `json:"exchangeRate"`
	RateSource   string    `json:"rateSource"`
	ExpiresAt    time.Time `json:"expiresAt,omitempty"`
	Mock         bool      `json:"mock,omitempty"`
}

// ManualInstructions tell the client how to settle the deposit offline.
type ManualInstructions struct {
	Reference     string  `json:"reference"`
	Method        string  `json:"method"`
	AmountEUR     float64 `json:"amountEur"`
	BankName      string  `json:"bankName,omitempty"`
	AccountHolder string  `json:"accountHolder,omitempty"`
	IBAN          string  `json:"iban,omitempty"`
	BIC           string  `json:"bic,omitempty"`
	PixKey        string  `json:"pixKey,omitempty"`
	Message       string  `json:"message"`
}

// UpdateBookingStatusRequest is a staff status change.
type UpdateBookingStatusRequest struct {
	Status        string `json:"status" binding:"required"`
	PaymentStatus string `json:"paymentStatus,omitempty"`
}

// TourSegmentRequest creates or replaces a tour segment.
type TourSegmentRequest struct {
	CountryName string   `json:"countryName" binding:"required"`
	CountryFlag string   `json:"countryFlag"`
	CityName    string   `json:"cityName" binding:"required"`
	StartDate   string   `json:"startDate" binding:"required"`
	EndDate     string   `json:"endDate" binding:"required"`
	TimeSlots   []string `json:"timeSlots"`
}

// CityInfo summarises a city on the public tour page.
type CityInfo struct {
	CityName    string `json:"cityName"`
	CountryName string `json:"countryName"`
	CountryFlag string `json:"countryFlag"`
	FirstDate   Date   `json:"firstDate"`
	LastDate    Date   `json:"lastDate"`
}

// DatesResponse lists bookable dates of a city.
type DatesResponse struct {
	City  string `json:"city"`
	Dates []Date `json:"dates"`
}

// SlotsResponse lists open slots of a city on a date.
type SlotsResponse struct {
	City  string   `json:"city"`
	Date  Date     `json:"date"`
	Slots []string `json:"slots"`
}

// SignConsentRequest is the body of a consent signature submission.
type SignConsentRequest struct {
	SignatureImage string          `json:"signatureImage" binding:"required"`
	HealthData     json.RawMessage `json:"healthData"`
}

// ConsentView is what the signing page loads.
type ConsentView struct {
	BookingID   string     `json:"bookingId"`
	ClientName  string     `json:"clientName"`
	BookingDate Date       `json:"bookingDate"`
	BookingTime string     `json:"bookingTime"`
	CityName    string     `json:"cityName"`
	TattooType  string     `json:"tattooType"`
	Signed      bool       `json:"signed"`
	SignedAt    *time.Time `json:"signedAt,omitempty"`
}

// UpdateClientRequest patches the staff-owned fields of a CRM client.
type UpdateClientRequest struct {
	WhatsappStatus *string   `json:"whatsappStatus,omitempty"`
	Tags           *[]string `json:"tags,omitempty"`
	Notes          *string   `json:"notes,omitempty"`
}

// UpsertIntegrationRequest stores a service's settings.
type UpsertIntegrationRequest struct {
	IsActive FlexibleBool      `json:"isActive"`
	Config   map[string]string `json:"config"`
}

// WebhookResult is the acknowledgement body of a payment webhook.
type WebhookResult struct {
	Status        string `json:"status"`
	BookingID     string `json:"bookingId,omitempty"`
	PaymentStatus string `json:"payment_status,omitempty"`
}
