package models

import (
	"encoding/json"
	"time"
)

// Booking statuses
const (
	BookingStatusPending   = "PENDING"
	BookingStatusConfirmed = "CONFIRMED"
	BookingStatusCompleted = "COMPLETED"
	BookingStatusCancelled = "CANCELLED"
)

// Payment statuses
const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
)

// Payment methods offered on the booking site
const (
	PaymentMethodStripe     = "stripe"
	PaymentMethodPix        = "pix"
	PaymentMethodPixManual  = "pix_manual"
	PaymentMethodWise       = "wise"
	PaymentMethodStudio     = "studio"
	PaymentMethodCreditCard = "credit_card"
)

// PaymentMethods lists every accepted paymentMethod value.
var PaymentMethods = []string{
	PaymentMethodStripe,
	PaymentMethodPix,
	PaymentMethodPixManual,
	PaymentMethodWise,
	PaymentMethodStudio,
	PaymentMethodCreditCard,
}

// TattooTypes lists every accepted tattooType value.
var TattooTypes = []string{
	"fine_line",
	"blackwork",
	"realism",
	"traditional",
	"neo_traditional",
	"lettering",
	"color",
	"flash",
	"cover_up",
	"other",
}

// WhatsApp pipeline stages of a client
const (
	WhatsappUntouched = "untouched"
	WhatsappContacted = "contacted"
	WhatsappCustomer  = "customer"
	WhatsappChurned   = "churned"
)

// Integration statuses
const (
	IntegrationConnected    = "connected"
	IntegrationDisconnected = "disconnected"
)

// TourSegment is a contiguous stay of the artist in one city.
type TourSegment struct {
	ID          string    `json:"id"`
	CountryName string    `json:"countryName"`
	CountryFlag string    `json:"countryFlag"`
	CityName    string    `json:"cityName"`
	StartDate   Date      `json:"startDate"`
	EndDate     Date      `json:"endDate"`
	TimeSlots   []string  `json:"timeSlots"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Contains reports whether d falls inside the segment, bounds inclusive.
func (s TourSegment) Contains(d Date) bool {
	return !d.Before(s.StartDate) && !d.After(s.EndDate)
}

// Booking is a client's reservation of one slot with its deposit state.
type Booking struct {
	ID                   string          `json:"id"`
	ArtistID             string          `json:"artistId"`
	ClientName           string          `json:"clientName"`
	ClientEmail          string          `json:"clientEmail"`
	ClientPhone          string          `json:"clientPhone"`
	ClientLanguage       *string         `json:"clientLanguage,omitempty"`
	BookingDate          Date            `json:"bookingDate"`
	BookingTime          string          `json:"bookingTime"`
	DurationHours        int             `json:"durationHours"`
	CityName             string          `json:"cityName"`
	TattooType           string          `json:"tattooType"`
	Description          string          `json:"description"`
	BodyLocation         string          `json:"bodyLocation"`
	ReferenceImages      []string        `json:"referenceImages"`
	EstimatedPrice       *float64        `json:"estimatedPrice,omitempty"`
	DepositAmount        float64         `json:"depositAmount"`
	PaymentMethod        string          `json:"paymentMethod"`
	HealthForm           json.RawMessage `json:"healthForm,omitempty"`
	TermsAcceptedAt      *time.Time      `json:"termsAcceptedAt,omitempty"`
	Status               string          `json:"status"`
	PaymentStatus        string          `json:"paymentStatus"`
	PaymentIntentID      *string         `json:"paymentIntentId,omitempty"`
	PixPaymentID         *string         `json:"pixPaymentId,omitempty"`
	ManualReference      *string         `json:"manualReference,omitempty"`
	PaymentID            *string         `json:"paymentId,omitempty"`
	PaymentMetadata      json.RawMessage `json:"paymentMetadata,omitempty"`
	AvailabilityVerified bool            `json:"availabilityVerified"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

// IsActive reports whether the booking still holds its slot.
func (b Booking) IsActive() bool {
	return b.Status != BookingStatusCancelled
}

// IsManualMethod reports whether the deposit is settled outside an automated rail.
func IsManualMethod(method string) bool {
	return method != PaymentMethodStripe && method != PaymentMethodPix
}

// ConsentSignature is the signed liability record of a booking. Written once.
type ConsentSignature struct {
	BookingID          string          `json:"bookingId"`
	SignatureImage     string          `json:"signatureImage"`
	HealthDataSnapshot json.RawMessage `json:"healthDataSnapshot"`
	IPAddress          string          `json:"ipAddress"`
	UserAgent          string          `json:"userAgent"`
	SignedAt           time.Time       `json:"signedAt"`
}

// Client is the CRM rollup of everything a person has booked.
type Client struct {
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	Phone          string    `json:"phone"`
	TotalBookings  int       `json:"totalBookings"`
	TotalSpent     float64   `json:"totalSpent"`
	LastVisit      *Date     `json:"lastVisit,omitempty"`
	WhatsappStatus string    `json:"whatsappStatus"`
	Tags           []string  `json:"tags"`
	Notes          string    `json:"notes"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// IntegrationConfig holds credentials and settings of one third-party service.
type IntegrationConfig struct {
	ServiceID string            `json:"serviceId"`
	IsActive  bool              `json:"isActive"`
	Status    string            `json:"status"`
	Config    map[string]string `json:"config"`
	LastSync  *time.Time        `json:"lastSync,omitempty"`
}
