package external

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const providerMercadoPago = "mercadopago"

// Mercado Pago payment statuses
const (
	MPStatusApproved   = "approved"
	MPStatusPending    = "pending"
	MPStatusInProcess  = "in_process"
	MPStatusRejected   = "rejected"
	MPStatusCancelled  = "cancelled"
	MPStatusRefunded   = "refunded"
	MPStatusChargeback = "charged_back"
)

type MercadoPagoConfig struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

// PixPaymentInput describes a Pix charge for a booking deposit.
type PixPaymentInput struct {
	BookingID   string
	AmountBRL   float64
	Description string
	PayerEmail  string
	PayerName   string
}

// PixPayment is a Mercado Pago payment as returned by create and lookup.
type PixPayment struct {
	ID                string
	Status            string
	ExternalReference string
	AmountBRL         float64
	QRCode            string
	QRCodeBase64      string
	ExpiresAt         time.Time
}

type mpPayer struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
}

type mpCreatePaymentRequest struct {
	TransactionAmount float64 `json:"transaction_amount"`
	Description       string  `json:"description"`
	PaymentMethodID   string  `json:"payment_method_id"`
	ExternalReference string  `json:"external_reference"`
	DateOfExpiration  string  `json:"date_of_expiration,omitempty"`
	Payer             mpPayer `json:"payer"`
}

type mpPayment struct {
	ID                int64   `json:"id"`
	Status            string  `json:"status"`
	ExternalReference string  `json:"external_reference"`
	TransactionAmount float64 `json:"transaction_amount"`
	DateOfExpiration  string  `json:"date_of_expiration"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

func (p mpPayment) toPixPayment() *PixPayment {
	out := &PixPayment{
		ID:                strconv.FormatInt(p.ID, 10),
		Status:            p.Status,
		ExternalReference: p.ExternalReference,
		AmountBRL:         p.TransactionAmount,
		QRCode:            p.PointOfInteraction.TransactionData.QRCode,
		QRCodeBase64:      p.PointOfInteraction.TransactionData.QRCodeBase64,
	}
	if t, err := time.Parse(time.RFC3339, p.DateOfExpiration); err == nil {
		out.ExpiresAt = t
	}
	return out
}

// PixExpiry is how long a generated Pix QR code stays payable.
const PixExpiry = 30 * time.Minute

type MercadoPagoClient struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

func NewMercadoPagoClient(cfg MercadoPagoConfig) *MercadoPagoClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.mercadopago.com"
	}

	return &MercadoPagoClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		accessToken: cfg.AccessToken,
		httpClient:  newHTTPClient(cfg.Timeout),
	}
}

func (c *MercadoPagoClient) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.accessToken}
}

// CreatePixPayment creates a Pix charge whose external_reference is the
// booking id. The booking id is also sent as idempotency key so a retried
// request cannot create a second charge.
func (c *MercadoPagoClient) CreatePixPayment(ctx context.Context, in PixPaymentInput) (*PixPayment, error) {
	body := mpCreatePaymentRequest{
		TransactionAmount: in.AmountBRL,
		Description:       in.Description,
		PaymentMethodID:   "pix",
		ExternalReference: in.BookingID,
		DateOfExpiration:  time.Now().Add(PixExpiry).UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Payer: mpPayer{
			Email:     in.PayerEmail,
			FirstName: in.PayerName,
		},
	}

	headers := c.headers()
	headers["X-Idempotency-Key"] = in.BookingID

	var resp mpPayment
	if err := doJSON(ctx, c.httpClient, providerMercadoPago, "create pix payment",
		http.MethodPost, c.baseURL+"/v1/payments", headers, body, &resp); err != nil {
		return nil, err
	}
	if resp.ID == 0 {
		return nil, fmt.Errorf("mercadopago returned a payment without id")
	}

	return resp.toPixPayment(), nil
}

// GetPayment fetches the authoritative state of a payment.
func (c *MercadoPagoClient) GetPayment(ctx context.Context, paymentID string) (*PixPayment, error) {
	var resp mpPayment
	endpoint := c.baseURL + "/v1/payments/" + url.PathEscape(paymentID)
	if err := doJSON(ctx, c.httpClient, providerMercadoPago, "get payment",
		http.MethodGet, endpoint, c.headers(), nil, &resp); err != nil {
		return nil, err
	}

	return resp.toPixPayment(), nil
}
