package external

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const providerResend = "resend"

type EmailConfig struct {
	BaseURL string
	APIKey  string
	From    string
	Timeout time.Duration
}

// Email is a single transactional message.
type Email struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

type resendResponse struct {
	ID string `json:"id"`
}

// EmailClient sends mail through the Resend API.
type EmailClient struct {
	baseURL    string
	apiKey     string
	from       string
	httpClient *http.Client
}

func NewEmailClient(cfg EmailConfig) *EmailClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.resend.com"
	}
	if cfg.From == "" {
		cfg.From = "Inkbook <bookings@inkbook.studio>"
	}

	return &EmailClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		from:       cfg.From,
		httpClient: newHTTPClient(cfg.Timeout),
	}
}

// Send returns the provider message id.
func (c *EmailClient) Send(ctx context.Context, msg Email) (string, error) {
	body := resendRequest{
		From:    c.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	}
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}

	var resp resendResponse
	if err := doJSON(ctx, c.httpClient, providerResend, "send email",
		http.MethodPost, c.baseURL+"/emails", headers, body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}
