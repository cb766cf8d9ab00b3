package external

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"
)

const providerEvolution = "evolution"

type WhatsAppConfig struct {
	BaseURL  string
	APIKey   string
	Instance string
	Timeout  time.Duration
}

type evolutionTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

// WhatsAppClient sends text messages through an Evolution API instance.
type WhatsAppClient struct {
	baseURL    string
	apiKey     string
	instance   string
	httpClient *http.Client
}

func NewWhatsAppClient(cfg WhatsAppConfig) *WhatsAppClient {
	return &WhatsAppClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		instance:   cfg.Instance,
		httpClient: newHTTPClient(cfg.Timeout),
	}
}

// NormalizePhone keeps digits only, the format Evolution expects.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (c *WhatsAppClient) SendText(ctx context.Context, phone, text string) error {
	endpoint := c.baseURL + "/message/sendText/" + url.PathEscape(c.instance)
	body := evolutionTextRequest{
		Number: NormalizePhone(phone),
		Text:   text,
	}
	headers := map[string]string{"apikey": c.apiKey}

	return doJSON(ctx, c.httpClient, providerEvolution, "send text",
		http.MethodPost, endpoint, headers, body, nil)
}
