package external

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const providerGoogleCalendar = "google-calendar"

type CalendarConfig struct {
	BaseURL     string
	AccessToken string
	CalendarID  string
	Timeout     time.Duration
}

// CalendarEvent is a session block on the artist's calendar.
type CalendarEvent struct {
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	// ExternalID ties the event to the booking.
	ExternalID string
}

type gcalTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone,omitempty"`
}

type gcalEventRequest struct {
	Summary            string   `json:"summary"`
	Description        string   `json:"description,omitempty"`
	Location           string   `json:"location,omitempty"`
	Start              gcalTime `json:"start"`
	End                gcalTime `json:"end"`
	ExtendedProperties struct {
		Private map[string]string `json:"private"`
	} `json:"extendedProperties"`
}

type gcalEventResponse struct {
	ID string `json:"id"`
}

// CalendarClient inserts events into a Google Calendar.
type CalendarClient struct {
	baseURL     string
	accessToken string
	calendarID  string
	httpClient  *http.Client
}

func NewCalendarClient(cfg CalendarConfig) *CalendarClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.googleapis.com"
	}
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}

	return &CalendarClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		accessToken: cfg.AccessToken,
		calendarID:  cfg.CalendarID,
		httpClient:  newHTTPClient(cfg.Timeout),
	}
}

// InsertEvent returns the created event id.
func (c *CalendarClient) InsertEvent(ctx context.Context, ev CalendarEvent) (string, error) {
	body := gcalEventRequest{
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       gcalTime{DateTime: ev.Start.Format(time.RFC3339), TimeZone: "UTC"},
		End:         gcalTime{DateTime: ev.End.Format(time.RFC3339), TimeZone: "UTC"},
	}
	body.ExtendedProperties.Private = map[string]string{"bookingId": ev.ExternalID}

	endpoint := c.baseURL + "/calendar/v3/calendars/" + url.PathEscape(c.calendarID) + "/events"
	headers := map[string]string{"Authorization": "Bearer " + c.accessToken}

	var resp gcalEventResponse
	if err := doJSON(ctx, c.httpClient, providerGoogleCalendar, "insert event",
		http.MethodPost, endpoint, headers, body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}
