package scheduling

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/tbxark/leadagent/types"
)

const (
	DefaultCalendarBaseURL = "https://www.googleapis.com/calendar/v3"
	googleAuthURL          = "https://accounts.google.com/o/oauth2/auth"
	googleTokenURL         = "https://oauth2.googleapis.com/token"
)

var ErrNotConfigured = errors.New("google calendar credentials not configured")

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	RefreshToken string
	CalendarID   string
	TimeZone     string

	// BaseURL and TokenURL override the Google endpoints.
	BaseURL  string
	TokenURL string
	Timeout  time.Duration
}

// GoogleCalendar reads free/busy windows and books events with a Meet link
// through the Calendar v3 REST API, authenticated by a stored refresh token.
type GoogleCalendar struct {
	client     *resty.Client
	calendarID string
	timeZone   string
	location   *time.Location
	now        func() time.Time
	logger     *slog.Logger
}

type GoogleOption func(*GoogleCalendar)

func WithGoogleClock(now func() time.Time) GoogleOption {
	return func(g *GoogleCalendar) {
		g.now = now
	}
}

func WithGoogleLogger(logger *slog.Logger) GoogleOption {
	return func(g *GoogleCalendar) {
		g.logger = logger
	}
}

func NewGoogleCalendar(ctx context.Context, cfg GoogleConfig, opts ...GoogleOption) (*GoogleCalendar, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, ErrNotConfigured
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = googleTokenURL
	}
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   googleAuthURL,
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	httpClient := oauth2.NewClient(ctx, oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken}))

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultCalendarBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.NewWithClient(httpClient).
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	client.JSONMarshal = sonic.Marshal
	client.JSONUnmarshal = sonic.Unmarshal

	calendarID := cfg.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	timeZone := cfg.TimeZone
	if timeZone == "" {
		timeZone = DefaultTimeZone
	}

	g := &GoogleCalendar{
		client:     client,
		calendarID: calendarID,
		timeZone:   timeZone,
		location:   LoadLocation(timeZone),
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g, nil
}

type freeBusyItem struct {
	ID string `json:"id"`
}

type freeBusyRequest struct {
	TimeMin  time.Time      `json:"timeMin"`
	TimeMax  time.Time      `json:"timeMax"`
	TimeZone string         `json:"timeZone,omitempty"`
	Items    []freeBusyItem `json:"items"`
}

type freeBusyResponse struct {
	Calendars map[string]struct {
		Busy []Interval `json:"busy"`
	} `json:"calendars"`
}

type googleError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (g *GoogleCalendar) AvailableSlots(ctx context.Context, daysAhead int) ([]types.TimeSlot, error) {
	if daysAhead <= 0 {
		daysAhead = DefaultDaysAhead
	}
	now := g.now()
	var out freeBusyResponse
	var apiErr googleError
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(freeBusyRequest{
			TimeMin:  now.UTC(),
			TimeMax:  now.AddDate(0, 0, daysAhead).UTC(),
			TimeZone: g.timeZone,
			Items:    []freeBusyItem{{ID: g.calendarID}},
		}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/freeBusy")
	if err != nil {
		return nil, fmt.Errorf("query free/busy: %w", err)
	}
	if resp.IsError() {
		return nil, statusError("query free/busy", resp, apiErr)
	}

	busy := out.Calendars[g.calendarID].Busy
	slots := ComputeSlots(now, daysAhead, busy, g.location, MaxSlots)
	g.logger.Debug("Computed available slots", "busy", len(busy), "slots", len(slots))
	return slots, nil
}

type eventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type eventAttendee struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
}

type conferenceData struct {
	CreateRequest struct {
		RequestID             string `json:"requestId"`
		ConferenceSolutionKey struct {
			Type string `json:"type"`
		} `json:"conferenceSolutionKey"`
	} `json:"createRequest"`
}

type eventRequest struct {
	ID             string          `json:"id,omitempty"`
	Summary        string          `json:"summary"`
	Description    string          `json:"description"`
	Start          eventTime       `json:"start"`
	End            eventTime       `json:"end"`
	Attendees      []eventAttendee `json:"attendees,omitempty"`
	ConferenceData conferenceData  `json:"conferenceData"`
}

type eventResponse struct {
	ID          string `json:"id"`
	HangoutLink string `json:"hangoutLink"`
	HTMLLink    string `json:"htmlLink"`
}

func (g *GoogleCalendar) CreateMeeting(ctx context.Context, req MeetingRequest) (*types.MeetingResult, error) {
	event := eventRequest{
		Summary:     req.Summary,
		Description: req.Description,
		Start:       eventTime{DateTime: req.Start.In(g.location).Format(time.RFC3339), TimeZone: g.timeZone},
		End:         eventTime{DateTime: req.End.In(g.location).Format(time.RFC3339), TimeZone: g.timeZone},
	}
	if req.AttendeeEmail != "" {
		event.Attendees = []eventAttendee{{Email: req.AttendeeEmail, DisplayName: req.AttendeeName}}
	}
	event.ConferenceData.CreateRequest.RequestID = "meet-" + uuid.NewString()
	if req.Key != "" {
		event.ID = EventID(req.Key)
		event.ConferenceData.CreateRequest.RequestID = "meet-" + event.ID
	}
	event.ConferenceData.CreateRequest.ConferenceSolutionKey.Type = "hangoutsMeet"

	var out eventResponse
	var apiErr googleError
	resp, err := g.client.R().
		SetContext(ctx).
		SetPathParam("calendarId", g.calendarID).
		SetQueryParam("conferenceDataVersion", "1").
		SetQueryParam("sendUpdates", "all").
		SetBody(event).
		SetResult(&out).
		SetError(&apiErr).
		Post("/calendars/{calendarId}/events")
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	if resp.StatusCode() == http.StatusConflict && event.ID != "" {
		g.logger.Info("Meeting already booked", "event_id", event.ID, "start", req.Start)
		return g.getMeeting(ctx, event.ID, req.Start)
	}
	if resp.IsError() {
		return nil, statusError("insert event", resp, apiErr)
	}

	g.logger.Info("Meeting created", "event_id", out.ID, "start", req.Start)
	return meetingResult(out, req.Start), nil
}

func (g *GoogleCalendar) getMeeting(ctx context.Context, eventID string, start time.Time) (*types.MeetingResult, error) {
	var out eventResponse
	var apiErr googleError
	resp, err := g.client.R().
		SetContext(ctx).
		SetPathParam("calendarId", g.calendarID).
		SetPathParam("eventId", eventID).
		SetResult(&out).
		SetError(&apiErr).
		Get("/calendars/{calendarId}/events/{eventId}")
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	if resp.IsError() {
		return nil, statusError("get event", resp, apiErr)
	}
	return meetingResult(out, start), nil
}

func meetingResult(out eventResponse, start time.Time) *types.MeetingResult {
	link := out.HangoutLink
	if link == "" {
		link = out.HTMLLink
	}
	return &types.MeetingResult{MeetingLink: link, MeetingDatetime: start}
}

// EventID maps a booking key to a calendar event id. Google accepts the
// base32hex alphabet, which covers lowercase hex.
func EventID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}

func statusError(op string, resp *resty.Response, apiErr googleError) error {
	if apiErr.Error.Message != "" {
		return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode(), apiErr.Error.Message)
	}
	return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode(), http.StatusText(resp.StatusCode()))
}

var _ Scheduler = (*GoogleCalendar)(nil)
