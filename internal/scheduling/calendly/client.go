package calendly

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kestrelhq/realty-ai-platform/pkg/logging"
)

const (
	defaultBaseURL = "https://api.calendly.com"
	defaultTimeout = 15 * time.Second
)

// Result is the uniform outcome of a scheduling operation. Failed calls
// come back as {Status: "error", Message: ...} rather than Go errors;
// only construction-time auth failure is fatal.
type Result struct {
	Status      string         `json:"status"`
	Message     string         `json:"message,omitempty"`
	BookingLink string         `json:"booking_link,omitempty"`
	EventType   string         `json:"event_type,omitempty"`
	EventURI    string         `json:"event_uri,omitempty"`
	StartTime   string         `json:"start_time,omitempty"`
	Raw         map[string]any `json:"raw,omitempty"`
}

// EventType is one bookable meeting kind on the connected calendar.
type EventType struct {
	URI      string `json:"uri"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Duration int    `json:"duration"`
}

type userDetails struct {
	UserURI       string
	Organization  string
	Name          string
	SchedulingURL string
}

// Client wraps the Calendly REST API. NewClient authenticates eagerly by
// fetching the caller's own profile; invalid credentials fail construction.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	username   string
	user       userDetails
	logger     *logging.Logger
}

// NewClient constructs and authenticates a Calendly client.
func NewClient(ctx context.Context, apiKey, username, baseURL string, logger *logging.Logger) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("calendly: API key is not configured")
	}
	if strings.TrimSpace(username) == "" {
		return nil, fmt.Errorf("calendly: username is not configured")
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = logging.Default()
	}

	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		username:   username,
		logger:     logger,
	}

	user, err := c.fetchUserDetails(ctx)
	if err != nil {
		return nil, fmt.Errorf("calendly: failed to authenticate: %w", err)
	}
	c.user = user
	logger.Info("calendly client authenticated", "user", user.Name)
	return c, nil
}

func (c *Client) fetchUserDetails(ctx context.Context) (userDetails, error) {
	var resp struct {
		Resource struct {
			URI                 string `json:"uri"`
			Name                string `json:"name"`
			CurrentOrganization string `json:"current_organization"`
			SchedulingURL       string `json:"scheduling_url"`
		} `json:"resource"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/users/me", nil, &resp); err != nil {
		return userDetails{}, err
	}
	return userDetails{
		UserURI:       resp.Resource.URI,
		Organization:  resp.Resource.CurrentOrganization,
		Name:          resp.Resource.Name,
		SchedulingURL: resp.Resource.SchedulingURL,
	}, nil
}

// EventTypes lists the bookable event types for the caller's organization.
// Failures return an empty list, mirroring the degrade-not-raise contract.
func (c *Client) EventTypes(ctx context.Context) []EventType {
	q := url.Values{}
	q.Set("organization", c.user.Organization)

	var resp struct {
		Collection []EventType `json:"collection"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/event_types?"+q.Encode(), nil, &resp); err != nil {
		c.logger.Error("failed to list event types", "error", err)
		return nil
	}
	return resp.Collection
}

// CreateSchedulingLink builds a booking URL with prefilled invitee details
// for the first (or requested) event type.
func (c *Client) CreateSchedulingLink(ctx context.Context, name, email, eventTypeURI string) Result {
	eventTypes := c.EventTypes(ctx)
	if len(eventTypes) == 0 {
		return Result{Status: "error", Message: "no event types found"}
	}

	eventType := eventTypes[0]
	for _, et := range eventTypes {
		if et.URI == eventTypeURI {
			eventType = et
			break
		}
	}

	base := strings.TrimRight(c.user.SchedulingURL, "/")
	if base == "" {
		base = "https://calendly.com/" + c.username
	}
	slug := eventType.Slug
	if slug == "" {
		slug = strings.ReplaceAll(strings.ToLower(eventType.Name), " ", "-")
	}

	params := url.Values{}
	params.Set("name", name)
	params.Set("email", email)

	return Result{
		Status:      "success",
		BookingLink: fmt.Sprintf("%s/%s?%s", base, slug, params.Encode()),
		EventType:   eventType.Name,
	}
}

// ScheduleMeeting books an event directly at the given RFC3339 start time.
func (c *Client) ScheduleMeeting(ctx context.Context, name, email, startTime, eventTypeURI string) Result {
	if eventTypeURI == "" {
		eventTypes := c.EventTypes(ctx)
		if len(eventTypes) == 0 {
			return Result{Status: "error", Message: "no event types found"}
		}
		eventTypeURI = eventTypes[0].URI
	}

	payload := map[string]any{
		"start_time": startTime,
		"event_type": eventTypeURI,
		"invitees":   []map[string]string{{"email": email, "name": name}},
	}

	var resp struct {
		Resource struct {
			URI string `json:"uri"`
		} `json:"resource"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/scheduled_events", payload, &resp); err != nil {
		c.logger.Error("failed to schedule meeting", "error", err)
		return Result{Status: "error", Message: err.Error()}
	}

	return Result{
		Status:    "success",
		EventURI:  resp.Resource.URI,
		StartTime: startTime,
	}
}

// AvailableTimes returns the provider's raw availability payload for the
// given window.
func (c *Client) AvailableTimes(ctx context.Context, startTime, endTime string) Result {
	q := url.Values{}
	q.Set("user", c.user.UserURI)
	q.Set("start_time", startTime)
	q.Set("end_time", endTime)

	var raw map[string]any
	if err := c.doJSON(ctx, http.MethodGet, "/user_availability_schedules?"+q.Encode(), nil, &raw); err != nil {
		c.logger.Error("failed to fetch available times", "error", err)
		return Result{Status: "error", Message: err.Error()}
	}
	return Result{Status: "success", Raw: raw}
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("invalid or expired API key")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(respBody)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		return fmt.Errorf("calendly API returned %d: %s", resp.StatusCode, msg)
	}
	if len(respBody) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
