package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/badoux/checkmail"

	"github.com/kestrelhq/realty-ai-platform/pkg/logging"
)

const (
	defaultBaseURL  = "https://api.hubapi.com"
	defaultTimeout  = 15 * time.Second
	contactsPath    = "/crm/v3/objects/contacts"
	maxHistoryChars = 5000
)

// Contact carries the fields synchronized into the CRM. The CRM owns the
// record; this client only ever creates or patches it, keyed by email.
type Contact struct {
	Email       string
	Name        string
	Budget      string
	LeadType    string
	LeadScore   int
	ChatHistory string
	UserType    string
}

// Client upserts contacts into a HubSpot-style CRM. All methods degrade
// transport failures into a (status, body) pair; they never return an error
// the orchestrator would have to unwrap mid-conversation.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *logging.Logger
}

// NewClient constructs a CRM client.
func NewClient(apiKey, baseURL string, logger *logging.Logger) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		logger:     logger,
	}
}

// Upsert searches for a contact by exact email and patches it, or creates a
// new one. The returned body is the raw CRM response (or an error payload
// on failure) serialized as a string.
func (c *Client) Upsert(ctx context.Context, contact Contact) (int, string) {
	if err := checkmail.ValidateFormat(contact.Email); err != nil {
		c.logger.Error("invalid email for CRM upsert", "email", contact.Email, "error", err)
		return http.StatusBadRequest, errorBody("invalid email format")
	}

	properties := map[string]any{
		"properties": map[string]string{
			"email":              strings.TrimSpace(contact.Email),
			"firstname":          defaultString(strings.TrimSpace(contact.Name), "Unknown"),
			"budget":             normalizeBudget(contact.Budget),
			"lead_type":          defaultString(strings.TrimSpace(contact.LeadType), "Unknown"),
			"lead_score":         fmt.Sprintf("%d", contact.LeadScore),
			"lead_qualification": defaultString(strings.TrimSpace(contact.LeadType), "Unknown"),
			"chat_history":       truncate(contact.ChatHistory, maxHistoryChars),
			"user_type":          defaultString(strings.TrimSpace(contact.UserType), "User"),
		},
	}

	// A failed search cannot distinguish "not found" from "unreachable";
	// creating in that state would duplicate the contact on every retry.
	contactID, status, body := c.searchByEmail(ctx, contact.Email)
	if status < 200 || status > 299 {
		return status, body
	}

	if contactID != "" {
		c.logger.Info("updating existing CRM contact", "contact_id", contactID)
		return c.doJSON(ctx, http.MethodPatch, contactsPath+"/"+contactID, properties)
	}

	c.logger.Info("creating CRM contact", "email", contact.Email)
	return c.doJSON(ctx, http.MethodPost, contactsPath, properties)
}

// searchByEmail returns the contact ID for an exact email match, or "".
func (c *Client) searchByEmail(ctx context.Context, email string) (string, int, string) {
	payload := map[string]any{
		"filterGroups": []map[string]any{
			{"filters": []map[string]string{
				{"propertyName": "email", "operator": "EQ", "value": email},
			}},
		},
	}

	status, body := c.doJSON(ctx, http.MethodPost, contactsPath+"/search", payload)
	if status < 200 || status > 299 {
		return "", status, body
	}

	var result struct {
		Results []struct {
			ID string `json:"id"`
		} `json:"results"`
	}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		c.logger.Error("failed to decode CRM search response", "error", err)
		return "", http.StatusInternalServerError, errorBody("malformed search response")
	}
	if len(result.Results) == 0 {
		return "", status, body
	}
	return result.Results[0].ID, status, body
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any) (int, string) {
	payload, err := json.Marshal(body)
	if err != nil {
		return http.StatusInternalServerError, errorBody(err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return http.StatusInternalServerError, errorBody(err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("CRM request failed", "method", method, "path", path, "error", err)
		return http.StatusInternalServerError, errorBody(err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return http.StatusInternalServerError, errorBody(err.Error())
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(respBody)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		c.logger.Warn("CRM API non-2xx response", "status", resp.StatusCode, "path", path, "body", msg)
	}
	return resp.StatusCode, string(respBody)
}

func normalizeBudget(budget string) string {
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(budget)
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return "0"
		}
	}
	if cleaned == "" {
		return "0"
	}
	return cleaned
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func errorBody(msg string) string {
	body, _ := json.Marshal(map[string]string{"error": msg})
	return string(body)
}
