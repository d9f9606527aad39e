package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
)

const (
	backendPath        = "backend/api"
	alertingConfigPath = backendPath + "/alerting/config"
)

// User is the authenticated identity as described by GET /me.
type User struct {
	ID               string   `json:"id" yaml:"id"`
	Username         string   `json:"username" yaml:"username"`
	Email            string   `json:"email" yaml:"email"`
	Name             string   `json:"name" yaml:"name"`
	UserRoles        []string `json:"user_roles,omitempty" yaml:"user_roles,omitempty"`
	OrgRole          string   `json:"org_role" yaml:"org_role"`
	OrganizationID   string   `json:"organization_id" yaml:"organization_id"`
	OrganizationName string   `json:"organization_name" yaml:"organization_name"`
}

// AlertQuery narrows GET /alerting/alerts. Empty fields are not sent.
type AlertQuery struct {
	Organization string
	State        string
	Severity     string
	SystemKey    string
}

func (q AlertQuery) values() url.Values {
	v := url.Values{}
	for key, value := range map[string]string{
		"organization_id": q.Organization,
		"state":           q.State,
		"severity":        q.Severity,
		"system_key":      q.SystemKey,
	} {
		if value != "" {
			v.Set(key, value)
		}
	}
	return v
}

type BackendService struct {
	client *Client
}

func (c *Client) Backend() *BackendService {
	return &BackendService{client: c}
}

func withQuery(endpoint string, query url.Values) string {
	if len(query) == 0 {
		return endpoint
	}
	return endpoint + "?" + query.Encode()
}

func orgQuery(org string) url.Values {
	return AlertQuery{Organization: org}.values()
}

func (b *BackendService) call(ctx context.Context, method, endpoint string, body any) (json.RawMessage, error) {
	var raw json.RawMessage
	if _, err := b.client.do(ctx, method, endpoint, body, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (b *BackendService) Me(ctx context.Context) (*User, error) {
	raw, err := b.call(ctx, http.MethodGet, backendPath+"/me", nil)
	if err != nil {
		return nil, err
	}
	data := gjson.GetBytes(raw, "data")
	if !data.IsObject() {
		return nil, fmt.Errorf("unexpected /me response: %s", string(raw))
	}
	var user User
	if err := json.Unmarshal([]byte(data.Raw), &user); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	return &user, nil
}

// GetAlertingConfig returns the rendered configuration text of org. An empty
// org lets the backend pick the caller's own organization.
func (b *BackendService) GetAlertingConfig(ctx context.Context, org string) (string, error) {
	raw, err := b.call(ctx, http.MethodGet, withQuery(alertingConfigPath, orgQuery(org)), nil)
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(raw, "data.config").String(), nil
}

// SetAlertingConfig posts document exactly as given.
func (b *BackendService) SetAlertingConfig(ctx context.Context, org string, document json.RawMessage) error {
	_, err := b.call(ctx, http.MethodPost, withQuery(alertingConfigPath, orgQuery(org)), document)
	return err
}

// DeleteAlertingConfig replaces the configuration of org with one that drops
// every notification.
func (b *BackendService) DeleteAlertingConfig(ctx context.Context, org string) error {
	_, err := b.call(ctx, http.MethodDelete, withQuery(alertingConfigPath, orgQuery(org)), nil)
	return err
}

func (b *BackendService) ListAlerts(ctx context.Context, query AlertQuery) ([]Alert, error) {
	raw, err := b.call(ctx, http.MethodGet, withQuery(backendPath+"/alerting/alerts", query.values()), nil)
	if err != nil {
		return nil, err
	}
	alerts := gjson.GetBytes(raw, "data.alerts")
	if !alerts.Exists() || alerts.Type == gjson.Null {
		return nil, nil
	}
	var out []Alert
	if err := json.Unmarshal([]byte(alerts.Raw), &out); err != nil {
		return nil, fmt.Errorf("failed to decode alerts: %w", err)
	}
	return out, nil
}
