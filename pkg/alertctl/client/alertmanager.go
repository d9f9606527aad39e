package client

import (
	"context"
	"net/http"
	"time"

	"github.com/samber/lo"
)

const (
	alertmanagerPath = "alertmanager/api/v2"

	// TimeFormat is the second-precision UTC layout Alertmanager is fed.
	TimeFormat = "2006-01-02T15:04:05Z"
	// ZeroTime marks a firing alert with no planned end.
	ZeroTime = "0001-01-01T00:00:00Z"
)

type PostableAlert struct {
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations"`
	GeneratorURL string            `json:"generatorURL"`
	StartsAt     string            `json:"startsAt"`
	EndsAt       string            `json:"endsAt"`
}

type Matcher struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	IsRegex bool   `json:"isRegex"`
}

type Silence struct {
	Matchers  []Matcher `json:"matchers"`
	StartsAt  string    `json:"startsAt"`
	EndsAt    string    `json:"endsAt"`
	Comment   string    `json:"comment"`
	CreatedBy string    `json:"createdBy"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

func alertLabels(key, alertname, severity string, extra Pairs) map[string]string {
	labels := map[string]string{
		"alertname":  alertname,
		"severity":   severity,
		"system_key": key,
	}
	for _, p := range extra {
		labels[p.Key] = p.Value
	}
	return labels
}

func generatorURL(key string) string {
	return "http://" + key + "/alert"
}

// FiringAlert builds the payload that fires alertname for the system key.
// Extra labels may override the built-in ones.
func FiringAlert(key, alertname, severity string, labels, annotations Pairs, now time.Time) PostableAlert {
	return PostableAlert{
		Labels:       alertLabels(key, alertname, severity, labels),
		Annotations:  annotations.Map(),
		GeneratorURL: generatorURL(key),
		StartsAt:     formatTime(now),
		EndsAt:       ZeroTime,
	}
}

// ResolvedAlert builds the payload that ends an alert fired with the same
// labels: it started an hour ago and ends now.
func ResolvedAlert(key, alertname, severity string, labels Pairs, now time.Time) PostableAlert {
	return PostableAlert{
		Labels:       alertLabels(key, alertname, severity, labels),
		Annotations:  map[string]string{"summary": "resolved"},
		GeneratorURL: generatorURL(key),
		StartsAt:     formatTime(now.Add(-time.Hour)),
		EndsAt:       formatTime(now),
	}
}

func NewSilence(alertname string, labels Pairs, duration time.Duration, comment, createdBy string, now time.Time) Silence {
	matchers := make([]Matcher, 0, len(labels)+1)
	matchers = append(matchers, Matcher{Name: "alertname", Value: alertname})
	for _, p := range labels {
		matchers = append(matchers, Matcher{Name: p.Key, Value: p.Value})
	}
	return Silence{
		Matchers:  matchers,
		StartsAt:  formatTime(now),
		EndsAt:    formatTime(now.Add(duration)),
		Comment:   comment,
		CreatedBy: createdBy,
	}
}

type AlertmanagerService struct {
	client *Client
}

func (c *Client) Alertmanager() *AlertmanagerService {
	return &AlertmanagerService{client: c}
}

// PushAlerts posts alerts and returns the HTTP status of the accepted request.
func (a *AlertmanagerService) PushAlerts(ctx context.Context, alerts []PostableAlert) (int, error) {
	return a.client.do(ctx, http.MethodPost, alertmanagerPath+"/alerts", alerts, nil)
}

// CreateSilence returns the id assigned by Alertmanager, "unknown" when the
// response does not carry one.
func (a *AlertmanagerService) CreateSilence(ctx context.Context, silence Silence) (string, error) {
	var resp struct {
		SilenceID string `json:"silenceID"`
	}
	if _, err := a.client.do(ctx, http.MethodPost, alertmanagerPath+"/silences", silence, &resp); err != nil {
		return "", err
	}
	if resp.SilenceID == "" {
		return "unknown", nil
	}
	return resp.SilenceID, nil
}

func (a *AlertmanagerService) ListAlerts(ctx context.Context) ([]Alert, error) {
	var alerts []Alert
	if _, err := a.client.do(ctx, http.MethodGet, alertmanagerPath+"/alerts", nil, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// Alert is an alert as returned by the APIs, kept loosely typed so that every
// field survives printing.
type Alert map[string]any

func (a Alert) State() string {
	status, _ := a["status"].(map[string]any)
	state, _ := status["state"].(string)
	return state
}

func (a Alert) Label(name string) string {
	labels, _ := a["labels"].(map[string]any)
	value, _ := labels[name].(string)
	return value
}

func (a Alert) Annotation(name string) string {
	annotations, _ := a["annotations"].(map[string]any)
	value, _ := annotations[name].(string)
	return value
}

func (a Alert) Field(name string) string {
	value, _ := a[name].(string)
	return value
}

// FilterAlerts keeps alerts whose state, severity and system_key equal the
// given values. Empty filters match everything.
func FilterAlerts(alerts []Alert, state, severity, systemKey string) []Alert {
	return lo.Filter(alerts, func(a Alert, _ int) bool {
		if state != "" && a.State() != state {
			return false
		}
		if severity != "" && a.Label("severity") != severity {
			return false
		}
		if systemKey != "" && a.Label("system_key") != systemKey {
			return false
		}
		return true
	})
}
