package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/nethesis/alerting-cli/pkg/alertctl/metrics"
	"github.com/nethesis/alerting-cli/pkg/system"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr bool
	}{
		{
			name:    "missing server",
			opts:    []Option{},
			wantErr: true,
		},
		{
			name:    "invalid scheme",
			opts:    []Option{WithServer("ftp://example.com")},
			wantErr: true,
		},
		{
			name: "bearer token",
			opts: []Option{
				WithServer("https://example.com"),
				WithToken("test-token"),
			},
		},
		{
			name: "basic auth",
			opts: []Option{
				WithServer("https://example.com/collect/api/services/mimir/"),
				WithBasicAuth("NETH-KEY", "secret"),
				WithTimeout(5 * time.Second),
			},
		},
		{
			name: "basic auth without secret",
			opts: []Option{
				WithServer("https://example.com"),
				WithBasicAuth("NETH-KEY", ""),
			},
			wantErr: true,
		},
		{
			name: "missing CA file",
			opts: []Option{
				WithServer("https://example.com"),
				WithTLSConfig("/does/not/exist.pem", false),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.opts...)
			if tt.wantErr {
				require.Error(t, err)
				require.Nil(t, client)
			} else {
				require.NoError(t, err)
				require.NotNil(t, client)
			}
		})
	}
}

func TestClientDoSendsHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "/base/api/thing", r.URL.Path)
		assert.Equal(t, "a=1", r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer server.Close()

	c, err := New(WithServer(server.URL+"/base"), WithToken("test-token"), WithUserAgent("test-agent"))
	require.NoError(t, err)

	var out map[string]string
	status, err := c.do(context.Background(), http.MethodGet, "api/thing?a=1", nil, &out)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", out["status"])
}

func TestClientDoSendsRawBodyUntouched(t *testing.T) {
	document := json.RawMessage("{\n  \"critical\": {\"emails\": [\"a@b.it\"], \"x-extra\": \"<kept>\"}\n}\n")
	var received []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received, _ = io.ReadAll(r.Body)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c, err := New(WithServer(server.URL))
	require.NoError(t, err)
	_, err = c.do(context.Background(), http.MethodPost, "config", document, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte(document), received)
}

func TestDecodeError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{name: "backend message", status: http.StatusBadRequest, body: `{"code":400,"message":"organization_id query parameter is required","data":null}`, message: "organization_id query parameter is required"},
		{name: "error field", status: http.StatusForbidden, body: `{"error":"forbidden"}`, message: "forbidden"},
		{name: "plain text", status: http.StatusBadGateway, body: "upstream unavailable\n", message: "upstream unavailable"},
		{name: "empty body", status: http.StatusInternalServerError, body: "", message: "500 Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c, err := New(WithServer(server.URL))
			require.NoError(t, err)
			status, err := c.do(context.Background(), http.MethodGet, "x", nil, nil)
			require.Error(t, err)
			assert.Equal(t, tt.status, status)

			var httpErr *HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, tt.status, httpErr.StatusCode)
			assert.Equal(t, tt.message, httpErr.Message)
		})
	}
}

func TestClientNetworkError(t *testing.T) {
	mock := httpmock.NewMockTransport()
	mock.RegisterResponder(http.MethodGet, "https://am.example.test/alertmanager/api/v2/alerts",
		httpmock.NewErrorResponder(errors.New("connection refused")))

	c, err := New(WithServer("https://am.example.test"), WithBasicAuth("k", "s"), WithTransport(mock))
	require.NoError(t, err)

	_, err = c.Alertmanager().ListAlerts(context.Background())
	require.Error(t, err)

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.MethodGet, netErr.Method)
	assert.Equal(t, "GET https://am.example.test/alertmanager/api/v2/alerts failed: connection refused", err.Error())
	assert.Equal(t, 1, mock.GetCallCountInfo()["GET https://am.example.test/alertmanager/api/v2/alerts"])
}

func TestClientLogsAndMeasuresRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	logger, logs := system.NewObservedLogger(zapcore.DebugLevel)
	rec := metrics.NewRecorder("test")
	c, err := New(WithServer(server.URL), WithLogger(logger), WithMetrics(rec))
	require.NoError(t, err)

	_, err = c.do(context.Background(), http.MethodPost, "x", map[string]string{"a": "b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("Received response").Len())

	families, err := rec.Gatherer().Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "alertctl_http_requests_total")
}
