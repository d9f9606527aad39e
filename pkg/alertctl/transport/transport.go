// Package transport builds the http.RoundTripper shared by the login flow and
// the REST clients: TLS settings, request ids, debug logging and metrics.
package transport

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nethesis/alerting-cli/pkg/alertctl/metrics"
	"github.com/nethesis/alerting-cli/pkg/system"
)

const RequestIDHeader = "X-Request-ID"

func LoadTLSConfig(caFile string, insecure bool) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: insecure} // #nosec G402 -- opt-in via --insecure-skip-tls-verify
	if caFile == "" {
		return tlsConfig, nil
	}
	data, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if ok := pool.AppendCertsFromPEM(data); !ok {
		return nil, errors.New("failed to parse CA file")
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}

// Base returns a clone of http.DefaultTransport using the given TLS settings.
func Base(caFile string, insecure bool) (*http.Transport, error) {
	tlsConfig, err := LoadTLSConfig(caFile, insecure)
	if err != nil {
		return nil, err
	}
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.TLSClientConfig = tlsConfig
	return base, nil
}

// Wrap layers request ids and debug logging on top of next, instrumented by
// rec when it is non-nil. A nil next means http.DefaultTransport.
func Wrap(next http.RoundTripper, logger *zap.Logger, rec *metrics.Recorder) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &loggingRoundTripper{
		next:   rec.InstrumentRoundTripper(next),
		logger: logger.Sugar(),
	}
}

type loggingRoundTripper struct {
	next   http.RoundTripper
	logger *zap.SugaredLogger
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	requestID := req.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
		req = req.Clone(req.Context())
		req.Header.Set(RequestIDHeader, requestID)
	}

	fields := system.RequestFields(req.Method, req.URL, requestID)
	t.logger.Debugw("Sending request", fields...)

	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	elapsed := time.Since(start)
	if err != nil {
		t.logger.Debugw("Request failed", append(fields, "duration", elapsed, "error", err)...)
		return nil, err
	}
	t.logger.Debugw("Received response", append(fields, "status", resp.StatusCode, "duration", elapsed)...)
	return resp, nil
}
