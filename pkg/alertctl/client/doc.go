// Package client implements the HTTP clients of amctl and alertingctl: the
// Alertmanager v2 API behind the collect proxy (HTTP Basic auth with the
// system key and secret) and the MY backend API (Bearer backend token).
package client
