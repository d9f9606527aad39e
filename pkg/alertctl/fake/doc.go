// Package fake serves an in-process identity provider, backend and
// Alertmanager proxy with gin so the login flow and both CLIs can be tested
// end to end. It records the order of requests, enforces the interaction
// cookie and PKCE proof, and keeps the payloads it received.
package fake
