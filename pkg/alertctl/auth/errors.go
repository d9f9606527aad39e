package auth

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNetwork               = errors.New("network error")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrProvider              = errors.New("identity provider error")
	ErrUnexpectedResponse    = errors.New("unexpected response")
	ErrNoAuthorizationCode   = errors.New("no authorization code")
	ErrStateMismatch         = errors.New("state mismatch")
	ErrTokenExchangeFailed   = errors.New("token exchange failed")
	ErrBackendExchangeFailed = errors.New("backend token exchange failed")
)

// Step names the part of the login sequence an error belongs to.
type Step string

const (
	StepDiscovery         Step = "provider discovery"
	StepAuthorize         Step = "authorization request"
	StepStartInteraction  Step = "sign-in interaction"
	StepIdentifiers       Step = "credential submission"
	StepSubmit            Step = "sign-in submission"
	StepConsent           Step = "consent"
	StepAuthorizationCode Step = "authorization redirect"
	StepTokenExchange     Step = "token exchange"
	StepBackendExchange   Step = "backend exchange"
)

// Error is returned by Login. Kind is one of the Err* sentinels and is
// matched by errors.Is.
type Error struct {
	Kind       error
	Step       Step
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Step != "" {
		fmt.Fprintf(&b, " during %s", e.Step)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind error, step Step, status int, message string) *Error {
	return &Error{Kind: kind, Step: step, StatusCode: status, Message: strings.TrimSpace(message)}
}
