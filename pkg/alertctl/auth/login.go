package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	DefaultEndpoint = "https://qa.id.nethesis.it"
	DefaultClientID = "amz2744kof0iq3a6i7csu"
	DefaultTimeout  = 30 * time.Second

	RedirectPath = "/login-redirect"
	BackendPath  = "/backend/api"
)

// DefaultScopes are requested when Provider.Scopes is empty.
var DefaultScopes = []string{
	oidc.ScopeOpenID,
	"profile",
	"email",
	oidc.ScopeOfflineAccess,
	"urn:logto:scope:organizations",
	"urn:logto:scope:organization_roles",
}

type Provider struct {
	Endpoint string
	ClientID string
	Scopes   []string
	// Discover reads the endpoints from {Endpoint}/oidc/.well-known/openid-configuration
	// instead of assuming the Logto layout.
	Discover bool
}

type Options struct {
	BaseURL  string
	Email    string
	Password string
	Provider Provider
	Timeout  time.Duration
	// Transport is the base round tripper, http.DefaultTransport when nil.
	Transport http.RoundTripper
	Logger    *zap.Logger
	// SkipStateCheck disables the comparison of an echoed state parameter.
	SkipStateCheck bool
}

type Result struct {
	Token string
}

// BackendURL returns the backend API root for a base URL.
func BackendURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + BackendPath
}

func (o Options) withDefaults() Options {
	o.BaseURL = strings.TrimRight(strings.TrimSpace(o.BaseURL), "/")
	o.Provider.Endpoint = strings.TrimRight(strings.TrimSpace(o.Provider.Endpoint), "/")
	if o.Provider.Endpoint == "" {
		o.Provider.Endpoint = DefaultEndpoint
	}
	if o.Provider.ClientID == "" {
		o.Provider.ClientID = DefaultClientID
	}
	if len(o.Provider.Scopes) == 0 {
		o.Provider.Scopes = DefaultScopes
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

func (o Options) validate() error {
	switch {
	case o.BaseURL == "":
		return errors.New("base URL is required")
	case o.Email == "":
		return errors.New("email is required")
	case o.Password == "":
		return errors.New("password is required")
	}
	return nil
}

type flow struct {
	opts       Options
	session    *session
	pkce       *PKCE
	oauth      oauth2.Config
	backendURL string
	logger     *zap.SugaredLogger
}

// Login runs the full sign-in sequence and returns the backend token.
// Every failure is an *Error; nothing is retried.
func Login(ctx context.Context, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	f, err := newFlow(ctx, opts)
	if err != nil {
		return nil, err
	}

	if err := f.authorize(ctx); err != nil {
		return nil, err
	}
	if err := f.startInteraction(ctx); err != nil {
		return nil, err
	}
	if err := f.submitIdentifiers(ctx); err != nil {
		return nil, err
	}
	redirectTo, err := f.submitInteraction(ctx)
	if err != nil {
		return nil, err
	}
	target, err := f.handleConsent(ctx, redirectTo)
	if err != nil {
		return nil, err
	}
	code, err := f.authorizationCode(ctx, target)
	if err != nil {
		return nil, err
	}
	accessToken, err := f.exchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	token, err := f.exchangeBackendToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	f.logger.Debugw("Login completed", "email", opts.Email)
	return &Result{Token: token}, nil
}

func newFlow(ctx context.Context, opts Options) (*flow, error) {
	pkce, err := NewPKCE()
	if err != nil {
		return nil, err
	}
	s, err := newSession(opts)
	if err != nil {
		return nil, err
	}
	provider, err := discoverProvider(ctx, s, opts.Provider)
	if err != nil {
		return nil, err
	}
	endpoint := provider.Endpoint()
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	return &flow{
		opts:    opts,
		session: s,
		pkce:    pkce,
		oauth: oauth2.Config{
			ClientID:    opts.Provider.ClientID,
			Endpoint:    endpoint,
			RedirectURL: opts.BaseURL + RedirectPath,
			Scopes:      opts.Provider.Scopes,
		},
		backendURL: BackendURL(opts.BaseURL),
		logger:     opts.Logger.Sugar(),
	}, nil
}

// discoverProvider returns the OIDC provider of p. Without discovery the
// endpoints follow the Logto layout under {Endpoint}/oidc.
func discoverProvider(ctx context.Context, s *session, p Provider) (*oidc.Provider, error) {
	issuer := p.Endpoint + "/oidc"
	if !p.Discover {
		return (&oidc.ProviderConfig{
			IssuerURL: issuer,
			AuthURL:   issuer + "/auth",
			TokenURL:  issuer + "/token",
		}).NewProvider(ctx), nil
	}
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, s.http), issuer)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return nil, &Error{Kind: ErrNetwork, Step: StepDiscovery, Err: err}
		}
		return nil, &Error{Kind: ErrProvider, Step: StepDiscovery, Err: err}
	}
	return provider, nil
}

func (f *flow) interactionURL(path string) string {
	return f.opts.Provider.Endpoint + "/api/interaction" + path
}

func (f *flow) authorize(ctx context.Context) error {
	authURL := f.oauth.AuthCodeURL(f.pkce.State, oauth2.S256ChallengeOption(f.pkce.Verifier))
	r, err := f.session.send(ctx, StepAuthorize, http.MethodGet, authURL, nil)
	if err != nil {
		return err
	}
	if r.StatusCode >= 400 {
		return r.providerError(StepAuthorize)
	}
	return nil
}

func (f *flow) startInteraction(ctx context.Context) error {
	r, err := f.session.send(ctx, StepStartInteraction, http.MethodPut, f.interactionURL(""), map[string]string{"event": "SignIn"})
	if err != nil {
		return err
	}
	if r.StatusCode >= 400 {
		return r.providerError(StepStartInteraction)
	}
	return nil
}

func (f *flow) submitIdentifiers(ctx context.Context) error {
	body := map[string]string{"email": f.opts.Email, "password": f.opts.Password}
	r, err := f.session.send(ctx, StepIdentifiers, http.MethodPatch, f.interactionURL("/identifiers"), body)
	if err != nil {
		return err
	}
	if r.StatusCode == http.StatusUnprocessableEntity {
		return newError(ErrInvalidCredentials, StepIdentifiers, r.StatusCode, r.message())
	}
	if r.failed() {
		return r.providerError(StepIdentifiers)
	}
	return nil
}

func (f *flow) submitInteraction(ctx context.Context) (string, error) {
	r, err := f.session.send(ctx, StepSubmit, http.MethodPost, f.interactionURL("/submit"), nil)
	if err != nil {
		return "", err
	}
	if r.failed() {
		return "", r.providerError(StepSubmit)
	}
	redirectTo := gjson.GetBytes(r.Body, "redirectTo").String()
	if redirectTo == "" {
		return "", newError(ErrUnexpectedResponse, StepSubmit, r.StatusCode, "missing redirectTo: "+string(r.Body))
	}
	return redirectTo, nil
}

// handleConsent follows redirectTo once. When the provider asks for consent
// it is granted and the consent redirect becomes the new target; otherwise
// redirectTo is returned unchanged.
func (f *flow) handleConsent(ctx context.Context, redirectTo string) (string, error) {
	r, err := f.session.send(ctx, StepConsent, http.MethodGet, redirectTo, nil)
	if err != nil {
		return "", err
	}
	if !strings.Contains(r.Header.Get("Location"), "consent") {
		return redirectTo, nil
	}
	consentURL, err := r.location()
	if err != nil {
		return "", &Error{Kind: ErrUnexpectedResponse, Step: StepConsent, Message: "invalid consent location", Err: err}
	}
	f.logger.Debugw("Granting consent", "url", consentURL.Path)
	if _, err := f.session.send(ctx, StepConsent, http.MethodGet, consentURL.String(), nil); err != nil {
		return "", err
	}
	r, err = f.session.send(ctx, StepConsent, http.MethodPost, f.interactionURL("/consent"), nil)
	if err != nil {
		return "", err
	}
	if r.failed() {
		return "", r.providerError(StepConsent)
	}
	next := gjson.GetBytes(r.Body, "redirectTo").String()
	if next == "" {
		return "", newError(ErrUnexpectedResponse, StepConsent, r.StatusCode, "missing redirectTo: "+string(r.Body))
	}
	return next, nil
}

func (f *flow) authorizationCode(ctx context.Context, target string) (string, error) {
	r, err := f.session.send(ctx, StepAuthorizationCode, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	callback, err := r.location()
	if err != nil || callback == nil {
		return "", newError(ErrNoAuthorizationCode, StepAuthorizationCode, r.StatusCode, "redirect has no location")
	}
	query := callback.Query()
	code := query.Get("code")
	if code == "" {
		msg := "no code in " + redactQuery(callback)
		if oauthErr := query.Get("error"); oauthErr != "" {
			msg = strings.TrimSpace(oauthErr + " " + query.Get("error_description"))
		}
		return "", newError(ErrNoAuthorizationCode, StepAuthorizationCode, r.StatusCode, msg)
	}
	if !f.opts.SkipStateCheck && query.Has("state") && query.Get("state") != f.pkce.State {
		return "", newError(ErrStateMismatch, StepAuthorizationCode, 0, "returned state does not match the request")
	}
	return code, nil
}

func (f *flow) exchangeCode(ctx context.Context, code string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.session.http)
	token, err := f.oauth.Exchange(ctx, code, oauth2.VerifierOption(f.pkce.Verifier))
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return "", &Error{Kind: ErrNetwork, Step: StepTokenExchange, Err: err}
		}
		e := &Error{Kind: ErrTokenExchangeFailed, Step: StepTokenExchange, Err: err}
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			e.StatusCode = retrieveErr.Response.StatusCode
		}
		return "", e
	}
	if token.AccessToken == "" {
		return "", newError(ErrTokenExchangeFailed, StepTokenExchange, 0, "missing access_token")
	}
	return token.AccessToken, nil
}

func (f *flow) exchangeBackendToken(ctx context.Context, accessToken string) (string, error) {
	r, err := f.session.send(ctx, StepBackendExchange, http.MethodPost, f.backendURL+"/auth/exchange",
		map[string]string{"access_token": accessToken})
	if err != nil {
		return "", err
	}
	token := gjson.GetBytes(r.Body, "data.token").String()
	if r.failed() || token == "" {
		return "", newError(ErrBackendExchangeFailed, StepBackendExchange, r.StatusCode, r.message())
	}
	return token, nil
}

func redactQuery(u *url.URL) string {
	clean := *u
	clean.RawQuery = ""
	return fmt.Sprintf("%q", clean.String())
}
