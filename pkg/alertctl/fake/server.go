package fake

import (
	"crypto/rand"
	"encoding/hex"
	"net/http/httptest"
	"sync"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	DefaultClientID     = "test-client"
	DefaultEmail        = "admin@example.com"
	DefaultPassword     = "s3cr3t"
	DefaultKey          = "NETH-TEST-0001"
	DefaultSecret       = "am-secret"
	DefaultOrganization = "org-customer"

	InteractionCookie = "_interaction"
	CollectProxyPath  = "/collect/api/services/mimir"
	BlackholeConfig   = "route:\n  receiver: blackhole\nreceivers:\n  - name: blackhole\n"
)

// Behavior switches the fake into the failure modes the client must handle.
type Behavior struct {
	Consent           bool
	RejectCredentials bool
	OmitRedirectTo    bool
	OmitCode          bool
	WrongState        bool
	OmitAccessToken   bool
	OmitBackendToken  bool
	OmitSilenceID     bool
	// CredentialsStatus, when set, is returned with a plain text body by
	// the credential submission instead of checking the credentials.
	CredentialsStatus int
	DisableDiscovery  bool
	// OrgRole of the signed-in user, Customer when empty.
	OrgRole string
}

type Server struct {
	*httptest.Server

	ClientID string
	Email    string
	Password string
	Key      string
	Secret   string

	behavior   Behavior
	signingKey []byte

	mu            sync.Mutex
	requests      []string
	interactions  map[string]*interaction
	codes         map[string]*interaction
	accessTokens  map[string]bool
	configs       map[string]string
	configBodies  [][]byte
	pushed        []map[string]any
	silences      []map[string]any
	amAlerts      []map[string]any
	backendAlerts []map[string]any
}

type interaction struct {
	uid            string
	redirectURI    string
	state          string
	challenge      string
	signInStarted  bool
	signedIn       bool
	consentGranted bool
	code           string
}

// NewServer starts a fake stack. Callers must Close it.
func NewServer(behavior Behavior, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if behavior.OrgRole == "" {
		behavior.OrgRole = "Customer"
	}
	s := &Server{
		ClientID:     DefaultClientID,
		Email:        DefaultEmail,
		Password:     DefaultPassword,
		Key:          DefaultKey,
		Secret:       DefaultSecret,
		behavior:     behavior,
		signingKey:   []byte(randomID()),
		interactions: map[string]*interaction{},
		codes:        map[string]*interaction{},
		accessTokens: map[string]bool{},
		configs:      map[string]string{},
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true), gin.Recovery(), s.recordRequest)
	s.registerIdentityProvider(router)
	s.registerBackend(router.Group("/backend/api"))
	accounts := gin.Accounts{s.Key: s.Secret}
	s.registerAlertmanager(router.Group("/alertmanager/api/v2", gin.BasicAuth(accounts)))
	s.registerAlertmanager(router.Group(CollectProxyPath+"/alertmanager/api/v2", gin.BasicAuth(accounts)))

	s.Server = httptest.NewServer(router)
	return s
}

func (s *Server) recordRequest(c *gin.Context) {
	s.mu.Lock()
	s.requests = append(s.requests, c.Request.Method+" "+c.Request.URL.Path)
	s.mu.Unlock()
	c.Next()
}

// Requests returns "METHOD /path" for every request received so far.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *Server) PushedAlerts() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.pushed...)
}

func (s *Server) Silences() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.silences...)
}

// ConfigBodies returns the raw bodies posted to the alerting config endpoint.
func (s *Server) ConfigBodies() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.configBodies...)
}

func (s *Server) Config(org string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configs[org]
}

func (s *Server) SetConfig(org, config string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[org] = config
}

// SetAlertmanagerAlerts sets what GET /alertmanager/api/v2/alerts returns.
func (s *Server) SetAlertmanagerAlerts(alerts []map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.amAlerts = alerts
}

// SetBackendAlerts sets the alerts the backend filters and returns.
func (s *Server) SetBackendAlerts(alerts []map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backendAlerts = alerts
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, gin.H{"code": status, "message": message, "data": data})
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"code": status, "message": message, "data": nil})
}

func randomID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
