package fake

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/golang-jwt/jwt/v4"
	"gopkg.in/yaml.v3"
)

// User mirrors the user object the backend embeds in its tokens.
type User struct {
	ID               string   `json:"id"`
	Username         string   `json:"username"`
	Email            string   `json:"email"`
	Name             string   `json:"name"`
	UserRoles        []string `json:"user_roles"`
	OrgRole          string   `json:"org_role"`
	OrganizationID   string   `json:"organization_id"`
	OrganizationName string   `json:"organization_name"`
}

type Claims struct {
	User User `json:"user"`
	jwt.RegisteredClaims
}

type webhookConfig struct {
	Name string `json:"name" binding:"required"`
	URL  string `json:"url" binding:"required,url"`
}

type severityConfig struct {
	Emails     []string        `json:"emails" binding:"required,min=1,dive,email"`
	Webhooks   []webhookConfig `json:"webhooks,omitempty" binding:"dive"`
	Exceptions []string        `json:"exceptions,omitempty"`
}

var severities = map[string]bool{"critical": true, "warning": true, "info": true}

func (s *Server) registerBackend(api *gin.RouterGroup) {
	api.POST("/auth/exchange", s.exchange)

	authed := api.Group("", s.requireBearer)
	authed.GET("/me", func(c *gin.Context) {
		respond(c, http.StatusOK, "user retrieved successfully", currentUser(c))
	})
	authed.GET("/alerting/config", s.getConfig)
	authed.POST("/alerting/config", s.setConfig)
	authed.DELETE("/alerting/config", s.deleteConfig)
	authed.GET("/alerting/alerts", s.listBackendAlerts)
}

// User returns the identity the backend issues tokens for.
func (s *Server) User() User {
	return User{
		ID:               "user-1",
		Username:         "admin",
		Email:            s.Email,
		Name:             "Admin",
		UserRoles:        []string{"Admin"},
		OrgRole:          s.behavior.OrgRole,
		OrganizationID:   DefaultOrganization,
		OrganizationName: "Customer Inc.",
	}
}

func (s *Server) exchange(c *gin.Context) {
	var body struct {
		AccessToken string `json:"access_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respond(c, http.StatusBadRequest, "access_token is required", nil)
		return
	}
	s.mu.Lock()
	known := s.accessTokens[body.AccessToken]
	s.mu.Unlock()
	if !known {
		respond(c, http.StatusUnauthorized, "invalid access token", nil)
		return
	}
	if s.behavior.OmitBackendToken {
		respond(c, http.StatusOK, "token exchanged successfully", gin.H{})
		return
	}
	token, err := s.IssueToken()
	if err != nil {
		respond(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	respond(c, http.StatusOK, "token exchanged successfully", gin.H{
		"token":      token,
		"expires_in": 86400,
		"user":       s.User(),
	})
}

// IssueToken mints a backend token for User, bypassing the login flow.
func (s *Server) IssueToken() (string, error) {
	now := time.Now()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		User: s.User(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "my.nethesis.it",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
		},
	}).SignedString(s.signingKey)
}

func (s *Server) requireBearer(c *gin.Context) {
	raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok {
		abort(c, http.StatusUnauthorized, "authorization header required")
		return
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		abort(c, http.StatusUnauthorized, "invalid token")
		return
	}
	c.Set("user", claims.User)
	c.Next()
}

func currentUser(c *gin.Context) User {
	return c.MustGet("user").(User)
}

// resolveOrg applies the backend rule: customers always act on their own
// organization, every other role must name one.
func resolveOrg(c *gin.Context) (string, bool) {
	user := currentUser(c)
	if strings.EqualFold(user.OrgRole, "customer") {
		return user.OrganizationID, true
	}
	org := c.Query("organization_id")
	if org == "" {
		respond(c, http.StatusBadRequest, "organization_id query parameter is required", nil)
		return "", false
	}
	return org, true
}

func (s *Server) getConfig(c *gin.Context) {
	org, ok := resolveOrg(c)
	if !ok {
		return
	}
	s.mu.Lock()
	config, found := s.configs[org]
	s.mu.Unlock()
	if !found {
		config = BlackholeConfig
	}
	respond(c, http.StatusOK, "alerting configuration retrieved successfully", gin.H{"config": config})
}

func (s *Server) setConfig(c *gin.Context) {
	org, ok := resolveOrg(c)
	if !ok {
		return
	}
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respond(c, http.StatusBadRequest, "invalid request body: "+err.Error(), nil)
		return
	}
	s.mu.Lock()
	s.configBodies = append(s.configBodies, raw)
	s.mu.Unlock()

	var req map[string]severityConfig
	if err := json.Unmarshal(raw, &req); err != nil {
		respond(c, http.StatusBadRequest, "invalid request body: "+err.Error(), nil)
		return
	}
	for key, cfg := range req {
		if !severities[key] {
			respond(c, http.StatusBadRequest, "invalid severity level: "+key+". allowed: critical, warning, info", nil)
			return
		}
		if err := binding.Validator.ValidateStruct(&cfg); err != nil {
			respond(c, http.StatusBadRequest, "invalid request body: "+err.Error(), nil)
			return
		}
	}
	rendered, err := yaml.Marshal(req)
	if err != nil {
		respond(c, http.StatusInternalServerError, "failed to render alertmanager config: "+err.Error(), nil)
		return
	}
	s.SetConfig(org, string(rendered))
	respond(c, http.StatusOK, "alerting configuration updated successfully", nil)
}

func (s *Server) deleteConfig(c *gin.Context) {
	org, ok := resolveOrg(c)
	if !ok {
		return
	}
	s.SetConfig(org, BlackholeConfig)
	respond(c, http.StatusOK, "all alerts disabled successfully", nil)
}

func (s *Server) listBackendAlerts(c *gin.Context) {
	if _, ok := resolveOrg(c); !ok {
		return
	}
	var params struct {
		State     string `form:"state"`
		Severity  string `form:"severity"`
		SystemKey string `form:"system_key"`
	}
	_ = c.ShouldBindQuery(&params)

	s.mu.Lock()
	all := append([]map[string]any(nil), s.backendAlerts...)
	s.mu.Unlock()

	alerts := make([]map[string]any, 0, len(all))
	for _, alert := range all {
		status, _ := alert["status"].(map[string]any)
		labels, _ := alert["labels"].(map[string]any)
		if params.State != "" && status["state"] != params.State {
			continue
		}
		if params.Severity != "" && labels["severity"] != params.Severity {
			continue
		}
		if params.SystemKey != "" && labels["system_key"] != params.SystemKey {
			continue
		}
		alerts = append(alerts, alert)
	}
	respond(c, http.StatusOK, "alerts retrieved successfully", gin.H{"alerts": alerts})
}
