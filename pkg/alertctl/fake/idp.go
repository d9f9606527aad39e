package fake

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
)

func (s *Server) registerIdentityProvider(router *gin.Engine) {
	router.GET("/oidc/.well-known/openid-configuration", s.discovery)
	router.GET("/oidc/auth", s.authorize)
	router.GET("/oidc/auth/:uid", s.resumeAuthorization)
	router.POST("/oidc/token", s.token)
	router.GET("/consent", func(c *gin.Context) {
		c.String(http.StatusOK, "consent")
	})

	api := router.Group("/api/interaction", s.requireInteraction)
	api.PUT("", s.startInteraction)
	api.PATCH("/identifiers", s.identifiers)
	api.POST("/submit", s.submit)
	api.POST("/consent", s.consent)
}

// discovery serves the Logto metadata document. The issuer is derived from
// the request host so that it matches what the client asked for.
func (s *Server) discovery(c *gin.Context) {
	if s.behavior.DisableDiscovery {
		c.String(http.StatusNotFound, "not found")
		return
	}
	issuer := "http://" + c.Request.Host + "/oidc"
	c.JSON(http.StatusOK, gin.H{
		"issuer":                                issuer,
		"authorization_endpoint":                issuer + "/auth",
		"token_endpoint":                        issuer + "/token",
		"jwks_uri":                              issuer + "/jwks",
		"response_types_supported":              []string{"code"},
		"code_challenge_methods_supported":      []string{"S256"},
		"id_token_signing_alg_values_supported": []string{"ES384"},
	})
}

func (s *Server) authorize(c *gin.Context) {
	q := c.Request.URL.Query()
	switch {
	case q.Get("client_id") != s.ClientID:
		abort(c, http.StatusBadRequest, "unknown client_id")
		return
	case q.Get("response_type") != "code":
		abort(c, http.StatusBadRequest, "unsupported response_type")
		return
	case q.Get("code_challenge_method") != "S256" || q.Get("code_challenge") == "":
		abort(c, http.StatusBadRequest, "PKCE with S256 is required")
		return
	case q.Get("redirect_uri") == "" || !strings.Contains(q.Get("scope"), "openid"):
		abort(c, http.StatusBadRequest, "invalid authorization request")
		return
	}
	in := &interaction{
		uid:         randomID(),
		redirectURI: q.Get("redirect_uri"),
		state:       q.Get("state"),
		challenge:   q.Get("code_challenge"),
	}
	s.mu.Lock()
	s.interactions[in.uid] = in
	s.mu.Unlock()

	c.SetCookie(InteractionCookie, in.uid, 600, "/", "", false, true)
	c.Redirect(http.StatusSeeOther, "/sign-in")
}

func (s *Server) requireInteraction(c *gin.Context) {
	uid, err := c.Cookie(InteractionCookie)
	if err != nil {
		abort(c, http.StatusBadRequest, "interaction session not found")
		return
	}
	s.mu.Lock()
	in, ok := s.interactions[uid]
	s.mu.Unlock()
	if !ok {
		abort(c, http.StatusBadRequest, "interaction session not found")
		return
	}
	c.Set("interaction", in)
	c.Next()
}

func current(c *gin.Context) *interaction {
	return c.MustGet("interaction").(*interaction)
}

func (s *Server) startInteraction(c *gin.Context) {
	var body struct {
		Event string `json:"event" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Event != "SignIn" {
		abort(c, http.StatusBadRequest, "unsupported interaction event")
		return
	}
	s.mu.Lock()
	current(c).signInStarted = true
	s.mu.Unlock()
	c.Status(http.StatusNoContent)
}

func (s *Server) identifiers(c *gin.Context) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		abort(c, http.StatusBadRequest, "invalid identifiers")
		return
	}
	if s.behavior.CredentialsStatus != 0 {
		c.String(s.behavior.CredentialsStatus, "boom")
		return
	}
	in := current(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !in.signInStarted {
		abort(c, http.StatusBadRequest, "interaction not started")
		return
	}
	if s.behavior.RejectCredentials || body.Email != s.Email || body.Password != s.Password {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"code":    "session.invalid_credentials",
			"message": "Invalid email or password.",
		})
		return
	}
	in.signedIn = true
	c.Status(http.StatusNoContent)
}

func (s *Server) submit(c *gin.Context) {
	in := current(c)
	s.mu.Lock()
	signedIn := in.signedIn
	s.mu.Unlock()
	if !signedIn {
		abort(c, http.StatusBadRequest, "identifiers not verified")
		return
	}
	if s.behavior.OmitRedirectTo {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, gin.H{"redirectTo": s.URL + "/oidc/auth/" + in.uid})
}

func (s *Server) consent(c *gin.Context) {
	in := current(c)
	s.mu.Lock()
	in.consentGranted = true
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"redirectTo": s.URL + "/oidc/auth/" + in.uid})
}

func (s *Server) resumeAuthorization(c *gin.Context) {
	uid, err := c.Cookie(InteractionCookie)
	if err != nil || uid != c.Param("uid") {
		abort(c, http.StatusBadRequest, "interaction session not found")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.interactions[uid]
	if !ok || !in.signedIn {
		abort(c, http.StatusBadRequest, "interaction not completed")
		return
	}
	if s.behavior.Consent && !in.consentGranted {
		c.Redirect(http.StatusSeeOther, "/consent")
		return
	}

	callback, err := url.Parse(in.redirectURI)
	if err != nil {
		abort(c, http.StatusBadRequest, "invalid redirect_uri")
		return
	}
	params := url.Values{}
	switch {
	case s.behavior.OmitCode:
		params.Set("error", "access_denied")
		params.Set("error_description", "authorization was not granted")
	default:
		if in.code == "" {
			in.code = randomID()
			s.codes[in.code] = in
		}
		params.Set("code", in.code)
	}
	state := in.state
	if s.behavior.WrongState {
		state = "forged-state"
	}
	params.Set("state", state)
	callback.RawQuery = params.Encode()
	c.Redirect(http.StatusSeeOther, callback.String())
}

func (s *Server) token(c *gin.Context) {
	if c.PostForm("grant_type") != "authorization_code" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_grant_type"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.codes[c.PostForm("code")]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_grant", "error_description": "unknown authorization code"})
		return
	}
	switch {
	case c.PostForm("client_id") != s.ClientID:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_client"})
		return
	case c.PostForm("redirect_uri") != in.redirectURI:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_grant", "error_description": "redirect_uri mismatch"})
		return
	case oauth2.S256ChallengeFromVerifier(c.PostForm("code_verifier")) != in.challenge:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_grant", "error_description": "PKCE verification failed"})
		return
	}
	delete(s.codes, in.code)

	if s.behavior.OmitAccessToken {
		c.JSON(http.StatusOK, gin.H{"token_type": "Bearer", "expires_in": 3600})
		return
	}
	accessToken := "at-" + randomID()
	s.accessTokens[accessToken] = true
	c.JSON(http.StatusOK, gin.H{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   3600,
		"scope":        "openid profile email offline_access",
	})
}
