package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v4"
	"github.com/spf13/cobra"

	"github.com/nethesis/alerting-cli/pkg/alertctl/auth"
	"github.com/nethesis/alerting-cli/pkg/alertctl/client"
	"github.com/nethesis/alerting-cli/pkg/alertctl/config"
	"github.com/nethesis/alerting-cli/pkg/alertctl/output"
	"github.com/nethesis/alerting-cli/pkg/alertctl/transport"
	"github.com/nethesis/alerting-cli/pkg/version"
)

const alertingctlEnvPrefix = "ALERTINGCTL"

var backendAlertStates = []string{"active", "suppressed", "unprocessed"}

type alertingctlFlags struct {
	url          string
	email        string
	password     string
	passwordEnv  string
	passwordFile string
	idpURL       string
	clientID     string
	idpDiscover  bool
}

// NewAlertingctlCommand builds the alertingctl command tree. Every
// subcommand signs in first and talks to the backend with the resulting token.
func NewAlertingctlCommand(cfg Config) *cobra.Command {
	root, _ := newRootCommand("alertingctl", alertingctlEnvPrefix, cfg)
	root.Short = "Manage the alerting configuration of an organization"

	f := &alertingctlFlags{}
	flags := root.PersistentFlags()
	flags.StringVar(&f.url, "url", "", "Base URL of the platform, e.g. https://my.nethesis.it (env ALERTINGCTL_URL)")
	flags.StringVar(&f.email, "email", "", "Login email (env ALERTINGCTL_EMAIL)")
	flags.StringVar(&f.password, "password", "", "Login password (env ALERTINGCTL_PASSWORD)")
	flags.StringVar(&f.passwordEnv, "password-env", "", "Name of the environment variable holding the password")
	flags.StringVar(&f.passwordFile, "password-file", "", "File holding the password")
	flags.StringVar(&f.idpURL, "idp-url", "", "Identity provider endpoint (env ALERTINGCTL_IDP_URL)")
	flags.StringVar(&f.clientID, "client-id", "", "OIDC client id (env ALERTINGCTL_CLIENT_ID)")
	flags.BoolVar(&f.idpDiscover, "idp-discover", false, "Read the identity provider endpoints from its discovery document")

	root.AddCommand(
		newConfigGetCommand(f),
		newConfigSetCommand(f),
		newConfigDeleteCommand(f),
		newAlertsCommand(f),
		newWhoamiCommand(f),
		newTokenCommand(f),
		NewCompletionCommand(),
		NewVersionCommand(),
	)
	return root
}

type backendSession struct {
	token        string
	organization string
	client       *client.Client
}

func (rt *runtimeState) login(cmd *cobra.Command, f *alertingctlFlags) (*backendSession, error) {
	ctx, err := rt.ResolveContext()
	if err != nil {
		return nil, err
	}
	var (
		ctxURL, ctxEmail, ctxOrg string
		idp                      config.IdentityProvider
	)
	if ctx != nil {
		ctxURL, ctxEmail, ctxOrg = ctx.URL, ctx.Email, ctx.Organization
		if ctx.IdentityProvider != nil {
			idp = *ctx.IdentityProvider
		}
	}

	env := func(name string) string { return os.Getenv(alertingctlEnvPrefix + "_" + name) }
	baseURL := firstNonEmpty(f.url, env("URL"), ctxURL)
	if err := required(baseURL, "url", alertingctlEnvPrefix+"_URL"); err != nil {
		return nil, err
	}
	email := firstNonEmpty(f.email, env("EMAIL"), ctxEmail)
	if err := required(email, "email", alertingctlEnvPrefix+"_EMAIL"); err != nil {
		return nil, err
	}
	password, err := rt.resolveSecret(secretSource{
		flag:     f.password,
		flagEnv:  f.passwordEnv,
		flagFile: f.passwordFile,
		env:      alertingctlEnvPrefix + "_PASSWORD",
		ctx:      ctx,
		fromCtx: func(c *config.Context) (string, string, string) {
			return c.Password, c.PasswordEnv, c.PasswordFile
		},
		prompt: fmt.Sprintf("Password for %s:", email),
		name:   "password",
	})
	if err != nil {
		return nil, err
	}

	base, err := rt.baseTransport(ctx)
	if err != nil {
		return nil, err
	}
	result, err := auth.Login(cmd.Context(), auth.Options{
		BaseURL:  baseURL,
		Email:    email,
		Password: password,
		Provider: auth.Provider{
			Endpoint: firstNonEmpty(f.idpURL, env("IDP_URL"), idp.Endpoint),
			ClientID: firstNonEmpty(f.clientID, env("CLIENT_ID"), idp.ClientID),
			Scopes:   idp.Scopes,
			Discover: f.idpDiscover || idp.Discover,
		},
		Timeout:   rt.Timeout(),
		Transport: transport.Wrap(base, rt.logger, rt.metrics),
		Logger:    rt.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	c, err := client.New(
		client.WithServer(baseURL),
		client.WithToken(result.Token),
		client.WithTimeout(rt.Timeout()),
		client.WithTransport(base),
		client.WithUserAgent(version.UserAgent(rt.binary)),
		client.WithLogger(rt.logger),
		client.WithMetrics(rt.metrics),
	)
	if err != nil {
		return nil, err
	}
	return &backendSession{token: result.Token, organization: ctxOrg, client: c}, nil
}

func (s *backendSession) org(flag string) string {
	return firstNonEmpty(flag, s.organization)
}

func addOrgFlag(cmd *cobra.Command, org *string) {
	cmd.Flags().StringVar(org, "org", "", "Organization id, required unless the user is a Customer")
}

func newConfigGetCommand(f *alertingctlFlags) *cobra.Command {
	var org string
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print the alerting configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			s, err := rt.login(cmd, f)
			if err != nil {
				return err
			}
			text, err := s.client.Backend().GetAlertingConfig(cmd.Context(), s.org(org))
			if err != nil {
				return fmt.Errorf("failed to get alerting configuration: %w", err)
			}
			_, err = fmt.Fprintln(rt.Writer(), text)
			return err
		},
	}
	addOrgFlag(cmd, &org)
	return cmd
}

func newConfigSetCommand(f *alertingctlFlags) *cobra.Command {
	var (
		org            string
		file           string
		skipValidation bool
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Replace the alerting configuration with a JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}
			if !json.Valid(data) {
				return fmt.Errorf("%s is not valid JSON", file)
			}
			if !skipValidation {
				doc, err := client.ParseAlertingConfig(data)
				if err != nil {
					return err
				}
				if err := doc.Validate(); err != nil {
					return err
				}
			}
			s, err := rt.login(cmd, f)
			if err != nil {
				return err
			}
			if err := s.client.Backend().SetAlertingConfig(cmd.Context(), s.org(org), data); err != nil {
				return fmt.Errorf("failed to update alerting configuration: %w", err)
			}
			_, err = fmt.Fprintln(rt.Writer(), "Alerting configuration updated successfully.")
			return err
		},
	}
	addOrgFlag(cmd, &org)
	cmd.Flags().StringVar(&file, "config", "", "JSON file with the alerting configuration")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagFilename("config", "json")
	cmd.Flags().BoolVar(&skipValidation, "skip-validation", false, "Send the document without checking severities, emails and webhooks")
	return cmd
}

func newConfigDeleteCommand(f *alertingctlFlags) *cobra.Command {
	var org string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Disable every alert of the organization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			s, err := rt.login(cmd, f)
			if err != nil {
				return err
			}
			if err := s.client.Backend().DeleteAlertingConfig(cmd.Context(), s.org(org)); err != nil {
				return fmt.Errorf("failed to delete alerting configuration: %w", err)
			}
			_, err = fmt.Fprintln(rt.Writer(), "All alerts disabled successfully.")
			return err
		},
	}
	addOrgFlag(cmd, &org)
	return cmd
}

func newAlertsCommand(f *alertingctlFlags) *cobra.Command {
	var org, state, severity, systemKey string
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List alerts of the organization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := validateChoice("state", state, backendAlertStates); err != nil {
				return err
			}
			if err := validateChoice("severity", severity, client.Severities); err != nil {
				return err
			}
			s, err := rt.login(cmd, f)
			if err != nil {
				return err
			}
			alerts, err := s.client.Backend().ListAlerts(cmd.Context(), client.AlertQuery{
				Organization: s.org(org),
				State:        state,
				Severity:     severity,
				SystemKey:    systemKey,
			})
			if err != nil {
				return fmt.Errorf("failed to list alerts: %w", err)
			}
			return rt.renderAlerts(alerts)
		},
	}
	addOrgFlag(cmd, &org)
	cmd.Flags().StringVar(&state, "state", "", "Alert state: active, suppressed or unprocessed")
	cmd.Flags().StringVar(&severity, "severity", "", "Severity: critical, warning or info")
	cmd.Flags().StringVar(&systemKey, "system-key", "", "Only alerts of this system")
	_ = cmd.RegisterFlagCompletionFunc("state", cobra.FixedCompletions(backendAlertStates, cobra.ShellCompDirectiveNoFileComp))
	_ = cmd.RegisterFlagCompletionFunc("severity", cobra.FixedCompletions(client.Severities, cobra.ShellCompDirectiveNoFileComp))
	return cmd
}

func newWhoamiCommand(f *alertingctlFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user and organization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			s, err := rt.login(cmd, f)
			if err != nil {
				return err
			}
			user, err := s.client.Backend().Me(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get user: %w", err)
			}
			return rt.render(user, func() {
				output.WriteUserTable(rt.Writer(), user)
			})
		},
	}
}

func newTokenCommand(f *alertingctlFlags) *cobra.Command {
	var decode bool
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign in and print the backend token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			s, err := rt.login(cmd, f)
			if err != nil {
				return err
			}
			if !decode {
				_, err = fmt.Fprintln(rt.Writer(), s.token)
				return err
			}
			claims := jwt.MapClaims{}
			if _, _, err := jwt.NewParser().ParseUnverified(s.token, claims); err != nil {
				return fmt.Errorf("failed to decode token: %w", err)
			}
			return rt.render(claims, nil)
		},
	}
	cmd.Flags().BoolVar(&decode, "decode", false, "Print the token claims instead of the token (signature not verified)")
	return cmd
}
