package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nethesis/alerting-cli/pkg/alertctl/client"
	"github.com/nethesis/alerting-cli/pkg/alertctl/config"
	"github.com/nethesis/alerting-cli/pkg/version"
)

const amctlEnvPrefix = "AMCTL"

var alertStates = []string{"active", "suppressed", "unprocessed"}

type amctlFlags struct {
	url        string
	key        string
	secret     string
	secretEnv  string
	secretFile string
}

// NewAmctlCommand builds the amctl command tree, which pushes, resolves,
// silences and lists alerts on the Alertmanager behind the collect proxy.
func NewAmctlCommand(cfg Config) *cobra.Command {
	root, _ := newRootCommand("amctl", amctlEnvPrefix, cfg)
	root.Short = "Manage Alertmanager alerts and silences of a system"

	f := &amctlFlags{}
	flags := root.PersistentFlags()
	flags.StringVar(&f.url, "url", "", "Base URL of the collect proxy, e.g. https://my.nethesis.it/collect/api/services/mimir (env AMCTL_URL)")
	flags.StringVar(&f.key, "key", "", "System key used as HTTP Basic username (env AMCTL_KEY)")
	flags.StringVar(&f.secret, "secret", "", "System secret used as HTTP Basic password (env AMCTL_SECRET)")
	flags.StringVar(&f.secretEnv, "secret-env", "", "Name of the environment variable holding the secret")
	flags.StringVar(&f.secretFile, "secret-file", "", "File holding the secret")

	root.AddCommand(
		newPushCommand(f),
		newResolveCommand(f),
		newSilenceCommand(f),
		newListCommand(f),
		NewCompletionCommand(),
		NewVersionCommand(),
	)
	return root
}

type alertmanagerTarget struct {
	key    string
	client *client.Client
}

func (rt *runtimeState) alertmanager(f *amctlFlags) (*alertmanagerTarget, error) {
	ctx, err := rt.ResolveContext()
	if err != nil {
		return nil, err
	}
	var am config.Alertmanager
	ctxURL := ""
	if ctx != nil {
		ctxURL = ctx.AlertmanagerURL()
		if ctx.Alertmanager != nil {
			am = *ctx.Alertmanager
		}
	}

	url := firstNonEmpty(f.url, os.Getenv(amctlEnvPrefix+"_URL"), ctxURL)
	if err := required(url, "url", amctlEnvPrefix+"_URL"); err != nil {
		return nil, err
	}
	key := firstNonEmpty(f.key, os.Getenv(amctlEnvPrefix+"_KEY"), am.Key)
	if err := required(key, "key", amctlEnvPrefix+"_KEY"); err != nil {
		return nil, err
	}
	secret, err := rt.resolveSecret(secretSource{
		flag:     f.secret,
		flagEnv:  f.secretEnv,
		flagFile: f.secretFile,
		env:      amctlEnvPrefix + "_SECRET",
		ctx:      ctx,
		fromCtx: func(c *config.Context) (string, string, string) {
			if c.Alertmanager == nil {
				return "", "", ""
			}
			return c.Alertmanager.Secret, c.Alertmanager.SecretEnv, c.Alertmanager.SecretFile
		},
		prompt: fmt.Sprintf("Secret for %s:", key),
		name:   "secret",
	})
	if err != nil {
		return nil, err
	}

	base, err := rt.baseTransport(ctx)
	if err != nil {
		return nil, err
	}
	c, err := client.New(
		client.WithServer(url),
		client.WithBasicAuth(key, secret),
		client.WithTimeout(rt.Timeout()),
		client.WithTransport(base),
		client.WithUserAgent(version.UserAgent(rt.binary)),
		client.WithLogger(rt.logger),
		client.WithMetrics(rt.metrics),
	)
	if err != nil {
		return nil, err
	}
	rt.logger.Sugar().Debugw("Using Alertmanager", "url", url, "key", key)
	return &alertmanagerTarget{key: key, client: c}, nil
}

type alertFlags struct {
	alertname   string
	severity    string
	labels      []string
	annotations []string
}

func (a *alertFlags) register(cmd *cobra.Command, withSeverity, withAnnotations bool) {
	cmd.Flags().StringVar(&a.alertname, "alertname", "", "Alert name")
	_ = cmd.MarkFlagRequired("alertname")
	if withSeverity {
		cmd.Flags().StringVar(&a.severity, "severity", "", "Severity: critical, warning or info")
		_ = cmd.MarkFlagRequired("severity")
		_ = cmd.RegisterFlagCompletionFunc("severity", cobra.FixedCompletions(client.Severities, cobra.ShellCompDirectiveNoFileComp))
	}
	cmd.Flags().StringArrayVar(&a.labels, "labels", nil, "Additional label as key=value, repeatable")
	if withAnnotations {
		cmd.Flags().StringArrayVar(&a.annotations, "annotations", nil, "Annotation as key=value, repeatable")
	}
}

// pairArgs rejects positional arguments, pointing at the repeated flag form
// when one of them looks like a key=value pair.
func pairArgs(cmd *cobra.Command, args []string) error {
	for _, arg := range args {
		if strings.Contains(arg, "=") {
			return fmt.Errorf("unexpected argument %q: pass each key=value pair with its own --labels or --annotations flag", arg)
		}
	}
	return cobra.NoArgs(cmd, args)
}

func (a *alertFlags) parse() (client.Pairs, client.Pairs, error) {
	if err := validateChoice("severity", a.severity, client.Severities); err != nil {
		return nil, nil, err
	}
	labels, err := client.ParsePairs(a.labels)
	if err != nil {
		return nil, nil, err
	}
	annotations, err := client.ParsePairs(a.annotations)
	if err != nil {
		return nil, nil, err
	}
	return labels, annotations, nil
}

func newPushCommand(f *amctlFlags) *cobra.Command {
	a := &alertFlags{}
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Fire an alert",
		Args:  pairArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			labels, annotations, err := a.parse()
			if err != nil {
				return err
			}
			target, err := rt.alertmanager(f)
			if err != nil {
				return err
			}
			alert := client.FiringAlert(target.key, a.alertname, a.severity, labels, annotations, rt.now())
			status, err := target.client.Alertmanager().PushAlerts(cmd.Context(), []client.PostableAlert{alert})
			if err != nil {
				return fmt.Errorf("failed to push alert: %w", err)
			}
			_, err = fmt.Fprintf(rt.Writer(), "Alert '%s' pushed successfully (HTTP %d)\n", a.alertname, status)
			return err
		},
	}
	a.register(cmd, true, true)
	return cmd
}

func newResolveCommand(f *amctlFlags) *cobra.Command {
	a := &alertFlags{}
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve an alert fired with the same labels",
		Args:  pairArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			labels, _, err := a.parse()
			if err != nil {
				return err
			}
			target, err := rt.alertmanager(f)
			if err != nil {
				return err
			}
			alert := client.ResolvedAlert(target.key, a.alertname, a.severity, labels, rt.now())
			status, err := target.client.Alertmanager().PushAlerts(cmd.Context(), []client.PostableAlert{alert})
			if err != nil {
				return fmt.Errorf("failed to resolve alert: %w", err)
			}
			_, err = fmt.Fprintf(rt.Writer(), "Alert '%s' resolved successfully (HTTP %d)\n", a.alertname, status)
			return err
		},
	}
	a.register(cmd, true, false)
	return cmd
}

func newSilenceCommand(f *amctlFlags) *cobra.Command {
	a := &alertFlags{}
	var (
		duration  int
		comment   string
		createdBy string
	)
	cmd := &cobra.Command{
		Use:   "silence",
		Short: "Silence an alert for a number of minutes",
		Args:  pairArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if duration <= 0 {
				return fmt.Errorf("invalid --duration %d: must be a positive number of minutes", duration)
			}
			labels, _, err := a.parse()
			if err != nil {
				return err
			}
			target, err := rt.alertmanager(f)
			if err != nil {
				return err
			}
			silence := client.NewSilence(a.alertname, labels, time.Duration(duration)*time.Minute, comment, createdBy, rt.now())
			id, err := target.client.Alertmanager().CreateSilence(cmd.Context(), silence)
			if err != nil {
				return fmt.Errorf("failed to create silence: %w", err)
			}
			_, err = fmt.Fprintf(rt.Writer(), "Silence created for '%s' (ID: %s, duration: %dm)\n", a.alertname, id, duration)
			return err
		},
	}
	a.register(cmd, false, false)
	cmd.Flags().IntVar(&duration, "duration", 60, "Silence duration in minutes")
	cmd.Flags().StringVar(&comment, "comment", "Silenced via amctl", "Reason for the silence")
	cmd.Flags().StringVar(&createdBy, "created-by", "amctl", "Author of the silence")
	return cmd
}

func newListCommand(f *amctlFlags) *cobra.Command {
	var state, severity, systemKey string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts known to Alertmanager",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			target, err := rt.alertmanager(f)
			if err != nil {
				return err
			}
			alerts, err := target.client.Alertmanager().ListAlerts(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list alerts: %w", err)
			}
			return rt.renderAlerts(client.FilterAlerts(alerts, state, severity, systemKey))
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "Keep alerts in this state, e.g. active or suppressed")
	cmd.Flags().StringVar(&severity, "severity", "", "Keep alerts with this severity label")
	cmd.Flags().StringVar(&systemKey, "system-key", "", "Keep alerts with this system_key label")
	_ = cmd.RegisterFlagCompletionFunc("state", cobra.FixedCompletions(alertStates, cobra.ShellCompDirectiveNoFileComp))
	return cmd
}
