package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nethesis/alerting-cli/pkg/alertctl/config"
	"github.com/nethesis/alerting-cli/pkg/alertctl/metrics"
	"github.com/nethesis/alerting-cli/pkg/alertctl/output"
	"github.com/nethesis/alerting-cli/pkg/system"
)

// Config carries what a binary injects into its command tree.
type Config struct {
	ConfigPath   string
	DotEnvPath   string
	OutputWriter io.Writer
	ErrorWriter  io.Writer
	// Transport replaces the TLS-configured base transport.
	Transport http.RoundTripper
	Now       func() time.Time
}

type runtimeState struct {
	binary    string
	envPrefix string

	configPath      string
	configExplicit  bool
	dotEnvPath      string
	contextOverride string
	outputFormat    string
	template        string
	timeout         time.Duration
	caFile          string
	insecure        bool
	verbose         bool
	nonInteractive  bool
	metricsTextfile string

	cfg       *config.Config
	writer    io.Writer
	errWriter io.Writer
	logger    *zap.Logger
	metrics   *metrics.Recorder
	transport http.RoundTripper
	now       func() time.Time
}

type runtimeKey struct{}

func DefaultConfig() Config {
	return Config{
		ConfigPath:   config.DefaultConfigPath(),
		DotEnvPath:   config.DotEnvFile,
		OutputWriter: os.Stdout,
		ErrorWriter:  os.Stderr,
	}
}

func newRootCommand(binary, envPrefix string, cfg Config) (*cobra.Command, *runtimeState) {
	rt := &runtimeState{
		binary:     binary,
		envPrefix:  envPrefix,
		configPath: cfg.ConfigPath,
		dotEnvPath: cfg.DotEnvPath,
		writer:     cfg.OutputWriter,
		errWriter:  cfg.ErrorWriter,
		transport:  cfg.Transport,
		now:        cfg.Now,
		logger:     zap.NewNop(),
	}

	root := &cobra.Command{
		Use:           binary,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&rt.configPath, "cli-config", rt.configPath, "Path to the CLI config file (env ALERTCTL_CONFIG)")
	flags.StringVarP(&rt.contextOverride, "context", "c", "", "Config context to use")
	flags.StringVarP(&rt.outputFormat, "output", "o", "", "Output format: json, yaml, table, template")
	flags.StringVar(&rt.template, "template", "", "Go template used with --output template (sprig functions available)")
	flags.DurationVar(&rt.timeout, "timeout", 0, "Timeout of every HTTP request (default 30s)")
	flags.StringVar(&rt.caFile, "ca-file", "", "PEM bundle used to verify the servers")
	flags.BoolVar(&rt.insecure, "insecure-skip-tls-verify", false, "Skip TLS certificate verification")
	flags.BoolVarP(&rt.verbose, "verbose", "v", false, "Log every HTTP request to stderr")
	flags.BoolVar(&rt.nonInteractive, "non-interactive", false, "Fail instead of prompting for missing secrets")
	flags.StringVar(&rt.metricsTextfile, "metrics-textfile", "", "Write Prometheus metrics of this run to the given file")

	root.SetContext(context.WithValue(context.Background(), runtimeKey{}, rt))
	return root, rt
}

func (rt *runtimeState) init(cmd *cobra.Command) error {
	if rt.writer == nil {
		rt.writer = os.Stdout
	}
	if rt.errWriter == nil {
		rt.errWriter = os.Stderr
	}
	if rt.now == nil {
		rt.now = time.Now
	}
	if err := config.LoadDotEnv(rt.dotEnvPath); err != nil {
		return err
	}
	if rt.contextOverride == "" {
		rt.contextOverride = os.Getenv("ALERTCTL_CONTEXT")
	}
	if rt.outputFormat == "" {
		rt.outputFormat = os.Getenv("ALERTCTL_OUTPUT")
	}
	if !rt.verbose {
		rt.verbose = envBool("ALERTCTL_VERBOSE")
	}
	if !rt.nonInteractive {
		rt.nonInteractive = envBool("ALERTCTL_NON_INTERACTIVE")
	}
	if rt.metricsTextfile == "" {
		rt.metricsTextfile = os.Getenv(rt.envPrefix + "_METRICS_TEXTFILE")
	}
	rt.logger = system.NewCLILogger(rt.errWriter, rt.verbose)
	if rt.metricsTextfile != "" {
		rt.metrics = metrics.NewRecorder(rt.binary)
	}

	if cmd.Name() == "version" || cmd.Name() == "completion" {
		return nil
	}

	if rt.configPath == "" {
		rt.configPath = config.DefaultConfigPath()
	}
	rt.configExplicit = cmd.Flags().Changed("cli-config")
	var err error
	if rt.configExplicit {
		rt.cfg, err = config.Load(rt.configPath)
	} else {
		rt.cfg, err = config.LoadOrDefault(rt.configPath)
	}
	if err != nil {
		return fmt.Errorf("failed to load config %s: %w", rt.configPath, err)
	}

	format, err := output.ParseFormat(rt.OutputFormat())
	if err != nil {
		return err
	}
	if format == output.FormatTemplate && rt.template == "" {
		return errors.New("--output template requires --template")
	}
	return nil
}

func envBool(name string) bool {
	return strings.EqualFold(os.Getenv(name), "true") || os.Getenv(name) == "1"
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

// Execute runs root with Ctrl-C cancelling in-flight requests, prints the
// error to stderr and records the outcome when --metrics-textfile is set.
func Execute(root *cobra.Command) error {
	ctx, stop := signal.NotifyContext(root.Context(), os.Interrupt)
	defer stop()
	root.SetContext(ctx)

	executed, err := root.ExecuteC()
	rt, rtErr := getRuntime(root)
	if rtErr != nil {
		return errors.Join(err, rtErr)
	}
	if err != nil {
		_, _ = fmt.Fprintf(rt.errorWriter(), "Error: %v\n", err)
	}
	if mErr := rt.finish(executed, err); mErr != nil {
		_, _ = fmt.Fprintf(rt.errorWriter(), "Error: %v\n", mErr)
		if err == nil {
			err = mErr
		}
	}
	return err
}

func (rt *runtimeState) finish(executed *cobra.Command, runErr error) error {
	if rt.metrics == nil || rt.metricsTextfile == "" {
		return nil
	}
	name := rt.binary
	if executed != nil {
		name = executed.Name()
	}
	rt.metrics.ObserveRun(name, runErr, rt.now())
	if err := rt.metrics.WriteTextfile(rt.metricsTextfile); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

func (rt *runtimeState) ResolveContextName() string {
	if rt.contextOverride != "" {
		return rt.contextOverride
	}
	if rt.cfg != nil {
		return rt.cfg.CurrentContextOrDefault()
	}
	return ""
}

// ResolveContext returns the selected context, nil when the config has none.
func (rt *runtimeState) ResolveContext() (*config.Context, error) {
	if rt.cfg == nil {
		return nil, errors.New("config not loaded")
	}
	return rt.cfg.Select(rt.contextOverride)
}

func (rt *runtimeState) OutputFormat() string {
	if rt.outputFormat != "" {
		return rt.outputFormat
	}
	if rt.cfg != nil && rt.cfg.Settings.OutputFormat != "" {
		return rt.cfg.Settings.OutputFormat
	}
	return string(output.FormatJSON)
}

func (rt *runtimeState) Timeout() time.Duration {
	if rt.timeout > 0 {
		return rt.timeout
	}
	if rt.cfg != nil && rt.cfg.Settings.Timeout > 0 {
		return rt.cfg.Settings.Timeout
	}
	return 30 * time.Second
}

func (rt *runtimeState) Writer() io.Writer {
	if rt.writer != nil {
		return rt.writer
	}
	return os.Stdout
}

func (rt *runtimeState) errorWriter() io.Writer {
	if rt.errWriter != nil {
		return rt.errWriter
	}
	return os.Stderr
}
