package cmd

import (
	"fmt"
	"net/http"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"golang.org/x/term"

	"github.com/nethesis/alerting-cli/pkg/alertctl/config"
	"github.com/nethesis/alerting-cli/pkg/alertctl/transport"
)

var (
	promptSecret = func(message string) (string, error) {
		var value string
		err := survey.AskOne(&survey.Password{Message: message}, &value)
		return value, err
	}
	stdinIsTerminal = func() bool {
		return term.IsTerminal(int(os.Stdin.Fd()))
	}
)

// secretSource lists the places a secret can come from, in precedence order.
type secretSource struct {
	flag     string
	flagEnv  string
	flagFile string
	env      string
	ctx      *config.Context
	fromCtx  func(*config.Context) (string, string, string)
	prompt   string
	name     string
}

func (rt *runtimeState) resolveSecret(src secretSource) (string, error) {
	value, err := config.ResolveSecret(src.flag, src.flagEnv, src.flagFile)
	if err != nil || value != "" {
		return value, err
	}
	if v := os.Getenv(src.env); v != "" {
		return v, nil
	}
	if src.ctx != nil && src.fromCtx != nil {
		inline, env, file := src.fromCtx(src.ctx)
		value, err = config.ResolveSecret(inline, env, file)
		if err != nil || value != "" {
			return value, err
		}
	}
	if rt.nonInteractive || !stdinIsTerminal() {
		return "", fmt.Errorf("%s is required (flag, %s or config context)", src.name, src.env)
	}
	value, err = promptSecret(src.prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", src.name, err)
	}
	if value == "" {
		return "", fmt.Errorf("%s is required", src.name)
	}
	return value, nil
}

// firstNonEmpty returns the first non-empty value.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func required(value, name, env string) error {
	if value == "" {
		return fmt.Errorf("%s is required (--%s, %s or config context)", name, name, env)
	}
	return nil
}

// baseTransport is the TLS-configured transport shared by every request of
// the run, or the injected one in tests.
func (rt *runtimeState) baseTransport(ctx *config.Context) (http.RoundTripper, error) {
	if rt.transport != nil {
		return rt.transport, nil
	}
	caFile := rt.caFile
	insecure := rt.insecure
	if ctx != nil {
		caFile = firstNonEmpty(caFile, ctx.CAFile)
		insecure = insecure || ctx.InsecureSkipTLSVerify
	}
	if insecure {
		rt.logger.Warn("TLS certificate verification is disabled")
	}
	base, err := transport.Base(caFile, insecure)
	if err != nil {
		return nil, err
	}
	return base, nil
}
