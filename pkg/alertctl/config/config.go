package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	VersionV1 = "v1"

	// CollectProxyPath is where the collect service exposes Alertmanager
	// under a MY installation.
	CollectProxyPath = "/collect/api/services/mimir"
)

type Config struct {
	Version        string    `yaml:"version"`
	CurrentContext string    `yaml:"current-context,omitempty"`
	Contexts       []Context `yaml:"contexts,omitempty"`
	Settings       Settings  `yaml:"settings,omitempty"`
}

type Settings struct {
	OutputFormat string        `yaml:"output-format,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
}

// Context groups the endpoints and credentials of one MY installation.
type Context struct {
	Name                  string            `yaml:"name"`
	URL                   string            `yaml:"url"`
	Email                 string            `yaml:"email,omitempty"`
	Password              string            `yaml:"password,omitempty"`
	PasswordEnv           string            `yaml:"password-env,omitempty"`
	PasswordFile          string            `yaml:"password-file,omitempty"`
	Organization          string            `yaml:"organization,omitempty"`
	CAFile                string            `yaml:"ca-file,omitempty"`
	InsecureSkipTLSVerify bool              `yaml:"insecure-skip-tls-verify,omitempty"`
	IdentityProvider      *IdentityProvider `yaml:"identity-provider,omitempty"`
	Alertmanager          *Alertmanager     `yaml:"alertmanager,omitempty"`
}

type IdentityProvider struct {
	Endpoint string   `yaml:"endpoint"`
	ClientID string   `yaml:"client-id"`
	Scopes   []string `yaml:"scopes,omitempty"`
	Discover bool     `yaml:"discover,omitempty"`
}

// Alertmanager holds the system credentials used against the collect proxy.
// URL defaults to the context URL.
type Alertmanager struct {
	URL        string `yaml:"url,omitempty"`
	Key        string `yaml:"key"`
	Secret     string `yaml:"secret,omitempty"`
	SecretEnv  string `yaml:"secret-env,omitempty"`
	SecretFile string `yaml:"secret-file,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Version: VersionV1,
		Settings: Settings{
			OutputFormat: "json",
			Timeout:      30 * time.Second,
		},
	}
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.UnmarshalStrict(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Version == "" {
		cfg.Version = VersionV1
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault is Load that treats a missing file as an empty config.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		def := DefaultConfig()
		return &def, nil
	}
	return cfg, err
}

func (c *Config) FindContext(name string) (*Context, error) {
	for i := range c.Contexts {
		if c.Contexts[i].Name == name {
			return &c.Contexts[i], nil
		}
	}
	return nil, fmt.Errorf("context not found: %s", name)
}

func (c *Config) CurrentContextOrDefault() string {
	if c.CurrentContext != "" {
		return c.CurrentContext
	}
	if len(c.Contexts) > 0 {
		return c.Contexts[0].Name
	}
	return ""
}

// Select returns the named context, or the current one when name is empty.
// A config without contexts selects nothing and is not an error.
func (c *Config) Select(name string) (*Context, error) {
	if name == "" {
		name = c.CurrentContextOrDefault()
		if name == "" {
			return nil, nil
		}
	}
	return c.FindContext(name)
}

func (c *Config) Validate() error {
	if c.Version != VersionV1 {
		return fmt.Errorf("unsupported config version: %s", c.Version)
	}
	seen := map[string]bool{}
	for _, ctx := range c.Contexts {
		name := strings.TrimSpace(ctx.Name)
		if name == "" {
			return errors.New("context name cannot be empty")
		}
		if seen[name] {
			return fmt.Errorf("duplicate context: %s", name)
		}
		seen[name] = true
		if strings.TrimSpace(ctx.URL) == "" {
			return fmt.Errorf("context %s url is required", ctx.Name)
		}
	}
	if c.CurrentContext != "" && !seen[c.CurrentContext] {
		return fmt.Errorf("current-context %s is not defined", c.CurrentContext)
	}
	return nil
}

// AlertmanagerURL is the collect proxy URL of the context, derived from the
// context URL unless alertmanager.url is set.
func (c *Context) AlertmanagerURL() string {
	if c.Alertmanager != nil && c.Alertmanager.URL != "" {
		return c.Alertmanager.URL
	}
	if strings.TrimSpace(c.URL) == "" {
		return ""
	}
	return strings.TrimRight(strings.TrimSpace(c.URL), "/") + CollectProxyPath
}
