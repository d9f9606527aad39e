package client

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// Severities accepted as keys of an AlertingConfig.
var Severities = []string{"critical", "warning", "info"}

type WebhookConfig struct {
	Name string `json:"name" validate:"required"`
	URL  string `json:"url" validate:"required,url"`
}

type SeverityConfig struct {
	Emails     []string        `json:"emails" validate:"required,min=1,dive,email"`
	Webhooks   []WebhookConfig `json:"webhooks,omitempty" validate:"dive"`
	Exceptions []string        `json:"exceptions,omitempty"`
}

// AlertingConfig maps a severity to its receivers.
type AlertingConfig map[string]SeverityConfig

var validate = validator.New()

func ParseAlertingConfig(data []byte) (AlertingConfig, error) {
	var cfg AlertingConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid alerting configuration: %w", err)
	}
	return cfg, nil
}

func (c AlertingConfig) Validate() error {
	keys := lo.Keys(c)
	sort.Strings(keys)
	for _, key := range keys {
		if !lo.Contains(Severities, key) {
			return fmt.Errorf("invalid severity level: %s. allowed: critical, warning, info", key)
		}
		sev := c[key]
		if err := validate.Struct(&sev); err != nil {
			return fmt.Errorf("invalid %s configuration: %w", key, err)
		}
	}
	return nil
}
