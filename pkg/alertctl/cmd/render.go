package cmd

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/nethesis/alerting-cli/pkg/alertctl/client"
	"github.com/nethesis/alerting-cli/pkg/alertctl/output"
)

const noAlertsMessage = "No alerts found."

func (rt *runtimeState) render(obj any, table func()) error {
	format := output.Format(rt.OutputFormat())
	switch format {
	case output.FormatTable:
		if table == nil {
			return fmt.Errorf("table output is not supported by this command")
		}
		table()
		return nil
	case output.FormatTemplate:
		return output.WriteTemplate(rt.Writer(), rt.template, obj)
	default:
		return output.WriteObject(rt.Writer(), format, obj)
	}
}

func (rt *runtimeState) renderAlerts(alerts []client.Alert) error {
	if len(alerts) == 0 {
		_, err := fmt.Fprintln(rt.Writer(), noAlertsMessage)
		return err
	}
	return rt.render(alerts, func() {
		output.WriteAlertTable(rt.Writer(), alerts)
	})
}

func validateChoice(flag, value string, choices []string) error {
	if value == "" || lo.Contains(choices, value) {
		return nil
	}
	return fmt.Errorf("invalid --%s %q: must be one of %s", flag, value, strings.Join(choices, ", "))
}
