package output

import (
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/nethesis/alerting-cli/pkg/alertctl/client"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

func WriteAlertTable(w io.Writer, alerts []client.Alert) {
	t := newTable(w)
	t.AppendHeader(table.Row{"ALERTNAME", "SEVERITY", "STATE", "SYSTEM_KEY", "STARTS_AT", "SUMMARY"})
	for _, a := range alerts {
		t.AppendRow(table.Row{
			orDash(a.Label("alertname")),
			orDash(a.Label("severity")),
			orDash(a.State()),
			orDash(a.Label("system_key")),
			orDash(a.Field("startsAt")),
			orDash(a.Annotation("summary")),
		})
	}
	t.Render()
}

func WriteUserTable(w io.Writer, user *client.User) {
	t := newTable(w)
	t.AppendHeader(table.Row{"FIELD", "VALUE"})
	t.AppendRows([]table.Row{
		{"ID", orDash(user.ID)},
		{"EMAIL", orDash(user.Email)},
		{"NAME", orDash(user.Name)},
		{"ORG_ROLE", orDash(user.OrgRole)},
		{"ORGANIZATION_ID", orDash(user.OrganizationID)},
		{"ORGANIZATION", orDash(user.OrganizationName)},
		{"USER_ROLES", orDash(strings.Join(user.UserRoles, ","))},
	})
	t.Render()
}
