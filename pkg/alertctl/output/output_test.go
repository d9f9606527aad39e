package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/nethesis/alerting-cli/pkg/alertctl/client"
)

func TestParseFormat(t *testing.T) {
	for _, f := range Formats {
		got, err := ParseFormat(string(f))
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
	_, err := ParseFormat("xml")
	require.ErrorContains(t, err, "unknown output format: xml")
}

func TestWriteObjectJSONIndentsTwoSpaces(t *testing.T) {
	var buf bytes.Buffer
	alerts := []client.Alert{{"labels": map[string]any{"alertname": "HighCPU"}}}
	require.NoError(t, WriteObject(&buf, FormatJSON, alerts))
	assert.Equal(t, "[\n  {\n    \"labels\": {\n      \"alertname\": \"HighCPU\"\n    }\n  }\n]\n", buf.String())
}

func TestWriteObjectJSONKeepsURLCharacters(t *testing.T) {
	var buf bytes.Buffer
	alerts := []client.Alert{{"generatorURL": "http://prometheus/graph?a=1&b=<2>"}}
	require.NoError(t, WriteObject(&buf, FormatJSON, alerts))
	assert.Contains(t, buf.String(), `"generatorURL": "http://prometheus/graph?a=1&b=<2>"`)
	assert.NotContains(t, buf.String(), `\u0026`)
}

func TestWriteObjectYAML(t *testing.T) {
	var buf bytes.Buffer
	user := &client.User{Email: "admin@example.com", OrgRole: "Owner"}
	require.NoError(t, WriteObject(&buf, FormatYAML, user))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "admin@example.com", decoded["email"])
	assert.Equal(t, "Owner", decoded["org_role"])
}

func TestWriteObjectRejectsOtherFormats(t *testing.T) {
	for _, f := range []Format{FormatTable, FormatTemplate, "xml"} {
		require.Error(t, WriteObject(&bytes.Buffer{}, f, nil))
	}
}

func TestWriteTemplate(t *testing.T) {
	alerts := []client.Alert{
		{"labels": map[string]any{"alertname": "HighCPU", "severity": "critical"}},
		{"labels": map[string]any{"alertname": "DiskFull", "severity": "warning"}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteTemplate(&buf, `{{range .}}{{.labels.alertname | lower}}:{{.labels.severity | upper}} {{end}}`, alerts))
	assert.Equal(t, "highcpu:CRITICAL diskfull:WARNING \n", buf.String())

	require.ErrorContains(t, WriteTemplate(&buf, "{{ .Missing", nil), "invalid template")
	require.EqualError(t, WriteTemplate(&buf, "", nil), "template is empty")
}

func TestWriteAlertTable(t *testing.T) {
	var buf bytes.Buffer
	WriteAlertTable(&buf, []client.Alert{
		{
			"labels":      map[string]any{"alertname": "HighCPU", "severity": "critical", "system_key": "NETH-A"},
			"annotations": map[string]any{"summary": "CPU above 90%"},
			"status":      map[string]any{"state": "active"},
			"startsAt":    "2026-03-04T09:20:30Z",
		},
		{"labels": map[string]any{"alertname": "Bare"}},
	})

	out := buf.String()
	assert.Contains(t, out, "ALERTNAME")
	assert.Contains(t, out, "HighCPU")
	assert.Contains(t, out, "CPU above 90%")
	assert.Contains(t, out, "2026-03-04T09:20:30Z")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Contains(t, lines[len(lines)-2], "Bare")
	assert.Contains(t, lines[len(lines)-2], "-")
}

func TestWriteUserTable(t *testing.T) {
	var buf bytes.Buffer
	WriteUserTable(&buf, &client.User{Email: "admin@example.com", OrganizationID: "org-1", UserRoles: []string{"Admin", "Support"}})
	out := buf.String()
	assert.Contains(t, out, "admin@example.com")
	assert.Contains(t, out, "org-1")
	assert.Contains(t, out, "Admin,Support")
}
