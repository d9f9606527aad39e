package cmd

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nethesis/alerting-cli/pkg/alertctl/client"
	"github.com/nethesis/alerting-cli/pkg/alertctl/fake"
)

func amctlArgs(srv *fake.Server, args ...string) []string {
	return append([]string{"--url", srv.URL, "--key", srv.Key, "--secret", srv.Secret}, args...)
}

func TestAmctlPush(t *testing.T) {
	srv := fake.NewServer(fake.Behavior{}, nil)
	defer srv.Close()

	res := run(t, NewAmctlCommand, nil, amctlArgs(srv, "push", "--alertname", "HighCPU", "--severity", "critical", "--labels", "host=server-01")...)
	require.NoError(t, res.err)
	assert.Equal(t, "Alert 'HighCPU' pushed successfully (HTTP 200)\n", res.stdout)

	pushed := srv.PushedAlerts()
	require.Len(t, pushed, 1)
	assert.Equal(t, map[string]any{
		"alertname":  "HighCPU",
		"severity":   "critical",
		"system_key": fake.DefaultKey,
		"host":       "server-01",
	}, pushed[0]["labels"])
	assert.Equal(t, "2026-03-04T09:20:30Z", pushed[0]["startsAt"])
	assert.Equal(t, client.ZeroTime, pushed[0]["endsAt"])
	assert.Equal(t, "http://"+fake.DefaultKey+"/alert", pushed[0]["generatorURL"])
}

func TestAmctlPushAnnotations(t *testing.T) {
	srv := fake.NewServer(fake.Behavior{}, nil)
	defer srv.Close()

	res := run(t, NewAmctlCommand, nil, amctlArgs(srv, "push", "--alertname", "DiskFull", "--severity", "warning",
		"--annotations", "summary=Disk almost full", "--annotations", "runbook=https://wiki/disk?x=1")...)
	require.NoError(t, res.err)

	pushed := srv.PushedAlerts()
	require.Len(t, pushed, 1)
	assert.Equal(t, map[string]any{
		"summary": "Disk almost full",
		"runbook": "https://wiki/disk?x=1",
	}, pushed[0]["annotations"])
}

func TestAmctlArgumentErrorsSkipNetwork(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "pair without equals",
			args:    []string{"push", "--alertname", "HighCPU", "--severity", "critical", "--labels", "host"},
			wantErr: "invalid key=value pair: host",
		},
		{
			name:    "unknown severity",
			args:    []string{"push", "--alertname", "HighCPU", "--severity", "fatal"},
			wantErr: `invalid --severity "fatal"`,
		},
		{
			name:    "missing alertname",
			args:    []string{"resolve", "--severity", "critical"},
			wantErr: `required flag(s) "alertname" not set`,
		},
		{
			name:    "zero duration",
			args:    []string{"silence", "--alertname", "HighCPU", "--duration", "0"},
			wantErr: "invalid --duration 0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := fake.NewServer(fake.Behavior{}, nil)
			defer srv.Close()

			res := run(t, NewAmctlCommand, nil, amctlArgs(srv, tt.args...)...)
			require.Error(t, res.err)
			assert.Contains(t, res.err.Error(), tt.wantErr)
			assert.Contains(t, res.stderr, "Error: ")
			assert.Empty(t, srv.Requests())
		})
	}
}

func TestAmctlResolve(t *testing.T) {
	srv := fake.NewServer(fake.Behavior{}, nil)
	defer srv.Close()

	res := run(t, NewAmctlCommand, nil, amctlArgs(srv, "resolve", "--alertname", "HighCPU", "--severity", "critical", "--labels", "host=server-01")...)
	require.NoError(t, res.err)
	assert.Equal(t, "Alert 'HighCPU' resolved successfully (HTTP 200)\n", res.stdout)

	pushed := srv.PushedAlerts()
	require.Len(t, pushed, 1)
	assert.Equal(t, "2026-03-04T08:20:30Z", pushed[0]["startsAt"])
	assert.Equal(t, "2026-03-04T09:20:30Z", pushed[0]["endsAt"])
	assert.Equal(t, map[string]any{"summary": "resolved"}, pushed[0]["annotations"])
}

func TestAmctlSilence(t *testing.T) {
	srv := fake.NewServer(fake.Behavior{}, nil)
	defer srv.Close()

	res := run(t, NewAmctlCommand, nil, amctlArgs(srv, "silence", "--alertname", "HighCPU",
		"--labels", "host=server-01", "--labels", "env=prod", "--duration", "30", "--comment", "maintenance")...)
	require.NoError(t, res.err)
	assert.Regexp(t, `^Silence created for 'HighCPU' \(ID: [0-9a-f-]{36}, duration: 30m\)\n$`, res.stdout)

	silences := srv.Silences()
	require.Len(t, silences, 1)
	assert.Equal(t, []any{
		map[string]any{"name": "alertname", "value": "HighCPU", "isRegex": false},
		map[string]any{"name": "host", "value": "server-01", "isRegex": false},
		map[string]any{"name": "env", "value": "prod", "isRegex": false},
	}, silences[0]["matchers"])
	assert.Equal(t, "2026-03-04T09:20:30Z", silences[0]["startsAt"])
	assert.Equal(t, "2026-03-04T09:50:30Z", silences[0]["endsAt"])
	assert.Equal(t, "maintenance", silences[0]["comment"])
	assert.Equal(t, "amctl", silences[0]["createdBy"])
}

func TestAmctlSilenceWithoutID(t *testing.T) {
	srv := fake.NewServer(fake.Behavior{OmitSilenceID: true}, nil)
	defer srv.Close()

	res := run(t, NewAmctlCommand, nil, amctlArgs(srv, "silence", "--alertname", "HighCPU")...)
	require.NoError(t, res.err)
	assert.Equal(t, "Silence created for 'HighCPU' (ID: unknown, duration: 60m)\n", res.stdout)
}

func TestAmctlWrongSecret(t *testing.T) {
	srv := fake.NewServer(fake.Behavior{}, nil)
	defer srv.Close()

	res := run(t, NewAmctlCommand, nil, "--url", srv.URL, "--key", srv.Key, "--secret", "nope",
		"push", "--alertname", "HighCPU", "--severity", "critical")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "failed to push alert")

	var httpErr *client.HTTPError
	require.True(t, errors.As(res.err, &httpErr))
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.Empty(t, srv.PushedAlerts())
}

func TestAmctlList(t *testing.T) {
	srv := fake.NewServer(fake.Behavior{}, nil)
	defer srv.Close()
	srv.SetAlertmanagerAlerts([]map[string]any{
		{
			"labels":      map[string]any{"alertname": "HighCPU", "severity": "critical", "system_key": fake.DefaultKey},
			"annotations": map[string]any{"summary": "CPU above 90%"},
			"status":      map[string]any{"state": "active"},
			"startsAt":    "2026-03-04T09:00:00Z",
		},
		{
			"labels": map[string]any{"alertname": "DiskFull", "severity": "warning", "system_key": fake.DefaultKey},
			"status": map[string]any{"state": "suppressed"},
		},
	})

	t.Run("json filtered by severity", func(t *testing.T) {
		res := run(t, NewAmctlCommand, nil, amctlArgs(srv, "list", "--severity", "critical")...)
		require.NoError(t, res.err)

		var alerts []map[string]any
		require.NoError(t, json.Unmarshal([]byte(res.stdout), &alerts))
		require.Len(t, alerts, 1)
		assert.Equal(t, "HighCPU", alerts[0]["labels"].(map[string]any)["alertname"])
	})

	t.Run("table", func(t *testing.T) {
		res := run(t, NewAmctlCommand, nil, amctlArgs(srv, "-o", "table", "list")...)
		require.NoError(t, res.err)
		assert.Contains(t, res.stdout, "ALERTNAME")
		assert.Contains(t, res.stdout, "HighCPU")
		assert.Contains(t, res.stdout, "DiskFull")
		assert.Contains(t, res.stdout, "CPU above 90%")
	})

	t.Run("template", func(t *testing.T) {
		res := run(t, NewAmctlCommand, nil, amctlArgs(srv, "-o", "template", "--template", `{{ len . }}`, "list", "--state", "suppressed")...)
		require.NoError(t, res.err)
		assert.Equal(t, "1\n", res.stdout)
	})

	t.Run("nothing matches", func(t *testing.T) {
		res := run(t, NewAmctlCommand, nil, amctlArgs(srv, "list", "--system-key", "other")...)
		require.NoError(t, res.err)
		assert.Equal(t, "No alerts found.\n", res.stdout)
	})
}

func TestAmctlCredentialsFromEnvironment(t *testing.T) {
	srv := fake.NewServer(fake.Behavior{}, nil)
	defer srv.Close()
	t.Setenv("AMCTL_URL", srv.URL)
	t.Setenv("AMCTL_KEY", srv.Key)
	t.Setenv("AMCTL_SECRET", srv.Secret)

	res := run(t, NewAmctlCommand, nil, "push", "--alertname", "HighCPU", "--severity", "info")
	require.NoError(t, res.err)
	assert.Len(t, srv.PushedAlerts(), 1)
}

func TestAmctlCredentialsFromDotEnv(t *testing.T) {
	srv := fake.NewServer(fake.Behavior{}, nil)
	defer srv.Close()
	// Registered so that the variables loaded from the file are unset afterwards.
	for _, name := range []string{"AMCTL_URL", "AMCTL_KEY", "AMCTL_SECRET"} {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
	dotEnv := writeFile(t, ".env", "AMCTL_URL="+srv.URL+"\nAMCTL_KEY="+srv.Key+"\nAMCTL_SECRET="+srv.Secret+"\n")

	res := run(t, NewAmctlCommand, &Config{ConfigPath: writeFile(t, "config.yaml", "version: v1\n"), DotEnvPath: dotEnv},
		"push", "--alertname", "HighCPU", "--severity", "info")
	require.NoError(t, res.err)
	assert.Len(t, srv.PushedAlerts(), 1)
}

func TestAmctlCredentialsFromContext(t *testing.T) {
	srv := fake.NewServer(fake.Behavior{}, nil)
	defer srv.Close()
	t.Setenv("TEST_AM_SECRET", srv.Secret)

	cfg := writeFile(t, "config.yaml", `version: v1
current-context: lab
contexts:
  - name: prod
    url: https://my.example.com
  - name: lab
    url: https://lab.example.com
    alertmanager:
      url: `+srv.URL+`
      key: `+srv.Key+`
      secret-env: TEST_AM_SECRET
`)

	res := run(t, NewAmctlCommand, &Config{ConfigPath: cfg}, "push", "--alertname", "HighCPU", "--severity", "critical")
	require.NoError(t, res.err)
	assert.Len(t, srv.PushedAlerts(), 1)

	res = run(t, NewAmctlCommand, &Config{ConfigPath: cfg}, "--context", "missing", "list")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "context not found: missing")
}

func TestAmctlSecretPrompt(t *testing.T) {
	srv := fake.NewServer(fake.Behavior{}, nil)
	defer srv.Close()

	t.Run("prompts on a terminal", func(t *testing.T) {
		asked := withPrompt(t, true, srv.Secret)
		res := run(t, NewAmctlCommand, nil, "--url", srv.URL, "--key", srv.Key, "push", "--alertname", "HighCPU", "--severity", "critical")
		require.NoError(t, res.err)
		assert.Equal(t, []string{"Secret for " + srv.Key + ":"}, *asked)
	})

	t.Run("non-interactive fails", func(t *testing.T) {
		asked := withPrompt(t, true, srv.Secret)
		res := run(t, NewAmctlCommand, nil, "--non-interactive", "--url", srv.URL, "--key", srv.Key, "push", "--alertname", "HighCPU", "--severity", "critical")
		require.Error(t, res.err)
		assert.Contains(t, res.err.Error(), "secret is required")
		assert.Empty(t, *asked)
	})

	t.Run("no terminal fails", func(t *testing.T) {
		withPrompt(t, false, srv.Secret)
		res := run(t, NewAmctlCommand, nil, "--url", srv.URL, "--key", srv.Key, "list")
		require.Error(t, res.err)
		assert.Contains(t, res.err.Error(), "AMCTL_SECRET")
	})
}

func TestAmctlMissingURL(t *testing.T) {
	res := run(t, NewAmctlCommand, nil, "--key", "k", "--secret", "s", "list")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "url is required")
}

func TestAmctlSecretFile(t *testing.T) {
	srv := fake.NewServer(fake.Behavior{}, nil)
	defer srv.Close()
	secret := writeFile(t, "secret", srv.Secret+"\n")

	res := run(t, NewAmctlCommand, nil, "--url", srv.URL, "--key", srv.Key, "--secret-file", secret,
		"push", "--alertname", "HighCPU", "--severity", "critical")
	require.NoError(t, res.err)
	assert.Len(t, srv.PushedAlerts(), 1)
}

func TestAmctlPairsAfterOneFlag(t *testing.T) {
	srv := fake.NewServer(fake.Behavior{}, nil)
	defer srv.Close()

	res := run(t, NewAmctlCommand, nil, amctlArgs(srv, "push", "--alertname", "HighCPU", "--severity", "critical",
		"--labels", "host=server-01", "env=prod")...)
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), `unexpected argument "env=prod"`)
	assert.Contains(t, res.err.Error(), "its own --labels or --annotations flag")
	assert.Empty(t, srv.Requests())

	res = run(t, NewAmctlCommand, nil, amctlArgs(srv, "silence", "--alertname", "HighCPU", "extra")...)
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), `unknown command "extra"`)
}

func TestAmctlContextDefaultsToCollectProxy(t *testing.T) {
	srv := fake.NewServer(fake.Behavior{}, nil)
	defer srv.Close()

	cfg := writeFile(t, "config.yaml", `version: v1
contexts:
  - name: my
    url: `+srv.URL+`
    alertmanager:
      key: `+srv.Key+`
      secret: `+srv.Secret+`
`)
	res := run(t, NewAmctlCommand, &Config{ConfigPath: cfg}, "push", "--alertname", "HighCPU", "--severity", "critical")
	require.NoError(t, res.err)
	assert.Equal(t, []string{"POST " + fake.CollectProxyPath + "/alertmanager/api/v2/alerts"}, srv.Requests())
}

func TestAmctlListKeepsURLCharacters(t *testing.T) {
	srv := fake.NewServer(fake.Behavior{}, nil)
	defer srv.Close()
	srv.SetAlertmanagerAlerts([]map[string]any{
		{
			"labels":       map[string]any{"alertname": "HighCPU"},
			"generatorURL": "http://prometheus/graph?a=1&b=<2>",
		},
	})

	res := run(t, NewAmctlCommand, nil, amctlArgs(srv, "list")...)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, `"generatorURL": "http://prometheus/graph?a=1&b=<2>"`)
}
