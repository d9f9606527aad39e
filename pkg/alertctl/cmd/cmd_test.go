package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 4, 10, 20, 30, 0, time.FixedZone("CET", 3600))

type result struct {
	stdout string
	stderr string
	err    error
}

func testConfig(t *testing.T, out, errOut *bytes.Buffer) Config {
	t.Helper()
	return Config{
		ConfigPath:   filepath.Join(t.TempDir(), "config.yaml"),
		OutputWriter: out,
		ErrorWriter:  errOut,
		Now:          func() time.Time { return testNow },
	}
}

func run(t *testing.T, build func(Config) *cobra.Command, cfg *Config, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	c := testConfig(t, &out, &errOut)
	if cfg != nil {
		c.ConfigPath = cfg.ConfigPath
		c.DotEnvPath = cfg.DotEnvPath
	}
	root := build(c)
	root.SetArgs(args)
	err := Execute(root)
	return result{stdout: out.String(), stderr: errOut.String(), err: err}
}

// withPrompt replaces the terminal check and the secret prompt for one test.
func withPrompt(t *testing.T, terminal bool, answer string) *[]string {
	t.Helper()
	origPrompt, origTerminal := promptSecret, stdinIsTerminal
	t.Cleanup(func() {
		promptSecret, stdinIsTerminal = origPrompt, origTerminal
	})
	var asked []string
	stdinIsTerminal = func() bool { return terminal }
	promptSecret = func(message string) (string, error) {
		asked = append(asked, message)
		return answer, nil
	}
	return &asked
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
