package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// ResolveSecret returns value, else the content of the env variable named by
// env, else the trimmed content of file. All empty yields "".
func ResolveSecret(value, env, file string) (string, error) {
	if value != "" {
		return value, nil
	}
	if env != "" {
		resolved := strings.TrimSpace(os.Getenv(env))
		if resolved == "" {
			return "", fmt.Errorf("secret env var not set: %s", env)
		}
		return resolved, nil
	}
	if file != "" {
		bytes, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read secret file: %w", err)
		}
		return strings.TrimSpace(string(bytes)), nil
	}
	return "", nil
}

// LoadDotEnv loads path into the process environment when it exists.
// Variables already set are left alone.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}
