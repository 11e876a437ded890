package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// execute runs the root command with args and returns captured stdout,
// stderr and the command error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reachmon.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func cleanEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATABASE_URL", "SQLITE_PATH", "API_ADDR", "CHECK_INTERVAL_MS", "CHECK_TIMEOUT_MS",
		"ADMIN_API_KEYS", "PUBLIC_API_KEYS", "ALLOWED_ORIGINS", "SLACK_WEBHOOK_URL",
	} {
		t.Setenv(k, "")
	}
}

func TestRunValidate_ValidConfig(t *testing.T) {
	cleanEnv(t)
	t.Setenv("EDGE_HOST", "198.51.100.7")
	path := writeConfig(t, `
interval: 30s
timeout: 1s
targets:
  - name: edge
    host: ${EDGE_HOST}
  - name: db
    host: db.internal
    port: 5432
`)

	out, errOut, err := execute(t, "validate", "-c", path)
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}

	for _, phrase := range []string{
		"Config is valid!",
		"Store:       memory",
		"Interval:    30s",
		"Timeout:     1s",
		"Targets:     2",
	} {
		if !strings.Contains(out, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, out)
		}
	}
	if !strings.Contains(errOut, "ADMIN_API_KEYS is empty") {
		t.Errorf("expected key warning on stderr, got: %s", errOut)
	}
}

func TestRunValidate_InvalidTarget(t *testing.T) {
	cleanEnv(t)
	path := writeConfig(t, `
interval: 10s
targets:
  - host: 192.0.2.1
    interval: 1s
    timeout: 5s
`)

	_, _, err := execute(t, "validate", "-c", path)
	if err == nil {
		t.Fatal("validate command expected error for invalid config, got nil")
	}
	if !strings.Contains(err.Error(), "exceeds interval") {
		t.Errorf("error should mention the interval, got: %v", err)
	}
}

func TestRunValidate_UnknownKey(t *testing.T) {
	cleanEnv(t)
	path := writeConfig(t, "intervall: 10s\n")

	_, _, err := execute(t, "validate", "-c", path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse YAML") {
		t.Fatalf("want parse error, got %v", err)
	}
}

func TestRunValidate_MissingFile(t *testing.T) {
	cleanEnv(t)
	_, _, err := execute(t, "validate", "-c", "/nonexistent/path/reachmon.yaml")
	if err == nil {
		t.Fatal("validate command expected error for missing file, got nil")
	}
	if !strings.Contains(err.Error(), "failed to read") {
		t.Errorf("error should mention 'failed to read', got: %v", err)
	}
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "reachmon dev") {
		t.Fatalf("version output = %q", out)
	}
}
