package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// run executes the root command against a throwaway data dir.
func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	configPath, verbose, jsonLogs = "", false, false
	interactive, serveAddr = false, ""
	factsLimit, factsOrder, factsConfidence = 0, "recent", 1.0
	searchResults = 5

	var out, errOut bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&errOut)
	RootCmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := RootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func offlineConfig(t *testing.T, backend string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DREAMER_DATA_DIR", filepath.Join(dir, "data"))

	path := filepath.Join(dir, "config.yaml")
	cfg := "llm:\n  provider: offline\nmemory:\n  backend: " + backend + "\n"
	if err := os.WriteFile(path, []byte(cfg), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestCLI_Root(t *testing.T) {
	want := map[string]bool{"serve": false, "chat": false, "dream": false, "facts": false, "memories": false, "config": false}
	for _, cmd := range RootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
	for _, flag := range []string{"config", "verbose", "json"} {
		if RootCmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("persistent flag --%s missing", flag)
		}
	}
}

func TestCLI_Config(t *testing.T) {
	cfg := offlineConfig(t, "chromem")

	if _, err := run(t, cfg, "config", "set", "gemini.api_key", "AIzaSyD-123456789"); err != nil {
		t.Fatalf("config set failed: %v", err)
	}
	out, err := run(t, cfg, "config", "get", "gemini.api_key")
	if err != nil {
		t.Fatalf("config get failed: %v", err)
	}
	if strings.TrimSpace(out) != "AIza...6789" {
		t.Errorf("expected masked key, got %q", out)
	}

	out, _ = run(t, cfg, "config", "get", "missing.key")
	if strings.TrimSpace(out) != "(not set)" {
		t.Errorf("expected (not set), got %q", out)
	}
}

func TestCLI_Facts(t *testing.T) {
	cfg := offlineConfig(t, "chromem")

	out, _ := run(t, cfg, "facts", "list")
	if !strings.Contains(out, "No facts known yet.") {
		t.Errorf("expected empty notice, got %q", out)
	}

	for _, f := range [][]string{{"Work", "Is a nurse"}, {"Goal", "Run a marathon"}} {
		if _, err := run(t, cfg, "facts", "add", f[0], f[1], "--confidence", "0.8"); err != nil {
			t.Fatalf("facts add failed: %v", err)
		}
	}

	out, err := run(t, cfg, "facts", "list", "--limit", "1")
	if err != nil {
		t.Fatalf("facts list failed: %v", err)
	}
	if !strings.Contains(out, "Run a marathon") || strings.Contains(out, "Is a nurse") {
		t.Errorf("expected only the newest fact, got %q", out)
	}

	out, _ = run(t, cfg, "facts", "list", "--order", "insertion")
	if strings.Index(out, "Is a nurse") > strings.Index(out, "Run a marathon") {
		t.Errorf("expected insertion order, got %q", out)
	}

	if _, err := run(t, cfg, "facts", "list", "--order", "sideways"); err == nil {
		t.Error("expected error for unknown order")
	}
}

func TestCLI_ChatOffline(t *testing.T) {
	cfg := offlineConfig(t, "sqlite")

	out, err := run(t, cfg, "chat", "I", "love", "hiking")
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if strings.TrimSpace(out) != "I'm listening." {
		t.Errorf("unexpected reply %q", out)
	}

	out, err = run(t, cfg, "memories", "search", "hiking", "-n", "2")
	if err != nil {
		t.Fatalf("memories search failed: %v", err)
	}
	if !strings.Contains(out, "[user] I love hiking") || !strings.Contains(out, "[ai] I'm listening.") {
		t.Errorf("expected both turns, got %q", out)
	}

	out, err = run(t, cfg, "dream")
	if err != nil {
		t.Fatalf("dream failed: %v", err)
	}
	if strings.TrimSpace(out) == "" {
		t.Error("expected a dream")
	}
}

func TestCLI_ChatRequiresMessage(t *testing.T) {
	cfg := offlineConfig(t, "chromem")
	if _, err := run(t, cfg, "chat"); err == nil {
		t.Error("expected error without a message")
	}
}

func TestCLI_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DREAMER_DATA_DIR", dir)
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("llm:\n  provider: carrier-pigeon\n"), 0600)

	_, err := run(t, path, "dream")
	if err == nil || !strings.Contains(err.Error(), "carrier-pigeon") {
		t.Errorf("expected invalid configuration error, got %v", err)
	}
}
