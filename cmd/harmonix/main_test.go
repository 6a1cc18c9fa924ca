package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"register", "start", "execute", "status", "history", "list", "delete", "doctor"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func writeWorkspaceConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "harmonix.yaml")
	if err := os.WriteFile(path, []byte("version: 1\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

// writePersistentConfig configures the sqlite backend, since every CLI
// invocation rebuilds the engine from scratch: the in-memory backend would
// not survive from one cmd.Execute() call to the next, matching how it
// would not survive across separate process runs either.
func writePersistentConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "harmonix.db")
	path := filepath.Join(dir, "harmonix.yaml")
	contents := "version: 1\nstore:\n  backend: sqlite\n  path: " + dbPath + "\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func writeScriptFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "script.txt")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestRegisterStartExecuteStatusRoundTrip(t *testing.T) {
	configPath := writePersistentConfig(t)
	scriptPath := writeScriptFile(t, "<|start|>system<|message|>be terse<|end|>")

	cmd := buildRootCmd()
	cmd.SetArgs([]string{"--config", configPath, "register", "greet", scriptPath})
	var out bytes.Buffer
	cmd.SetOut(&out)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("register: %v", err)
	}

	cmd = buildRootCmd()
	cmd.SetArgs([]string{"--config", configPath, "start", "greet", "--session-id", "sess-1"})
	out.Reset()
	cmd.SetOut(&out)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("start: %v", err)
	}

	cmd = buildRootCmd()
	cmd.SetArgs([]string{"--config", configPath, "status", "sess-1"})
	out.Reset()
	cmd.SetOut(&out)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("status: %v", err)
	}
	if !bytes.Contains(out.Bytes(), []byte("sess-1")) {
		t.Fatalf("expected status output to mention session id, got %s", out.String())
	}
}

func TestListUsesConfiguredDefaultPageSize(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "harmonix.db")
	configPath := filepath.Join(dir, "harmonix.yaml")
	contents := "version: 1\nstore:\n  backend: sqlite\n  path: " + dbPath + "\nsession:\n  default_page_size: 1\n"
	if err := os.WriteFile(configPath, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	scriptPath := writeScriptFile(t, "<|start|>system<|message|>be terse<|end|>")

	cmd := buildRootCmd()
	cmd.SetArgs([]string{"--config", configPath, "register", "greet", scriptPath})
	cmd.SetOut(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("register: %v", err)
	}
	for _, id := range []string{"sess-a", "sess-b"} {
		cmd = buildRootCmd()
		cmd.SetArgs([]string{"--config", configPath, "start", "greet", "--session-id", id})
		cmd.SetOut(&bytes.Buffer{})
		if err := cmd.Execute(); err != nil {
			t.Fatalf("start %s: %v", id, err)
		}
	}

	cmd = buildRootCmd()
	cmd.SetArgs([]string{"--config", configPath, "list"})
	var out bytes.Buffer
	cmd.SetOut(&out)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("list: %v", err)
	}

	var resp struct {
		SessionIDs        []string `json:"sessionIds"`
		ContinuationToken string   `json:"continuationToken"`
	}
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("decode list output: %v\n%s", err, out.String())
	}
	if len(resp.SessionIDs) != 1 {
		t.Fatalf("expected one session id per configured page, got %v", resp.SessionIDs)
	}
	if resp.ContinuationToken == "" {
		t.Fatal("expected a continuation token for the second page")
	}
}

func TestDoctorSchemaPrintsConfigSchema(t *testing.T) {
	cmd := buildRootCmd()
	cmd.SetArgs([]string{"doctor", "--schema"})
	var out bytes.Buffer
	cmd.SetOut(&out)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("doctor --schema: %v", err)
	}
	if !bytes.Contains(out.Bytes(), []byte(`"store"`)) {
		t.Fatalf("expected config schema to describe the store section, got %s", out.String())
	}
}

func TestDoctorReportsConfigAndStore(t *testing.T) {
	configPath := writeWorkspaceConfig(t)

	cmd := buildRootCmd()
	cmd.SetArgs([]string{"--config", configPath, "doctor"})
	var out bytes.Buffer
	cmd.SetOut(&out)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("doctor: %v", err)
	}
	if !bytes.Contains(out.Bytes(), []byte("store: OK")) {
		t.Fatalf("expected doctor output to report store status, got %s", out.String())
	}
}
