package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFleetFile(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "fleet.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write fleet file: %v", err)
	}
	return path
}

func TestLoadResolvesWorkdirAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFleetFile(t, dir, `
version: "1"
fleet:
  name: dev
processes:
  - label: api
    command: ["./api", "--dev"]
  - label: web
    command: ["./web"]
    workdir: frontend
`)

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("load fleet: %v", err)
	}

	if doc.Fleet.Name != "dev" {
		t.Fatalf("unexpected fleet name %q", doc.Fleet.Name)
	}
	if got := doc.Defaults.Grace.Duration; got != 5*time.Second {
		t.Fatalf("expected default grace 5s, got %v", got)
	}
	if len(doc.Processes) != 2 {
		t.Fatalf("expected 2 processes, got %d", len(doc.Processes))
	}
	if doc.Processes[0].ResolvedWorkdir != dir {
		t.Fatalf("expected api workdir %q, got %q", dir, doc.Processes[0].ResolvedWorkdir)
	}
	want := filepath.Join(dir, "frontend")
	if doc.Processes[1].ResolvedWorkdir != want {
		t.Fatalf("expected web workdir %q, got %q", want, doc.Processes[1].ResolvedWorkdir)
	}
}

func TestLoadPreservesProcessOrder(t *testing.T) {
	dir := t.TempDir()
	path := writeFleetFile(t, dir, `
version: "1"
fleet:
  name: dev
processes:
  - label: api
    command: ["./api"]
  - label: search
    command: ["./search"]
  - label: webgraph
    command: ["./webgraph"]
  - label: frontend
    command: ["./frontend"]
`)

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("load fleet: %v", err)
	}

	want := []string{"api", "search", "webgraph", "frontend"}
	got := doc.Labels()
	if len(got) != len(want) {
		t.Fatalf("expected %d labels, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("label %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestLoadMergesEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "api.env")
	envContents := `
# comment
export TOKEN=secret
QUOTED="hello world"
SINGLE='as is'
TRAILING=value # comment
`
	if err := os.WriteFile(envPath, []byte(envContents), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	path := writeFleetFile(t, dir, `
version: "1"
fleet:
  name: dev
processes:
  - label: api
    command: ["./api"]
    envFromFile: api.env
    env:
      TOKEN: inline-wins
`)

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("load fleet: %v", err)
	}

	env := doc.Processes[0].Env
	if env["TOKEN"] != "inline-wins" {
		t.Fatalf("expected inline env to win, got %q", env["TOKEN"])
	}
	if env["QUOTED"] != "hello world" {
		t.Fatalf("unexpected QUOTED value %q", env["QUOTED"])
	}
	if env["SINGLE"] != "as is" {
		t.Fatalf("unexpected SINGLE value %q", env["SINGLE"])
	}
	if env["TRAILING"] != "value" {
		t.Fatalf("unexpected TRAILING value %q", env["TRAILING"])
	}
}

func TestLoadExpandsEnvReferences(t *testing.T) {
	t.Setenv("FLEET_TEST_PORT", "8080")

	dir := t.TempDir()
	path := writeFleetFile(t, dir, `
version: "1"
fleet:
  name: dev
processes:
  - label: api
    command: ["./api"]
    env:
      PORT: $FLEET_TEST_PORT
`)

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("load fleet: %v", err)
	}
	if got := doc.Processes[0].Env["PORT"]; got != "8080" {
		t.Fatalf("expected PORT 8080, got %q", got)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := writeFleetFile(t, dir, `
version: "1"
fleet:
  name: dev
processes:
  - label: api
    command: ["./api"]
    restartPolicy: always
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}

func TestLoadRejectsMissingEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFleetFile(t, dir, `
version: "1"
fleet:
  name: dev
processes:
  - label: api
    command: ["./api"]
    envFromFile: missing.env
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected missing env file to fail the load")
	}
}
