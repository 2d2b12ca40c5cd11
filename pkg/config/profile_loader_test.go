package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeProfile(t *testing.T, dir, workspace, body string) {
	t.Helper()
	path := filepath.Join(dir, "profile_"+workspace+".yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadProfile(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "lab", `
name: Laboratory
workspace: lab
peers:
  - name: bench
    endpoint: bench.local:7700
    enabled: true
  - name: archive
    endpoint: archive.local:7700
    enabled: false
scope:
  frames: [measurement, calibration]
  horizon: "2026-01-01"
retry:
  max_retries: 6
rate_limit:
  per_second: 0.5
  burst: 2
`)

	p, err := LoadProfile(dir, "lab")
	if err != nil {
		t.Fatalf("LoadProfile(lab): %v", err)
	}
	if p.Name != "Laboratory" {
		t.Errorf("expected name 'Laboratory', got %q", p.Name)
	}
	if p.Retry.MaxRetries != 6 {
		t.Errorf("expected 6 retries, got %d", p.Retry.MaxRetries)
	}
	if len(p.Scope.Frames) != 2 {
		t.Errorf("expected 2 frames, got %d", len(p.Scope.Frames))
	}

	peers := p.EnabledPeers()
	if len(peers) != 1 || peers[0].Name != "bench" {
		t.Errorf("expected only the bench peer enabled, got %+v", peers)
	}
}

func TestLoadProfile_MissingWorkspaceFallsBackToFilename(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "field", "name: Field Kit\n")

	p, err := LoadProfile(dir, "field")
	if err != nil {
		t.Fatalf("LoadProfile(field): %v", err)
	}
	if p.Workspace != "field" {
		t.Errorf("expected workspace 'field', got %q", p.Workspace)
	}
}

func TestLoadProfile_NotFound(t *testing.T) {
	if _, err := LoadProfile(t.TempDir(), "ghost"); err == nil {
		t.Fatal("expected error for missing profile")
	}
}

func TestLoadAllProfiles(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "lab", "name: Laboratory\nworkspace: lab\n")
	writeProfile(t, dir, "field", "name: Field Kit\n")

	profiles, err := LoadAllProfiles(dir)
	if err != nil {
		t.Fatalf("LoadAllProfiles: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}
	if _, ok := profiles["field"]; !ok {
		t.Error("expected field profile keyed by filename-derived workspace")
	}
}

func TestLoadProfile_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "bad", "name: [unclosed\n")

	if _, err := LoadProfile(dir, "bad"); err == nil {
		t.Fatal("expected parse error")
	}
}
