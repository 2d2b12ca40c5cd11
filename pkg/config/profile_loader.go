package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// WorkspaceProfile is the per-workspace configuration loaded from YAML:
// which peers a workspace syncs with, which frames are in scope, and how
// aggressively the engine retries.
type WorkspaceProfile struct {
	Name      string          `yaml:"name" json:"name"`
	Workspace string          `yaml:"workspace" json:"workspace"`
	Peers     []PeerConfig    `yaml:"peers,omitempty" json:"peers,omitempty"`
	Scope     ScopeConfig     `yaml:"scope" json:"scope"`
	Retry     RetryConfig     `yaml:"retry" json:"retry"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
}

// PeerConfig names one sync peer.
type PeerConfig struct {
	Name     string `yaml:"name" json:"name"`
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	Enabled  bool   `yaml:"enabled" json:"enabled"`
}

// ScopeConfig bounds what a sync session covers.
type ScopeConfig struct {
	Frames  []string `yaml:"frames,omitempty" json:"frames,omitempty"`
	Horizon string   `yaml:"horizon,omitempty" json:"horizon,omitempty"`
}

// RetryConfig tunes the sync engine's retry behavior.
type RetryConfig struct {
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
}

// RateLimitConfig caps outbound sync frequency.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second" json:"per_second"`
	Burst     int     `yaml:"burst" json:"burst"`
}

// LoadProfile loads a workspace profile YAML by workspace name. It searches
// the profiles directory for profile_<name>.yaml.
func LoadProfile(profilesDir, workspace string) (*WorkspaceProfile, error) {
	workspace = strings.ToLower(workspace)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", workspace))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", workspace, err)
	}

	var profile WorkspaceProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", workspace, err)
	}

	if profile.Workspace == "" {
		profile.Workspace = workspace
	}

	return &profile, nil
}

// LoadAllProfiles loads all profile_*.yaml files from the profiles directory.
func LoadAllProfiles(profilesDir string) (map[string]*WorkspaceProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*WorkspaceProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var profile WorkspaceProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		if profile.Workspace == "" {
			// Extract workspace from filename: profile_lab.yaml -> lab
			base := filepath.Base(path)
			profile.Workspace = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}

		profiles[profile.Workspace] = &profile
	}

	return profiles, nil
}

// EnabledPeers returns the peers this workspace actively syncs with.
func (p *WorkspaceProfile) EnabledPeers() []PeerConfig {
	var out []PeerConfig
	for _, peer := range p.Peers {
		if peer.Enabled && peer.Endpoint != "" {
			out = append(out, peer)
		}
	}
	return out
}
