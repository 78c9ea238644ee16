package config_test

import (
	"testing"
	"time"

	"github.com/slipway-sh/slipway/internal/config"
)

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("SLIPWAY_REPO_URL", "https://github.com/acme/hello.git")
	t.Setenv("SLIPWAY_IMAGE", "hello")
	t.Setenv("SLIPWAY_REGISTRY_USER", "alice")
	t.Setenv("SLIPWAY_REGISTRY_PASS", "hunter2")
	t.Setenv("SLIPWAY_CONTAINER_NAME", "hello-web")
	t.Setenv("SLIPWAY_HOST_PORT", "8080")
	t.Setenv("SLIPWAY_VERIFY_TIMEOUT", "45s")
	t.Setenv("SLIPWAY_VERSION_TAGS", "true")
	t.Setenv("SLIPWAY_DRY_RUN", "true")
	t.Setenv("SLIPWAY_EMAIL_TO", "a@example.com, b@example.com")

	cfg := config.DefaultConfig()
	if err := config.ApplyEnvOverrides(cfg); err != nil {
		t.Fatalf("ApplyEnvOverrides failed: %v", err)
	}

	if cfg.RepoURL != "https://github.com/acme/hello.git" {
		t.Fatalf("unexpected repo url %q", cfg.RepoURL)
	}
	if cfg.ImageRef() != "alice/hello:latest" {
		t.Fatalf("unexpected image ref %q", cfg.ImageRef())
	}
	if cfg.ContainerName != "hello-web" {
		t.Fatalf("unexpected container name %q", cfg.ContainerName)
	}
	if cfg.HostPort != 8080 {
		t.Fatalf("expected host port 8080, got %d", cfg.HostPort)
	}
	if cfg.VerifyTimeout.Std() != 45*time.Second {
		t.Fatalf("expected verify timeout 45s, got %v", cfg.VerifyTimeout)
	}
	if !cfg.VersionTags || !cfg.DryRun {
		t.Fatal("expected version_tags and dry_run to be enabled")
	}
	if len(cfg.EmailTo) != 2 || cfg.EmailTo[1] != "b@example.com" {
		t.Fatalf("unexpected email recipients %v", cfg.EmailTo)
	}
}

func TestApplyEnvOverridesInvalidValues(t *testing.T) {
	tests := []struct {
		env, val string
	}{
		{"SLIPWAY_HOST_PORT", "eighty"},
		{"SLIPWAY_VERIFY_TIMEOUT", "soon"},
		{"SLIPWAY_METRICS_ENABLED", "maybe"},
		{"SLIPWAY_INFLUX_INTERVAL", "often"},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv(tt.env, tt.val)
			cfg := config.DefaultConfig()
			if err := config.ApplyEnvOverrides(cfg); err == nil {
				t.Fatalf("expected error for %s=%q", tt.env, tt.val)
			}
		})
	}
}

func TestApplyEnvOverridesEmptyEnvKeepsDefaults(t *testing.T) {
	cfg := config.DefaultConfig()
	want := *cfg
	if err := config.ApplyEnvOverrides(cfg); err != nil {
		t.Fatalf("ApplyEnvOverrides failed: %v", err)
	}
	if cfg.Image != want.Image || cfg.HostPort != want.HostPort || cfg.ListenAddr != want.ListenAddr {
		t.Fatal("expected defaults to be preserved when no env vars are set")
	}
}
