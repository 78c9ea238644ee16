package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := loadConfig("")
	if cfg.ContainerName != "flask-app" || cfg.HostPort != 80 || cfg.ContainerPort != 5000 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfigLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	yaml := "image: myapp\nhost_port: 8080\nverify_timeout: 30s\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	// env overrides the file
	t.Setenv("SLIPWAY_HOST_PORT", "9090")

	cfg := loadConfig(path)
	if cfg.Image != "myapp" {
		t.Fatalf("expected image from file, got %q", cfg.Image)
	}
	if cfg.HostPort != 9090 {
		t.Fatalf("expected env to override file, got %d", cfg.HostPort)
	}
	if cfg.VerifyTimeout.Std() != 30*time.Second {
		t.Fatalf("expected verify_timeout 30s, got %s", cfg.VerifyTimeout)
	}
}

func TestCheckDockerSocketAccessMissingSocket(t *testing.T) {
	// a missing socket is not fatal
	if err := checkDockerSocketAccess(filepath.Join(t.TempDir(), "docker.sock")); err != nil {
		t.Fatalf("expected nil for missing socket, got %v", err)
	}
}
