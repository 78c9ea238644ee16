package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/slipway-sh/slipway/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	c := config.DefaultConfig()
	if c.Image != "flask-app" {
		t.Fatalf("expected default image flask-app, got %q", c.Image)
	}
	if c.ContainerName != "flask-app" {
		t.Fatalf("expected default container name flask-app, got %q", c.ContainerName)
	}
	if c.HostPort != 80 || c.ContainerPort != 5000 {
		t.Fatalf("expected default port mapping 80:5000, got %d:%d", c.HostPort, c.ContainerPort)
	}
	if c.Tag != "latest" {
		t.Fatalf("expected default tag latest, got %q", c.Tag)
	}
	if c.VerifyInterval <= 0 {
		t.Fatal("expected a positive default verify interval")
	}
}

func TestImageRef(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*config.Config)
		want string
	}{
		{"defaults without user", func(c *config.Config) {}, "flask-app:latest"},
		{"user prefixes repository", func(c *config.Config) { c.RegistryUser = "alice" }, "alice/flask-app:latest"},
		{"explicit repository wins", func(c *config.Config) { c.RegistryUser = "alice"; c.Image = "acme/web" }, "acme/web:latest"},
		{"empty tag falls back to latest", func(c *config.Config) { c.Tag = "" }, "flask-app:latest"},
		{"custom tag", func(c *config.Config) { c.RegistryUser = "alice"; c.Tag = "v1.2.3" }, "alice/flask-app:v1.2.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := config.DefaultConfig()
			tt.mut(c)
			if got := c.ImageRef(); got != tt.want {
				t.Fatalf("ImageRef() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RegistryUser = "alice"
	// missing password
	if w := cfg.Validate(); len(w) == 0 {
		t.Fatal("expected warning for missing registry password, got none")
	}

	cfg2 := config.DefaultConfig()
	cfg2.EmailHost = "mail"
	if w := cfg2.Validate(); len(w) == 0 {
		t.Fatal("expected email warnings, got none")
	}

	cfg3 := config.DefaultConfig()
	cfg3.HostPort = 0
	if w := cfg3.Validate(); len(w) == 0 {
		t.Fatal("expected port warning, got none")
	}

	cfg4 := config.DefaultConfig()
	cfg4.RegistryUser = "alice"
	cfg4.RegistryPass = "secret"
	if w := cfg4.Validate(); len(w) != 0 {
		t.Fatalf("expected no warnings, got %v", w)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	content := `
repo_url: https://github.com/acme/hello.git
image: hello
registry_user: alice
host_port: 8080
verify_timeout: 30s
version_tags: true
`
	path := filepath.Join(t.TempDir(), "slipway.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFromFile failed: %v", err)
	}
	if cfg.RepoURL != "https://github.com/acme/hello.git" {
		t.Fatalf("unexpected repo_url %q", cfg.RepoURL)
	}
	if cfg.ImageRef() != "alice/hello:latest" {
		t.Fatalf("unexpected image ref %q", cfg.ImageRef())
	}
	if cfg.HostPort != 8080 {
		t.Fatalf("expected host_port 8080, got %d", cfg.HostPort)
	}
	if cfg.VerifyTimeout.Std() != 30*time.Second {
		t.Fatalf("expected verify_timeout 30s, got %v", cfg.VerifyTimeout)
	}
	if !cfg.VersionTags {
		t.Fatal("expected version_tags to be true")
	}
	// defaults untouched by file
	if cfg.ContainerPort != 5000 {
		t.Fatalf("expected default container_port 5000, got %d", cfg.ContainerPort)
	}
}

func TestLoadConfigFromFileMissing(t *testing.T) {
	if _, err := config.LoadConfigFromFile(filepath.Join(t.TempDir(), "absent.yml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
