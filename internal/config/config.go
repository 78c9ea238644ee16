package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML duration strings
// ("30s", "5m") as well as plain nanosecond integers.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err == nil {
		parsed, perr := time.ParseDuration(raw)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var ns int64
	if err := value.Decode(&ns); err != nil {
		return fmt.Errorf("invalid duration value: %w", err)
	}
	*d = Duration(ns)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) { return d.String(), nil }

// Config holds runtime configuration for slipway.
type Config struct {
	// Source checkout. Empty RepoURL means the pipeline builds the current
	// working directory instead of cloning.
	RepoURL    string `json:"repo_url" yaml:"repo_url"`
	Branch     string `json:"branch" yaml:"branch"`
	Dockerfile string `json:"dockerfile" yaml:"dockerfile"`

	// Image naming. The published reference is <registry_user>/<image>:<tag>
	// when RegistryUser is set, otherwise <image>:<tag>.
	Image        string `json:"image" yaml:"image"`
	Tag          string `json:"tag" yaml:"tag"`
	RegistryUser string `json:"registry_user" yaml:"registry_user"`
	RegistryPass string `json:"registry_pass" yaml:"registry_pass"`

	// VersionTags additionally publishes a semver tag (next patch above the
	// highest tag already present in the registry).
	VersionTags bool `json:"version_tags" yaml:"version_tags"`

	// Cutover target: the single named container slot on this host.
	ContainerName string `json:"container_name" yaml:"container_name"`
	HostPort      int    `json:"host_port" yaml:"host_port"`
	ContainerPort int    `json:"container_port" yaml:"container_port"`

	// Post-cutover HTTP probe of the new container via the mapped host port.
	// A zero VerifyTimeout disables the probe.
	VerifyTimeout  Duration `json:"verify_timeout" yaml:"verify_timeout"`
	VerifyInterval Duration `json:"verify_interval" yaml:"verify_interval"`
	VerifyPath     string        `json:"verify_path" yaml:"verify_path"`

	// Webhook listener
	ListenAddr    string `json:"listen_addr" yaml:"listen_addr"`
	WebhookSecret string `json:"webhook_secret" yaml:"webhook_secret"`

	// Dry-run: checkout, authenticate and build, but skip publish and cutover.
	DryRun bool `json:"dry_run" yaml:"dry_run"`

	// Notification configuration
	NotificationLevel string   `json:"notification_level" yaml:"notification_level"` // "all", "failure", "none"
	SlackWebhook      string   `json:"slack_webhook" yaml:"slack_webhook"`
	DiscordWebhook    string   `json:"discord_webhook" yaml:"discord_webhook"`
	GenericWebhookURL string   `json:"generic_webhook_url" yaml:"generic_webhook_url"`
	EmailHost         string   `json:"email_host" yaml:"email_host"`
	EmailPort         int      `json:"email_port" yaml:"email_port"`
	EmailUser         string   `json:"email_user" yaml:"email_user"`
	EmailPass         string   `json:"email_pass" yaml:"email_pass"`
	EmailTo           []string `json:"email_to" yaml:"email_to"`

	// Metrics
	MetricsEnabled bool `json:"metrics_enabled" yaml:"metrics_enabled"`
	MetricsPort    int  `json:"metrics_port" yaml:"metrics_port"`

	// InfluxDB (push)
	InfluxURL      string        `json:"influx_url" yaml:"influx_url"`
	InfluxToken    string        `json:"influx_token" yaml:"influx_token"`
	InfluxOrg      string        `json:"influx_org" yaml:"influx_org"`
	InfluxBucket   string        `json:"influx_bucket" yaml:"influx_bucket"`
	InfluxInterval Duration `json:"influx_interval" yaml:"influx_interval"`
}

// ImageRef returns the full image reference to build, publish and run.
func (c *Config) ImageRef() string {
	repo := c.Repository()
	tag := c.Tag
	if tag == "" {
		tag = "latest"
	}
	return fmt.Sprintf("%s:%s", repo, tag)
}

// Repository returns the image repository without a tag.
func (c *Config) Repository() string {
	if c.RegistryUser != "" && !strings.Contains(c.Image, "/") {
		return fmt.Sprintf("%s/%s", c.RegistryUser, c.Image)
	}
	return c.Image
}

// DefaultConfig returns a sane default configuration.
func DefaultConfig() *Config {
	return &Config{
		Dockerfile: "Dockerfile",

		Image: "flask-app",
		Tag:   "latest",

		ContainerName: "flask-app",
		HostPort:      80,
		ContainerPort: 5000,

		VerifyTimeout:  Duration(10 * time.Second),
		VerifyInterval: Duration(500 * time.Millisecond),
		VerifyPath:     "/",

		ListenAddr: ":8420",

		NotificationLevel: "all",

		// Metrics defaults (opt-in)
		MetricsEnabled: false,
		MetricsPort:    9090,

		InfluxInterval: Duration(1 * time.Minute),
	}
}

// Validate returns a list of non-fatal configuration warnings, such as
// incomplete notifier credential combinations or suspicious port values.
func (c *Config) Validate() []string {
	var warnings []string
	checks := []struct {
		cond bool
		msg  string
	}{
		{c.RegistryUser != "" && c.RegistryPass == "", "registry user provided but password/token is missing"},
		{c.RegistryPass != "" && c.RegistryUser == "", "registry password provided but user is missing"},
		{c.EmailHost != "" && len(c.EmailTo) == 0, "email host provided but no recipients configured (email_to)"},
		{c.EmailHost == "" && len(c.EmailTo) > 0, "email recipients configured but email host is empty"},
		{c.HostPort < 1 || c.HostPort > 65535, fmt.Sprintf("host_port %d is out of range", c.HostPort)},
		{c.ContainerPort < 1 || c.ContainerPort > 65535, fmt.Sprintf("container_port %d is out of range", c.ContainerPort)},
		{c.VerifyTimeout > 0 && c.VerifyInterval <= 0, "verify_timeout set but verify_interval is zero"},
		{c.WebhookSecret == "" && c.RepoURL != "", "webhook secret is empty; push events will not be authenticated"},
	}
	for _, ch := range checks {
		if ch.cond {
			warnings = append(warnings, ch.msg)
		}
	}
	return warnings
}

// LoadConfigFromFile loads config from a YAML file on top of the defaults.
func LoadConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
