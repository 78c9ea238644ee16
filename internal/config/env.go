package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides reads configuration values from SLIPWAY_* environment
// variables and overrides fields in the provided Config. Returns an error
// if a value fails to parse.
func ApplyEnvOverrides(cfg *Config) error {
	if err := applySourceEnv(cfg); err != nil {
		return err
	}
	if err := applyImageEnv(cfg); err != nil {
		return err
	}
	if err := applyCutoverEnv(cfg); err != nil {
		return err
	}
	if err := applyServerEnv(cfg); err != nil {
		return err
	}
	if err := applyNotificationEnv(cfg); err != nil {
		return err
	}
	if err := applyEmailEnv(cfg); err != nil {
		return err
	}
	if err := applyMetricsEnv(cfg); err != nil {
		return err
	}
	return applyInfluxEnv(cfg)
}

func applySourceEnv(cfg *Config) error {
	setStringEnv("SLIPWAY_REPO_URL", &cfg.RepoURL)
	setStringEnv("SLIPWAY_BRANCH", &cfg.Branch)
	setStringEnv("SLIPWAY_DOCKERFILE", &cfg.Dockerfile)
	return setBoolEnv("SLIPWAY_DRY_RUN", func(b bool) { cfg.DryRun = b })
}

func applyImageEnv(cfg *Config) error {
	setStringEnv("SLIPWAY_IMAGE", &cfg.Image)
	setStringEnv("SLIPWAY_TAG", &cfg.Tag)
	setStringEnv("SLIPWAY_REGISTRY_USER", &cfg.RegistryUser)
	setStringEnv("SLIPWAY_REGISTRY_PASS", &cfg.RegistryPass)
	return setBoolEnv("SLIPWAY_VERSION_TAGS", func(b bool) { cfg.VersionTags = b })
}

func applyCutoverEnv(cfg *Config) error {
	setStringEnv("SLIPWAY_CONTAINER_NAME", &cfg.ContainerName)
	if err := setIntEnv("SLIPWAY_HOST_PORT", &cfg.HostPort); err != nil {
		return err
	}
	if err := setIntEnv("SLIPWAY_CONTAINER_PORT", &cfg.ContainerPort); err != nil {
		return err
	}
	if err := setDurationEnv("SLIPWAY_VERIFY_TIMEOUT", &cfg.VerifyTimeout); err != nil {
		return err
	}
	if err := setDurationEnv("SLIPWAY_VERIFY_INTERVAL", &cfg.VerifyInterval); err != nil {
		return err
	}
	setStringEnv("SLIPWAY_VERIFY_PATH", &cfg.VerifyPath)
	return nil
}

func applyServerEnv(cfg *Config) error {
	setStringEnv("SLIPWAY_LISTEN_ADDR", &cfg.ListenAddr)
	setStringEnv("SLIPWAY_WEBHOOK_SECRET", &cfg.WebhookSecret)
	return nil
}

func applyNotificationEnv(cfg *Config) error {
	setStringEnv("SLIPWAY_NOTIFICATION_LEVEL", &cfg.NotificationLevel)
	setStringEnv("SLIPWAY_SLACK_WEBHOOK", &cfg.SlackWebhook)
	setStringEnv("SLIPWAY_DISCORD_WEBHOOK", &cfg.DiscordWebhook)
	setStringEnv("SLIPWAY_GENERIC_WEBHOOK_URL", &cfg.GenericWebhookURL)
	return nil
}

func applyEmailEnv(cfg *Config) error {
	setStringEnv("SLIPWAY_EMAIL_HOST", &cfg.EmailHost)
	setStringEnv("SLIPWAY_EMAIL_USER", &cfg.EmailUser)
	setStringEnv("SLIPWAY_EMAIL_PASS", &cfg.EmailPass)
	if err := setIntEnv("SLIPWAY_EMAIL_PORT", &cfg.EmailPort); err != nil {
		return err
	}
	if v := os.Getenv("SLIPWAY_EMAIL_TO"); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.EmailTo = parts
	}
	return nil
}

func applyMetricsEnv(cfg *Config) error {
	if err := setBoolEnv("SLIPWAY_METRICS_ENABLED", func(b bool) { cfg.MetricsEnabled = b }); err != nil {
		return err
	}
	return setIntEnv("SLIPWAY_METRICS_PORT", &cfg.MetricsPort)
}

func applyInfluxEnv(cfg *Config) error {
	setStringEnv("SLIPWAY_INFLUX_URL", &cfg.InfluxURL)
	setStringEnv("SLIPWAY_INFLUX_TOKEN", &cfg.InfluxToken)
	setStringEnv("SLIPWAY_INFLUX_ORG", &cfg.InfluxOrg)
	setStringEnv("SLIPWAY_INFLUX_BUCKET", &cfg.InfluxBucket)
	return setDurationEnv("SLIPWAY_INFLUX_INTERVAL", &cfg.InfluxInterval)
}

func setStringEnv(env string, target *string) {
	if v := os.Getenv(env); v != "" {
		*target = v
	}
}

func setIntEnv(env string, target *int) error {
	if v := os.Getenv(env); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", env, err)
		}
		*target = n
	}
	return nil
}

func setDurationEnv(env string, target *Duration) error {
	if v := os.Getenv(env); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", env, err)
		}
		*target = Duration(d)
	}
	return nil
}

func setBoolEnv(env string, setter func(bool)) error {
	if v := os.Getenv(env); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", env, err)
		}
		setter(b)
	}
	return nil
}
