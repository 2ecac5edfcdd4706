// Package config resolves the batching engine's settings from, in
// order of precedence, environment variables, an optional YAML file,
// and built-in defaults. CLI flags are not read here; callers apply
// them on top of the result.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	Port            int    `yaml:"port"`
	DeliverMS       int    `yaml:"deliver_ms"`
	EmbedLimit      int    `yaml:"embed_limit"`
	WebhookEndpoint string `yaml:"webhook_endpoint"`
}

// Defaults returns the built-in configuration values from spec §6.
func Defaults() Config {
	return Config{
		Port:            8080,
		DeliverMS:       7000,
		EmbedLimit:      10,
		WebhookEndpoint: "https://discord.com/api/webhooks/",
	}
}

// LoadFile reads an optional YAML overlay on top of the defaults. A
// missing path is not an error: the standalone binary treats "-config"
// as optional and falls back to defaults/env/flags.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays LISTEN_PORT/PORT, DELIVER_MS, EMBED_LIMIT, and
// DISCORD_WEBHOOK_ENDPOINT on top of cfg, matching spec §6's
// environment table. Env values take precedence over whatever cfg
// already holds (file or defaults), but not over flags, which callers
// apply after ApplyEnv.
func ApplyEnv(cfg Config) Config {
	if v := firstNonEmpty(os.Getenv("LISTEN_PORT"), os.Getenv("PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("DELIVER_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DeliverMS = n
		}
	}
	if v := os.Getenv("EMBED_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EmbedLimit = n
		}
	}
	if v := os.Getenv("DISCORD_WEBHOOK_ENDPOINT"); v != "" {
		cfg.WebhookEndpoint = v
	}
	return cfg
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
