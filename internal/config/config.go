// Package config resolves the runtime configuration: credentials from the
// environment, the default channel and the login→Discord-user mapping from a
// YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds everything the handlers and clients need.
type Config struct {
	// DiscordToken is the bot credential. Required for every event path.
	DiscordToken string
	// ChannelID is the channel where primary messages are posted. Required
	// for the opened-event path; other paths recover the channel from the
	// linkage record.
	ChannelID string
	// UserIDs maps GitHub logins to Discord user ids (exact match only).
	UserIDs map[string]string
	// WebhookSecret validates inbound webhook signatures in serve mode.
	WebhookSecret string

	GitHub GitHubConfig
}

// GitHubConfig selects between token and App-installation authentication.
type GitHubConfig struct {
	Token          string
	AppClientID    string
	InstallationID int64
	PrivateKeyPath string
	BaseURL        string
}

// fileConfig is the YAML file shape.
type fileConfig struct {
	ChannelID string            `yaml:"channel_id"`
	Users     map[string]string `yaml:"users"`
}

// Load builds the configuration from the environment, overlaid with the
// optional YAML file at path (empty path skips the file). A missing Discord
// token is a hard error; a missing channel only fails later, on the
// opened-event path.
func Load(path string) (*Config, error) {
	cfg := &Config{
		DiscordToken:  os.Getenv("THREADKEEPER_DISCORD_TOKEN"),
		ChannelID:     os.Getenv("THREADKEEPER_CHANNEL_ID"),
		WebhookSecret: os.Getenv("THREADKEEPER_WEBHOOK_SECRET"),
		UserIDs:       map[string]string{},
		GitHub: GitHubConfig{
			Token:          os.Getenv("GITHUB_TOKEN"),
			AppClientID:    os.Getenv("THREADKEEPER_GITHUB_CLIENT_ID"),
			PrivateKeyPath: os.Getenv("THREADKEEPER_GITHUB_PRIVATE_KEY"),
			BaseURL:        os.Getenv("THREADKEEPER_GITHUB_URL"),
		},
	}

	if raw := os.Getenv("THREADKEEPER_GITHUB_INSTALLATION_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing THREADKEEPER_GITHUB_INSTALLATION_ID: %w", err)
		}
		cfg.GitHub.InstallationID = id
	}

	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if cfg.DiscordToken == "" {
		return nil, fmt.Errorf("missing required credential: THREADKEEPER_DISCORD_TOKEN")
	}
	if cfg.GitHub.Token == "" && cfg.GitHub.AppClientID == "" {
		return nil, fmt.Errorf("missing GitHub credential: set GITHUB_TOKEN or THREADKEEPER_GITHUB_CLIENT_ID")
	}
	return cfg, nil
}

// applyFile overlays values from the YAML file. The environment wins for the
// channel so deployments can override it per environment.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}

	if c.ChannelID == "" {
		c.ChannelID = fc.ChannelID
	}
	for login, id := range fc.Users {
		c.UserIDs[login] = id
	}
	return nil
}
