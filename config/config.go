// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/adminbot/lib/ref"
)

// Config is the master configuration for the admin bot.
type Config struct {
	// HomeserverURL is the base URL of the Matrix homeserver
	// (e.g., "https://matrix.example.org").
	HomeserverURL string `yaml:"homeserver_url"`

	// BotUsername is the localpart the bot logs in as.
	BotUsername string `yaml:"bot_username"`

	// BotPassword is the bot account's password. The password is moved
	// into locked memory at startup; it lives in the config file, so
	// keep the file's permissions tight.
	BotPassword string `yaml:"bot_password"`

	// IsCoordinator marks this instance as the one that prompts,
	// reacts, and posts reports. Exactly one instance per command room
	// should be the coordinator.
	IsCoordinator bool `yaml:"is_coordinator"`

	// AllowedRoomIDs restricts command processing to these rooms.
	// Empty means every joined room.
	AllowedRoomIDs []ref.RoomID `yaml:"allowed_room_ids"`

	// TOTPs maps fully-qualified user IDs to base32 TOTP seeds. When
	// non-empty, destructive commands require a one-time code instead
	// of a plain confirmation keyword.
	TOTPs map[string]string `yaml:"totps"`

	// Roles grant users access to commands. With no roles at all,
	// every user may run every command.
	Roles map[string]RoleConfig `yaml:"roles"`

	// RequestsPerSecond caps the admin API request rate. Zero means
	// no limit.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// LogLevel is one of debug, info, warn, error. Default: info.
	LogLevel string `yaml:"log_level"`
}

// RoleConfig is one named role in the config file.
type RoleConfig struct {
	// AllCommands grants every command, current and future.
	AllCommands bool `yaml:"all_commands"`

	// AllowedCommands grants the listed command keywords.
	AllowedCommands []string `yaml:"allowed_commands"`

	// UserIDs are the members of this role.
	UserIDs []ref.UserID `yaml:"user_ids"`
}

// Default returns the default configuration. These defaults ensure all
// fields have sensible zero-values, not a fallback: the config file is
// required.
func Default() *Config {
	return &Config{
		IsCoordinator: true,
		LogLevel:      "info",
	}
}

// Load loads configuration from the ADMINBOT_CONFIG environment
// variable. There are no fallbacks: if it is not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("ADMINBOT_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("ADMINBOT_CONFIG environment variable not set; " +
			"set it to the path of your adminbot.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. The config
// file is the single source of truth; environment variables do not
// override config values.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var problems []error
	if c.HomeserverURL == "" {
		problems = append(problems, errors.New("homeserver_url is required"))
	}
	if c.BotUsername == "" {
		problems = append(problems, errors.New("bot_username is required"))
	}
	if c.BotPassword == "" {
		problems = append(problems, errors.New("bot_password is required"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	for user := range c.TOTPs {
		if _, err := ref.ParseUserID(user); err != nil {
			problems = append(problems, fmt.Errorf("totps: %w", err))
		}
	}
	for name, role := range c.Roles {
		if !role.AllCommands && len(role.AllowedCommands) == 0 {
			problems = append(problems, fmt.Errorf("role %q grants no commands", name))
		}
		if len(role.UserIDs) == 0 {
			problems = append(problems, fmt.Errorf("role %q has no members", name))
		}
	}
	if c.RequestsPerSecond < 0 {
		problems = append(problems, errors.New("requests_per_second must not be negative"))
	}
	return errors.Join(problems...)
}
