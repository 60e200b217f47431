// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Adminbot is a Matrix bot for homeserver administration. It listens in
// its command rooms for "!command" messages, walks the issuer through
// confirmation (a keyword or a one-time code), and performs the
// operation through the Synapse admin API.
//
// One instance runs per homeserver. In a federated deployment every
// instance sees the same command room; each acts on its own server's
// users, and the one configured as coordinator handles the chat
// interaction.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/adminbot/admin"
	"github.com/bureau-foundation/adminbot/bot"
	"github.com/bureau-foundation/adminbot/commands"
	"github.com/bureau-foundation/adminbot/config"
	"github.com/bureau-foundation/adminbot/lib/clock"
	"github.com/bureau-foundation/adminbot/lib/secret"
	"github.com/bureau-foundation/adminbot/lib/version"
	"github.com/bureau-foundation/adminbot/messaging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		logLevel    string
		showVersion bool
	)
	pflag.StringVar(&configPath, "config", "", "path to adminbot.yaml (default: $ADMINBOT_CONFIG)")
	pflag.StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		fmt.Printf("adminbot %s\n", version.Info())
		return nil
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	level, err := parseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.HomeserverURL,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	password, err := secret.NewFromString(cfg.BotPassword)
	if err != nil {
		return fmt.Errorf("protecting password: %w", err)
	}
	session, err := client.Login(ctx, cfg.BotUsername, password)
	password.Close()
	if err != nil {
		return fmt.Errorf("logging in as %q: %w", cfg.BotUsername, err)
	}
	defer session.Close()
	serverName := session.UserID().Server()
	logger.Info("logged in",
		"user_id", session.UserID(),
		"device_id", session.DeviceID(),
		"coordinator", cfg.IsCoordinator,
	)

	// The admin API client reuses the bot's own access token; the bot
	// account must be a Synapse admin.
	adminToken, err := secret.NewFromString(session.AccessToken())
	if err != nil {
		return fmt.Errorf("protecting admin token: %w", err)
	}
	defer adminToken.Close()
	adminClient, err := admin.NewClient(admin.ClientConfig{
		HomeserverURL:     cfg.HomeserverURL,
		AccessToken:       adminToken,
		Logger:            logger,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	if err != nil {
		return err
	}

	validator, closeSeeds, err := buildValidator(cfg)
	if err != nil {
		return err
	}
	defer closeSeeds()

	definitions := []bot.Definition{
		commands.ServerNotice(adminClient, validator),
		commands.ResetPassword(adminClient, validator),
		commands.AccountValidity(adminClient, validator),
		commands.Deactivate(adminClient, validator),
		commands.Ping(),
	}
	definitions = append(definitions, commands.Help(definitions...))

	dispatcher, err := bot.New(bot.Config{
		Session:      session,
		Definitions:  definitions,
		Authorizer:   bot.NewAuthorizer(buildRoles(cfg)),
		AllowedRooms: cfg.AllowedRoomIDs,
		Coordinator:  cfg.IsCoordinator,
		ServerName:   serverName,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	for _, roomID := range cfg.AllowedRoomIDs {
		if _, err := session.JoinRoom(ctx, roomID); err != nil {
			logger.Warn("failed to join room", "room_id", roomID, "error", err)
		}
	}

	listener, err := messaging.NewListener(messaging.ListenerConfig{
		Session: session,
		Handler: dispatcher.HandleEvent,
		Rooms:   cfg.AllowedRoomIDs,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return listener.Run(ctx)
	})

	err = group.Wait()
	// Let in-flight commands wind down before the process exits.
	dispatcher.Wait()
	if errors.Is(err, context.Canceled) {
		logger.Info("shut down")
		return nil
	}
	return err
}

// buildValidator selects the second confirmation gate: one-time codes
// when TOTP seeds are configured, a plain confirmation keyword
// otherwise. The returned cleanup releases the seed buffers.
func buildValidator(cfg *config.Config) (bot.Validator, func(), error) {
	if len(cfg.TOTPs) == 0 {
		return bot.ConfirmValidator{}, func() {}, nil
	}

	seeds := make(map[string]*secret.Buffer, len(cfg.TOTPs))
	closeSeeds := func() {
		for _, buffer := range seeds {
			buffer.Close()
		}
	}
	for user, seed := range cfg.TOTPs {
		buffer, err := secret.NewFromString(seed)
		if err != nil {
			closeSeeds()
			return nil, nil, fmt.Errorf("protecting TOTP seed for %s: %w", user, err)
		}
		seeds[user] = buffer
	}
	return &bot.TOTPValidator{Seeds: seeds, Clock: clock.Real()}, closeSeeds, nil
}

// buildRoles flattens the config's role map in stable name order.
func buildRoles(cfg *config.Config) []bot.Role {
	roles := make([]bot.Role, 0, len(cfg.Roles))
	for _, name := range slices.Sorted(maps.Keys(cfg.Roles)) {
		role := cfg.Roles[name]
		roles = append(roles, bot.Role{
			Name:            name,
			AllCommands:     role.AllCommands,
			AllowedCommands: role.AllowedCommands,
			UserIDs:         role.UserIDs,
		})
	}
	return roles
}

func parseLogLevel(name string) (slog.Level, error) {
	switch name {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}
