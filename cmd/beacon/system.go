package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattjoyce/beacon/internal/api"
	"github.com/mattjoyce/beacon/internal/capability"
	"github.com/mattjoyce/beacon/internal/config"
	"github.com/mattjoyce/beacon/internal/events"
	"github.com/mattjoyce/beacon/internal/intake"
	"github.com/mattjoyce/beacon/internal/lock"
	"github.com/mattjoyce/beacon/internal/log"
)

func runSystemNoun(args []string) int {
	return runNoun("system", args, map[string]nounAction{
		"start": {runSystemStart, "start [--config PATH]"},
	}, []string{"start"})
}

func runIntakeNoun(args []string) int {
	return runNoun("intake", args, map[string]nounAction{
		"serve": {runIntakeServe, "serve [--config PATH] [--listen ADDR] [--secret S]"},
	}, []string{"serve"})
}

func runSystemStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return exitFailed
	}

	if *configPath == "" {
		discovered, err := config.DiscoverConfigDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return exitFailed
		}
		*configPath = discovered
		fmt.Fprintf(os.Stderr, "Using discovered config: %s\n", *configPath)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitFailed
	}
	if !cfg.API.Enabled {
		fmt.Fprintln(os.Stderr, "api.enabled is false; nothing to serve (use 'beacon alert send' for one-off alerts)")
		return exitFailed
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("beacon starting", "version", version, "config", cfg.SourcePath)

	lockPath := lock.PathFor(cfg.Service.StatePath)
	dl, err := lock.Acquire(lockPath)
	if err != nil {
		logger.Error("failed to acquire dispatch lock (another instance may be running)", "path", lockPath, "error", err)
		if errors.Is(err, lock.ErrHeld) {
			return exitBusy
		}
		return exitFailed
	}
	defer func() { _ = dl.Release() }()
	logger.Info("acquired dispatch lock", "path", lockPath)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := openState(ctx, cfg)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.Service.StatePath, "error", err)
		return exitFailed
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.Service.StatePath)

	// Nobody is at a keyboard: undecided capabilities are denied. Operators
	// pre-grant with 'beacon grant set'.
	hub := events.NewHub(256)
	defer hub.Close()
	d := newDispatcher(cfg, db, capability.DenyPrompter{}, hub)

	server := api.New(api.Config{
		Listen:        cfg.API.Listen,
		APIKey:        cfg.API.Auth.APIKey,
		DefaultUserID: cfg.Contacts.UserID,
	}, d.coord, d.client, hub, log.WithComponent("api"))

	logger.Info("beacon running (press Ctrl+C to stop)", "listen", cfg.API.Listen)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("api server failed", "error", err)
		return exitFailed
	}

	_ = d.coord.Cancel()
	logger.Info("beacon stopped")
	return exitOK
}

func runIntakeServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	listen := fs.String("listen", "", "Listen address (overrides intake.listen)")
	secret := fs.String("secret", "", "Signing secret (overrides intake.secret)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return exitFailed
	}

	// The receiver is usable without a config file.
	cfg := config.Defaults()
	if *configPath != "" || os.Getenv("BEACON_CONFIG_DIR") != "" {
		loaded, err := loadConfigForTool(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			return exitFailed
		}
		cfg = loaded
	}
	if *listen != "" {
		cfg.Intake.Listen = *listen
	}
	if *secret != "" {
		cfg.Intake.Secret = *secret
	}
	maxBody, err := config.ParseSize(cfg.Intake.MaxBodySize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid intake.max_body_size: %v\n", err)
		return exitFailed
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	server := intake.New(intake.Config{
		Listen:      cfg.Intake.Listen,
		Secret:      cfg.Intake.Secret,
		MaxBodySize: maxBody,
	}, log.WithComponent("intake"))
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("intake server failed", "error", err)
		return exitFailed
	}
	return exitOK
}
