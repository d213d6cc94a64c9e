// AIBBOT terminal client - drives one chat session against the policy backend
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/DonggunSe0/aibbot/internal/config"
	"github.com/DonggunSe0/aibbot/internal/domain"
	"github.com/DonggunSe0/aibbot/internal/gateway"
	"github.com/DonggunSe0/aibbot/internal/profile"
	"github.com/DonggunSe0/aibbot/internal/session"
	"github.com/DonggunSe0/aibbot/internal/store"
)

const (
	tuiNamespace = "tui"
	deviceIDKey  = "device_id"
)

func main() {
	dataDir := flag.String("data", defaultDataDir(), "directory for the local profile database and log")
	flag.Parse()

	if err := run(*dataDir); err != nil {
		fmt.Fprintln(os.Stderr, "aibbot-tui:", err)
		os.Exit(1)
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".aibbot"
	}
	return filepath.Join(home, ".aibbot")
}

func run(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// The terminal belongs to the UI, so logs go to a file.
	logFile, err := os.OpenFile(filepath.Join(dataDir, "tui.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	logger := slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	repo, err := store.NewSQLite(filepath.Join(dataDir, "tui.db"))
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	ctx := context.Background()
	deviceID, err := localDeviceID(ctx, repo)
	if err != nil {
		return err
	}

	backend := gateway.New(cfg.Backend.BaseURL, cfg.Backend.Timeout, logger)
	ctrl := session.New(deviceID, uuid.NewString(), backend, profile.NewStore(repo), session.Options{
		NotificationTTL:  cfg.Session.NotificationTTL,
		SyncRefreshDelay: cfg.Session.SyncRefreshDelay,
		RecentDays:       cfg.Session.RecentDays,
		RecentLimit:      cfg.Session.RecentLimit,
		Logger:           logger,
	})
	defer ctrl.Close()

	snapshots, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	slog.Info("Starting terminal session", "device_id", deviceID, "backend", cfg.Backend.BaseURL)

	p := tea.NewProgram(newModel(ctrl, snapshots), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}

// localDeviceID returns the device id of this machine, creating and
// registering one on first run so the saved profile survives restarts.
func localDeviceID(ctx context.Context, repo store.Repository) (string, error) {
	id, ok, err := repo.GetValue(ctx, tuiNamespace, deviceIDKey)
	if err != nil {
		return "", fmt.Errorf("read device id: %w", err)
	}
	if ok && id != "" {
		if err := repo.TouchDevice(ctx, id, time.Now()); err != nil {
			slog.Warn("Failed to touch device", "device_id", id, "error", err)
		}
		return id, nil
	}

	id = uuid.NewString()
	now := time.Now()
	if err := repo.UpsertDevice(ctx, &domain.Device{
		DeviceID:   id,
		Label:      "terminal",
		LastSeenAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		return "", fmt.Errorf("register device: %w", err)
	}
	if err := repo.PutValue(ctx, tuiNamespace, deviceIDKey, id); err != nil {
		return "", fmt.Errorf("save device id: %w", err)
	}
	return id, nil
}
