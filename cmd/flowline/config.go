package main

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config holds all flowline server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr string `json:"listen_addr"`
	DBPath     string `json:"db_path"` // "memory" selects the in-memory store
	LogLevel   string `json:"log_level"`
	NATSURL    string `json:"nats_url"` // empty disables the event bus
	Scheduler  bool   `json:"scheduler"`
	Metrics    bool   `json:"metrics"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr: ":8080",
		DBPath:     filepath.Join(flowlineDir(), "flowline.db"),
		LogLevel:   "info",
		Scheduler:  true,
		Metrics:    true,
	}
}

func flowlineDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowline"
	}
	return filepath.Join(home, ".flowline")
}

func settingsPath() string {
	return filepath.Join(flowlineDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("FLOWLINE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("FLOWLINE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FLOWLINE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FLOWLINE_NATS_URL"); v != "" {
		cfg.NATSURL = v
	}
	if v := os.Getenv("FLOWLINE_SCHEDULER"); v != "" {
		cfg.Scheduler = v == "true" || v == "1"
	}
	if v := os.Getenv("FLOWLINE_METRICS"); v != "" {
		cfg.Metrics = v == "true" || v == "1"
	}

	return cfg
}
