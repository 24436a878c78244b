package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/c360/vitalstream/frame"
)

// CLIConfig holds simulator flags
type CLIConfig struct {
	SocketPath        string
	SlotCount         uint
	FrameSize         uint
	Rate              float64
	Duration          time.Duration
	Waveform          bool
	HeartbeatInterval time.Duration
	DeviceSeed        int64
	LogLevel          string
	LogFormat         string
	LogFile           string
	ShowVersion       bool
}

func parseFlags(args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)

	fs.StringVar(&cfg.SocketPath, "socket",
		getEnv("SENSORSIM_SOCKET", "/tmp/vitalstream.sock"),
		"Control socket path (env: SENSORSIM_SOCKET)")
	fs.UintVar(&cfg.SlotCount, "slots", uint(frame.DefaultSlotCount), "Ring slot count")
	fs.UintVar(&cfg.FrameSize, "frame-size", uint(frame.DefaultFrameSize), "Ring slot size in bytes")
	fs.Float64Var(&cfg.Rate, "rate",
		getEnvFloat("SENSORSIM_RATE", 60),
		"Vitals frames per second (env: SENSORSIM_RATE)")
	fs.DurationVar(&cfg.Duration, "duration", 0, "Stop after this long, 0 runs until interrupted")
	fs.BoolVar(&cfg.Waveform, "waveform", true, "Also write ECG, Pleth and Resp waveform blocks")
	fs.DurationVar(&cfg.HeartbeatInterval, "heartbeat", 50*time.Millisecond, "Heartbeat interval")
	fs.Int64Var(&cfg.DeviceSeed, "seed", 1, "Seed for the synthetic signal generator")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("SENSORSIM_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("SENSORSIM_LOG_FORMAT", "text"), "Log format: json, text")
	fs.StringVar(&cfg.LogFile, "log-file", "", "Also write logs to this rotated file")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion {
		return nil
	}
	if cfg.SocketPath == "" {
		return fmt.Errorf("socket path is required")
	}
	if cfg.SlotCount == 0 || cfg.SlotCount > 1<<20 {
		return fmt.Errorf("invalid slot count: %d", cfg.SlotCount)
	}
	if cfg.FrameSize < frame.MinFrameSize || cfg.FrameSize > 1<<16 {
		return fmt.Errorf("frame size %d must be between %d and %d", cfg.FrameSize, frame.MinFrameSize, 1<<16)
	}
	if cfg.Rate <= 0 || cfg.Rate > 10000 {
		return fmt.Errorf("rate must be in (0, 10000]: %v", cfg.Rate)
	}
	if cfg.Duration < 0 {
		return fmt.Errorf("duration must not be negative: %v", cfg.Duration)
	}
	if cfg.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive: %v", cfg.HeartbeatInterval)
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
