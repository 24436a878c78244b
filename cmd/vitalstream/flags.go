package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	LogFile         string
	Debug           bool
	DeviceID        string
	MetricsPort     int
	ShutdownTimeout time.Duration
	HealthInterval  time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func parseFlags(args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)

	fs.StringVar(&cfg.ConfigPath, "config",
		getEnv("VITALSTREAM_CONFIG", ""),
		"Path to a JSON or YAML configuration file (env: VITALSTREAM_CONFIG)")
	fs.StringVar(&cfg.ConfigPath, "c",
		getEnv("VITALSTREAM_CONFIG", ""),
		"Path to a JSON or YAML configuration file (env: VITALSTREAM_CONFIG)")

	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("VITALSTREAM_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: VITALSTREAM_LOG_LEVEL)")

	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("VITALSTREAM_LOG_FORMAT", "json"),
		"Log format: json, text (env: VITALSTREAM_LOG_FORMAT)")

	fs.StringVar(&cfg.LogFile, "log-file",
		getEnv("VITALSTREAM_LOG_FILE", ""),
		"Also write logs to this rotated file (env: VITALSTREAM_LOG_FILE)")

	fs.BoolVar(&cfg.Debug, "debug",
		getEnvBool("VITALSTREAM_DEBUG", false),
		"Enable debug logging (env: VITALSTREAM_DEBUG)")

	fs.StringVar(&cfg.DeviceID, "device-id", "",
		"Override device_id from the configuration")

	fs.IntVar(&cfg.MetricsPort, "metrics-port",
		getEnvInt("VITALSTREAM_METRICS_PORT", -1),
		"Metrics and health port, 0 to disable, -1 to use the configuration (env: VITALSTREAM_METRICS_PORT)")

	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("VITALSTREAM_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout per stage (env: VITALSTREAM_SHUTDOWN_TIMEOUT)")

	fs.DurationVar(&cfg.HealthInterval, "health-interval",
		getEnvDuration("VITALSTREAM_HEALTH_INTERVAL", 5*time.Second),
		"Health collection interval (env: VITALSTREAM_HEALTH_INTERVAL)")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = func() {
		printDetailedHelp(fs)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if cfg.MetricsPort < -1 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.MetricsPort)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive: %v", cfg.ShutdownTimeout)
	}
	if cfg.HealthInterval <= 0 {
		return fmt.Errorf("health interval must be positive: %v", cfg.HealthInterval)
	}
	return nil
}

func printDetailedHelp(fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(os.Stderr, `%s - bedside telemetry uploader

Reads vitals and waveform frames from the monitor's shared-memory ring,
compiles them into compressed batches and uploads them with retry and
circuit breaking.

Usage: %s [options]

Options:
`, appName, os.Args[0])
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Run with a config file
  %s --config=/etc/vitalstream/vitalstream.yaml

  # Run with debug logging in text format
  %s --log-level=debug --log-format=text

  # Configure through the environment
  export VITALSTREAM_CONFIG=/etc/vitalstream/vitalstream.yaml
  export VITALSTREAM_HTTP_URL=https://collector.example/v1/batches
  %s

  # Validate configuration only
  %s --config=vitalstream.yaml --validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
