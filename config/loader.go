package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/vitalstream/errors"
	"github.com/c360/vitalstream/frame"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "VITALSTREAM"

type fileFormat int

const (
	formatUnknown fileFormat = iota
	formatJSON
	formatYAML
)

func formatOf(path string) fileFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return formatJSON
	case ".yaml", ".yml":
		return formatYAML
	default:
		return formatUnknown
	}
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:    []string{},
		envPrefix: EnvPrefix,
	}
}

// AddLayer adds a configuration file layer
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load loads and merges all configuration layers
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "load "+path)
		}
		if l.validation {
			if err := validateLayer(raw); err != nil {
				return nil, errors.WrapInvalid(err, "Loader", "Load", "validate "+path)
			}
		}
		cfg, err = l.mergeFromMap(cfg, raw)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "merge "+path)
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		DeviceID: "monitor-01",
		SharedMemory: SharedMemoryConfig{
			SocketPath: "/tmp/vitalstream.sock",
			SlotCount:  frame.DefaultSlotCount,
			FrameSize:  frame.DefaultFrameSize,
		},
		Control: ControlConfig{
			StartupTimeout: Duration(5 * time.Second),
			MaxAttempts:    10,
			InitialDelay:   Duration(50 * time.Millisecond),
			MaxDelay:       Duration(time.Second),
		},
		Reader: ReaderConfig{
			PollInterval:     Duration(time.Millisecond),
			HeartbeatTimeout: Duration(250 * time.Millisecond),
			EventBuffer:      4096,
		},
		Batch: BatchConfig{
			Interval:         Duration(10 * time.Second),
			MaxBatchBytes:    64 * 1024,
			CompressionLevel: -1,
		},
		Governor: GovernorConfig{
			MaxAttempts:      3,
			InitialDelay:     Duration(time.Second),
			Multiplier:       2.0,
			MaxDelay:         Duration(30 * time.Second),
			FailureThreshold: 3,
			ResetTimeout:     Duration(30 * time.Second),
			QueueSize:        64,
			UploadTimeout:    Duration(30 * time.Second),
		},
		Transport: TransportConfig{
			Type: TransportHTTP,
			HTTP: HTTPTransportConfig{
				Timeout: Duration(15 * time.Second),
			},
			File: FileTransportConfig{
				Prefix: "batch",
			},
			NATS: NATSTransportConfig{
				URL:     "nats://127.0.0.1:4222",
				Subject: "vitalstream.batches",
				Stream:  "VITALSTREAM",
			},
		},
		DeadLetter: DeadLetterConfig{
			Prefix: "dead",
		},
		Metrics: MetricsConfig{
			Port: 9090,
			Path: "/metrics",
		},
	}
}

// loadRaw reads a JSON or YAML file as a generic map
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, perm, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	switch formatOf(path) {
	case formatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse YAML: %w", err)
		}
	default:
		if err := checkJSONDepth(data); err != nil {
			return nil, fmt.Errorf("invalid JSON structure: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse JSON: %w", err)
		}
	}

	if err := checkSecretPermissions(path, perm, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// mergeFromMap merges configuration from a raw map, only overriding fields present in the map
func (l *Loader) mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	if len(override) == 0 {
		return base, nil
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}

	mergedJSON, err := json.Marshal(deepMergeMaps(baseMap, override))
	if err != nil {
		return nil, err
	}

	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// applyEnvOverrides applies VITALSTREAM_* environment overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"DEVICE_ID":        &cfg.DeviceID,
		"SOCKET_PATH":      &cfg.SharedMemory.SocketPath,
		"TRANSPORT_TYPE":   &cfg.Transport.Type,
		"HTTP_URL":         &cfg.Transport.HTTP.URL,
		"HTTP_SIGNING_KEY": &cfg.Transport.HTTP.SigningKey,
		"FILE_DIRECTORY":   &cfg.Transport.File.Directory,
		"NATS_URL":         &cfg.Transport.NATS.URL,
		"NATS_SUBJECT":     &cfg.Transport.NATS.Subject,
		"NATS_USERNAME":    &cfg.Transport.NATS.Username,
		"NATS_PASSWORD":    &cfg.Transport.NATS.Password,
		"NATS_TOKEN":       &cfg.Transport.NATS.Token,
		"DEAD_LETTER_DIR":  &cfg.DeadLetter.Directory,
	}
	for suffix, dst := range strs {
		key := l.envPrefix + "_" + suffix
		val := os.Getenv(key)
		if val == "" {
			continue
		}
		if err := checkEnvValue(key, val); err != nil {
			return errors.WrapInvalid(err, "Loader", "applyEnvOverrides", "validate "+key)
		}
		*dst = val
	}

	if val := os.Getenv(l.envPrefix + "_METRICS_PORT"); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return errors.WrapInvalid(err, "Loader", "applyEnvOverrides", "parse "+l.envPrefix+"_METRICS_PORT")
		}
		cfg.Metrics.Port = port
	}
	if val := os.Getenv(l.envPrefix + "_BATCH_INTERVAL"); val != "" {
		d, err := parseDurationWithDays(val)
		if err != nil {
			return errors.WrapInvalid(err, "Loader", "applyEnvOverrides", "parse "+l.envPrefix+"_BATCH_INTERVAL")
		}
		cfg.Batch.Interval = Duration(d)
	}
	return nil
}

// SaveToFile writes the configuration as JSON or YAML by extension
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error
	switch formatOf(path) {
	case formatYAML:
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return errors.WrapFatal(err, "Config", "SaveToFile", "marshal")
	}
	if err := writeConfigFile(path, data); err != nil {
		return errors.WrapFatal(err, "Config", "SaveToFile", "write")
	}
	return nil
}
