// Package config loads the vitalstream daemon configuration.
//
// Configuration is built in layers. The Loader starts from DefaultConfig,
// merges each file added with AddLayer (JSON, or YAML for .yaml/.yml files),
// then applies VITALSTREAM_* environment overrides and optionally validates
// the result:
//
//	loader := config.NewLoader()
//	loader.AddLayer("vitalstream.yaml")
//	loader.AddLayer("site-overrides.json")
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//
// Only keys present in a layer override earlier values, so a site file can
// change a single nested field:
//
//	governor:
//	  failure_threshold: 5
//
// Durations are written as strings ("250ms", "30s", "1d"). Files are read with
// size, type and path-traversal checks.
//
// The typed accessors (SensorConfig, BatchConfig, GovernorConfig and the
// transport configs) convert the file schema into the component configs.
package config
