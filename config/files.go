package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Limits on configuration inputs. Device configs are small; anything near
// these sizes is a mistake or an attack.
const (
	maxConfigSize = 1 << 20
	maxJSONDepth  = 32
	maxEnvVarLen  = 4096
	maxPathLen    = 4096
)

// secretKeys are the layer paths whose presence requires an owner-only file
var secretKeys = [][]string{
	{"transport", "http", "signing_key"},
	{"transport", "nats", "password"},
	{"transport", "nats", "token"},
}

func checkConfigPath(path string) error {
	switch {
	case path == "":
		return fmt.Errorf("empty config path")
	case len(path) > maxPathLen:
		return fmt.Errorf("path too long: %d > %d", len(path), maxPathLen)
	case formatOf(path) == formatUnknown:
		return fmt.Errorf("config files must be .json, .yaml or .yml: %s", path)
	}

	for _, elem := range strings.Split(filepath.ToSlash(path), "/") {
		if elem == ".." {
			return fmt.Errorf("parent references not allowed in config path: %s", path)
		}
	}
	return nil
}

// readConfigFile reads at most maxConfigSize bytes from a regular file. The
// size and type checks run on the opened descriptor.
func readConfigFile(path string) ([]byte, os.FileMode, error) {
	if err := checkConfigPath(path); err != nil {
		return nil, 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat config file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, 0, fmt.Errorf("not a regular file: %s", path)
	}
	if info.Size() > maxConfigSize {
		return nil, 0, fmt.Errorf("config file too large: %d bytes > %d", info.Size(), maxConfigSize)
	}

	data, err := io.ReadAll(io.LimitReader(f, maxConfigSize+1))
	if err != nil {
		return nil, 0, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > maxConfigSize {
		return nil, 0, fmt.Errorf("config file grew past %d bytes while reading", maxConfigSize)
	}
	return data, info.Mode().Perm(), nil
}

// checkSecretPermissions refuses layers that carry credentials in a file
// other users can read
func checkSecretPermissions(path string, perm os.FileMode, raw map[string]any) error {
	if perm&0o077 == 0 {
		return nil
	}
	for _, keyPath := range secretKeys {
		if s, ok := lookup(raw, keyPath...).(string); ok && s != "" {
			return fmt.Errorf("%s sets %s but has mode %04o, want 0600",
				path, strings.Join(keyPath, "."), perm)
		}
	}
	return nil
}

func lookup(m map[string]any, keys ...string) any {
	var cur any = m
	for _, k := range keys {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = node[k]
	}
	return cur
}

func writeConfigFile(path string, data []byte) error {
	if err := checkConfigPath(path); err != nil {
		return err
	}
	if len(data) > maxConfigSize {
		return fmt.Errorf("config data too large: %d bytes > %d", len(data), maxConfigSize)
	}
	return os.WriteFile(path, data, 0o600)
}

func checkEnvValue(key, value string) error {
	if len(value) > maxEnvVarLen {
		return fmt.Errorf("%s too long: %d > %d", key, len(value), maxEnvVarLen)
	}
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("null byte in %s", key)
	}
	return nil
}

// checkJSONDepth walks the token stream and rejects documents nested deeper
// than maxJSONDepth before they are decoded into maps
func checkJSONDepth(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		delim, ok := tok.(json.Delim)
		if !ok {
			continue
		}
		switch delim {
		case '{', '[':
			depth++
			if depth > maxJSONDepth {
				return fmt.Errorf("JSON nesting too deep: more than %d levels", maxJSONDepth)
			}
		case '}', ']':
			depth--
		}
	}
	if depth != 0 {
		return fmt.Errorf("unexpected end of JSON input")
	}
	return nil
}
