package config

import (
	"encoding/json"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/vitalstream/errors"
)

// structKeys lists the dotted JSON paths of every field reachable from t
func structKeys(t reflect.Type, prefix string, out *[]string) {
	for i := range t.NumField() {
		field := t.Field(i)
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		path := prefix + name
		*out = append(*out, path)
		if field.Type.Kind() == reflect.Struct {
			structKeys(field.Type, path+".", out)
		}
	}
}

// schemaKeys lists the dotted paths of every declared property in node
func schemaKeys(node map[string]any, prefix string, out *[]string) {
	props, _ := node["properties"].(map[string]any)
	for name, child := range props {
		path := prefix + name
		*out = append(*out, path)
		if childNode, ok := child.(map[string]any); ok {
			schemaKeys(childNode, path+".", out)
		}
	}
}

func TestSchema_MatchesConfigStruct(t *testing.T) {
	var doc map[string]any
	require.NoError(t, json.Unmarshal(Schema(), &doc))

	var fromSchema, fromStruct []string
	schemaKeys(doc, "", &fromSchema)
	structKeys(reflect.TypeOf(Config{}), "", &fromStruct)
	sort.Strings(fromSchema)
	sort.Strings(fromStruct)

	if diff := cmp.Diff(fromStruct, fromSchema); diff != "" {
		t.Errorf("schema.json is out of sync with Config (-struct +schema):\n%s", diff)
	}
}

func TestSchema_AcceptsDefaults(t *testing.T) {
	data, err := json.Marshal(validConfig())
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.NoError(t, validateLayer(raw))
}

func TestSchema_RejectsLayers(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		field   string
	}{
		{"unknown key", "typo.yaml", "batch:\n  intervall: 5s\n", "intervall"},
		{"unknown transport", "t.json", `{"transport": {"type": "carrier-pigeon"}}`, "transport.type"},
		{"wrong type", "w.json", `{"shared_memory": {"slot_count": "many"}}`, "shared_memory.slot_count"},
		{"tls version", "tls.yaml", "security:\n  tls:\n    client:\n      min_version: \"1.0\"\n", "min_version"},
		{"metrics path", "m.json", `{"metrics": {"path": "metrics"}}`, "metrics.path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			loader := NewLoader()
			loader.EnableValidation(true)
			_, err := loader.LoadFile(path)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestSchema_SkippedWithoutValidation(t *testing.T) {
	path := writeFile(t, "typo.yaml", "batch:\n  intervall: 5s\n")
	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Batch.Interval, cfg.Batch.Interval)
}
