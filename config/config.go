// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package config layers YAML configuration for manifest documents.
// Precedence is per-document override, then the user-wide file, then
// built-in defaults.
package config

import (
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/poiesic/manifest/storage"
)

// Config is a layered key tree with dot-path access.
type Config struct {
	values map[string]any
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{values: map[string]any{
		"sidecar": map[string]any{
			"corruption_handling": "warn_and_ask",
			"auto_rebuild":        false,
			"enabled":             true,
			"backend":             "file",
		},
		"display": map[string]any{
			"show_ids_prominently": true,
			"id_first":             true,
		},
	}}
}

// GlobalPath returns the location of the user-wide config file.
func GlobalPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "manifest", "config.yaml"), nil
}

// LoadLayered builds the effective config for a document. A missing or
// unreadable file is skipped silently; malformed YAML is skipped with a
// warning, so one broken override never takes the document down.
func LoadLayered(docPath string, logger *slog.Logger) *Config {
	cfg := Defaults()
	if global, err := GlobalPath(); err == nil {
		cfg.mergeFile(global, logger)
	}
	if docPath != "" {
		cfg.mergeFile(storage.DocConfigPath(docPath), logger)
	}
	return cfg
}

func (c *Config) mergeFile(path string, logger *slog.Logger) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var override map[string]any
	if err := yaml.Unmarshal(data, &override); err != nil {
		logger.Warn("skipping malformed config file", "path", path, "error", err)
		return
	}
	c.values = deepMerge(c.values, override)
}

// deepMerge recursively folds override into base. Nested maps merge key
// by key; everything else is replaced.
func deepMerge(base, override map[string]any) map[string]any {
	result := maps.Clone(base)
	for key, value := range override {
		if bm, ok := result[key].(map[string]any); ok {
			if om, ok := value.(map[string]any); ok {
				result[key] = deepMerge(bm, om)
				continue
			}
		}
		result[key] = value
	}
	return result
}

// Get returns the value at a dot-separated path. Explicit nulls read as
// absent.
func (c *Config) Get(keyPath string) (any, bool) {
	var value any = c.values
	for _, key := range strings.Split(keyPath, ".") {
		m, ok := value.(map[string]any)
		if !ok {
			return nil, false
		}
		value, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	if value == nil {
		return nil, false
	}
	return value, true
}

// GetString returns the string at the path, or fallback when the path is
// absent or holds a different type.
func (c *Config) GetString(keyPath, fallback string) string {
	if v, ok := c.Get(keyPath); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}

// GetBool returns the bool at the path, or fallback when the path is
// absent or holds a different type.
func (c *Config) GetBool(keyPath string, fallback bool) bool {
	if v, ok := c.Get(keyPath); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return fallback
}

// Set writes a value at a dot-separated path, creating intermediate maps
// as needed. Changes are in-memory only.
func (c *Config) Set(keyPath string, value any) {
	keys := strings.Split(keyPath, ".")
	current := c.values
	for _, key := range keys[:len(keys)-1] {
		next, ok := current[key].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[key] = next
		}
		current = next
	}
	current[keys[len(keys)-1]] = value
}
