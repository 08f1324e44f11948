// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the engine configuration and the data source catalog.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix prefixes environment overrides: engine.fail-on-empty is
// overridden by REPORT_ENGINE_ENGINE_FAIL_ON_EMPTY.
const EnvPrefix = "REPORT_ENGINE_"

// Configuration is a read-only view on flat, dot-separated configuration keys.
type Configuration interface {
	// Property returns the value for key or def when the key is not set.
	Property(key, def string) string
	// Bool parses the value for key, falling back to def.
	Bool(key string, def bool) bool
	// Int parses the value for key, falling back to def.
	Int(key string, def int) int
	// Duration parses the value for key, falling back to def. Plain numbers are seconds.
	Duration(key string, def time.Duration) time.Duration
	// Keys returns all keys starting with prefix, sorted.
	Keys(prefix string) []string
}

// Properties is the default Configuration.
type Properties struct {
	values map[string]string
	lookup func(string) (string, bool)
}

// NewProperties creates a configuration from flat key/value pairs. Environment
// variables are not consulted.
func NewProperties(values map[string]string) *Properties {
	p := &Properties{values: make(map[string]string, len(values))}
	for k, v := range values {
		p.values[k] = v
	}
	return p
}

// Load reads a TOML file. Nested tables are flattened into dotted keys and
// environment variables override file values.
func Load(path string) (*Properties, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses TOML content, see Load.
func Parse(data []byte) (*Properties, error) {
	var tree map[string]any
	if err := toml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	values := make(map[string]string)
	flatten("", tree, values)
	p := NewProperties(values)
	p.lookup = os.LookupEnv
	return p, nil
}

// Default returns the configuration at DefaultConfigPath, or an empty one when
// no file exists there.
func Default() (*Properties, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		p := NewProperties(nil)
		p.lookup = os.LookupEnv
		return p, nil
	}
	return Load(path)
}

// DefaultConfigPath returns the path of the engine configuration file.
func DefaultConfigPath() string {
	if path := os.Getenv("REPORT_ENGINE_CONFIG"); path != "" {
		return path
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(homeDir, ".report-engine", "config.toml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return "./report-engine.toml"
}

func flatten(prefix string, node map[string]any, out map[string]string) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case []any:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				parts = append(parts, fmt.Sprint(item))
			}
			out[key] = strings.Join(parts, ",")
		case time.Time:
			out[key] = val.Format(time.RFC3339)
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

func envKey(key string) string {
	r := strings.NewReplacer(".", "_", "-", "_")
	return EnvPrefix + strings.ToUpper(r.Replace(key))
}

func (p *Properties) get(key string) (string, bool) {
	if p.lookup != nil {
		if v, ok := p.lookup(envKey(key)); ok {
			return v, true
		}
	}
	v, ok := p.values[key]
	return v, ok
}

func (p *Properties) Property(key, def string) string {
	if v, ok := p.get(key); ok {
		return v
	}
	return def
}

func (p *Properties) Bool(key string, def bool) bool {
	v, ok := p.get(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

func (p *Properties) Int(key string, def int) int {
	v, ok := p.get(key)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return i
}

func (p *Properties) Duration(key string, def time.Duration) time.Duration {
	v, ok := p.get(key)
	if !ok {
		return def
	}
	v = strings.TrimSpace(v)
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func (p *Properties) Keys(prefix string) []string {
	var keys []string
	for k := range p.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Set overrides a single key. It is meant for tests and command line flags.
func (p *Properties) Set(key, value string) {
	p.values[key] = value
}
