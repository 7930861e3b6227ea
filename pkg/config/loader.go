// Package config loads formdecode configuration files.
// YAML, JSON, and CUE are supported, with CUE as the underlying parser.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/encoding/yaml"
)

// LoadValueFromReader parses YAML (or JSON, which YAML accepts) from r.
func LoadValueFromReader(r io.Reader) (cue.Value, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return cue.Value{}, fmt.Errorf("failed to read config: %w", err)
	}

	return buildYAML(cuecontext.New(), data)
}

// LoadValue loads a configuration file and returns it as a CUE value, so
// callers can look paths up without a Go struct.
//
// .cue files are loaded as CUE instances; .json is compiled directly; any
// other extension is parsed as YAML.
func LoadValue(path string) (cue.Value, error) {
	if _, err := os.Stat(path); err != nil {
		return cue.Value{}, fmt.Errorf("failed to stat config: %w", err)
	}

	ctx := cuecontext.New()

	if strings.EqualFold(filepath.Ext(path), ".cue") {
		return buildCUE(ctx, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("failed to read config: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		val := ctx.CompileBytes(data)
		if err := val.Err(); err != nil {
			return cue.Value{}, fmt.Errorf("failed to parse JSON: %w", err)
		}
		return val, nil
	}

	return buildYAML(ctx, data)
}

// LoadFromFile loads a configuration file into the specified type.
//
// Example:
//
//	rules, err := LoadFromFile[formserver.Rules]("rules.yaml")
func LoadFromFile[T any](path string) (*T, error) {
	val, err := LoadValue(path)
	if err != nil {
		return nil, err
	}
	return Decode[T](val)
}

// Decode decodes a CUE value into the specified type.
func Decode[T any](val cue.Value) (*T, error) {
	var out T
	if err := val.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &out, nil
}

func buildYAML(ctx *cue.Context, data []byte) (cue.Value, error) {
	file, err := yaml.Extract("", data)
	if err != nil {
		return cue.Value{}, fmt.Errorf("failed to parse YAML: %w", err)
	}

	val := ctx.BuildFile(file)
	if err := val.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("failed to build CUE value: %w", err)
	}
	return val, nil
}

func buildCUE(ctx *cue.Context, path string) (cue.Value, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("failed to resolve path: %w", err)
	}

	instances := load.Instances([]string{absPath}, &load.Config{
		Dir:       filepath.Dir(absPath),
		DataFiles: true,
	})
	if len(instances) == 0 {
		return cue.Value{}, fmt.Errorf("no instances loaded from %s", path)
	}
	if err := instances[0].Err; err != nil {
		return cue.Value{}, fmt.Errorf("failed to load config: %w", err)
	}

	val := ctx.BuildInstance(instances[0])
	if err := val.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("failed to build CUE value: %w", err)
	}
	return val, nil
}
