// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "COMPLIANCEPULSE_"

// ErrInvalidConfig wraps every validation and override failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

var validate *validator.Validate

func init() {
	validate = validator.New()
	// Report yaml names so messages match what users write.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
}

// DefaultPath returns ~/.compliancepulse/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".compliancepulse", "config.yaml"), nil
}

// Load reads path over Default. An empty path returns Default unchanged.
// Fields absent from the file keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read the config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode the config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyEnv overrides fields from COMPLIANCEPULSE_* variables.
//
// # Inputs
//
//   - lookup: Usually os.LookupEnv. Injected for tests.
//
// # Outputs
//
//   - error: Wraps ErrInvalidConfig when a variable does not parse.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	intVar := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s=%q: not an integer", EnvPrefix, name, v))
				return
			}
			*dst = n
		}
	}
	boolVar := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s=%q: not a boolean", EnvPrefix, name, v))
				return
			}
			*dst = b
		}
	}
	durationVar := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s=%q: not a duration", EnvPrefix, name, v))
				return
			}
			*dst = d
		}
	}
	stringVar := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	intVar("RATE", &c.Rate)
	intVar("INTERVAL", &c.Interval)
	intVar("WORKERS", &c.Workers)
	intVar("FLUSH_EVERY", &c.FlushEvery)
	intVar("HISTORY_SIZE", &c.HistorySize)
	durationVar("POLL_INTERVAL", &c.PollInterval)
	durationVar("DURATION", &c.Duration)
	boolVar("PACE", &c.Pace)
	boolVar("HEADLESS", &c.Headless)
	stringVar("LISTEN", &c.Listen)
	stringVar("LOG_LEVEL", &c.Log.Level)
	stringVar("LOG_DIR", &c.Log.Dir)
	boolVar("LOG_JSON", &c.Log.JSON)
	stringVar("INFLUX_URL", &c.Influx.URL)
	stringVar("INFLUX_TOKEN", &c.Influx.Token)
	stringVar("INFLUX_ORG", &c.Influx.Org)
	stringVar("INFLUX_BUCKET", &c.Influx.Bucket)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Validate checks every field constraint.
//
// # Outputs
//
//   - error: Wraps ErrInvalidConfig, one line per failing field, e.g.
//     "workers: must be >= 1 (got 0)".
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w:\n  %s", ErrInvalidConfig, strings.Join(msgs, "\n  "))
}

// describe renders one field error in plain words.
func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "gte":
		return fmt.Sprintf("%s: must be >= %s (got %v)", field, fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("%s: must be <= %s (got %v)", field, fe.Param(), fe.Value())
	case "gt":
		return fmt.Sprintf("%s: must be > %s (got %v)", field, fe.Param(), fe.Value())
	case "oneof":
		return fmt.Sprintf("%s: must be one of [%s] (got %q)", field, fe.Param(), fe.Value())
	case "hostname_port":
		return fmt.Sprintf("%s: must be host:port (got %q)", field, fe.Value())
	case "url":
		return fmt.Sprintf("%s: must be a URL (got %q)", field, fe.Value())
	case "required_with":
		return fmt.Sprintf("%s: required when %s is set", field, strings.ToLower(fe.Param()))
	default:
		return fmt.Sprintf("%s: failed %s", field, fe.Tag())
	}
}
