// Package config loads deployment settings: an optional .env file, an
// optional YAML profile named by PROFILE_PATH, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/LeonardoBeccarini/field-telemetry/pkg/logging"
)

// Common holds what both binaries share.
type Common struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string
}

// Version is the logging version tag for a build: in the dev environment it
// is always "dev", which selects the tint handler.
func (c Common) Version(build string) string {
	if c.AppEnv == "dev" || build == "" {
		return "dev"
	}
	return build
}

// loadDotEnv reads .env when present. Variables already set win.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func loadCommon(defaultAddr string) (Common, error) {
	appEnv, _ := lookup("APP_ENV")
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Common{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	lvl, _ := lookup("LOG_LEVEL")
	level, err := logging.ParseLevel(lvl)
	if err != nil {
		return Common{}, err
	}

	addr := defaultAddr
	if v, ok := lookup("HTTP_ADDR"); ok {
		addr = v
	}
	return Common{AppEnv: appEnv, LogLevel: level, HTTPAddr: addr}, nil
}

// readProfile returns the YAML document named by PROFILE_PATH, or nil.
func readProfile() ([]byte, error) {
	path, ok := lookup("PROFILE_PATH")
	if !ok {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}
	return b, nil
}

// decodeInto overlays the YAML keys present in doc onto dst.
func decodeInto(doc []byte, dst any) error {
	if len(doc) == 0 {
		return nil
	}
	if err := yaml.Unmarshal(doc, dst); err != nil {
		return fmt.Errorf("parse profile: %w", err)
	}
	return nil
}

func positive(name string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %v", name, d)
	}
	return nil
}

func finiteNonNegative(name string, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return fmt.Errorf("%s must be a finite non-negative number, got %v", name, f)
	}
	return nil
}

func required(name, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%s is required", name)
	}
	return nil
}
