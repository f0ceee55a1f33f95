// Package config loads FluxRecon's TOML configuration: the default
// recognizer try-order, per-format geometry defaults, and an optional
// metadata-prototype path.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

//go:embed fluxrecon.toml
var defaultConfigData []byte

// Geometry is a format's default expected sector range and length: the
// GEOMETRY class attribute every original_source format module hardcodes
// (e.g. Zilog MCZ's ((0,0,0), (77,0,31), 136)), shipped here as data instead
// of a constant in internal/format.
type Geometry struct {
	FirstCylinder int `toml:"first_cylinder"`
	FirstHead     int `toml:"first_head"`
	FirstSector   int `toml:"first_sector"`
	LastCylinder  int `toml:"last_cylinder"`
	LastHead      int `toml:"last_head"`
	LastSector    int `toml:"last_sector"`
	SectorLength  int `toml:"sector_length"`
}

type formatEntry struct {
	Name     string   `toml:"name"`
	Geometry Geometry `toml:"geometry"`
}

// Config is the parsed configuration: the recognizer names to try first (in
// order, used to seed internal/format's rotating work list), the per-format
// geometry table, and an optional DDHF metadata-prototype path for `write`.
type Config struct {
	RecognizerOrder []string      `toml:"recognizer_order"`
	Format          []formatEntry `toml:"format"`
	MetaprotoPath   string        `toml:"metaproto_path"`

	geometries map[string]Geometry
}

// configPath mirrors the teacher's OS-specific config-file location.
func configPath() (string, error) {
	var configDir string
	var err error

	switch runtime.GOOS {
	case "windows":
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine user config directory: %w", err)
		}
		configDir = filepath.Join(configDir, "fluxrecon")
	default:
		configDir, err = os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine user home directory: %w", err)
		}
	}

	return filepath.Join(configDir, ".fluxrecon"), nil
}

// Initialize loads the configuration file, writing it from the embedded
// default first if it does not exist yet.
func Initialize() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := os.WriteFile(path, defaultConfigData, 0o644); err != nil {
			return nil, fmt.Errorf("failed to create default config file at %s: %w", path, err)
		}
	}

	return decode(path)
}

func decode(path string) (*Config, error) {
	var conf Config
	if _, err := toml.DecodeFile(path, &conf); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config at %s: %w", path, err)
	}
	conf.index()
	return &conf, nil
}

func (c *Config) index() {
	c.geometries = make(map[string]Geometry, len(c.Format))
	for _, f := range c.Format {
		c.geometries[f.Name] = f.Geometry
	}
}

// Default parses the embedded default configuration directly, without
// touching the filesystem. Useful for tests and for commands that want to
// run against a known baseline regardless of the operator's config file.
func Default() *Config {
	var conf Config
	if _, err := toml.Decode(string(defaultConfigData), &conf); err != nil {
		panic(fmt.Sprintf("config: embedded default is invalid TOML: %v", err))
	}
	conf.index()
	return &conf
}

// GeometryFor returns the configured default geometry for a recognizer
// name, and whether one is configured. Formats with no fixed geometry
// (Q1 MicroLite's catalog-driven sector lengths) simply have no entry.
func (c *Config) GeometryFor(name string) (Geometry, bool) {
	g, ok := c.geometries[name]
	return g, ok
}
