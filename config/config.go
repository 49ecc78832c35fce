package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/sergev/fluxtrack/mfm"
	"github.com/sergev/fluxtrack/track"
)

//go:embed formats.toml
var defaultConfigData []byte

// ErrUnknownFormat is returned by Lookup for a name not in the table.
var ErrUnknownFormat = errors.New("unknown disk format")

// Config represents the entire TOML configuration structure
type Config struct {
	Default  string         `toml:"default"`
	Firmware string         `toml:"kryoflux_firmware"`
	Format   []FormatRecord `toml:"format"`
}

// FormatRecord is one disk format as written in TOML.
type FormatRecord struct {
	Name       string   `toml:"name"`
	Mode       mfm.Mode `toml:"mode"`
	Cyls       int      `toml:"cyls"`
	Heads      int      `toml:"heads"`
	Sectors    int      `toml:"sectors"`
	First      int      `toml:"first"`
	Size       int      `toml:"size"`
	Interleave int      `toml:"interleave"`
	Skew       int      `toml:"skew"`
	Gap1       int      `toml:"gap1"`
	Gap2       int      `toml:"gap2"`
	Gap3       int      `toml:"gap3"`
	Gap4a      int      `toml:"gap4a"`
	Presync    int      `toml:"presync"`
	Clock      string   `toml:"clock"`
	RPM        int      `toml:"rpm"`
}

// DefaultPath returns the user configuration file path:
// ~/.fluxtrack, or fluxtrack under the config directory on Windows.
func DefaultPath() (string, error) {
	switch runtime.GOOS {
	case "windows":
		configDir, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine user config directory: %w", err)
		}
		return filepath.Join(configDir, "fluxtrack", "formats.toml"), nil
	default:
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine user home directory: %w", err)
		}
		return filepath.Join(homeDir, ".fluxtrack"), nil
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	conf, err := Parse(defaultConfigData)
	if err != nil {
		panic(fmt.Sprintf("built-in formats: %v", err))
	}
	return conf
}

// Load reads a configuration file. An empty path selects the user file
// when it exists, and the built-in table otherwise.
func Load(path string) (*Config, error) {
	if path == "" {
		userPath, err := DefaultPath()
		if err != nil {
			return Default(), nil
		}
		if _, err := os.Stat(userPath); err != nil {
			return Default(), nil
		}
		path = userPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	conf, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return conf, nil
}

// WriteDefault saves the built-in table to path, for editing.
func WriteDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, defaultConfigData, 0644); err != nil {
		return fmt.Errorf("failed to create config file at %s: %w", path, err)
	}
	return nil
}

// Parse decodes and validates TOML configuration data.
func Parse(data []byte) (*Config, error) {
	var conf Config
	if _, err := toml.Decode(string(data), &conf); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}
	if len(conf.Format) == 0 {
		return nil, errors.New("no formats defined")
	}

	seen := make(map[string]bool)
	for _, rec := range conf.Format {
		if rec.Name == "" {
			return nil, errors.New("format without a name")
		}
		if seen[rec.Name] {
			return nil, fmt.Errorf("format %q defined twice", rec.Name)
		}
		seen[rec.Name] = true
		if _, err := rec.Format(); err != nil {
			return nil, err
		}
	}
	if conf.Default != "" && !seen[conf.Default] {
		return nil, fmt.Errorf("default format %q not found in format array", conf.Default)
	}
	return &conf, nil
}

// Format converts the record to a track format with standard gaps.
func (rec FormatRecord) Format() (track.Format, error) {
	code := -1
	for n := 0; n <= 6; n++ {
		if 128<<uint(n) == rec.Size {
			code = n
		}
	}
	if code < 0 {
		return track.Format{}, fmt.Errorf("format %q has invalid size: %d", rec.Name, rec.Size)
	}
	if rec.RPM <= 0 {
		return track.Format{}, fmt.Errorf("format %q has invalid rpm: %d (must be positive)", rec.Name, rec.RPM)
	}
	clock, err := time.ParseDuration(rec.Clock)
	if err != nil {
		return track.Format{}, fmt.Errorf("format %q has invalid clock: %w", rec.Name, err)
	}

	f := track.Format{
		Name:        rec.Name,
		Mode:        rec.Mode,
		Cylinders:   rec.Cyls,
		Heads:       rec.Heads,
		Sectors:     rec.Sectors,
		FirstSector: rec.First,
		SizeCode:    code,
		Interleave:  rec.Interleave,
		Skew:        rec.Skew,
		Gap1:        rec.Gap1,
		Gap2:        rec.Gap2,
		Gap3:        rec.Gap3,
		Gap4a:       rec.Gap4a,
		Presync:     rec.Presync,
		Clock:       clock,
		Revolution:  time.Minute / time.Duration(rec.RPM),
	}.WithDefaults()
	if err := f.Validate(); err != nil {
		return track.Format{}, err
	}
	return f, nil
}

// Lookup returns the format with the given name.
// An empty name selects the default format.
func (c *Config) Lookup(name string) (track.Format, error) {
	if name == "" {
		name = c.Default
	}
	for _, rec := range c.Format {
		if rec.Name == name {
			return rec.Format()
		}
	}
	return track.Format{}, fmt.Errorf("%q: %w", name, ErrUnknownFormat)
}

// Names returns the format names in sorted order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Format))
	for _, rec := range c.Format {
		names = append(names, rec.Name)
	}
	sort.Strings(names)
	return names
}
