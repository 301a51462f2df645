package extract

import (
	"fmt"
	"runtime"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// Mode decides what happens to files already present in the output directory.
type Mode string

const (
	// ModeKeep leaves existing files untouched.
	ModeKeep Mode = "keep"

	// ModeClean removes the output directory before extracting.
	ModeClean Mode = "clean"

	// ModeOverwrite replaces existing files.
	ModeOverwrite Mode = "overwrite"
)

var modes = []Mode{ModeKeep, ModeClean, ModeOverwrite}

// Config configures an extraction. It is usually loaded from a TOML file, flags
// of the command line override single values.
type Config struct {
	Output  string `toml:"output"`
	Mode    Mode   `toml:"mode"`
	Workers int    `toml:"workers"`

	// Convert enables the converters, files are written as they are otherwise.
	Convert bool `toml:"convert"`

	RPA  RPAConfig  `toml:"rpa"`
	Skip SkipConfig `toml:"skip"`
}

type RPAConfig struct {
	// KeyOverride replaces the key in the archive header.
	KeyOverride *uint64 `toml:"key_override"`
}

type SkipConfig struct {
	// Extensions lists file extensions, without the dot, that are not extracted.
	Extensions []string `toml:"extensions"`
}

// DefaultConfig returns the configuration used for values missing in a file.
func DefaultConfig() Config {
	return Config{
		Output:  "extracted",
		Mode:    ModeOverwrite,
		Workers: runtime.NumCPU(),
		Convert: true,
	}
}

// LoadConfig reads a TOML configuration file. Keys missing in the file keep their
// default value.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	if _, err := toml.DecodeFile(path, &config); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}

	return config, nil
}

// ParseConfig parses a TOML document, see LoadConfig.
func ParseConfig(text string) (Config, error) {
	config := DefaultConfig()

	if _, err := toml.Decode(text, &config); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

// Validate checks the values and normalizes the skip list.
func (c *Config) Validate() error {
	if !slices.Contains(modes, c.Mode) {
		return fmt.Errorf("unknown mode %q, expected one of %v", c.Mode, modes)
	}

	if c.Output == "" {
		return fmt.Errorf("output directory must not be empty")
	}

	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}

	extensions := make([]string, 0, len(c.Skip.Extensions))
	for _, ext := range c.Skip.Extensions {
		extensions = append(extensions, strings.ToLower(strings.TrimPrefix(ext, ".")))
	}

	c.Skip.Extensions = extensions

	return nil
}

// Skips reports whether files with the given extension are skipped.
func (c *Config) Skips(ext string) bool {
	return slices.Contains(c.Skip.Extensions, strings.ToLower(ext))
}
