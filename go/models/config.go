package models

import (
	"encoding/json"
	"io"
	"os"
	"runtime"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/shibukawa/configdir"
)

const ConfigFile = "config.json"

const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

type Config struct {
	Color   string `json:"color"`
	Jobs    int    `json:"jobs"`
	Verbose bool   `json:"verbose"`
	DisArch string `json:"dis_arch"`
	DisBase uint64 `json:"dis_base"`

	Output io.Writer `json:"-"`
	Errout io.Writer `json:"-"`
}

func DefaultConfig() *Config {
	return &Config{
		Color:   ColorAuto,
		Jobs:    runtime.NumCPU(),
		DisArch: "x86_64",
		DisBase: 0x8000,
	}
}

// LoadConfig merges the first config.json found in the user and system
// config folders over the defaults. A missing file is not an error.
func LoadConfig() (*Config, error) {
	c := DefaultConfig()
	dirs := configdir.New("", "ubinutils")
	for _, folder := range dirs.QueryFolders(configdir.All) {
		data, err := folder.ReadFile(ConfigFile)
		if err != nil {
			continue
		}
		if err := c.Parse(data); err != nil {
			return nil, errors.Wrapf(err, "%s/%s", folder.Path, ConfigFile)
		}
		break
	}
	return c, nil
}

func (c *Config) Parse(data []byte) error {
	if err := json.Unmarshal(data, c); err != nil {
		return errors.Wrap(err, "json.Unmarshal() failed")
	}
	switch c.Color {
	case "":
		c.Color = ColorAuto
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return errors.Errorf("invalid color mode %q", c.Color)
	}
	if c.Jobs < 1 {
		c.Jobs = 1
	}
	return nil
}

// UseColor decides whether output written to f gets ANSI escapes.
func (c *Config) UseColor(f *os.File) bool {
	switch c.Color {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Stdout returns the configured output, or a color-capable stdout.
func (c *Config) Stdout() io.Writer {
	if c.Output != nil {
		return c.Output
	}
	return colorable.NewColorableStdout()
}

func (c *Config) Stderr() io.Writer {
	if c.Errout != nil {
		return c.Errout
	}
	return colorable.NewColorableStderr()
}
