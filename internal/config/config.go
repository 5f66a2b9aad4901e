// Package config loads harness configuration from YAML or JSONC files and
// applies defaults for the shipped curl scenario.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"curlsp.dev/conformance/internal/channel"
	"curlsp.dev/conformance/internal/conformance"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so config files can write "5s" / "250ms"
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	return d.parse(raw)
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return d.parse(raw)
}

func (d *Duration) parse(raw string) error {
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the underlying time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ServerConfig describes how to reach the language server under test
type ServerConfig struct {
	Command   string   `yaml:"command" json:"command"`
	Args      []string `yaml:"args" json:"args"`
	Transport string   `yaml:"transport" json:"transport"`
	Address   string   `yaml:"address" json:"address"`
}

// Config is the harness configuration. Zero values fall back to defaults.
type Config struct {
	Server         ServerConfig                        `yaml:"server" json:"server"`
	RequestTimeout Duration                            `yaml:"requestTimeout" json:"requestTimeout"`
	RootURI        string                              `yaml:"rootUri" json:"rootUri"`
	LogLevel       string                              `yaml:"logLevel" json:"logLevel"`
	Fixtures       []string                            `yaml:"fixtures" json:"fixtures"`
	Expect         *conformance.CapabilityExpectations `yaml:"expect" json:"expect"`
}

// Default returns the configuration for a stock curl language server over
// stdio.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Command:   "curl-language-server",
			Args:      []string{"--stdio"},
			Transport: string(channel.KindStdio),
		},
		RequestTimeout: Duration(5 * time.Second),
		RootURI:        "file:///conformance",
		LogLevel:       "info",
	}
}

// Load reads a config file. Files ending in .json or .jsonc are parsed as
// JSON with comments; everything else is parsed as YAML. Absent fields keep
// their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch channel.Kind(c.Server.Transport) {
	case channel.KindStdio:
		if c.Server.Command == "" {
			return fmt.Errorf("stdio transport requires server.command")
		}
	case channel.KindTCP, channel.KindWebSocket:
		if c.Server.Address == "" {
			return fmt.Errorf("%s transport requires server.address", c.Server.Transport)
		}
	default:
		return fmt.Errorf("unknown transport kind %q", c.Server.Transport)
	}
	return nil
}

// Channel builds the transport the config selects
func (c *Config) Channel() (channel.Channel, error) {
	kind := channel.Kind(c.Server.Transport)
	if kind == channel.KindStdio {
		return channel.New(kind, c.Server.Command, c.Server.Args...)
	}
	return channel.New(kind, c.Server.Address)
}

// Expectations returns the configured capability allow-list, defaulting to
// the curl server's surface.
func (c *Config) Expectations() conformance.CapabilityExpectations {
	if c.Expect != nil {
		return *c.Expect
	}
	return conformance.DefaultCapabilityExpectations()
}

// ExpandFixtures resolves the fixture globs against baseDir and loads each
// matched file as a document to open during the scenario.
func (c *Config) ExpandFixtures(baseDir string) ([]conformance.Document, error) {
	var docs []conformance.Document
	for _, pattern := range c.Fixtures {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(baseDir, pattern)
		}
		matches, err := doublestar.FilepathGlob(filepath.ToSlash(pattern))
		if err != nil {
			return nil, fmt.Errorf("fixture glob %q: %w", pattern, err)
		}
		for _, match := range matches {
			text, err := os.ReadFile(match)
			if err != nil {
				return nil, fmt.Errorf("read fixture %s: %w", match, err)
			}
			abs, err := filepath.Abs(match)
			if err != nil {
				return nil, err
			}
			docs = append(docs, conformance.Document{
				URI:        "file://" + filepath.ToSlash(abs),
				LanguageID: "shellscript",
				Text:       string(text),
			})
		}
	}
	return docs, nil
}
