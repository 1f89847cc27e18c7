package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables that override the config file.
const (
	EnvServerURL   = "PATTERNPLAY_SERVER_URL"
	EnvOutputDir   = "PATTERNPLAY_OUTPUT_DIR"
	EnvSampleRate  = "PATTERNPLAY_SAMPLE_RATE"
	EnvMIDIPort    = "PATTERNPLAY_MIDI_PORT"
	EnvTimeout     = "PATTERNPLAY_TIMEOUT"
	EnvSentryDSN   = "SENTRY_DSN"
	EnvEnvironment = "ENVIRONMENT"
)

// FormDefaults stores the last form values so the next session starts there.
type FormDefaults struct {
	Key          string `json:"key,omitempty"`
	Scale        string `json:"scale,omitempty"`
	Tempo        int    `json:"tempo,omitempty"`
	Octave       int    `json:"octave,omitempty"`
	EnableChords bool   `json:"enableChords"`
	EnableDrums  bool   `json:"enableDrums"`
	Genre        string `json:"genre,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	ServerURL            string       `json:"serverUrl,omitempty"`
	OutputDir            string       `json:"outputDir,omitempty"`
	SampleRate           int          `json:"sampleRate,omitempty"`
	MIDIPort             string       `json:"midiPort,omitempty"`
	TimeoutSeconds       float64      `json:"timeoutSeconds,omitempty"`
	// How long a finished progress bar stays full before resetting.
	ProgressResetSeconds float64      `json:"progressResetSeconds,omitempty"`
	Form                 FormDefaults `json:"form"`

	// Environment only, never written to disk.
	SentryDSN   string `json:"-"`
	Environment string `json:"-"`
}

func DefaultConfig() *Config {
	return &Config{
		ServerURL:            "http://localhost:5000",
		OutputDir:            ".",
		SampleRate:           48000,
		TimeoutSeconds:       30,
		ProgressResetSeconds: 1,
		Form: FormDefaults{
			Key:          "C",
			Scale:        "major",
			Tempo:        120,
			Octave:       4,
			EnableChords: true,
			EnableDrums:  true,
			Genre:        "pop",
		},
		Environment: "development",
	}
}

// ConfigDir returns ~/.config/patternplay.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "patternplay"), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config file, then applies overrides from the process
// environment and from .env in the working directory, in that order of
// precedence.
func Load() (*Config, error) {
	return load(".env")
}

func load(envPath string) (*Config, error) {
	cfg := DefaultConfig()
	if path, err := ConfigPath(); err == nil {
		if cfg, err = LoadFile(path); err != nil {
			return nil, err
		}
	}
	lookup := os.LookupEnv
	if fileEnv, err := EnvFile(envPath); err == nil {
		lookup = firstSet(os.LookupEnv, fileEnv)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", envPath, err)
	}
	return cfg, cfg.ApplyEnv(lookup)
}

// firstSet returns the first non-empty value found across lookups.
func firstSet(lookups ...func(string) (string, bool)) func(string) (string, bool) {
	return func(key string) (string, bool) {
		for _, l := range lookups {
			if v, ok := l(key); ok && v != "" {
				return v, true
			}
		}
		return "", false
	}
}

// LoadFile reads path over the defaults. A missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// EnvFile returns a lookup over the variables in a dotenv file, for use with
// ApplyEnv.
func EnvFile(path string) (func(string) (string, bool), error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, err
	}
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}, nil
}

// ApplyEnv overrides fields from lookup. Empty values are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		return v, ok && v != ""
	}
	if v, ok := get(EnvServerURL); ok {
		c.ServerURL = v
	}
	if v, ok := get(EnvOutputDir); ok {
		c.OutputDir = v
	}
	if v, ok := get(EnvMIDIPort); ok {
		c.MIDIPort = v
	}
	if v, ok := get(EnvSentryDSN); ok {
		c.SentryDSN = v
	}
	if v, ok := get(EnvEnvironment); ok {
		c.Environment = v
	}
	if v, ok := get(EnvSampleRate); ok {
		rate, err := strconv.Atoi(v)
		if err != nil || rate <= 0 {
			return fmt.Errorf("%s: invalid sample rate %q", EnvSampleRate, v)
		}
		c.SampleRate = rate
	}
	if v, ok := get(EnvTimeout); ok {
		d, err := parseTimeout(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		c.TimeoutSeconds = d.Seconds()
	}
	return nil
}

// parseTimeout accepts a Go duration ("45s") or plain seconds ("45").
func parseTimeout(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs <= 0 {
		return 0, fmt.Errorf("invalid timeout %q", v)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func (c *Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds * float64(time.Second))
}

func (c *Config) ProgressResetDelay() time.Duration {
	if c.ProgressResetSeconds <= 0 {
		return time.Second
	}
	return time.Duration(c.ProgressResetSeconds * float64(time.Second))
}

// Save writes the config to ConfigPath.
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
