// Package config loads the application configuration from a YAML file with
// environment overrides for secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sightline-ai/sightline/pkg/core/live"
)

// Config is the on-disk application configuration.
type Config struct {
	// APIKey authenticates against the live endpoint. The GEMINI_API_KEY
	// environment variable always wins over the file value.
	APIKey string `yaml:"api_key"`

	Model             string `yaml:"model"`
	Voice             string `yaml:"voice"`
	SystemInstruction string `yaml:"system_instruction"`

	// Endpoint overrides the live websocket URL; empty means production.
	Endpoint string `yaml:"endpoint"`

	Video  VideoConfig  `yaml:"video"`
	Threat ThreatConfig `yaml:"threat"`

	Location LocationConfig `yaml:"location"`

	// GeocodeURL is the reverse geocoding endpoint for the location tool.
	GeocodeURL string `yaml:"geocode_url"`
}

// VideoConfig mirrors the engine's frame sampling settings. Cadences are in
// milliseconds.
type VideoConfig struct {
	CadenceMS         int  `yaml:"cadence_ms"`
	ReactiveCadenceMS int  `yaml:"reactive_cadence_ms"`
	Reactive          bool `yaml:"reactive"`
	Width             int  `yaml:"width"`
	JPEGQuality       int  `yaml:"jpeg_quality"`
}

// ThreatConfig mirrors the keyword monitor settings.
type ThreatConfig struct {
	Keywords []string `yaml:"keywords"`
	DwellMS  int      `yaml:"dwell_ms"`
}

// LocationConfig is the fixed position reported by the location tool.
type LocationConfig struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	session := live.DefaultSessionConfig()
	video := live.DefaultVideoConfig()
	threat := live.DefaultThreatConfig()
	return Config{
		Model:             session.Model,
		Voice:             session.Voice,
		SystemInstruction: "You are an assistive narrator. Describe the surroundings concisely and call out hazards immediately.",
		Video: VideoConfig{
			CadenceMS:         int(video.Cadence / time.Millisecond),
			ReactiveCadenceMS: int(video.ReactiveCadence / time.Millisecond),
			Width:             video.Width,
			JPEGQuality:       video.JPEGQuality,
		},
		Threat: ThreatConfig{
			Keywords: threat.Keywords,
			DwellMS:  int(threat.Dwell / time.Millisecond),
		},
		GeocodeURL: "https://nominatim.openstreetmap.org/reverse",
	}
}

// Load reads the configuration at path. A missing file yields the defaults;
// a malformed file is an error. GEMINI_API_KEY overrides the file's key.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Defaults plus environment.
	case err != nil:
		return Config{}, fmt.Errorf("read config %q: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	return cfg, nil
}

// Validate checks that required settings are present.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("api key is required (set GEMINI_API_KEY or api_key)")
	}
	if c.Model == "" {
		return errors.New("model must not be empty")
	}
	return nil
}

// EngineConfig converts the file representation into engine settings.
func (c Config) EngineConfig() live.EngineConfig {
	engine := live.DefaultEngineConfig()
	engine.Session.Model = c.Model
	engine.Session.Voice = c.Voice
	engine.Session.SystemInstruction = c.SystemInstruction

	if c.Video.CadenceMS > 0 {
		engine.Video.Cadence = time.Duration(c.Video.CadenceMS) * time.Millisecond
	}
	if c.Video.ReactiveCadenceMS > 0 {
		engine.Video.ReactiveCadence = time.Duration(c.Video.ReactiveCadenceMS) * time.Millisecond
	}
	engine.Video.Reactive = c.Video.Reactive
	if c.Video.Width > 0 {
		engine.Video.Width = c.Video.Width
	}
	if c.Video.JPEGQuality > 0 {
		engine.Video.JPEGQuality = c.Video.JPEGQuality
	}

	if len(c.Threat.Keywords) > 0 {
		engine.Threat.Keywords = c.Threat.Keywords
	}
	if c.Threat.DwellMS > 0 {
		engine.Threat.Dwell = time.Duration(c.Threat.DwellMS) * time.Millisecond
	}
	return engine
}
