package config

import (
	"czmlstream/internal/clock"
	"czmlstream/internal/models"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Part is one segment of the multi-part document.
type Part struct {
	Source string
	Start  float64
	End    float64
}

// Source describes where part documents are fetched from.
type Source struct {
	// Base is an http(s) URL or a local directory.
	Base      string
	UserAgent string
	Workers   int
}

// IsRemote reports whether Base is an HTTP location rather than a directory.
func (s Source) IsRemote() bool {
	u, err := url.Parse(s.Base)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}

// Clock configures the simulated timeline.
type Clock struct {
	Start      time.Time
	Stop       time.Time
	Multiplier float64
	Range      clock.RangePolicy
	// FromDocument adopts the clock declared by the first loaded document.
	FromDocument bool
}

// Config holds the fully processed application configuration.
type Config struct {
	Name   string
	Listen string
	Source Source
	// Preload is the preload window in seconds.
	Preload         float64
	TrackedEntity   string
	TrackedProperty string
	TickInterval    time.Duration
	Clock           Clock
	Parts           []Part
}

// Segments returns the parts as loader segments.
func (c *Config) Segments() []models.Segment {
	segs := make([]models.Segment, len(c.Parts))
	for i, p := range c.Parts {
		segs[i] = models.Segment{Source: p.Source, Range: models.Range{Start: p.Start, End: p.End}}
	}
	return segs
}

// rawPart is the on-disk shape of a part; range is a two-element list.
type rawPart struct {
	Source string    `yaml:"source"`
	Range  []float64 `yaml:"range"`
}

type rawSource struct {
	Base      string `yaml:"base"`
	UserAgent string `yaml:"user_agent"`
	Workers   int    `yaml:"workers"`
}

type rawClock struct {
	Start        string  `yaml:"start"`
	Stop         string  `yaml:"stop"`
	Multiplier   float64 `yaml:"multiplier"`
	Range        string  `yaml:"range"`
	FromDocument bool    `yaml:"from_document"`
}

// rawConfig maps directly to the YAML file. Pointers mark fields whose zero
// value is meaningful.
type rawConfig struct {
	Name            string    `yaml:"name"`
	Listen          string    `yaml:"listen"`
	Source          rawSource `yaml:"source"`
	PreloadSeconds  *float64  `yaml:"preload_seconds"`
	TrackedEntity   *string   `yaml:"tracked_entity"`
	TrackedProperty *string   `yaml:"tracked_property"`
	TickInterval    string    `yaml:"tick_interval"`
	Clock           rawClock  `yaml:"clock"`
	Parts           []rawPart `yaml:"parts"`
}

const (
	defaultName            = "multipart-vehicle"
	defaultListen          = ":8080"
	defaultBase            = "sampledata"
	defaultWorkers         = 2
	defaultPreload         = 100
	defaultTrackedEntity   = "Vehicle"
	defaultTrackedProperty = "fuel_remaining"
	defaultTickInterval    = 100 * time.Millisecond
	defaultClockStart      = "2012-08-04T16:00:00Z"
	defaultMultiplier      = 10
)

// Default returns the built-in three-part vehicle configuration.
func Default() *Config {
	cfg, err := process(rawConfig{
		Parts: []rawPart{
			{Source: "MultipartVehicle_part1.czml", Range: []float64{0, 1500}},
			{Source: "MultipartVehicle_part2.czml", Range: []float64{1500, 3000}},
			{Source: "MultipartVehicle_part3.czml", Range: []float64{3000, 4500}},
		},
		Clock: rawClock{Range: "clamped"},
	})
	if err != nil {
		panic(fmt.Sprintf("default config is invalid: %v", err))
	}
	return cfg
}

// LoadConfig reads and parses the configuration file from the given path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file at %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML (or JSON) configuration and fills in defaults.
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return process(raw)
}

func process(raw rawConfig) (*Config, error) {
	cfg := &Config{
		Name:            orDefault(raw.Name, defaultName),
		Listen:          orDefault(raw.Listen, defaultListen),
		Preload:         defaultPreload,
		TrackedEntity:   defaultTrackedEntity,
		TrackedProperty: defaultTrackedProperty,
		TickInterval:    defaultTickInterval,
		Source: Source{
			Base:      orDefault(raw.Source.Base, defaultBase),
			UserAgent: raw.Source.UserAgent,
			Workers:   raw.Source.Workers,
		},
	}
	if cfg.Source.Workers <= 0 {
		cfg.Source.Workers = defaultWorkers
	}
	if raw.PreloadSeconds != nil {
		if *raw.PreloadSeconds < 0 {
			return nil, fmt.Errorf("preload_seconds must not be negative, got %g", *raw.PreloadSeconds)
		}
		cfg.Preload = *raw.PreloadSeconds
	}
	if raw.TrackedEntity != nil {
		cfg.TrackedEntity = *raw.TrackedEntity
	}
	if raw.TrackedProperty != nil {
		cfg.TrackedProperty = *raw.TrackedProperty
	}
	if raw.TickInterval != "" {
		d, err := time.ParseDuration(raw.TickInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid tick_interval '%s': %w", raw.TickInterval, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("tick_interval must be positive, got %s", d)
		}
		cfg.TickInterval = d
	}

	if len(raw.Parts) == 0 {
		return nil, fmt.Errorf("config must list at least one part")
	}
	for i, rp := range raw.Parts {
		if rp.Source == "" {
			return nil, fmt.Errorf("part %d has no source", i)
		}
		if len(rp.Range) != 2 {
			return nil, fmt.Errorf("part '%s': expected range [start, end], got %v", rp.Source, rp.Range)
		}
		cfg.Parts = append(cfg.Parts, Part{Source: rp.Source, Start: rp.Range[0], End: rp.Range[1]})
	}

	c, err := processClock(raw.Clock, cfg.Parts[len(cfg.Parts)-1].End)
	if err != nil {
		return nil, err
	}
	cfg.Clock = c
	return cfg, nil
}

func processClock(rc rawClock, lastEnd float64) (Clock, error) {
	c := Clock{Multiplier: rc.Multiplier, FromDocument: rc.FromDocument}
	if c.Multiplier == 0 {
		c.Multiplier = defaultMultiplier
	}

	start, err := time.Parse(time.RFC3339, orDefault(rc.Start, defaultClockStart))
	if err != nil {
		return Clock{}, fmt.Errorf("invalid clock start '%s': %w", rc.Start, err)
	}
	c.Start = start

	if rc.Stop != "" {
		stop, err := time.Parse(time.RFC3339, rc.Stop)
		if err != nil {
			return Clock{}, fmt.Errorf("invalid clock stop '%s': %w", rc.Stop, err)
		}
		if stop.Before(start) {
			return Clock{}, fmt.Errorf("clock stop %s is before start %s", rc.Stop, rc.Start)
		}
		c.Stop = stop
	} else {
		// The timeline ends where the last part does.
		c.Stop = start.Add(time.Duration(lastEnd * float64(time.Second)))
	}

	if c.Range, err = clock.ParseRange(rc.Range); err != nil {
		return Clock{}, err
	}
	return c, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
