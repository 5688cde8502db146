package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is chunkd.yaml.
type Config struct {
	Listen    string `yaml:"listen"`
	DataDir   string `yaml:"data_dir"`
	DisableDB bool   `yaml:"disable_db"`

	Seed           int64 `yaml:"seed"`
	PollIntervalMs int   `yaml:"poll_interval_ms"`

	Terrain TerrainSpec `yaml:"terrain"`
}

// TerrainSpec tunes the stock generator. Zeroes fall back to the
// generator's defaults.
type TerrainSpec struct {
	GroundLevel  int     `yaml:"ground_level"`
	HeightAmp    float64 `yaml:"height_amp"`
	FeatureScale float64 `yaml:"feature_scale"`
	Octaves      int     `yaml:"octaves"`
	Lacunarity   float64 `yaml:"lacunarity"`
	Persistence  float64 `yaml:"persistence"`
	SoilDepth    int     `yaml:"soil_depth"`

	OrePocketGrid   int    `yaml:"ore_pocket_grid"`
	OrePocketRadius int    `yaml:"ore_pocket_radius"`
	CoalPermille    uint64 `yaml:"coal_permille"`
	IronPermille    uint64 `yaml:"iron_permille"`
	CrystalPermille uint64 `yaml:"crystal_permille"`
}

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("chunkd.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("chunkd.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Listen:         ":8080",
		DataDir:        "./data",
		Seed:           1337,
		PollIntervalMs: 25,
		Terrain: TerrainSpec{
			GroundLevel:     8,
			HeightAmp:       12,
			FeatureScale:    96,
			Octaves:         4,
			Lacunarity:      2.0,
			Persistence:     0.5,
			SoilDepth:       3,
			OrePocketGrid:   12,
			OrePocketRadius: 2,
			CoalPermille:    450,
			IronPermille:    250,
			CrystalPermille: 60,
		},
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	if strings.TrimSpace(c.Listen) == "" {
		c.Listen = ":8080"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./data"
	}
	if c.PollIntervalMs <= 0 {
		c.PollIntervalMs = 25
	}
}

func (c Config) Validate() error {
	if c.PollIntervalMs < 1 || c.PollIntervalMs > 60000 {
		return fmt.Errorf("poll_interval_ms must be in [1, 60000], got %d", c.PollIntervalMs)
	}
	t := c.Terrain
	if t.Octaves < 0 || t.Octaves > 10 {
		return fmt.Errorf("terrain octaves must be in [0, 10], got %d", t.Octaves)
	}
	if t.FeatureScale < 0 {
		return fmt.Errorf("terrain feature_scale must be >= 0, got %v", t.FeatureScale)
	}
	if t.HeightAmp < 0 {
		return fmt.Errorf("terrain height_amp must be >= 0, got %v", t.HeightAmp)
	}
	for _, p := range []struct {
		name string
		v    uint64
	}{
		{"coal_permille", t.CoalPermille},
		{"iron_permille", t.IronPermille},
		{"crystal_permille", t.CrystalPermille},
	} {
		if p.v > 1000 {
			return fmt.Errorf("terrain %s must be <= 1000, got %d", p.name, p.v)
		}
	}
	return nil
}

// PollInterval is PollIntervalMs as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}
