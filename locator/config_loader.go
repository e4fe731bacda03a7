package locator

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultParticleCount      = 2000
	DefaultSigma              = 5.0
	DefaultResampleJitter     = 5.0
	DefaultInitJitter         = 10.0
	DefaultConfidenceDistance = 25.0
	DefaultConfidenceRatio    = 0.95
	DefaultSpeedWindow        = 10
	DefaultTagID              = "9A1C"
)

// DefaultConfig returns the built-in 3.4m x 3.4m test room with four corner anchors
func DefaultConfig() *Config {
	cfg := &Config{
		Tag: TagConfig{ID: DefaultTagID},
		World: WorldConfig{
			Width:    340,
			Height:   340,
			CellSize: 34,
		},
		Anchors: []AnchorConfig{
			{ID: "C584", X: 37, Y: 20, Z: 78},
			{ID: "DA36", X: 21, Y: 335, Z: 129},
			{ID: "9234", X: 295, Y: 278, Z: 118},
			{ID: "8287", X: 269, Y: 36, Z: 66},
		},
		Simulation: SimulationConfig{Speed: 5},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued tuning fields with their defaults
func (c *Config) ApplyDefaults() {
	f := &c.Filter
	if f.Particles == 0 {
		f.Particles = DefaultParticleCount
	}
	if f.Sigma == 0 {
		f.Sigma = DefaultSigma
	}
	if f.ResampleJitter == 0 {
		f.ResampleJitter = DefaultResampleJitter
	}
	if f.InitJitter == 0 {
		f.InitJitter = DefaultInitJitter
	}
	if f.ConfidenceDistance == 0 {
		f.ConfidenceDistance = DefaultConfidenceDistance
	}
	if f.ConfidenceRatio == 0 {
		f.ConfidenceRatio = DefaultConfidenceRatio
	}
	if f.SpeedWindow == 0 {
		f.SpeedWindow = DefaultSpeedWindow
	}
	if f.DegeneratePolicy == "" {
		f.DegeneratePolicy = KeepPriorWeight
	}
	if c.Tag.ID == "" {
		c.Tag.ID = DefaultTagID
	}
	if c.MQTT.PublishPrefix == "" {
		c.MQTT.PublishPrefix = "uwbloc"
	}
}

// Validate checks the configuration for values the filter cannot run with
func (c *Config) Validate() error {
	f := c.Filter
	if f.Particles < 1 {
		return fmt.Errorf("filter.particles must be at least 1, got %d", f.Particles)
	}
	if f.Sigma <= 0 {
		return fmt.Errorf("filter.sigma must be positive, got %g", f.Sigma)
	}
	if f.ResampleJitter < 0 || f.InitJitter < 0 {
		return fmt.Errorf("filter jitter levels must not be negative")
	}
	if f.ConfidenceRatio <= 0 || f.ConfidenceRatio > 1 {
		return fmt.Errorf("filter.confidenceRatio must be in (0, 1], got %g", f.ConfidenceRatio)
	}
	if f.SpeedWindow < 1 {
		return fmt.Errorf("filter.speedWindow must be at least 1, got %d", f.SpeedWindow)
	}
	if !f.DegeneratePolicy.Valid() {
		return fmt.Errorf("filter.degeneratePolicy must be %q or %q, got %q", KeepPriorWeight, ZeroWeight, f.DegeneratePolicy)
	}
	if c.Simulation.Dropout < 0 || c.Simulation.Dropout > 1 {
		return fmt.Errorf("simulation.dropout must be in [0, 1], got %g", c.Simulation.Dropout)
	}
	if len(c.World.Layout) == 0 && (c.World.Width <= 0 || c.World.Height <= 0) {
		return fmt.Errorf("world.width and world.height are required without a layout")
	}
	for i, ac := range c.Anchors {
		if ac.ID == "" {
			return fmt.Errorf("anchors[%d].id is required", i)
		}
	}
	return nil
}

// LoadConfig loads the configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
