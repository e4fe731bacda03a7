package locator

import "fmt"

// Config represents the full configuration file
type Config struct {
	MQTT       MQTTConfig       `yaml:"mqtt" json:"mqtt"`
	Tag        TagConfig        `yaml:"tag" json:"tag"`
	World      WorldConfig      `yaml:"world" json:"world"`
	Anchors    []AnchorConfig   `yaml:"anchors" json:"anchors"`
	Filter     FilterConfig     `yaml:"filter" json:"filter"`
	Simulation SimulationConfig `yaml:"simulation" json:"simulation"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// TagConfig identifies the tracked UWB tag and the topic carrying its ranging uplink
type TagConfig struct {
	ID    string `yaml:"id" json:"id"`
	Topic string `yaml:"topic,omitempty" json:"topic,omitempty"` // defaults to Tag/{id}/Uplink/Location
}

// WorldConfig describes the bounded environment in centimeters
type WorldConfig struct {
	Width     float64      `yaml:"width" json:"width"`
	Height    float64      `yaml:"height" json:"height"`
	CellSize  float64      `yaml:"cellSize,omitempty" json:"cellSize,omitempty"`
	Layout    []string     `yaml:"layout,omitempty" json:"layout,omitempty"` // rows of 0/1/2/3 cell codes
	Obstacles []RectConfig `yaml:"obstacles,omitempty" json:"obstacles,omitempty"`
}

// RectConfig is an axis-aligned obstacle rectangle (origin + size, cm)
type RectConfig struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
	W float64 `yaml:"w" json:"w"`
	H float64 `yaml:"h" json:"h"`
}

// AnchorConfig defines a fixed ranging anchor (cm). Z is informational only.
type AnchorConfig struct {
	ID string  `yaml:"id" json:"id"`
	X  float64 `yaml:"x" json:"x"`
	Y  float64 `yaml:"y" json:"y"`
	Z  float64 `yaml:"z,omitempty" json:"z,omitempty"`
}

// Pose is a position (cm) plus heading (degrees)
type Pose struct {
	X       float64 `yaml:"x" json:"x"`
	Y       float64 `yaml:"y" json:"y"`
	Heading float64 `yaml:"heading" json:"heading"`
}

// FilterConfig holds the particle filter tuning knobs
type FilterConfig struct {
	Particles          int              `yaml:"particles" json:"particles"`
	HeadingKnown       bool             `yaml:"headingKnown" json:"headingKnown"`
	Sigma              float64          `yaml:"sigma" json:"sigma"`                           // sensor noise, cm
	ResampleJitter     float64          `yaml:"resampleJitter" json:"resampleJitter"`         // "little" noise level
	InitJitter         float64          `yaml:"initJitter" json:"initJitter"`                 // "some" noise level
	ConfidenceDistance float64          `yaml:"confidenceDistance" json:"confidenceDistance"` // cm
	ConfidenceRatio    float64          `yaml:"confidenceRatio" json:"confidenceRatio"`
	SpeedWindow        int              `yaml:"speedWindow" json:"speedWindow"`
	DegeneratePolicy   DegeneratePolicy `yaml:"degeneratePolicy" json:"degeneratePolicy"`
	MotionNoise        bool             `yaml:"motionNoise" json:"motionNoise"`
	Seed               uint64           `yaml:"seed,omitempty" json:"seed,omitempty"` // 0 = time based
	InitialPose        *Pose            `yaml:"initialPose,omitempty" json:"initialPose,omitempty"`
}

// SimulationConfig controls the simulated ground-truth agent
type SimulationConfig struct {
	Speed   float64 `yaml:"speed" json:"speed"`     // cm per step
	Dropout float64 `yaml:"dropout" json:"dropout"` // per-anchor probability of a lost reading
}

// DegeneratePolicy decides what a particle's weight becomes when no anchor
// could be compared for it
type DegeneratePolicy string

const (
	KeepPriorWeight DegeneratePolicy = "keep"
	ZeroWeight      DegeneratePolicy = "zero"
)

// Valid reports whether p is a known policy
func (p DegeneratePolicy) Valid() bool {
	return p == KeepPriorWeight || p == ZeroWeight
}

// TagTopic returns the uplink topic for the configured tag
func (c *Config) TagTopic() string {
	if c.Tag.Topic != "" {
		return c.Tag.Topic
	}
	return fmt.Sprintf("Tag/%s/Uplink/Location", c.Tag.ID)
}

// AnchorList converts the configured anchors to their runtime form
func (c *Config) AnchorList() []Anchor {
	anchors := make([]Anchor, len(c.Anchors))
	for i, ac := range c.Anchors {
		anchors[i] = Anchor{ID: ac.ID, X: ac.X, Y: ac.Y, Z: ac.Z}
	}
	return anchors
}
