package style

import (
	"fmt"
	"image/color"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Paint classes understood by the renderer
const (
	ClassRoad           = "road"
	ClassRailway        = "railway"
	ClassBorder         = "border"
	ClassWaterway       = "waterway"
	ClassPopulatedPlace = "populated_place"
	ClassPlain          = "plain"
	ClassForest         = "forest"
	ClassResidential    = "residential"
	ClassMountains      = "mountains"
	ClassDesert         = "desert"
	ClassWater          = "water"
	ClassUnknown        = "unknown"
)

// Config is the YAML form of a render style
type Config struct {
	// Background fills the canvas before any shape is drawn
	Background string `yaml:"background,omitempty"`
	// Label configures populated place names
	Label LabelConfig `yaml:"label"`
	// Paints maps a paint class to its colors. An entry in a style file
	// replaces the built-in entry of the same class as a whole.
	Paints map[string]Paint `yaml:"paints,omitempty"`
	// Hide lists paint classes that are not drawn at all
	Hide []string `yaml:"hide,omitempty"`
}

// LabelConfig holds label colors
type LabelConfig struct {
	Color string `yaml:"color,omitempty"`
	Halo  string `yaml:"halo,omitempty"`
}

// Paint describes how one class is filled and stroked.
// Width is the stroke width in pixels, or the marker size for points.
type Paint struct {
	Fill   string  `yaml:"fill,omitempty"`
	Stroke string  `yaml:"stroke,omitempty"`
	Width  float64 `yaml:"width,omitempty"`
}

// DefaultConfig returns the built-in palette
func DefaultConfig() *Config {
	return &Config{
		Background: "#f2efe9",
		Label:      LabelConfig{Color: "#222222", Halo: "#ffffff"},
		Paints: map[string]Paint{
			ClassRoad:           {Stroke: "#f7c785", Width: 3},
			ClassRailway:        {Stroke: "#707070", Width: 2},
			ClassBorder:         {Stroke: "#8d618b", Width: 2},
			ClassWaterway:       {Fill: "#aad3df", Stroke: "#aad3df", Width: 2},
			ClassPopulatedPlace: {Fill: "#222222", Width: 5},
			ClassPlain:          {Fill: "#cdebb0"},
			ClassForest:         {Fill: "#add19e"},
			ClassResidential:    {Fill: "#e0dfdf"},
			ClassMountains:      {Fill: "#c9c0b6"},
			ClassDesert:         {Fill: "#f5e9c6"},
			ClassWater:          {Fill: "#aad3df"},
			ClassUnknown:        {Fill: "#dfd9cf"},
		},
	}
}

// LoadConfig loads a style file on top of the built-in palette
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read style file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse style YAML: %w", err)
	}
	return cfg, nil
}

// Style is a compiled Config with parsed colors
type Style struct {
	Background color.NRGBA
	LabelColor color.NRGBA
	LabelHalo  color.NRGBA

	paints map[string]ResolvedPaint
	hidden map[string]bool
}

// ResolvedPaint is a Paint with parsed colors. A nil color means the
// fill or stroke is not drawn.
type ResolvedPaint struct {
	Fill   *color.NRGBA
	Stroke *color.NRGBA
	Width  float64
}

// Compile parses every color of the configuration
func (c *Config) Compile() (*Style, error) {
	s := &Style{
		paints: make(map[string]ResolvedPaint, len(c.Paints)),
		hidden: make(map[string]bool, len(c.Hide)),
	}

	var err error
	if s.Background, err = ParseColor(c.Background); err != nil {
		return nil, fmt.Errorf("background: %w", err)
	}
	if s.LabelColor, err = ParseColor(c.Label.Color); err != nil {
		return nil, fmt.Errorf("label color: %w", err)
	}
	if s.LabelHalo, err = ParseColor(c.Label.Halo); err != nil {
		return nil, fmt.Errorf("label halo: %w", err)
	}

	for class, p := range c.Paints {
		rp := ResolvedPaint{Width: p.Width}
		if p.Fill != "" {
			fill, err := ParseColor(p.Fill)
			if err != nil {
				return nil, fmt.Errorf("paint %s fill: %w", class, err)
			}
			rp.Fill = &fill
		}
		if p.Stroke != "" {
			stroke, err := ParseColor(p.Stroke)
			if err != nil {
				return nil, fmt.Errorf("paint %s stroke: %w", class, err)
			}
			rp.Stroke = &stroke
		}
		if rp.Width <= 0 {
			rp.Width = 1
		}
		s.paints[class] = rp
	}

	for _, class := range c.Hide {
		s.hidden[class] = true
	}
	return s, nil
}

// Default returns the compiled built-in palette
func Default() *Style {
	s, err := DefaultConfig().Compile()
	if err != nil {
		panic(err)
	}
	return s
}

// Paint returns the paint of a class. Hidden and unknown classes report false.
func (s *Style) Paint(class string) (ResolvedPaint, bool) {
	if s.hidden[class] {
		return ResolvedPaint{}, false
	}
	p, ok := s.paints[class]
	return p, ok
}

// ParseColor parses #rrggbb or #rrggbbaa into a non-premultiplied color
func ParseColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 && len(hex) != 8 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
