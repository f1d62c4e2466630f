package classify

import "fmt"

// Category is the shape category assigned to a feature.
// The numeric values are stored in the map file and must not change.
type Category int32

const (
	None Category = iota
	Road
	Waterway
	Border
	PopulatedPlace
	Railway
	Natural
	Forest
	Residential
	Plain
	Water
)

// Categories lists every drawable category in ordinal order
var Categories = []Category{
	Road, Waterway, Border, PopulatedPlace, Railway,
	Natural, Forest, Residential, Plain, Water,
}

var categoryNames = map[Category]string{
	None:           "none",
	Road:           "road",
	Waterway:       "waterway",
	Border:         "border",
	PopulatedPlace: "populated_place",
	Railway:        "railway",
	Natural:        "natural",
	Forest:         "forest",
	Residential:    "residential",
	Plain:          "plain",
	Water:          "water",
}

// String returns the snake_case name of the category
func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", int32(c))
}

// Valid reports whether c is None or a drawable category
func (c Category) Valid() bool {
	return c >= None && c <= Water
}

// ParseCategory parses a category name as returned by String
func ParseCategory(s string) (Category, error) {
	for c, name := range categoryNames {
		if name == s {
			return c, nil
		}
	}
	return None, fmt.Errorf("unknown shape category: %s", s)
}
