package classify

import (
	"strings"

	"github.com/wegman-software/mapster-go/internal/osmdata"
)

// HighwayTypes are the highway values drawn as roads
var HighwayTypes = []string{
	"motorway",
	"trunk",
	"primary",
	"secondary",
	"tertiary",
	"unclassified",
	"residential",
	"road",
}

var (
	placeValues = []string{"city", "town", "locality", "hamlet"}

	forestLanduse = []string{"forest", "orchard"}

	residentialLanduse = []string{
		"residential", "cemetery", "industrial", "commercial", "square",
		"construction", "military", "quarry", "brownfield",
	}

	// Keys that turn a closed way into a built-up area
	residentialKeys = []string{"building", "leisure", "amenity"}

	plainLanduse = []string{
		"farm", "meadow", "grass", "greenfield", "recreation_ground",
		"winter_sports", "allotments",
	}

	waterLanduse = []string{"reservoir", "basin"}
)

// rule is one step of the classification waterfall
type rule struct {
	category Category
	match    func(tags []osmdata.Tag, geom osmdata.GeometryType) bool
}

// rules are evaluated in order and the first match wins
var rules = []rule{
	{Road, func(tags []osmdata.Tag, _ osmdata.GeometryType) bool {
		return hasTag(tags, func(t osmdata.Tag) bool {
			return t.Key == "highway" && hasPrefix(t.Value, HighwayTypes)
		})
	}},
	{Waterway, func(tags []osmdata.Tag, geom osmdata.GeometryType) bool {
		return geom != osmdata.GeometryPolygon && hasKeyPrefix(tags, "water")
	}},
	{Border, func(tags []osmdata.Tag, _ osmdata.GeometryType) bool {
		return isNationalBorder(tags)
	}},
	{PopulatedPlace, func(tags []osmdata.Tag, geom osmdata.GeometryType) bool {
		return geom == osmdata.GeometryPoint && hasValuePrefix(tags, "place", placeValues)
	}},
	{Railway, func(tags []osmdata.Tag, _ osmdata.GeometryType) bool {
		return hasKeyPrefix(tags, "railway")
	}},
	{Natural, func(tags []osmdata.Tag, geom osmdata.GeometryType) bool {
		return geom == osmdata.GeometryPolygon && hasKeyPrefix(tags, "natural")
	}},
	{Forest, func(tags []osmdata.Tag, _ osmdata.GeometryType) bool {
		return hasValuePrefix(tags, "boundary", []string{"forest"}) ||
			hasValuePrefix(tags, "landuse", forestLanduse)
	}},
	{Residential, func(tags []osmdata.Tag, geom osmdata.GeometryType) bool {
		if geom != osmdata.GeometryPolygon {
			return false
		}
		if hasValuePrefix(tags, "landuse", residentialLanduse) {
			return true
		}
		for _, key := range residentialKeys {
			if hasKeyPrefix(tags, key) {
				return true
			}
		}
		return false
	}},
	{Plain, func(tags []osmdata.Tag, geom osmdata.GeometryType) bool {
		return geom == osmdata.GeometryPolygon && hasValuePrefix(tags, "landuse", plainLanduse)
	}},
	{Water, func(tags []osmdata.Tag, geom osmdata.GeometryType) bool {
		return geom == osmdata.GeometryPolygon && hasValuePrefix(tags, "landuse", waterLanduse)
	}},
}

// Classify maps a tag set and geometry to a shape category.
// It never fails; unmatched features are None.
func Classify(tags []osmdata.Tag, geom osmdata.GeometryType) Category {
	for _, r := range rules {
		if r.match(tags, geom) {
			return r.category
		}
	}
	return None
}

// isNationalBorder requires boundary=administrative* and admin_level=2 on the same feature
// https://wiki.openstreetmap.org/wiki/Key:admin_level
func isNationalBorder(tags []osmdata.Tag) bool {
	foundBoundary := false
	foundLevel := false
	for _, t := range tags {
		if strings.HasPrefix(t.Key, "boundary") && strings.HasPrefix(t.Value, "administrative") {
			foundBoundary = true
		}
		if strings.HasPrefix(t.Key, "admin_level") && t.Value == "2" {
			foundLevel = true
		}
		if foundBoundary && foundLevel {
			return true
		}
	}
	return false
}

func hasTag(tags []osmdata.Tag, pred func(osmdata.Tag) bool) bool {
	for _, t := range tags {
		if pred(t) {
			return true
		}
	}
	return false
}

func hasKeyPrefix(tags []osmdata.Tag, prefix string) bool {
	return hasTag(tags, func(t osmdata.Tag) bool {
		return strings.HasPrefix(t.Key, prefix)
	})
}

// hasValuePrefix checks for a tag whose key starts with keyPrefix and whose
// value starts with one of values
func hasValuePrefix(tags []osmdata.Tag, keyPrefix string, values []string) bool {
	return hasTag(tags, func(t osmdata.Tag) bool {
		return strings.HasPrefix(t.Key, keyPrefix) && hasPrefix(t.Value, values)
	})
}

func hasPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
