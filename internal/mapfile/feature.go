package mapfile

import (
	"github.com/wegman-software/mapster-go/internal/classify"
	"github.com/wegman-software/mapster-go/internal/osmdata"
)

// Feature is a decoded map feature
type Feature struct {
	ID          int64
	TileID      int32
	Geometry    osmdata.GeometryType
	Category    classify.Category
	Coordinates []osmdata.Coordinate
	Keys        []string
	Values      []string

	// LabelOffset is the string descriptor index of the name value, NoLabel if absent
	LabelOffset int32
	Label       string
}

// HasLabel reports whether the feature carries a name
func (f *Feature) HasLabel() bool {
	return f.LabelOffset != NoLabel
}

// Tag returns the value of the first tag with the given key
func (f *Feature) Tag(key string) (string, bool) {
	for i, k := range f.Keys {
		if k == key {
			return f.Values[i], true
		}
	}
	return "", false
}

// Tags returns the key/value pairs in file order
func (f *Feature) Tags() []osmdata.Tag {
	tags := make([]osmdata.Tag, len(f.Keys))
	for i := range f.Keys {
		tags[i] = osmdata.Tag{Key: f.Keys[i], Value: f.Values[i]}
	}
	return tags
}
