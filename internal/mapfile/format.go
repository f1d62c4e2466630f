// Package mapfile reads and writes the tile-partitioned binary map format.
//
// All integers are little-endian and every record is packed:
//
//	FileHeader       Version i64, TileCount i32
//	TileHeaderEntry  TileID i32, Offset i64                    (x TileCount)
//	TileBlockHeader  FeatureCount i32, CoordinateCount i32, StringCount i32,
//	                 CharactersCount i32, CoordinatesOffset i64,
//	                 StringsOffset i64, CharactersOffset i64   (per tile)
//	MapFeature       ID i64, LabelOffset i32, GeometryType u8,
//	                 CoordinateOffset i32, CoordinateCount i32,
//	                 PropertiesOffset i32, PropertyCount i32,
//	                 ShapeCategory i32                         (x FeatureCount)
//	Coordinate       Lat f64, Lon f64                          (x CoordinateCount)
//	StringDescriptor Offset i32, Length i32                    (x StringCount)
//	Characters       UTF-16 code units
//
// Block offsets are absolute file positions. Coordinate, property and label
// offsets inside a feature are indices into the arrays of the same block.
package mapfile

import (
	"errors"
	"fmt"
	"strings"
)

// Version is the format version written into the file header
const Version int64 = 1

// Record sizes in bytes
const (
	fileHeaderSize       = 12
	tileEntrySize        = 12
	blockHeaderSize      = 40
	featureRecordSize    = 33
	coordinateRecordSize = 16
	descriptorRecordSize = 8
	charSize             = 2
)

// Field offsets inside a block header
const (
	blockCoordinatesOffsetField = 16
	blockStringsOffsetField     = 24
	blockCharactersOffsetField  = 32
)

// NoLabel is the LabelOffset of a feature without a name tag
const NoLabel int32 = -1

var (
	// ErrCorrupt is wrapped by every decode error caused by out of range data
	ErrCorrupt = errors.New("corrupt map file")

	// ErrPropertyMismatch aborts encoding when a feature's key and value counts differ
	ErrPropertyMismatch = errors.New("property keys and values should have the same count")
)

func corruptf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}

// Partition selects which features are written into each tile block
type Partition int

const (
	// PartitionGlobal writes the complete feature set into every tile block
	PartitionGlobal Partition = iota
	// PartitionSpatial writes only the features touching the tile
	PartitionSpatial
)

// String returns the flag name of the partition mode
func (p Partition) String() string {
	switch p {
	case PartitionGlobal:
		return "global"
	case PartitionSpatial:
		return "spatial"
	default:
		return fmt.Sprintf("partition(%d)", int(p))
	}
}

// ParsePartition parses a partition mode name
func ParsePartition(s string) (Partition, error) {
	switch strings.ToLower(s) {
	case "global", "":
		return PartitionGlobal, nil
	case "spatial":
		return PartitionSpatial, nil
	default:
		return PartitionGlobal, fmt.Errorf("unknown partition mode: %s (supported: global, spatial)", s)
	}
}
