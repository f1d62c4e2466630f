package mapfile

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"unicode/utf16"

	"github.com/edsrzf/mmap-go"

	"github.com/wegman-software/mapster-go/internal/classify"
	"github.com/wegman-software/mapster-go/internal/osmdata"
	"github.com/wegman-software/mapster-go/internal/tiling"
)

// TileInfo describes one tile block of an open map file
type TileInfo struct {
	ID              int32
	Offset          int64
	FeatureCount    int32
	CoordinateCount int32
	StringCount     int32
}

// tileEntry is a header entry pointing at a tile block
type tileEntry struct {
	id     int32
	offset int64
}

// blockHeader is a decoded TileBlockHeader
type blockHeader struct {
	featureCount      int32
	coordinateCount   int32
	stringCount       int32
	charactersCount   int32
	coordinatesOffset int64
	stringsOffset     int64
	charactersOffset  int64
}

// Reader is a read-only, memory-mapped map file.
// The mapping is never modified, so a Reader may serve concurrent queries.
type Reader struct {
	file    *os.File
	data    mmap.MMap
	version int64
	entries []tileEntry
}

// Open memory-maps a map file and validates its header
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open map file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat map file: %w", err)
	}
	if info.Size() < fileHeaderSize {
		f.Close()
		return nil, corruptf("file is %d bytes, smaller than the file header", info.Size())
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to mmap map file: %w", err)
	}

	r := &Reader{file: f, data: data}
	if err := r.readHeader(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// Close unmaps and closes the file
func (r *Reader) Close() error {
	if r.data != nil {
		if err := r.data.Unmap(); err != nil {
			r.file.Close()
			return err
		}
		r.data = nil
	}
	return r.file.Close()
}

// Version returns the format version stored in the file header
func (r *Reader) Version() int64 {
	return r.version
}

// TileCount returns the number of tile blocks
func (r *Reader) TileCount() int {
	return len(r.entries)
}

// Size returns the file size in bytes
func (r *Reader) Size() int64 {
	return int64(len(r.data))
}

func (r *Reader) readHeader() error {
	d := decoder(r.data)
	r.version, _ = d.int64At(0)
	count, _ := d.int32At(8)
	if count < 0 {
		return corruptf("negative tile count %d", count)
	}
	if _, err := d.slice(fileHeaderSize, int64(count)*tileEntrySize); err != nil {
		return fmt.Errorf("tile header: %w", err)
	}

	r.entries = make([]tileEntry, count)
	for i := range r.entries {
		at := int64(fileHeaderSize + i*tileEntrySize)
		id, _ := d.int32At(at)
		offset, _ := d.int64At(at + 4)
		r.entries[i] = tileEntry{id: id, offset: offset}
	}
	return nil
}

// Tiles returns the block statistics of every tile in file order
func (r *Reader) Tiles() ([]TileInfo, error) {
	infos := make([]TileInfo, 0, len(r.entries))
	for _, e := range r.entries {
		h, err := r.readBlockHeader(e)
		if err != nil {
			return nil, err
		}
		infos = append(infos, TileInfo{
			ID:              e.id,
			Offset:          e.offset,
			FeatureCount:    h.featureCount,
			CoordinateCount: h.coordinateCount,
			StringCount:     h.stringCount,
		})
	}
	return infos, nil
}

// ForEachFeature decodes every feature of every tile overlapping bbox and
// passes it to visit. Iteration stops early when visit returns false.
// Features are decoded lazily; visit must not retain the feature beyond what it copies.
func (r *Reader) ForEachFeature(bbox osmdata.BBox, visit func(*Feature) bool) error {
	rng := tiling.RangeOf(bbox)
	if rng.Empty() {
		return nil
	}
	for _, e := range r.entries {
		if !rng.Contains(e.id) {
			continue
		}
		more, err := r.forEachInBlock(e, visit)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

// ForEachFeatureInTile decodes the features of a single tile.
// It returns false if the tile is not present in the file.
func (r *Reader) ForEachFeatureInTile(tileID int32, visit func(*Feature) bool) (bool, error) {
	for _, e := range r.entries {
		if e.id == tileID {
			_, err := r.forEachInBlock(e, visit)
			return true, err
		}
	}
	return false, nil
}

func (r *Reader) readBlockHeader(e tileEntry) (*blockHeader, error) {
	d := decoder(r.data)
	if _, err := d.slice(e.offset, blockHeaderSize); err != nil {
		return nil, fmt.Errorf("tile %d block header: %w", e.id, err)
	}

	h := &blockHeader{}
	h.featureCount, _ = d.int32At(e.offset)
	h.coordinateCount, _ = d.int32At(e.offset + 4)
	h.stringCount, _ = d.int32At(e.offset + 8)
	h.charactersCount, _ = d.int32At(e.offset + 12)
	h.coordinatesOffset, _ = d.int64At(e.offset + blockCoordinatesOffsetField)
	h.stringsOffset, _ = d.int64At(e.offset + blockStringsOffsetField)
	h.charactersOffset, _ = d.int64At(e.offset + blockCharactersOffsetField)

	if h.featureCount < 0 || h.coordinateCount < 0 || h.stringCount < 0 {
		return nil, corruptf("tile %d has negative counts", e.id)
	}
	if _, err := d.slice(e.offset+blockHeaderSize, int64(h.featureCount)*featureRecordSize); err != nil {
		return nil, fmt.Errorf("tile %d features: %w", e.id, err)
	}
	if _, err := d.slice(h.coordinatesOffset, int64(h.coordinateCount)*coordinateRecordSize); err != nil {
		return nil, fmt.Errorf("tile %d coordinates: %w", e.id, err)
	}
	if _, err := d.slice(h.stringsOffset, int64(h.stringCount)*descriptorRecordSize); err != nil {
		return nil, fmt.Errorf("tile %d string descriptors: %w", e.id, err)
	}
	if h.charactersOffset < 0 || h.charactersOffset > int64(len(r.data)) {
		return nil, corruptf("tile %d characters offset %d out of range", e.id, h.charactersOffset)
	}
	return h, nil
}

func (r *Reader) forEachInBlock(e tileEntry, visit func(*Feature) bool) (bool, error) {
	h, err := r.readBlockHeader(e)
	if err != nil {
		return false, err
	}

	for i := int32(0); i < h.featureCount; i++ {
		f, err := r.decodeFeature(e.id, h, e.offset+blockHeaderSize+int64(i)*featureRecordSize)
		if err != nil {
			return false, err
		}
		if !visit(f) {
			return false, nil
		}
	}
	return true, nil
}

func (r *Reader) decodeFeature(tileID int32, h *blockHeader, at int64) (*Feature, error) {
	d := decoder(r.data)

	id, _ := d.int64At(at)
	label, _ := d.int32At(at + 8)
	geometry := osmdata.GeometryType(r.data[at+12])
	coordOffset, _ := d.int32At(at + 13)
	coordCount, _ := d.int32At(at + 17)
	propOffset, _ := d.int32At(at + 21)
	propCount, _ := d.int32At(at + 25)
	category, _ := d.int32At(at + 29)

	if !geometry.Valid() {
		return nil, corruptf("feature %d has unknown geometry type %d", id, uint8(geometry))
	}
	if !classify.Category(category).Valid() {
		return nil, corruptf("feature %d has unknown shape category %d", id, category)
	}
	if coordOffset < 0 || coordCount < 0 || int64(coordOffset)+int64(coordCount) > int64(h.coordinateCount) {
		return nil, corruptf("feature %d coordinates [%d, +%d) exceed %d", id, coordOffset, coordCount, h.coordinateCount)
	}
	if propOffset < 0 || propCount < 0 || int64(propOffset)+2*int64(propCount) > int64(h.stringCount) {
		return nil, corruptf("feature %d properties [%d, +%d) exceed %d", id, propOffset, 2*propCount, h.stringCount)
	}

	f := &Feature{
		ID:          id,
		TileID:      tileID,
		Geometry:    geometry,
		Category:    classify.Category(category),
		Coordinates: make([]osmdata.Coordinate, coordCount),
		Keys:        make([]string, propCount),
		Values:      make([]string, propCount),
		LabelOffset: label,
	}

	for i := range f.Coordinates {
		c := h.coordinatesOffset + (int64(coordOffset)+int64(i))*coordinateRecordSize
		lat, _ := d.float64At(c)
		lon, _ := d.float64At(c + 8)
		f.Coordinates[i] = osmdata.Coordinate{Lat: lat, Lon: lon}
	}

	for i := int32(0); i < propCount; i++ {
		key, err := r.readString(h, propOffset+2*i)
		if err != nil {
			return nil, fmt.Errorf("feature %d key %d: %w", id, i, err)
		}
		value, err := r.readString(h, propOffset+2*i+1)
		if err != nil {
			return nil, fmt.Errorf("feature %d value %d: %w", id, i, err)
		}
		f.Keys[i] = key
		f.Values[i] = value
	}

	if label != NoLabel {
		rel := label - propOffset
		if rel < 0 || rel >= 2*propCount || rel%2 != 1 {
			return nil, corruptf("feature %d label offset %d outside its values", id, label)
		}
		f.Label = f.Values[rel/2]
	}

	return f, nil
}

// readString resolves a string descriptor into the characters array
func (r *Reader) readString(h *blockHeader, index int32) (string, error) {
	d := decoder(r.data)
	at := h.stringsOffset + int64(index)*descriptorRecordSize
	offset, _ := d.int32At(at)
	length, _ := d.int32At(at + 4)
	if offset < 0 || length < 0 {
		return "", corruptf("string descriptor %d is negative", index)
	}

	raw, err := d.slice(h.charactersOffset+int64(offset)*charSize, int64(length)*charSize)
	if err != nil {
		return "", fmt.Errorf("string %d: %w", index, err)
	}
	units := make([]uint16, length)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(raw[i*charSize:])
	}
	return string(utf16.Decode(units)), nil
}

// decoder reads little-endian values from the mapping with bounds checks
type decoder []byte

func (d decoder) slice(at, n int64) ([]byte, error) {
	if at < 0 || n < 0 || at > int64(len(d)) || n > int64(len(d))-at {
		return nil, corruptf("range [%d, +%d) outside file of %d bytes", at, n, len(d))
	}
	return d[at : at+n], nil
}

func (d decoder) int32At(at int64) (int32, error) {
	b, err := d.slice(at, 4)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

func (d decoder) int64At(at int64) (int64, error) {
	b, err := d.slice(at, 8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

func (d decoder) float64At(at int64) (float64, error) {
	b, err := d.slice(at, 8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}
