package mapfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"time"
	"unicode/utf16"

	"go.uber.org/zap"

	"github.com/wegman-software/mapster-go/internal/classify"
	"github.com/wegman-software/mapster-go/internal/logger"
	"github.com/wegman-software/mapster-go/internal/osmdata"
	"github.com/wegman-software/mapster-go/internal/tiling"
)

// Options controls the encoder
type Options struct {
	Partition Partition

	// TileOf assigns coordinates to tiles in spatial mode (default tiling.TileOf)
	TileOf func(osmdata.Coordinate) int32
}

// Stats holds encoding statistics
type Stats struct {
	Tiles        int
	Features     int64
	Coordinates  int64
	Strings      int64
	BytesWritten int64
}

// featureData is a feature ready to be laid out in a block
type featureData struct {
	id       int64
	geometry osmdata.GeometryType
	coords   []osmdata.Coordinate
	keys     []string
	values   []string
	labelKey int // index into keys of the name tag, -1 if none
	category classify.Category
}

// Encoder writes a dataset as a tile-partitioned map file
type Encoder struct {
	ds   *osmdata.Dataset
	opts Options

	// features built once from the whole dataset, ways first then standalone nodes
	features []*featureData

	// tiles touched by each feature, only filled in spatial mode
	featureTiles [][]int32
}

// NewEncoder prepares the features of a dataset for encoding.
// Missing node references and empty ways are reported here, before anything is written.
func NewEncoder(ds *osmdata.Dataset, opts Options) (*Encoder, error) {
	if len(ds.Tiles) == 0 {
		return nil, osmdata.ErrNoTiles
	}
	if opts.TileOf == nil {
		opts.TileOf = tiling.TileOf
	}

	e := &Encoder{ds: ds, opts: opts}
	if err := e.buildFeatures(); err != nil {
		return nil, err
	}
	return e, nil
}

// buildFeatures converts ways and unreferenced nodes into feature records
func (e *Encoder) buildFeatures() error {
	usedNodes := make(map[int64]struct{})
	e.features = make([]*featureData, 0, len(e.ds.Ways))

	for _, way := range e.ds.Ways {
		if len(way.NodeIDs) == 0 {
			return fmt.Errorf("way %d has no nodes", way.ID)
		}

		fd := &featureData{
			id:       way.ID,
			coords:   make([]osmdata.Coordinate, 0, len(way.NodeIDs)),
			keys:     make([]string, 0, len(way.Tags)),
			values:   make([]string, 0, len(way.Tags)),
			labelKey: -1,
		}

		for _, tag := range way.Tags {
			if tag.Key == "name" {
				fd.labelKey = len(fd.keys)
			}
			fd.keys = append(fd.keys, tag.Key)
			fd.values = append(fd.values, tag.Value)
		}

		for _, nodeID := range way.NodeIDs {
			node, ok := e.ds.Nodes[nodeID]
			if !ok {
				return fmt.Errorf("way %d references missing node %d", way.ID, nodeID)
			}
			usedNodes[nodeID] = struct{}{}

			// Way tags take precedence, then the first node carrying the key
			for _, tag := range node.Tags {
				if !containsKey(fd.keys, tag.Key) {
					fd.keys = append(fd.keys, tag.Key)
					fd.values = append(fd.values, tag.Value)
				}
			}
			fd.coords = append(fd.coords, node.Pos)
		}

		fd.geometry = osmdata.GeometryOf(fd.coords)
		e.features = append(e.features, fd)
	}

	for _, nodeID := range e.ds.NodeIDs() {
		if _, used := usedNodes[nodeID]; used {
			continue
		}
		node := e.ds.Nodes[nodeID]

		fd := &featureData{
			id:       nodeID,
			geometry: osmdata.GeometryPoint,
			coords:   []osmdata.Coordinate{node.Pos},
			keys:     make([]string, 0, len(node.Tags)),
			values:   make([]string, 0, len(node.Tags)),
			labelKey: -1,
		}
		for _, tag := range node.Tags {
			if tag.Key == "name" {
				fd.labelKey = len(fd.keys)
			}
			fd.keys = append(fd.keys, tag.Key)
			fd.values = append(fd.values, tag.Value)
		}
		e.features = append(e.features, fd)
	}

	for _, fd := range e.features {
		fd.category = classify.Classify(fd.tags(), fd.geometry)
	}

	if e.opts.Partition == PartitionSpatial {
		e.featureTiles = make([][]int32, len(e.features))
		for i, fd := range e.features {
			e.featureTiles[i] = e.tilesOf(fd.coords)
		}
	}

	return nil
}

func (e *Encoder) tilesOf(coords []osmdata.Coordinate) []int32 {
	tiles := make([]int32, 0, 1)
	for _, c := range coords {
		t := e.opts.TileOf(c)
		if !containsTile(tiles, t) {
			tiles = append(tiles, t)
		}
	}
	return tiles
}

// blockFeatures returns the features written into a tile's block
func (e *Encoder) blockFeatures(tileID int32) []*featureData {
	if e.opts.Partition != PartitionSpatial {
		return e.features
	}
	selected := make([]*featureData, 0)
	for i, fd := range e.features {
		if containsTile(e.featureTiles[i], tileID) {
			selected = append(selected, fd)
		}
	}
	return selected
}

// Encode writes the map file. The header entries are written as placeholders
// and patched by seeking back once all blocks are written.
func (e *Encoder) Encode(w io.WriteSeeker) (*Stats, error) {
	tileIDs := e.ds.TileIDs()
	stats := &Stats{Tiles: len(tileIDs)}

	header := newBlockBuffer(fileHeaderSize + tileEntrySize*len(tileIDs))
	header.putInt64(Version)
	header.putInt32(int32(len(tileIDs)))
	for _, id := range tileIDs {
		header.putInt32(id)
		header.putInt64(0) // patched below
	}
	if _, err := w.Write(header.bytes()); err != nil {
		return nil, fmt.Errorf("failed to write file header: %w", err)
	}
	pos := int64(len(header.bytes()))

	offsets := make([]int64, len(tileIDs))
	block := newBlockBuffer(4096)
	for i, id := range tileIDs {
		features := e.blockFeatures(id)

		block.reset()
		counts, err := block.encodeTile(pos, features)
		if err != nil {
			return nil, fmt.Errorf("tile %d: %w", id, err)
		}
		if _, err := w.Write(block.bytes()); err != nil {
			return nil, fmt.Errorf("failed to write tile %d: %w", id, err)
		}

		offsets[i] = pos
		pos += int64(len(block.bytes()))

		stats.Features += int64(len(features))
		stats.Coordinates += int64(counts.coordinates)
		stats.Strings += int64(counts.strings)
	}
	stats.BytesWritten = pos

	// Patch the tile header entries with the real block offsets
	if _, err := w.Seek(fileHeaderSize, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to tile header: %w", err)
	}
	entries := newBlockBuffer(tileEntrySize * len(tileIDs))
	for i, id := range tileIDs {
		entries.putInt32(id)
		entries.putInt64(offsets[i])
	}
	if _, err := w.Write(entries.bytes()); err != nil {
		return nil, fmt.Errorf("failed to patch tile header: %w", err)
	}
	if _, err := w.Seek(pos, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to end of file: %w", err)
	}

	return stats, nil
}

// WriteFile encodes a dataset into path. A failed encoding leaves no file behind.
func WriteFile(path string, ds *osmdata.Dataset, opts Options) (*Stats, error) {
	log := logger.Get()
	start := time.Now()

	enc, err := NewEncoder(ds, opts)
	if err != nil {
		return nil, err
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create map file: %w", err)
	}

	stats, err := enc.Encode(f)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	log.Info("Map file written",
		zap.String("path", path),
		zap.String("partition", opts.Partition.String()),
		zap.Int("tiles", stats.Tiles),
		zap.Int64("features", stats.Features),
		zap.Int64("bytes", stats.BytesWritten),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)),
	)
	return stats, nil
}

func (fd *featureData) tags() []osmdata.Tag {
	tags := make([]osmdata.Tag, len(fd.keys))
	for i := range fd.keys {
		tags[i] = osmdata.Tag{Key: fd.keys[i], Value: fd.values[i]}
	}
	return tags
}

type blockCounts struct {
	coordinates int
	strings     int
}

// blockBuffer assembles one tile block in memory
type blockBuffer struct {
	buf []byte
}

func newBlockBuffer(size int) *blockBuffer {
	return &blockBuffer{buf: make([]byte, 0, size)}
}

func (b *blockBuffer) reset() {
	b.buf = b.buf[:0]
}

func (b *blockBuffer) bytes() []byte {
	return b.buf
}

// encodeTile lays out a tile block starting at absolute file position base
func (b *blockBuffer) encodeTile(base int64, features []*featureData) (blockCounts, error) {
	var counts blockCounts
	totalProperties := 0
	for _, fd := range features {
		if len(fd.keys) != len(fd.values) {
			return counts, fmt.Errorf("feature %d: %w", fd.id, ErrPropertyMismatch)
		}
		counts.coordinates += len(fd.coords)
		totalProperties += len(fd.keys)
	}
	counts.strings = totalProperties * 2

	// TileBlockHeader
	b.putInt32(int32(len(features)))
	b.putInt32(int32(counts.coordinates))
	b.putInt32(int32(counts.strings))
	b.putInt32(0) // CharactersCount is not used
	b.putInt64(0) // CoordinatesOffsetInBytes placeholder
	b.putInt64(0) // StringsOffsetInBytes placeholder
	b.putInt64(0) // CharactersOffsetInBytes placeholder

	// MapFeatures
	coordinateOffset := 0
	propertyOffset := 0
	for _, fd := range features {
		label := NoLabel
		if fd.labelKey >= 0 {
			label = int32(propertyOffset*2 + fd.labelKey*2 + 1)
		}

		b.putInt64(fd.id)
		b.putInt32(label)
		b.buf = append(b.buf, byte(fd.geometry))
		b.putInt32(int32(coordinateOffset))
		b.putInt32(int32(len(fd.coords)))
		b.putInt32(int32(propertyOffset * 2))
		b.putInt32(int32(len(fd.keys)))
		b.putInt32(int32(fd.category))

		coordinateOffset += len(fd.coords)
		propertyOffset += len(fd.keys)
	}

	b.patchInt64(blockCoordinatesOffsetField, base+int64(len(b.buf)))
	for _, fd := range features {
		for _, c := range fd.coords {
			b.putFloat64(c.Lat)
			b.putFloat64(c.Lon)
		}
	}

	// String descriptors: key then value for every tag, offsets in UTF-16 units
	b.patchInt64(blockStringsOffsetField, base+int64(len(b.buf)))
	encoded := make([][]uint16, 0, counts.strings)
	stringOffset := 0
	for _, fd := range features {
		for i := range fd.keys {
			for _, s := range [2]string{fd.keys[i], fd.values[i]} {
				units := utf16.Encode([]rune(s))
				b.putInt32(int32(stringOffset))
				b.putInt32(int32(len(units)))
				stringOffset += len(units)
				encoded = append(encoded, units)
			}
		}
	}

	b.patchInt64(blockCharactersOffsetField, base+int64(len(b.buf)))
	for _, units := range encoded {
		for _, u := range units {
			b.putUint16(u)
		}
	}

	return counts, nil
}

func (b *blockBuffer) putInt32(v int32) {
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(v))
}

func (b *blockBuffer) putInt64(v int64) {
	b.buf = binary.LittleEndian.AppendUint64(b.buf, uint64(v))
}

func (b *blockBuffer) putUint16(v uint16) {
	b.buf = binary.LittleEndian.AppendUint16(b.buf, v)
}

func (b *blockBuffer) putFloat64(v float64) {
	b.buf = binary.LittleEndian.AppendUint64(b.buf, math.Float64bits(v))
}

// patchInt64 overwrites a placeholder written earlier in the block
func (b *blockBuffer) patchInt64(at int, v int64) {
	binary.LittleEndian.PutUint64(b.buf[at:], uint64(v))
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func containsTile(tiles []int32, id int32) bool {
	for _, t := range tiles {
		if t == id {
			return true
		}
	}
	return false
}
