package wkb

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/wegman-software/mapster-go/internal/osmdata"
)

// WKB type constants (ISO SQL/MM specification)
const (
	wkbPoint      = 1
	wkbLineString = 2
	wkbPolygon    = 3

	// SRID flag for EWKB (PostGIS extended WKB)
	wkbSRIDFlag = 0x20000000
)

// Encoder encodes geometries to little-endian EWKB carrying an SRID.
// The returned slices alias the internal buffer until the next call.
type Encoder struct {
	buf  []byte
	srid uint32
}

// NewEncoder creates an encoder with a pre-allocated buffer
func NewEncoder(initialSize int, srid int) *Encoder {
	return &Encoder{
		buf:  make([]byte, 0, initialSize),
		srid: uint32(srid),
	}
}

// SRID returns the encoder's SRID
func (e *Encoder) SRID() int {
	return int(e.srid)
}

// EncodeFeature encodes projected points according to a feature geometry type
func (e *Encoder) EncodeFeature(geometry osmdata.GeometryType, pts []orb.Point) ([]byte, error) {
	if len(pts) == 0 {
		return nil, fmt.Errorf("cannot encode empty %s", geometry)
	}
	switch geometry {
	case osmdata.GeometryPoint:
		return e.EncodePoint(pts[0]), nil
	case osmdata.GeometryPolyline:
		return e.EncodeLineString(pts), nil
	case osmdata.GeometryPolygon:
		return e.EncodePolygon(pts), nil
	default:
		return nil, fmt.Errorf("unsupported geometry %s", geometry)
	}
}

// EncodePoint encodes a point
func (e *Encoder) EncodePoint(p orb.Point) []byte {
	e.header(wkbPoint, 16)
	e.appendPoint(p)
	return e.buf
}

// EncodeLineString encodes a linestring
func (e *Encoder) EncodeLineString(pts []orb.Point) []byte {
	e.header(wkbLineString, 4+len(pts)*16)
	e.appendUint32(uint32(len(pts)))
	for _, p := range pts {
		e.appendPoint(p)
	}
	return e.buf
}

// EncodePolygon encodes a single closed ring as a polygon without holes
func (e *Encoder) EncodePolygon(ring []orb.Point) []byte {
	e.header(wkbPolygon, 8+len(ring)*16)
	e.appendUint32(1)
	e.appendUint32(uint32(len(ring)))
	for _, p := range ring {
		e.appendPoint(p)
	}
	return e.buf
}

// header resets the buffer and writes byte order, type and SRID
func (e *Encoder) header(geomType uint32, bodySize int) {
	e.buf = e.buf[:0]
	if n := 9 + bodySize; cap(e.buf) < n {
		e.buf = make([]byte, 0, n)
	}
	e.buf = append(e.buf, 0x01)
	e.appendUint32(geomType | wkbSRIDFlag)
	e.appendUint32(e.srid)
}

func (e *Encoder) appendPoint(p orb.Point) {
	e.appendFloat64(p.X())
	e.appendFloat64(p.Y())
}

func (e *Encoder) appendUint32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) appendFloat64(v float64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(v))
}
