package render

import (
	"container/heap"
	"fmt"
)

// Draw ranks. Lower ranks are drawn first and end up underneath.
var geoRanks = map[GeoKind]int{
	GeoPlain:       10,
	GeoDesert:      11,
	GeoMountains:   12,
	GeoUnknown:     13,
	GeoForest:      14,
	GeoResidential: 15,
	GeoWater:       20,
}

const (
	rankWaterway       = 30
	rankRailway        = 40
	rankRoad           = 50
	rankBorder         = 60
	rankPopulatedPlace = 70
)

// DrawRank returns the z-order of a shape. Ranks come from the table above,
// not from the classify.Category ordinal: areas sit under linear features
// and borders and places stay on top.
func DrawRank(s Shape) int {
	switch v := s.(type) {
	case *GeoFeature:
		if r, ok := geoRanks[v.Kind]; ok {
			return r
		}
		return geoRanks[GeoUnknown]
	case *Waterway:
		return rankWaterway
	case *Railway:
		return rankRailway
	case *Road:
		return rankRoad
	case *Border:
		return rankBorder
	case *PopulatedPlace:
		return rankPopulatedPlace
	default:
		panic(fmt.Sprintf("render: no draw rank for %T", s))
	}
}

type queued struct {
	shape Shape
	rank  int
	seq   uint64
}

type shapeHeap []queued

func (h shapeHeap) Len() int { return len(h) }

func (h shapeHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.rank != b.rank {
		return a.rank < b.rank
	}
	if ida, idb := a.shape.FeatureID(), b.shape.FeatureID(); ida != idb {
		return ida < idb
	}
	return a.seq < b.seq
}

func (h shapeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *shapeHeap) Push(x any) { *h = append(*h, x.(queued)) }

func (h *shapeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = queued{}
	*h = old[:n-1]
	return item
}

// Queue orders shapes by draw rank, then feature id, then insertion order.
// The resulting sequence does not depend on the order features were read in,
// except for duplicates of the same feature. A Queue is not safe for concurrent use.
type Queue struct {
	h   shapeHeap
	seq uint64
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{}
}

// Push adds a shape
func (q *Queue) Push(s Shape) {
	heap.Push(&q.h, queued{shape: s, rank: DrawRank(s), seq: q.seq})
	q.seq++
}

// Pop removes the next shape to draw
func (q *Queue) Pop() (Shape, bool) {
	if len(q.h) == 0 {
		return nil, false
	}
	return heap.Pop(&q.h).(queued).shape, true
}

// Len returns the number of queued shapes
func (q *Queue) Len() int {
	return len(q.h)
}
