package render

import (
	"errors"
	"math"

	"github.com/paulmach/orb"

	"github.com/wegman-software/mapster-go/internal/mapfile"
)

// EmptyBound is the starting value of an accumulated bound; any Extend replaces it
func EmptyBound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{math.Inf(1), math.Inf(1)},
		Max: orb.Point{math.Inf(-1), math.Inf(-1)},
	}
}

// Tessellate converts a feature into its shape, grows bounds by the projected
// points and queues the shape. Features classified as None are skipped.
func Tessellate(f *mapfile.Feature, bounds *orb.Bound, q *Queue) error {
	s, err := CreateShape(f.Category, f)
	if errors.Is(err, ErrNotDrawable) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, p := range s.Points() {
		*bounds = bounds.Extend(p)
	}
	q.Push(s)
	return nil
}
