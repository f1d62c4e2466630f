package parquet

import (
	"fmt"

	"github.com/wegman-software/mapster-go/internal/mapfile"
	"github.com/wegman-software/mapster-go/internal/osmdata"
	"github.com/wegman-software/mapster-go/internal/proj"
	"github.com/wegman-software/mapster-go/internal/wkb"
)

// FeatureSource yields decoded map features of a bounding box
type FeatureSource interface {
	ForEachFeature(bbox osmdata.BBox, visit func(*mapfile.Feature) bool) error
}

// ExportStats counts exported and skipped features
type ExportStats struct {
	Written    int64
	Duplicates int64
}

// featureKey identifies a feature across tile blocks. Node and way ids
// share a number space, so points are kept apart from lines and areas.
type featureKey struct {
	id    int64
	point bool
}

// Export writes every feature of bbox to w with its geometry encoded as
// EWKB in srid. Features repeated across tile blocks are written once.
func Export(src FeatureSource, bbox osmdata.BBox, w *FeatureWriter, srid int) (*ExportStats, error) {
	transformer, err := proj.NewTransformer(srid)
	if err != nil {
		return nil, err
	}
	enc := wkb.NewEncoder(1024, srid)

	stats := &ExportStats{}
	seen := make(map[featureKey]struct{})
	var writeErr error

	err = src.ForEachFeature(bbox, func(f *mapfile.Feature) bool {
		key := featureKey{id: f.ID, point: f.Geometry == osmdata.GeometryPoint}
		if _, dup := seen[key]; dup {
			stats.Duplicates++
			return true
		}
		seen[key] = struct{}{}

		geom, err := enc.EncodeFeature(f.Geometry, transformer.Points(f.Coordinates))
		if err != nil {
			writeErr = fmt.Errorf("feature %d: %w", f.ID, err)
			return false
		}

		writeErr = w.Write(FeatureRecord{
			ID:       f.ID,
			TileID:   f.TileID,
			Geometry: f.Geometry.String(),
			Shape:    f.Category.String(),
			Label:    f.Label,
			Tags:     TagsToJSON(f.Tags()),
			GeomWKB:  append([]byte(nil), geom...),
		})
		if writeErr != nil {
			return false
		}
		stats.Written++
		return true
	})
	if err != nil {
		return nil, err
	}
	if writeErr != nil {
		return nil, writeErr
	}
	return stats, nil
}
