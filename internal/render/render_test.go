package render

import (
	"errors"
	"image/color"
	"testing"

	"github.com/wegman-software/mapster-go/internal/classify"
	"github.com/wegman-software/mapster-go/internal/mapfile"
	"github.com/wegman-software/mapster-go/internal/osmdata"
	"github.com/wegman-software/mapster-go/internal/style"
)

func square(minLat, minLon, maxLat, maxLon float64) []osmdata.Coordinate {
	return []osmdata.Coordinate{
		{Lat: minLat, Lon: minLon},
		{Lat: minLat, Lon: maxLon},
		{Lat: maxLat, Lon: maxLon},
		{Lat: maxLat, Lon: minLon},
		{Lat: minLat, Lon: minLon},
	}
}

func feature(id int64, category classify.Category, coords []osmdata.Coordinate, tags ...string) *mapfile.Feature {
	f := &mapfile.Feature{
		ID:          id,
		Category:    category,
		Geometry:    osmdata.GeometryPolyline,
		Coordinates: coords,
		LabelOffset: mapfile.NoLabel,
	}
	if len(coords) == 1 {
		f.Geometry = osmdata.GeometryPoint
	} else {
		f.Geometry = osmdata.GeometryOf(coords)
	}
	for i := 0; i+1 < len(tags); i += 2 {
		f.Keys = append(f.Keys, tags[i])
		f.Values = append(f.Values, tags[i+1])
		if tags[i] == "name" {
			f.LabelOffset = int32(2*(i/2) + 1)
			f.Label = tags[i+1]
		}
	}
	return f
}

func TestCreateShapeCoversEveryCategory(t *testing.T) {
	f := feature(1, classify.None, square(0, 0, 1, 1))
	for _, c := range classify.Categories {
		s, err := CreateShape(c, f)
		if err != nil {
			t.Errorf("CreateShape(%s) failed: %v", c, err)
			continue
		}
		if s.FeatureID() != 1 || len(s.Points()) != 5 {
			t.Errorf("CreateShape(%s) lost feature data", c)
		}
		// Must not panic
		DrawRank(s)
		if _, ok := style.Default().Paint(s.StyleClass()); !ok {
			t.Errorf("no paint for %s shape", c)
		}
	}

	if _, err := CreateShape(classify.None, f); !errors.Is(err, ErrNotDrawable) {
		t.Errorf("expected ErrNotDrawable for None, got %v", err)
	}
	if _, err := CreateShape(classify.Category(99), f); err == nil || errors.Is(err, ErrNotDrawable) {
		t.Errorf("expected unknown category error, got %v", err)
	}
}

func TestCreateShapeVariants(t *testing.T) {
	area := square(0, 0, 1, 1)
	line := area[:3]

	tests := []struct {
		name     string
		feature  *mapfile.Feature
		category classify.Category
		check    func(Shape) bool
	}{
		{
			name:     "road keeps highway class",
			feature:  feature(1, classify.Road, line, "highway", "primary"),
			category: classify.Road,
			check:    func(s Shape) bool { r, ok := s.(*Road); return ok && r.Highway == "primary" },
		},
		{
			name:     "waterway line",
			feature:  feature(2, classify.Waterway, line, "waterway", "river"),
			category: classify.Waterway,
			check:    func(s Shape) bool { w, ok := s.(*Waterway); return ok && !w.Polygon },
		},
		{
			name:     "waterway area",
			feature:  feature(3, classify.Waterway, area, "waterway", "riverbank"),
			category: classify.Waterway,
			check:    func(s Shape) bool { w, ok := s.(*Waterway); return ok && w.Polygon },
		},
		{
			name:     "populated place carries label",
			feature:  feature(4, classify.PopulatedPlace, area[:1], "place", "city", "name", "Monaco"),
			category: classify.PopulatedPlace,
			check: func(s Shape) bool {
				p, ok := s.(*PopulatedPlace)
				return ok && p.Label == "Monaco" && p.Place == "city"
			},
		},
		{
			name:     "natural wood is forest",
			feature:  feature(5, classify.Natural, area, "natural", "wood"),
			category: classify.Natural,
			check:    func(s Shape) bool { g, ok := s.(*GeoFeature); return ok && g.Kind == GeoForest && g.Polygon },
		},
		{
			name:     "natural glacier is unknown",
			feature:  feature(6, classify.Natural, area, "natural", "glacier"),
			category: classify.Natural,
			check:    func(s Shape) bool { g, ok := s.(*GeoFeature); return ok && g.Kind == GeoUnknown },
		},
		{
			name:     "residential",
			feature:  feature(7, classify.Residential, area, "landuse", "residential"),
			category: classify.Residential,
			check:    func(s Shape) bool { g, ok := s.(*GeoFeature); return ok && g.Kind == GeoResidential },
		},
		{
			name:     "reservoir",
			feature:  feature(8, classify.Water, area, "landuse", "reservoir"),
			category: classify.Water,
			check:    func(s Shape) bool { g, ok := s.(*GeoFeature); return ok && g.Kind == GeoWater },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := CreateShape(tt.category, tt.feature)
			if err != nil {
				t.Fatalf("CreateShape failed: %v", err)
			}
			if !tt.check(s) {
				t.Errorf("unexpected shape %#v", s)
			}
		})
	}
}

func TestNaturalKind(t *testing.T) {
	tests := map[string]GeoKind{
		"heath":     GeoPlain,
		"wetland":   GeoPlain,
		"wood":      GeoForest,
		"tree_row":  GeoForest,
		"scree":     GeoMountains,
		"bare_rock": GeoMountains,
		"beach":     GeoDesert,
		"sand":      GeoDesert,
		"water":     GeoWater,
		"peak":      GeoUnknown,
		"":          GeoUnknown,
	}
	for value, want := range tests {
		if got := NaturalKind(value); got != want {
			t.Errorf("NaturalKind(%q) = %s, want %s", value, got, want)
		}
	}
}

func TestDrawRankOrder(t *testing.T) {
	// Each shape must be drawn before the next one
	order := []Shape{
		&GeoFeature{Kind: GeoPlain},
		&GeoFeature{Kind: GeoForest},
		&GeoFeature{Kind: GeoResidential},
		&GeoFeature{Kind: GeoWater},
		&Waterway{},
		&Railway{},
		&Road{},
		&Border{},
		&PopulatedPlace{},
	}
	for i := 1; i < len(order); i++ {
		if DrawRank(order[i-1]) >= DrawRank(order[i]) {
			t.Errorf("%T(%d) should rank below %T(%d)",
				order[i-1], DrawRank(order[i-1]), order[i], DrawRank(order[i]))
		}
	}

	for _, k := range GeoKinds {
		if DrawRank(&GeoFeature{Kind: k}) >= DrawRank(&Waterway{}) {
			t.Errorf("land cover %s should rank below waterways", k)
		}
	}
}

func TestQueueIsOrderIndependent(t *testing.T) {
	shapes := []Shape{
		&Road{base: base{id: 5}},
		&PopulatedPlace{base: base{id: 1}},
		&GeoFeature{base: base{id: 9}, Kind: GeoWater},
		&Road{base: base{id: 2}},
		&GeoFeature{base: base{id: 3}, Kind: GeoPlain},
		&Border{base: base{id: 4}},
	}
	want := []int64{3, 9, 2, 5, 4, 1}

	permutations := [][]int{
		{0, 1, 2, 3, 4, 5},
		{5, 4, 3, 2, 1, 0},
		{2, 0, 4, 1, 5, 3},
	}
	for _, perm := range permutations {
		q := NewQueue()
		for _, i := range perm {
			q.Push(shapes[i])
		}
		if q.Len() != len(shapes) {
			t.Fatalf("Len() = %d, want %d", q.Len(), len(shapes))
		}

		var got []int64
		for {
			s, ok := q.Pop()
			if !ok {
				break
			}
			got = append(got, s.FeatureID())
		}
		if len(got) != len(want) {
			t.Fatalf("order %v: popped %v", perm, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("order %v: popped %v, want %v", perm, got, want)
				break
			}
		}
	}
}

func TestTessellate(t *testing.T) {
	q := NewQueue()
	bounds := EmptyBound()
	if !bounds.IsEmpty() {
		t.Fatal("EmptyBound should be empty")
	}

	if err := Tessellate(feature(1, classify.None, square(10, 10, 20, 20)), &bounds, q); err != nil {
		t.Fatalf("Tessellate failed: %v", err)
	}
	if q.Len() != 0 || !bounds.IsEmpty() {
		t.Error("features classified as None must be skipped")
	}

	if err := Tessellate(feature(2, classify.Residential, square(0, 0, 1, 1)), &bounds, q); err != nil {
		t.Fatalf("Tessellate failed: %v", err)
	}
	if err := Tessellate(feature(3, classify.Road, []osmdata.Coordinate{{Lat: 2, Lon: -1}, {Lat: 2, Lon: 0}}), &bounds, q); err != nil {
		t.Fatalf("Tessellate failed: %v", err)
	}
	if q.Len() != 2 {
		t.Errorf("queue holds %d shapes, want 2", q.Len())
	}
	if bounds.Min.X() >= 0 || bounds.Max.Y() <= bounds.Min.Y() {
		t.Errorf("bounds not extended: %v", bounds)
	}
}

func TestRender(t *testing.T) {
	st := style.Default()

	t.Run("empty queue paints background", func(t *testing.T) {
		img := NewQueue().Render(EmptyBound(), 64, 32, st)
		if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 32 {
			t.Fatalf("image is %v", img.Bounds())
		}
		if got := img.RGBAAt(10, 10); got != rgba(st.Background) {
			t.Errorf("pixel = %v, want background %v", got, st.Background)
		}
	})

	t.Run("roads are drawn over land cover", func(t *testing.T) {
		q := NewQueue()
		bounds := EmptyBound()
		road := feature(2, classify.Road, []osmdata.Coordinate{{Lat: 0, Lon: -1}, {Lat: 0, Lon: 1}}, "highway", "primary")
		area := feature(1, classify.Residential, square(-1, -1, 1, 1), "landuse", "residential")
		for _, f := range []*mapfile.Feature{road, area} {
			if err := Tessellate(f, &bounds, q); err != nil {
				t.Fatal(err)
			}
		}

		img := q.Render(bounds, 200, 200, st)
		if q.Len() != 0 {
			t.Error("Render should drain the queue")
		}

		roadPaint, _ := st.Paint(style.ClassRoad)
		if got := img.RGBAAt(100, 100); got != rgba(*roadPaint.Stroke) {
			t.Errorf("center pixel = %v, want road color", got)
		}
		areaPaint, _ := st.Paint(style.ClassResidential)
		if got := img.RGBAAt(100, 40); got != rgba(*areaPaint.Fill) {
			t.Errorf("pixel above road = %v, want residential color", got)
		}
		if got := img.RGBAAt(0, 0); got != rgba(st.Background) {
			t.Errorf("corner pixel = %v, want background margin", got)
		}
	})

	t.Run("hidden classes are skipped", func(t *testing.T) {
		cfg := style.DefaultConfig()
		cfg.Hide = []string{style.ClassResidential}
		hidden, err := cfg.Compile()
		if err != nil {
			t.Fatal(err)
		}

		q := NewQueue()
		bounds := EmptyBound()
		if err := Tessellate(feature(1, classify.Residential, square(-1, -1, 1, 1)), &bounds, q); err != nil {
			t.Fatal(err)
		}
		img := q.Render(bounds, 50, 50, hidden)
		if got := img.RGBAAt(25, 25); got != rgba(hidden.Background) {
			t.Errorf("hidden shape was drawn: %v", got)
		}
	})
}

func TestLabelCollision(t *testing.T) {
	c := newCanvas(EmptyBound(), 200, 100, style.Default())
	c.label("Monaco", 10, 50)
	c.label("Monte Carlo", 12, 52)
	c.label("Nice", 120, 50)
	if c.labels.Size() != 2 {
		t.Errorf("placed %d labels, want 2", c.labels.Size())
	}

	// Labels that do not fit are dropped
	c.label("Menton", 195, 50)
	if c.labels.Size() != 2 {
		t.Errorf("placed %d labels, want 2", c.labels.Size())
	}
}

func rgba(c color.NRGBA) color.RGBA {
	r, g, b, a := c.RGBA()
	return color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8)}
}
