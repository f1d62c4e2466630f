package server

import (
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wegman-software/mapster-go/internal/mapfile"
	"github.com/wegman-software/mapster-go/internal/osmdata"
	"github.com/wegman-software/mapster-go/internal/tiling"
)

// openTestMap writes a small Monaco map file and opens it
func openTestMap(t *testing.T) *mapfile.Reader {
	t.Helper()

	ds := osmdata.NewDataset()
	coords := []osmdata.Coordinate{
		{Lat: 43.7300, Lon: 7.4200},
		{Lat: 43.7310, Lon: 7.4210},
		{Lat: 43.7320, Lon: 7.4200},
		{Lat: 43.7330, Lon: 7.4190},
	}
	for i, c := range coords {
		ds.AddNode(&osmdata.Node{ID: int64(i + 1), Pos: c})
	}
	ds.AddNode(&osmdata.Node{ID: 10, Pos: osmdata.Coordinate{Lat: 43.7384, Lon: 7.4246}, Tags: []osmdata.Tag{
		{Key: "place", Value: "city"},
		{Key: "name", Value: "Monaco"},
	}})
	ds.AddWay(&osmdata.Way{ID: 100, NodeIDs: []int64{1, 2, 3, 1}, Tags: []osmdata.Tag{
		{Key: "landuse", Value: "residential"},
	}})
	ds.AddWay(&osmdata.Way{ID: 200, NodeIDs: []int64{3, 4}, Tags: []osmdata.Tag{
		{Key: "highway", Value: "primary"},
	}})
	if err := ds.AssignTiles(tiling.TileOf); err != nil {
		t.Fatal(err)
	}
	ds.SortWays()

	path := filepath.Join(t.TempDir(), "monaco.bin")
	if _, err := mapfile.WriteFile(path, ds, mapfile.Options{}); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	r, err := mapfile.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func newTestServer(t *testing.T, source FeatureSource) *Server {
	t.Helper()
	s, err := New(source, Config{DefaultSize: 64, MaxSize: 256}, prometheus.NewRegistry(), zap.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

const monaco = "minLat=43.72&minLon=7.40&maxLat=43.76&maxLon=7.44"

func TestRender(t *testing.T) {
	s := newTestServer(t, openTestMap(t))

	tests := []struct {
		name  string
		query string
		size  int
	}{
		{"default size", monaco, 64},
		{"explicit size", monaco + "&size=128", 128},
		{"empty area", "minLat=-10&minLon=-10&maxLat=-9&maxLon=-9", 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := s.App().Test(httptest.NewRequest("GET", "/render?"+tt.query, nil), -1)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != 200 {
				body, _ := io.ReadAll(resp.Body)
				t.Fatalf("status = %d: %s", resp.StatusCode, body)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
				t.Errorf("content type = %q", ct)
			}
			img, err := png.Decode(resp.Body)
			if err != nil {
				t.Fatalf("invalid png: %v", err)
			}
			if b := img.Bounds(); b.Dx() != tt.size || b.Dy() != tt.size {
				t.Errorf("image is %v, want %dx%d", b, tt.size, tt.size)
			}
		})
	}
}

func TestRenderRejectsBadParameters(t *testing.T) {
	s := newTestServer(t, openTestMap(t))

	tests := []struct {
		name  string
		query string
	}{
		{"missing maxLon", "minLat=1&minLon=1&maxLat=2"},
		{"not a number", "minLat=a&minLon=1&maxLat=2&maxLon=2"},
		{"inverted latitude", "minLat=3&minLon=1&maxLat=2&maxLon=2"},
		{"outside domain", "minLat=1&minLon=1&maxLat=95&maxLon=2"},
		{"size zero", monaco + "&size=0"},
		{"size too large", monaco + "&size=257"},
		{"size not integer", monaco + "&size=big"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := s.App().Test(httptest.NewRequest("GET", "/render?"+tt.query, nil), -1)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != 400 {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			var body map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body["error"] == "" {
				t.Errorf("expected JSON error body, got %v (%v)", body, err)
			}
		})
	}
}

type failingSource struct{ err error }

func (f failingSource) ForEachFeature(osmdata.BBox, func(*mapfile.Feature) bool) error {
	return f.err
}

func (f failingSource) TileCount() int { return 0 }

func TestRenderDecodeError(t *testing.T) {
	corrupt := fmt.Errorf("tile 7: %w", mapfile.ErrCorrupt)
	s := newTestServer(t, failingSource{err: corrupt})

	resp, err := s.App().Test(httptest.NewRequest("GET", "/render?"+monaco, nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 500 {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "corrupt") {
		t.Errorf("body = %s", body)
	}
}

func TestAccessLogRecordsHandlerError(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	corrupt := fmt.Errorf("tile 7: %w", mapfile.ErrCorrupt)
	s, err := New(failingSource{err: corrupt}, Config{DefaultSize: 64}, prometheus.NewRegistry(), zap.New(core))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	resp, err := s.App().Test(httptest.NewRequest("GET", "/render?"+monaco, nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 500 {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}

	entries := logs.FilterMessage("Request failed").All()
	if len(entries) != 1 {
		t.Fatalf("got %d failure entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(500) {
		t.Errorf("logged status = %v, want 500", fields["status"])
	}
	if msg, _ := fields["error"].(string); !strings.Contains(msg, "corrupt") {
		t.Errorf("logged error = %v, want the decode error", fields["error"])
	}

	if got := testutil.ToFloat64(s.metrics.requests.WithLabelValues("GET", "/render", "500")); got != 1 {
		t.Errorf("requests_total{status=500} = %v, want 1", got)
	}
}

func TestRecoveredPanicIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s, err := New(panickingSource{}, Config{DefaultSize: 64}, prometheus.NewRegistry(), zap.New(core))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	resp, err := s.App().Test(httptest.NewRequest("GET", "/render?"+monaco, nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 500 {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	if n := logs.FilterMessage("Request failed").Len(); n != 1 {
		t.Errorf("got %d failure entries, want 1", n)
	}
}

func TestAccessLogRejectedRequest(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s, err := New(openTestMap(t), Config{DefaultSize: 64}, prometheus.NewRegistry(), zap.New(core))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	resp, err := s.App().Test(httptest.NewRequest("GET", "/render?minLat=x", nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	entries := logs.FilterMessage("Request rejected").All()
	if len(entries) != 1 {
		t.Fatalf("got %d rejected entries, want 1", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Errorf("level = %v, want warn", entries[0].Level)
	}
	if _, ok := entries[0].ContextMap()["error"]; !ok {
		t.Error("rejected entry has no error field")
	}
}

type panickingSource struct{}

func (panickingSource) ForEachFeature(osmdata.BBox, func(*mapfile.Feature) bool) error {
	panic("reader unmapped")
}

func (panickingSource) TileCount() int { return 0 }

func TestHealth(t *testing.T) {
	r := openTestMap(t)
	s := newTestServer(t, r)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/healthz", nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status string `json:"status"`
		Tiles  int    `json:"tiles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Tiles != r.TileCount() {
		t.Errorf("health = %+v, want %d tiles", body, r.TileCount())
	}
}

func TestMetrics(t *testing.T) {
	s := newTestServer(t, openTestMap(t))

	for _, q := range []string{monaco, "minLat=x"} {
		resp, err := s.App().Test(httptest.NewRequest("GET", "/render?"+q, nil), -1)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
	}

	resp, err := s.App().Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`mapster_http_requests_total{method="GET",path="/render",status="200"} 1`,
		`mapster_http_requests_total{method="GET",path="/render",status="400"} 1`,
		"mapster_render_shapes_count 1",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output lacks %q", want)
		}
	}
}

func TestNewRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(failingSource{}, Config{}, reg, zap.NewNop()); err != nil {
		t.Fatal(err)
	}
	if _, err := New(failingSource{}, Config{}, reg, zap.NewNop()); err == nil {
		t.Error("expected error registering metrics twice")
	}
}
