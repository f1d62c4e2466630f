package parquet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/wegman-software/mapster-go/internal/osmdata"
)

// TagsToJSON converts tags to a JSON object string; later duplicate keys win
func TagsToJSON(tags []osmdata.Tag) string {
	if len(tags) == 0 {
		return "{}"
	}
	m := make(map[string]string, len(tags))
	for _, tag := range tags {
		m[tag.Key] = tag.Value
	}
	b, _ := json.Marshal(m)
	return string(b)
}

// FeatureRecord is one exported row
type FeatureRecord struct {
	ID       int64
	TileID   int32
	Geometry string
	Shape    string
	Label    string // empty = null
	Tags     string
	GeomWKB  []byte
}

var featureSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
	{Name: "tile_id", Type: arrow.PrimitiveTypes.Int32, Nullable: false},
	{Name: "geometry_type", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "shape", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "label", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "tags", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "geom_wkb", Type: arrow.BinaryTypes.Binary, Nullable: false},
}, nil)

// FeatureWriter writes decoded map features to a zstd compressed Parquet file
type FeatureWriter struct {
	path      string
	file      *os.File
	writer    *pqarrow.FileWriter
	builder   *array.RecordBuilder
	batchSize int
	count     int
	total     int64
}

// NewFeatureWriter creates the output file and its Parquet writer
func NewFeatureWriter(path string, batchSize int) (*FeatureWriter, error) {
	if batchSize <= 0 {
		batchSize = 10000
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet file: %w", err)
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(false),
	)

	writer, err := pqarrow.NewFileWriter(featureSchema, f, writerProps, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	return &FeatureWriter{
		path:      path,
		file:      f,
		writer:    writer,
		builder:   array.NewRecordBuilder(memory.DefaultAllocator, featureSchema),
		batchSize: batchSize,
	}, nil
}

// Write appends a record, flushing a row group every batchSize records
func (w *FeatureWriter) Write(rec FeatureRecord) error {
	w.builder.Field(0).(*array.Int64Builder).Append(rec.ID)
	w.builder.Field(1).(*array.Int32Builder).Append(rec.TileID)
	w.builder.Field(2).(*array.StringBuilder).Append(rec.Geometry)
	w.builder.Field(3).(*array.StringBuilder).Append(rec.Shape)
	if rec.Label == "" {
		w.builder.Field(4).(*array.StringBuilder).AppendNull()
	} else {
		w.builder.Field(4).(*array.StringBuilder).Append(rec.Label)
	}
	w.builder.Field(5).(*array.StringBuilder).Append(rec.Tags)
	w.builder.Field(6).(*array.BinaryBuilder).Append(rec.GeomWKB)

	w.count++
	w.total++
	if w.count >= w.batchSize {
		return w.flush()
	}
	return nil
}

// Count returns the number of records written so far
func (w *FeatureWriter) Count() int64 {
	return w.total
}

func (w *FeatureWriter) flush() error {
	if w.count == 0 {
		return nil
	}
	rec := w.builder.NewRecord()
	defer rec.Release()
	err := w.writer.Write(rec)
	w.count = 0
	return err
}

// Close flushes pending records and closes the file
func (w *FeatureWriter) Close() error {
	defer w.builder.Release()
	if err := w.flush(); err != nil {
		w.writer.Close()
		w.file.Close()
		return err
	}
	err := w.writer.Close()
	// the parquet writer may already have closed the sink
	if cerr := w.file.Close(); cerr != nil && !errors.Is(cerr, os.ErrClosed) && err == nil {
		err = cerr
	}
	return err
}

// Abort discards pending records, closes the file and removes it
func (w *FeatureWriter) Abort() error {
	w.builder.Release()
	w.writer.Close()
	w.file.Close()
	if err := os.Remove(w.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove partial parquet file: %w", err)
	}
	return nil
}
