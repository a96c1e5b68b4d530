// Package vroom reads CSV files into Arrow-backed columnar tables, with a
// small set of entry points (ReadCSV/ReadCSVContext/DetectDialect) plus a
// DefaultOptions()/Validate() options triad.
package vroom

import (
	"context"

	"github.com/shapestone/vroom/internal/arrowexport"
	"github.com/shapestone/vroom/internal/bytescan"
	"github.com/shapestone/vroom/internal/coltable"
	"github.com/shapestone/vroom/internal/dialectdetect"
	"github.com/shapestone/vroom/internal/driver"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Table is the result of a successful ReadCSV: an immutable, chunked
// columnar table.
type Table struct {
	inner *coltable.Table
}

// NumRows returns the total row count across every chunk.
func (t *Table) NumRows() int64 { return t.inner.NumRows() }

// NumColumns returns the number of columns.
func (t *Table) NumColumns() int { return t.inner.NumColumns() }

// NumChunks returns the number of RecordBatches backing the table.
func (t *Table) NumChunks() int { return t.inner.NumChunks() }

// ColumnNames returns the schema's column names in order.
func (t *Table) ColumnNames() []string { return t.inner.ColumnNames() }

// Row returns row i's values as a map keyed by column name, boxing each
// cell into its Go-native type (int64/float64/bool/string, or nil for
// NULL). This is a convenience accessor; high-throughput consumers should
// use the Arrow export methods instead.
func (t *Table) Row(i int64) map[string]interface{} {
	batchIdx, rowInBatch := t.locate(i)
	if batchIdx < 0 {
		return nil
	}
	batch := t.inner.Batches[batchIdx]
	row := make(map[string]interface{}, len(batch.Columns))
	for _, col := range batch.Columns {
		row[col.Name] = cellValue(col, rowInBatch)
	}
	return row
}

func (t *Table) locate(i int64) (batchIdx, rowInBatch int) {
	if i < 0 {
		return -1, -1
	}
	for bi, b := range t.inner.Batches {
		if i < int64(b.Length) {
			return bi, int(i)
		}
		i -= int64(b.Length)
	}
	return -1, -1
}

func cellValue(col *coltable.Column, i int) interface{} {
	if !col.IsValid(i) {
		return nil
	}
	switch col.Type {
	case coltable.Bool:
		return col.BoolAt(i)
	case coltable.Int64:
		return col.Int64Values[i]
	case coltable.Float64:
		return col.Float64Values[i]
	case coltable.String:
		return col.StringAt(i)
	default:
		return nil
	}
}

// Column returns the named or indexed column's values as a Go slice
// (nil elements for NULL), concatenated across every chunk.
func (t *Table) Column(nameOrIndex interface{}) []interface{} {
	idx := -1
	switch v := nameOrIndex.(type) {
	case string:
		idx = t.inner.ColumnIndex(v)
	case int:
		idx = v
	}
	if idx < 0 || idx >= t.inner.NumColumns() {
		return nil
	}

	out := make([]interface{}, 0, t.inner.NumRows())
	for _, b := range t.inner.Batches {
		col := b.Columns[idx]
		for i := 0; i < col.Length; i++ {
			out = append(out, cellValue(col, i))
		}
	}
	return out
}

// ExportArrowSchema exports the table's schema via the Arrow C Data
// Interface. The caller must call Release on the result.
func (t *Table) ExportArrowSchema() (*arrowexport.ExportedSchema, error) {
	return arrowexport.ExportSchema(arrowexport.Schema(t.inner.Schema))
}

// ExportArrowStream exports the full table as an Arrow C Data Interface
// ArrowArrayStream, one ArrowArray per chunk. The caller must call Release
// on the result.
func (t *Table) ExportArrowStream() (*arrowexport.ExportedStream, error) {
	return arrowexport.ExportStream(memory.NewGoAllocator(), t.inner)
}

// ArrowRecords materializes every chunk as an arrow.Record, for callers
// that want to work with arrow-go directly instead of the C Data
// Interface. Each returned record must be Released by the caller.
func (t *Table) ArrowRecords() ([]arrow.Record, error) {
	return arrowexport.Table(memory.NewGoAllocator(), t.inner)
}

// ReadCSV reads the CSV file at path into a Table according to opts.
func ReadCSV(path string, opts Options) (*Table, error) {
	return ReadCSVContext(context.Background(), path, opts)
}

// ReadCSVContext is ReadCSV with an explicit context for cancellation.
func ReadCSVContext(ctx context.Context, path string, opts Options) (*Table, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	data, cleanup, err := driver.OpenInput(path, opts.MemoryMap)
	if err != nil {
		return nil, &IOError{Path: path, Err: err}
	}
	defer cleanup()

	res, err := driver.Read(ctx, data, toDriverConfig(opts))
	if err != nil {
		return nil, translateDriverError(err)
	}
	return &Table{inner: res.Table}, nil
}

func toDriverConfig(opts Options) driver.Config {
	var useCols []driver.ColSelector
	if len(opts.UseCols) > 0 {
		useCols = make([]driver.ColSelector, len(opts.UseCols))
		for i, c := range opts.UseCols {
			useCols[i] = c.toDriver()
		}
	}
	return driver.Config{
		Delimiter:         opts.Delimiter,
		Quote:             opts.Quote,
		HasHeader:         opts.HasHeader,
		NumThreads:        opts.resolvedThreads(),
		SkipRows:          opts.SkipRows,
		NRows:             opts.NRows,
		UseCols:           useCols,
		InferTypes:        opts.InferTypes,
		TypeInferenceRows: opts.TypeInferenceRows,
		NullValues:        opts.NullValues,
		EmptyIsNull:       opts.EmptyIsNull,
		Dtype:             opts.Dtype,
		HeaderConverter:   opts.HeaderConverter,
		AllowRagged:       opts.AllowRagged,
		ChunkTargetBytes:  opts.ChunkTargetBytes,
		OnProgress:        opts.OnProgress,
	}
}

func translateDriverError(err error) error {
	if err == context.Canceled || err == context.DeadlineExceeded {
		return &CancelledError{Err: err}
	}
	if br, ok := err.(*driver.BadRow); ok {
		return &ParseError{ChunkIndex: br.ChunkIndex, Line: int64(br.RowInChunk), Err: br.Err}
	}
	if uc, ok := err.(*driver.UnknownColumnError); ok {
		return &UnknownColumnError{Name: uc.Name}
	}
	if ci, ok := err.(*driver.ColumnIndexError); ok {
		return &ColumnIndexError{Index: ci.Index, NumCols: ci.NumCols}
	}
	return &VroomError{Op: "ReadCSV", Err: err}
}

// DialectInfo is the public result of DetectDialect.
type DialectInfo struct {
	Delimiter  byte
	Quote      byte
	Terminator string
	HasHeader  bool
}

// DetectDialect sniffs path's dialect without fully parsing it, from at
// most the first dialectdetect.SampleSize bytes. The whole file is still
// read into memory first.
func DetectDialect(path string) (DialectInfo, error) {
	noMmap := false
	data, cleanup, err := driver.OpenInput(path, &noMmap)
	if err != nil {
		return DialectInfo{}, &IOError{Path: path, Err: err}
	}
	defer cleanup()

	n := dialectdetect.SampleSize
	if n > len(data) {
		n = len(data)
	}
	res := dialectdetect.Detect(data[:n])

	return DialectInfo{
		Delimiter:  res.Dialect.Delimiter,
		Quote:      res.Dialect.Quote,
		Terminator: terminatorName(res.Dialect.Terminator),
		HasHeader:  res.HasHeader,
	}, nil
}

func terminatorName(t bytescan.Terminator) string {
	switch t {
	case bytescan.CRLF:
		return "CRLF"
	case bytescan.CR:
		return "CR"
	default:
		return "LF"
	}
}
