// Package driver orchestrates the full read pipeline: opening the input
// (mmap or full read), detecting the dialect, planning chunks, running the
// type-inference sample pass, then fanning the file out across a worker
// pool that turns each chunk into a coltable.RecordBatch, and finally
// reassembling the batches in file order. It composes the
// bytescan/chunkplan/dialectdetect/typeinfer/columnbuild packages rather
// than inlining a single monolithic parser.
package driver

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/shapestone/vroom/internal/bytescan"
	"github.com/shapestone/vroom/internal/chunkplan"
	"github.com/shapestone/vroom/internal/coltable"
	"github.com/shapestone/vroom/internal/columnbuild"
	"github.com/shapestone/vroom/internal/dialectdetect"
	"github.com/shapestone/vroom/internal/typeinfer"
)

// Config is the subset of pkg/vroom's Options the driver needs, kept as its
// own type so internal/driver has no dependency on the public package
// (avoiding an import cycle — pkg/vroom depends on internal/driver, not the
// other way around).
type Config struct {
	Delimiter         byte
	Quote             byte
	HasHeader         *bool
	NumThreads        int
	SkipRows          int64
	NRows             int64
	UseCols           []ColSelector
	InferTypes        bool
	TypeInferenceRows int
	NullValues        []string
	EmptyIsNull       bool
	Dtype             map[string]coltable.LogicalType
	HeaderConverter   dialectdetect.HeaderConverter
	AllowRagged       bool
	ChunkTargetBytes  int64
	OnProgress        func(bytesScanned, rowsScanned int64)
}

// ColSelector identifies one UseCols entry, mirroring pkg/vroom's public
// ColSelector without importing it (see the Config doc comment above).
type ColSelector struct {
	Name    string
	Index   int
	ByIndex bool
}

// UnknownColumnError reports a UseCols entry naming a column the schema
// doesn't have.
type UnknownColumnError struct {
	Name string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("unknown column %q", e.Name)
}

// ColumnIndexError reports a UseCols entry indexing past the schema's
// column count.
type ColumnIndexError struct {
	Index   int
	NumCols int
}

func (e *ColumnIndexError) Error() string {
	return fmt.Sprintf("column index %d out of range [0, %d)", e.Index, e.NumCols)
}

// BadRow is a row-level parse failure, positioned for the caller to turn
// into a *vroom.ParseError.
type BadRow struct {
	ChunkIndex int
	RowInChunk int
	Err        error
}

func (e *BadRow) Error() string { return fmt.Sprintf("row %d: %v", e.RowInChunk, e.Err) }

func (e *BadRow) Unwrap() error { return e.Err }

// Result is everything a successful Read produces.
type Result struct {
	Table     *coltable.Table
	Dialect   bytescan.Dialect
	HasHeader bool
}

// Read runs the full pipeline against the already-opened file bytes.
// Splitting this from file-opening lets callers (and tests) supply an
// in-memory buffer directly.
func Read(ctx context.Context, data []byte, cfg Config) (*Result, error) {
	if len(data) == 0 {
		empty := &coltable.RecordBatch{Length: 0}
		return &Result{
			Table:     &coltable.Table{Batches: []*coltable.RecordBatch{empty}},
			HasHeader: false,
		}, nil
	}

	sampleLen := dialectdetect.SampleSize
	if sampleLen > len(data) {
		sampleLen = len(data)
	}
	det := dialectdetect.Detect(data[:sampleLen])

	d := det.Dialect
	if cfg.Delimiter != 0 {
		d.Delimiter = cfg.Delimiter
	}
	if cfg.Quote != 0 {
		d.Quote = cfg.Quote
	}

	hasHeader := det.HasHeader
	if cfg.HasHeader != nil {
		hasHeader = *cfg.HasHeader
	}

	targetSize := cfg.ChunkTargetBytes
	if targetSize <= 0 {
		targetSize = defaultChunkTargetBytes(int64(len(data)), cfg.NumThreads)
	}
	chunks := chunkplan.Plan(data, d, targetSize)

	// Extract every chunk's RawChunk once; this single scan pass is reused
	// both for type inference (first N rows) and for column construction,
	// so the file is never scanned twice.
	rawChunks := make([]columnbuild.RawChunk, len(chunks))
	for i, c := range chunks {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		rc, _, err := columnbuild.ExtractFields(data[c.Start:c.End], c.StartState, d)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		rawChunks[i] = rc
	}

	names, dataRawChunks, firstDataRow, err := resolveHeader(rawChunks, hasHeader, cfg.HeaderConverter)
	if err != nil {
		return nil, err
	}
	numCols := len(names)

	nullTokens := cfg.NullValues
	nulls := coltable.NewNullTokenSet(nullTokens, cfg.EmptyIsNull)

	types := inferTypes(dataRawChunks, firstDataRow, numCols, nulls, cfg)
	for i, name := range names {
		if t, ok := cfg.Dtype[name]; ok {
			types[i] = t
		}
	}

	schema := coltable.Schema{Names: names, Types: types}

	batches, err := buildBatches(ctx, dataRawChunks, firstDataRow, schema, nulls, cfg)
	if err != nil {
		return nil, err
	}
	reconcileColumnTypes(schema, batches)

	batches = applySkipAndLimit(batches, cfg.SkipRows, cfg.NRows)
	if len(cfg.UseCols) > 0 {
		schema, batches, err = projectColumns(schema, batches, cfg.UseCols)
		if err != nil {
			return nil, err
		}
	}

	if cfg.OnProgress != nil {
		var rows int64
		for _, b := range batches {
			rows += int64(b.Length)
		}
		cfg.OnProgress(int64(len(data)), rows)
	}

	return &Result{
		Table:     &coltable.Table{Schema: schema, Batches: batches},
		Dialect:   d,
		HasHeader: hasHeader,
	}, nil
}

// resolveHeader reads the header row (if any) out of the first chunk and
// returns the column names plus the per-chunk row ranges that remain as
// data after the header is removed.
func resolveHeader(rawChunks []columnbuild.RawChunk, hasHeader bool, conv dialectdetect.HeaderConverter) ([]string, []columnbuild.RawChunk, int, error) {
	if len(rawChunks) == 0 || len(rawChunks[0].Records) == 0 {
		return nil, rawChunks, 0, fmt.Errorf("%w", errEmptyInput)
	}

	first := rawChunks[0]
	numCols := len(first.Records[0])
	if numCols == 0 {
		return nil, nil, 0, errNoColumns
	}

	if !hasHeader {
		names := make([]string, numCols)
		for i := range names {
			names[i] = fmt.Sprintf("column_%d", i)
		}
		return names, rawChunks, 0, nil
	}

	names := first.Fields(0)
	if conv != nil {
		for i, n := range names {
			names[i] = conv(n)
		}
	}
	return names, rawChunks, 1, nil
}

var errEmptyInput = fmt.Errorf("no rows found")
var errNoColumns = fmt.Errorf("detected zero columns")

// inferTypes runs internal/typeinfer over up to cfg.TypeInferenceRows data
// rows (0 meaning unbounded), starting at firstDataRow in the first chunk.
func inferTypes(rawChunks []columnbuild.RawChunk, firstDataRow, numCols int, nulls coltable.NullTokenSet, cfg Config) []coltable.LogicalType {
	if !cfg.InferTypes {
		types := make([]coltable.LogicalType, numCols)
		for i := range types {
			types[i] = coltable.String
		}
		return types
	}

	inf := typeinfer.New(numCols, nulls, cfg.TypeInferenceRows)
	for ci, rc := range rawChunks {
		start := 0
		if ci == 0 {
			start = firstDataRow
		}
		for ri := start; ri < len(rc.Records); ri++ {
			if inf.Done() {
				return inf.Types()
			}
			inf.Observe(rc.Fields(ri))
		}
	}
	return inf.Types()
}

// defaultChunkTargetBytes picks a chunk size of roughly one quarter the
// per-worker share of the input, floored at 1 MiB so large worker counts
// don't produce too many tiny chunks.
func defaultChunkTargetBytes(dataLen int64, numThreads int) int64 {
	workers := int64(numThreads)
	if workers <= 0 {
		workers = 1
	}
	const floor = 1 << 20
	size := dataLen / (4 * workers)
	if size < floor {
		return floor
	}
	return size
}

// buildBatches fans chunk-building out across a worker pool bounded by
// cfg.NumThreads, then reassembles results in file order — the
// "Σ batch.length == Σ chunk.rows" completeness invariant holds because
// every chunk index is visited exactly once and chunkIdx order is
// preserved at reassembly regardless of completion order.
func buildBatches(ctx context.Context, rawChunks []columnbuild.RawChunk, firstDataRow int, schema coltable.Schema, nulls coltable.NullTokenSet, cfg Config) ([]*coltable.RecordBatch, error) {
	workers := cfg.NumThreads
	if workers <= 0 {
		workers = 1
	}
	if workers > len(rawChunks) {
		workers = len(rawChunks)
	}
	if workers == 0 {
		return nil, nil
	}

	type job struct {
		index int
		rc    columnbuild.RawChunk
		start int
	}
	type outcome struct {
		index int
		batch *coltable.RecordBatch
		err   error
	}

	jobs := make(chan job, len(rawChunks))
	results := make(chan outcome, len(rawChunks))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				select {
				case <-ctx.Done():
					results <- outcome{index: j.index, err: ctx.Err()}
					continue
				default:
				}
				b, err := buildOneChunk(j.index, j.rc, j.start, schema, nulls, cfg)
				results <- outcome{index: j.index, batch: b, err: err}
			}
		}()
	}

	for i, rc := range rawChunks {
		start := 0
		if i == 0 {
			start = firstDataRow
		}
		jobs <- job{index: i, rc: rc, start: start}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([]*coltable.RecordBatch, len(rawChunks))
	var firstErr error
	var firstErrIndex = len(rawChunks)
	for res := range results {
		if res.err != nil {
			if res.index < firstErrIndex {
				firstErr = res.err
				firstErrIndex = res.index
			}
			continue
		}
		ordered[res.index] = res.batch
	}
	if firstErr != nil {
		return nil, firstErr
	}

	out := make([]*coltable.RecordBatch, 0, len(ordered))
	for _, b := range ordered {
		if b != nil && b.Length > 0 {
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		// A header-only or otherwise all-empty-chunk input still yields a
		// table, and a table always has at least one batch — keep the first
		// built chunk even though it has zero rows, rather than dropping
		// every batch and leaving the table with none.
		for _, b := range ordered {
			if b != nil {
				out = append(out, b)
				break
			}
		}
	}
	return out, nil
}

// reconcileColumnTypes makes every batch conform to one shared schema after
// independent per-chunk widening. Each chunk's Builder only sees its own
// rows, so one chunk can widen a column (e.g. INT64 → STRING on a stray
// "hello") while another chunk's values all stay INT64 — left alone, that
// would violate the Table invariant that every batch matches the schema.
// This re-widens every batch's column to the lattice join of what every
// batch actually produced, and updates schema in place to match (schema's
// slices are shared with the caller's copy, so this mutation is visible to
// it too).
func reconcileColumnTypes(schema coltable.Schema, batches []*coltable.RecordBatch) {
	if len(batches) == 0 {
		return
	}
	final := append([]coltable.LogicalType(nil), schema.Types...)
	for _, b := range batches {
		for i, c := range b.Columns {
			final[i] = coltable.Join(final[i], c.Type)
		}
	}
	copy(schema.Types, final)

	for _, b := range batches {
		for i, c := range b.Columns {
			if c.Type != final[i] {
				b.Columns[i] = widenColumn(c, final[i])
			}
		}
	}
}

// widenColumn re-renders an already-materialized column's values as target,
// the same promotion chain columnbuild.Builder applies cell-by-cell during
// construction, just run once over a finished column instead of per-cell.
func widenColumn(c *coltable.Column, target coltable.LogicalType) *coltable.Column {
	out := &coltable.Column{Name: c.Name, Type: target, Length: c.Length, Validity: c.Validity, ForcedNullCoercions: c.ForcedNullCoercions}
	switch {
	case target == coltable.Float64 && c.Type == coltable.Int64:
		out.Float64Values = make([]float64, c.Length)
		for i := 0; i < c.Length; i++ {
			out.Float64Values[i] = float64(c.Int64Values[i])
		}
	case target == coltable.String:
		out.StringOffsets, out.StringData = columnToStrings(c)
	default:
		return c
	}
	return out
}

func columnToStrings(c *coltable.Column) ([]int64, []byte) {
	vals := make([]string, c.Length)
	switch c.Type {
	case coltable.Bool:
		for i := 0; i < c.Length; i++ {
			vals[i] = strconv.FormatBool(c.BoolAt(i))
		}
	case coltable.Int64:
		for i := 0; i < c.Length; i++ {
			vals[i] = strconv.FormatInt(c.Int64Values[i], 10)
		}
	case coltable.Float64:
		for i := 0; i < c.Length; i++ {
			vals[i] = strconv.FormatFloat(c.Float64Values[i], 'g', -1, 64)
		}
	case coltable.String:
		for i := 0; i < c.Length; i++ {
			vals[i] = c.StringAt(i)
		}
	}

	offsets := make([]int64, len(vals)+1)
	var total int64
	for i, s := range vals {
		offsets[i] = total
		total += int64(len(s))
	}
	offsets[len(vals)] = total
	data := make([]byte, 0, total)
	for _, s := range vals {
		data = append(data, s...)
	}
	return offsets, data
}

func buildOneChunk(chunkIndex int, rc columnbuild.RawChunk, start int, schema coltable.Schema, nulls coltable.NullTokenSet, cfg Config) (*coltable.RecordBatch, error) {
	b := columnbuild.NewBuilder(schema, nulls, cfg.Dtype)
	for ri := start; ri < len(rc.Records); ri++ {
		fields := rc.Fields(ri)
		if len(fields) != len(schema.Names) {
			if cfg.AllowRagged {
				fields = padOrTruncate(fields, len(schema.Names))
			} else {
				return nil, &BadRow{ChunkIndex: chunkIndex, RowInChunk: ri, Err: fmt.Errorf("row has %d fields, want %d", len(fields), len(schema.Names))}
			}
		}
		if err := b.AppendRow(fields); err != nil {
			return nil, &BadRow{ChunkIndex: chunkIndex, RowInChunk: ri, Err: err}
		}
	}
	return b.Build(), nil
}

func padOrTruncate(fields []string, n int) []string {
	if len(fields) == n {
		return fields
	}
	out := make([]string, n)
	copy(out, fields)
	return out
}

func applySkipAndLimit(batches []*coltable.RecordBatch, skip, limit int64) []*coltable.RecordBatch {
	if skip <= 0 && limit <= 0 {
		return batches
	}
	var out []*coltable.RecordBatch
	var seen, kept int64
	for _, b := range batches {
		if limit > 0 && kept >= limit {
			break
		}
		lo := int64(0)
		if seen < skip {
			lo = skip - seen
			if lo > int64(b.Length) {
				lo = int64(b.Length)
			}
		}
		hi := int64(b.Length)
		if limit > 0 {
			remaining := limit - kept
			if hi-lo > remaining {
				hi = lo + remaining
			}
		}
		seen += int64(b.Length)
		if lo >= hi {
			continue
		}
		out = append(out, sliceBatch(b, int(lo), int(hi)))
		kept += hi - lo
	}
	return out
}

func sliceBatch(b *coltable.RecordBatch, lo, hi int) *coltable.RecordBatch {
	if lo == 0 && hi == b.Length {
		return b
	}
	out := &coltable.RecordBatch{Length: hi - lo, Columns: make([]*coltable.Column, len(b.Columns))}
	for i, c := range b.Columns {
		out.Columns[i] = sliceColumn(c, lo, hi)
	}
	return out
}

func sliceColumn(c *coltable.Column, lo, hi int) *coltable.Column {
	out := &coltable.Column{Name: c.Name, Type: c.Type, Length: hi - lo, ForcedNullCoercions: c.ForcedNullCoercions}
	if c.Validity != nil {
		bm := coltable.NewBitmap(hi - lo)
		for i := lo; i < hi; i++ {
			bm.SetValid(i-lo, c.Validity.IsValid(i))
		}
		out.Validity = bm
	}
	switch c.Type {
	case coltable.Bool:
		for i := lo; i < hi; i++ {
			out.BoolValues = appendBit(out.BoolValues, i-lo, c.BoolAt(i))
		}
	case coltable.Int64:
		out.Int64Values = append([]int64(nil), c.Int64Values[lo:hi]...)
	case coltable.Float64:
		out.Float64Values = append([]float64(nil), c.Float64Values[lo:hi]...)
	case coltable.String:
		offsets := make([]int64, hi-lo+1)
		var total int64
		for i := lo; i < hi; i++ {
			offsets[i-lo] = total
			total += c.StringOffsets[i+1] - c.StringOffsets[i]
		}
		offsets[hi-lo] = total
		data := make([]byte, 0, total)
		for i := lo; i < hi; i++ {
			data = append(data, c.StringData[c.StringOffsets[i]:c.StringOffsets[i+1]]...)
		}
		out.StringOffsets, out.StringData = offsets, data
	}
	return out
}

func appendBit(bits []byte, i int, v bool) []byte {
	needed := i/8 + 1
	for len(bits) < needed {
		bits = append(bits, 0)
	}
	if v {
		bits[i/8] |= 1 << uint(i%8)
	}
	return bits
}

// projectColumns resolves each selector to a schema index — by exact name
// match or bounds-checked position — and keeps the matched columns in their
// original schema order. An unknown name or an out-of-range index aborts
// the whole read rather than silently dropping the selector.
func projectColumns(schema coltable.Schema, batches []*coltable.RecordBatch, cols []ColSelector) (coltable.Schema, []*coltable.RecordBatch, error) {
	numCols := len(schema.Names)
	nameIdx := make(map[string]int, numCols)
	for i, n := range schema.Names {
		nameIdx[n] = i
	}

	seen := make(map[int]bool, len(cols))
	keep := make([]int, 0, len(cols))
	for _, c := range cols {
		idx := c.Index
		if !c.ByIndex {
			i, ok := nameIdx[c.Name]
			if !ok {
				return coltable.Schema{}, nil, &UnknownColumnError{Name: c.Name}
			}
			idx = i
		} else if idx < 0 || idx >= numCols {
			return coltable.Schema{}, nil, &ColumnIndexError{Index: idx, NumCols: numCols}
		}
		if !seen[idx] {
			seen[idx] = true
			keep = append(keep, idx)
		}
	}
	sort.Ints(keep)

	newSchema := coltable.Schema{Names: make([]string, len(keep)), Types: make([]coltable.LogicalType, len(keep))}
	for i, idx := range keep {
		newSchema.Names[i] = schema.Names[idx]
		newSchema.Types[i] = schema.Types[idx]
	}

	newBatches := make([]*coltable.RecordBatch, len(batches))
	for bi, b := range batches {
		nb := &coltable.RecordBatch{Length: b.Length, Columns: make([]*coltable.Column, len(keep))}
		for i, idx := range keep {
			nb.Columns[i] = b.Columns[idx]
		}
		newBatches[bi] = nb
	}
	return newSchema, newBatches, nil
}

// MmapThreshold is the file size at or above which OpenInput auto-enables
// memory-mapped input when the caller leaves mmapPref nil.
const MmapThreshold = 8 << 20

// OpenInput opens path for reading, mmap-backed when the platform supports
// it (via the unix/other build-tagged variants of openInput) and either
// mmapPref says so explicitly or mmapPref is nil and the file is at least
// MmapThreshold bytes; otherwise it does a full read into memory.
func OpenInput(path string, mmapPref *bool) ([]byte, func(), error) {
	useMmap := false
	if mmapPref != nil {
		useMmap = *mmapPref
	} else {
		info, err := os.Stat(path)
		if err != nil {
			return nil, nil, fmt.Errorf("stat: %w", err)
		}
		useMmap = info.Size() >= MmapThreshold
	}
	return openInput(path, useMmap)
}
