package columnbuild

import (
	"fmt"
	"strconv"

	"github.com/shapestone/vroom/internal/coltable"
	"github.com/shapestone/vroom/internal/typeinfer"
)

// Builder materializes a typed coltable.RecordBatch from decoded field
// strings, given a fixed per-column Schema decided up front by
// internal/typeinfer. It is the single place that actually calls
// strconv.ParseInt/ParseFloat/typeinfer.ParseBool on cell contents,
// appending each parsed value into a typed columnar buffer alongside its
// validity bitmap.
type Builder struct {
	schema coltable.Schema
	nulls  coltable.NullTokenSet
	dtype  map[string]coltable.LogicalType // explicit per-column override, may be nil

	rows int
	cols []columnAccum
}

type columnAccum struct {
	typ           coltable.LogicalType
	forced        bool // type came from an explicit Options.Dtype override, not inference
	validBits     []bool
	boolVals      []bool
	int64Vals     []int64
	float64Vals   []float64
	stringVals    []string
	forcedNullAny bool
}

// NewBuilder creates a Builder for schema, using nulls to recognize NULL
// tokens and dtype (possibly nil) to force specific columns to a type
// rather than trusting the inferred one.
func NewBuilder(schema coltable.Schema, nulls coltable.NullTokenSet, dtype map[string]coltable.LogicalType) *Builder {
	b := &Builder{schema: schema, nulls: nulls, dtype: dtype}
	b.cols = make([]columnAccum, len(schema.Names))
	for i, name := range schema.Names {
		t := schema.Types[i]
		forced := false
		if dtype != nil {
			if t2, ok := dtype[name]; ok {
				t = t2
				forced = true
			}
		}
		b.cols[i].typ = t
		b.cols[i].forced = forced
	}
	return b
}

// AppendRow appends one decoded row of field strings. len(fields) must
// equal the schema's column count; the caller (internal/driver's
// buildOneChunk, which pads or rejects ragged rows itself) is responsible
// for ragged-row policy before calling this.
func (b *Builder) AppendRow(fields []string) error {
	if len(fields) != len(b.cols) {
		return fmt.Errorf("row has %d fields, schema has %d columns", len(fields), len(b.cols))
	}
	for i, f := range fields {
		if err := b.appendCell(&b.cols[i], f); err != nil {
			return fmt.Errorf("column %q: %w", b.schema.Names[i], err)
		}
	}
	b.rows++
	return nil
}

func (b *Builder) appendCell(col *columnAccum, raw string) error {
	if b.nulls.IsNull(raw) {
		col.validBits = append(col.validBits, false)
		appendZero(col)
		return nil
	}
	return appendNonNull(col, raw)
}

// appendNonNull appends one non-null cell. A cell that fails to parse under
// an explicit dtype becomes a null with ForcedNullCoercions set (the
// declared type is a hard contract, so the value is dropped rather than
// the column's type changed). A cell that fails to parse under an inferred
// type instead widens the column one lattice step (INT64 → FLOAT64 →
// STRING, BOOL → STRING directly, re-encoding every value already
// accumulated) and retries — this
// recurses at most twice, since STRING always accepts any raw cell.
func appendNonNull(col *columnAccum, raw string) error {
	switch col.typ {
	case coltable.Bool:
		v, err := typeinfer.ParseBool(raw)
		if err != nil {
			if col.forced {
				return forceNull(col)
			}
			widenToString(col)
			return appendNonNull(col, raw)
		}
		col.validBits = append(col.validBits, true)
		col.boolVals = append(col.boolVals, v)

	case coltable.Int64:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			if col.forced {
				return forceNull(col)
			}
			widenIntToFloat(col)
			return appendNonNull(col, raw)
		}
		col.validBits = append(col.validBits, true)
		col.int64Vals = append(col.int64Vals, v)

	case coltable.Float64:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			if col.forced {
				return forceNull(col)
			}
			widenToString(col)
			return appendNonNull(col, raw)
		}
		col.validBits = append(col.validBits, true)
		col.float64Vals = append(col.float64Vals, v)

	case coltable.String:
		col.validBits = append(col.validBits, true)
		col.stringVals = append(col.stringVals, raw)

	default: // coltable.Null — unreachable in practice: typeinfer.Inferer.Types
		// never reports Null, so only a forced dtype of Null could reach here,
		// and Options.Dtype's value set excludes it.
		col.validBits = append(col.validBits, false)
	}
	return nil
}

// forceNull records the current cell as null because it violated an
// explicit dtype override, without changing the column's type.
func forceNull(col *columnAccum) error {
	col.validBits = append(col.validBits, false)
	appendZero(col)
	col.forcedNullAny = true
	return nil
}

// widenIntToFloat promotes col from INT64 to FLOAT64, re-interpreting every
// already-accumulated integer as a double — exact for the int64 range
// representable in a float64, per the lattice's own promotion contract.
func widenIntToFloat(col *columnAccum) {
	col.float64Vals = make([]float64, len(col.int64Vals))
	for i, v := range col.int64Vals {
		col.float64Vals[i] = float64(v)
	}
	col.int64Vals = nil
	col.typ = coltable.Float64
}

// widenToString promotes col to STRING from whatever narrower type it
// currently holds, re-rendering every already-accumulated value as its
// decimal/boolean text form.
func widenToString(col *columnAccum) {
	switch col.typ {
	case coltable.Bool:
		col.stringVals = make([]string, len(col.boolVals))
		for i, v := range col.boolVals {
			col.stringVals[i] = strconv.FormatBool(v)
		}
		col.boolVals = nil
	case coltable.Int64:
		col.stringVals = make([]string, len(col.int64Vals))
		for i, v := range col.int64Vals {
			col.stringVals[i] = strconv.FormatInt(v, 10)
		}
		col.int64Vals = nil
	case coltable.Float64:
		col.stringVals = make([]string, len(col.float64Vals))
		for i, v := range col.float64Vals {
			col.stringVals[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		col.float64Vals = nil
	}
	col.typ = coltable.String
}

func appendZero(col *columnAccum) {
	switch col.typ {
	case coltable.Bool:
		col.boolVals = append(col.boolVals, false)
	case coltable.Int64:
		col.int64Vals = append(col.int64Vals, 0)
	case coltable.Float64:
		col.float64Vals = append(col.float64Vals, 0)
	case coltable.String:
		col.stringVals = append(col.stringVals, "")
	}
}

// Build finalizes the accumulated rows into a coltable.RecordBatch. The
// Builder must not be reused afterward.
func (b *Builder) Build() *coltable.RecordBatch {
	batch := &coltable.RecordBatch{Length: b.rows, Columns: make([]*coltable.Column, len(b.cols))}
	for i, acc := range b.cols {
		batch.Columns[i] = finalizeColumn(b.schema.Names[i], acc, b.rows)
	}
	return batch
}

func finalizeColumn(name string, acc columnAccum, rows int) *coltable.Column {
	col := &coltable.Column{Name: name, Type: acc.typ, Length: rows, ForcedNullCoercions: acc.forcedNullAny}

	hasNull := false
	for _, v := range acc.validBits {
		if !v {
			hasNull = true
			break
		}
	}
	if hasNull {
		col.Validity = coltable.NewBitmap(rows)
		for i, v := range acc.validBits {
			col.Validity.SetValid(i, v)
		}
	}

	switch acc.typ {
	case coltable.Bool:
		col.BoolValues = packBits(acc.boolVals)
	case coltable.Int64:
		col.Int64Values = acc.int64Vals
	case coltable.Float64:
		col.Float64Values = acc.float64Vals
	case coltable.String:
		col.StringOffsets, col.StringData = packStrings(acc.stringVals)
	}
	return col
}

func packBits(vals []bool) []byte {
	out := make([]byte, (len(vals)+7)/8)
	for i, v := range vals {
		if v {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

func packStrings(vals []string) ([]int64, []byte) {
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
