// Package typeinfer classifies decoded CSV field strings into the logical
// type lattice coltable.LogicalType defines, and merges per-cell
// classifications into a per-column type by lattice join.
//
// A cell is classified as the most specific type it parses as, trying
// NULL, then BOOL, then INT64, then FLOAT64, falling back to STRING.
// Classification never materializes a typed value itself — it only
// decides what type ColumnBuilder should parse the cell as, so sampling
// doesn't force a second pass over the same text.
package typeinfer

import (
	"strconv"

	"github.com/shapestone/vroom/internal/coltable"
)

// Classify returns the most specific LogicalType s parses as, without
// consulting nulls — call nulls.IsNull first and treat a true result as
// coltable.Null.
func Classify(s string) coltable.LogicalType {
	if isBool(s) {
		return coltable.Bool
	}
	if isInt64(s) {
		return coltable.Int64
	}
	if isFloat64(s) {
		return coltable.Float64
	}
	return coltable.String
}

// ClassifyCell classifies s, first checking nulls for a NULL verdict, per
// the NULL ⊏ BOOL ⊏ INT64 ⊏ FLOAT64 ⊏ STRING ordering.
func ClassifyCell(s string, nulls coltable.NullTokenSet) coltable.LogicalType {
	if nulls.IsNull(s) {
		return coltable.Null
	}
	return Classify(s)
}

// isBool reports whether s is one of ParseBool's recognized spellings:
// true, false, TRUE, FALSE, True, False. "1"/"0"/"t"/"f" are deliberately
// excluded — they classify as INT64, not BOOL.
func isBool(s string) bool {
	switch s {
	case "true", "false", "TRUE", "FALSE", "True", "False":
		return true
	default:
		return false
	}
}

// ParseBool parses s using the same recognized spellings as isBool, for
// use by internal/columnbuild once a cell has been classified Bool.
func ParseBool(s string) (bool, error) {
	switch s {
	case "true", "TRUE", "True":
		return true, nil
	case "false", "FALSE", "False":
		return false, nil
	default:
		return false, &strconv.NumError{Func: "ParseBool", Num: s, Err: strconv.ErrSyntax}
	}
}

func isInt64(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

func isFloat64(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// Inferer accumulates a per-column running type across a sample of rows by
// joining each cell's classification into the column's current type,
// widening the column's type whenever a later cell contradicts the
// narrower type seen so far.
type Inferer struct {
	nulls       coltable.NullTokenSet
	columnTypes []coltable.LogicalType
	rowsSeen    int
	maxRows     int // 0 means unbounded (scan the whole file for inference)
}

// New creates an Inferer for numColumns columns, sampling at most maxRows
// rows (0 = unbounded, matching Options.TypeInferenceRows == 0 meaning
// "scan everything").
func New(numColumns int, nulls coltable.NullTokenSet, maxRows int) *Inferer {
	return &Inferer{
		nulls:       nulls,
		columnTypes: make([]coltable.LogicalType, numColumns),
		maxRows:     maxRows,
	}
}

// Done reports whether the inferer has seen enough rows and further calls
// to Observe may be skipped.
func (inf *Inferer) Done() bool {
	return inf.maxRows > 0 && inf.rowsSeen >= inf.maxRows
}

// Observe folds one row's decoded field strings into the running per-column
// types. len(fields) may be less than numColumns for a ragged row; missing
// trailing columns are left unchanged (they contribute no information).
func (inf *Inferer) Observe(fields []string) {
	if inf.Done() {
		return
	}
	for i, f := range fields {
		if i >= len(inf.columnTypes) {
			break
		}
		t := ClassifyCell(f, inf.nulls)
		if t == coltable.Null {
			continue // NULL is the lattice bottom-adjacent element; never widens a column on its own
		}
		inf.columnTypes[i] = coltable.Join(inf.columnTypes[i], t)
	}
	inf.rowsSeen++
}

// Types returns the inferred LogicalType for each column. A column that
// never saw a non-null value infers as String.
func (inf *Inferer) Types() []coltable.LogicalType {
	out := make([]coltable.LogicalType, len(inf.columnTypes))
	for i, t := range inf.columnTypes {
		if t == coltable.Null {
			out[i] = coltable.String
		} else {
			out[i] = t
		}
	}
	return out
}
