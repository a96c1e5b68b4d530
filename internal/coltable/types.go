// Package coltable holds the columnar data model vroom builds CSV input
// into: typed Columns, RecordBatches, and the Table that owns them.
//
// A Table is immutable once ColumnBuilder has finished writing into it —
// from that point it is safe to read concurrently from multiple
// goroutines without further synchronization.
package coltable

import "math/bits"

// LogicalType is one node of the inference lattice
// NULL ⊏ BOOL ⊏ INT64 ⊏ FLOAT64 ⊏ STRING.
type LogicalType uint8

const (
	Null LogicalType = iota
	Bool
	Int64
	Float64
	String
)

func (t LogicalType) String() string {
	switch t {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case String:
		return "string"
	default:
		return "unknown"
	}
}

// Join returns the smallest LogicalType that is >= both a and b under the
// lattice order NULL ⊏ BOOL ⊏ INT64 ⊏ FLOAT64 ⊏ STRING.
func Join(a, b LogicalType) LogicalType {
	if a > b {
		return a
	}
	return b
}

// DefaultNullTokens is the default NullTokenSet: the empty string, plus
// the common "NA"/"N/A"/"null"/"NULL" spellings.
var DefaultNullTokens = []string{"", "NA", "N/A", "null", "NULL"}

// NullTokenSet decides, for a decoded field string, whether it reads as
// NULL on input.
type NullTokenSet struct {
	tokens      map[string]struct{}
	emptyIsNull bool
}

// NewNullTokenSet builds a NullTokenSet from a list of tokens plus the
// empty_is_null flag controlling whether "" is treated as NULL regardless of
// whether it is present in tokens.
func NewNullTokenSet(tokens []string, emptyIsNull bool) NullTokenSet {
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		if tok == "" {
			continue // handled by emptyIsNull, kept out of the map on purpose
		}
		set[tok] = struct{}{}
	}
	return NullTokenSet{tokens: set, emptyIsNull: emptyIsNull}
}

// IsNull reports whether s should be read as NULL.
func (n NullTokenSet) IsNull(s string) bool {
	if s == "" {
		return n.emptyIsNull
	}
	_, ok := n.tokens[s]
	return ok
}

// Bitmap is an Arrow-shaped validity bitmap: bit i set means element i is
// valid (non-null), packed LSB-first — the same layout Arrow itself uses
// for a validity buffer, so exporting a column needs no repacking.
type Bitmap struct {
	bits   []uint64
	length int
}

// NewBitmap allocates a Bitmap for length elements, all initially invalid
// (null) until SetValid marks them.
func NewBitmap(length int) *Bitmap {
	return &Bitmap{bits: make([]uint64, (length+63)/64), length: length}
}

// SetValid sets or clears the validity bit at i.
func (b *Bitmap) SetValid(i int, valid bool) {
	word, bit := i/64, uint(i%64)
	if valid {
		b.bits[word] |= 1 << bit
	} else {
		b.bits[word] &^= 1 << bit
	}
}

// IsValid reports whether element i is valid.
func (b *Bitmap) IsValid(i int) bool {
	word, bit := i/64, uint(i%64)
	return b.bits[word]&(1<<bit) != 0
}

// Len returns the number of elements the bitmap covers.
func (b *Bitmap) Len() int { return b.length }

// Bytes returns the raw packed bitmap buffer (Arrow's validity buffer
// layout: LSB-first within each byte).
func (b *Bitmap) Bytes() []byte {
	out := make([]byte, (b.length+7)/8)
	for i := 0; i < b.length; i++ {
		if b.IsValid(i) {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

// NullCount returns the number of invalid (null) positions.
func (b *Bitmap) NullCount() int {
	count := 0
	for i, w := range b.bits {
		lo := i * 64
		hi := lo + 64
		if hi > b.length {
			// mask off the padding bits beyond length in the final word
			valid := b.length - lo
			w &= (uint64(1) << uint(valid)) - 1
		}
		count += bits.OnesCount64(w)
	}
	return b.length - count
}

// Column is a single typed, materialized column.
type Column struct {
	Name     string
	Type     LogicalType
	Length   int
	Validity *Bitmap // nil if no null was ever encountered

	// Exactly one of the following is populated, selected by Type.
	BoolValues    []byte   // bit-packed, LSB-first, one bit per element
	Int64Values   []int64
	Float64Values []float64
	StringOffsets []int64 // len == Length+1; the Arrow export always writes int32-offset utf8, never large utf8
	StringData    []byte

	// ForcedNullCoercions is set when an explicit dtype coerced a
	// cell to null because it failed to parse under that type.
	ForcedNullCoercions bool
}

// IsValid reports whether row i of this column is non-null.
func (c *Column) IsValid(i int) bool {
	if c.Validity == nil {
		return true
	}
	return c.Validity.IsValid(i)
}

// NullCount returns how many rows of this column are null.
func (c *Column) NullCount() int {
	if c.Validity == nil {
		return 0
	}
	return c.Validity.NullCount()
}

// StringAt returns the decoded string at row i. Only valid for String
// columns.
func (c *Column) StringAt(i int) string {
	start, end := c.StringOffsets[i], c.StringOffsets[i+1]
	return string(c.StringData[start:end])
}

// BoolAt returns the boolean at row i. Only valid for Bool columns.
func (c *Column) BoolAt(i int) bool {
	return c.BoolValues[i/8]&(1<<uint(i%8)) != 0
}

// RecordBatch is a horizontal slice of the table: same-length Columns
// sharing a Schema.
type RecordBatch struct {
	Length  int
	Columns []*Column
}

// Schema is the ordered (name, type) pairs every batch in a Table conforms
// to.
type Schema struct {
	Names []string
	Types []LogicalType
}

// Table is the full logical table: a Schema plus the ordered RecordBatches
// whose concatenation is the table's rows. Immutable after
// construction.
type Table struct {
	Schema  Schema
	Batches []*RecordBatch
}

// NumRows returns the total row count across all batches.
func (t *Table) NumRows() int64 {
	var n int64
	for _, b := range t.Batches {
		n += int64(b.Length)
	}
	return n
}

// NumColumns returns the number of columns in the schema.
func (t *Table) NumColumns() int { return len(t.Schema.Names) }

// NumChunks returns the number of RecordBatches.
func (t *Table) NumChunks() int { return len(t.Batches) }

// ColumnNames returns the schema's column names in order.
func (t *Table) ColumnNames() []string { return append([]string(nil), t.Schema.Names...) }

// ColumnIndex returns the index of the named column, or -1 if it is not in
// the schema.
func (t *Table) ColumnIndex(name string) int {
	for i, n := range t.Schema.Names {
		if n == name {
			return i
		}
	}
	return -1
}
