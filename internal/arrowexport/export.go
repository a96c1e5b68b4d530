// Package arrowexport converts a coltable.Table into Apache Arrow records
// and exposes them through the Arrow C Data Interface
// (ArrowSchema/ArrowArray/ArrowArrayStream), using the
// github.com/apache/arrow-go/v18 implementation rather than hand-rolled
// cgo structs.
package arrowexport

import (
	"fmt"
	"unsafe"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/cdata"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/shapestone/vroom/internal/coltable"
)

// arrowType maps vroom's logical type lattice onto a concrete Arrow type.
func arrowType(t coltable.LogicalType) arrow.DataType {
	switch t {
	case coltable.Bool:
		return arrow.FixedWidthTypes.Boolean
	case coltable.Int64:
		return arrow.PrimitiveTypes.Int64
	case coltable.Float64:
		return arrow.PrimitiveTypes.Float64
	default: // String and Null-that-widened-to-String
		return arrow.BinaryTypes.String
	}
}

// Schema builds the arrow.Schema for a coltable.Schema.
func Schema(schema coltable.Schema) *arrow.Schema {
	fields := make([]arrow.Field, len(schema.Names))
	for i, name := range schema.Names {
		fields[i] = arrow.Field{Name: name, Type: arrowType(schema.Types[i]), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

// RecordBatch converts one coltable.RecordBatch into an arrow.Record,
// built through the standard array.Builder family rather than by poking at
// buffers directly — builders already handle validity-bitmap bookkeeping
// correctly.
func RecordBatch(mem memory.Allocator, asch *arrow.Schema, batch *coltable.RecordBatch) (arrow.Record, error) {
	bldr := array.NewRecordBuilder(mem, asch)
	defer bldr.Release()

	for i, col := range batch.Columns {
		if err := appendColumn(bldr.Field(i), col); err != nil {
			return nil, fmt.Errorf("column %q: %w", col.Name, err)
		}
	}
	return bldr.NewRecord(), nil
}

func appendColumn(fb array.Builder, col *coltable.Column) error {
	switch col.Type {
	case coltable.Bool:
		b := fb.(*array.BooleanBuilder)
		for i := 0; i < col.Length; i++ {
			if !col.IsValid(i) {
				b.AppendNull()
				continue
			}
			b.Append(col.BoolAt(i))
		}
	case coltable.Int64:
		b := fb.(*array.Int64Builder)
		for i := 0; i < col.Length; i++ {
			if !col.IsValid(i) {
				b.AppendNull()
				continue
			}
			b.Append(col.Int64Values[i])
		}
	case coltable.Float64:
		b := fb.(*array.Float64Builder)
		for i := 0; i < col.Length; i++ {
			if !col.IsValid(i) {
				b.AppendNull()
				continue
			}
			b.Append(col.Float64Values[i])
		}
	case coltable.String:
		b := fb.(*array.StringBuilder)
		for i := 0; i < col.Length; i++ {
			if !col.IsValid(i) {
				b.AppendNull()
				continue
			}
			b.Append(col.StringAt(i))
		}
	default:
		return fmt.Errorf("unsupported logical type %v", col.Type)
	}
	return nil
}

// Table converts a full coltable.Table into a slice of arrow.Record, one
// per RecordBatch, sharing the allocator across batches so Arrow's
// reference-counted buffers are all tracked together.
func Table(mem memory.Allocator, t *coltable.Table) ([]arrow.Record, error) {
	asch := Schema(t.Schema)
	records := make([]arrow.Record, 0, len(t.Batches))
	for _, batch := range t.Batches {
		rec, err := RecordBatch(mem, asch, batch)
		if err != nil {
			for _, r := range records {
				r.Release()
			}
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// ExportedSchema is an opaque handle to a C Data Interface ArrowSchema.
// Callers must call Release exactly once; it invokes the release callback
// the exported struct itself carries, the way every C Data Interface
// consumer (not just cdata's own importer) is expected to free it.
type ExportedSchema struct {
	c *cdata.CArrowSchema
}

// Release frees the underlying ArrowSchema by invoking the release
// callback the exported CArrowSchema carries in its own release field.
func (s *ExportedSchema) Release() {
	if s.c != nil {
		s.c.Release()
		s.c = nil
	}
}

// Ptr returns the raw C Data Interface pointer for handing to an FFI
// boundary.
func (s *ExportedSchema) Ptr() uintptr { return uintptr(unsafe.Pointer(s.c)) }

// ExportSchema exports an arrow.Schema as a C Data Interface ArrowSchema.
// cdata.ExportArrowSchema fills a caller-allocated struct rather than
// returning one, so the CArrowSchema is allocated here first.
func ExportSchema(asch *arrow.Schema) (*ExportedSchema, error) {
	c := new(cdata.CArrowSchema)
	cdata.ExportArrowSchema(asch, c)
	return &ExportedSchema{c: c}, nil
}

// ExportedArray is an opaque handle to a C Data Interface ArrowArray
// paired with the ArrowSchema describing it.
type ExportedArray struct {
	schema *cdata.CArrowSchema
	array  *cdata.CArrowArray
}

// Release frees both the ArrowArray and its paired ArrowSchema, each via
// its own release callback.
func (a *ExportedArray) Release() {
	if a.array != nil {
		a.array.Release()
		a.array = nil
	}
	if a.schema != nil {
		a.schema.Release()
		a.schema = nil
	}
}

// SchemaPtr returns the raw ArrowSchema pointer.
func (a *ExportedArray) SchemaPtr() uintptr { return uintptr(unsafe.Pointer(a.schema)) }

// ArrayPtr returns the raw ArrowArray pointer.
func (a *ExportedArray) ArrayPtr() uintptr { return uintptr(unsafe.Pointer(a.array)) }

// ExportRecord exports one arrow.Record as a paired ArrowSchema/ArrowArray.
// Both out-parameters are allocated here and filled in place by
// cdata.ExportArrowRecordBatch; it does not allocate or return them itself.
func ExportRecord(rec arrow.Record) (*ExportedArray, error) {
	carr := new(cdata.CArrowArray)
	csch := new(cdata.CArrowSchema)
	cdata.ExportArrowRecordBatch(rec, carr, csch)
	return &ExportedArray{schema: csch, array: carr}, nil
}

// ExportedStream is an opaque handle to a C Data Interface
// ArrowArrayStream, releasing every record it was built from on Release.
type ExportedStream struct {
	c       *cdata.CArrowArrayStream
	records []arrow.Record
}

// Release ends the stream via its own release callback and releases every
// underlying record.
func (s *ExportedStream) Release() {
	if s.c != nil {
		s.c.Release()
		s.c = nil
	}
	for _, r := range s.records {
		r.Release()
	}
	s.records = nil
}

// Ptr returns the raw ArrowArrayStream pointer.
func (s *ExportedStream) Ptr() uintptr { return uintptr(unsafe.Pointer(s.c)) }

// ExportStream exports a Table as a full ArrowArrayStream, one ArrowArray per RecordBatch.
func ExportStream(mem memory.Allocator, t *coltable.Table) (*ExportedStream, error) {
	records, err := Table(mem, t)
	if err != nil {
		return nil, err
	}

	reader, err := array.NewRecordReader(Schema(t.Schema), records)
	if err != nil {
		for _, r := range records {
			r.Release()
		}
		return nil, fmt.Errorf("build record reader: %w", err)
	}
	defer reader.Release()

	cstream := new(cdata.CArrowArrayStream)
	cdata.ExportRecordReader(reader, cstream)
	return &ExportedStream{c: cstream, records: records}, nil
}
