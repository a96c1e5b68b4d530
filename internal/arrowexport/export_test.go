package arrowexport

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/cdata"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/shapestone/vroom/internal/coltable"
)

func sampleTable() *coltable.Table {
	schema := coltable.Schema{
		Names: []string{"id", "score", "active", "name"},
		Types: []coltable.LogicalType{coltable.Int64, coltable.Float64, coltable.Bool, coltable.String},
	}

	validity := coltable.NewBitmap(2)
	validity.SetValid(0, true)
	validity.SetValid(1, false)

	batch := &coltable.RecordBatch{
		Length: 2,
		Columns: []*coltable.Column{
			{Name: "id", Type: coltable.Int64, Length: 2, Int64Values: []int64{1, 2}},
			{Name: "score", Type: coltable.Float64, Length: 2, Validity: validity, Float64Values: []float64{9.5, 0}},
			{Name: "active", Type: coltable.Bool, Length: 2, BoolValues: []byte{0b01}},
			{Name: "name", Type: coltable.String, Length: 2, StringOffsets: []int64{0, 5, 8}, StringData: []byte("alicebob")},
		},
	}

	return &coltable.Table{Schema: schema, Batches: []*coltable.RecordBatch{batch}}
}

func TestSchemaMapsLogicalTypes(t *testing.T) {
	schema := coltable.Schema{
		Names: []string{"a", "b", "c", "d"},
		Types: []coltable.LogicalType{coltable.Int64, coltable.Float64, coltable.Bool, coltable.String},
	}
	asch := Schema(schema)
	if asch.NumFields() != 4 {
		t.Fatalf("NumFields = %d, want 4", asch.NumFields())
	}
	wantTypes := []arrow.DataType{
		arrow.PrimitiveTypes.Int64,
		arrow.PrimitiveTypes.Float64,
		arrow.FixedWidthTypes.Boolean,
		arrow.BinaryTypes.String,
	}
	for i, want := range wantTypes {
		if !arrow.TypeEqual(asch.Field(i).Type, want) {
			t.Errorf("field %d type = %v, want %v", i, asch.Field(i).Type, want)
		}
	}
}

func TestRecordBatchRoundTrip(t *testing.T) {
	table := sampleTable()
	mem := memory.NewGoAllocator()
	asch := Schema(table.Schema)

	rec, err := RecordBatch(mem, asch, table.Batches[0])
	if err != nil {
		t.Fatalf("RecordBatch error: %v", err)
	}
	defer rec.Release()

	if rec.NumRows() != 2 {
		t.Fatalf("NumRows = %d, want 2", rec.NumRows())
	}
	if rec.NumCols() != 4 {
		t.Fatalf("NumCols = %d, want 4", rec.NumCols())
	}
	if rec.Column(1).IsNull(1) != true {
		t.Error("expected score[1] to be null")
	}
}

// TestExportRecordRoundTripsThroughCDataInterface exercises the actual C
// Data Interface boundary: export a record to a CArrowArray/CArrowSchema
// pair, hand the raw pointers to cdata's own importer (as any foreign
// consumer would), and confirm the re-imported record matches.
func TestExportRecordRoundTripsThroughCDataInterface(t *testing.T) {
	table := sampleTable()
	mem := memory.NewGoAllocator()
	asch := Schema(table.Schema)

	rec, err := RecordBatch(mem, asch, table.Batches[0])
	if err != nil {
		t.Fatalf("RecordBatch error: %v", err)
	}
	defer rec.Release()

	exported, err := ExportRecord(rec)
	if err != nil {
		t.Fatalf("ExportRecord error: %v", err)
	}
	defer exported.Release()

	imported, err := cdata.ImportCRecordBatch(exported.array, exported.schema)
	if err != nil {
		t.Fatalf("ImportCRecordBatch error: %v", err)
	}
	defer imported.Release()

	if imported.NumRows() != rec.NumRows() {
		t.Fatalf("imported NumRows = %d, want %d", imported.NumRows(), rec.NumRows())
	}
	if imported.NumCols() != rec.NumCols() {
		t.Fatalf("imported NumCols = %d, want %d", imported.NumCols(), rec.NumCols())
	}
	if imported.Column(1).IsNull(1) != true {
		t.Error("expected imported score[1] to be null")
	}
	gotName, ok := imported.Column(3).(*array.String)
	if !ok {
		t.Fatalf("imported column 3 type = %T, want *array.String", imported.Column(3))
	}
	if gotName.Value(0) != "alice" || gotName.Value(1) != "bob" {
		t.Errorf("imported name column = [%q, %q], want [alice, bob]", gotName.Value(0), gotName.Value(1))
	}
}

// TestExportStreamRoundTripsThroughCDataInterface exports a whole table as
// an ArrowArrayStream and drains it back through cdata's stream importer.
func TestExportStreamRoundTripsThroughCDataInterface(t *testing.T) {
	table := sampleTable()
	mem := memory.NewGoAllocator()

	stream, err := ExportStream(mem, table)
	if err != nil {
		t.Fatalf("ExportStream error: %v", err)
	}
	defer stream.Release()

	reader, err := cdata.ImportCArrowArrayStream(stream.c, nil)
	if err != nil {
		t.Fatalf("ImportCArrowArrayStream error: %v", err)
	}
	defer reader.Release()

	var gotRows int64
	for reader.Next() {
		gotRows += reader.Record().NumRows()
	}
	if err := reader.Err(); err != nil {
		t.Fatalf("stream read error: %v", err)
	}
	if want := int64(table.Batches[0].Length); gotRows != want {
		t.Errorf("total rows read from stream = %d, want %d", gotRows, want)
	}
}

// TestAllStringColumnsPreserveExactBytes guards the all-STRING round-trip
// property: every byte, including embedded whitespace, must survive the
// export unchanged.
func TestAllStringColumnsPreserveExactBytes(t *testing.T) {
	values := []string{"plain", "  leading space", "trailing space  ", "tab\tinside", "", "embedded\nnewline"}
	var offsets []int64
	var data []byte
	offsets = append(offsets, 0)
	for _, v := range values {
		data = append(data, v...)
		offsets = append(offsets, int64(len(data)))
	}

	schema := coltable.Schema{Names: []string{"s"}, Types: []coltable.LogicalType{coltable.String}}
	batch := &coltable.RecordBatch{
		Length: len(values),
		Columns: []*coltable.Column{
			{Name: "s", Type: coltable.String, Length: len(values), StringOffsets: offsets, StringData: data},
		},
	}

	mem := memory.NewGoAllocator()
	asch := Schema(schema)
	rec, err := RecordBatch(mem, asch, batch)
	if err != nil {
		t.Fatalf("RecordBatch error: %v", err)
	}
	defer rec.Release()

	col, ok := rec.Column(0).(*array.String)
	if !ok {
		t.Fatalf("column 0 type = %T, want *array.String", rec.Column(0))
	}
	for i, want := range values {
		if got := col.Value(i); got != want {
			t.Errorf("row %d = %q, want %q", i, got, want)
		}
	}
}
