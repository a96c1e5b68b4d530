package coltable

import "testing"

func TestJoinLattice(t *testing.T) {
	cases := []struct {
		a, b, want LogicalType
	}{
		{Null, Bool, Bool},
		{Bool, Int64, Int64},
		{Int64, Float64, Float64},
		{Float64, String, String},
		{String, Null, String},
		{Int64, Int64, Int64},
	}
	for _, c := range cases {
		if got := Join(c.a, c.b); got != c.want {
			t.Errorf("Join(%v, %v) = %v, want %v", c.a, c.b, got, c.want)
		}
		if got := Join(c.b, c.a); got != c.want {
			t.Errorf("Join(%v, %v) = %v, want %v (not commutative)", c.b, c.a, got, c.want)
		}
	}
}

func TestNullTokenSetDefaults(t *testing.T) {
	n := NewNullTokenSet(DefaultNullTokens, true)
	for _, tok := range []string{"", "NA", "N/A", "null", "NULL"} {
		if !n.IsNull(tok) {
			t.Errorf("IsNull(%q) = false, want true", tok)
		}
	}
	if n.IsNull("not-null") {
		t.Error("IsNull(\"not-null\") = true, want false")
	}
}

func TestNullTokenSetEmptyIsNullToggle(t *testing.T) {
	n := NewNullTokenSet([]string{"NA"}, false)
	if n.IsNull("") {
		t.Error("empty string should not be null when empty_is_null is false")
	}
	if !n.IsNull("NA") {
		t.Error("NA should still be null")
	}
}

func TestBitmapValidityAndNullCount(t *testing.T) {
	b := NewBitmap(10)
	for i := 0; i < 10; i++ {
		b.SetValid(i, i%3 != 0) // invalid at 0, 3, 6, 9
	}
	wantNulls := 4
	if got := b.NullCount(); got != wantNulls {
		t.Fatalf("NullCount() = %d, want %d", got, wantNulls)
	}
	valid := 0
	for i := 0; i < b.Len(); i++ {
		if b.IsValid(i) {
			valid++
		}
	}
	if valid+b.NullCount() != b.Len() {
		t.Fatalf("valid(%d) + NullCount(%d) != Len(%d)", valid, b.NullCount(), b.Len())
	}
}

func TestBitmapBytesLSBFirst(t *testing.T) {
	b := NewBitmap(8)
	b.SetValid(0, true)
	b.SetValid(1, false)
	b.SetValid(7, true)
	data := b.Bytes()
	if len(data) != 1 {
		t.Fatalf("len(Bytes()) = %d, want 1", len(data))
	}
	if data[0]&1 == 0 {
		t.Error("bit 0 should be set (LSB-first)")
	}
	if data[0]&(1<<7) == 0 {
		t.Error("bit 7 should be set")
	}
	if data[0]&(1<<1) != 0 {
		t.Error("bit 1 should be clear")
	}
}

func TestColumnStringAt(t *testing.T) {
	c := &Column{
		Name:          "s",
		Type:          String,
		Length:        2,
		StringOffsets: []int64{0, 3, 6},
		StringData:    []byte("foobar"),
	}
	if got := c.StringAt(0); got != "foo" {
		t.Errorf("StringAt(0) = %q, want foo", got)
	}
	if got := c.StringAt(1); got != "bar" {
		t.Errorf("StringAt(1) = %q, want bar", got)
	}
}

func TestTableAccessors(t *testing.T) {
	tbl := &Table{
		Schema: Schema{Names: []string{"a", "b"}, Types: []LogicalType{Int64, String}},
		Batches: []*RecordBatch{
			{Length: 2, Columns: []*Column{{Length: 2}, {Length: 2}}},
			{Length: 3, Columns: []*Column{{Length: 3}, {Length: 3}}},
		},
	}
	if got := tbl.NumRows(); got != 5 {
		t.Errorf("NumRows() = %d, want 5", got)
	}
	if got := tbl.NumColumns(); got != 2 {
		t.Errorf("NumColumns() = %d, want 2", got)
	}
	if got := tbl.NumChunks(); got != 2 {
		t.Errorf("NumChunks() = %d, want 2", got)
	}
	if got := tbl.ColumnIndex("b"); got != 1 {
		t.Errorf("ColumnIndex(\"b\") = %d, want 1", got)
	}
	if got := tbl.ColumnIndex("missing"); got != -1 {
		t.Errorf("ColumnIndex(\"missing\") = %d, want -1", got)
	}
}
