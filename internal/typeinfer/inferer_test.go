package typeinfer

import (
	"testing"

	"github.com/shapestone/vroom/internal/coltable"
)

func TestClassify(t *testing.T) {
	cases := map[string]coltable.LogicalType{
		"true":   coltable.Bool,
		"FALSE":  coltable.Bool,
		"True":   coltable.Bool,
		"1":      coltable.Int64, // "1"/"0" are integers, never booleans
		"0":      coltable.Int64,
		"t":      coltable.String, // "t"/"f" are not recognized bool spellings
		"42":     coltable.Int64,
		"-7":     coltable.Int64,
		"3.14":   coltable.Float64,
		"hello":  coltable.String,
		"":       coltable.String,
		"1.0e10": coltable.Float64,
	}
	for in, want := range cases {
		if got := Classify(in); got != want {
			t.Errorf("Classify(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestClassifyCellRespectsNullTokens(t *testing.T) {
	nulls := coltable.NewNullTokenSet([]string{"NA"}, true)
	if got := ClassifyCell("", nulls); got != coltable.Null {
		t.Errorf("ClassifyCell(\"\") = %v, want Null", got)
	}
	if got := ClassifyCell("NA", nulls); got != coltable.Null {
		t.Errorf("ClassifyCell(\"NA\") = %v, want Null", got)
	}
	if got := ClassifyCell("42", nulls); got != coltable.Int64 {
		t.Errorf("ClassifyCell(\"42\") = %v, want Int64", got)
	}
}

func TestParseBool(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want bool
	}{
		{"true", true}, {"TRUE", true}, {"True", true},
		{"false", false}, {"FALSE", false}, {"False", false},
	} {
		got, err := ParseBool(tc.in)
		if err != nil {
			t.Fatalf("ParseBool(%q) error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseBool(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
	for _, in := range []string{"maybe", "T", "F", "1", "0", "yes", "no"} {
		if _, err := ParseBool(in); err == nil {
			t.Errorf("ParseBool(%q): expected error, got none", in)
		}
	}
}

func TestClassifyIntColumnNotMistakenForBool(t *testing.T) {
	nulls := coltable.NewNullTokenSet(coltable.DefaultNullTokens, true)
	inf := New(1, nulls, 0)
	inf.Observe([]string{"1"})
	inf.Observe([]string{"0"})
	inf.Observe([]string{"1"})
	if got := inf.Types()[0]; got != coltable.Int64 {
		t.Errorf("column of 1/0 type = %v, want Int64, not Bool", got)
	}
}

func TestInfererWidensOnContradiction(t *testing.T) {
	nulls := coltable.NewNullTokenSet(coltable.DefaultNullTokens, true)
	inf := New(2, nulls, 0)

	inf.Observe([]string{"1", "alice"})
	inf.Observe([]string{"2", "bob"})
	inf.Observe([]string{"3.5", "carol"}) // widens column 0 from Int64 to Float64

	types := inf.Types()
	if types[0] != coltable.Float64 {
		t.Errorf("column 0 type = %v, want Float64", types[0])
	}
	if types[1] != coltable.String {
		t.Errorf("column 1 type = %v, want String", types[1])
	}
}

func TestInfererAllNullColumnIsString(t *testing.T) {
	nulls := coltable.NewNullTokenSet(coltable.DefaultNullTokens, true)
	inf := New(1, nulls, 0)
	inf.Observe([]string{""})
	inf.Observe([]string{"NA"})

	if got := inf.Types()[0]; got != coltable.String {
		t.Errorf("all-null column type = %v, want String", got)
	}
}

func TestInfererRespectsMaxRows(t *testing.T) {
	nulls := coltable.NewNullTokenSet(coltable.DefaultNullTokens, true)
	inf := New(1, nulls, 2)
	inf.Observe([]string{"1"})
	inf.Observe([]string{"2"})
	if !inf.Done() {
		t.Fatal("expected Done() after maxRows observations")
	}
	inf.Observe([]string{"not-a-number"}) // ignored, inferer is done
	if got := inf.Types()[0]; got != coltable.Int64 {
		t.Errorf("type after maxRows = %v, want Int64 (later row ignored)", got)
	}
}
