// Package columnbuild turns a scanned byte chunk into typed
// coltable.RecordBatch values: first extracting raw field spans (RawChunk),
// then decoding and appending each field into typed column buffers
// (ColumnBuilder).
package columnbuild

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/shapestone/vroom/internal/bytescan"
)

// FieldView is a zero-copy view of one field's bytes within a RawChunk's
// backing buffer: a pair of offsets plus an explicit needs-unescape flag,
// so a field that never needed unescaping never has to be rescanned for
// doubled quotes later.
type FieldView struct {
	Start         int32
	End           int32
	NeedsUnescape bool
}

// RawChunk is the scanner's output for one contiguous byte range: every
// record's field spans, still pointing into the original chunk bytes.
// This is the "RawChunk" intermediate of the component pipeline: a worker
// produces one RawChunk per input chunk, and ColumnBuilder consumes it
// without ever re-touching the scanner.
type RawChunk struct {
	Data    []byte
	Records [][]FieldView
}

// bufferPool is used only when a field needs unescaping (contains `""`) —
// the common case (unquoted, or quoted-without-escapes) never touches it.
var bufferPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, 0, 64)
		return &b
	},
}

// unsafeString views b as a string without copying. Safe here because it
// is only ever applied to subslices of RawChunk.Data, which the driver
// guarantees is never mutated once scanning begins.
func unsafeString(b []byte) string {
	return unsafe.String(unsafe.SliceData(b), len(b))
}

// ExtractFields runs bytescan.Scan over data and groups the resulting
// FieldEnd/RecordEnd events into a RawChunk, tracking each field's
// Start/End span and whether it was ever seen between an EscapedQuote pair
// (which means its decoded value needs unescaping rather than a bare
// subslice).
func ExtractFields(data []byte, start bytescan.State, d bytescan.Dialect) (RawChunk, bytescan.State, error) {
	rc := RawChunk{Data: data}

	var fields []FieldView
	fieldStart := 0
	quoted := false
	needsUnescape := false
	// closedByQuote is set by QuoteExit: the current field was quoted, and
	// the FieldEnd/RecordEnd that follows (scanner.go emits both at the same
	// Pos when a quoted field is closed) pushes its view as
	// [contentStart, quoteEnd) instead of the raw span. A stray byte after a
	// closing quote yields another QuoteExit later, which only moves
	// quoteEnd, so the field stays one view.
	closedByQuote := false

	var contentStart, quoteEnd int
	end, err := bytescan.Scan(data, start, d, func(ev bytescan.Event) {
		switch ev.Kind {
		case bytescan.QuoteEnter:
			quoted = true
			contentStart = ev.Pos + 1
			fieldStart = ev.Pos + 1
		case bytescan.EscapedQuote:
			needsUnescape = true
		case bytescan.QuoteExit:
			// ev.Pos is the byte after the closing quote.
			quoteEnd = ev.Pos - 1
			quoted = false
			closedByQuote = true
		case bytescan.FieldEnd:
			if closedByQuote {
				fields = append(fields, FieldView{Start: int32(contentStart), End: int32(quoteEnd), NeedsUnescape: needsUnescape})
			} else if !quoted {
				fields = append(fields, FieldView{Start: int32(fieldStart), End: int32(ev.Pos), NeedsUnescape: needsUnescape})
			}
			fieldStart = ev.Pos + 1
			needsUnescape = false
			closedByQuote = false
		case bytescan.RecordEnd:
			if closedByQuote {
				fields = append(fields, FieldView{Start: int32(contentStart), End: int32(quoteEnd), NeedsUnescape: needsUnescape})
			} else if !quoted {
				fields = append(fields, FieldView{Start: int32(fieldStart), End: int32(ev.Pos), NeedsUnescape: needsUnescape})
			}
			rc.Records = append(rc.Records, fields)
			fields = nil
			fieldStart = ev.Pos + recordEndWidth(data, ev.Pos, d)
			needsUnescape = false
			closedByQuote = false
		}
	})
	if err != nil {
		return rc, end, err
	}

	// A final record with no trailing terminator (common at EOF).
	if !quoted && (len(fields) > 0 || fieldStart < len(data)) {
		fields = append(fields, FieldView{Start: int32(fieldStart), End: int32(len(data)), NeedsUnescape: needsUnescape})
		rc.Records = append(rc.Records, fields)
	}

	return rc, end, nil
}

func recordEndWidth(data []byte, pos int, d bytescan.Dialect) int {
	if d.Terminator == bytescan.CRLF && pos < len(data) && data[pos] == '\r' && pos+1 < len(data) && data[pos+1] == '\n' {
		return 2
	}
	return 1
}

// DecodeField returns the decoded string content of view within data: a
// zero-copy unsafe string for the common case, or an unescaped copy (via
// bufferPool) when the field contained a doubled quote.
func DecodeField(data []byte, view FieldView) string {
	raw := data[view.Start:view.End]
	if !view.NeedsUnescape {
		return unsafeString(raw)
	}

	p := bufferPool.Get().(*[]byte)
	buf := (*p)[:0]
	defer func() {
		if cap(buf) <= 4096 {
			*p = buf
			bufferPool.Put(p)
		}
	}()

	for i := 0; i < len(raw); i++ {
		if raw[i] == '"' && i+1 < len(raw) && raw[i+1] == '"' {
			buf = append(buf, '"')
			i++
			continue
		}
		buf = append(buf, raw[i])
	}
	return string(buf)
}

// Fields decodes every field of record i in rc as strings, in order.
func (rc RawChunk) Fields(recordIdx int) []string {
	views := rc.Records[recordIdx]
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = DecodeField(rc.Data, v)
	}
	return out
}

// Validate checks that every record in rc has the expected field count,
// returning a descriptive error for the first mismatch.
func (rc RawChunk) Validate(expectedFields int) error {
	for i, rec := range rc.Records {
		if len(rec) != expectedFields {
			return fmt.Errorf("row %d: got %d fields, want %d", i, len(rec), expectedFields)
		}
	}
	return nil
}
