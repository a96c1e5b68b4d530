// Package chunkplan splits a CSV file's raw bytes into independently
// scannable chunks that always break on a record boundary, so
// internal/driver can hand one chunk per worker goroutine without any
// worker ever needing to see a byte outside its own chunk.
//
// The hard part is quoted newlines: a '\n' inside an open quoted field is
// not a record boundary. Rather than fully parse the file up front to find
// real boundaries (which would defeat the point of chunking), the planner
// counts quote bytes from the start of the current chunk and splits only at
// the first terminator past each candidate point where that count is even,
// scanning forward until it finds one. The result
// tolerates CRLF and CR terminators as well as bare LF.
package chunkplan

import "github.com/shapestone/vroom/internal/bytescan"

// ambiguityPrefixSize bounds the first forward scan from a candidate split
// point; past it, snapToRecordBoundary keeps scanning without a bound.
const ambiguityPrefixSize = 64 * 1024

// Chunk is one independently-scannable byte range of the input, in file
// order.
type Chunk struct {
	Index      int
	Start      int64
	End        int64
	StartState bytescan.State
}

// Plan splits data into chunks of approximately targetSize bytes each,
// snapping every split point to a record boundary under d. If data is
// smaller than 2*targetSize, a second chunk would likely be a sliver not
// worth the fan-out cost, so Plan returns a single chunk covering the
// whole input instead.
func Plan(data []byte, d bytescan.Dialect, targetSize int64) []Chunk {
	n := int64(len(data))
	if targetSize <= 0 || n < 2*targetSize {
		return []Chunk{{Index: 0, Start: 0, End: n, StartState: bytescan.Unquoted}}
	}

	var chunks []Chunk
	var start int64
	for start < n {
		end := start + targetSize
		if end >= n {
			end = n
		} else {
			end = snapToRecordBoundary(data, start, end, d)
		}
		chunks = append(chunks, Chunk{
			Index:      len(chunks),
			Start:      start,
			End:        end,
			StartState: bytescan.Unquoted, // every chunk boundary is a record boundary, hence Unquoted
		})
		start = end
	}
	return chunks
}

// snapToRecordBoundary finds the nearest record-terminator byte at or after
// pos that is not inside an open quoted field, returning the offset just
// past that terminator (i.e. the start of the next record). from is the
// start of the current chunk, a known record boundary. If it cannot
// find an unambiguous one before the end of data, it returns len(data): the
// remainder becomes one final chunk.
func snapToRecordBoundary(data []byte, from, pos int64, d bytescan.Dialect) int64 {
	n := int64(len(data))
	if pos >= n {
		return n
	}

	prefixEnd := pos + ambiguityPrefixSize
	if prefixEnd > n {
		prefixEnd = n
	}

	// Walk forward from pos looking for a terminator byte. For each
	// candidate, verify quote parity over [from, candidate) is even — i.e.
	// it is not inside an open quoted region. Counting starts at from, the
	// chunk's own start, because pos itself may fall inside a quoted field;
	// from is always 0 or the output of a previous snap, so it starts
	// outside quoting.
	quoteCount := 0
	for i := from; i < pos; i++ {
		if data[i] == d.Quote {
			quoteCount++
		}
	}
	for i := pos; i < prefixEnd; i++ {
		b := data[i]
		if b == d.Quote {
			quoteCount++
			continue
		}
		if quoteCount%2 != 0 {
			continue // inside an open quoted field, not a real terminator even if it matches
		}
		if isRecordTerminatorByte(b, d) {
			adv := int64(1)
			if b == '\r' && i+1 < n && data[i+1] == '\n' {
				adv = 2
			}
			return i + adv
		}
	}

	// No unambiguous boundary within the lookahead window: conservatively
	// scan unbounded for the next terminator with even quote parity. This
	// is the pathologically-long-quoted-field case, where a single field
	// straddles the whole lookahead window; it degrades to a larger chunk
	// rather than risk a wrong split.
	for i := prefixEnd; i < n; i++ {
		b := data[i]
		if b == d.Quote {
			quoteCount++
			continue
		}
		if quoteCount%2 != 0 {
			continue
		}
		if isRecordTerminatorByte(b, d) {
			adv := int64(1)
			if b == '\r' && i+1 < n && data[i+1] == '\n' {
				adv = 2
			}
			return i + adv
		}
	}
	return n
}

func isRecordTerminatorByte(b byte, d bytescan.Dialect) bool {
	switch d.Terminator {
	case bytescan.CRLF:
		return b == '\r' || b == '\n'
	case bytescan.CR:
		return b == '\r'
	default:
		return b == '\n'
	}
}
