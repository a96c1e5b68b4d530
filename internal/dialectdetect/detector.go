// Package dialectdetect sniffs a CSV file's delimiter, quote character,
// line terminator, and header presence from a leading sample of the file,
// producing the dialect-parametric Result internal/bytescan and
// internal/chunkplan need to scan the rest of it.
package dialectdetect

import (
	"strings"
	"unicode"

	"github.com/shapestone/vroom/internal/bytescan"
	"github.com/shapestone/vroom/internal/coltable"
	"github.com/shapestone/vroom/internal/typeinfer"
)

// SampleSize bounds how much of the file is read for detection.
const SampleSize = 64 * 1024

// candidateDelimiters is the fixed set of bytes considered as a delimiter;
// comma is tried first as a tiebreaker since it is by far the most common
// real-world dialect.
var candidateDelimiters = []byte{',', '\t', ';', '|'}

// Result is the detected dialect plus whether the first row reads as a
// header row.
type Result struct {
	Dialect   bytescan.Dialect
	HasHeader bool
}

// Detect sniffs a dialect from sample, which should be a prefix of the file
// of at most SampleSize bytes (the caller is responsible for not handing in
// more — Detect does not truncate).
func Detect(sample []byte) Result {
	terminator := detectTerminator(sample)
	delim := detectDelimiter(sample, terminator)
	d := bytescan.Dialect{Delimiter: delim, Quote: '"', Terminator: terminator}
	return Result{
		Dialect:   d,
		HasHeader: detectHeader(sample, d),
	}
}

// detectTerminator looks for the first CR or LF byte in sample and
// classifies the sequence it belongs to. Defaults to LF when sample has
// neither (e.g. a single-record file with no trailing newline).
func detectTerminator(sample []byte) bytescan.Terminator {
	for i, b := range sample {
		switch b {
		case '\r':
			if i+1 < len(sample) && sample[i+1] == '\n' {
				return bytescan.CRLF
			}
			return bytescan.CR
		case '\n':
			return bytescan.LF
		}
	}
	return bytescan.LF
}

// detectDelimiter scores each candidate by how consistently it appears
// across sample's lines, counting quote-aware occurrences so a delimiter
// byte inside a quoted field is never mistaken for a real field
// separator.
func detectDelimiter(sample []byte, term bytescan.Terminator) byte {
	lines := splitLines(sample, term)
	if len(lines) == 0 {
		return ','
	}

	type score struct {
		total      int
		consistent bool
	}
	scores := make(map[byte]score, len(candidateDelimiters))

	for _, delim := range candidateDelimiters {
		var counts []int
		for _, line := range lines {
			if len(line) == 0 {
				continue
			}
			counts = append(counts, countUnquoted(line, delim))
		}
		if len(counts) == 0 || counts[0] == 0 {
			continue
		}
		consistent := true
		for _, c := range counts[1:] {
			if c != counts[0] {
				consistent = false
				break
			}
		}
		total := counts[0]
		if consistent {
			total *= 10
		}
		scores[delim] = score{total: total, consistent: consistent}
	}

	best := byte(',')
	bestScore := 0
	for _, delim := range candidateDelimiters {
		if s, ok := scores[delim]; ok && s.total > bestScore {
			best = delim
			bestScore = s.total
		}
	}
	return best
}

// countUnquoted counts delim occurrences in line outside double-quoted
// spans.
func countUnquoted(line []byte, delim byte) int {
	count := 0
	inQuotes := false
	for _, b := range line {
		switch {
		case b == '"':
			inQuotes = !inQuotes
		case b == delim && !inQuotes:
			count++
		}
	}
	return count
}

// splitLines splits sample into lines on term, dropping the terminator
// bytes themselves. The last, possibly-partial line is kept (a truncated
// sample tail is still useful for delimiter-consistency scoring).
func splitLines(sample []byte, term bytescan.Terminator) [][]byte {
	var lines [][]byte
	start := 0
	for i := 0; i < len(sample); i++ {
		b := sample[i]
		isTerm := (term == bytescan.LF && b == '\n') ||
			(term == bytescan.CR && b == '\r') ||
			(term == bytescan.CRLF && b == '\r' && i+1 < len(sample) && sample[i+1] == '\n')
		if !isTerm {
			continue
		}
		lines = append(lines, sample[start:i])
		if term == bytescan.CRLF {
			i++
		}
		start = i + 1
	}
	if start < len(sample) {
		lines = append(lines, sample[start:])
	}
	return lines
}

// detectHeader classifies row 0's columns against rows 1..min(50, N)'s
// columns: if every column in row 0 classifies as STRING while at least one
// column in the body classifies as INT64, FLOAT64, or BOOL, row 0 reads as
// a header.
func detectHeader(sample []byte, d bytescan.Dialect) bool {
	lines := splitLines(sample, d.Terminator)
	if len(lines) < 2 {
		return false
	}

	first := splitFields(lines[0], d)
	if len(first) == 0 {
		return false
	}
	for _, f := range first {
		if typeinfer.Classify(f) != coltable.String {
			return false
		}
	}

	bodyEnd := len(lines)
	if bodyEnd > 51 { // row 0 plus up to 50 body rows
		bodyEnd = 51
	}
	for _, line := range lines[1:bodyEnd] {
		if len(line) == 0 {
			continue
		}
		for _, f := range splitFields(line, d) {
			switch typeinfer.Classify(f) {
			case coltable.Int64, coltable.Float64, coltable.Bool:
				return true
			}
		}
	}
	return false
}

// splitFields does a best-effort quote-aware split for sniffing purposes
// only — it strips a field's surrounding quote pair (if present) so
// typeinfer.Classify sees the same text a real parse would decode, but it
// does not unescape doubled quotes inside the field.
func splitFields(line []byte, d bytescan.Dialect) []string {
	var fields []string
	var cur strings.Builder
	inQuotes := false
	for _, b := range line {
		switch {
		case b == d.Quote:
			inQuotes = !inQuotes
			cur.WriteByte(b)
		case b == d.Delimiter && !inQuotes:
			fields = append(fields, unquote(cur.String(), d.Quote))
			cur.Reset()
		default:
			cur.WriteByte(b)
		}
	}
	fields = append(fields, unquote(cur.String(), d.Quote))
	return fields
}

func unquote(s string, quote byte) string {
	if len(s) >= 2 && s[0] == quote && s[len(s)-1] == quote {
		return s[1 : len(s)-1]
	}
	return s
}

// HeaderConverter transforms a raw header name.
type HeaderConverter func(string) string

// LowercaseHeader lowercases a header name.
func LowercaseHeader(s string) string { return strings.ToLower(s) }

// SnakeCaseHeader converts a header name to snake_case.
func SnakeCaseHeader(s string) string {
	var out strings.Builder
	prevSpace := false
	for i, ch := range s {
		if ch == ' ' {
			if out.Len() > 0 && !prevSpace {
				out.WriteRune('_')
			}
			prevSpace = true
			continue
		}
		if unicode.IsUpper(ch) && i > 0 && !prevSpace {
			out.WriteRune('_')
		}
		out.WriteRune(unicode.ToLower(ch))
		prevSpace = false
	}
	return out.String()
}
