package bytescan

import (
	"math/bits"

	"github.com/klauspost/cpuid/v2"
)

// wordSize is the width, in bytes, of the SWAR (SIMD-within-a-register)
// classification word. Every byte of input is classified 8 at a time by
// broadcasting each structural character across a uint64 and using the
// classic "has zero byte" trick.
const wordSize = 8

// HasWideRegisters reports whether the running CPU exposes wide enough
// vector registers (AVX2 or better) that a true SIMD backend would pay
// off. vroom does not carry per-arch assembly; this is a diagnostic a
// caller can use to report on or tune around, not something that gates
// any actual code path today.
func HasWideRegisters() bool {
	return cpuid.CPU.Supports(cpuid.AVX2)
}

// Masks holds the structural-character bit positions for one word-aligned
// run of input, one bit per byte (bit i set means byte i is that class).
type Masks struct {
	Quote uint64
	Delim uint64
	CR    uint64
	LF    uint64
}

// ScanMasks classifies up to 64 bytes of data (one bitmap word) against the
// dialect's delimiter and quote bytes plus CR/LF, using branch-light SWAR
// comparison instead of a per-byte switch. Bits beyond len(data) (when data
// is shorter than 64 bytes) are always zero.
//
// This is Stage 1 of a two-stage scan: Stage 1 finds *where* the
// structural bytes are; Scan (Stage 2) walks the resulting positions to
// run the quote-state machine, which is inherently serial and cannot
// itself be vectorized.
func ScanMasks(data []byte, d Dialect) Masks {
	var m Masks
	n := len(data)
	if n > 64 {
		n = 64
	}

	i := 0
	for ; i+wordSize <= n; i += wordSize {
		chunk := le64(data[i : i+wordSize])
		m.Quote |= hasByteMask(chunk, d.Quote) << uint(i)
		m.Delim |= hasByteMask(chunk, d.Delimiter) << uint(i)
		m.CR |= hasByteMask(chunk, '\r') << uint(i)
		m.LF |= hasByteMask(chunk, '\n') << uint(i)
	}
	for ; i < n; i++ {
		b := data[i]
		bit := uint64(1) << uint(i)
		switch b {
		case d.Quote:
			m.Quote |= bit
		case d.Delimiter:
			m.Delim |= bit
		case '\r':
			m.CR |= bit
		case '\n':
			m.LF |= bit
		}
	}
	return m
}

// le64 loads up to 8 bytes little-endian, zero-padding short tails. The
// caller only uses this when a full 8-byte window is available.
func le64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8 && i < len(b); i++ {
		v |= uint64(b[i]) << uint(8*i)
	}
	return v
}

// hasByteMask returns, as an 8-bit-per-lane mask packed in the low byte of
// each lane, which of the 8 bytes packed in word equal target. This is the
// SWAR "does any byte equal target" trick: broadcast target to all lanes,
// XOR, then detect zero bytes with a per-lane add that cannot carry into
// the next lane, so a match never flags its neighbour.
func hasByteMask(word uint64, target byte) uint64 {
	broadcast := uint64(target) * 0x0101010101010101
	xor := word ^ broadcast
	const low7 = 0x7F7F7F7F7F7F7F7F
	eqZero := ^(((xor & low7) + low7) | xor | low7)
	// Reduce each lane's high bit to a single per-byte indicator bit.
	var out uint64
	for eqZero != 0 {
		lane := bits.TrailingZeros64(eqZero) / 8
		out |= 1 << uint(lane)
		eqZero &^= uint64(0x80) << uint(lane*8)
	}
	return out
}
