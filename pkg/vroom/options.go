package vroom

import (
	"errors"
	"runtime"

	"github.com/shapestone/vroom/internal/coltable"
	"github.com/shapestone/vroom/internal/dialectdetect"
	"github.com/shapestone/vroom/internal/driver"
)

// BadLineMode names a policy for a ragged or otherwise malformed row.
// ReadCSV and ReadCSVRows do not read Options.BadLine: a ragged row always
// aborts the read with a *ParseError unless AllowRagged is set, whatever
// mode is chosen.
type BadLineMode int

const (
	// BadLineError names aborting the read with a *ParseError (default).
	BadLineError BadLineMode = iota
	// BadLineWarn names reporting the row via OnWarning and skipping it.
	BadLineWarn
	// BadLineSkip names skipping the row silently.
	BadLineSkip
)

func (m BadLineMode) String() string {
	switch m {
	case BadLineError:
		return "error"
	case BadLineWarn:
		return "warn"
	case BadLineSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// ColSelector identifies one UseCols entry, either by header name or by
// zero-based position. Construct one with ColByName or ColByIndex.
type ColSelector struct {
	name    string
	index   int
	byIndex bool
}

// ColByName selects a column by its header name (after HeaderConverter, if
// any, has been applied).
func ColByName(name string) ColSelector { return ColSelector{name: name} }

// ColByIndex selects a column by its zero-based position in the detected
// schema.
func ColByIndex(i int) ColSelector { return ColSelector{index: i, byIndex: true} }

func (c ColSelector) toDriver() driver.ColSelector {
	return driver.ColSelector{Name: c.name, Index: c.index, ByIndex: c.byIndex}
}

// ProgressFunc receives byte and row counts; ReadCSV calls it once, after
// the read completes, with the input's total bytes and the rows returned.
type ProgressFunc func(bytesScanned, rowsScanned int64)

// WarningFunc is the callback type of Options.OnWarning, which ReadCSV and
// ReadCSVRows never call.
type WarningFunc func(line int64, message string)

// Options configures ReadCSV and ReadCSVRows.
type Options struct {
	// Delimiter is the field separator byte. Zero means auto-detect with
	// the same sniffing DetectDialect uses.
	Delimiter byte
	// Quote is the quote byte. Default '"'.
	Quote byte
	// HasHeader, when nil, is auto-detected; when set, overrides detection.
	HasHeader *bool
	// NumThreads bounds worker parallelism. 0 means runtime.NumCPU().
	NumThreads int
	// MemoryMap, when nil, is auto-decided: mmap-backed input for files at
	// or above driver.MmapThreshold, a full read otherwise. Set explicitly
	// to force one or the other. Ignored on platforms without mmap support
	// (falls back to a full read).
	MemoryMap *bool
	// SkipRows is the number of leading data rows to discard, counted after
	// the header (if any).
	SkipRows int64
	// NRows, if positive, stops reading after this many data rows.
	NRows int64
	// UseCols projects the output to the given columns, kept in schema
	// order whatever order they are listed in. Empty means all columns. An unknown name produces an
	// *UnknownColumnError; an out-of-range index produces a
	// *ColumnIndexError.
	UseCols []ColSelector
	// InferTypes controls whether columns are type-inferred (true) or kept
	// as String (false).
	InferTypes bool
	// TypeInferenceRows bounds how many rows are sampled for inference. 0
	// means scan every row.
	TypeInferenceRows int
	// NullValues overrides the default NULL token set.
	NullValues []string
	// EmptyIsNull controls whether "" reads as NULL. Default true.
	EmptyIsNull bool
	// Dtype forces specific columns to a chosen type rather than trusting
	// inference.
	Dtype map[string]coltable.LogicalType
	// HeaderConverter optionally rewrites header names (e.g.
	// dialectdetect.SnakeCaseHeader).
	HeaderConverter dialectdetect.HeaderConverter
	// BadLine holds a ragged-row policy; ReadCSV and ReadCSVRows do not
	// read it.
	BadLine BadLineMode
	// AllowRagged, when true, pads/truncates ragged rows instead of
	// failing the read with a *ParseError.
	AllowRagged bool
	// ChunkTargetBytes is the approximate chunk size ChunkPlanner aims for.
	// 0 means max(1 MiB, len(data)/(4*resolvedThreads())), computed once the
	// input length is known.
	ChunkTargetBytes int64
	// Verbose is not read by ReadCSV or ReadCSVRows and has no effect.
	Verbose bool
	// OnProgress, if set, is called once when the read completes, with
	// the input's total bytes and the number of rows returned.
	OnProgress ProgressFunc
	// OnWarning is not called by ReadCSV or ReadCSVRows.
	OnWarning WarningFunc
}

// DefaultOptions returns vroom's default configuration.
func DefaultOptions() Options {
	return Options{
		Delimiter:         0, // auto-detect
		Quote:             '"',
		HasHeader:         nil, // auto-detect
		NumThreads:        0,   // runtime.NumCPU()
		MemoryMap:         nil, // auto: mmap for files >= driver.MmapThreshold
		SkipRows:          0,
		NRows:             0,
		InferTypes:        true,
		TypeInferenceRows: 1000,
		NullValues:        append([]string(nil), coltable.DefaultNullTokens...),
		EmptyIsNull:       true,
		BadLine:           BadLineError,
		AllowRagged:       false,
		ChunkTargetBytes:  0, // computed from input length and thread count
	}
}

// Validate checks Options for internally-consistent values before any I/O
// happens. It returns an *OptionsError on the first problem found.
func (o Options) Validate() error {
	if o.Delimiter != 0 && o.Quote != 0 && o.Delimiter == o.Quote {
		return &OptionsError{Field: "Delimiter", Value: o.Delimiter, Err: errSameAsQuote}
	}
	if o.NumThreads < 0 {
		return &OptionsError{Field: "NumThreads", Value: o.NumThreads, Err: errNegative}
	}
	if o.SkipRows < 0 {
		return &OptionsError{Field: "SkipRows", Value: o.SkipRows, Err: errNegative}
	}
	if o.NRows < 0 {
		return &OptionsError{Field: "NRows", Value: o.NRows, Err: errNegative}
	}
	if o.TypeInferenceRows < 0 {
		return &OptionsError{Field: "TypeInferenceRows", Value: o.TypeInferenceRows, Err: errNegative}
	}
	if o.ChunkTargetBytes < 0 {
		return &OptionsError{Field: "ChunkTargetBytes", Value: o.ChunkTargetBytes, Err: errNegative}
	}
	return nil
}

// resolvedThreads returns NumThreads, or runtime.NumCPU() when NumThreads
// is 0.
func (o Options) resolvedThreads() int {
	if o.NumThreads > 0 {
		return o.NumThreads
	}
	return runtime.NumCPU()
}

var (
	errSameAsQuote = errors.New("delimiter and quote must differ")
	errNegative    = errors.New("must not be negative")
)
