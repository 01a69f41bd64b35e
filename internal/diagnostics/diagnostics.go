// Package diagnostics defines the closed SkipReason set and the sorted,
// deterministic diagnostic stream described in spec.md §4.2 and §6.
package diagnostics

import (
	"sort"

	"github.com/oldnordic/magellan-sub003/internal/magerr"
)

// SkipReason is the closed set of reasons a path can be skipped, with
// stable serialization (spec.md §4.2).
type SkipReason string

const (
	IgnoredInternal     SkipReason = "IgnoredInternal"
	IgnoredByGitignore  SkipReason = "IgnoredByGitignore"
	IgnoredByInclude    SkipReason = "IgnoredByInclude"
	IgnoredByExclude    SkipReason = "IgnoredByExclude"
	UnsupportedLanguage SkipReason = "UnsupportedLanguage"
	TooLarge            SkipReason = "TooLarge"
	NonUtf8Path         SkipReason = "NonUtf8Path"
	PathEscape          SkipReason = "PathEscape"
	SuspiciousTraversal SkipReason = "SuspiciousTraversal"
	IoError             SkipReason = "IoError"
)

// ReasonForCode maps a Path Gate magerr.Code (spec.md §4.1's closed
// OutsideRoot/SymlinkEscape/CannotCanonicalize/SuspiciousTraversal error
// set, as narrowed by internal/pathgate) to the corresponding diagnostic
// SkipReason, so a gate rejection keeps its distinct reason instead of
// collapsing to IoError (spec.md §8 scenario 3 requires a PATH_ESCAPE-
// class reason for a symlink escape; §4.1 requires non-UTF-8 paths to
// get their own reason). CannotCanonicalize and codes outside the Path
// Gate's taxonomy (store failures, etc.) fall back to IoError, the closed
// set's catch-all.
func ReasonForCode(code magerr.Code) SkipReason {
	switch code {
	case magerr.CodePathEscape:
		return PathEscape
	case magerr.CodeSuspiciousTraversal:
		return SuspiciousTraversal
	case magerr.CodeNonUtf8Path:
		return NonUtf8Path
	default:
		return IoError
	}
}

// Stage is where in the pipeline a diagnostic was recorded.
type Stage string

const (
	StageScan  Stage = "Scan"
	StageWatch Stage = "Watch"
	StageIndex Stage = "Index"
)

// Record is one diagnostic entry (spec.md §6).
type Record struct {
	Path    string     `json:"path"`
	Stage   Stage      `json:"stage"`
	Reason  SkipReason `json:"reason"`
	Message string     `json:"message"`
}

// Sink accumulates diagnostics and sorts them deterministically at
// emission time, guarded by the caller (Sink itself is not goroutine-safe;
// the single cooperative indexing thread owns it, per spec.md §5).
type Sink struct {
	records []Record
}

// NewSink returns an empty diagnostic sink.
func NewSink() *Sink {
	return &Sink{}
}

// Add records a diagnostic.
func (s *Sink) Add(r Record) {
	s.records = append(s.records, r)
}

// Len reports how many diagnostics have been recorded so far.
func (s *Sink) Len() int {
	return len(s.records)
}

// Sorted returns diagnostics sorted by (stage, path, reason), per spec.md
// §6's "Diagnostics are sorted by (stage, path, reason) before emission."
func (s *Sink) Sorted() []Record {
	out := make([]Record, len(s.records))
	copy(out, s.records)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stage != out[j].Stage {
			return out[i].Stage < out[j].Stage
		}
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Reason < out[j].Reason
	})
	return out
}

// WarningReason is the closed set of non-fatal warnings emitted during
// cross-file resolution (spec.md §4.9/§4.10/§9): FQN collisions,
// unresolved imports, and unresolved callees. Warnings never alter exit
// codes.
type WarningReason string

const (
	WarnFQNCollision     WarningReason = "FQNCollision"
	WarnUnresolvedImport WarningReason = "UnresolvedImport"
	WarnUnresolvedCallee WarningReason = "UnresolvedCallee"
)

// Warning is one non-fatal diagnostic entry distinct from a skipped-path
// Record: it names the FQN/import/callee involved rather than a path
// alone, though Path is still carried for sort ordering and display.
type Warning struct {
	Path    string        `json:"path"`
	Stage   Stage         `json:"stage"`
	Reason  WarningReason `json:"reason"`
	Message string        `json:"message"`
}

// WarningSink accumulates warnings and sorts them deterministically at
// emission time, mirroring Sink. Owned by the single cooperative
// indexing thread; not goroutine-safe.
type WarningSink struct {
	warnings []Warning
}

// NewWarningSink returns an empty warning sink.
func NewWarningSink() *WarningSink {
	return &WarningSink{}
}

// Add records a warning.
func (s *WarningSink) Add(w Warning) {
	s.warnings = append(s.warnings, w)
}

// Len reports how many warnings have been recorded so far.
func (s *WarningSink) Len() int {
	return len(s.warnings)
}

// Sorted returns warnings sorted by (stage, path, reason), mirroring
// Sink.Sorted's ordering contract.
func (s *WarningSink) Sorted() []Warning {
	out := make([]Warning, len(s.warnings))
	copy(out, s.warnings)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stage != out[j].Stage {
			return out[i].Stage < out[j].Stage
		}
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Reason < out[j].Reason
	})
	return out
}
