package cirrus

import "strings"

// Status is the closed set of build states the orchestrator acts on. The
// remote API reports free-form strings; ParseStatus is the only place that
// interprets them.
type Status int

const (
	// StatusUnknown means the remote reported no status at all.
	StatusUnknown Status = iota
	// StatusPending covers every non-terminal remote state (created,
	// triggered, scheduled, executing, ...). Keep polling.
	StatusPending
	// StatusCompleted means the build finished and artifacts are available.
	StatusCompleted
	// StatusAborted means the build was cancelled remotely. Terminal.
	StatusAborted
	// StatusFailed means the build failed. Terminal.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusCompleted:
		return "COMPLETED"
	case StatusAborted:
		return "ABORTED"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the status ends an attempt.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAborted || s == StatusFailed
}

// ParseStatus maps a raw remote status string into the Status set.
//
// Cirrus reports "COMPLETED" today but has reported other "COMPLETE*"
// variants, so completion is a prefix match. Failure states come in several
// spellings ("FAILED", "failing"), hence the case-insensitive prefix.
func ParseStatus(raw string) Status {
	switch {
	case raw == "":
		return StatusUnknown
	case strings.HasPrefix(raw, "COMPLETE"):
		return StatusCompleted
	case raw == "ABORTED":
		return StatusAborted
	case strings.HasPrefix(strings.ToLower(raw), "fail"):
		return StatusFailed
	default:
		return StatusPending
	}
}
