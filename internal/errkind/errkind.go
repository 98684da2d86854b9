// Package errkind classifies the domain-level error kinds the core engine
// surfaces, independent of any single phase or adapter's own error type.
package errkind

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is a domain-level error classification (spec.md §7).
type Kind int

const (
	// Unknown is the zero value; never produced deliberately.
	Unknown Kind = iota
	// ValidationFailed covers a bad plan spec: invalid producer id, unknown
	// dependency, duplicate id. Returned synchronously from enqueue.
	ValidationFailed
	// DependencyFailed marks a node blocked because a dependency failed or
	// was canceled.
	DependencyFailed
	// PhaseFailed wraps any phase executor returning success=false.
	PhaseFailed
	// MergeConflict surfaces inside merge-fi/merge-ri.
	MergeConflict
	// TreeValidationAborted means the merge result's file-count ratio fell
	// below the 0.80 floor on a >10-file parent; the ref was not moved.
	TreeValidationAborted
	// WorkingTreeUnsafe means a snapshot precheck found uncommitted changes
	// on the target branch; callers should not auto-heal.
	WorkingTreeUnsafe
	// FinalMergeExhausted means the final merge executor used up its
	// bounded retries; the plan sits in awaiting-final-merge.
	FinalMergeExhausted
	// Canceled is cooperative cancellation; never retried automatically.
	Canceled
	// Transient is a git temporary failure (index lock, network); callers
	// may retry.
	Transient
	// NotFound means a referenced plan or node id does not exist.
	NotFound
)

func (k Kind) String() string {
	switch k {
	case ValidationFailed:
		return "ValidationFailed"
	case DependencyFailed:
		return "DependencyFailed"
	case PhaseFailed:
		return "PhaseFailed"
	case MergeConflict:
		return "MergeConflict"
	case TreeValidationAborted:
		return "TreeValidationAborted"
	case WorkingTreeUnsafe:
		return "WorkingTreeUnsafe"
	case FinalMergeExhausted:
		return "FinalMergeExhausted"
	case Canceled:
		return "Canceled"
	case Transient:
		return "Transient"
	case NotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}

// kindError wraps an underlying error with a Kind, preserving the chain for
// errors.Is/errors.As/errors.Unwrap.
type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string {
	if e.err == nil {
		return e.kind.String()
	}
	return fmt.Sprintf("%s: %s", e.kind, e.err)
}

func (e *kindError) Unwrap() error { return e.err }

// Wrap attaches kind to err. Wrapping a nil error returns nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// New creates a Kind error from a message, with no wrapped cause.
func New(kind Kind, msg string) error {
	return &kindError{kind: kind, err: errors.New(msg)}
}

// As reports the Kind attached to err, if any, walking the unwrap chain.
func As(err error) (Kind, bool) {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind, true
	}
	return Unknown, false
}

// transientPatterns are stderr substrings that indicate a retryable git
// failure. Mirrors the teacher's internal/git.transientPatterns.
var transientPatterns = []string{
	"index file open failed",
	"index.lock",
	"cannot lock ref",
	"unable to create",
}

// IsTransientMessage reports whether a git stderr message matches a known
// transient failure, for callers classifying raw git output.
func IsTransientMessage(msg string) bool {
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
