package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
)

// Kind classifies engine failures.
type Kind int

const (
	KindUnknown Kind = iota
	// KindGridGeneration covers malformed bounding boxes and degenerate paths.
	KindGridGeneration
	// KindInvalidInput covers missing paths, too few waypoints or stations.
	KindInvalidInput
	// KindVisibilityAnalysis covers runs aborted mid-way.
	KindVisibilityAnalysis
	// KindMapInteraction is reserved for the rendering side.
	KindMapInteraction
)

func (k Kind) String() string {
	switch k {
	case KindGridGeneration:
		return "grid_generation"
	case KindInvalidInput:
		return "invalid_input"
	case KindVisibilityAnalysis:
		return "visibility_analysis"
	case KindMapInteraction:
		return "map_interaction"
	default:
		return "unknown"
	}
}

// Error is the engine's error type. The optional fields carry whatever
// state the caller needs to act without re-deriving it.
type Error struct {
	Kind         Kind
	Op           string
	Msg          string
	Bounds       *orb.Bound
	PathLength   int
	StationCount int
	Err          error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Bounds != nil {
		fmt.Fprintf(&b, " (bounds [%.6f,%.6f,%.6f,%.6f])", e.Bounds.Min[0], e.Bounds.Min[1], e.Bounds.Max[0], e.Bounds.Max[1])
	}
	if e.PathLength > 0 {
		fmt.Fprintf(&b, " (path points %d)", e.PathLength)
	}
	if e.StationCount > 0 {
		fmt.Fprintf(&b, " (stations %d)", e.StationCount)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether re-invoking the same call can succeed without
// changing its inputs. Only aborted analyses qualify, and only by restart.
func (e *Error) Retryable() bool { return false }

// ErrAborted is wrapped by every cancellation failure.
var ErrAborted = errors.New("analysis aborted")

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// GridError builds a KindGridGeneration error.
func GridError(op, msg string, b *orb.Bound) *Error {
	return &Error{Kind: KindGridGeneration, Op: op, Msg: msg, Bounds: b}
}

// InputError builds a KindInvalidInput error.
func InputError(op, msg string) *Error {
	return &Error{Kind: KindInvalidInput, Op: op, Msg: msg}
}

// AbortError builds a KindVisibilityAnalysis error wrapping ErrAborted and
// the context cause.
func AbortError(op string, processed, total int, cause error) *Error {
	err := ErrAborted
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrAborted, cause)
	}
	return &Error{
		Kind: KindVisibilityAnalysis,
		Op:   op,
		Msg:  fmt.Sprintf("stopped after %d of %d items", processed, total),
		Err:  err,
	}
}
