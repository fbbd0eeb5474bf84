// Package stageerr classifies failures by the pipeline stage that raised them.
package stageerr

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
)

// Kind is the category of a stage failure.
type Kind int

const (
	Unknown Kind = iota
	Ingestion
	Transformation
	Training
	Evaluation
	Prediction
)

func (k Kind) String() string {
	switch k {
	case Ingestion:
		return "ingestion"
	case Transformation:
		return "transformation"
	case Training:
		return "training"
	case Evaluation:
		return "evaluation"
	case Prediction:
		return "prediction"
	default:
		return "unknown"
	}
}

// Error wraps the cause of a failed stage.
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

// New wraps err as a failure of stage. It returns nil when err is nil and
// leaves err untouched when it already carries a kind.
func New(kind Kind, stage string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}

	return &Error{Kind: kind, Stage: stage, Err: errors.WithStack(err)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error in %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Format prints the stack of the cause with %+v.
func (e *Error) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		fmt.Fprintf(s, "%s error in %s: %+v", e.Kind, e.Stage, e.Err)

		return
	}
	fmt.Fprint(s, e.Error())
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Location returns file:line of the innermost recorded wrap site outside this
// package, or an empty string when no stack was captured.
func (e *Error) Location() string {
	var deepest errors.StackTrace
	for err := error(e.Err); err != nil; err = errors.Unwrap(err) {
		if st, ok := err.(stackTracer); ok {
			deepest = st.StackTrace()
		}
	}

	for _, f := range deepest {
		pc := uintptr(f) - 1
		fn := runtime.FuncForPC(pc)
		if fn == nil || strings.Contains(fn.Name(), "/internal/stageerr.") {
			continue
		}
		file, line := fn.FileLine(pc)

		return fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}

	return ""
}

// KindOf returns the kind of the first stage error in the chain.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}

	return Unknown
}

// Is reports whether err is a stage error of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
