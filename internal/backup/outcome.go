package backup

import (
	"errors"
	"fmt"
)

// Outcome is the result of executing a job. Exactly one of the success
// fields or Message is meaningful, selected by Failed. Build one with
// Succeeded or Failed; the zero value reads as a success with no sizes.
type Outcome struct {
	failed      bool
	SourceBytes uint64
	ResultBytes uint64
	Message     string
}

// Succeeded returns a successful outcome with the measured sizes.
func Succeeded(sourceBytes, resultBytes uint64) Outcome {
	return Outcome{SourceBytes: sourceBytes, ResultBytes: resultBytes}
}

// Failed returns a failed outcome carrying msg.
func Failed(msg string) Outcome {
	if msg == "" {
		msg = "backup failed"
	}
	return Outcome{failed: true, Message: msg}
}

// FailedWith returns a failed outcome describing err.
func FailedWith(err error) Outcome {
	if err == nil {
		return Failed("")
	}
	return Failed(err.Error())
}

// Failed reports whether the backup did not succeed.
func (o Outcome) Failed() bool {
	return o.failed
}

func (o Outcome) String() string {
	if o.failed {
		return "failure: " + o.Message
	}
	return fmt.Sprintf("success: source=%d result=%d", o.SourceBytes, o.ResultBytes)
}

// ErrorKind classifies failures captured into an Outcome.
type ErrorKind string

const (
	KindPrecondition ErrorKind = "precondition"
	KindIO           ErrorKind = "io"
	KindSubprocess   ErrorKind = "subprocess"
)

// Error is a classified backup failure. Its message is what ends up in the report.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func preconditionf(format string, args ...any) error {
	return &Error{Kind: KindPrecondition, Msg: fmt.Sprintf(format, args...)}
}

func ioError(msg string, err error) error {
	return &Error{Kind: KindIO, Msg: msg, Err: err}
}

func subprocessError(msg string, err error) error {
	return &Error{Kind: KindSubprocess, Msg: msg, Err: err}
}

// KindOf returns the classification of err, or "" if it is not a backup error.
func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}
