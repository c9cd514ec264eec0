package detect

import (
	"github.com/pkg/errors"
)

// ErrDetection matches every *Failure via errors.Is.
var ErrDetection = errors.New("detection failure")

type Reason string

const (
	ReasonUnavailable    Reason = "unavailable"
	ReasonTimeout        Reason = "timeout"
	ReasonCanceled       Reason = "canceled"
	ReasonOutputTooLarge Reason = "output_too_large"
	ReasonExit           Reason = "exit"
	ReasonMalformed      Reason = "malformed"
	ReasonReported       Reason = "reported"
)

// Failure is the single error kind detectors return. Message is safe to
// show to the uploader; Stderr and the cause are for logs only.
type Failure struct {
	Reason  Reason
	Message string
	Stderr  string
	cause   error
}

func fail(reason Reason, msg string, cause error) *Failure {
	if cause != nil {
		cause = errors.WithStack(cause)
	}
	return &Failure{Reason: reason, Message: msg, cause: cause}
}

func (f *Failure) Error() string {
	s := "detection failed (" + string(f.Reason) + "): " + f.Message
	if f.cause != nil {
		s += ": " + f.cause.Error()
	}
	return s
}

func (f *Failure) Unwrap() error { return f.cause }

func (f *Failure) Is(target error) bool { return target == ErrDetection }

// ReasonOf returns the failure reason of err, or "" when err is not a detection failure.
func ReasonOf(err error) Reason {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	return ""
}
