package model

import (
	stderrors "errors"
	"fmt"
)

// Kind is a stable, machine readable error category reported to clients.
type Kind string

const (
	KindUnsupportedAudioFormat Kind = "unsupported_audio_format"
	KindTranscriptionFailure   Kind = "transcription_failure"
	KindDenoiseFailure         Kind = "denoise_failure"
	KindDialogueFailure        Kind = "dialogue_service_failure"
	KindSynthesisFailure       Kind = "synthesis_failure"
	KindInvalidRequest         Kind = "invalid_request"
)

// Error ties a failure to its Kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// NewError wraps err with a kind and operation name.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
