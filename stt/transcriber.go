// Package stt turns canonical waveform files into text.
package stt

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mrsingh-rishi/voice-agent/model"
)

// Transcriber joins a recognizer's segments into one transcript and keeps an
// optional archive copy of every recording it understood.
type Transcriber struct {
	recognizer Recognizer
	archive    *Archive
	log        zerolog.Logger
}

// NewTranscriber wraps r. archive may be nil.
func NewTranscriber(r Recognizer, archive *Archive, log zerolog.Logger) *Transcriber {
	return &Transcriber{
		recognizer: r,
		archive:    archive,
		log:        log.With().Str("component", "transcriber").Logger(),
	}
}

// Transcribe returns the trimmed transcript of the file at path. On failure
// the text is "" and the error has KindTranscriptionFailure; it never panics.
func (t *Transcriber) Transcribe(ctx context.Context, path string) (text string, err error) {
	const op = "stt.Transcribe"
	defer func() {
		if p := recover(); p != nil {
			text, err = "", model.NewError(model.KindTranscriptionFailure, op, fmt.Errorf("panic: %v", p))
		}
	}()

	segments, err := t.recognizer.Recognize(ctx, path)
	if err != nil {
		return "", model.NewError(model.KindTranscriptionFailure, op, err)
	}

	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.Text)
	}
	text = strings.TrimSpace(b.String())

	if t.archive != nil {
		saved, err := t.archive.Save(path)
		if err != nil {
			t.log.Warn().Err(err).Str("path", path).Msg("failed to archive recording")
		} else {
			t.log.Debug().Str("archive", saved).Msg("recording archived")
		}
	}

	return text, nil
}
