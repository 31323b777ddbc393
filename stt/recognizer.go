package stt

import (
	"context"
	"time"
)

// Segment is one recognized stretch of speech. Text keeps whatever leading
// whitespace the recognizer produced so segments join without a separator.
type Segment struct {
	Text       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// Recognizer converts a waveform file into ordered text segments.
type Recognizer interface {
	Recognize(ctx context.Context, path string) ([]Segment, error)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
