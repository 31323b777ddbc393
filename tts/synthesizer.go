// Package tts turns reply text into WAV audio.
package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/mrsingh-rishi/voice-agent/model"
)

// Synthesizer writes a complete WAV stream for text to w.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, w io.Writer) error
}

// VoiceSynthesizer is implemented by providers that can switch voices per
// request.
type VoiceSynthesizer interface {
	SynthesizeVoice(ctx context.Context, text, voice string, w io.Writer) error
}

// Speaker validates requests for a Synthesizer and buffers its output so a
// failed synthesis never leaves a half-written response behind.
type Speaker struct {
	synth Synthesizer
	log   zerolog.Logger
}

func NewSpeaker(s Synthesizer, log zerolog.Logger) *Speaker {
	return &Speaker{synth: s, log: log.With().Str("component", "speaker").Logger()}
}

// Speak returns the WAV bytes for text. voice is optional and only honoured
// by providers implementing VoiceSynthesizer. Errors carry
// KindSynthesisFailure.
func (s *Speaker) Speak(ctx context.Context, text, voice string) (wav []byte, err error) {
	const op = "tts.Speak"
	defer func() {
		if p := recover(); p != nil {
			wav, err = nil, model.NewError(model.KindSynthesisFailure, op, fmt.Errorf("panic: %v", p))
		}
	}()

	if strings.TrimSpace(text) == "" {
		return nil, model.NewError(model.KindSynthesisFailure, op, errors.New("no text to speak"))
	}

	var buf bytes.Buffer
	if vs, ok := s.synth.(VoiceSynthesizer); ok && voice != "" {
		err = vs.SynthesizeVoice(ctx, text, voice, &buf)
	} else {
		err = s.synth.Synthesize(ctx, text, &buf)
	}
	if err != nil {
		s.log.Error().Err(err).Int("chars", len(text)).Msg("speech synthesis failed")
		return nil, model.NewError(model.KindSynthesisFailure, op, err)
	}
	if buf.Len() == 0 {
		return nil, model.NewError(model.KindSynthesisFailure, op, errors.New("provider returned no audio"))
	}
	return buf.Bytes(), nil
}
