package stt

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
)

// WhisperRecognizer calls an OpenAI-compatible transcription endpoint. Any
// server speaking the same API (faster-whisper-server, whisper.cpp server)
// works by pointing BaseURL at it.
type WhisperRecognizer struct {
	client   *openai.Client
	model    string
	language string
}

// NewWhisperRecognizer creates a recognizer. An empty baseURL keeps the
// OpenAI default and an empty model selects whisper-1.
func NewWhisperRecognizer(apiKey, baseURL, model, language string) *WhisperRecognizer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperRecognizer{
		client:   openai.NewClientWithConfig(cfg),
		model:    model,
		language: language,
	}
}

func (w *WhisperRecognizer) Recognize(ctx context.Context, path string) ([]Segment, error) {
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: path,
		Language: w.language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, errors.Wrap(err, "whisper transcription")
	}

	segments := make([]Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segments = append(segments, Segment{
			Text:  s.Text,
			Start: seconds(s.Start),
			End:   seconds(s.End),
		})
	}
	if len(segments) == 0 && resp.Text != "" {
		segments = append(segments, Segment{Text: resp.Text, End: seconds(resp.Duration)})
	}
	return segments, nil
}
