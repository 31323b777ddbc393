package tts

import (
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
)

// OpenAISynthesizer uses the audio/speech endpoint of OpenAI or any
// compatible server.
type OpenAISynthesizer struct {
	client *openai.Client
	model  openai.SpeechModel
	voice  openai.SpeechVoice
}

func NewOpenAISynthesizer(apiKey, baseURL, model, voice string) *OpenAISynthesizer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	s := &OpenAISynthesizer{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.SpeechModel(model),
		voice:  openai.SpeechVoice(voice),
	}
	if s.model == "" {
		s.model = openai.TTSModel1
	}
	if s.voice == "" {
		s.voice = openai.VoiceAlloy
	}
	return s
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string, w io.Writer) error {
	return s.SynthesizeVoice(ctx, text, string(s.voice), w)
}

func (s *OpenAISynthesizer) SynthesizeVoice(ctx context.Context, text, voice string, w io.Writer) error {
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatWav,
	})
	if err != nil {
		return errors.Wrap(err, "create speech")
	}
	defer resp.Close()

	_, err = io.Copy(w, resp)
	return errors.Wrap(err, "read speech")
}
