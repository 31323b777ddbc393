package conversation

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mrsingh-rishi/voice-agent/audio"
	"github.com/mrsingh-rishi/voice-agent/config"
	"github.com/mrsingh-rishi/voice-agent/llm"
	"github.com/mrsingh-rishi/voice-agent/pipeline"
	"github.com/mrsingh-rishi/voice-agent/stt"
	"github.com/mrsingh-rishi/voice-agent/tts"
	"github.com/mrsingh-rishi/voice-agent/workers"
)

// Observer is what Build needs from the metrics collector.
type Observer interface {
	Recorder
	pipeline.Observer
}

func NewRecognizer(cfg config.STTConfig, log zerolog.Logger) (stt.Recognizer, error) {
	switch cfg.Provider {
	case "whisper":
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("stt: whisper needs an API key or a base_url")
		}
		return stt.NewWhisperRecognizer(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Language), nil
	case "deepgram":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("stt: deepgram API key is required")
		}
		dg := stt.NewDeepgramRecognizer(cfg.APIKey, cfg.Language, log)
		if cfg.BaseURL != "" {
			dg.Endpoint = cfg.BaseURL
		}
		if cfg.Model != "" {
			dg.Model = cfg.Model
		}
		return dg, nil
	default:
		return nil, fmt.Errorf("stt: unknown provider %q", cfg.Provider)
	}
}

func NewChatClient(cfg config.LLMConfig) (llm.ChatClient, error) {
	switch cfg.Provider {
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = llm.DefaultOllamaBaseURL
		}
		return llm.NewOpenAIClient(cfg.APIKey, baseURL, cfg.Model, cfg.MaxTokens)
	case "openai":
		return llm.NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.MaxTokens)
	case "anthropic":
		return llm.NewAnthropicClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

func NewSynthesizer(cfg config.TTSConfig) (tts.Synthesizer, error) {
	switch cfg.Provider {
	case "elevenlabs":
		voice := cfg.Voice
		if voice == "" {
			voice = tts.DefaultElevenLabsVoice
		}
		client, err := tts.NewElevenLabsClient(cfg.APIKey, voice, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("tts: %w", err)
		}
		if cfg.BaseURL != "" {
			client.BaseURL = cfg.BaseURL
		}
		return client, nil
	case "openai":
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("tts: openai needs an API key or a base_url")
		}
		return tts.NewOpenAISynthesizer(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Voice), nil
	default:
		return nil, fmt.Errorf("tts: unknown provider %q", cfg.Provider)
	}
}

// Build wires a coordinator and, when archive retention is configured, the
// worker that prunes the archive. The archive worker may be nil.
func Build(cfg *config.Config, obs Observer, log zerolog.Logger) (*Coordinator, *workers.ArchiveWorker, error) {
	recognizer, err := NewRecognizer(cfg.STT, log)
	if err != nil {
		return nil, nil, err
	}
	chat, err := NewChatClient(cfg.LLM)
	if err != nil {
		return nil, nil, err
	}
	synth, err := NewSynthesizer(cfg.TTS)
	if err != nil {
		return nil, nil, err
	}

	var archive *stt.Archive
	var archiveWorker *workers.ArchiveWorker
	if cfg.Archive.Enabled {
		archive, err = stt.NewArchive(cfg.Archive.Dir)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Archive.Retain > 0 {
			archiveWorker, err = workers.NewArchiveWorker(archive, cfg.Archive.Schedule, cfg.Archive.Retain, log)
			if err != nil {
				return nil, nil, err
			}
		}
	}

	var fallback audio.Transcoder
	if cfg.Audio.FFmpegPath != "" {
		fallback = audio.FFmpeg{Binary: cfg.Audio.FFmpegPath}
	}
	dialogue := llm.NewDialogue(chat, log)

	p := pipeline.New(log, obs,
		pipeline.NormalizeStage(audio.NewNormalizer(cfg.Audio.TempDir, fallback, log), cfg.Timeouts.Normalize),
		pipeline.DenoiseStage(audio.NewNoiseReducer(cfg.Audio.NoiseSeconds, cfg.Audio.PropDecrease), cfg.Timeouts.Denoise),
		pipeline.TranscribeStage(stt.NewTranscriber(recognizer, archive, log), cfg.Timeouts.Transcribe),
		pipeline.ReplyStage(dialogue, cfg.Timeouts.Dialogue),
	)

	coord, err := New(p, dialogue, tts.NewSpeaker(synth, log), Options{
		TurnLimit:         cfg.Session.TurnLimit,
		DialogueTimeout:   cfg.Timeouts.Dialogue,
		SynthesizeTimeout: cfg.Timeouts.Synthesize,
		Recorder:          obs,
	}, log)
	if err != nil {
		return nil, nil, err
	}
	return coord, archiveWorker, nil
}
