// Package config loads the agent's settings from defaults, an optional
// config file, .env and VOICE_AGENT_* environment variables.
package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server   ServerConfig   `json:"server" mapstructure:"server"`
	Session  SessionConfig  `json:"session" mapstructure:"session"`
	Log      LogConfig      `json:"log" mapstructure:"log"`
	Audio    AudioConfig    `json:"audio" mapstructure:"audio"`
	STT      STTConfig      `json:"stt" mapstructure:"stt"`
	LLM      LLMConfig      `json:"llm" mapstructure:"llm"`
	TTS      TTSConfig      `json:"tts" mapstructure:"tts"`
	Archive  ArchiveConfig  `json:"archive" mapstructure:"archive"`
	Timeouts TimeoutsConfig `json:"timeouts" mapstructure:"timeouts"`
}

type ServerConfig struct {
	Addr            string        `json:"addr" mapstructure:"addr"`
	BodyLimitMB     int           `json:"body_limit_mb" mapstructure:"body_limit_mb"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

type SessionConfig struct {
	TurnLimit int `json:"turn_limit" mapstructure:"turn_limit"`
}

type LogConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

type AudioConfig struct {
	TempDir      string  `json:"temp_dir" mapstructure:"temp_dir"`
	FFmpegPath   string  `json:"ffmpeg_path" mapstructure:"ffmpeg_path"` // empty disables the ffmpeg fallback
	NoiseSeconds float64 `json:"noise_seconds" mapstructure:"noise_seconds"`
	PropDecrease float64 `json:"prop_decrease" mapstructure:"prop_decrease"`
}

type STTConfig struct {
	Provider string `json:"provider" mapstructure:"provider"` // whisper, deepgram
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	BaseURL  string `json:"base_url" mapstructure:"base_url"`
	Model    string `json:"model" mapstructure:"model"`
	Language string `json:"language" mapstructure:"language"`
}

type LLMConfig struct {
	Provider  string `json:"provider" mapstructure:"provider"` // ollama, openai, anthropic
	APIKey    string `json:"api_key" mapstructure:"api_key"`
	BaseURL   string `json:"base_url" mapstructure:"base_url"`
	Model     string `json:"model" mapstructure:"model"`
	MaxTokens int    `json:"max_tokens" mapstructure:"max_tokens"`
}

type TTSConfig struct {
	Provider string `json:"provider" mapstructure:"provider"` // elevenlabs, openai
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	BaseURL  string `json:"base_url" mapstructure:"base_url"`
	Model    string `json:"model" mapstructure:"model"`
	Voice    string `json:"voice" mapstructure:"voice"`
}

type ArchiveConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Dir      string `json:"dir" mapstructure:"dir"`
	Retain   int    `json:"retain" mapstructure:"retain"` // 0 keeps everything
	Schedule string `json:"schedule" mapstructure:"schedule"`
}

type TimeoutsConfig struct {
	Normalize  time.Duration `json:"normalize" mapstructure:"normalize"`
	Denoise    time.Duration `json:"denoise" mapstructure:"denoise"`
	Transcribe time.Duration `json:"transcribe" mapstructure:"transcribe"`
	Dialogue   time.Duration `json:"dialogue" mapstructure:"dialogue"`
	Synthesize time.Duration `json:"synthesize" mapstructure:"synthesize"`
}

var (
	sttProviders = map[string]bool{"whisper": true, "deepgram": true}
	llmProviders = map[string]bool{"ollama": true, "openai": true, "anthropic": true}
	ttsProviders = map[string]bool{"elevenlabs": true, "openai": true}
)

// Validate rejects settings the agent cannot start with. Credentials are
// checked by the provider constructors instead.
func (c *Config) Validate() error {
	if c.Session.TurnLimit <= 0 {
		return fmt.Errorf("session.turn_limit must be positive, got %d", c.Session.TurnLimit)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr cannot be empty")
	}
	if c.Audio.PropDecrease < 0 || c.Audio.PropDecrease > 1 {
		return fmt.Errorf("audio.prop_decrease must be within [0, 1], got %v", c.Audio.PropDecrease)
	}
	if c.Audio.NoiseSeconds <= 0 {
		return fmt.Errorf("audio.noise_seconds must be positive, got %v", c.Audio.NoiseSeconds)
	}
	if !sttProviders[c.STT.Provider] {
		return fmt.Errorf("unknown stt.provider %q", c.STT.Provider)
	}
	if !llmProviders[c.LLM.Provider] {
		return fmt.Errorf("unknown llm.provider %q", c.LLM.Provider)
	}
	if !ttsProviders[c.TTS.Provider] {
		return fmt.Errorf("unknown tts.provider %q", c.TTS.Provider)
	}
	if c.Archive.Retain < 0 {
		return fmt.Errorf("archive.retain cannot be negative, got %d", c.Archive.Retain)
	}

	timeouts := map[string]time.Duration{
		"normalize":  c.Timeouts.Normalize,
		"denoise":    c.Timeouts.Denoise,
		"transcribe": c.Timeouts.Transcribe,
		"dialogue":   c.Timeouts.Dialogue,
		"synthesize": c.Timeouts.Synthesize,
	}
	for name, d := range timeouts {
		if d <= 0 {
			return fmt.Errorf("timeouts.%s must be positive, got %s", name, d)
		}
	}
	return nil
}
