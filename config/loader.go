package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "VOICE_AGENT"

var defaults = map[string]any{
	"server.addr":             ":8000",
	"server.body_limit_mb":    25,
	"server.shutdown_timeout": "10s",

	"session.turn_limit": 5,

	"log.level":     "info",
	"log.file":      "",
	"log.pretty":    true,
	"log.redaction": true,

	"audio.temp_dir":      "",
	"audio.ffmpeg_path":   "ffmpeg",
	"audio.noise_seconds": 0.5,
	"audio.prop_decrease": 0.7,

	"stt.provider": "whisper",
	"stt.api_key":  "",
	"stt.base_url": "",
	"stt.model":    "",
	"stt.language": "en",

	"llm.provider":   "ollama",
	"llm.api_key":    "",
	"llm.base_url":   "",
	"llm.model":      "bot",
	"llm.max_tokens": 256,

	"tts.provider": "elevenlabs",
	"tts.api_key":  "",
	"tts.base_url": "",
	"tts.model":    "",
	"tts.voice":    "",

	"archive.enabled":  true,
	"archive.dir":      "audio_files",
	"archive.retain":   0,
	"archive.schedule": "@hourly",

	"timeouts.normalize":  "30s",
	"timeouts.denoise":    "20s",
	"timeouts.transcribe": "60s",
	"timeouts.dialogue":   "60s",
	"timeouts.synthesize": "60s",
}

// Provider credentials are also read from the variables each service
// documents, after the VOICE_AGENT_* form. Only the variables of the
// selected provider are consulted.
var credentialEnv = map[string]map[string][]string{
	"stt": {
		"whisper":  {"OPENAI_API_KEY", "OPEN_AI_API_KEY"},
		"deepgram": {"DEEPGRAM_API_KEY"},
	},
	"llm": {
		"openai":    {"OPENAI_API_KEY", "OPEN_AI_API_KEY"},
		"anthropic": {"ANTHROPIC_API_KEY"},
	},
	"tts": {
		"elevenlabs": {"ELEVEN_LABS_API_KEY", "ELEVENLABS_API_KEY"},
		"openai":     {"OPENAI_API_KEY", "OPEN_AI_API_KEY"},
	},
}

// bindCredentials binds each section's api_key to the variables of its
// configured provider. It must run after the config file is read.
func bindCredentials(v *viper.Viper) error {
	for section, providers := range credentialEnv {
		key := section + ".api_key"
		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		names := append([]string{key, envKey}, providers[v.GetString(section+".provider")]...)
		if err := v.BindEnv(names...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// Load reads .env (if present), then the optional config file at path, then
// the environment. The result is validated.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	if err := bindCredentials(v); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
