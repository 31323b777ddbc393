package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrsingh-rishi/voice-agent/audio"
	"github.com/mrsingh-rishi/voice-agent/model"
)

func pcmChunk(samples ...int16) string {
	buf := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(s))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func TestElevenLabsClient_WrapsPCMIntoWAV(t *testing.T) {
	var gotPath, gotFormat, gotKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFormat = r.URL.Query().Get("output_format")
		gotKey = r.Header.Get("xi-api-key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		enc := json.NewEncoder(w)
		_ = enc.Encode(map[string]any{"audio_base64": pcmChunk(0, 1000, -1000, 2000)})
		_ = enc.Encode(map[string]any{"audio_base64": pcmChunk(16000, -16000)})
	}))
	defer srv.Close()

	client, err := NewElevenLabsClient("xi-key", "voice123", "")
	require.NoError(t, err)
	client.BaseURL = srv.URL

	var out bytes.Buffer
	require.NoError(t, client.Synthesize(context.Background(), "Hello there", &out))

	assert.Equal(t, "/v1/text-to-speech/voice123/stream/with-timestamps", gotPath)
	assert.Equal(t, "pcm_16000", gotFormat)
	assert.Equal(t, "xi-key", gotKey)
	assert.Equal(t, "Hello there", gotBody["text"])
	assert.Equal(t, DefaultElevenLabsModel, gotBody["model_id"])

	wav := out.Bytes()
	require.Greater(t, len(wav), 44)
	assert.Equal(t, "RIFF", string(wav[:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))

	w, err := audio.DecodeWAV(bytes.NewReader(wav))
	require.NoError(t, err)
	assert.Equal(t, 16000, w.SampleRate)
	assert.Len(t, w.Samples, 6)
}

func TestElevenLabsClient_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, err := NewElevenLabsClient("bad", "voice", "")
	require.NoError(t, err)
	client.BaseURL = srv.URL

	assert.Error(t, client.Synthesize(context.Background(), "hi", io.Discard))
}

func TestNewElevenLabsClient_Validation(t *testing.T) {
	_, err := NewElevenLabsClient("", "voice", "")
	assert.Error(t, err)
	_, err = NewElevenLabsClient("key", "", "")
	assert.Error(t, err)
}

func TestOpenAISynthesizer_CopiesAudio(t *testing.T) {
	var gotPath string
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("RIFF\x24\x00\x00\x00WAVE"))
	}))
	defer srv.Close()

	var out bytes.Buffer
	s := NewOpenAISynthesizer("sk", srv.URL+"/v1", "", "")
	require.NoError(t, s.SynthesizeVoice(context.Background(), "hi", "nova", &out))

	assert.Equal(t, "/v1/audio/speech", gotPath)
	assert.Equal(t, "nova", body["voice"])
	assert.Equal(t, "wav", body["response_format"])
	assert.Equal(t, "RIFF\x24\x00\x00\x00WAVE", out.String())
}

type fakeSynth struct {
	data   []byte
	err    error
	panics bool
	voice  string
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string, w io.Writer) error {
	if f.panics {
		panic("engine crashed")
	}
	if f.err != nil {
		return f.err
	}
	_, err := w.Write(f.data)
	return err
}

func (f *fakeSynth) SynthesizeVoice(ctx context.Context, text, voice string, w io.Writer) error {
	f.voice = voice
	return f.Synthesize(ctx, text, w)
}

func TestSpeaker_Speak(t *testing.T) {
	s := &fakeSynth{data: []byte("RIFFxxxxWAVE")}
	wav, err := NewSpeaker(s, zerolog.Nop()).Speak(context.Background(), "Hello", "")
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFFxxxxWAVE"), wav)
	assert.Equal(t, "", s.voice)
}

func TestSpeaker_PassesVoice(t *testing.T) {
	s := &fakeSynth{data: []byte("RIFF")}
	_, err := NewSpeaker(s, zerolog.Nop()).Speak(context.Background(), "Hello", "nova")
	require.NoError(t, err)
	assert.Equal(t, "nova", s.voice)
}

func TestSpeaker_Failures(t *testing.T) {
	tests := []struct {
		name  string
		synth *fakeSynth
		text  string
	}{
		{"empty text", &fakeSynth{data: []byte("RIFF")}, "  "},
		{"provider error", &fakeSynth{err: errors.New("quota exceeded")}, "hi"},
		{"no audio", &fakeSynth{}, "hi"},
		{"panic", &fakeSynth{panics: true}, "hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var wav []byte
			var err error
			assert.NotPanics(t, func() {
				wav, err = NewSpeaker(tt.synth, zerolog.Nop()).Speak(context.Background(), tt.text, "")
			})
			assert.Nil(t, wav)
			assert.True(t, model.IsKind(err, model.KindSynthesisFailure))
		})
	}
}
