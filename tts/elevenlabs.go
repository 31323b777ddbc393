package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/orcaman/writerseeker"
	"github.com/pkg/errors"

	"github.com/mrsingh-rishi/voice-agent/audio"
)

const (
	DefaultElevenLabsBaseURL = "https://api.elevenlabs.io"
	DefaultElevenLabsModel   = "eleven_multilingual_v2"
	DefaultElevenLabsVoice   = "JBFqnCBsd6RMkjVDRZzb"

	elevenLabsSampleRate = 16000
)

type ElevenLabsClient struct {
	APIKey     string
	VoiceId    string
	ModelId    string
	BaseURL    string
	HTTPClient *http.Client
}

func NewElevenLabsClient(apiKey string, voiceId string, modelId string) (*ElevenLabsClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if voiceId == "" {
		return nil, fmt.Errorf("voice id is required")
	}
	if modelId == "" {
		modelId = DefaultElevenLabsModel
	}
	return &ElevenLabsClient{
		APIKey:     apiKey,
		VoiceId:    voiceId,
		ModelId:    modelId,
		BaseURL:    DefaultElevenLabsBaseURL,
		HTTPClient: http.DefaultClient,
	}, nil
}

func (client *ElevenLabsClient) Synthesize(ctx context.Context, text string, w io.Writer) error {
	return client.SynthesizeVoice(ctx, text, client.VoiceId, w)
}

// SynthesizeVoice streams raw 16 kHz PCM from the with-timestamps endpoint
// and writes it out as a WAV file.
func (client *ElevenLabsClient) SynthesizeVoice(ctx context.Context, text, voice string, w io.Writer) error {
	base, err := url.Parse(fmt.Sprintf("%s/v1/text-to-speech/%s/stream/with-timestamps",
		strings.TrimRight(client.BaseURL, "/"), url.PathEscape(voice)))
	if err != nil {
		return errors.Wrap(err, "build url")
	}
	q := base.Query()
	q.Set("output_format", fmt.Sprintf("pcm_%d", elevenLabsSampleRate))
	base.RawQuery = q.Encode()

	payload := map[string]interface{}{
		"text":     text,
		"model_id": client.ModelId,
		"voice_settings": map[string]float64{
			"stability":        0.75,
			"similarity_boost": 0.7,
		},
	}
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base.String(), bytes.NewReader(bodyBytes))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("xi-api-key", client.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.HTTPClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "http request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("bad status: %s", resp.Status)
	}

	var pcm []byte
	dec := json.NewDecoder(resp.Body)
	for {
		var chunk struct {
			AudioBase64 string `json:"audio_base64"`
		}
		if err := dec.Decode(&chunk); err != nil {
			if err == io.EOF {
				break
			}
			return errors.Wrap(err, "decode chunk")
		}
		raw, err := base64.StdEncoding.DecodeString(chunk.AudioBase64)
		if err != nil {
			return errors.Wrap(err, "decode audio")
		}
		pcm = append(pcm, raw...)
	}
	if len(pcm) == 0 {
		return errors.New("no audio received")
	}

	ws := &writerseeker.WriterSeeker{}
	if err := audio.EncodeWAV(ws, audio.FromPCM16(pcm, 1, elevenLabsSampleRate)); err != nil {
		return err
	}
	_, err = io.Copy(w, ws.Reader())
	return errors.Wrap(err, "write wav")
}
