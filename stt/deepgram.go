package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"

	gws "github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	DefaultDeepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	DefaultDeepgramModel    = "nova-2"

	deepgramChunkSize = 8 * 1024
	closeStreamFrame  = `{"type":"CloseStream"}`
)

// DeepgramRecognizer streams a finished recording through Deepgram's live
// listen socket and collects the final results.
type DeepgramRecognizer struct {
	APIKey   string
	Endpoint string
	Model    string
	Language string
	Dialer   *gws.Dialer
	log      zerolog.Logger
}

// TranscriptionMessage is the subset of a Deepgram result frame we read.
type TranscriptionMessage struct {
	Type     string  `json:"type"`
	IsFinal  bool    `json:"is_final"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Channel  struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// NewDeepgramRecognizer uses the public endpoint and default model.
func NewDeepgramRecognizer(apiKey, language string, log zerolog.Logger) *DeepgramRecognizer {
	return &DeepgramRecognizer{
		APIKey:   apiKey,
		Endpoint: DefaultDeepgramEndpoint,
		Model:    DefaultDeepgramModel,
		Language: language,
		Dialer:   gws.DefaultDialer,
		log:      log.With().Str("component", "deepgram").Logger(),
	}
}

func (dg *DeepgramRecognizer) listenURL() (string, error) {
	u, err := url.Parse(dg.Endpoint)
	if err != nil {
		return "", errors.Wrap(err, "parse deepgram endpoint")
	}
	q := u.Query()
	if dg.Model != "" {
		q.Set("model", dg.Model)
	}
	if dg.Language != "" {
		q.Set("language", dg.Language)
	}
	// No encoding parameter: Deepgram reads the WAV header itself.
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (dg *DeepgramRecognizer) Recognize(ctx context.Context, path string) ([]Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	endpoint, err := dg.listenURL()
	if err != nil {
		return nil, err
	}
	dialer := dg.Dialer
	if dialer == nil {
		dialer = gws.DefaultDialer
	}

	header := http.Header{
		"Authorization": {fmt.Sprintf("Token %s", dg.APIKey)},
	}
	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "deepgram dial: %s", resp.Status)
		}
		return nil, errors.Wrap(err, "deepgram dial")
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	type result struct {
		segments []Segment
		err      error
	}
	done := make(chan result, 1)
	go func() {
		segs, err := dg.readResults(conn)
		done <- result{segs, err}
	}()

	for off := 0; off < len(data); off += deepgramChunkSize {
		end := min(off+deepgramChunkSize, len(data))
		if err := conn.WriteMessage(gws.BinaryMessage, data[off:end]); err != nil {
			return nil, errors.Wrap(err, "deepgram write")
		}
	}
	if err := conn.WriteMessage(gws.TextMessage, []byte(closeStreamFrame)); err != nil {
		return nil, errors.Wrap(err, "deepgram close stream")
	}

	r := <-done
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.segments, r.err
}

// readResults collects final transcripts until Deepgram closes the socket.
func (dg *DeepgramRecognizer) readResults(conn *gws.Conn) ([]Segment, error) {
	var segments []Segment
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if gws.IsCloseError(err, gws.CloseNormalClosure) {
				return segments, nil
			}
			return segments, errors.Wrap(err, "deepgram read")
		}

		var msg TranscriptionMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			dg.log.Debug().Err(err).Msg("skipping unparseable deepgram frame")
			continue
		}
		if msg.Type != "" && msg.Type != "Results" {
			continue
		}
		if !msg.IsFinal || len(msg.Channel.Alternatives) == 0 {
			continue
		}

		alt := msg.Channel.Alternatives[0]
		if alt.Transcript == "" {
			continue
		}
		text := alt.Transcript
		if len(segments) > 0 {
			text = " " + text
		}
		segments = append(segments, Segment{
			Text:       text,
			Start:      seconds(msg.Start),
			End:        seconds(msg.Start + msg.Duration),
			Confidence: alt.Confidence,
		})
	}
}
