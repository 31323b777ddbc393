package output

import (
	"fmt"
	"sync"

	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/mrsingh-rishi/voice-agent/model"
	"github.com/mrsingh-rishi/voice-agent/types"
)

// EndOfUtterance names the mark sent after the last audio frame of a reply.
const EndOfUtterance = "end"

const DefaultChunkSize = 32 * 1024

// FrameWriter is the subset of a websocket connection the output needs.
type FrameWriter interface {
	WriteMessage(messageType int, data []byte) error
	WriteJSON(v interface{}) error
}

type frame struct {
	audio []byte
	event *types.SpeechEvent
}

// SpeechOutput is the only writer on a speech websocket. Audio and control
// events are queued and written in order by one goroutine.
type SpeechOutput struct {
	ws        FrameWriter
	chunkSize int
	frames    chan frame
	done      chan struct{}
	closeOnce sync.Once
	log       zerolog.Logger
}

func NewSpeechOutput(ws FrameWriter, chunkSize int, log zerolog.Logger) (*SpeechOutput, error) {
	if ws == nil {
		return nil, fmt.Errorf("websocket connection is required")
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &SpeechOutput{
		ws:        ws,
		chunkSize: chunkSize,
		frames:    make(chan frame, 16),
		done:      make(chan struct{}),
		log:       log.With().Str("component", "speech_output").Logger(),
	}, nil
}

func (o *SpeechOutput) Start() {
	go func() {
		defer close(o.done)
		for f := range o.frames {
			if f.event != nil {
				o.sendEvent(f.event)
				continue
			}
			o.sendAudio(f.audio)
		}
	}()
}

// SendSpeech queues a WAV stream followed by the end-of-utterance mark.
func (o *SpeechOutput) SendSpeech(wav []byte) {
	for start := 0; start < len(wav); start += o.chunkSize {
		end := min(start+o.chunkSize, len(wav))
		o.frames <- frame{audio: wav[start:end]}
	}
	o.frames <- frame{event: &types.SpeechEvent{Event: "mark", Mark: &types.SpeechMark{Name: EndOfUtterance}}}
}

// SendError queues an error event carrying the error's kind.
func (o *SpeechOutput) SendError(err error) {
	o.frames <- frame{event: &types.SpeechEvent{Event: "error", Error: err.Error(), Kind: model.KindOf(err)}}
}

// Close flushes queued frames and stops the writer.
func (o *SpeechOutput) Close() {
	o.closeOnce.Do(func() { close(o.frames) })
	<-o.done
}

func (o *SpeechOutput) sendAudio(chunk []byte) {
	if err := o.ws.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		o.log.Warn().Err(err).Msg("speech audio write failed")
	}
}

func (o *SpeechOutput) sendEvent(ev *types.SpeechEvent) {
	if err := o.ws.WriteJSON(ev); err != nil {
		o.log.Warn().Err(err).Str("event", ev.Event).Msg("speech event write failed")
	}
}
