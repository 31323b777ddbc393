package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mrsingh-rishi/voice-agent/model"
)

func TestSniff(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Format
	}{
		{"wav", []byte("RIFF\x24\x00\x00\x00WAVEfmt "), FormatWAV},
		{"mp3 id3", []byte("ID3\x04\x00"), FormatMP3},
		{"ogg", []byte("OggS\x00\x02"), FormatOgg},
		{"mp3 without id3", []byte{0xFF, 0xFB, 0x90, 0x64, 0x00, 0x00}, FormatMP3},
		{"adts aac is not mp3", []byte{0xFF, 0xF1, 0x50, 0x80, 0x02, 0x1F, 0xFC}, FormatAAC},
		{"webm", append([]byte{0x1A, 0x45, 0xDF, 0xA3, 0x9F, 0x42, 0x82, 0x84}, "webm"...), FormatWebM},
		{"flac", []byte("fLaC\x00"), FormatFLAC},
		{"m4a", []byte("\x00\x00\x00\x20ftypM4A "), FormatMP4},
		{"riff but not wave", []byte("RIFF\x24\x00\x00\x00AVI LIST"), FormatUnknown},
		{"empty", nil, FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sniff(tt.data))
		})
	}
}

func TestDetect_FallsBackToHints(t *testing.T) {
	assert.Equal(t, FormatWebM, Detect(model.AudioBlob{Data: []byte("????"), Filename: "recording.webm"}))
	assert.Equal(t, FormatOgg, Detect(model.AudioBlob{Data: []byte("????"), ContentType: "audio/ogg; codecs=opus"}))
	assert.Equal(t, FormatUnknown, Detect(model.AudioBlob{Data: []byte("????"), ContentType: "application/octet-stream"}))
	assert.Equal(t, FormatAAC, Detect(model.AudioBlob{Data: []byte("????"), ContentType: "audio/aac"}))

	// Magic bytes win over a misleading name.
	assert.Equal(t, FormatWAV, Detect(model.AudioBlob{Data: []byte("RIFF\x00\x00\x00\x00WAVEfmt "), Filename: "clip.webm"}))
}

func TestFormat_Ext(t *testing.T) {
	assert.Equal(t, ".wav", FormatWAV.Ext())
	assert.Equal(t, ".aac", FormatAAC.Ext())
	assert.Equal(t, ".bin", FormatUnknown.Ext())
}
