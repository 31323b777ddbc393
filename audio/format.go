package audio

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/mrsingh-rishi/voice-agent/model"
)

// Format is an audio container family.
type Format string

const (
	FormatUnknown Format = "unknown"
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
	FormatOgg     Format = "ogg"
	FormatWebM    Format = "webm"
	FormatFLAC    Format = "flac"
	FormatMP4     Format = "m4a"
	FormatAAC     Format = "aac"
)

// Ext returns the file extension used for temp files of this format.
func (f Format) Ext() string {
	if f == FormatUnknown || f == "" {
		return ".bin"
	}
	return "." + string(f)
}

// mimeFormats maps detected MIME types, including parents, to formats.
var mimeFormats = map[string]Format{
	"audio/wav":       FormatWAV,
	"audio/mpeg":      FormatMP3,
	"audio/ogg":       FormatOgg,
	"audio/opus":      FormatOgg,
	"application/ogg": FormatOgg,
	"audio/webm":      FormatWebM,
	"video/webm":      FormatWebM,
	"audio/flac":      FormatFLAC,
	"audio/x-m4a":     FormatMP4,
	"audio/mp4":       FormatMP4,
	"video/mp4":       FormatMP4,
	"audio/aac":       FormatAAC,
}

// Sniff identifies the container from the content itself.
func Sniff(data []byte) Format {
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if f, ok := mimeFormats[m.String()]; ok {
			return f
		}
	}
	return FormatUnknown
}

// FormatFromHint maps a filename extension or MIME type to a format.
func FormatFromHint(filename, contentType string) Format {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), ".")) {
	case "wav", "wave":
		return FormatWAV
	case "mp3":
		return FormatMP3
	case "ogg", "oga", "opus":
		return FormatOgg
	case "webm", "weba":
		return FormatWebM
	case "flac":
		return FormatFLAC
	case "m4a", "mp4":
		return FormatMP4
	case "aac":
		return FormatAAC
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return FormatUnknown
	}
	switch mediaType {
	case "audio/wav", "audio/wave", "audio/x-wav", "audio/vnd.wave":
		return FormatWAV
	case "audio/mpeg", "audio/mp3":
		return FormatMP3
	case "audio/ogg", "application/ogg":
		return FormatOgg
	case "audio/webm", "video/webm":
		return FormatWebM
	case "audio/flac", "audio/x-flac":
		return FormatFLAC
	case "audio/mp4", "audio/x-m4a":
		return FormatMP4
	case "audio/aac", "audio/aacp":
		return FormatAAC
	}
	return FormatUnknown
}

// Detect prefers the sniffed format and falls back to the client's hints.
func Detect(blob model.AudioBlob) Format {
	if f := Sniff(blob.Data); f != FormatUnknown {
		return f
	}
	return FormatFromHint(blob.Filename, blob.ContentType)
}
