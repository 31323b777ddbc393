// Package audio turns uploaded recordings into canonical mono PCM waveforms
// and cleans them up before transcription.
package audio

import (
	"encoding/binary"
	"io"
	"math"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"
)

// Canonical output format of the normalizer.
const (
	CanonicalBitDepth = 16
	CanonicalChannels = 1
	wavFormatPCM      = 1
)

// Waveform is a mono signal with samples in [-1, 1].
type Waveform struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the playback length of the waveform.
func (w Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(w.Samples)) / float64(w.SampleRate) * float64(time.Second))
}

// ReadWAV decodes a PCM WAV file, downmixing to mono.
func ReadWAV(path string) (Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return Waveform{}, err
	}
	defer f.Close()
	return DecodeWAV(f)
}

// DecodeWAV decodes PCM WAV data from r, downmixing to mono.
func DecodeWAV(r io.ReadSeeker) (Waveform, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return Waveform{}, errors.New("not a valid wav stream")
	}
	if d.WavAudioFormat != wavFormatPCM {
		return Waveform{}, errors.Errorf("unsupported wav encoding %d", d.WavAudioFormat)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return Waveform{}, errors.Wrap(err, "read pcm")
	}

	channels := int(d.NumChans)
	depth := int(d.BitDepth)
	if channels <= 0 || depth <= 0 || depth > 32 {
		return Waveform{}, errors.Errorf("invalid wav layout: %d channels, %d bits", channels, depth)
	}

	// 8-bit WAV is unsigned, every other depth is signed.
	offset := 0.0
	scale := float64(int64(1) << (depth - 1))
	if depth == 8 {
		offset = 128
		scale = 128
	}

	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c]) - offset
		}
		samples[i] = sum / float64(channels) / scale
	}

	return Waveform{Samples: samples, SampleRate: int(d.SampleRate)}, nil
}

// WriteWAV stores w as a canonical 16-bit mono PCM WAV file.
func WriteWAV(path string, w Waveform) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodeWAV(f, w); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// EncodeWAV writes w to ws as 16-bit mono PCM WAV.
func EncodeWAV(ws io.WriteSeeker, w Waveform) error {
	if w.SampleRate <= 0 {
		return errors.Errorf("invalid sample rate %d", w.SampleRate)
	}

	data := make([]int, len(w.Samples))
	for i, s := range w.Samples {
		if math.IsNaN(s) {
			s = 0
		}
		s = math.Max(-1, math.Min(1, s))
		data[i] = int(math.Round(s * math.MaxInt16))
	}

	enc := wav.NewEncoder(ws, w.SampleRate, CanonicalBitDepth, CanonicalChannels, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: CanonicalChannels, SampleRate: w.SampleRate},
		Data:           data,
		SourceBitDepth: CanonicalBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return errors.Wrap(err, "encode wav")
	}
	return errors.Wrap(enc.Close(), "finalize wav")
}

// FromPCM16 converts interleaved little-endian 16-bit PCM into a mono
// waveform. A trailing partial frame is ignored.
func FromPCM16(pcm []byte, channels, sampleRate int) Waveform {
	if channels <= 0 {
		channels = 1
	}
	frameBytes := 2 * channels
	frames := len(pcm) / frameBytes
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			off := i*frameBytes + c*2
			sum += float64(int16(binary.LittleEndian.Uint16(pcm[off:])))
		}
		samples[i] = sum / float64(channels) / 32768
	}
	return Waveform{Samples: samples, SampleRate: sampleRate}
}
