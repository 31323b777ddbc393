package audio

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/mrsingh-rishi/voice-agent/model"
)

// Normalized describes the files produced for one upload. Every non-empty
// path is owned by the caller, also when Normalize fails.
type Normalized struct {
	Source string // raw upload as written to disk
	Path   string // canonical 16-bit mono WAV
	Format Format // detected source container
}

// Files lists the transient files that exist for this upload.
func (n Normalized) Files() []string {
	var files []string
	for _, p := range []string{n.Source, n.Path} {
		if p != "" {
			files = append(files, p)
		}
	}
	return files
}

// Normalizer converts uploads of any container into canonical WAV files.
// Formats with an in-process decoder use it first; everything else, and any
// native decode failure, goes through the fallback transcoder.
type Normalizer struct {
	dir      string
	native   map[Format]Transcoder
	fallback Transcoder
	log      zerolog.Logger
}

// NewNormalizer writes temp files under dir (os.TempDir when empty) and uses
// fallback for containers without a native decoder. fallback may be nil.
func NewNormalizer(dir string, fallback Transcoder, log zerolog.Logger) *Normalizer {
	return &Normalizer{
		dir: dir,
		native: map[Format]Transcoder{
			FormatWAV: WAVTranscoder{},
			FormatMP3: MP3Transcoder{},
		},
		fallback: fallback,
		log:      log.With().Str("component", "normalizer").Logger(),
	}
}

// Normalize writes blob to disk and produces its canonical waveform file.
// Decoding failures are reported as KindUnsupportedAudioFormat.
func (n *Normalizer) Normalize(ctx context.Context, blob model.AudioBlob) (Normalized, error) {
	const op = "audio.Normalize"

	out := Normalized{Format: Detect(blob)}
	if len(blob.Data) == 0 {
		return out, model.NewError(model.KindUnsupportedAudioFormat, op, errors.New("empty upload"))
	}

	if n.dir != "" {
		if err := os.MkdirAll(n.dir, 0o755); err != nil {
			return out, errors.Wrap(err, "create temp dir")
		}
	}
	src, err := os.CreateTemp(n.dir, "upload-*"+out.Format.Ext())
	if err != nil {
		return out, errors.Wrap(err, "create upload file")
	}
	out.Source = src.Name()
	_, werr := src.Write(blob.Data)
	cerr := src.Close()
	if werr != nil {
		return out, errors.Wrap(werr, "write upload file")
	}
	if cerr != nil {
		return out, errors.Wrap(cerr, "close upload file")
	}

	dst := strings.TrimSuffix(out.Source, filepath.Ext(out.Source)) + "-canonical.wav"

	if t, ok := n.native[out.Format]; ok {
		err := t.Transcode(ctx, out.Source, dst)
		if err == nil {
			out.Path = dst
			return out, nil
		}
		n.log.Debug().Err(err).Str("format", string(out.Format)).Msg("native decode failed, trying fallback transcoder")
		// A failed native attempt may leave a partial file behind.
		if _, statErr := os.Stat(dst); statErr == nil {
			out.Path = dst
		}
	}

	if n.fallback == nil {
		return out, model.NewError(model.KindUnsupportedAudioFormat, op,
			errors.Errorf("no decoder for %s audio", out.Format))
	}
	if err := n.fallback.Transcode(ctx, out.Source, dst); err != nil {
		if _, statErr := os.Stat(dst); statErr == nil {
			out.Path = dst
		}
		return out, model.NewError(model.KindUnsupportedAudioFormat, op,
			errors.Wrapf(err, "decode %s audio", out.Format))
	}

	out.Path = dst
	return out, nil
}
