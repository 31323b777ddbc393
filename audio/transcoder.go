package audio

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/hajimehoshi/go-mp3"
	"github.com/pkg/errors"
)

// Transcoder converts the container at src into a canonical WAV at dst.
type Transcoder interface {
	Transcode(ctx context.Context, src, dst string) error
}

// FFmpeg shells out to an ffmpeg binary and handles any container it knows.
type FFmpeg struct {
	Binary string
}

func (f FFmpeg) Transcode(ctx context.Context, src, dst string) error {
	bin := f.Binary
	if bin == "" {
		bin = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, bin,
		"-hide_banner", "-loglevel", "error", "-nostdin", "-y",
		"-i", src,
		"-vn", "-ac", "1", "-c:a", "pcm_s16le", "-f", "wav",
		dst,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return errors.Wrap(err, "ffmpeg")
		}
		return errors.Wrapf(err, "ffmpeg: %s", msg)
	}
	return nil
}

// WAVTranscoder re-encodes any PCM WAV to 16-bit mono in process.
type WAVTranscoder struct{}

func (WAVTranscoder) Transcode(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w, err := ReadWAV(src)
	if err != nil {
		return errors.Wrap(err, "decode wav")
	}
	return WriteWAV(dst, w)
}

// MP3Transcoder decodes MP3 in process.
type MP3Transcoder struct{}

func (MP3Transcoder) Transcode(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	d, err := mp3.NewDecoder(bufio.NewReader(f))
	if err != nil {
		return errors.Wrap(err, "decode mp3")
	}
	// go-mp3 always yields 16-bit little-endian stereo.
	pcm, err := io.ReadAll(d)
	if err != nil {
		return errors.Wrap(err, "read mp3 frames")
	}
	if len(pcm) == 0 {
		return errors.New("mp3 stream has no audio frames")
	}
	return WriteWAV(dst, FromPCM16(pcm, 2, d.SampleRate()))
}
