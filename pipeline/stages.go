package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/mrsingh-rishi/voice-agent/audio"
	"github.com/mrsingh-rishi/voice-agent/llm"
	"github.com/mrsingh-rishi/voice-agent/model"
)

const (
	StageNormalize  = "normalize"
	StageDenoise    = "denoise"
	StageTranscribe = "transcribe"
	StageReply      = "reply"
)

type Normalizer interface {
	Normalize(ctx context.Context, blob model.AudioBlob) (audio.Normalized, error)
}

type Denoiser interface {
	Reduce(ctx context.Context, in audio.Waveform) (audio.Waveform, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

type Responder interface {
	Turn(ctx context.Context, history []model.Utterance, transcript string) (string, error)
}

// NormalizeStage converts the upload to canonical WAV. It is fatal.
func NormalizeStage(n Normalizer, timeout time.Duration) Stage {
	return Stage{
		Name:    StageNormalize,
		Timeout: timeout,
		Kind:    model.KindUnsupportedAudioFormat,
		Run: func(ctx context.Context, t *Turn) error {
			norm, err := n.Normalize(ctx, t.Audio)
			t.Track(norm.Files()...)
			if err != nil {
				return err
			}
			t.SourcePath = norm.Source
			t.WaveformPath = norm.Path
			return nil
		},
	}
}

// DenoiseStage writes a noise-reduced copy next to the canonical file. On
// failure the turn keeps the un-denoised waveform.
func DenoiseStage(d Denoiser, timeout time.Duration) Stage {
	return Stage{
		Name:    StageDenoise,
		Timeout: timeout,
		Kind:    model.KindDenoiseFailure,
		Run: func(ctx context.Context, t *Turn) error {
			const op = "pipeline.denoise"
			w, err := audio.ReadWAV(t.WaveformPath)
			if err != nil {
				return model.NewError(model.KindDenoiseFailure, op, err)
			}
			cleaned, err := d.Reduce(ctx, w)
			if err != nil {
				return err
			}
			path := strings.TrimSuffix(t.WaveformPath, ".wav") + "_cleaned.wav"
			t.Track(path)
			if err := audio.WriteWAV(path, cleaned); err != nil {
				return model.NewError(model.KindDenoiseFailure, op, err)
			}
			t.WaveformPath = path
			return nil
		},
		Recover: func(t *Turn, err error) {},
	}
}

// TranscribeStage fills in the transcript, or "" when nothing was understood.
func TranscribeStage(tr Transcriber, timeout time.Duration) Stage {
	return Stage{
		Name:    StageTranscribe,
		Timeout: timeout,
		Kind:    model.KindTranscriptionFailure,
		Run: func(ctx context.Context, t *Turn) error {
			text, err := tr.Transcribe(ctx, t.WaveformPath)
			t.Transcript = text
			return err
		},
		Recover: func(t *Turn, err error) { t.Transcript = "" },
	}
}

// ReplyStage asks the dialogue service to answer the transcript.
func ReplyStage(r Responder, timeout time.Duration) Stage {
	return Stage{
		Name:    StageReply,
		Timeout: timeout,
		Kind:    model.KindDialogueFailure,
		Run: func(ctx context.Context, t *Turn) error {
			reply, err := r.Turn(ctx, t.History, t.Transcript)
			t.Reply = reply
			return err
		},
		Recover: func(t *Turn, err error) { t.Reply = llm.Apology },
	}
}
