// Package pipeline runs one conversation turn through an ordered list of
// stages, applying each stage's failure policy.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/mrsingh-rishi/voice-agent/model"
)

// Fallback records a best-effort stage that failed and was recovered.
type Fallback struct {
	Stage string
	Kind  model.Kind
	Err   error
}

// Turn carries one submission through the stages.
type Turn struct {
	ID      string
	Audio   model.AudioBlob
	History []model.Utterance

	SourcePath   string
	WaveformPath string
	Transcript   string
	Reply        string

	Fallbacks []Fallback

	mu      sync.Mutex
	files   []string
	cleaned bool
}

// Track registers transient files to be removed when the turn ends.
func (t *Turn) Track(paths ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range paths {
		if p != "" {
			t.files = append(t.files, p)
		}
	}
}

// Files returns the tracked files.
func (t *Turn) Files() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.files...)
}

// cleanup removes every tracked file once. Later calls do nothing.
func (t *Turn) cleanup(log zerolog.Logger) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cleaned {
		return
	}
	t.cleaned = true

	seen := make(map[string]struct{}, len(t.files))
	for _, p := range t.files {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", p).Msg("failed to remove transient file")
		}
	}
}

// Stage is one step of a turn. A nil Recover makes the stage fatal: its
// error aborts the turn. Otherwise Recover installs the stage's fallback
// value and the turn continues.
type Stage struct {
	Name    string
	Timeout time.Duration
	Kind    model.Kind // reported when the error carries no kind of its own
	Run     func(ctx context.Context, t *Turn) error
	Recover func(t *Turn, err error)
}

// Observer is told how long each stage took and which fallback, if any,
// it ended with.
type Observer interface {
	ObserveStage(stage string, d time.Duration, fallback model.Kind)
}

type nopObserver struct{}

func (nopObserver) ObserveStage(string, time.Duration, model.Kind) {}

type Pipeline struct {
	stages   []Stage
	observer Observer
	log      zerolog.Logger
}

// New builds a pipeline from stages in execution order. observer may be nil.
func New(log zerolog.Logger, observer Observer, stages ...Stage) *Pipeline {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Pipeline{
		stages:   stages,
		observer: observer,
		log:      log.With().Str("component", "pipeline").Logger(),
	}
}

// Stages returns the stage names in order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name
	}
	return names
}

// Process runs every stage over a new turn. The turn is returned also on
// error. Transient files are gone when Process returns.
func (p *Pipeline) Process(ctx context.Context, blob model.AudioBlob, history []model.Utterance) (*Turn, error) {
	t := &Turn{
		ID:      uuid.NewString(),
		Audio:   blob,
		History: history,
	}
	log := p.log.With().Str("turn_id", t.ID).Logger()
	defer t.cleanup(log)

	for _, s := range p.stages {
		start := time.Now()
		err := p.runStage(ctx, s, t)
		elapsed := time.Since(start)

		if err == nil {
			p.observer.ObserveStage(s.Name, elapsed, "")
			log.Debug().Str("stage", s.Name).Dur("elapsed", elapsed).Msg("stage complete")
			continue
		}

		kind := model.KindOf(err)
		if kind == "" {
			kind = s.Kind
		}
		p.observer.ObserveStage(s.Name, elapsed, kind)

		if s.Recover == nil {
			log.Error().Err(err).Str("stage", s.Name).Str("kind", string(kind)).Msg("stage failed, aborting turn")
			return t, err
		}
		s.Recover(t, err)
		t.Fallbacks = append(t.Fallbacks, Fallback{Stage: s.Name, Kind: kind, Err: err})
		log.Warn().Err(err).Str("stage", s.Name).Str("kind", string(kind)).Msg("stage failed, using fallback")
	}
	return t, nil
}

func (p *Pipeline) runStage(ctx context.Context, s Stage, t *Turn) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = model.NewError(s.Kind, s.Name, fmt.Errorf("panic: %v", r))
		}
	}()

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	err = s.Run(ctx, t)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = errors.WithMessagef(err, "%s timed out after %s", s.Name, s.Timeout)
	}
	return err
}
