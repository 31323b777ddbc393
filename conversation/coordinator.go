// Package conversation owns the session and runs every operation that reads
// or changes it.
package conversation

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/mrsingh-rishi/voice-agent/model"
	"github.com/mrsingh-rishi/voice-agent/pipeline"
	"github.com/mrsingh-rishi/voice-agent/session"
	"github.com/mrsingh-rishi/voice-agent/types"
	"github.com/mrsingh-rishi/voice-agent/workers"
)

const (
	MaxIterationsReached = "Max iterations reached."
	NothingToSummarize   = "No conversation to summarize."
)

// Turn outcomes reported to the Recorder.
const (
	OutcomeOK        = "ok"
	OutcomeDegraded  = "degraded"
	OutcomeRejected  = "rejected"
	OutcomeExhausted = "exhausted"
)

// Dialogue produces the assistant's non-turn utterances.
type Dialogue interface {
	Opening(ctx context.Context) (string, error)
	Closing(ctx context.Context, history []model.Utterance) (string, error)
	Summary(ctx context.Context, history []model.Utterance) (string, error)
}

type Speaker interface {
	Speak(ctx context.Context, text, voice string) ([]byte, error)
}

// Recorder receives conversation metrics.
type Recorder interface {
	TurnCompleted(outcome string)
	SetSessionTurns(n int)
	SetQueueDepth(n int)
	SynthesisCompleted(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) TurnCompleted(string)      {}
func (nopRecorder) SetSessionTurns(int)       {}
func (nopRecorder) SetQueueDepth(int)         {}
func (nopRecorder) SynthesisCompleted(string) {}

type Options struct {
	TurnLimit         int
	DialogueTimeout   time.Duration
	SynthesizeTimeout time.Duration
	Recorder          Recorder
}

// Snapshot is a lock-free view of the session published after every job.
type Snapshot struct {
	Phase session.Phase
	Turns int
	Limit int
}

// Coordinator is the single owner of the conversation session. All session
// work runs on its SessionWorker, one job at a time in arrival order.
type Coordinator struct {
	state    *session.State
	pipeline *pipeline.Pipeline
	dialogue Dialogue
	speaker  Speaker
	worker   *workers.SessionWorker
	recorder Recorder
	opts     Options
	snapshot atomic.Pointer[Snapshot]
	log      zerolog.Logger
}

func New(p *pipeline.Pipeline, d Dialogue, s Speaker, opts Options, log zerolog.Logger) (*Coordinator, error) {
	if p == nil || d == nil || s == nil {
		return nil, errors.New("pipeline, dialogue and speaker are required")
	}
	if opts.TurnLimit == 0 {
		opts.TurnLimit = session.DefaultTurnLimit
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	state, err := session.New(opts.TurnLimit)
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		state:    state,
		pipeline: p,
		dialogue: d,
		speaker:  s,
		recorder: opts.Recorder,
		opts:     opts,
		log:      log.With().Str("component", "coordinator").Logger(),
	}
	c.worker = workers.NewSessionWorker(log, opts.Recorder.SetQueueDepth)
	c.publish()
	return c, nil
}

func (c *Coordinator) Start() {
	c.worker.Start()
}

// Stop lets the running job finish and rejects queued ones.
func (c *Coordinator) Stop() {
	c.worker.Stop()
}

// Snapshot returns the session view as of the last completed job.
func (c *Coordinator) Snapshot() Snapshot {
	return *c.snapshot.Load()
}

func (c *Coordinator) publish() {
	c.snapshot.Store(&Snapshot{
		Phase: c.state.Phase(),
		Turns: c.state.Turns(),
		Limit: c.state.Limit(),
	})
	c.recorder.SetSessionTurns(c.state.Turns())
}

// submit runs job on the session worker and publishes the new snapshot.
func (c *Coordinator) submit(ctx context.Context, job func(ctx context.Context)) error {
	return c.worker.Submit(ctx, func(ctx context.Context) {
		defer c.publish()
		job(ctx)
	})
}

func (c *Coordinator) dialogueContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.DialogueTimeout > 0 {
		return context.WithTimeout(ctx, c.opts.DialogueTimeout)
	}
	return context.WithCancel(ctx)
}

// InitialGreeting asks the model for an opening line and appends it to the
// conversation.
func (c *Coordinator) InitialGreeting(ctx context.Context) (types.GreetingResponse, error) {
	var resp types.GreetingResponse
	err := c.submit(ctx, func(ctx context.Context) {
		dctx, cancel := c.dialogueContext(ctx)
		defer cancel()
		reply, err := c.dialogue.Opening(dctx)
		if err != nil {
			c.log.Warn().Err(err).Msg("initial greeting fell back to apology")
		}
		c.state.AppendAssistant(reply)
		resp.Response = reply
	})
	if err != nil {
		return types.GreetingResponse{}, err
	}
	return resp, nil
}

// FinalGreeting answers the last input with a closing message and appends
// it. It is allowed in every phase and never counts as a turn.
func (c *Coordinator) FinalGreeting(ctx context.Context) (types.GreetingResponse, error) {
	var resp types.GreetingResponse
	err := c.submit(ctx, func(ctx context.Context) {
		dctx, cancel := c.dialogueContext(ctx)
		defer cancel()
		reply, err := c.dialogue.Closing(dctx, c.state.History())
		if err != nil {
			c.log.Warn().Err(err).Msg("final greeting fell back to apology")
		}
		c.state.AppendAssistant(reply)
		resp.Response = reply
	})
	if err != nil {
		return types.GreetingResponse{}, err
	}
	return resp, nil
}

// Summarize condenses the conversation and resets the session. An empty
// conversation is left untouched. When ctx ends while a job runs, the
// job's result is discarded and only the error is returned.
func (c *Coordinator) Summarize(ctx context.Context) (types.SummaryResponse, error) {
	resp := types.SummaryResponse{Conversation: []model.Utterance{}}
	err := c.submit(ctx, func(ctx context.Context) {
		if c.state.Len() == 0 {
			resp.Response = NothingToSummarize
			return
		}
		dctx, cancel := c.dialogueContext(ctx)
		defer cancel()
		summary, err := c.dialogue.Summary(dctx, c.state.History())
		if err != nil {
			c.log.Warn().Err(err).Msg("summary fell back to apology")
		}
		c.state.Reset()
		resp.Response = summary
		resp.IsSummary = true
	})
	if err != nil {
		return types.SummaryResponse{}, err
	}
	return resp, nil
}

// ProcessAudio runs one user turn. Only an unusable upload is returned as
// an error, and it leaves the session unchanged; every other stage failure
// degrades to that stage's fallback value.
func (c *Coordinator) ProcessAudio(ctx context.Context, blob model.AudioBlob) (types.TurnResponse, error) {
	var resp types.TurnResponse
	var turnErr error
	err := c.submit(ctx, func(ctx context.Context) {
		if c.state.Exhausted() {
			c.recorder.TurnCompleted(OutcomeExhausted)
			resp = types.TurnResponse{
				Response:     MaxIterationsReached,
				Iteration:    c.state.Turns(),
				IsSummary:    true,
				Conversation: c.state.History(),
			}
			return
		}

		turn, err := c.pipeline.Process(ctx, blob, c.state.History())
		log := c.log.With().Str("turn_id", turn.ID).Logger()
		if err != nil {
			c.recorder.TurnCompleted(OutcomeRejected)
			log.Warn().Err(err).Msg("turn rejected")
			turnErr = err
			return
		}

		if err := c.state.RecordTurn(turn.Transcript, turn.Reply); err != nil {
			// Exhaustion was checked above and this job is the only writer.
			turnErr = errors.Wrap(err, "record turn")
			return
		}

		outcome := OutcomeOK
		if len(turn.Fallbacks) > 0 {
			outcome = OutcomeDegraded
		}
		c.recorder.TurnCompleted(outcome)
		log.Info().
			Int("iteration", c.state.Turns()).
			Int("fallbacks", len(turn.Fallbacks)).
			Msg("turn recorded")

		transcript := turn.Transcript
		resp = types.TurnResponse{
			UserInput:    &transcript,
			Response:     turn.Reply,
			Iteration:    c.state.Turns(),
			IsSummary:    false,
			Conversation: c.state.History(),
		}
	})
	if err != nil {
		return types.TurnResponse{}, err
	}
	return resp, turnErr
}

// Speak synthesizes text without touching the session.
func (c *Coordinator) Speak(ctx context.Context, text, voice string) ([]byte, error) {
	if c.opts.SynthesizeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.SynthesizeTimeout)
		defer cancel()
	}
	wav, err := c.speaker.Speak(ctx, text, voice)
	if err != nil {
		c.recorder.SynthesisCompleted("error")
		return nil, err
	}
	c.recorder.SynthesisCompleted("ok")
	return wav, nil
}
