package conversation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrsingh-rishi/voice-agent/audio"
	"github.com/mrsingh-rishi/voice-agent/llm"
	"github.com/mrsingh-rishi/voice-agent/model"
	"github.com/mrsingh-rishi/voice-agent/pipeline"
	"github.com/mrsingh-rishi/voice-agent/session"
	"github.com/mrsingh-rishi/voice-agent/stt"
)

type scriptedChat struct {
	mu    sync.Mutex
	n     int
	fail  bool
	delay time.Duration
	calls [][]model.Utterance
}

func (c *scriptedChat) Chat(ctx context.Context, messages []model.Utterance) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.calls = append(c.calls, messages)
	if c.fail {
		return "", errors.New("ollama is not running")
	}
	last := messages[len(messages)-1].Content
	if strings.HasPrefix(last, llm.SummaryInstruction) {
		return "The user talked about colors.", nil
	}
	c.n++
	return fmt.Sprintf("reply %d", c.n), nil
}

type wordRecognizer struct {
	mu sync.Mutex
	n  int
}

func (r *wordRecognizer) Recognize(ctx context.Context, path string) ([]stt.Segment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.n++
	return []stt.Segment{{Text: fmt.Sprintf(" answer %d", r.n)}}, nil
}

type fakeSpeaker struct {
	err error
}

func (s fakeSpeaker) Speak(ctx context.Context, text, voice string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []byte("RIFF----WAVE"), nil
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
	speech   map[string]int
	turns    int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{outcomes: map[string]int{}, speech: map[string]int{}}
}

func (r *countingRecorder) TurnCompleted(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[outcome]++
}

func (r *countingRecorder) SetSessionTurns(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = n
}

func (r *countingRecorder) SetQueueDepth(int) {}

func (r *countingRecorder) SynthesisCompleted(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speech[outcome]++
}

type fixture struct {
	coord    *Coordinator
	chat     *scriptedChat
	recorder *countingRecorder
	tmp      string
}

func newFixture(t *testing.T, limit int) *fixture {
	t.Helper()
	tmp := t.TempDir()
	chat := &scriptedChat{}
	dialogue := llm.NewDialogue(chat, zerolog.Nop())
	rec := newCountingRecorder()

	p := pipeline.New(zerolog.Nop(), nil,
		pipeline.NormalizeStage(audio.NewNormalizer(tmp, nil, zerolog.Nop()), 5*time.Second),
		pipeline.DenoiseStage(audio.NewNoiseReducer(audio.DefaultNoiseSeconds, audio.DefaultPropDecrease), 10*time.Second),
		pipeline.TranscribeStage(stt.NewTranscriber(&wordRecognizer{}, nil, zerolog.Nop()), 5*time.Second),
		pipeline.ReplyStage(dialogue, 5*time.Second),
	)
	coord, err := New(p, dialogue, fakeSpeaker{}, Options{TurnLimit: limit, Recorder: rec}, zerolog.Nop())
	require.NoError(t, err)
	coord.Start()
	t.Cleanup(coord.Stop)

	return &fixture{coord: coord, chat: chat, recorder: rec, tmp: tmp}
}

var (
	uploadOnce sync.Once
	uploadData []byte
)

func upload(t *testing.T) model.AudioBlob {
	t.Helper()
	uploadOnce.Do(func() {
		rate := 16000
		samples := make([]float64, rate)
		for i := range samples {
			samples[i] = 0.3 * math.Sin(2*math.Pi*300*float64(i)/float64(rate))
		}
		p := filepath.Join(os.TempDir(), fmt.Sprintf("coordinator-upload-%d.wav", os.Getpid()))
		if err := audio.WriteWAV(p, audio.Waveform{Samples: samples, SampleRate: rate}); err == nil {
			uploadData, _ = os.ReadFile(p)
			_ = os.Remove(p)
		}
	})
	require.NotEmpty(t, uploadData)
	return model.AudioBlob{Data: uploadData, Filename: "blob.wav", ContentType: "audio/wav"}
}

func TestCoordinator_InitialGreetingAppendsOneUtterance(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	greeting, err := f.coord.InitialGreeting(ctx)
	require.NoError(t, err)
	assert.Equal(t, "reply 1", greeting.Response)

	snap := f.coord.Snapshot()
	assert.Equal(t, session.Active, snap.Phase)
	assert.Equal(t, 0, snap.Turns)

	resp, err := f.coord.ProcessAudio(ctx, upload(t))
	require.NoError(t, err)
	require.Len(t, resp.Conversation, 3)
	assert.Equal(t, model.Assistant("reply 1"), resp.Conversation[0])
	assert.Equal(t, 1, resp.Iteration)
}

func TestCoordinator_CallerGivesUpWhileJobRuns(t *testing.T) {
	f := newFixture(t, 5)
	f.chat.delay = 30 * time.Millisecond

	short := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), 10*time.Millisecond)
	}
	// waits for the abandoned job to finish
	barrier := func() {
		require.NoError(t, f.coord.worker.Submit(context.Background(), func(context.Context) {}))
	}

	ctx, cancel := short()
	greeting, err := f.coord.InitialGreeting(ctx)
	cancel()
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, greeting.Response)
	barrier()

	ctx, cancel = short()
	closing, err := f.coord.FinalGreeting(ctx)
	cancel()
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, closing.Response)
	barrier()

	ctx, cancel = short()
	summary, err := f.coord.Summarize(ctx)
	cancel()
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "", summary.Response)
	barrier()

	// the abandoned jobs still ran to completion in order
	resp, err := f.coord.Summarize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, NothingToSummarize, resp.Response)
	f.chat.mu.Lock()
	assert.Len(t, f.chat.calls, 3)
	f.chat.mu.Unlock()
}

func TestCoordinator_FiveTurnsThenExhausted(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		resp, err := f.coord.ProcessAudio(ctx, upload(t))
		require.NoError(t, err)
		require.NotNil(t, resp.UserInput)
		assert.Equal(t, fmt.Sprintf("answer %d", i), *resp.UserInput)
		assert.Equal(t, fmt.Sprintf("reply %d", i), resp.Response)
		assert.Equal(t, i, resp.Iteration)
		assert.False(t, resp.IsSummary)
		assert.Len(t, resp.Conversation, 2*i)
	}
	callsBefore := len(f.chat.calls)

	resp, err := f.coord.ProcessAudio(ctx, upload(t))
	require.NoError(t, err)
	assert.Nil(t, resp.UserInput)
	assert.Equal(t, MaxIterationsReached, resp.Response)
	assert.Equal(t, 5, resp.Iteration)
	assert.True(t, resp.IsSummary)
	assert.Len(t, resp.Conversation, 10)
	assert.Equal(t, callsBefore, len(f.chat.calls))

	assert.Equal(t, session.Exhausted, f.coord.Snapshot().Phase)
	assert.Equal(t, 5, f.recorder.outcomes[OutcomeOK])
	assert.Equal(t, 1, f.recorder.outcomes[OutcomeExhausted])
	assert.Equal(t, 5, f.recorder.turns)

	entries, err := os.ReadDir(f.tmp)
	require.NoError(t, err)
	assert.Empty(t, entries, "transient files must be removed")
}

func TestCoordinator_SummarizeEmpty(t *testing.T) {
	f := newFixture(t, 5)

	resp, err := f.coord.Summarize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, NothingToSummarize, resp.Response)
	assert.False(t, resp.IsSummary)
	assert.NotNil(t, resp.Conversation)
	assert.Empty(t, resp.Conversation)
	assert.Empty(t, f.chat.calls)
	assert.Equal(t, session.Fresh, f.coord.Snapshot().Phase)
}

func TestCoordinator_SummarizeResetsSession(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.coord.ProcessAudio(ctx, upload(t))
		require.NoError(t, err)
	}
	require.Equal(t, session.Exhausted, f.coord.Snapshot().Phase)

	resp, err := f.coord.Summarize(ctx)
	require.NoError(t, err)
	assert.Equal(t, "The user talked about colors.", resp.Response)
	assert.True(t, resp.IsSummary)
	assert.Empty(t, resp.Conversation)

	summaryCall := f.chat.calls[len(f.chat.calls)-1]
	require.Len(t, summaryCall, 1)
	assert.Contains(t, summaryCall[0].Content, "user: answer 1\nassistant: reply 1")

	snap := f.coord.Snapshot()
	assert.Equal(t, session.Fresh, snap.Phase)
	assert.Equal(t, 0, snap.Turns)

	next, err := f.coord.ProcessAudio(ctx, upload(t))
	require.NoError(t, err)
	assert.Equal(t, 1, next.Iteration)
	assert.Len(t, next.Conversation, 2)
}

func TestCoordinator_FinalGreetingDoesNotCountAsTurn(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	_, err := f.coord.ProcessAudio(ctx, upload(t))
	require.NoError(t, err)

	closing, err := f.coord.FinalGreeting(ctx)
	require.NoError(t, err)
	assert.Equal(t, "reply 2", closing.Response)

	sent := f.chat.calls[len(f.chat.calls)-1]
	assert.Len(t, sent, 3)
	assert.Contains(t, sent[2].Content, "You are ending a conversation")

	snap := f.coord.Snapshot()
	assert.Equal(t, 1, snap.Turns)
	assert.Equal(t, session.Active, snap.Phase)
}

func TestCoordinator_UnsupportedAudioLeavesSessionUnchanged(t *testing.T) {
	f := newFixture(t, 5)

	_, err := f.coord.ProcessAudio(context.Background(), model.AudioBlob{Data: []byte("not audio at all"), Filename: "x.ogg"})
	assert.True(t, model.IsKind(err, model.KindUnsupportedAudioFormat))
	assert.Equal(t, 0, f.coord.Snapshot().Turns)
	assert.Equal(t, 1, f.recorder.outcomes[OutcomeRejected])
	assert.Empty(t, f.chat.calls)
}

func TestCoordinator_DialogueFailureRecordsApology(t *testing.T) {
	f := newFixture(t, 5)
	f.chat.fail = true

	resp, err := f.coord.ProcessAudio(context.Background(), upload(t))
	require.NoError(t, err)
	assert.Equal(t, llm.Apology, resp.Response)
	assert.Equal(t, 1, resp.Iteration)
	assert.Equal(t, model.Assistant(llm.Apology), resp.Conversation[1])
	assert.Equal(t, 1, f.recorder.outcomes[OutcomeDegraded])
}

func TestCoordinator_ConcurrentTurnsAreSerialized(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	var wg sync.WaitGroup
	iterations := make([]int, 7)
	for i := range iterations {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := f.coord.ProcessAudio(ctx, upload(t))
			assert.NoError(t, err)
			iterations[i] = resp.Iteration
		}(i)
	}
	wg.Wait()

	sort.Ints(iterations)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 5, 5}, iterations)
	assert.Equal(t, 5, f.coord.Snapshot().Turns)
}

func TestCoordinator_Speak(t *testing.T) {
	f := newFixture(t, 5)

	wav, err := f.coord.Speak(context.Background(), "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(wav[:4]))
	assert.Equal(t, 1, f.recorder.speech["ok"])
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, nil, nil, Options{}, zerolog.Nop())
	assert.Error(t, err)

	p := pipeline.New(zerolog.Nop(), nil)
	d := llm.NewDialogue(&scriptedChat{}, zerolog.Nop())
	_, err = New(p, d, fakeSpeaker{}, Options{TurnLimit: -1}, zerolog.Nop())
	assert.Error(t, err)
}
