package audio

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrsingh-rishi/voice-agent/model"
)

func noisyRecording(rate int, seconds float64, seed int64) Waveform {
	rng := rand.New(rand.NewSource(seed))
	n := int(float64(rate) * seconds)
	s := make([]float64, n)
	speechStart := rate // first second is noise only
	for i := range s {
		s[i] = 0.02 * rng.NormFloat64()
		if i >= speechStart {
			s[i] += 0.4 * math.Sin(2*math.Pi*300*float64(i)/float64(rate))
		}
	}
	return Waveform{Samples: s, SampleRate: rate}
}

func energy(s []float64) float64 {
	var e float64
	for _, v := range s {
		e += v * v
	}
	return e
}

func TestNoiseReducer_ReducesLeadingNoise(t *testing.T) {
	in := noisyRecording(16000, 2, 7)
	r := NewNoiseReducer(DefaultNoiseSeconds, DefaultPropDecrease)

	out, err := r.Reduce(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, in.SampleRate, out.SampleRate)
	require.Len(t, out.Samples, len(in.Samples))

	noiseIn := energy(in.Samples[2000:14000])
	noiseOut := energy(out.Samples[2000:14000])
	assert.Less(t, noiseOut, 0.5*noiseIn)

	// The tone is far above the noise floor and must survive.
	toneIn := energy(in.Samples[20000:30000])
	toneOut := energy(out.Samples[20000:30000])
	assert.Greater(t, toneOut, 0.5*toneIn)
}

func TestNoiseReducer_FallsBackOnMalformedInput(t *testing.T) {
	r := NewNoiseReducer(DefaultNoiseSeconds, DefaultPropDecrease)

	cases := map[string]Waveform{
		"zero rate":      {Samples: make([]float64, 20000), SampleRate: 0},
		"empty":          {Samples: nil, SampleRate: 16000},
		"too short":      {Samples: make([]float64, 100), SampleRate: 16000},
		"nan samples":    {Samples: append(make([]float64, 20000), math.NaN()), SampleRate: 16000},
		"infinite value": {Samples: append([]float64{math.Inf(1)}, make([]float64, 20000)...), SampleRate: 16000},
	}

	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			var out Waveform
			var err error
			assert.NotPanics(t, func() {
				out, err = r.Reduce(context.Background(), in)
			})
			require.Error(t, err)
			assert.True(t, model.IsKind(err, model.KindDenoiseFailure))
			assert.Equal(t, in.SampleRate, out.SampleRate)
			assert.Len(t, out.Samples, len(in.Samples))
		})
	}
}

func TestNoiseReducer_InvalidSettingsFallBack(t *testing.T) {
	in := noisyRecording(16000, 1, 1)

	r := NewNoiseReducer(DefaultNoiseSeconds, 1.5)
	out, err := r.Reduce(context.Background(), in)
	assert.True(t, model.IsKind(err, model.KindDenoiseFailure))
	assert.Equal(t, in.Samples, out.Samples)

	r = NewNoiseReducer(DefaultNoiseSeconds, DefaultPropDecrease)
	r.FFTSize = 1023
	_, err = r.Reduce(context.Background(), in)
	assert.True(t, model.IsKind(err, model.KindDenoiseFailure))
}

func TestNoiseReducer_CancelledContextFallsBack(t *testing.T) {
	in := noisyRecording(16000, 2, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := NewNoiseReducer(DefaultNoiseSeconds, DefaultPropDecrease).Reduce(ctx, in)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, in.Samples, out.Samples)
}

func TestNoiseReducer_ShortRecordingUsesWholeSignalAsProfile(t *testing.T) {
	// Shorter than the half second profile but long enough for one frame.
	in := noisyRecording(16000, 0.2, 9)

	out, err := NewNoiseReducer(DefaultNoiseSeconds, DefaultPropDecrease).Reduce(context.Background(), in)
	require.NoError(t, err)
	assert.Len(t, out.Samples, len(in.Samples))
}
