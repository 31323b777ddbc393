package audio

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/mrsingh-rishi/voice-agent/model"
)

// Defaults for NoiseReducer.
const (
	DefaultNoiseSeconds = 0.5
	DefaultPropDecrease = 0.7
)

const (
	defaultFFTSize          = 1024
	defaultHopSize          = 256
	defaultNStdThresh       = 1.5
	defaultSmoothingSeconds = 2.0
	defaultThreshMult       = 2.0
	defaultSigmoidSlope     = 10.0
	magnitudeFloor          = 1e-10
)

// NoiseReducer applies non-stationary spectral gating. The leading
// NoiseSeconds of every recording are assumed to hold noise only and serve
// as the noise profile; recordings that start with speech denoise poorly.
type NoiseReducer struct {
	NoiseSeconds     float64
	PropDecrease     float64
	FFTSize          int
	HopSize          int
	NStdThresh       float64 // stationary gate: noise mean + NStdThresh*std (dB)
	SmoothingSeconds float64 // window of the time-smoothed signal envelope
	ThreshMult       float64 // non-stationary gate opens above envelope*(1+ThreshMult)
	SigmoidSlope     float64
}

// NewNoiseReducer returns a reducer with the given profile length and
// reduction strength and default STFT settings.
func NewNoiseReducer(noiseSeconds, propDecrease float64) *NoiseReducer {
	return &NoiseReducer{
		NoiseSeconds:     noiseSeconds,
		PropDecrease:     propDecrease,
		FFTSize:          defaultFFTSize,
		HopSize:          defaultHopSize,
		NStdThresh:       defaultNStdThresh,
		SmoothingSeconds: defaultSmoothingSeconds,
		ThreshMult:       defaultThreshMult,
		SigmoidSlope:     defaultSigmoidSlope,
	}
}

// Reduce returns the denoised waveform. It never panics: on any failure it
// returns the input waveform unchanged together with a KindDenoiseFailure.
func (r *NoiseReducer) Reduce(ctx context.Context, in Waveform) (out Waveform, err error) {
	const op = "audio.Denoise"
	defer func() {
		if p := recover(); p != nil {
			out, err = in, model.NewError(model.KindDenoiseFailure, op, fmt.Errorf("panic: %v", p))
		}
	}()

	samples, err := r.reduce(ctx, in)
	if err != nil {
		return in, model.NewError(model.KindDenoiseFailure, op, err)
	}
	return Waveform{Samples: samples, SampleRate: in.SampleRate}, nil
}

func (r *NoiseReducer) reduce(ctx context.Context, in Waveform) ([]float64, error) {
	n, hop := r.FFTSize, r.HopSize
	switch {
	case in.SampleRate <= 0:
		return nil, errors.Errorf("invalid sample rate %d", in.SampleRate)
	case n <= 0 || n%2 != 0 || hop <= 0 || hop > n:
		return nil, errors.Errorf("invalid stft layout: fft %d hop %d", n, hop)
	case r.PropDecrease < 0 || r.PropDecrease > 1:
		return nil, errors.Errorf("prop decrease %.2f out of range", r.PropDecrease)
	}
	for i, v := range in.Samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.Errorf("non-finite sample at %d", i)
		}
	}

	noiseLen := int(float64(in.SampleRate) * r.NoiseSeconds)
	if noiseLen > len(in.Samples) {
		noiseLen = len(in.Samples)
	}
	if noiseLen < n {
		return nil, errors.Errorf("noise profile needs %d samples, have %d", n, noiseLen)
	}

	window := hann(n)
	fft := fourier.NewFFT(n)
	bins := n/2 + 1

	noiseSpec, err := stft(ctx, fft, in.Samples[:noiseLen], window, hop)
	if err != nil {
		return nil, err
	}
	thresh := noiseThreshold(noiseSpec, bins, r.NStdThresh)

	spec, err := stft(ctx, fft, in.Samples, window, hop)
	if err != nil {
		return nil, err
	}
	frames := len(spec)

	mag := make([][]float64, frames)
	for t := range spec {
		mag[t] = make([]float64, bins)
		for b, c := range spec[t] {
			mag[t][b] = cmplx.Abs(c)
		}
	}

	smoothFrames := int(r.SmoothingSeconds * float64(in.SampleRate) / float64(hop))
	if smoothFrames < 1 {
		smoothFrames = 1
	}
	envelope := smoothTime(mag, bins, smoothFrames)

	mask := make([][]float64, frames)
	for t := 0; t < frames; t++ {
		mask[t] = make([]float64, bins)
		for b := 0; b < bins; b++ {
			m := 0.0
			if toDB(mag[t][b]) > thresh[b] {
				m = 1
			}
			rel := (mag[t][b] - envelope[t][b]) / (envelope[t][b] + magnitudeFloor)
			ns := 1 / (1 + math.Exp(-r.SigmoidSlope*(rel-r.ThreshMult)))
			mask[t][b] = math.Max(m, ns)
		}
	}
	mask = smoothMask(mask, bins)

	for t := 0; t < frames; t++ {
		for b := 0; b < bins; b++ {
			gain := 1 - r.PropDecrease*(1-mask[t][b])
			spec[t][b] *= complex(gain, 0)
		}
	}

	return istft(ctx, fft, spec, window, hop, len(in.Samples))
}

func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

func toDB(m float64) float64 {
	return 20 * math.Log10(m+magnitudeFloor)
}

// stft frames x with a centered window; frame t covers x[t*hop-n/2 : t*hop+n/2].
func stft(ctx context.Context, fft *fourier.FFT, x, window []float64, hop int) ([][]complex128, error) {
	n := len(window)
	pad := n / 2
	frames := 1 + (len(x)+hop-1)/hop
	padded := make([]float64, (frames-1)*hop+n)
	copy(padded[pad:], x)

	out := make([][]complex128, frames)
	buf := make([]float64, n)
	for t := 0; t < frames; t++ {
		if t%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		start := t * hop
		for i := 0; i < n; i++ {
			buf[i] = padded[start+i] * window[i]
		}
		out[t] = fft.Coefficients(nil, buf)
	}
	return out, nil
}

func istft(ctx context.Context, fft *fourier.FFT, spec [][]complex128, window []float64, hop, length int) ([]float64, error) {
	n := len(window)
	pad := n / 2
	size := (len(spec)-1)*hop + n
	acc := make([]float64, size)
	wsum := make([]float64, size)
	frame := make([]float64, n)

	for t, coeffs := range spec {
		if t%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		// gonum's inverse transform is unnormalized.
		fft.Sequence(frame, coeffs)
		start := t * hop
		for i := 0; i < n; i++ {
			acc[start+i] += frame[i] / float64(n) * window[i]
			wsum[start+i] += window[i] * window[i]
		}
	}

	out := make([]float64, length)
	for i := range out {
		j := i + pad
		if wsum[j] > magnitudeFloor {
			out[i] = acc[j] / wsum[j]
		}
		if math.IsNaN(out[i]) || math.IsInf(out[i], 0) {
			return nil, errors.Errorf("non-finite output sample at %d", i)
		}
	}
	return out, nil
}

func noiseThreshold(spec [][]complex128, bins int, nStd float64) []float64 {
	thresh := make([]float64, bins)
	frames := float64(len(spec))
	for b := 0; b < bins; b++ {
		var sum, sq float64
		for t := range spec {
			db := toDB(cmplx.Abs(spec[t][b]))
			sum += db
			sq += db * db
		}
		mean := sum / frames
		variance := math.Max(sq/frames-mean*mean, 0)
		thresh[b] = mean + nStd*math.Sqrt(variance)
	}
	return thresh
}

// smoothTime is a centered moving average along time for every bin.
func smoothTime(mag [][]float64, bins, width int) [][]float64 {
	frames := len(mag)
	half := width / 2
	out := make([][]float64, frames)
	for t := range out {
		out[t] = make([]float64, bins)
	}
	prefix := make([]float64, frames+1)
	for b := 0; b < bins; b++ {
		for t := 0; t < frames; t++ {
			prefix[t+1] = prefix[t] + mag[t][b]
		}
		for t := 0; t < frames; t++ {
			lo := max(t-half, 0)
			hi := min(t+half+1, frames)
			out[t][b] = (prefix[hi] - prefix[lo]) / float64(hi-lo)
		}
	}
	return out
}

// smoothMask averages each mask cell with its time/frequency neighbours to
// avoid isolated gated bins.
func smoothMask(mask [][]float64, bins int) [][]float64 {
	frames := len(mask)
	out := make([][]float64, frames)
	for t := 0; t < frames; t++ {
		out[t] = make([]float64, bins)
		for b := 0; b < bins; b++ {
			var sum float64
			var count int
			for dt := -1; dt <= 1; dt++ {
				for db := -1; db <= 1; db++ {
					tt, bb := t+dt, b+db
					if tt < 0 || tt >= frames || bb < 0 || bb >= bins {
						continue
					}
					sum += mask[tt][bb]
					count++
				}
			}
			out[t][b] = sum / float64(count)
		}
	}
	return out
}
