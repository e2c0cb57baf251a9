// Package audio implements the spectrogram transform: waveform to
// normalized decibel mel/linear spectrograms and back, plus WAV
// encode/decode. All basis matrices are memoized per Transform instance;
// there is no package-level cache.
package audio

import (
	"errors"
	"fmt"
	"math"
)

// Inversion selects the phase-reconstruction strategy for the inverse
// transform.
type Inversion int

const (
	// InversionGriffinLim runs the configured number of iterative phase
	// estimation rounds.
	InversionGriffinLim Inversion = iota
	// InversionDirect performs a single inverse STFT pass with random phase.
	InversionDirect
)

// ErrNormalizeRange reports spectrogram values outside the normalization
// contract while clipping is disabled. This surfaces upstream
// data-preparation bugs instead of masking them.
var ErrNormalizeRange = errors.New("audio: spectrogram outside normalization range")

// Config holds the transform parameters. NFFT must be a power of two.
type Config struct {
	SampleRate int
	NFFT       int
	HopSize    int
	WinSize    int
	NumMels    int
	FMin       float64
	FMax       float64

	MinLevelDB  float64
	RefLevelDB  float64
	MaxAbsValue float64

	Preemphasis  float64
	Preemphasize bool

	SignalNormalization bool
	SymmetricMels       bool
	AllowClipping       bool

	Power           float64
	GriffinLimIters int
	Inversion       Inversion
	PhaseSeed       int64
}

// DefaultConfig returns the standard 16 kHz synthesis configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate:          16000,
		NFFT:                1024,
		HopSize:             256,
		WinSize:             1024,
		NumMels:             80,
		FMin:                55,
		FMax:                7600,
		MinLevelDB:          -100,
		RefLevelDB:          20,
		MaxAbsValue:         4,
		Preemphasis:         0.97,
		Preemphasize:        true,
		SignalNormalization: true,
		SymmetricMels:       true,
		AllowClipping:       true,
		Power:               1.5,
		GriffinLimIters:     60,
		Inversion:           InversionGriffinLim,
	}
}

// Transform converts between waveforms and normalized dB spectrograms. It
// owns the window and the mel basis plus its approximate inverse, built once
// at construction.
type Transform struct {
	cfg      Config
	window   []float64
	melBasis [][]float64
	invMel   [][]float64
}

// NewTransform validates cfg and precomputes the analysis window and mel
// bases.
func NewTransform(cfg Config) (*Transform, error) {
	if !isPowerOfTwo(cfg.NFFT) {
		return nil, fmt.Errorf("audio: NFFT %d is not a power of two", cfg.NFFT)
	}

	if cfg.WinSize <= 0 || cfg.WinSize > cfg.NFFT {
		return nil, fmt.Errorf("audio: window size %d outside (0, %d]", cfg.WinSize, cfg.NFFT)
	}

	if cfg.HopSize <= 0 {
		return nil, fmt.Errorf("audio: hop size %d must be positive", cfg.HopSize)
	}

	basis, err := melFilterBank(cfg.SampleRate, cfg.NFFT, cfg.NumMels, cfg.FMin, cfg.FMax)
	if err != nil {
		return nil, err
	}

	return &Transform{
		cfg:      cfg,
		window:   hannWindow(cfg.WinSize, cfg.NFFT),
		melBasis: basis,
		invMel:   inverseMelBasis(basis),
	}, nil
}

// Config returns the transform configuration.
func (t *Transform) Config() Config {
	return t.cfg
}

// NumBins returns the linear-spectrogram bin count, NFFT/2 + 1.
func (t *Transform) NumBins() int {
	return t.cfg.NFFT/2 + 1
}

// MelSpectrogram computes the normalized dB mel spectrogram of wav, laid out
// [mel][frame].
func (t *Transform) MelSpectrogram(wav []float32) ([][]float32, error) {
	mag := t.magnitude(wav)
	s := t.ampToDB(matApply(t.melBasis, mag))

	return t.finishForward(s)
}

// LinearSpectrogram computes the normalized dB linear spectrogram of wav,
// laid out [bin][frame].
func (t *Transform) LinearSpectrogram(wav []float32) ([][]float32, error) {
	s := t.ampToDB(t.magnitude(wav))

	return t.finishForward(s)
}

// InvMelSpectrogram reconstructs a waveform from a normalized dB mel
// spectrogram.
func (t *Transform) InvMelSpectrogram(mel [][]float32) ([]float32, error) {
	d, err := t.maybeDenormalize(mel)
	if err != nil {
		return nil, err
	}

	linear := matApply(t.invMel, t.dbToAmp(d, t.cfg.RefLevelDB))
	for _, row := range linear {
		for i, v := range row {
			if v < 1e-10 {
				row[i] = 1e-10
			}
		}
	}

	return t.reconstruct(linear), nil
}

// InvLinearSpectrogram reconstructs a waveform from a normalized dB linear
// spectrogram.
func (t *Transform) InvLinearSpectrogram(linear [][]float32) ([]float32, error) {
	d, err := t.maybeDenormalize(linear)
	if err != nil {
		return nil, err
	}

	return t.reconstruct(t.dbToAmp(d, t.cfg.RefLevelDB)), nil
}

// Normalize maps a dB spectrogram into the model's value range. With
// clipping disabled, input outside [MinLevelDB, 0] returns
// ErrNormalizeRange.
func (t *Transform) Normalize(s [][]float64) ([][]float32, error) {
	cfg := t.cfg

	if !cfg.AllowClipping {
		for _, row := range s {
			for _, v := range row {
				if v > 0 || v < cfg.MinLevelDB {
					return nil, fmt.Errorf("%w: value %g not in [%g, 0]", ErrNormalizeRange, v, cfg.MinLevelDB)
				}
			}
		}
	}

	out := make([][]float32, len(s))
	for r, row := range s {
		out[r] = make([]float32, len(row))
		for i, v := range row {
			scaled := (v - cfg.MinLevelDB) / -cfg.MinLevelDB

			var n float64
			if cfg.SymmetricMels {
				n = 2*cfg.MaxAbsValue*scaled - cfg.MaxAbsValue
				if cfg.AllowClipping {
					n = clamp(n, -cfg.MaxAbsValue, cfg.MaxAbsValue)
				}
			} else {
				n = cfg.MaxAbsValue * scaled
				if cfg.AllowClipping {
					n = clamp(n, 0, cfg.MaxAbsValue)
				}
			}

			out[r][i] = float32(n)
		}
	}

	return out, nil
}

// Denormalize maps normalized spectrogram values back to the dB scale. With
// clipping enabled, input is clamped to the normalized range first.
func (t *Transform) Denormalize(s [][]float32) [][]float64 {
	cfg := t.cfg

	out := make([][]float64, len(s))
	for r, row := range s {
		out[r] = make([]float64, len(row))
		for i, raw := range row {
			v := float64(raw)

			if cfg.SymmetricMels {
				if cfg.AllowClipping {
					v = clamp(v, -cfg.MaxAbsValue, cfg.MaxAbsValue)
				}
				out[r][i] = (v+cfg.MaxAbsValue)*-cfg.MinLevelDB/(2*cfg.MaxAbsValue) + cfg.MinLevelDB
			} else {
				if cfg.AllowClipping {
					v = clamp(v, 0, cfg.MaxAbsValue)
				}
				out[r][i] = v*-cfg.MinLevelDB/cfg.MaxAbsValue + cfg.MinLevelDB
			}
		}
	}

	return out
}

// magnitude runs preemphasis and the STFT, returning |STFT| as [bin][frame].
func (t *Transform) magnitude(wav []float32) [][]float64 {
	y := make([]float64, len(wav))
	for i, v := range wav {
		y[i] = float64(v)
	}

	y = t.preemphasize(y)
	spec := t.stft(y)

	mag := make([][]float64, len(spec))
	for b, row := range spec {
		mag[b] = make([]float64, len(row))
		for f, c := range row {
			mag[b][f] = math.Hypot(real(c), imag(c))
		}
	}

	return mag
}

func (t *Transform) finishForward(s [][]float64) ([][]float32, error) {
	for _, row := range s {
		for i := range row {
			row[i] -= t.cfg.RefLevelDB
		}
	}

	if t.cfg.SignalNormalization {
		return t.Normalize(s)
	}

	out := make([][]float32, len(s))
	for r, row := range s {
		out[r] = make([]float32, len(row))
		for i, v := range row {
			out[r][i] = float32(v)
		}
	}

	return out, nil
}

func (t *Transform) maybeDenormalize(s [][]float32) ([][]float64, error) {
	if t.cfg.SignalNormalization {
		return t.Denormalize(s), nil
	}

	out := make([][]float64, len(s))
	for r, row := range s {
		out[r] = make([]float64, len(row))
		for i, v := range row {
			out[r][i] = float64(v)
		}
	}

	return out, nil
}

// reconstruct raises the amplitude spectrogram to the configured power,
// recovers phase per the configured strategy, and undoes preemphasis.
func (t *Transform) reconstruct(amp [][]float64) []float32 {
	for _, row := range amp {
		for i, v := range row {
			row[i] = math.Pow(v, t.cfg.Power)
		}
	}

	iters := t.cfg.GriffinLimIters
	if t.cfg.Inversion == InversionDirect {
		iters = 0
	}

	y := t.invPreemphasize(t.griffinLim(amp, iters))

	out := make([]float32, len(y))
	for i, v := range y {
		out[i] = float32(v)
	}

	return out
}

// ampToDB converts amplitudes to decibels with the configured minimum level
// floor.
func (t *Transform) ampToDB(s [][]float64) [][]float64 {
	minLevel := math.Exp(t.cfg.MinLevelDB / 20 * math.Ln10)

	for _, row := range s {
		for i, v := range row {
			row[i] = 20 * math.Log10(math.Max(minLevel, v))
		}
	}

	return s
}

// dbToAmp converts decibels (after adding shift) back to amplitudes.
func (t *Transform) dbToAmp(s [][]float64, shift float64) [][]float64 {
	out := make([][]float64, len(s))
	for r, row := range s {
		out[r] = make([]float64, len(row))
		for i, v := range row {
			out[r][i] = math.Pow(10, (v+shift)*0.05)
		}
	}

	return out
}

// preemphasize applies the high-pass FIR y[n] = x[n] - k*x[n-1].
func (t *Transform) preemphasize(y []float64) []float64 {
	if !t.cfg.Preemphasize || len(y) == 0 {
		return y
	}

	k := t.cfg.Preemphasis
	out := make([]float64, len(y))
	out[0] = y[0]

	for i := 1; i < len(y); i++ {
		out[i] = y[i] - k*y[i-1]
	}

	return out
}

// invPreemphasize applies the inverse IIR y[n] = x[n] + k*y[n-1].
func (t *Transform) invPreemphasize(y []float64) []float64 {
	if !t.cfg.Preemphasize || len(y) == 0 {
		return y
	}

	k := t.cfg.Preemphasis
	out := make([]float64, len(y))
	out[0] = y[0]

	for i := 1; i < len(y); i++ {
		out[i] = y[i] + k*out[i-1]
	}

	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
