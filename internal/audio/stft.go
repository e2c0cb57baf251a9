package audio

import (
	"math"
	"math/rand"
)

// hannWindow returns a periodic Hann window of length n, zero-padded to
// nfft and centered, matching the analysis window used by the forward
// transform.
func hannWindow(n, nfft int) []float64 {
	w := make([]float64, nfft)
	off := (nfft - n) / 2

	for i := 0; i < n; i++ {
		w[off+i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}

	return w
}

// stft computes the short-time Fourier transform of y. The signal is
// reflect-padded by nfft/2 on both sides so frames are centered on their
// hop positions. The result is laid out [bin][frame] with nfft/2+1 bins.
func (t *Transform) stft(y []float64) [][]complex128 {
	nfft := t.cfg.NFFT
	hop := t.cfg.HopSize
	bins := nfft/2 + 1

	padded := reflectPad(y, nfft/2)
	frames := 1 + (len(padded)-nfft)/hop

	out := make([][]complex128, bins)
	for b := range out {
		out[b] = make([]complex128, frames)
	}

	buf := make([]complex128, nfft)
	for f := 0; f < frames; f++ {
		start := f * hop
		for i := 0; i < nfft; i++ {
			buf[i] = complex(padded[start+i]*t.window[i], 0)
		}

		fft(buf)

		for b := 0; b < bins; b++ {
			out[b][f] = buf[b]
		}
	}

	return out
}

// istft inverts a [bin][frame] complex spectrogram by windowed overlap-add,
// normalized by the summed squared window, and trims the nfft/2 centering pad.
func (t *Transform) istft(spec [][]complex128, outLen int) []float64 {
	nfft := t.cfg.NFFT
	hop := t.cfg.HopSize
	bins := nfft/2 + 1
	frames := 0

	if len(spec) > 0 {
		frames = len(spec[0])
	}

	total := nfft + (frames-1)*hop
	if total < nfft {
		total = nfft
	}

	acc := make([]float64, total)
	wsum := make([]float64, total)
	buf := make([]complex128, nfft)

	for f := 0; f < frames; f++ {
		for b := 0; b < bins; b++ {
			buf[b] = spec[b][f]
		}
		// Rebuild the conjugate-symmetric upper half.
		for b := bins; b < nfft; b++ {
			c := spec[nfft-b][f]
			buf[b] = complex(real(c), -imag(c))
		}

		ifft(buf)

		start := f * hop
		for i := 0; i < nfft; i++ {
			acc[start+i] += real(buf[i]) * t.window[i]
			wsum[start+i] += t.window[i] * t.window[i]
		}
	}

	for i := range acc {
		if wsum[i] > 1e-8 {
			acc[i] /= wsum[i]
		}
	}

	// Drop the centering pad.
	acc = acc[nfft/2:]
	if outLen >= 0 && outLen < len(acc) {
		acc = acc[:outLen]
	}

	return acc
}

// griffinLim estimates phase for a magnitude spectrogram by iterative
// projection: random initial phase, then repeated ISTFT/STFT phase updates.
// iters == 0 degenerates into a single-pass random-phase inversion.
func (t *Transform) griffinLim(mag [][]float64, iters int) []float64 {
	bins := len(mag)
	frames := 0

	if bins > 0 {
		frames = len(mag[0])
	}

	rng := rand.New(rand.NewSource(t.cfg.PhaseSeed))

	spec := make([][]complex128, bins)
	for b := range spec {
		spec[b] = make([]complex128, frames)
		for f := range spec[b] {
			phase := 2 * math.Pi * rng.Float64()
			spec[b][f] = complex(mag[b][f]*math.Cos(phase), mag[b][f]*math.Sin(phase))
		}
	}

	y := t.istft(spec, -1)

	for i := 0; i < iters; i++ {
		est := t.stft(y)
		for b := 0; b < bins; b++ {
			n := min(frames, len(est[b]))
			for f := 0; f < n; f++ {
				a := cmplxAngleUnit(est[b][f])
				spec[b][f] = complex(mag[b][f]*real(a), mag[b][f]*imag(a))
			}
		}

		y = t.istft(spec, -1)
	}

	return y
}

// cmplxAngleUnit returns c normalized to unit magnitude, or 1+0i for a zero
// input so silent bins keep a defined phase.
func cmplxAngleUnit(c complex128) complex128 {
	m := math.Hypot(real(c), imag(c))
	if m < 1e-12 {
		return complex(1, 0)
	}

	return complex(real(c)/m, imag(c)/m)
}

func reflectPad(y []float64, pad int) []float64 {
	out := make([]float64, len(y)+2*pad)
	copy(out[pad:], y)

	for i := 0; i < pad; i++ {
		j := i + 1
		if j >= len(y) {
			j = len(y) - 1
		}
		out[pad-1-i] = y[j]

		j = len(y) - 2 - i
		if j < 0 {
			j = 0
		}
		out[pad+len(y)+i] = y[j]
	}

	return out
}
