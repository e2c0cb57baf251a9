package audio

import (
	"fmt"
	"math"
)

func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

// melFilterBank builds a [numMels][nfft/2+1] bank of triangular filters with
// mel-spaced center frequencies between fmin and fmax.
func melFilterBank(sampleRate, nfft, numMels int, fmin, fmax float64) ([][]float64, error) {
	if fmax > float64(sampleRate)/2 {
		return nil, fmt.Errorf("audio: fmax %g exceeds Nyquist %g", fmax, float64(sampleRate)/2)
	}

	if fmin < 0 || fmin >= fmax {
		return nil, fmt.Errorf("audio: invalid mel band [%g, %g]", fmin, fmax)
	}

	bins := nfft/2 + 1

	melLo := hzToMel(fmin)
	melHi := hzToMel(fmax)

	// numMels+2 edge frequencies mapped onto FFT bin positions.
	edges := make([]float64, numMels+2)
	for i := range edges {
		mel := melLo + (melHi-melLo)*float64(i)/float64(numMels+1)
		edges[i] = melToHz(mel) * float64(nfft) / float64(sampleRate)
	}

	bank := make([][]float64, numMels)
	for m := range bank {
		bank[m] = make([]float64, bins)
		left, center, right := edges[m], edges[m+1], edges[m+2]

		for b := 0; b < bins; b++ {
			f := float64(b)
			switch {
			case f > left && f <= center:
				bank[m][b] = (f - left) / (center - left)
			case f > center && f < right:
				bank[m][b] = (right - f) / (right - center)
			}
		}
	}

	return bank, nil
}

// inverseMelBasis approximates the pseudo-inverse of a triangular filter
// bank by its transpose with per-column renormalization. Exact for the
// interior of each band; accurate enough for signal inversion, where
// Griffin-Lim discards fine spectral detail anyway.
func inverseMelBasis(bank [][]float64) [][]float64 {
	numMels := len(bank)
	bins := 0

	if numMels > 0 {
		bins = len(bank[0])
	}

	inv := make([][]float64, bins)
	for b := range inv {
		inv[b] = make([]float64, numMels)

		var norm float64
		for m := 0; m < numMels; m++ {
			norm += bank[m][b]
		}

		if norm <= 0 {
			continue
		}

		for m := 0; m < numMels; m++ {
			inv[b][m] = bank[m][b] / norm
		}
	}

	return inv
}

// matApply computes basis @ spec for [rows][inner] x [inner][frames].
func matApply(basis, spec [][]float64) [][]float64 {
	frames := 0
	if len(spec) > 0 {
		frames = len(spec[0])
	}

	out := make([][]float64, len(basis))
	for r := range basis {
		out[r] = make([]float64, frames)
		for k, w := range basis[r] {
			if w == 0 {
				continue
			}
			row := spec[k]
			for f := 0; f < frames; f++ {
				out[r][f] += w * row[f]
			}
		}
	}

	return out
}
