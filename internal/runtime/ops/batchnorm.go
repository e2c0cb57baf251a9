package ops

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/go-melsynth/internal/runtime/tensor"
)

// BatchNorm1D normalizes per channel using running statistics.
// input: [batch, channels, length]; gamma/beta/mean/variance: [channels].
// Training-time batch statistics are out of scope here; the model carries
// running estimates as parameters and always normalizes against them.
func BatchNorm1D(input, gamma, beta, mean, variance *tensor.Tensor, eps float32) (*tensor.Tensor, error) {
	if input == nil || gamma == nil || beta == nil || mean == nil || variance == nil {
		return nil, errors.New("ops: batchnorm1d requires non-nil tensors")
	}

	if eps <= 0 {
		return nil, errors.New("ops: batchnorm1d eps must be > 0")
	}

	shape := input.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("ops: batchnorm1d expects rank-3 input, got %v", shape)
	}

	channels := shape[1]
	for _, p := range []*tensor.Tensor{gamma, beta, mean, variance} {
		if p.Rank() != 1 || p.Shape()[0] != channels {
			return nil, fmt.Errorf("ops: batchnorm1d parameter shape %v does not match %d channels", p.Shape(), channels)
		}
	}

	out := input.Clone()
	data := out.RawData()
	gData := gamma.RawData()
	bData := beta.RawData()
	mData := mean.RawData()
	vData := variance.RawData()

	batch, length := shape[0], shape[2]
	for b := range batch {
		for c := range channels {
			scale := gData[c] / float32(math.Sqrt(float64(vData[c]+eps)))
			shift := bData[c] - mData[c]*scale

			base := (b*channels + c) * length
			for i := base; i < base+length; i++ {
				data[i] = data[i]*scale + shift
			}
		}
	}

	return out, nil
}
