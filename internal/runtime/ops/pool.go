package ops

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/go-melsynth/internal/runtime/tensor"
)

// MaxPool1D applies max pooling over the last dimension.
// input: [batch, channels, length]. Padding positions count as -Inf.
func MaxPool1D(input *tensor.Tensor, kernel, stride, padding int64) (*tensor.Tensor, error) {
	if input == nil {
		return nil, errors.New("ops: maxpool1d requires non-nil input")
	}

	if kernel <= 0 || stride <= 0 || padding < 0 {
		return nil, errors.New("ops: maxpool1d kernel/stride must be > 0 and padding >= 0")
	}

	shape := input.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("ops: maxpool1d expects rank-3 input, got %v", shape)
	}

	batch, channels, length := shape[0], shape[1], shape[2]

	outLen := (length+2*padding-kernel)/stride + 1
	if outLen <= 0 {
		return nil, fmt.Errorf("ops: maxpool1d produced non-positive output length %d", outLen)
	}

	out, err := tensor.Zeros([]int64{batch, channels, outLen})
	if err != nil {
		return nil, err
	}

	inData := input.RawData()
	outData := out.RawData()
	negInf := float32(math.Inf(-1))

	for b := range batch {
		for c := range channels {
			inBase := (b*channels + c) * length
			outBase := (b*channels + c) * outLen

			for ox := range outLen {
				best := negInf

				for k := range kernel {
					pos := ox*stride - padding + k
					if pos < 0 || pos >= length {
						continue
					}

					if v := inData[inBase+pos]; v > best {
						best = v
					}
				}

				outData[outBase+ox] = best
			}
		}
	}

	return out, nil
}
