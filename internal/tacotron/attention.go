package tacotron

import (
	"fmt"
	"math"

	"github.com/example/go-melsynth/internal/runtime/ops"
	"github.com/example/go-melsynth/internal/runtime/tensor"
)

const (
	lsaKernelSize = 31
	lsaFilters    = 32
)

// LSA is location-sensitive attention. It keeps a cumulative sum of every
// step's attention weights and feeds that history through a convolution so
// scoring is biased away from already-attended encoder positions.
//
// The accumulators belong to one decode sequence. Score zero-initializes
// them exactly when t == 0; no other operation clears them, so a caller
// restarting decoding must pass t == 0 again.
type LSA struct {
	ConvWeight *tensor.Tensor // [filters, 1, kernel]
	ConvBias   *tensor.Tensor
	L          *Linear
	W          *Linear // carries the attention bias term
	V          *Linear

	cumulative *tensor.Tensor // [B, T]
	attention  *tensor.Tensor // [B, T]
}

func loadLSA(vb *VarBuilder, name string) (*LSA, error) {
	convW, err := vb.Tensor(name + ".conv.weight")
	if err != nil {
		return nil, err
	}

	if len(convW.Shape()) != 3 || convW.Shape()[1] != 1 {
		return nil, fmt.Errorf("tacotron: lsa conv weight shape %v, want [filters, 1, kernel]", convW.Shape())
	}

	convB, err := vb.Tensor(name+".conv.bias", convW.Shape()[0])
	if err != nil {
		return nil, err
	}

	l, err := loadLinear(vb, name+".L", false)
	if err != nil {
		return nil, err
	}

	w, err := loadLinear(vb, name+".W", true)
	if err != nil {
		return nil, err
	}

	v, err := loadLinear(vb, name+".v", false)
	if err != nil {
		return nil, err
	}

	return &LSA{ConvWeight: convW, ConvBias: convB, L: l, W: w, V: v}, nil
}

// Cumulative returns the accumulated attention weights, [B, T].
func (a *LSA) Cumulative() *tensor.Tensor {
	return a.cumulative
}

// Attention returns the most recent step's attention weights, [B, T].
func (a *LSA) Attention() *tensor.Tensor {
	return a.attention
}

// Score computes this step's attention weights over the encoder sequence.
// encProj is [B, T, attnDims], query [B, attnDims], chars the raw input
// index rows used to mask padding (index 0). The result is [B, 1, T],
// ready to multiply against the encoder sequence.
func (a *LSA) Score(encProj, query *tensor.Tensor, t int64, chars [][]int64) (*tensor.Tensor, error) {
	shape := encProj.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("tacotron: attention encoder projection must be rank-3, got %v", shape)
	}

	batch, steps := shape[0], shape[1]

	if t == 0 {
		var err error

		a.cumulative, err = tensor.Zeros([]int64{batch, steps})
		if err != nil {
			return nil, err
		}

		a.attention, err = tensor.Zeros([]int64{batch, steps})
		if err != nil {
			return nil, err
		}
	}

	if a.cumulative == nil {
		return nil, fmt.Errorf("tacotron: attention scored at step %d before step 0", t)
	}

	if int64(len(chars)) != batch {
		return nil, fmt.Errorf("tacotron: attention mask has %d rows for batch %d", len(chars), batch)
	}

	processedQuery, err := a.W.Forward(query)
	if err != nil {
		return nil, err
	}

	processedQuery, err = processedQuery.Reshape([]int64{batch, 1, processedQuery.Shape()[1]})
	if err != nil {
		return nil, err
	}

	location, err := a.cumulative.Reshape([]int64{batch, 1, steps})
	if err != nil {
		return nil, err
	}

	loc, err := ops.Conv1D(location, a.ConvWeight, a.ConvBias, 1, (lsaKernelSize-1)/2, 1)
	if err != nil {
		return nil, err
	}

	loc, err = loc.Transpose(1, 2)
	if err != nil {
		return nil, err
	}

	processedLoc, err := a.L.Forward(loc)
	if err != nil {
		return nil, err
	}

	u, err := tensor.BroadcastAdd(processedQuery, encProj)
	if err != nil {
		return nil, err
	}

	u, err = tensor.BroadcastAdd(u, processedLoc)
	if err != nil {
		return nil, err
	}

	u, err = a.V.Forward(u.Tanh())
	if err != nil {
		return nil, err
	}

	u, err = u.Reshape([]int64{batch, steps})
	if err != nil {
		return nil, err
	}

	// Padding positions get -Inf logits so softmax assigns them exactly
	// zero weight.
	negInf := float32(math.Inf(-1))
	data := u.RawData()

	for b := int64(0); b < batch; b++ {
		row := chars[b]
		if int64(len(row)) != steps {
			return nil, fmt.Errorf("tacotron: attention mask row %d has %d chars for %d encoder steps", b, len(row), steps)
		}

		for j := int64(0); j < steps; j++ {
			if row[j] == 0 {
				data[b*steps+j] = negInf
			}
		}
	}

	scores, err := tensor.Softmax(u, 1)
	if err != nil {
		return nil, err
	}

	a.attention = scores

	a.cumulative, err = tensor.BroadcastAdd(a.cumulative, scores)
	if err != nil {
		return nil, err
	}

	return scores.Reshape([]int64{batch, 1, steps})
}
