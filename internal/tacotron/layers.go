package tacotron

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/example/go-melsynth/internal/runtime/tensor"
)

// Linear is a fully connected layer with weight [out, in] and optional bias.
type Linear struct {
	Weight *tensor.Tensor
	Bias   *tensor.Tensor
}

func loadLinear(vb *VarBuilder, name string, withBias bool) (*Linear, error) {
	w, err := vb.Tensor(name + ".weight")
	if err != nil {
		return nil, err
	}

	if len(w.Shape()) != 2 {
		return nil, fmt.Errorf("tacotron: linear %q weight must be rank-2, got %v", name, w.Shape())
	}

	var b *tensor.Tensor

	if withBias {
		b, err = vb.Tensor(name+".bias", w.Shape()[0])
		if err != nil {
			return nil, err
		}
	}

	return &Linear{Weight: w, Bias: b}, nil
}

func (l *Linear) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if l == nil || l.Weight == nil {
		return nil, errors.New("tacotron: linear is not initialized")
	}

	return tensor.Linear(x, l.Weight, l.Bias)
}

// PreNet is the two-layer bottleneck applied to encoder embeddings and to
// the decoder's previous-frame feedback. Dropout stays active outside
// training when the always flag is set; the published weights were trained
// against that behavior.
type PreNet struct {
	FC1     *Linear
	FC2     *Linear
	Dropout float32
}

func loadPreNet(vb *VarBuilder, name string) (*PreNet, error) {
	fc1, err := loadLinear(vb, name+".fc1", true)
	if err != nil {
		return nil, err
	}

	fc2, err := loadLinear(vb, name+".fc2", true)
	if err != nil {
		return nil, err
	}

	return &PreNet{FC1: fc1, FC2: fc2, Dropout: 0.5}, nil
}

// Forward applies fc1 -> ReLU -> dropout -> fc2 -> ReLU -> dropout. A nil
// rng disables dropout.
func (p *PreNet) Forward(x *tensor.Tensor, rng *rand.Rand) (*tensor.Tensor, error) {
	x, err := p.FC1.Forward(x)
	if err != nil {
		return nil, err
	}

	x = dropout(x.ReLU(), p.Dropout, rng)

	x, err = p.FC2.Forward(x)
	if err != nil {
		return nil, err
	}

	return dropout(x.ReLU(), p.Dropout, rng), nil
}

// dropout zeroes units with probability p and rescales survivors by
// 1/(1-p). A nil rng returns x unchanged.
func dropout(x *tensor.Tensor, p float32, rng *rand.Rand) *tensor.Tensor {
	if rng == nil || p <= 0 {
		return x
	}

	scale := 1 / (1 - p)

	return x.Apply(func(v float32) float32 {
		if rng.Float32() < p {
			return 0
		}

		return v * scale
	})
}

// HighwayNetwork gates its transformed input against the identity:
// y = g*relu(W1 x) + (1-g)*x with g = sigmoid(W2 x).
type HighwayNetwork struct {
	W1 *Linear
	W2 *Linear
}

func loadHighway(vb *VarBuilder, name string) (*HighwayNetwork, error) {
	w1, err := loadLinear(vb, name+".W1", true)
	if err != nil {
		return nil, err
	}

	w2, err := loadLinear(vb, name+".W2", true)
	if err != nil {
		return nil, err
	}

	return &HighwayNetwork{W1: w1, W2: w2}, nil
}

func (h *HighwayNetwork) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	x1, err := h.W1.Forward(x)
	if err != nil {
		return nil, err
	}

	x2, err := h.W2.Forward(x)
	if err != nil {
		return nil, err
	}

	g := x2.Sigmoid()

	gated, err := tensor.BroadcastMul(g, x1.ReLU())
	if err != nil {
		return nil, err
	}

	carry, err := tensor.BroadcastMul(g.Apply(func(v float32) float32 { return 1 - v }), x)
	if err != nil {
		return nil, err
	}

	return tensor.BroadcastAdd(gated, carry)
}

// GRUCellParams bundles the four parameter tensors of a single-direction
// GRU cell, packed [3*units, in].
type GRUCellParams struct {
	WeightIH *tensor.Tensor
	WeightHH *tensor.Tensor
	BiasIH   *tensor.Tensor
	BiasHH   *tensor.Tensor
}

func loadGRUCell(vb *VarBuilder, name, suffix string) (*GRUCellParams, error) {
	wih, err := vb.Tensor(name + ".weight_ih" + suffix)
	if err != nil {
		return nil, err
	}

	whh, err := vb.Tensor(name + ".weight_hh" + suffix)
	if err != nil {
		return nil, err
	}

	bih, err := vb.Tensor(name + ".bias_ih" + suffix)
	if err != nil {
		return nil, err
	}

	bhh, err := vb.Tensor(name + ".bias_hh" + suffix)
	if err != nil {
		return nil, err
	}

	return &GRUCellParams{WeightIH: wih, WeightHH: whh, BiasIH: bih, BiasHH: bhh}, nil
}

// LSTMCellParams bundles the parameters of an LSTM cell, packed
// [4*units, in].
type LSTMCellParams struct {
	WeightIH *tensor.Tensor
	WeightHH *tensor.Tensor
	BiasIH   *tensor.Tensor
	BiasHH   *tensor.Tensor
}

func loadLSTMCell(vb *VarBuilder, name string) (*LSTMCellParams, error) {
	wih, err := vb.Tensor(name + ".weight_ih")
	if err != nil {
		return nil, err
	}

	whh, err := vb.Tensor(name + ".weight_hh")
	if err != nil {
		return nil, err
	}

	bih, err := vb.Tensor(name + ".bias_ih")
	if err != nil {
		return nil, err
	}

	bhh, err := vb.Tensor(name + ".bias_hh")
	if err != nil {
		return nil, err
	}

	return &LSTMCellParams{WeightIH: wih, WeightHH: whh, BiasIH: bih, BiasHH: bhh}, nil
}
