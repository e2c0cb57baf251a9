package tacotron

import (
	"fmt"

	"github.com/example/go-melsynth/internal/runtime/ops"
	"github.com/example/go-melsynth/internal/runtime/tensor"
)

const batchNormEps = 1e-5

// BatchNormConv is a bias-free 1-D convolution followed by optional ReLU
// and inference-mode batch normalization.
type BatchNormConv struct {
	Weight  *tensor.Tensor // [out, in, k]
	Gamma   *tensor.Tensor
	Beta    *tensor.Tensor
	Mean    *tensor.Tensor
	Var     *tensor.Tensor
	Kernel  int64
	UseReLU bool
}

func loadBatchNormConv(vb *VarBuilder, name string, relu bool) (*BatchNormConv, error) {
	w, err := vb.Tensor(name + ".conv.weight")
	if err != nil {
		return nil, err
	}

	if len(w.Shape()) != 3 {
		return nil, fmt.Errorf("tacotron: conv %q weight must be rank-3, got %v", name, w.Shape())
	}

	out := w.Shape()[0]

	gamma, err := vb.Tensor(name+".bnorm.weight", out)
	if err != nil {
		return nil, err
	}

	beta, err := vb.Tensor(name+".bnorm.bias", out)
	if err != nil {
		return nil, err
	}

	mean, err := vb.Tensor(name+".bnorm.running_mean", out)
	if err != nil {
		return nil, err
	}

	variance, err := vb.Tensor(name+".bnorm.running_var", out)
	if err != nil {
		return nil, err
	}

	return &BatchNormConv{
		Weight:  w,
		Gamma:   gamma,
		Beta:    beta,
		Mean:    mean,
		Var:     variance,
		Kernel:  w.Shape()[2],
		UseReLU: relu,
	}, nil
}

func (c *BatchNormConv) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	y, err := ops.Conv1D(x, c.Weight, nil, 1, c.Kernel/2, 1)
	if err != nil {
		return nil, err
	}

	if c.UseReLU {
		y = y.ReLU()
	}

	return ops.BatchNorm1D(y, c.Gamma, c.Beta, c.Mean, c.Var, batchNormEps)
}

// BiGRU is a single bidirectional GRU layer run step-wise over a batched
// sequence. Hidden size is half the output width per direction.
type BiGRU struct {
	Forward  *GRUCellParams
	Backward *GRUCellParams
	Hidden   int64
}

func loadBiGRU(vb *VarBuilder, name string, hidden int64) (*BiGRU, error) {
	fwd, err := loadGRUCell(vb, name, "_l0")
	if err != nil {
		return nil, err
	}

	bwd, err := loadGRUCell(vb, name, "_l0_reverse")
	if err != nil {
		return nil, err
	}

	return &BiGRU{Forward: fwd, Backward: bwd, Hidden: hidden}, nil
}

// Run maps [B, T, C] to [B, T, 2*Hidden], concatenating the forward and
// backward passes per timestep.
func (g *BiGRU) Run(x *tensor.Tensor) (*tensor.Tensor, error) {
	shape := x.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("tacotron: bigru input must be rank-3, got %v", shape)
	}

	batch, steps := shape[0], shape[1]

	fwdOut, err := g.runDirection(x, g.Forward, batch, steps, false)
	if err != nil {
		return nil, err
	}

	bwdOut, err := g.runDirection(x, g.Backward, batch, steps, true)
	if err != nil {
		return nil, err
	}

	frames := make([]*tensor.Tensor, steps)
	for t := int64(0); t < steps; t++ {
		frame, err := tensor.Concat([]*tensor.Tensor{fwdOut[t], bwdOut[t]}, -1)
		if err != nil {
			return nil, err
		}

		frames[t], err = frame.Reshape([]int64{batch, 1, 2 * g.Hidden})
		if err != nil {
			return nil, err
		}
	}

	return tensor.Concat(frames, 1)
}

func (g *BiGRU) runDirection(x *tensor.Tensor, cell *GRUCellParams, batch, steps int64, reverse bool) ([]*tensor.Tensor, error) {
	h, err := tensor.Zeros([]int64{batch, g.Hidden})
	if err != nil {
		return nil, err
	}

	out := make([]*tensor.Tensor, steps)

	for i := int64(0); i < steps; i++ {
		t := i
		if reverse {
			t = steps - 1 - i
		}

		step, err := x.Narrow(1, t, 1)
		if err != nil {
			return nil, err
		}

		xt, err := step.Reshape([]int64{batch, x.Shape()[2]})
		if err != nil {
			return nil, err
		}

		h, err = ops.GRUCell(xt, h, cell.WeightIH, cell.WeightHH, cell.BiasIH, cell.BiasHH)
		if err != nil {
			return nil, err
		}

		out[t] = h
	}

	return out, nil
}

// CBHG is the convolution-bank + highway + bidirectional-GRU block used by
// the encoder and the postnet.
type CBHG struct {
	Bank       []*BatchNormConv
	Project1   *BatchNormConv
	Project2   *BatchNormConv
	PreHighway *Linear // set iff the projection width differs from channels
	Highways   []*HighwayNetwork
	RNN        *BiGRU
	channels   int64
}

func loadCBHG(vb *VarBuilder, name string, k, channels, projOut, numHighways int64) (*CBHG, error) {
	bank := make([]*BatchNormConv, k)

	for i := int64(0); i < k; i++ {
		conv, err := loadBatchNormConv(vb, fmt.Sprintf("%s.conv1d_bank.%d", name, i), true)
		if err != nil {
			return nil, err
		}

		bank[i] = conv
	}

	p1, err := loadBatchNormConv(vb, name+".conv_project1", true)
	if err != nil {
		return nil, err
	}

	p2, err := loadBatchNormConv(vb, name+".conv_project2", false)
	if err != nil {
		return nil, err
	}

	var pre *Linear

	if projOut != channels {
		pre, err = loadLinear(vb, name+".pre_highway", false)
		if err != nil {
			return nil, err
		}
	}

	highways := make([]*HighwayNetwork, numHighways)

	for i := int64(0); i < numHighways; i++ {
		h, err := loadHighway(vb, fmt.Sprintf("%s.highways.%d", name, i))
		if err != nil {
			return nil, err
		}

		highways[i] = h
	}

	rnn, err := loadBiGRU(vb, name+".rnn", channels/2)
	if err != nil {
		return nil, err
	}

	return &CBHG{
		Bank:       bank,
		Project1:   p1,
		Project2:   p2,
		PreHighway: pre,
		Highways:   highways,
		RNN:        rnn,
		channels:   channels,
	}, nil
}

// Forward maps [B, C, T] to [B, T, channels]: convolution bank over
// increasing kernel sizes, max pooling, two projections, a residual
// connection back to the input, highway layers and the bidirectional GRU.
func (c *CBHG) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	shape := x.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("tacotron: cbhg input must be rank-3, got %v", shape)
	}

	seqLen := shape[2]
	residual := x

	bankOut := make([]*tensor.Tensor, len(c.Bank))

	for i, conv := range c.Bank {
		y, err := conv.Forward(x)
		if err != nil {
			return nil, err
		}

		// Even kernels pad one frame long; trim back to the input length.
		bankOut[i], err = y.Narrow(2, 0, seqLen)
		if err != nil {
			return nil, err
		}
	}

	stacked, err := tensor.Concat(bankOut, 1)
	if err != nil {
		return nil, err
	}

	pooled, err := ops.MaxPool1D(stacked, 2, 1, 1)
	if err != nil {
		return nil, err
	}

	pooled, err = pooled.Narrow(2, 0, seqLen)
	if err != nil {
		return nil, err
	}

	y, err := c.Project1.Forward(pooled)
	if err != nil {
		return nil, err
	}

	y, err = c.Project2.Forward(y)
	if err != nil {
		return nil, err
	}

	y, err = tensor.BroadcastAdd(y, residual)
	if err != nil {
		return nil, err
	}

	y, err = y.Transpose(1, 2)
	if err != nil {
		return nil, err
	}

	if c.PreHighway != nil {
		y, err = c.PreHighway.Forward(y)
		if err != nil {
			return nil, err
		}
	}

	for _, h := range c.Highways {
		y, err = h.Forward(y)
		if err != nil {
			return nil, err
		}
	}

	return c.RNN.Run(y)
}
