package tacotron

import (
	"fmt"
	"math/rand"

	"github.com/example/go-melsynth/internal/runtime/ops"
	"github.com/example/go-melsynth/internal/runtime/tensor"
)

// DecoderState is the per-sequence recurrent state bundle: the attention
// GRU hidden state, two residual LSTM hidden/cell pairs and the previous
// context vector. It is a value bundle replaced wholesale each step, never
// mutated in place, so concurrent decode calls simply allocate their own.
type DecoderState struct {
	AttnHidden *tensor.Tensor // [B, decoderDims]
	RNN1Hidden *tensor.Tensor // [B, lstmDims]
	RNN2Hidden *tensor.Tensor // [B, lstmDims]
	RNN1Cell   *tensor.Tensor // [B, lstmDims]
	RNN2Cell   *tensor.Tensor // [B, lstmDims]
	Context    *tensor.Tensor // [B, encoderDims+speakerEmbedSize]
}

// NewDecoderState allocates the zero state for a decode sequence.
func NewDecoderState(cfg Config, batch int64) (*DecoderState, error) {
	s := &DecoderState{}

	for _, target := range []struct {
		dst  **tensor.Tensor
		dims int64
	}{
		{&s.AttnHidden, cfg.DecoderDims},
		{&s.RNN1Hidden, cfg.LSTMDims},
		{&s.RNN2Hidden, cfg.LSTMDims},
		{&s.RNN1Cell, cfg.LSTMDims},
		{&s.RNN2Cell, cfg.LSTMDims},
		{&s.Context, cfg.contextDims()},
	} {
		t, err := tensor.Zeros([]int64{batch, target.dims})
		if err != nil {
			return nil, err
		}

		*target.dst = t
	}

	return s, nil
}

// Decoder produces one frame group per step: prenet on the previous frame,
// attention GRU, location-sensitive scoring, two residual LSTM cells and
// the mel/stop projections.
type Decoder struct {
	cfg Config

	Prenet   *PreNet
	AttnNet  *LSA
	AttnRNN  *GRUCellParams
	RNNInput *Linear
	ResRNN1  *LSTMCellParams
	ResRNN2  *LSTMCellParams
	MelProj  *Linear
	StopProj *Linear

	r int64
}

func loadDecoder(vb *VarBuilder, cfg Config) (*Decoder, error) {
	prenet, err := loadPreNet(vb, "prenet")
	if err != nil {
		return nil, err
	}

	prenet.Dropout = cfg.Dropout

	attnNet, err := loadLSA(vb, "attn_net")
	if err != nil {
		return nil, err
	}

	attnRNN, err := loadGRUCell(vb, "attn_rnn", "")
	if err != nil {
		return nil, err
	}

	rnnInput, err := loadLinear(vb, "rnn_input", true)
	if err != nil {
		return nil, err
	}

	res1, err := loadLSTMCell(vb, "res_rnn1")
	if err != nil {
		return nil, err
	}

	res2, err := loadLSTMCell(vb, "res_rnn2")
	if err != nil {
		return nil, err
	}

	melProj, err := loadLinear(vb, "mel_proj", false)
	if err != nil {
		return nil, err
	}

	if want := cfg.NMels * MaxR; melProj.Weight.Shape()[0] != want {
		return nil, fmt.Errorf("tacotron: mel projection emits %d values, want n_mels*max_r = %d", melProj.Weight.Shape()[0], want)
	}

	stopProj, err := loadLinear(vb, "stop_proj", true)
	if err != nil {
		return nil, err
	}

	return &Decoder{
		cfg:      cfg,
		Prenet:   prenet,
		AttnNet:  attnNet,
		AttnRNN:  attnRNN,
		RNNInput: rnnInput,
		ResRNN1:  res1,
		ResRNN2:  res2,
		MelProj:  melProj,
		StopProj: stopProj,
		r:        1,
	}, nil
}

// R returns the current reduction factor.
func (d *Decoder) R() int64 {
	return d.r
}

// SetReduction sets the reduction factor. The training driver adjusts it
// between calls as the curriculum advances.
func (d *Decoder) SetReduction(r int64) error {
	if r < 1 || r > MaxR {
		return fmt.Errorf("tacotron: reduction factor %d outside [1, %d]", r, MaxR)
	}

	d.r = r

	return nil
}

// Step runs one decoder transition. prenetIn is the previous output frame
// [B, nMels] (the zero go frame at t == 0), chars the raw input rows for
// attention masking. rng enables the stochastic parts: prenet dropout when
// configured and, with train set, zoneout on the residual LSTM hidden
// states. It returns the frame group [B, nMels, r], this step's attention
// weights [B, 1, T], the replacement state and the stop probability [B, 1].
func (d *Decoder) Step(
	encSeq, encProj, prenetIn *tensor.Tensor,
	state *DecoderState,
	t int64,
	chars [][]int64,
	rng *rand.Rand,
	train bool,
) (frames, scores *tensor.Tensor, next *DecoderState, stop *tensor.Tensor, err error) {
	batch := encSeq.Shape()[0]

	dropRNG := rng
	if !train && !d.cfg.PrenetDropoutAlways {
		dropRNG = nil
	}

	prenetOut, err := d.Prenet.Forward(prenetIn, dropRNG)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	attnIn, err := tensor.Concat([]*tensor.Tensor{state.Context, prenetOut}, -1)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	attnHidden, err := ops.GRUCell(attnIn, state.AttnHidden, d.AttnRNN.WeightIH, d.AttnRNN.WeightHH, d.AttnRNN.BiasIH, d.AttnRNN.BiasHH)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	scores, err = d.AttnNet.Score(encProj, attnHidden, t, chars)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	contextWide, err := tensor.MatMul(scores, encSeq)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	context, err := contextWide.Reshape([]int64{batch, encSeq.Shape()[2]})
	if err != nil {
		return nil, nil, nil, nil, err
	}

	x, err := tensor.Concat([]*tensor.Tensor{context, attnHidden}, -1)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	x, err = d.RNNInput.Forward(x)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	rnn1Next, rnn1Cell, err := ops.LSTMCell(x, state.RNN1Hidden, state.RNN1Cell, d.ResRNN1.WeightIH, d.ResRNN1.WeightHH, d.ResRNN1.BiasIH, d.ResRNN1.BiasHH)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	rnn1Hidden := rnn1Next
	if train {
		rnn1Hidden = zoneout(state.RNN1Hidden, rnn1Next, d.cfg.ZoneoutRate, rng)
	}

	x, err = tensor.BroadcastAdd(x, rnn1Hidden)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	rnn2Next, rnn2Cell, err := ops.LSTMCell(x, state.RNN2Hidden, state.RNN2Cell, d.ResRNN2.WeightIH, d.ResRNN2.WeightHH, d.ResRNN2.BiasIH, d.ResRNN2.BiasHH)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	rnn2Hidden := rnn2Next
	if train {
		rnn2Hidden = zoneout(state.RNN2Hidden, rnn2Next, d.cfg.ZoneoutRate, rng)
	}

	x, err = tensor.BroadcastAdd(x, rnn2Hidden)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	mels, err := d.MelProj.Forward(x)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	mels, err = mels.Reshape([]int64{batch, d.cfg.NMels, MaxR})
	if err != nil {
		return nil, nil, nil, nil, err
	}

	frames, err = mels.Narrow(2, 0, d.r)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	stopIn, err := tensor.Concat([]*tensor.Tensor{x, context}, -1)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	stop, err = d.StopProj.Forward(stopIn)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	next = &DecoderState{
		AttnHidden: attnHidden,
		RNN1Hidden: rnn1Hidden,
		RNN2Hidden: rnn2Hidden,
		RNN1Cell:   rnn1Cell,
		RNN2Cell:   rnn2Cell,
		Context:    context,
	}

	return frames, scores, next, stop.Sigmoid(), nil
}

// zoneout keeps each previous hidden unit with probability p instead of the
// freshly computed one.
func zoneout(prev, current *tensor.Tensor, p float32, rng *rand.Rand) *tensor.Tensor {
	if rng == nil || p <= 0 {
		return current
	}

	prevData := prev.RawData()
	out := current.Clone()
	data := out.RawData()

	for i := range data {
		if rng.Float32() < p {
			data[i] = prevData[i]
		}
	}

	return out
}
