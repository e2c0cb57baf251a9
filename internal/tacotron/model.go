package tacotron

import (
	"fmt"
	"math/rand"

	"github.com/example/go-melsynth/internal/runtime/tensor"
	"github.com/example/go-melsynth/internal/safetensors"
)

// Model is the full acoustic model: encoder, encoder projection, decoder
// loop, CBHG postnet and the final projection.
type Model struct {
	cfg Config

	Encoder     *Encoder
	EncoderProj *Linear
	Decoder     *Decoder
	Postnet     *CBHG
	PostProj    *Linear

	vars     *VarBuilder
	rng      *rand.Rand
	training bool
}

// NewModel builds the model from a parameter store.
func NewModel(store *safetensors.Store, cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	vb := NewVarBuilder(store)

	enc, err := loadEncoder(vb.Path("encoder"), cfg)
	if err != nil {
		return nil, err
	}

	encProj, err := loadLinear(vb, "encoder_proj", false)
	if err != nil {
		return nil, err
	}

	dec, err := loadDecoder(vb.Path("decoder"), cfg)
	if err != nil {
		return nil, err
	}

	postnet, err := loadCBHG(vb, "postnet", cfg.PostnetK, cfg.PostnetDims, cfg.PostProjBins, cfg.NumHighways)
	if err != nil {
		return nil, err
	}

	postProj, err := loadLinear(vb, "post_proj", false)
	if err != nil {
		return nil, err
	}

	return &Model{
		cfg:         cfg,
		Encoder:     enc,
		EncoderProj: encProj,
		Decoder:     dec,
		Postnet:     postnet,
		PostProj:    postProj,
		vars:        vb,
		rng:         rand.New(rand.NewSource(1)),
	}, nil
}

// Config returns the model hyperparameters.
func (m *Model) Config() Config {
	return m.cfg
}

// SetTraining toggles training mode: zoneout on the residual LSTMs and,
// independent of the prenet's always-on flag, prenet dropout.
func (m *Model) SetTraining(train bool) {
	m.training = train
}

// SetSeed reseeds the stochastic parts (dropout, zoneout).
func (m *Model) SetSeed(seed int64) {
	m.rng = rand.New(rand.NewSource(seed))
}

// R returns the decoder's current reduction factor.
func (m *Model) R() int64 {
	return m.Decoder.R()
}

// SetReduction forwards to the decoder; the training driver moves it along
// the schedule between calls.
func (m *Model) SetReduction(r int64) error {
	return m.Decoder.SetReduction(r)
}

// Output bundles the tensors produced by a full pass: the mel spectrogram
// [B, nMels, T], the post-processed spectrogram [B, bins, T], the attention
// matrix [B, steps, encT] and the per-frame stop probabilities [B, T].
type Output struct {
	Mel       *tensor.Tensor
	Linear    *tensor.Tensor
	Attention *tensor.Tensor
	Stop      *tensor.Tensor
}

// Forward runs a teacher-forced pass: the decoder is fed the ground-truth
// frame preceding each step from mels [B, nMels, steps]. Step count is
// taken from mels; each step's stop probability is broadcast across its r
// frames.
func (m *Model) Forward(chars [][]int64, mels, speakerEmb *tensor.Tensor) (*Output, error) {
	melShape := mels.Shape()
	if len(melShape) != 3 || melShape[1] != m.cfg.NMels {
		return nil, fmt.Errorf("tacotron: forward mels shape %v, want [B, %d, steps]", melShape, m.cfg.NMels)
	}

	batch, steps := melShape[0], melShape[2]

	encSeq, encProj, err := m.encode(chars, speakerEmb)
	if err != nil {
		return nil, err
	}

	state, err := NewDecoderState(m.cfg, batch)
	if err != nil {
		return nil, err
	}

	goFrame, err := tensor.Zeros([]int64{batch, m.cfg.NMels})
	if err != nil {
		return nil, err
	}

	r := m.Decoder.R()

	var melOut, attnOut, stopOut []*tensor.Tensor

	for t := int64(0); t < steps; t += r {
		prenetIn := goFrame

		if t > 0 {
			prev, err := mels.Narrow(2, t-1, 1)
			if err != nil {
				return nil, err
			}

			prenetIn, err = prev.Reshape([]int64{batch, m.cfg.NMels})
			if err != nil {
				return nil, err
			}
		}

		frames, scores, nextState, stop, err := m.Decoder.Step(encSeq, encProj, prenetIn, state, t, chars, m.rng, m.training)
		if err != nil {
			return nil, err
		}

		state = nextState

		melOut = append(melOut, frames)
		attnOut = append(attnOut, scores)

		for i := int64(0); i < r; i++ {
			stopOut = append(stopOut, stop)
		}
	}

	return m.finish(melOut, attnOut, stopOut)
}

// Generate runs an autoregressive pass fed with the model's own previous
// frame. It stops early at a step boundary once every batch element's stop
// probability exceeds the threshold and the frame index has passed the
// warm-up, and never emits more than maxSteps frames' worth of groups.
func (m *Model) Generate(chars [][]int64, speakerEmb *tensor.Tensor, maxSteps int64) (*Output, error) {
	if maxSteps < 1 {
		return nil, fmt.Errorf("tacotron: generate requires maxSteps >= 1, got %d", maxSteps)
	}

	batch := int64(len(chars))

	encSeq, encProj, err := m.encode(chars, speakerEmb)
	if err != nil {
		return nil, err
	}

	state, err := NewDecoderState(m.cfg, batch)
	if err != nil {
		return nil, err
	}

	goFrame, err := tensor.Zeros([]int64{batch, m.cfg.NMels})
	if err != nil {
		return nil, err
	}

	r := m.Decoder.R()

	var melOut, attnOut, stopOut []*tensor.Tensor

	for t := int64(0); t < maxSteps; t += r {
		prenetIn := goFrame

		if t > 0 {
			last := melOut[len(melOut)-1]

			prev, err := last.Narrow(2, last.Shape()[2]-1, 1)
			if err != nil {
				return nil, err
			}

			prenetIn, err = prev.Reshape([]int64{batch, m.cfg.NMels})
			if err != nil {
				return nil, err
			}
		}

		frames, scores, nextState, stop, err := m.Decoder.Step(encSeq, encProj, prenetIn, state, t, chars, m.rng, m.training)
		if err != nil {
			return nil, err
		}

		state = nextState

		melOut = append(melOut, frames)
		attnOut = append(attnOut, scores)

		for i := int64(0); i < r; i++ {
			stopOut = append(stopOut, stop)
		}

		if t > warmUpSteps && allAbove(stop, m.cfg.StopThreshold) {
			break
		}
	}

	return m.finish(melOut, attnOut, stopOut)
}

func (m *Model) encode(chars [][]int64, speakerEmb *tensor.Tensor) (encSeq, encProj *tensor.Tensor, err error) {
	dropRNG := m.rng
	if !m.training && !m.cfg.PrenetDropoutAlways {
		dropRNG = nil
	}

	encSeq, err = m.Encoder.Forward(chars, speakerEmb, dropRNG)
	if err != nil {
		return nil, nil, err
	}

	// Projecting once here saves a matrix multiply on every decode step.
	encProj, err = m.EncoderProj.Forward(encSeq)
	if err != nil {
		return nil, nil, err
	}

	return encSeq, encProj, nil
}

// finish concatenates the per-step outputs and applies the postnet and
// final projection.
func (m *Model) finish(melOut, attnOut, stopOut []*tensor.Tensor) (*Output, error) {
	mel, err := tensor.Concat(melOut, 2)
	if err != nil {
		return nil, err
	}

	postOut, err := m.Postnet.Forward(mel)
	if err != nil {
		return nil, err
	}

	linear, err := m.PostProj.Forward(postOut)
	if err != nil {
		return nil, err
	}

	linear, err = linear.Transpose(1, 2)
	if err != nil {
		return nil, err
	}

	attn, err := tensor.Concat(attnOut, 1)
	if err != nil {
		return nil, err
	}

	stop, err := tensor.Concat(stopOut, 1)
	if err != nil {
		return nil, err
	}

	return &Output{Mel: mel, Linear: linear, Attention: attn, Stop: stop}, nil
}

// allAbove reports whether every element of stop exceeds threshold.
func allAbove(stop *tensor.Tensor, threshold float32) bool {
	for _, v := range stop.RawData() {
		if v <= threshold {
			return false
		}
	}

	return true
}
