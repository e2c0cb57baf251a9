package tacotron

import (
	"fmt"
	"math/rand"

	"github.com/example/go-melsynth/internal/runtime/tensor"
)

// Encoder turns character index rows into the conditioned sequence the
// decoder attends over: embedding, prenet, CBHG, then the speaker
// embedding broadcast-concatenated onto every position.
type Encoder struct {
	cfg       Config
	Embedding *tensor.Tensor // [numChars, embedDims]
	Prenet    *PreNet
	CBHG      *CBHG
}

func loadEncoder(vb *VarBuilder, cfg Config) (*Encoder, error) {
	emb, err := vb.Tensor("embedding.weight", cfg.NumChars, cfg.EmbedDims)
	if err != nil {
		return nil, err
	}

	prenet, err := loadPreNet(vb, "pre_net")
	if err != nil {
		return nil, err
	}

	prenet.Dropout = cfg.Dropout

	cbhg, err := loadCBHG(vb, "cbhg", cfg.EncoderK, cfg.EncoderDims, cfg.EncoderDims, cfg.NumHighways)
	if err != nil {
		return nil, err
	}

	return &Encoder{cfg: cfg, Embedding: emb, Prenet: prenet, CBHG: cbhg}, nil
}

// Forward encodes chars (index rows, all the same length) and concatenates
// speakerEmb [B, S] onto every frame, producing
// [B, T, encoderDims+speakerEmbedSize]. rng drives prenet dropout.
func (e *Encoder) Forward(chars [][]int64, speakerEmb *tensor.Tensor, rng *rand.Rand) (*tensor.Tensor, error) {
	if len(chars) == 0 {
		return nil, fmt.Errorf("tacotron: encoder requires at least one sequence")
	}

	batch := int64(len(chars))
	steps := int64(len(chars[0]))

	rows := make([]*tensor.Tensor, batch)

	for b, row := range chars {
		if int64(len(row)) != steps {
			return nil, fmt.Errorf("tacotron: encoder row %d has %d chars, want %d (pad first)", b, len(row), steps)
		}

		emb, err := e.Embedding.Gather(0, row)
		if err != nil {
			return nil, err
		}

		rows[b], err = emb.Reshape([]int64{1, steps, e.cfg.EmbedDims})
		if err != nil {
			return nil, err
		}
	}

	x, err := tensor.Concat(rows, 0)
	if err != nil {
		return nil, err
	}

	x, err = e.Prenet.Forward(x, rng)
	if err != nil {
		return nil, err
	}

	x, err = x.Transpose(1, 2)
	if err != nil {
		return nil, err
	}

	x, err = e.CBHG.Forward(x)
	if err != nil {
		return nil, err
	}

	if speakerEmb == nil {
		return x, nil
	}

	return addSpeakerEmbedding(x, speakerEmb)
}

// addSpeakerEmbedding tiles speakerEmb over the time axis and concatenates
// it onto every encoder frame.
func addSpeakerEmbedding(x, speakerEmb *tensor.Tensor) (*tensor.Tensor, error) {
	shape := x.Shape()
	batch, steps := shape[0], shape[1]

	embShape := speakerEmb.Shape()
	if len(embShape) == 1 {
		var err error

		speakerEmb, err = speakerEmb.Reshape([]int64{1, embShape[0]})
		if err != nil {
			return nil, err
		}

		embShape = speakerEmb.Shape()
	}

	if len(embShape) != 2 || embShape[0] != batch {
		return nil, fmt.Errorf("tacotron: speaker embedding shape %v does not match batch %d", embShape, batch)
	}

	tiledBase, err := speakerEmb.Reshape([]int64{batch, 1, embShape[1]})
	if err != nil {
		return nil, err
	}

	zeros, err := tensor.Zeros([]int64{batch, steps, embShape[1]})
	if err != nil {
		return nil, err
	}

	tiled, err := tensor.BroadcastAdd(zeros, tiledBase)
	if err != nil {
		return nil, err
	}

	return tensor.Concat([]*tensor.Tensor{x, tiled}, -1)
}
