package tacotron

import (
	"math"
	"testing"

	"github.com/example/go-melsynth/internal/runtime/tensor"
)

func tinyConfig() Config {
	return Config{
		NumChars:            10,
		EmbedDims:           16,
		EncoderDims:         16,
		DecoderDims:         8,
		LSTMDims:            16,
		NMels:               6,
		PostProjBins:        6,
		PostnetDims:         12,
		EncoderK:            3,
		PostnetK:            3,
		NumHighways:         2,
		SpeakerEmbedSize:    8,
		Dropout:             0.5,
		ZoneoutRate:         0.1,
		StopThreshold:       0.5,
		PrenetDropoutAlways: true,
	}
}

func newTinyModel(t *testing.T) *Model {
	t.Helper()

	m, err := NewRandomModel(tinyConfig(), 42)
	if err != nil {
		t.Fatalf("NewRandomModel: %v", err)
	}

	return m
}

func randTensor(t *testing.T, shape []int64, seed float32) *tensor.Tensor {
	t.Helper()

	total := int64(1)
	for _, d := range shape {
		total *= d
	}

	data := make([]float32, total)
	for i := range data {
		data[i] = float32(math.Sin(float64(seed) + float64(i)*0.37))
	}

	out, err := tensor.New(data, shape)
	if err != nil {
		t.Fatalf("tensor.New: %v", err)
	}

	return out
}

func TestAttentionWeightsSumToOneAndMaskPadding(t *testing.T) {
	m := newTinyModel(t)
	cfg := m.Config()

	const steps = 7
	chars := [][]int64{{3, 1, 4, 1, 5, 0, 0}} // last two positions are padding

	encProj := randTensor(t, []int64{1, steps, cfg.DecoderDims}, 1)
	query := randTensor(t, []int64{1, cfg.DecoderDims}, 2)

	attn := m.Decoder.AttnNet

	for step := int64(0); step < 3; step++ {
		scores, err := attn.Score(encProj, query, step, chars)
		if err != nil {
			t.Fatalf("Score step %d: %v", step, err)
		}

		got := scores.RawData()

		var sum float64
		for j := 0; j < steps; j++ {
			sum += float64(got[j])
		}

		if math.Abs(sum-1) > 1e-5 {
			t.Fatalf("step %d: weights sum to %g, want 1", step, sum)
		}

		for j := 5; j < steps; j++ {
			if got[j] != 0 {
				t.Fatalf("step %d: padding position %d has weight %g, want exactly 0", step, j, got[j])
			}
		}
	}
}

func TestAttentionCumulativeAccumulatesAndResets(t *testing.T) {
	m := newTinyModel(t)
	cfg := m.Config()

	const steps = 5
	chars := [][]int64{{2, 3, 4, 5, 6}}

	encProj := randTensor(t, []int64{1, steps, cfg.DecoderDims}, 3)
	attn := m.Decoder.AttnNet

	sums := make([]float64, steps)

	for step := int64(0); step < 4; step++ {
		query := randTensor(t, []int64{1, cfg.DecoderDims}, float32(step)+7)

		scores, err := attn.Score(encProj, query, step, chars)
		if err != nil {
			t.Fatalf("Score step %d: %v", step, err)
		}

		for j, v := range scores.RawData() {
			sums[j] += float64(v)
		}

		cum := attn.Cumulative().RawData()
		for j := range sums {
			if math.Abs(float64(cum[j])-sums[j]) > 1e-5 {
				t.Fatalf("step %d: cumulative[%d] = %g, want %g", step, j, cum[j], sums[j])
			}
		}
	}

	// Step 0 of a new sequence is the only reset point.
	query := randTensor(t, []int64{1, cfg.DecoderDims}, 11)

	scores, err := attn.Score(encProj, query, 0, chars)
	if err != nil {
		t.Fatalf("Score reset: %v", err)
	}

	cum := attn.Cumulative().RawData()
	for j, v := range scores.RawData() {
		if math.Abs(float64(cum[j]-v)) > 1e-7 {
			t.Fatalf("after reset cumulative[%d] = %g, want this step's weight %g", j, cum[j], v)
		}
	}
}

func TestAttentionRequiresStepZeroFirst(t *testing.T) {
	m := newTinyModel(t)
	cfg := m.Config()

	encProj := randTensor(t, []int64{1, 4, cfg.DecoderDims}, 5)
	query := randTensor(t, []int64{1, cfg.DecoderDims}, 6)

	attn := &LSA{
		ConvWeight: m.Decoder.AttnNet.ConvWeight,
		ConvBias:   m.Decoder.AttnNet.ConvBias,
		L:          m.Decoder.AttnNet.L,
		W:          m.Decoder.AttnNet.W,
		V:          m.Decoder.AttnNet.V,
	}

	if _, err := attn.Score(encProj, query, 3, [][]int64{{1, 2, 3, 4}}); err == nil {
		t.Fatal("scoring at step 3 without step 0 did not fail")
	}
}
