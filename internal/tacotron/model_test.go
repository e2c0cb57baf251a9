package tacotron

import (
	"path/filepath"
	"testing"

	"github.com/example/go-melsynth/internal/runtime/tensor"
	"github.com/example/go-melsynth/internal/safetensors"
)

func TestConfigValidate(t *testing.T) {
	cfg := tinyConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	bad := tinyConfig()
	bad.NMels = 0
	if err := bad.Validate(); err == nil {
		t.Fatal("zero n_mels accepted")
	}

	bad = tinyConfig()
	bad.PostProjBins = bad.NMels + 1
	if err := bad.Validate(); err == nil {
		t.Fatal("postnet residual mismatch accepted")
	}

	bad = tinyConfig()
	bad.StopThreshold = 1.5
	if err := bad.Validate(); err == nil {
		t.Fatal("stop threshold above 1 accepted")
	}
}

func TestSetReductionBounds(t *testing.T) {
	m := newTinyModel(t)

	if err := m.SetReduction(0); err == nil {
		t.Fatal("reduction 0 accepted")
	}

	if err := m.SetReduction(MaxR + 1); err == nil {
		t.Fatal("reduction above max accepted")
	}

	if err := m.SetReduction(5); err != nil {
		t.Fatalf("SetReduction(5): %v", err)
	}

	if got := m.R(); got != 5 {
		t.Fatalf("R() = %d, want 5", got)
	}
}

func TestDecoderStepFrameGroupShape(t *testing.T) {
	// All-zero encoder output with r=5 must yield a (1, n_mels, 5) group.
	m := newTinyModel(t)
	cfg := m.Config()

	if err := m.SetReduction(5); err != nil {
		t.Fatalf("SetReduction: %v", err)
	}

	const encSteps = 4
	chars := [][]int64{{1, 2, 3, 4}}

	encSeq, err := tensor.Zeros([]int64{1, encSteps, cfg.contextDims()})
	if err != nil {
		t.Fatalf("Zeros: %v", err)
	}

	encProj, err := tensor.Zeros([]int64{1, encSteps, cfg.DecoderDims})
	if err != nil {
		t.Fatalf("Zeros: %v", err)
	}

	state, err := NewDecoderState(cfg, 1)
	if err != nil {
		t.Fatalf("NewDecoderState: %v", err)
	}

	prenetIn, err := tensor.Zeros([]int64{1, cfg.NMels})
	if err != nil {
		t.Fatalf("Zeros: %v", err)
	}

	frames, scores, next, stop, err := m.Decoder.Step(encSeq, encProj, prenetIn, state, 0, chars, nil, false)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}

	if got, want := frames.Shape(), []int64{1, cfg.NMels, 5}; !shapeEqual(got, want) {
		t.Fatalf("frame group shape = %v, want %v", got, want)
	}

	if got, want := scores.Shape(), []int64{1, 1, encSteps}; !shapeEqual(got, want) {
		t.Fatalf("scores shape = %v, want %v", got, want)
	}

	if got, want := stop.Shape(), []int64{1, 1}; !shapeEqual(got, want) {
		t.Fatalf("stop shape = %v, want %v", got, want)
	}

	if v := stop.RawData()[0]; v < 0 || v > 1 {
		t.Fatalf("stop probability %g outside [0, 1]", v)
	}

	if next == state {
		t.Fatal("Step returned the input state instead of a replacement")
	}
}

func TestForwardTeacherForcedShapes(t *testing.T) {
	m := newTinyModel(t)
	cfg := m.Config()

	if err := m.SetReduction(2); err != nil {
		t.Fatalf("SetReduction: %v", err)
	}

	chars := [][]int64{
		{1, 2, 3, 4, 5, 0},
		{6, 7, 8, 9, 0, 0},
	}

	const steps = 10

	mels := randTensor(t, []int64{2, cfg.NMels, steps}, 13)
	spk := randTensor(t, []int64{2, cfg.SpeakerEmbedSize}, 17)

	out, err := m.Forward(chars, mels, spk)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}

	if got, want := out.Mel.Shape(), []int64{2, cfg.NMels, steps}; !shapeEqual(got, want) {
		t.Fatalf("mel shape = %v, want %v", got, want)
	}

	if got, want := out.Linear.Shape(), []int64{2, cfg.PostProjBins, steps}; !shapeEqual(got, want) {
		t.Fatalf("linear shape = %v, want %v", got, want)
	}

	if got, want := out.Attention.Shape(), []int64{2, steps / 2, 6}; !shapeEqual(got, want) {
		t.Fatalf("attention shape = %v, want %v", got, want)
	}

	if got, want := out.Stop.Shape(), []int64{2, steps}; !shapeEqual(got, want) {
		t.Fatalf("stop shape = %v, want %v", got, want)
	}

	// Stop probabilities are broadcast across each group's r frames.
	stop := out.Stop.RawData()
	for b := 0; b < 2; b++ {
		for g := 0; g < steps/2; g++ {
			a := stop[b*steps+2*g]
			c := stop[b*steps+2*g+1]
			if a != c {
				t.Fatalf("batch %d group %d: stop %g and %g differ within the group", b, g, a, c)
			}
		}
	}
}

func TestGenerateRespectsStepBounds(t *testing.T) {
	m := newTinyModel(t)
	cfg := m.Config()

	if err := m.SetReduction(5); err != nil {
		t.Fatalf("SetReduction: %v", err)
	}

	chars := [][]int64{{1, 2, 3, 4, 5}}
	spk := randTensor(t, []int64{1, cfg.SpeakerEmbedSize}, 19)

	// Force the stop projection to predict "continue": output never exceeds
	// the cap.
	m.Decoder.StopProj.Bias.RawData()[0] = -20

	out, err := m.Generate(chars, spk, 20)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if frames := out.Mel.Shape()[2]; frames != 20 {
		t.Fatalf("reluctant model emitted %d frames, want the full 20", frames)
	}

	// Force "stop immediately": termination still waits out the warm-up.
	m.Decoder.StopProj.Bias.RawData()[0] = 20

	out, err = m.Generate(chars, spk, 200)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	frames := out.Mel.Shape()[2]
	if frames <= warmUpSteps {
		t.Fatalf("eager model stopped after %d frames, inside the warm-up", frames)
	}

	// r=5: steps 0,5,10,15; the first stop-eligible boundary is t=15.
	if frames != 20 {
		t.Fatalf("eager model emitted %d frames, want 20 (first boundary past warm-up)", frames)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	m := newTinyModel(t)
	path := filepath.Join(t.TempDir(), "model.safetensors")

	if err := m.SetReduction(3); err != nil {
		t.Fatalf("SetReduction: %v", err)
	}

	optimizer := []safetensors.Tensor{
		{Name: "lr", Shape: []int64{1}, Data: []float32{0.001}},
	}

	if err := SaveCheckpoint(path, m, optimizer); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	loaded, err := LoadCheckpoint(path, tinyConfig())
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}

	if loaded.R() != 3 {
		t.Fatalf("loaded reduction = %d, want 3", loaded.R())
	}

	want := m.Encoder.Embedding.RawData()
	got := loaded.Encoder.Embedding.RawData()

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("embedding[%d] = %g, want %g", i, got[i], want[i])
		}
	}

	opt, err := LoadOptimizerState(path)
	if err != nil {
		t.Fatalf("LoadOptimizerState: %v", err)
	}

	if len(opt) != 1 || opt[0].Name != "lr" || opt[0].Data[0] != 0.001 {
		t.Fatalf("optimizer state = %+v, want the saved lr tensor", opt)
	}
}

func TestCheckpointWithoutOptimizerState(t *testing.T) {
	m := newTinyModel(t)
	path := filepath.Join(t.TempDir(), "model.safetensors")

	if err := SaveCheckpoint(path, m, nil); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	if _, err := LoadCheckpoint(path, tinyConfig()); err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}

	opt, err := LoadOptimizerState(path)
	if err != nil {
		t.Fatalf("LoadOptimizerState: %v", err)
	}

	if opt != nil {
		t.Fatalf("optimizer state = %+v, want none", opt)
	}
}
