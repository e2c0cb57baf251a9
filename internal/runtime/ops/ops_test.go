package ops

import (
	"math"
	"testing"

	"github.com/example/go-melsynth/internal/runtime/tensor"
)

func mustTensorT(t *testing.T, data []float32, shape []int64) *tensor.Tensor {
	t.Helper()

	out, err := tensor.New(data, shape)
	if err != nil {
		t.Fatalf("tensor.New(%v, %v): %v", data, shape, err)
	}

	return out
}

func TestConv1DIdentityKernel(t *testing.T) {
	in := mustTensorT(t, []float32{1, 2, 3, 4}, []int64{1, 1, 4})
	kernel := mustTensorT(t, []float32{1}, []int64{1, 1, 1})

	out, err := Conv1D(in, kernel, nil, 1, 0, 1)
	if err != nil {
		t.Fatalf("Conv1D: %v", err)
	}

	for i, v := range out.Data() {
		if v != in.Data()[i] {
			t.Fatalf("identity conv changed data: %v", out.Data())
		}
	}
}

func TestConv1DSamePadding(t *testing.T) {
	// Kernel size 3 with padding 1 keeps the sequence length: the same
	// configuration the CBHG projections use.
	in := mustTensorT(t, []float32{1, 2, 3, 4, 5}, []int64{1, 1, 5})
	kernel := mustTensorT(t, []float32{1, 1, 1}, []int64{1, 1, 3})

	out, err := Conv1D(in, kernel, nil, 1, 1, 1)
	if err != nil {
		t.Fatalf("Conv1D: %v", err)
	}

	if got := out.Shape()[2]; got != 5 {
		t.Fatalf("same-padded conv length = %d, want 5", got)
	}

	want := []float32{3, 6, 9, 12, 9}
	for i, v := range out.Data() {
		if math.Abs(float64(v-want[i])) > 1e-6 {
			t.Fatalf("conv data = %v, want %v", out.Data(), want)
		}
	}
}

func TestConv1DBias(t *testing.T) {
	in := mustTensorT(t, []float32{1, 1, 1}, []int64{1, 1, 3})
	kernel := mustTensorT(t, []float32{2, 0.5}, []int64{2, 1, 1})
	bias := mustTensorT(t, []float32{1, -1}, []int64{2})

	out, err := Conv1D(in, kernel, bias, 1, 0, 1)
	if err != nil {
		t.Fatalf("Conv1D: %v", err)
	}

	want := []float32{3, 3, 3, -0.5, -0.5, -0.5}
	for i, v := range out.Data() {
		if math.Abs(float64(v-want[i])) > 1e-6 {
			t.Fatalf("conv data = %v, want %v", out.Data(), want)
		}
	}
}

func TestConv1DShapeErrors(t *testing.T) {
	in := mustTensorT(t, []float32{1, 2, 3}, []int64{1, 1, 3})
	kernel := mustTensorT(t, []float32{1, 1}, []int64{1, 2, 1})

	if _, err := Conv1D(in, kernel, nil, 1, 0, 1); err == nil {
		t.Fatal("conv with channel mismatch did not fail")
	}

	if _, err := Conv1D(nil, kernel, nil, 1, 0, 1); err == nil {
		t.Fatal("conv with nil input did not fail")
	}
}

func TestGRUCellZeroState(t *testing.T) {
	// With zero weights the GRU gates collapse: r=z=0.5, n=0,
	// so h' = 0.5 * h.
	units := int64(2)
	x := mustTensorT(t, []float32{1, 1, 1}, []int64{1, 3})
	h := mustTensorT(t, []float32{0.4, -0.8}, []int64{1, units})
	wIH, _ := tensor.Zeros([]int64{3 * units, 3})
	wHH, _ := tensor.Zeros([]int64{3 * units, units})

	out, err := GRUCell(x, h, wIH, wHH, nil, nil)
	if err != nil {
		t.Fatalf("GRUCell: %v", err)
	}

	want := []float32{0.2, -0.4}
	for i, v := range out.Data() {
		if math.Abs(float64(v-want[i])) > 1e-6 {
			t.Fatalf("gru hidden = %v, want %v", out.Data(), want)
		}
	}
}

func TestLSTMCellForgetGate(t *testing.T) {
	// Large positive forget bias and large negative input bias make the cell
	// carry its previous state through nearly unchanged.
	units := int64(1)
	x := mustTensorT(t, []float32{0}, []int64{1, 1})
	h := mustTensorT(t, []float32{0}, []int64{1, units})
	c := mustTensorT(t, []float32{0.7}, []int64{1, units})
	wIH, _ := tensor.Zeros([]int64{4 * units, 1})
	wHH, _ := tensor.Zeros([]int64{4 * units, units})
	biasIH := mustTensorT(t, []float32{-20, 20, 0, 20}, []int64{4 * units})

	hNext, cNext, err := LSTMCell(x, h, c, wIH, wHH, biasIH, nil)
	if err != nil {
		t.Fatalf("LSTMCell: %v", err)
	}

	if math.Abs(float64(cNext.Data()[0]-0.7)) > 1e-4 {
		t.Fatalf("cell state = %f, want ~0.7", cNext.Data()[0])
	}

	wantH := math.Tanh(0.7)
	if math.Abs(float64(hNext.Data()[0])-wantH) > 1e-4 {
		t.Fatalf("hidden = %f, want ~%f", hNext.Data()[0], wantH)
	}
}

func TestLSTMCellRejectsBadCellShape(t *testing.T) {
	x := mustTensorT(t, []float32{0}, []int64{1, 1})
	h := mustTensorT(t, []float32{0}, []int64{1, 1})
	c := mustTensorT(t, []float32{0, 0}, []int64{1, 2})
	wIH, _ := tensor.Zeros([]int64{4, 1})
	wHH, _ := tensor.Zeros([]int64{4, 1})

	if _, _, err := LSTMCell(x, h, c, wIH, wHH, nil, nil); err == nil {
		t.Fatal("lstm with mismatched cell state did not fail")
	}
}

func TestMaxPool1DKeepsLengthWithPadding(t *testing.T) {
	// Kernel 2, stride 1, padding 1 yields length+1 outputs; the CBHG trims
	// the trailing position to restore the sequence length.
	in := mustTensorT(t, []float32{1, 3, 2}, []int64{1, 1, 3})

	out, err := MaxPool1D(in, 2, 1, 1)
	if err != nil {
		t.Fatalf("MaxPool1D: %v", err)
	}

	want := []float32{1, 3, 3, 2}
	if got := out.Shape()[2]; got != 4 {
		t.Fatalf("pooled length = %d, want 4", got)
	}

	for i, v := range out.Data() {
		if v != want[i] {
			t.Fatalf("pooled data = %v, want %v", out.Data(), want)
		}
	}
}

func TestBatchNorm1DRunningStats(t *testing.T) {
	in := mustTensorT(t, []float32{1, 2, 3, 4}, []int64{1, 2, 2})
	gamma := mustTensorT(t, []float32{1, 2}, []int64{2})
	beta := mustTensorT(t, []float32{0, 1}, []int64{2})
	mean := mustTensorT(t, []float32{1.5, 3.5}, []int64{2})
	variance := mustTensorT(t, []float32{0.25, 0.25}, []int64{2})

	out, err := BatchNorm1D(in, gamma, beta, mean, variance, 1e-5)
	if err != nil {
		t.Fatalf("BatchNorm1D: %v", err)
	}

	got := out.Data()
	// Channel 0: (x-1.5)/0.5 -> {-1, 1}; channel 1: 2*(x-3.5)/0.5 + 1 -> {-1, 3}.
	want := []float32{-1, 1, -1, 3}

	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-3 {
			t.Fatalf("batchnorm data = %v, want %v", got, want)
		}
	}
}
