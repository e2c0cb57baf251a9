package tensor

import (
	"math"
	"testing"
)

func mustTensor(t *testing.T, data []float32, shape []int64) *Tensor {
	t.Helper()

	out, err := New(data, shape)
	if err != nil {
		t.Fatalf("New(%v, %v): %v", data, shape, err)
	}

	return out
}

func TestNewRejectsShapeMismatch(t *testing.T) {
	if _, err := New([]float32{1, 2, 3}, []int64{2, 2}); err == nil {
		t.Fatal("New with 3 elements for shape [2,2] did not fail")
	}
}

func TestZerosAndFull(t *testing.T) {
	z, err := Zeros([]int64{2, 3})
	if err != nil {
		t.Fatalf("Zeros: %v", err)
	}

	if z.ElemCount() != 6 {
		t.Fatalf("Zeros elem count = %d, want 6", z.ElemCount())
	}

	f, err := Full([]int64{2, 2}, 1.5)
	if err != nil {
		t.Fatalf("Full: %v", err)
	}

	for i, v := range f.Data() {
		if v != 1.5 {
			t.Fatalf("Full element %d = %f, want 1.5", i, v)
		}
	}
}

func TestNarrowSlicesLastDim(t *testing.T) {
	x := mustTensor(t, []float32{1, 2, 3, 4, 5, 6}, []int64{1, 2, 3})

	out, err := x.Narrow(2, 0, 2)
	if err != nil {
		t.Fatalf("Narrow: %v", err)
	}

	want := []float32{1, 2, 4, 5}
	for i, v := range out.Data() {
		if v != want[i] {
			t.Fatalf("Narrow data = %v, want %v", out.Data(), want)
		}
	}

	if _, err := x.Narrow(2, 2, 2); err == nil {
		t.Fatal("Narrow out of range did not fail")
	}
}

func TestGatherEmbeddingRows(t *testing.T) {
	table := mustTensor(t, []float32{
		0, 0,
		1, 10,
		2, 20,
	}, []int64{3, 2})

	out, err := table.Gather(0, []int64{2, 0, 2})
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	want := []float32{2, 20, 0, 0, 2, 20}
	got := out.Data()

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Gather data = %v, want %v", got, want)
		}
	}

	if _, err := table.Gather(0, []int64{3}); err == nil {
		t.Fatal("Gather with out-of-range index did not fail")
	}
}

func TestTransposeRoundTrip(t *testing.T) {
	x := mustTensor(t, []float32{1, 2, 3, 4, 5, 6}, []int64{2, 3})

	xt, err := x.Transpose(0, 1)
	if err != nil {
		t.Fatalf("Transpose: %v", err)
	}

	if xt.Data()[1] != 4 {
		t.Fatalf("Transpose[0][1] = %f, want 4", xt.Data()[1])
	}

	back, err := xt.Transpose(0, 1)
	if err != nil {
		t.Fatalf("Transpose back: %v", err)
	}

	for i, v := range back.Data() {
		if v != x.Data()[i] {
			t.Fatalf("transpose round trip mismatch at %d: %f vs %f", i, v, x.Data()[i])
		}
	}
}

func TestConcatLastDim(t *testing.T) {
	a := mustTensor(t, []float32{1, 2}, []int64{1, 2})
	b := mustTensor(t, []float32{3}, []int64{1, 1})

	out, err := Concat([]*Tensor{a, b}, -1)
	if err != nil {
		t.Fatalf("Concat: %v", err)
	}

	want := []float32{1, 2, 3}
	for i, v := range out.Data() {
		if v != want[i] {
			t.Fatalf("Concat data = %v, want %v", out.Data(), want)
		}
	}
}

func TestMatMulBatched(t *testing.T) {
	// Attention-shaped product: [1,1,2] x [1,2,3] -> [1,1,3].
	w := mustTensor(t, []float32{0.25, 0.75}, []int64{1, 1, 2})
	enc := mustTensor(t, []float32{
		1, 2, 3,
		5, 6, 7,
	}, []int64{1, 2, 3})

	out, err := MatMul(w, enc)
	if err != nil {
		t.Fatalf("MatMul: %v", err)
	}

	want := []float32{4, 5, 6}
	got := out.Data()

	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Fatalf("MatMul data = %v, want %v", got, want)
		}
	}
}

func TestLinearMatchesManual(t *testing.T) {
	x := mustTensor(t, []float32{1, 2}, []int64{1, 2})
	w := mustTensor(t, []float32{
		1, 0,
		0, 1,
		1, 1,
	}, []int64{3, 2})
	b := mustTensor(t, []float32{0.5, 0.5, 0.5}, []int64{3})

	out, err := Linear(x, w, b)
	if err != nil {
		t.Fatalf("Linear: %v", err)
	}

	want := []float32{1.5, 2.5, 3.5}
	for i, v := range out.Data() {
		if math.Abs(float64(v-want[i])) > 1e-6 {
			t.Fatalf("Linear data = %v, want %v", out.Data(), want)
		}
	}
}

func TestSoftmaxSumsToOne(t *testing.T) {
	x := mustTensor(t, []float32{1, 2, 3, 1, 1, 1}, []int64{2, 3})

	out, err := Softmax(x, 1)
	if err != nil {
		t.Fatalf("Softmax: %v", err)
	}

	data := out.Data()
	for row := range 2 {
		var sum float64
		for c := range 3 {
			sum += float64(data[row*3+c])
		}

		if math.Abs(sum-1.0) > 1e-5 {
			t.Fatalf("softmax row %d sums to %f, want 1", row, sum)
		}
	}
}

func TestBroadcastAddQueryOverSequence(t *testing.T) {
	// [B,1,D] + [B,T,D] as in attention scoring.
	q := mustTensor(t, []float32{1, 2}, []int64{1, 1, 2})
	seq := mustTensor(t, []float32{
		10, 20,
		30, 40,
	}, []int64{1, 2, 2})

	out, err := BroadcastAdd(q, seq)
	if err != nil {
		t.Fatalf("BroadcastAdd: %v", err)
	}

	want := []float32{11, 22, 31, 42}
	for i, v := range out.Data() {
		if v != want[i] {
			t.Fatalf("BroadcastAdd data = %v, want %v", out.Data(), want)
		}
	}
}

func TestBroadcastMulMask(t *testing.T) {
	scores := mustTensor(t, []float32{1, 2, 3, 4}, []int64{2, 2})
	mask := mustTensor(t, []float32{1, 0, 1, 1}, []int64{2, 2})

	out, err := BroadcastMul(scores, mask)
	if err != nil {
		t.Fatalf("BroadcastMul: %v", err)
	}

	want := []float32{1, 0, 3, 4}
	for i, v := range out.Data() {
		if v != want[i] {
			t.Fatalf("BroadcastMul data = %v, want %v", out.Data(), want)
		}
	}
}

func TestElementwiseActivations(t *testing.T) {
	x := mustTensor(t, []float32{-1, 0, 1}, []int64{3})

	relu := x.ReLU().Data()
	if relu[0] != 0 || relu[2] != 1 {
		t.Fatalf("ReLU = %v", relu)
	}

	sig := x.Sigmoid().Data()
	if math.Abs(float64(sig[1]-0.5)) > 1e-6 {
		t.Fatalf("Sigmoid(0) = %f, want 0.5", sig[1])
	}

	th := x.Tanh().Data()
	if math.Abs(float64(th[0]+th[2])) > 1e-6 {
		t.Fatalf("Tanh not odd: %v", th)
	}
}

func TestReshapePreservesData(t *testing.T) {
	x := mustTensor(t, []float32{1, 2, 3, 4, 5, 6}, []int64{2, 3})

	r, err := x.Reshape([]int64{3, 2})
	if err != nil {
		t.Fatalf("Reshape: %v", err)
	}

	for i, v := range r.Data() {
		if v != x.Data()[i] {
			t.Fatalf("Reshape changed data: %v", r.Data())
		}
	}

	if _, err := x.Reshape([]int64{4, 2}); err == nil {
		t.Fatal("Reshape to wrong element count did not fail")
	}
}
