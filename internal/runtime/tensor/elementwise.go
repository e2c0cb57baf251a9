package tensor

import "math"

// Apply returns a new tensor with fn applied to every element.
// A nil receiver yields nil.
func (t *Tensor) Apply(fn func(float32) float32) *Tensor {
	if t == nil {
		return nil
	}

	out := t.Clone()
	for i, v := range out.data {
		out.data[i] = fn(v)
	}

	return out
}

// Tanh applies the hyperbolic tangent element-wise.
func (t *Tensor) Tanh() *Tensor {
	return t.Apply(func(v float32) float32 {
		return float32(math.Tanh(float64(v)))
	})
}

// Sigmoid applies the logistic function element-wise.
func (t *Tensor) Sigmoid() *Tensor {
	return t.Apply(func(v float32) float32 {
		return float32(1.0 / (1.0 + math.Exp(-float64(v))))
	})
}

// ReLU clamps negative elements to zero.
func (t *Tensor) ReLU() *Tensor {
	return t.Apply(func(v float32) float32 {
		if v < 0 {
			return 0
		}

		return v
	})
}

// Scale multiplies every element by s.
func (t *Tensor) Scale(s float32) *Tensor {
	return t.Apply(func(v float32) float32 { return v * s })
}

// DotProduct computes the dot product of two equal-length float32 slices.
// Length equality is the caller's contract.
func DotProduct(a, b []float32) float32 {
	var sum float32
	for i, v := range a {
		sum += v * b[i]
	}

	return sum
}
