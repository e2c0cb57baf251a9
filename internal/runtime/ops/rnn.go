package ops

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/go-melsynth/internal/runtime/tensor"
)

// GRUCell computes one step of a gated recurrent unit.
// x: [batch, in], hidden: [batch, units].
// weightIH: [3*units, in], weightHH: [3*units, units], biases [3*units].
// Gate layout along the packed dimension is reset, update, candidate.
func GRUCell(x, hidden, weightIH, weightHH, biasIH, biasHH *tensor.Tensor) (*tensor.Tensor, error) {
	units, batch, err := checkCellShapes("gru", 3, x, hidden, weightIH, weightHH, biasIH, biasHH)
	if err != nil {
		return nil, err
	}

	gi, err := tensor.Linear(x, weightIH, biasIH)
	if err != nil {
		return nil, fmt.Errorf("ops: gru input gates: %w", err)
	}

	gh, err := tensor.Linear(hidden, weightHH, biasHH)
	if err != nil {
		return nil, fmt.Errorf("ops: gru hidden gates: %w", err)
	}

	giData := gi.RawData()
	ghData := gh.RawData()
	hData := hidden.RawData()
	out := make([]float32, batch*units)

	for b := range batch {
		gBase := b * 3 * units
		hBase := b * units

		for u := range units {
			r := sigmoid(giData[gBase+u] + ghData[gBase+u])
			z := sigmoid(giData[gBase+units+u] + ghData[gBase+units+u])
			n := tanh(giData[gBase+2*units+u] + r*ghData[gBase+2*units+u])
			out[hBase+u] = (1-z)*n + z*hData[hBase+u]
		}
	}

	return tensor.New(out, []int64{int64(batch), int64(units)})
}

// LSTMCell computes one step of a long short-term memory cell.
// x: [batch, in], hidden/cell: [batch, units].
// weightIH: [4*units, in], weightHH: [4*units, units], biases [4*units].
// Gate layout is input, forget, candidate, output.
func LSTMCell(x, hidden, cell, weightIH, weightHH, biasIH, biasHH *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	units, batch, err := checkCellShapes("lstm", 4, x, hidden, weightIH, weightHH, biasIH, biasHH)
	if err != nil {
		return nil, nil, err
	}

	if cell == nil {
		return nil, nil, errors.New("ops: lstm cell state is nil")
	}

	cShape := cell.Shape()
	if len(cShape) != 2 || int(cShape[0]) != batch || int(cShape[1]) != units {
		return nil, nil, fmt.Errorf("ops: lstm cell state shape %v does not match [%d %d]", cShape, batch, units)
	}

	gi, err := tensor.Linear(x, weightIH, biasIH)
	if err != nil {
		return nil, nil, fmt.Errorf("ops: lstm input gates: %w", err)
	}

	gh, err := tensor.Linear(hidden, weightHH, biasHH)
	if err != nil {
		return nil, nil, fmt.Errorf("ops: lstm hidden gates: %w", err)
	}

	giData := gi.RawData()
	ghData := gh.RawData()
	cData := cell.RawData()
	hOut := make([]float32, batch*units)
	cOut := make([]float32, batch*units)

	for b := range batch {
		gBase := b * 4 * units
		sBase := b * units

		for u := range units {
			i := sigmoid(giData[gBase+u] + ghData[gBase+u])
			f := sigmoid(giData[gBase+units+u] + ghData[gBase+units+u])
			g := tanh(giData[gBase+2*units+u] + ghData[gBase+2*units+u])
			o := sigmoid(giData[gBase+3*units+u] + ghData[gBase+3*units+u])

			c := f*cData[sBase+u] + i*g
			cOut[sBase+u] = c
			hOut[sBase+u] = o * tanh(c)
		}
	}

	hT, err := tensor.New(hOut, []int64{int64(batch), int64(units)})
	if err != nil {
		return nil, nil, err
	}

	cT, err := tensor.New(cOut, []int64{int64(batch), int64(units)})
	if err != nil {
		return nil, nil, err
	}

	return hT, cT, nil
}

func checkCellShapes(kind string, gates int, x, hidden, weightIH, weightHH, biasIH, biasHH *tensor.Tensor) (units, batch int, err error) {
	if x == nil || hidden == nil || weightIH == nil || weightHH == nil {
		return 0, 0, fmt.Errorf("ops: %s cell requires non-nil x/hidden/weights", kind)
	}

	xShape := x.Shape()
	hShape := hidden.Shape()

	if len(xShape) != 2 || len(hShape) != 2 {
		return 0, 0, fmt.Errorf("ops: %s cell expects rank-2 x/hidden, got %v and %v", kind, xShape, hShape)
	}

	if xShape[0] != hShape[0] {
		return 0, 0, fmt.Errorf("ops: %s cell batch mismatch: x %d vs hidden %d", kind, xShape[0], hShape[0])
	}

	units = int(hShape[1])
	batch = int(hShape[0])
	packed := int64(gates * units)

	wi := weightIH.Shape()
	wh := weightHH.Shape()

	if len(wi) != 2 || wi[0] != packed || wi[1] != xShape[1] {
		return 0, 0, fmt.Errorf("ops: %s cell weightIH shape %v does not match [%d %d]", kind, wi, packed, xShape[1])
	}

	if len(wh) != 2 || wh[0] != packed || wh[1] != hShape[1] {
		return 0, 0, fmt.Errorf("ops: %s cell weightHH shape %v does not match [%d %d]", kind, wh, packed, hShape[1])
	}

	if biasIH != nil && (biasIH.Rank() != 1 || biasIH.Shape()[0] != packed) {
		return 0, 0, fmt.Errorf("ops: %s cell biasIH shape %v does not match [%d]", kind, biasIH.Shape(), packed)
	}

	if biasHH != nil && (biasHH.Rank() != 1 || biasHH.Shape()[0] != packed) {
		return 0, 0, fmt.Errorf("ops: %s cell biasHH shape %v does not match [%d]", kind, biasHH.Shape(), packed)
	}

	return units, batch, nil
}

func sigmoid(v float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(-float64(v))))
}

func tanh(v float32) float32 {
	return float32(math.Tanh(float64(v)))
}
