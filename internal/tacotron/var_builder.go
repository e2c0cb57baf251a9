package tacotron

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/example/go-melsynth/internal/runtime/tensor"
	"github.com/example/go-melsynth/internal/safetensors"
)

// VarBuilder provides hierarchical tensor lookup over a safetensors store.
// Every tensor served is recorded in a registry shared across Path scopes,
// so a fully loaded model can be serialized back out by name.
type VarBuilder struct {
	store  *safetensors.Store
	prefix string
	seen   map[string]*tensor.Tensor
}

// NewVarBuilder wraps an opened store.
func NewVarBuilder(store *safetensors.Store) *VarBuilder {
	return &VarBuilder{store: store, seen: make(map[string]*tensor.Tensor)}
}

// Path returns a builder scoped under dot-joined parts.
func (vb *VarBuilder) Path(parts ...string) *VarBuilder {
	if vb == nil {
		return nil
	}

	prefix := vb.prefix

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if prefix == "" {
			prefix = part
		} else {
			prefix += "." + part
		}
	}

	return &VarBuilder{store: vb.store, prefix: prefix, seen: vb.seen}
}

// Has reports whether the scoped name exists in the store.
func (vb *VarBuilder) Has(name string) bool {
	if vb == nil || vb.store == nil {
		return false
	}

	return vb.store.Has(vb.resolve(name))
}

// Tensor loads the scoped tensor, optionally validating its shape.
func (vb *VarBuilder) Tensor(name string, wantShape ...int64) (*tensor.Tensor, error) {
	if vb == nil || vb.store == nil {
		return nil, errors.New("tacotron: varbuilder has no store")
	}

	fullName := vb.resolve(name)

	st, err := vb.store.Tensor(fullName)
	if err != nil {
		return nil, err
	}

	if len(wantShape) > 0 && !shapeEqual(st.Shape, wantShape) {
		return nil, fmt.Errorf("tacotron: tensor %q shape %v does not match expected %v", fullName, st.Shape, wantShape)
	}

	t, err := tensor.New(st.Data, st.Shape)
	if err != nil {
		return nil, fmt.Errorf("tacotron: tensor %q: %w", fullName, err)
	}

	vb.seen[fullName] = t

	return t, nil
}

// TensorMaybe loads the scoped tensor if present.
func (vb *VarBuilder) TensorMaybe(name string, wantShape ...int64) (*tensor.Tensor, bool, error) {
	if !vb.Has(name) {
		return nil, false, nil
	}

	t, err := vb.Tensor(name, wantShape...)
	if err != nil {
		return nil, true, err
	}

	return t, true, nil
}

// Loaded returns every tensor served so far as safetensors entries, sorted
// by name.
func (vb *VarBuilder) Loaded() []safetensors.Tensor {
	if vb == nil {
		return nil
	}

	names := make([]string, 0, len(vb.seen))
	for name := range vb.seen {
		names = append(names, name)
	}

	sort.Strings(names)

	out := make([]safetensors.Tensor, 0, len(names))
	for _, name := range names {
		t := vb.seen[name]
		out = append(out, safetensors.Tensor{Name: name, Shape: t.Shape(), Data: t.Data()})
	}

	return out
}

func (vb *VarBuilder) resolve(name string) string {
	name = strings.TrimSpace(name)
	if vb == nil || vb.prefix == "" {
		return name
	}

	if name == "" {
		return vb.prefix
	}

	return vb.prefix + "." + name
}

func shapeEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
