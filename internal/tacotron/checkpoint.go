package tacotron

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/example/go-melsynth/internal/safetensors"
)

// Checkpoint files hold two key sections: model parameters under
// "model_state." and, optionally, optimizer tensors under
// "optimizer_state.". A file without the optimizer section loads fine; the
// optimizer state is simply not restored.
const (
	modelStatePrefix     = "model_state."
	optimizerStatePrefix = "optimizer_state."
)

// SaveCheckpoint writes the model parameters, and optimizer tensors when
// provided, to a safetensors file.
func SaveCheckpoint(path string, m *Model, optimizer []safetensors.Tensor) error {
	params := m.vars.Loaded()
	if len(params) == 0 {
		return fmt.Errorf("tacotron: model has no loaded parameters to save")
	}

	out := make([]safetensors.Tensor, 0, len(params)+len(optimizer))

	for _, t := range params {
		t.Name = modelStatePrefix + t.Name
		out = append(out, t)
	}

	for _, t := range optimizer {
		t.Name = optimizerStatePrefix + t.Name
		out = append(out, t)
	}

	metadata := map[string]string{"reduction": strconv.FormatInt(m.R(), 10)}

	if err := safetensors.WriteFileWithMetadata(path, out, metadata); err != nil {
		return fmt.Errorf("tacotron: save checkpoint: %w", err)
	}

	slog.Info("saved checkpoint", "path", path, "model_tensors", len(params), "optimizer_tensors", len(optimizer), "reduction", m.R())

	return nil
}

// LoadCheckpoint restores a model from a checkpoint file. Every model
// parameter must be present with its expected shape; extra sections are
// ignored.
func LoadCheckpoint(path string, cfg Config) (*Model, error) {
	store, err := safetensors.OpenStore(path, safetensors.StoreOptions{
		KeyMapper: sectionMapper(modelStatePrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("tacotron: load checkpoint: %w", err)
	}

	m, err := NewModel(store, cfg)
	if err != nil {
		return nil, fmt.Errorf("tacotron: load checkpoint %s: %w", path, err)
	}

	// The stored reduction factor travels with the weights; callers may
	// still override it afterwards.
	if raw, ok := store.Metadata()["reduction"]; ok {
		r, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("tacotron: checkpoint %s reduction %q: %w", path, raw, err)
		}

		if err := m.SetReduction(r); err != nil {
			return nil, fmt.Errorf("tacotron: checkpoint %s: %w", path, err)
		}
	}

	slog.Info("loaded checkpoint", "path", path, "tensors", len(store.Names()), "reduction", m.R())

	return m, nil
}

// LoadOptimizerState reads the optimizer section of a checkpoint. A
// checkpoint without one yields no tensors and no error.
func LoadOptimizerState(path string) ([]safetensors.Tensor, error) {
	store, err := safetensors.OpenStore(path, safetensors.StoreOptions{
		KeyMapper: sectionMapper(optimizerStatePrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("tacotron: load optimizer state: %w", err)
	}
	defer store.Close()

	names := store.Names()
	if len(names) == 0 {
		slog.Debug("checkpoint has no optimizer state", "path", path)

		return nil, nil
	}

	out := make([]safetensors.Tensor, 0, len(names))

	for _, name := range names {
		t, err := store.Tensor(name)
		if err != nil {
			return nil, fmt.Errorf("tacotron: load optimizer tensor %q: %w", name, err)
		}

		out = append(out, *t)
	}

	return out, nil
}

// sectionMapper keeps only tensors under prefix, with the prefix stripped.
func sectionMapper(prefix string) safetensors.KeyMapper {
	return func(name string) (string, bool) {
		mapped, ok := strings.CutPrefix(name, prefix)

		return mapped, ok
	}
}
