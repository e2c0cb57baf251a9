// Package vocoder runs a neural mel-to-waveform model through ONNX Runtime,
// the alternative to classical Griffin-Lim inversion.
package vocoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	ort "github.com/shota3506/onnxruntime-purego/onnxruntime"

	"github.com/example/go-melsynth/internal/runtime/tensor"
)

// Config holds ORT library settings and the graph's tensor names.
type Config struct {
	LibraryPath string
	ModelPath   string
	APIVersion  uint32
	InputName   string
	OutputName  string
}

func (c Config) withDefaults() Config {
	if c.APIVersion == 0 {
		c.APIVersion = 23
	}

	if c.InputName == "" {
		c.InputName = "mel"
	}

	if c.OutputName == "" {
		c.OutputName = "audio"
	}

	return c
}

// Vocoder wraps an ORT session for a single mel-to-waveform graph.
type Vocoder struct {
	cfg     Config
	runtime *ort.Runtime
	env     *ort.Env
	session *ort.Session
}

// New loads the ONNX runtime library and opens the vocoder model.
func New(cfg Config) (*Vocoder, error) {
	cfg = cfg.withDefaults()

	if cfg.ModelPath == "" {
		return nil, errors.New("vocoder: model path is required")
	}

	runtime, err := ort.NewRuntime(cfg.LibraryPath, cfg.APIVersion)
	if err != nil {
		return nil, fmt.Errorf("vocoder: ort runtime: %w", err)
	}

	env, err := runtime.NewEnv("melsynth-vocoder", ort.LoggingLevelWarning)
	if err != nil {
		_ = runtime.Close()

		return nil, fmt.Errorf("vocoder: ort env: %w", err)
	}

	session, err := runtime.NewSession(env, cfg.ModelPath, nil)
	if err != nil {
		env.Close()
		_ = runtime.Close()

		return nil, fmt.Errorf("vocoder: ort session (%s): %w", cfg.ModelPath, err)
	}

	slog.Info("loaded vocoder model", "path", cfg.ModelPath, "input", cfg.InputName, "output", cfg.OutputName)

	return &Vocoder{cfg: cfg, runtime: runtime, env: env, session: session}, nil
}

// Synthesize converts a mel spectrogram [1, nMels, T] (or [nMels, T], which
// is batched automatically) into waveform samples.
func (v *Vocoder) Synthesize(ctx context.Context, mel *tensor.Tensor) ([]float32, error) {
	if v == nil || v.session == nil {
		return nil, errors.New("vocoder: session is closed")
	}

	shape := mel.Shape()

	switch len(shape) {
	case 2:
		shape = append([]int64{1}, shape...)
	case 3:
	default:
		return nil, fmt.Errorf("vocoder: mel must be rank 2 or 3, got %v", mel.Shape())
	}

	input, err := ort.NewTensorValue(v.runtime, mel.Data(), shape)
	if err != nil {
		return nil, fmt.Errorf("vocoder: input tensor: %w", err)
	}
	defer input.Close()

	outputs, err := v.session.Run(ctx, map[string]*ort.Value{v.cfg.InputName: input})
	if err != nil {
		return nil, fmt.Errorf("vocoder: run: %w", err)
	}

	defer func() {
		for _, out := range outputs {
			out.Close()
		}
	}()

	out, ok := outputs[v.cfg.OutputName]
	if !ok {
		names := make([]string, 0, len(outputs))
		for name := range outputs {
			names = append(names, name)
		}

		return nil, fmt.Errorf("vocoder: graph has no output %q (outputs: %v)", v.cfg.OutputName, names)
	}

	elemType, err := out.GetTensorElementType()
	if err != nil {
		return nil, fmt.Errorf("vocoder: output element type: %w", err)
	}

	if elemType != ort.ONNXTensorElementDataTypeFloat {
		return nil, fmt.Errorf("vocoder: output element type %v, want float32", elemType)
	}

	data, _, err := ort.GetTensorData[float32](out)
	if err != nil {
		return nil, fmt.Errorf("vocoder: output data: %w", err)
	}

	return append([]float32(nil), data...), nil
}

// Close releases all ORT resources. Safe to call multiple times.
func (v *Vocoder) Close() {
	if v == nil {
		return
	}

	if v.session != nil {
		v.session.Close()
		v.session = nil
	}

	if v.env != nil {
		v.env.Close()
		v.env = nil
	}

	if v.runtime != nil {
		_ = v.runtime.Close()
		v.runtime = nil
	}
}
