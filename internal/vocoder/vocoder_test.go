package vocoder

import (
	"context"
	"os"
	"testing"

	"github.com/example/go-melsynth/internal/runtime/tensor"
	"github.com/example/go-melsynth/internal/testutil"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{ModelPath: "model.onnx"}.withDefaults()

	if cfg.APIVersion != 23 {
		t.Fatalf("api version = %d, want 23", cfg.APIVersion)
	}

	if cfg.InputName != "mel" || cfg.OutputName != "audio" {
		t.Fatalf("tensor names = %q/%q, want mel/audio", cfg.InputName, cfg.OutputName)
	}
}

func TestNewRequiresModelPath(t *testing.T) {
	if _, err := New(Config{LibraryPath: "libonnxruntime.so"}); err == nil {
		t.Fatal("expected error for empty model path")
	}
}

func TestSynthesizeOnClosedVocoder(t *testing.T) {
	var v Vocoder

	mel, err := tensor.Zeros([]int64{1, 4, 8})
	if err != nil {
		t.Fatalf("zeros: %v", err)
	}

	if _, err := v.Synthesize(context.Background(), mel); err == nil {
		t.Fatal("expected error on closed vocoder")
	}
}

// Requires a real ONNX Runtime library and a vocoder graph; skipped when the
// environment does not provide them.
func TestSynthesizeIntegration(t *testing.T) {
	lib := testutil.ONNXRuntimePath(t)

	modelPath := os.Getenv("MELSYNTH_VOCODER_MODEL")
	if modelPath == "" {
		t.Skip("MELSYNTH_VOCODER_MODEL not set")
	}

	testutil.RequireFile(t, modelPath)

	v, err := New(Config{LibraryPath: lib, ModelPath: modelPath})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer v.Close()

	mel, err := tensor.Zeros([]int64{1, 80, 32})
	if err != nil {
		t.Fatalf("zeros: %v", err)
	}

	wav, err := v.Synthesize(context.Background(), mel)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if len(wav) == 0 {
		t.Fatal("empty waveform")
	}
}
