package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"

	"github.com/example/go-melsynth/internal/audio"
)

type fakeCmd struct {
	fs *pflag.FlagSet
}

func (f *fakeCmd) Flags() *pflag.FlagSet { return f.fs }

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(LoadOptions{Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Audio.SampleRate != 16000 {
		t.Fatalf("sample rate = %d, want 16000", cfg.Audio.SampleRate)
	}

	if cfg.Model.Reduction != 2 {
		t.Fatalf("reduction = %d, want 2", cfg.Model.Reduction)
	}

	if cfg.Synth.Inversion != "griffinlim" {
		t.Fatalf("inversion = %q, want griffinlim", cfg.Synth.Inversion)
	}
}

func TestLoadFlagOverrides(t *testing.T) {
	defaults := DefaultConfig()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)

	if err := fs.Parse([]string{
		"--model-reduction=5",
		"--audio-num-mels=40",
		"--ort-lib=/opt/ort/libonnxruntime.so",
	}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(LoadOptions{Cmd: &fakeCmd{fs: fs}, Defaults: defaults})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Model.Reduction != 5 {
		t.Fatalf("reduction = %d, want 5", cfg.Model.Reduction)
	}

	if cfg.Audio.NumMels != 40 {
		t.Fatalf("num mels = %d, want 40", cfg.Audio.NumMels)
	}

	if cfg.Synth.ORTLibraryPath != "/opt/ort/libonnxruntime.so" {
		t.Fatalf("ort library path = %q", cfg.Synth.ORTLibraryPath)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "melsynth.yaml")
	body := "audio:\n  hop_size: 128\nsynth:\n  inversion: direct\n"

	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(LoadOptions{ConfigFile: path, Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Audio.HopSize != 128 {
		t.Fatalf("hop size = %d, want 128", cfg.Audio.HopSize)
	}

	if cfg.Synth.Inversion != "direct" {
		t.Fatalf("inversion = %q, want direct", cfg.Synth.Inversion)
	}

	// Untouched keys keep their defaults.
	if cfg.Audio.NFFT != 1024 {
		t.Fatalf("n_fft = %d, want default 1024", cfg.Audio.NFFT)
	}
}

func TestTransformConfigMapsInversion(t *testing.T) {
	a := DefaultConfig().Audio

	if got := a.TransformConfig("direct"); got.Inversion != audio.InversionDirect {
		t.Fatalf("direct inversion not mapped, got %v", got.Inversion)
	}

	if got := a.TransformConfig("griffinlim"); got.Inversion != audio.InversionGriffinLim {
		t.Fatalf("griffinlim inversion = %v, want default", got.Inversion)
	}
}
