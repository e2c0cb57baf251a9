package main

import (
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-melsynth/internal/audio"
	"github.com/example/go-melsynth/internal/safetensors"
)

func newSpectrogramCmd() *cobra.Command {
	var (
		outPath string
		linear  bool
	)

	cmd := &cobra.Command{
		Use:   "spectrogram <input.wav>",
		Short: "Compute a normalized spectrogram from a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			inPath := args[0]
			if outPath == "" {
				outPath = strings.TrimSuffix(inPath, ".wav") + ".safetensors"
			}

			samples, err := audio.LoadWAV(inPath, cfg.Audio.SampleRate)
			if err != nil {
				return err
			}

			transform, err := audio.NewTransform(cfg.Audio.TransformConfig(cfg.Synth.Inversion))
			if err != nil {
				return err
			}

			name := "mel"
			var spec [][]float32

			if linear {
				name = "linear"
				spec, err = transform.LinearSpectrogram(samples)
			} else {
				spec, err = transform.MelSpectrogram(samples)
			}
			if err != nil {
				return err
			}

			if err := safetensors.WriteFile(outPath, []safetensors.Tensor{specTensor(name, spec)}); err != nil {
				return err
			}

			slog.Info("wrote spectrogram", "path", outPath, "kind", name,
				"bins", len(spec), "frames", frameCount(spec))

			return nil
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", "Output .safetensors path (default alongside the input)")
	cmd.Flags().BoolVar(&linear, "linear", false, "Compute a linear spectrogram instead of mel")

	return cmd
}

// specTensor flattens [bins][frames] rows into a single rank-2 tensor.
func specTensor(name string, spec [][]float32) safetensors.Tensor {
	frames := frameCount(spec)

	data := make([]float32, 0, len(spec)*frames)
	for _, row := range spec {
		data = append(data, row...)
	}

	return safetensors.Tensor{
		Name:  name,
		Shape: []int64{int64(len(spec)), int64(frames)},
		Data:  data,
	}
}

func frameCount(spec [][]float32) int {
	if len(spec) == 0 {
		return 0
	}

	return len(spec[0])
}
