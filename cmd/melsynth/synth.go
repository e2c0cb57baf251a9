package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/go-melsynth/internal/audio"
	"github.com/example/go-melsynth/internal/config"
	"github.com/example/go-melsynth/internal/runtime/tensor"
	"github.com/example/go-melsynth/internal/safetensors"
	"github.com/example/go-melsynth/internal/tacotron"
	"github.com/example/go-melsynth/internal/text"
	"github.com/example/go-melsynth/internal/vocoder"
)

func newSynthCmd() *cobra.Command {
	var (
		inputText string
		outPath   string
		embedPath string
	)

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Synthesize speech from text",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if inputText == "" {
				return fmt.Errorf("--text is required")
			}

			if outPath == "" {
				outPath = filepath.Join(cfg.Paths.OutputDir, "synth.wav")
			}

			return runSynth(cmd.Context(), cfg, inputText, outPath, embedPath)
		},
	}

	cmd.Flags().StringVar(&inputText, "text", "", "Text to synthesize")
	cmd.Flags().StringVar(&outPath, "out", "", "Output WAV path (default <output-dir>/synth.wav)")
	cmd.Flags().StringVar(&embedPath, "embed", "", "Speaker embedding .safetensors path (zero embedding when omitted)")

	return cmd
}

func runSynth(ctx context.Context, cfg config.Config, inputText, outPath, embedPath string) error {
	mcfg := modelConfig(cfg)

	model, err := tacotron.LoadCheckpoint(cfg.Paths.CheckpointPath, mcfg)
	if err != nil {
		return err
	}

	if err := model.SetReduction(cfg.Model.Reduction); err != nil {
		return err
	}

	model.SetSeed(cfg.Model.Seed)

	seq := text.ToSequence(inputText)
	if len(seq) == 0 {
		return fmt.Errorf("text %q contains no synthesizable characters", inputText)
	}

	spk, err := loadSpeakerEmbedding(embedPath, mcfg.SpeakerEmbedSize)
	if err != nil {
		return err
	}

	start := time.Now()

	out, err := model.Generate([][]int64{seq}, spk, cfg.Model.MaxSteps)
	if err != nil {
		return err
	}

	frames := out.Mel.Shape()[2]
	slog.Info("generated spectrogram", "chars", len(seq), "frames", frames, "elapsed", time.Since(start))

	wav, err := invertMel(ctx, cfg, out.Mel)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	if err := audio.SaveWAV(outPath, wav, cfg.Audio.SampleRate); err != nil {
		return err
	}

	slog.Info("wrote waveform", "path", outPath, "samples", len(wav))

	return nil
}

// invertMel converts the generated mel spectrogram [1, nMels, T] to a
// waveform using the configured strategy.
func invertMel(ctx context.Context, cfg config.Config, mel *tensor.Tensor) ([]float32, error) {
	if cfg.Synth.Inversion == "vocoder" {
		voc, err := vocoder.New(vocoder.Config{
			LibraryPath: cfg.Synth.ORTLibraryPath,
			ModelPath:   cfg.Synth.VocoderModelPath,
		})
		if err != nil {
			return nil, err
		}
		defer voc.Close()

		return voc.Synthesize(ctx, mel)
	}

	transform, err := audio.NewTransform(cfg.Audio.TransformConfig(cfg.Synth.Inversion))
	if err != nil {
		return nil, err
	}

	return transform.InvMelSpectrogram(melRows(mel))
}

// melRows flattens a [1, nMels, T] tensor into [nMels][T] rows.
func melRows(mel *tensor.Tensor) [][]float32 {
	shape := mel.Shape()
	nMels, frames := int(shape[1]), int(shape[2])
	data := mel.RawData()

	rows := make([][]float32, nMels)
	for m := range rows {
		rows[m] = data[m*frames : (m+1)*frames]
	}

	return rows
}

// loadSpeakerEmbedding reads the first tensor of a safetensors file and
// reshapes it to [1, size]. An empty path yields a zero embedding.
func loadSpeakerEmbedding(path string, size int64) (*tensor.Tensor, error) {
	if path == "" {
		return tensor.Zeros([]int64{1, size})
	}

	store, err := safetensors.OpenStore(path, safetensors.StoreOptions{})
	if err != nil {
		return nil, err
	}
	defer store.Close()

	names := store.Names()
	if len(names) == 0 {
		return nil, fmt.Errorf("speaker embedding file %s holds no tensors", path)
	}

	st, err := store.Tensor(names[0])
	if err != nil {
		return nil, err
	}

	if int64(len(st.Data)) != size {
		return nil, fmt.Errorf("speaker embedding %q has %d values, want %d", names[0], len(st.Data), size)
	}

	return tensor.New(st.Data, []int64{1, size})
}

// modelConfig derives the acoustic-model hyperparameters from the loaded
// configuration.
func modelConfig(cfg config.Config) tacotron.Config {
	mcfg := tacotron.DefaultConfig()
	mcfg.NumChars = text.NumChars()
	mcfg.NMels = int64(cfg.Audio.NumMels)
	mcfg.PostProjBins = mcfg.NMels
	mcfg.PrenetDropoutAlways = cfg.Model.PrenetDropoutAlways

	return mcfg
}
