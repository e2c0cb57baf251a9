package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/example/go-melsynth/internal/tacotron"
)

func newInitCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an untrained checkpoint with randomly initialized weights",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if outPath == "" {
				outPath = cfg.Paths.CheckpointPath
			}
			if outPath == "" {
				return fmt.Errorf("no output path: set --out or --paths-checkpoint-path")
			}

			mcfg := modelConfig(cfg)

			model, err := tacotron.NewRandomModel(mcfg, cfg.Model.Seed)
			if err != nil {
				return err
			}

			if err := model.SetReduction(cfg.Model.Reduction); err != nil {
				return err
			}

			if err := tacotron.SaveCheckpoint(outPath, model, nil); err != nil {
				return err
			}

			slog.Info("wrote untrained checkpoint", "path", outPath,
				"num_chars", mcfg.NumChars, "n_mels", mcfg.NMels, "reduction", cfg.Model.Reduction)

			return nil
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", "Checkpoint output path (defaults to --checkpoint)")

	return cmd
}
