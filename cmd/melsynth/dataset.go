package main

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/spf13/cobra"

	"github.com/example/go-melsynth/internal/dataset"
	"github.com/example/go-melsynth/internal/text"
)

func newDatasetCmd() *cobra.Command {
	var (
		preview int
		seed    int64
	)

	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Inspect dataset metadata and preview the sampling order",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			samples, err := dataset.LoadMetadata(cfg.Paths.MetadataPath, cfg.Paths.MelDir, cfg.Paths.EmbedDir)
			if err != nil {
				return err
			}

			var totalChars, emptySeqs int
			texts := make([]string, len(samples))
			for i, s := range samples {
				texts[i] = s.Text

				seq := text.ToSequence(s.Text)
				totalChars += len(seq)
				if len(seq) == 0 {
					emptySeqs++
				}
			}

			slog.Info("dataset summary",
				"samples", len(samples),
				"total_chars", totalChars,
				"empty_sequences", emptySeqs)

			if preview <= 0 {
				return nil
			}

			cycler, err := dataset.NewCycler(texts, rand.New(rand.NewSource(seed)))
			if err != nil {
				return err
			}

			for i, item := range cycler.Sample(preview) {
				fmt.Printf("%3d  %s\n", i, item)
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&preview, "preview", 0, "Print the first N items of the sampling order")
	cmd.Flags().Int64Var(&seed, "seed", 1, "Shuffle seed for the preview")

	return cmd
}
