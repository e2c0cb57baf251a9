package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/go-melsynth/internal/doctor"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that checkpoints, data paths and the vocoder runtime are usable",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			res := doctor.Run(cfg, cmd.OutOrStdout())
			if res.Failed() {
				return fmt.Errorf("%d check(s) failed", len(res.Failures()))
			}

			return nil
		},
	}
}
