package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/ankiops/ankiops/internal/ankierr"
	"github.com/ankiops/ankiops/internal/config"
	"github.com/ankiops/ankiops/internal/sidecar"
)

var errUnhealthySidecar = errors.New("sidecar database failed one or more diagnostic checks")

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run read-only diagnostics against the sidecar database",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(flagCollectionDir); err != nil {
			return err
		}
		sidecarPath := flagSidecarPath
		if sidecarPath == "" {
			sidecarPath = flagCollectionDir + "/.ankiops/sidecar.db"
		}

		result, err := sidecar.Doctor(sidecarPath)
		if err != nil {
			return err
		}
		printSummary("doctor report", result)
		if !result.OverallOK {
			return ankierr.Wrap(ankierr.ErrStorage, "doctor", errUnhealthySidecar)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
