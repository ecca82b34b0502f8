package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ankiops/ankiops/internal/ankierr"
)

var flagDeserializeIn string

var deserializeCmd = &cobra.Command{
	Use:   "deserialize",
	Short: "Write Markdown files back from a portable JSON collection document (§4.9)",
	RunE: func(cmd *cobra.Command, args []string) error {
		var data []byte
		var err error
		if flagDeserializeIn == "" || flagDeserializeIn == "-" {
			data, err = os.ReadFile("/dev/stdin")
		} else {
			data, err = os.ReadFile(flagDeserializeIn)
		}
		if err != nil {
			return ankierr.Wrap(ankierr.ErrParse, "read serialized collection", err)
		}

		o, ctx, cancel, err := openOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer o.Close()

		result, err := o.RunDeserialize(ctx, data)
		if err != nil {
			return err
		}
		printSummary("deserialize complete", result)
		return nil
	},
}

func init() {
	deserializeCmd.Flags().StringVarP(&flagDeserializeIn, "input", "i", "-", "Input file ('-' for stdin)")
}
