package main

import (
	"github.com/spf13/cobra"
)

var mediaSyncCmd = &cobra.Command{
	Use:   "media-sync",
	Short: "Hash, rewrite, push, and pull referenced media (§4.8)",
	RunE: func(cmd *cobra.Command, args []string) error {
		o, ctx, cancel, err := openOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer o.Close()
		if err := withStore(o); err != nil {
			return err
		}

		result, err := o.RunMediaSync(ctx)
		if err != nil {
			return err
		}
		printSummary("media sync complete", result)
		return nil
	},
}
