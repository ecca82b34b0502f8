package main

import (
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Reconcile the card store into Markdown files (§4.7)",
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

		result, err := o.RunExport(ctx)
		if err != nil {
			return err
		}
		printSummary("export complete", result)
		return nil
	},
}
