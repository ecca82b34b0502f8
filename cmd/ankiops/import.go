package main

import (
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Reconcile Markdown files into the card store (§4.6)",
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

		result, err := o.RunImport(ctx)
		if err != nil {
			return err
		}
		printSummary("import complete", result)
		return nil
	},
}
