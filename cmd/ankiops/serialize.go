package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ankiops/ankiops/internal/ankierr"
	"github.com/ankiops/ankiops/internal/serialize"
)

var (
	flagSerializeOut           string
	flagSerializeStripIdentity bool
)

var serializeCmd = &cobra.Command{
	Use:   "serialize",
	Short: "Dump the card store to a portable JSON collection document (§4.9)",
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

		doc, err := o.RunSerialize(ctx, serialize.SerializeOptions{StripIdentity: flagSerializeStripIdentity})
		if err != nil {
			return err
		}

		data, err := serialize.Marshal(doc)
		if err != nil {
			return err
		}

		if flagSerializeOut == "" || flagSerializeOut == "-" {
			fmt.Println(string(data))
			return nil
		}
		if err := os.WriteFile(flagSerializeOut, data, 0o644); err != nil {
			return ankierr.Wrap(ankierr.ErrStorage, "write serialized collection", err)
		}
		printSummary("serialize complete", map[string]any{"decks": len(doc.Decks), "output": flagSerializeOut})
		return nil
	},
}

func init() {
	serializeCmd.Flags().StringVarP(&flagSerializeOut, "output", "o", "-", "Output file ('-' for stdout)")
	serializeCmd.Flags().BoolVar(&flagSerializeStripIdentity, "strip-identity", false, "Omit note_key/deck_id for sharing")
}
