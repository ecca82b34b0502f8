package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// printJSON marshals v and writes it to stdout, one document per run,
// matching §6's "--json" machine-readable summary requirement.
func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, failStyle.Render("error: marshal summary: "+err.Error()))
		return
	}
	fmt.Println(string(data))
}
