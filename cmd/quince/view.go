package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var viewFilters filterFlags

var viewCmd = &cobra.Command{
	Use:   "view [id]",
	Short: "Print (optionally filtered) mirrored annotations",
	Long: `Print mirrored annotations as JSON lines, one per annotation.

With an ID argument, prints just that annotation. Otherwise the filter flags
select which annotations to print; no flags means everything. Output is
sorted by creation date, or by update date with --include-updated, and
descending when --before is used.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		st := openStore(cfg)
		defer st.Close()

		enc := json.NewEncoder(os.Stdout)

		if len(args) == 1 {
			a, err := st.GetContext(cmd.Context(), args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if err := enc.Encode(a); err != nil {
				fmt.Fprintf(os.Stderr, "Error encoding annotation: %v\n", err)
				os.Exit(1)
			}
			return
		}

		anns, err := viewFilters.spec().Apply(cmd.Context(), st)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error filtering annotations: %v\n", err)
			os.Exit(1)
		}
		for _, a := range anns {
			if err := enc.Encode(a); err != nil {
				fmt.Fprintf(os.Stderr, "Error encoding annotation: %v\n", err)
				os.Exit(1)
			}
		}
	},
}

func init() {
	viewFilters.register(viewCmd)
	rootCmd.AddCommand(viewCmd)
}
