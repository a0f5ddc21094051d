package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var clearForce bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop all mirrored data and reset the sync cursor",
	Long: `Remove every mirrored annotation, both tag mappings, and all sync
cursors. The next sync re-fetches everything from the beginning of time.
Requires --force.`,
	Run: func(cmd *cobra.Command, args []string) {
		if !clearForce {
			fmt.Fprintln(os.Stderr, "Refusing to clear without --force")
			os.Exit(1)
		}

		cfg := loadConfig()
		st := openStore(cfg)
		defer st.Close()

		if err := st.Clear(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "Error clearing store: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Cleared all mirrored data")
	},
}

func init() {
	clearCmd.Flags().BoolVarP(&clearForce, "force", "f", false, "don't ask, just clear")
	rootCmd.AddCommand(clearCmd)
}
