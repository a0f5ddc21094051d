package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	deleteFilters filterFlags
	deleteRemote  bool
	deleteForce   bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove filtered annotations from the mirror",
	Long: `Remove every annotation matching the filter flags from the local mirror.

Without --remote, the ignore tag is added to each annotation upstream so
future syncs tombstone it instead of re-adding it. With --remote, the
annotation is deleted from the remote service as well.

Deletion requires --force; without it the matching count is printed and
nothing is removed.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		st := openStore(cfg)
		defer st.Close()

		anns, err := deleteFilters.spec().Apply(cmd.Context(), st)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error filtering annotations: %v\n", err)
			os.Exit(1)
		}
		if len(anns) == 0 {
			fmt.Println("Nothing to delete")
			return
		}
		if !deleteForce {
			fmt.Printf("Would delete %d annotations; re-run with --force to proceed\n", len(anns))
			return
		}

		s := newSyncer(cfg, st)
		removed, err := s.Forget(cmd.Context(), anns, deleteRemote)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error deleting annotations: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Deleted %d annotations\n", removed)
	},
}

func init() {
	deleteFilters.register(deleteCmd)
	deleteCmd.Flags().BoolVarP(&deleteRemote, "remote", "r", false,
		"also delete from the remote service")
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false,
		"actually delete; without it only the matching count is shown")
	rootCmd.AddCommand(deleteCmd)
}
