package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var moveFilters filterFlags

var moveCmd = &cobra.Command{
	Use:   "move <group>",
	Short: "Move annotations from another group into the mirrored group",
	Long: `Fetch every annotation in the given remote group and move the ones
matching the filter flags into the first configured group. The group change
is pushed to the remote service and the moved annotations enter the local
mirror immediately; no flags moves the whole group.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if len(cfg.Groups) == 0 {
			fmt.Fprintln(os.Stderr, "Error: no groups configured to move into")
			os.Exit(1)
		}
		st := openStore(cfg)
		defer st.Close()

		spec := moveFilters.spec()
		s := newSyncer(cfg, st)
		moved, err := s.Move(cmd.Context(), args[0], cfg.Groups[0], spec.Matches)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error moving annotations: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Moved %d annotations into group %q\n", moved, cfg.Groups[0])
	},
}

func init() {
	moveFilters.register(moveCmd)
	rootCmd.AddCommand(moveCmd)
}
