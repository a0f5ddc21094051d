package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	tagFilters filterFlags
	tagDelete  bool
)

var tagCmd = &cobra.Command{
	Use:   "tag <tag>",
	Short: "Add or remove a tag on filtered annotations",
	Long: `Add a tag to every annotation matching the filter flags, or remove it
with --delete. The change is applied to the local mirror and pushed to the
remote service, so it survives future syncs.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		tag := args[0]
		cfg := loadConfig()
		st := openStore(cfg)
		defer st.Close()

		anns, err := tagFilters.spec().Apply(cmd.Context(), st)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error filtering annotations: %v\n", err)
			os.Exit(1)
		}

		s := newSyncer(cfg, st)
		var changed int
		if tagDelete {
			changed, err = s.RemoveTag(cmd.Context(), anns, tag)
		} else {
			changed, err = s.AddTag(cmd.Context(), anns, tag)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error updating tags: %v\n", err)
			os.Exit(1)
		}

		if tagDelete {
			fmt.Printf("Removed tag %q from %d annotations\n", tag, changed)
		} else {
			fmt.Printf("Added tag %q to %d annotations\n", tag, changed)
		}
	},
}

func init() {
	tagFilters.register(tagCmd)
	tagCmd.Flags().BoolVarP(&tagDelete, "delete", "d", false,
		"remove the tag from the filtered annotations instead of adding it")
	rootCmd.AddCommand(tagCmd)
}
