package main

import (
	"fmt"
	"os"

	"github.com/quincelabs/quince/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage quince configuration",
	Long: `Inspect and bootstrap the configuration file.

Set $QUINCE_CONFIG to use independent mirrors for different projects.`,
}

var configDefaultCmd = &cobra.Command{
	Use:   "default [file]",
	Short: "Print or write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			if err := config.WriteDefault(os.Stdout); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		}
		f, err := os.Create(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", args[0], err)
			os.Exit(1)
		}
		defer f.Close()
		if err := config.WriteDefault(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote default config to %s\n", args[0])
	},
}

var configWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Print the config file location in use",
	Run: func(cmd *cobra.Command, args []string) {
		path, err := config.Path(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(path)
	},
}

func init() {
	configCmd.AddCommand(configDefaultCmd)
	configCmd.AddCommand(configWhereCmd)
	rootCmd.AddCommand(configCmd)
}
