// Command quince maintains a local, queryable mirror of annotations from a
// Hypothesis-compatible service, with tag-based lookup and filtering.
package main

import (
	"fmt"
	"os"

	"github.com/quincelabs/quince/internal/config"
	"github.com/quincelabs/quince/internal/hypothesis"
	"github.com/quincelabs/quince/internal/store"
	"github.com/quincelabs/quince/internal/syncer"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "quince",
	Short: "Mirror and organize your web annotations",
	Long: `quince keeps a local mirror of annotations from a Hypothesis-compatible
service and maintains tag indices over it for fast lookup.

Typical flow:
  1. quince config default > config.toml  (then fill in credentials)
  2. quince sync
  3. quince view --tags reading
  4. quince tag --uri wikipedia encyclopedias`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default $QUINCE_CONFIG or the platform config dir)")
}

// loadConfig reads the effective configuration for this invocation.
func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// openStore opens the local mirror. The caller must Close it.
func openStore(cfg *config.Config) *store.Store {
	st, err := store.Open(cfg.DBPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	return st
}

// newSyncer wires the sync engine against the configured remote source.
func newSyncer(cfg *config.Config, st *store.Store) *syncer.Syncer {
	client := hypothesis.NewClient(cfg.APIURL, cfg.Token)
	return syncer.New(st, client, cfg.Username, cfg.PageSize, cfg.NewLogger("[sync] "))
}
