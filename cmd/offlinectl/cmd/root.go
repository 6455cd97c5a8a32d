package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/mmcdole/offlined/internal/config"
	"github.com/mmcdole/offlined/internal/inspect"
	"github.com/mmcdole/offlined/internal/store"
	"github.com/spf13/cobra"
)

var (
	configFile string

	rootCmd = &cobra.Command{
		Use:           "offlinectl [command]",
		Short:         "Inspect and maintain the offlined response cache",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default searches ~/.config/offlined and .)")

	rootCmd.AddCommand(storesCmd)
	rootCmd.AddCommand(entriesCmd)
	rootCmd.AddCommand(evictCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(initCmd)
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, inspect.ErrorStyle.Render("Error! "+err.Error()))
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(configFile).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// openStorage opens the cache offlined uses for the configured origin. The
// database is exclusive, so offlined must not be running.
func openStorage(cfg *config.Config) (*store.Storage, error) {
	if cfg.Cache.Dir == "" {
		return nil, errors.New("cache.dir is empty: offlined runs memory-only, nothing to inspect")
	}
	origin, err := cfg.OriginURL()
	if err != nil {
		return nil, err
	}
	s, err := store.Open(cfg.Cache.Dir, origin.String())
	if errors.Is(err, store.ErrLocked) {
		return nil, fmt.Errorf("%w; stop offlined first", err)
	}
	return s, err
}
