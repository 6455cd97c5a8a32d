package cmd

import (
	"github.com/mmcdole/offlined/internal/inspect"
	"github.com/spf13/cobra"
)

var (
	storesFilter string

	storesCmd = &cobra.Command{
		Use:   "stores",
		Short: "list stores and their entry counts",
		Long:  "List every store in the cache. Stores of the configured version are marked ●, stale ones ○.",
		Args:  cobra.NoArgs,
		RunE:  runStores,
	}
)

func init() {
	storesCmd.Flags().StringVarP(&storesFilter, "filter", "f", "", "only show stores whose name fuzzily matches")
}

func runStores(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	names, err := cfg.StoreNames()
	if err != nil {
		return err
	}
	storage, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer storage.Close()

	stores, err := inspect.ListStores(storage, names, storesFilter)
	if err != nil {
		return err
	}
	inspect.RenderStores(cmd.OutOrStdout(), stores)
	return nil
}
