package cmd

import (
	"fmt"

	"github.com/mmcdole/offlined/internal/domain"
	"github.com/mmcdole/offlined/internal/inspect"
	"github.com/spf13/cobra"
)

var purgeCmd = &cobra.Command{
	Use:   "purge <store>",
	Short: "delete one store",
	Long:  "Delete one store. Purging a store of the configured version empties it until offlined caches responses again.",
	Args:  cobra.ExactArgs(1),
	RunE:  runPurge,
}

func runPurge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	storage, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer storage.Close()

	name := args[0]
	deleted, err := storage.Delete(name)
	if err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	if !deleted {
		return fmt.Errorf("%w: %s", domain.ErrStoreNotFound, name)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", inspect.SuccessStyle.Render("deleted"), name)
	return nil
}
