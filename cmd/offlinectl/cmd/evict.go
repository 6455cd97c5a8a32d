package cmd

import (
	"fmt"
	"os"

	"github.com/mmcdole/offlined/internal/inspect"
	"github.com/mmcdole/offlined/internal/log"
	"github.com/mmcdole/offlined/internal/worker"
	"github.com/spf13/cobra"
)

var evictCmd = &cobra.Command{
	Use:   "evict",
	Short: "delete every store that does not belong to the configured version",
	Args:  cobra.NoArgs,
	RunE:  runEvict,
}

func runEvict(cmd *cobra.Command, args []string) error {
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

	deleted, err := worker.EvictStale(storage, names, log.New(os.Stderr, "WARN"))
	out := cmd.OutOrStdout()
	for _, name := range deleted {
		fmt.Fprintf(out, "%s %s\n", inspect.SuccessStyle.Render("deleted"), name)
	}
	if err != nil {
		return err
	}
	if len(deleted) == 0 {
		fmt.Fprintln(out, inspect.DimStyle.Render("nothing to evict"))
	}
	return nil
}
