package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/mmcdole/offlined/internal/domain"
	"github.com/mmcdole/offlined/internal/inspect"
	"github.com/spf13/cobra"
)

var entriesCmd = &cobra.Command{
	Use:   "entries <store> [query]",
	Short: "list stored responses, optionally fuzzy-filtered by key",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runEntries,
}

func runEntries(cmd *cobra.Command, args []string) error {
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
	if !storage.Has(name) {
		return fmt.Errorf("%w: %s", domain.ErrStoreNotFound, name)
	}
	c, err := storage.Open(name)
	if err != nil {
		return err
	}

	var query string
	if len(args) == 2 {
		query = args[1]
	}
	matches, err := inspect.ListEntries(c, query)
	if err != nil {
		return err
	}

	inspect.RenderEntries(cmd.OutOrStdout(), matches, inspect.TerminalWidth(os.Stdout), time.Now())
	return nil
}
