package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func (c *cli) newBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup <category>",
		Short: "Snapshot a category file into the backup directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.resolveApp()
			if err != nil {
				return err
			}
			cat, err := anyCategory(args[0])
			if err != nil {
				return err
			}
			path, err := a.Store.Backup(cmd.Context(), cat)
			if err != nil {
				return fmt.Errorf("backup %s: %w", cat, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup written to %s\n", path)
			return nil
		},
	}
}

func (c *cli) newClearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear <category>",
		Short: "Remove every record of a category (a backup is taken first)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.resolveApp()
			if err != nil {
				return err
			}
			cat, err := anyCategory(args[0])
			if err != nil {
				return err
			}
			if !yes {
				return errors.New("refusing to clear without --yes")
			}
			if err := a.Store.Clear(cmd.Context(), cat); err != nil {
				return fmt.Errorf("clear %s: %w", cat, err)
			}
			if err := a.Processor.RefreshCache(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", cat)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the deletion")
	return cmd
}
