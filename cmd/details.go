package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newCrawlDetailsCmd fetches the detail page of one stored entry, selected by
// the item number shown by `list`.
func (c *cli) newCrawlDetailsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl-details <category> <item-number>",
		Short: "Fetch and store the detail page of one entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.resolveApp()
			if err != nil {
				return err
			}
			cat, entry, err := selectItem(cmd.Context(), a, args[0], args[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			b := entry.Common()
			fmt.Fprintln(out, rule)
			fmt.Fprintln(out, "Crawling Details")
			fmt.Fprintln(out, rule)
			fmt.Fprintf(out, "Item: %s\nURL: %s\nPortal: %s\n", b.Title, b.URL, b.PortalName)

			info, err := a.Coordinator.EnrichOne(cmd.Context(), cat, b.ID)
			if err != nil {
				return fmt.Errorf("crawl details: %w", err)
			}
			fmt.Fprintln(out, "\nDetails crawled successfully.")
			fmt.Fprintf(out, "Full description: %d characters\n", len(info.FullDescription))
			fmt.Fprintf(out, "Links: %d, result links: %d, download links: %d\n",
				len(info.Links), len(info.ResultLinks), len(info.DownloadLinks))
			fmt.Fprintf(out, "Tables extracted: %d\n", len(info.Tables))
			fmt.Fprintf(out, "\nTo view full details, use: view-details %s %s\n", cat, args[1])
			return nil
		},
	}
}
