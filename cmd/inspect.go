package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Jadaunkg/job-portal-crawler/internal/app"
	"github.com/Jadaunkg/job-portal-crawler/internal/model"
)

const rule = "============================================================"

func (c *cli) newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show per-category database statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.resolveApp()
			if err != nil {
				return err
			}
			stats, err := a.Processor.Statistics(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, rule)
			fmt.Fprintln(out, "Database Statistics")
			fmt.Fprintln(out, rule)
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "CATEGORY\tTOTAL\tWITH DETAILS\tBYTES")
			total := 0
			for _, cat := range model.Categories {
				s := stats.Categories[cat]
				total += s.Total
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", cat, s.Total, s.WithDetails, s.SizeBytes)
			}
			_ = tw.Flush()
			fmt.Fprintln(out, rule)
			fmt.Fprintf(out, "Total records: %d\n", total)
			fmt.Fprintf(out, "Database size: %d bytes\n", stats.DatabaseSizeBytes)
			if stats.LastCrawl != nil {
				fmt.Fprintf(out, "Last crawl: %s\n", stats.LastCrawl.Format("2006-01-02 15:04:05 MST"))
			}
			return nil
		},
	}
}

func (c *cli) newRecentCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recent <category>",
		Short: "Show the most recently discovered entries of a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.resolveApp()
			if err != nil {
				return err
			}
			cat, err := entryCategory(args[0])
			if err != nil {
				return err
			}
			entries, err := a.Processor.Entries(cmd.Context(), cat, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, rule)
			fmt.Fprintf(out, "Recent %s (showing %d of %d)\n", cat, len(entries), limit)
			fmt.Fprintln(out, rule)
			for i, e := range entries {
				b := e.Common()
				fmt.Fprintf(out, "\n%d. %s\n", i+1, b.Title)
				fmt.Fprintf(out, "   Portal: %s\n", b.PortalName)
				fmt.Fprintf(out, "   Organization: %s\n", orNA(b.Organization))
				fmt.Fprintf(out, "   Discovered: %s\n", b.DiscoveredAt.Format("2006-01-02 15:04:05"))
				fmt.Fprintf(out, "   URL: %s\n", b.URL)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of entries to show")
	return cmd
}

func (c *cli) newPortalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "portals",
		Short: "List the configured portals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.resolveApp()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, rule)
			fmt.Fprintln(out, "Configured Portals")
			fmt.Fprintln(out, rule)
			if len(a.Config.Portals) == 0 {
				fmt.Fprintln(out, "No portals configured.")
				return nil
			}
			for _, p := range a.Config.Portals {
				status := "disabled"
				if p.Enabled {
					status = "enabled"
				}
				var cats []string
				for _, cat := range model.EntryCategories {
					if _, ok := p.Category(cat); ok {
						cats = append(cats, string(cat))
					}
				}
				fmt.Fprintf(out, "\n%s\n", p.Name)
				fmt.Fprintf(out, "  Status: %s (%s)\n", status, p.FetchMode)
				fmt.Fprintf(out, "  URL: %s\n", p.BaseURL)
				if len(cats) > 0 {
					fmt.Fprintf(out, "  Categories: %s\n", strings.Join(cats, ", "))
				}
			}
			return nil
		},
	}
}

func (c *cli) newListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list <category>",
		Short: "List stored entries with their item numbers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.resolveApp()
			if err != nil {
				return err
			}
			cat, err := entryCategory(args[0])
			if err != nil {
				return err
			}
			entries, err := a.Processor.Entries(cmd.Context(), cat, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintf(out, "No %s found in database.\n", cat)
				return nil
			}
			fmt.Fprintln(out, rule)
			fmt.Fprintf(out, "Available %s (showing %d)\n", cat, len(entries))
			fmt.Fprintln(out, rule)
			for i, e := range entries {
				b := e.Common()
				fmt.Fprintf(out, "\n%d. %s\n", i+1, b.Title)
				fmt.Fprintf(out, "   Portal: %s\n", b.PortalName)
				fmt.Fprintf(out, "   URL: %s\n", b.URL)
				if d, ok := e.(model.Detailed); ok {
					fmt.Fprintf(out, "   Details crawled: %s\n", yesNo(d.HasDetails()))
				}
			}
			if cat != model.CategoryNotifications {
				fmt.Fprintf(out, "\nTo crawl details, use: crawl-details %s <number>\n", cat)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "number of entries to show (0 for all)")
	return cmd
}

func (c *cli) newViewDetailsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view-details <category> <item-number>",
		Short: "Show the detailed information stored for an entry",
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
			fmt.Fprintln(out, "Item Details")
			fmt.Fprintln(out, rule)
			fmt.Fprintf(out, "Title: %s\nURL: %s\nPortal: %s\n", b.Title, b.URL, b.PortalName)
			if !entry.HasDetails() {
				fmt.Fprintf(out, "\nNo details crawled yet. Use: crawl-details %s %s\n", cat, args[1])
				return nil
			}
			printDetails(out, entry.Details())
			return nil
		},
	}
}

// selectItem resolves a 1-based item number against the stored order of a
// detail-capable category.
func selectItem(ctx context.Context, a *app.App, rawCategory, rawNumber string) (model.Category, model.Detailed, error) {
	cat, err := entryCategory(rawCategory)
	if err != nil {
		return "", nil, err
	}
	if cat == model.CategoryNotifications {
		return "", nil, fmt.Errorf("category %s has no detail pages", cat)
	}
	n, err := strconv.Atoi(rawNumber)
	if err != nil {
		return "", nil, fmt.Errorf("invalid item number %q", rawNumber)
	}
	entries, err := a.Processor.Entries(ctx, cat, 0)
	if err != nil {
		return "", nil, err
	}
	if len(entries) == 0 {
		return "", nil, fmt.Errorf("no %s found in database", cat)
	}
	if n < 1 || n > len(entries) {
		return "", nil, fmt.Errorf("invalid item number: choose between 1 and %d", len(entries))
	}
	d, ok := entries[n-1].(model.Detailed)
	if !ok {
		return "", nil, fmt.Errorf("item %d of %s has no detail page", n, cat)
	}
	return cat, d, nil
}

func printDetails(w io.Writer, d *model.DetailedInfo) {
	fmt.Fprintf(w, "\nContent type: %s\n", d.ContentType)
	fmt.Fprintf(w, "Crawled at: %s\n", d.CrawledAt.Format("2006-01-02 15:04:05"))
	labeled := []struct{ label, text string }{
		{"Important Dates", d.ImportantDates},
		{"Eligibility", d.Eligibility},
		{"Application Fee", d.ApplicationFee},
		{"How to Apply", d.HowToApply},
	}
	for _, l := range labeled {
		if l.text != "" {
			fmt.Fprintf(w, "\n%s:\n%s\n", l.label, l.text)
		}
	}
	if len(d.KeyDetails) > 0 {
		fmt.Fprintln(w, "\nKey Details:")
		keys := make([]string, 0, len(d.KeyDetails))
		for k := range d.KeyDetails {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %s\n", k, d.KeyDetails[k])
		}
	}
	printLinks(w, "Result Links", d.ResultLinks)
	printLinks(w, "Download Links", d.DownloadLinks)
	printLinks(w, "Important Links", d.Links)
	fmt.Fprintf(w, "\nTables extracted: %d\n", len(d.Tables))
	fmt.Fprintf(w, "\nFull Description (%d characters):\n%s\n", len(d.FullDescription), d.FullDescription)
}

func printLinks(w io.Writer, label string, links []model.Link) {
	if len(links) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", label)
	for _, l := range links {
		fmt.Fprintf(w, "  - %s: %s\n", orNA(l.Text), l.URL)
	}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
