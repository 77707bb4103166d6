package commands

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/maltedev/vendor-scraper/internal/registry"
	"github.com/maltedev/vendor-scraper/internal/scraper"
	"github.com/maltedev/vendor-scraper/internal/vendors"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(vendorsCmd)
	rootCmd.AddCommand(testURLCmd)
}

// lookupRegistry is a registry for resolution only; its scrapers have no
// fetcher.
func lookupRegistry() *registry.Registry {
	reg := registry.New(scraper.Config{Logger: log}, log)
	vendors.RegisterAll(reg)
	return reg
}

var vendorsCmd = &cobra.Command{
	Use:   "vendors",
	Short: "Lists the supported vendors and their domains.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		t := newTable(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Key", "Name", "Domains"})
		for _, v := range lookupRegistry().ListVendors() {
			t.AppendRow(table.Row{v.Key, v.Name, strings.Join(v.Domains, "\n")})
			t.AppendSeparator()
		}
		t.Render()
	},
}

var testURLCmd = &cobra.Command{
	Use:   "test-url <url>",
	Short: "Reports which vendor scraper would handle a URL.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := lookupRegistry()
		out := cmd.OutOrStdout()

		if key, ok := reg.VendorKeyForURL(args[0]); ok {
			s, _ := reg.ResolveByVendorKey(key)
			fmt.Fprintf(out, "supported: %s (%s)\n", s.Vendor().Name, key)
			return nil
		}

		fmt.Fprintf(out, "unsupported: %s\n\nsupported domains:\n", args[0])
		for _, v := range reg.ListVendors() {
			for _, d := range v.Domains {
				fmt.Fprintf(out, "  %-24s %s\n", d, v.Key)
			}
		}
		return fmt.Errorf("no scraper for %s", args[0])
	},
}
