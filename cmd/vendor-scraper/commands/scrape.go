package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/maltedev/vendor-scraper/internal/batch"
	"github.com/maltedev/vendor-scraper/internal/scraper"
	"github.com/maltedev/vendor-scraper/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var errNothingScraped = errors.New("no product was scraped successfully")

type scrapeFlags struct {
	file        string
	vendor      string
	format      string
	output      string
	sink        string
	delay       time.Duration
	timeout     time.Duration
	retries     int
	concurrency int
	noExport    bool
}

var scrapeOpts scrapeFlags

func init() {
	f := scrapeCmd.Flags()
	f.StringVarP(&scrapeOpts.file, "file", "f", "", "Read URLs from a file, one per line; # starts a comment.")
	f.StringVar(&scrapeOpts.vendor, "vendor", "", "Force a vendor key instead of resolving by domain.")
	f.StringVar(&scrapeOpts.format, "format", "", "Export format: xlsx, csv, inventory, json or bom (default EXPORT_FORMAT).")
	f.StringVarP(&scrapeOpts.output, "output", "o", "", "Export file path (default EXPORT_DIR with a timestamped name).")
	f.StringVar(&scrapeOpts.sink, "sink", service.SinkFile, "Export destination: file or redis.")
	f.DurationVar(&scrapeOpts.delay, "delay", 0, "Minimum delay between requests to the same vendor.")
	f.DurationVar(&scrapeOpts.timeout, "timeout", 0, "Per-request timeout.")
	f.IntVar(&scrapeOpts.retries, "retries", 0, "Maximum attempts per URL, including the first.")
	f.IntVar(&scrapeOpts.concurrency, "concurrency", 0, "Number of URLs scraped at once (default SCRAPER_CONCURRENCY).")
	f.BoolVar(&scrapeOpts.noExport, "no-export", false, "Print the results without exporting them.")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [urls...] [--file <urls.txt>] [--format xlsx|csv|inventory|json|bom] [--output <path>]",
	Short: "Scrapes vendor product pages and exports the successful records.",
	RunE: func(cmd *cobra.Command, args []string) error {
		urls := args
		if scrapeOpts.file != "" {
			fromFile, err := readURLFile(scrapeOpts.file)
			if err != nil {
				return err
			}
			urls = append(urls, fromFile...)
		}

		overrides, err := policyOverrides(cmd.Flags(), scrapeOpts)
		if err != nil {
			return err
		}

		filename := ""
		if scrapeOpts.output != "" {
			cfg.Export.Dir = filepath.Dir(scrapeOpts.output)
			filename = filepath.Base(scrapeOpts.output)
		}

		svc, err := service.Build(cmd.Context(), cfg, prometheus.NewRegistry(), log)
		if err != nil {
			return err
		}
		defer svc.Close()

		req := service.ScrapeRequest{
			URLs:        urls,
			Vendor:      scrapeOpts.vendor,
			Overrides:   overrides,
			Concurrency: scrapeOpts.concurrency,
		}

		out := cmd.OutOrStdout()

		if scrapeOpts.noExport {
			result, err := svc.Scrape(cmd.Context(), req)
			if err != nil {
				return err
			}
			printOutcomes(out, result)
			if result.Succeeded == 0 {
				return errNothingScraped
			}
			return nil
		}

		exported, err := svc.ScrapeAndExport(cmd.Context(), service.ExportRequest{
			ScrapeRequest: req,
			Format:        scrapeOpts.format,
			Filename:      filename,
			Sink:          scrapeOpts.sink,
		})
		if exported != nil {
			printOutcomes(out, exported.Batch)
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "\nexported %d product(s) as %s to %s\n", exported.Exported, exported.Format, exported.Destination)
		if exported.Batch.Succeeded == 0 {
			return errNothingScraped
		}
		return nil
	},
}

// policyOverrides collects the policy flags the user actually set.
func policyOverrides(flags *pflag.FlagSet, opts scrapeFlags) (scraper.Overrides, error) {
	var o scraper.Overrides
	if flags.Changed("delay") {
		if opts.delay < 0 {
			return o, errors.New("--delay must not be negative")
		}
		o.RequestDelay = &opts.delay
	}
	if flags.Changed("timeout") {
		if opts.timeout <= 0 {
			return o, errors.New("--timeout must be positive")
		}
		o.Timeout = &opts.timeout
	}
	if flags.Changed("retries") {
		if opts.retries < 1 {
			return o, errors.New("--retries must be at least 1")
		}
		o.MaxAttempts = &opts.retries
	}
	return o, nil
}

func readURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open url file: %w", err)
	}
	defer f.Close()
	return readURLs(f)
}

// readURLs returns every line of r; blank and comment lines are dropped
// later by the service.
func readURLs(r io.Reader) ([]string, error) {
	var urls []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		urls = append(urls, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read urls: %w", err)
	}
	return urls, nil
}

func printOutcomes(w io.Writer, result *batch.Result) {
	t := newTable(w)
	t.Style().Format.Footer = text.FormatDefault
	t.AppendHeader(table.Row{"#", "Vendor", "Status", "Part / Error", "Unit price", "URL"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, WidthMax: 48},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, WidthMax: 60},
	})

	for i, o := range result.Outcomes {
		detail, price := "", ""
		switch {
		case o.Product != nil:
			detail = o.Product.VendorPartNumber
			if p := o.Product.Pricing.EffectiveUnitPrice(); p.Valid {
				price = p.Decimal.String() + " " + o.Product.Pricing.Currency
			}
		case o.Error != nil:
			detail = o.Error.Code + ": " + o.Error.Message
		}
		t.AppendRow(table.Row{i + 1, o.Vendor, o.Status, detail, price, o.URL})
	}

	t.AppendFooter(table.Row{"", "", "", fmt.Sprintf("%d ok, %d failed", result.Succeeded, result.Failed), "", result.Duration.Round(time.Millisecond)})
	t.Render()
}
