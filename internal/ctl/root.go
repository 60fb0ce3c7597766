// Package ctl implements ledgerctl, a command-line client for the ledger
// HTTP API.
package ctl

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"ledger/internal/core"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Server string
	Format string // "json" | "text"

	client *Client
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the ledgerctl root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Record expenses and read live views from a ledger server",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.client == nil {
				opts.client = NewClient(opts.Server, nil)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	server := os.Getenv("LEDGER_SERVER")
	if server == "" {
		server = "http://localhost:8081"
	}
	cmd.PersistentFlags().StringVar(&opts.Server, "server", server, "ledger server base URL")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newAddCommand(opts))
	cmd.AddCommand(newDeleteCommand(opts))
	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newReportCommand(opts))
	cmd.AddCommand(newTodayCommand(opts))

	return cmd
}

type addOptions struct {
	*RootOptions
	Title    string
	Amount   string
	Category string
	Notes    string
	At       string
}

func newAddCommand(root *RootOptions) *cobra.Command {
	opts := &addOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a record",
		Long: `Add a record to the ledger.

The server rejects a record matching one added in the last two minutes.

Example:
  ledgerctl add --title Coffee --amount 2.50 --category food`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := AddRequest{Title: opts.Title, Amount: opts.Amount, Category: opts.Category, Notes: opts.Notes}
			if opts.At != "" {
				at, err := time.Parse(time.RFC3339, opts.At)
				if err != nil {
					return fmt.Errorf("invalid --at %q: want RFC 3339", opts.At)
				}
				req.Timestamp = &at
			}
			rec, err := opts.client.Add(cmd.Context(), req)
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), rec, func(w io.Writer) {
				fmt.Fprintf(w, "added #%d %s %s (%s)\n", rec.ID, rec.Title, rec.Amount, rec.Category)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Title, "title", "", "record title")
	cmd.Flags().StringVar(&opts.Amount, "amount", "", "amount, e.g. 12.50")
	cmd.Flags().StringVar(&opts.Category, "category", "", "one of "+categoryNames())
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "optional notes")
	cmd.Flags().StringVar(&opts.At, "at", "", "timestamp in RFC 3339 (default now)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("category")

	return cmd
}

func newDeleteCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid record id %q", args[0])
			}
			if err := root.client.Delete(cmd.Context(), id); err != nil {
				return err
			}
			return root.print(cmd.OutOrStdout(), map[string]int64{"deleted": id}, func(w io.Writer) {
				fmt.Fprintf(w, "deleted #%d\n", id)
			})
		},
	}
}

type listOptions struct {
	*RootOptions
	Day      string
	Search   string
	Grouping string
}

func newListCommand(root *RootOptions) *cobra.Command {
	opts := &listOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show one day's records, filtered and grouped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := opts.client.List(cmd.Context(), opts.Day, opts.Search, opts.Grouping)
			if err != nil {
				return err
			}
			totals, err := opts.client.Totals(cmd.Context(), opts.Day, opts.Search)
			if err != nil {
				return err
			}
			out := struct {
				View   core.ListView `json:"view"`
				Totals core.Totals   `json:"totals"`
			}{view, totals}
			return opts.print(cmd.OutOrStdout(), out, func(w io.Writer) {
				writeListView(w, view, totals)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Day, "day", "", "day as YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&opts.Search, "search", "", "case-insensitive title filter")
	cmd.Flags().StringVar(&opts.Grouping, "grouping", "", "time or category")

	return cmd
}

func newReportCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Show spending for the seven days ending today",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := root.client.Report(cmd.Context())
			if err != nil {
				return err
			}
			return root.print(cmd.OutOrStdout(), r, func(w io.Writer) {
				writeReport(w, r)
			})
		},
	}
}

func newTodayCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "today",
		Short: "Show today's total",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := root.client.Today(cmd.Context())
			if err != nil {
				return err
			}
			return root.print(cmd.OutOrStdout(), t, func(w io.Writer) {
				fmt.Fprintf(w, "today: %s across %d records\n", t.Total, t.Count)
			})
		},
	}
}

// print writes v as JSON or calls text, depending on --format.
func (o *RootOptions) print(w io.Writer, v any, text func(io.Writer)) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func writeListView(w io.Writer, v core.ListView, t core.Totals) {
	fmt.Fprintf(w, "%s", v.Day)
	if v.Search != "" {
		fmt.Fprintf(w, " matching %q", v.Search)
	}
	fmt.Fprintf(w, ": %s across %d records\n", t.Total, t.Count)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, g := range v.Groups {
		fmt.Fprintf(tw, "\n%s\n", g.Key)
		for _, r := range g.Records {
			fmt.Fprintf(tw, "  #%d\t%s\t%s\t%s\t%s\n", r.ID, r.Timestamp.Format("15:04"), r.Title, r.Category, r.Amount)
		}
	}
	_ = tw.Flush()
}

func writeReport(w io.Writer, r core.Report) {
	fmt.Fprintf(w, "%s to %s: %s\n\n", r.From, r.To, r.Total)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, d := range r.Days {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Date, d.Label, d.Total)
	}
	if len(r.Categories) > 0 {
		fmt.Fprintln(tw)
		for _, c := range r.Categories {
			fmt.Fprintf(tw, "%s\t%s\n", c.Category, c.Total)
		}
	}
	_ = tw.Flush()
}

func categoryNames() string {
	var names []string
	for _, c := range core.Categories() {
		names = append(names, strings.ToLower(c.String()))
	}
	return strings.Join(names, ", ")
}
