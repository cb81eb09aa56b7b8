package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/warp/ticket-ledger/generic"
	"github.com/warp/ticket-ledger/infra"
	"github.com/warp/ticket-ledger/store/sqlite"
	"github.com/warp/ticket-ledger/ticketsale"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Format string // "text" | "json"
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the ledger state rebuilt from the journal",
		Long: `Replay the journal under the parameters stored in the database and
print ownership, open offers, listings and balances. Nothing is written
to the journal.

Examples:
  server inspect --db ./tickets.db
  server inspect --db ./tickets.db --format json`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Format != "text" && opts.Format != "json" {
				return fmt.Errorf("invalid format %q: must be text or json", opts.Format)
			}
			ledger, lastSeq, err := replayDatabase(opts.RootOptions)
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeSnapshotJSON(cmd.OutOrStdout(), ledger.Snapshot(), lastSeq)
			}
			return writeSnapshotText(cmd.OutOrStdout(), ledger.Snapshot(), lastSeq)
		},
	}

	cmd.Flags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	return cmd
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Replay the journal and check every ledger invariant",
		Long: `Replay the journal under the stored parameters and check ownership and
marketplace invariants.

Exit codes:
  0 - Journal replays cleanly and every invariant holds
  1 - Replay failed, an invariant is violated, or the database is unreadable`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, lastSeq, err := replayDatabase(rootOpts)
			if err != nil {
				return err
			}
			if err := ledger.Verify(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: replayed through seq %d, %d tickets sold, invariants hold\n",
				lastSeq, ledger.SoldCount())
			return nil
		},
	}
}

// replayDatabase rebuilds the ledger from the configured database.
func replayDatabase(opts *RootOptions) (*ticketsale.TicketLedger, int64, error) {
	cfg, err := opts.load()
	if err != nil {
		return nil, 0, err
	}
	ctx := context.Background()

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, 0, err
	}
	defer store.Close()

	lc, err := infra.StoredLedgerConfig(ctx, store, cfg)
	if err != nil {
		return nil, 0, err
	}
	events, err := store.Events(ctx, 0)
	if err != nil {
		return nil, 0, err
	}
	ledger, err := ticketsale.Replay(lc, events)
	if err != nil {
		return nil, 0, err
	}

	var lastSeq int64
	if n := len(events); n > 0 {
		lastSeq = events[n-1].Seq
	}
	return ledger, lastSeq, nil
}

func writeSnapshotJSON(w io.Writer, snap ticketsale.Snapshot, lastSeq int64) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		LastSeq int64 `json:"last_seq"`
		ticketsale.Snapshot
	}{lastSeq, snap})
}

func writeSnapshotText(w io.Writer, snap ticketsale.Snapshot, lastSeq int64) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "tickets\t%d\n", snap.TotalTickets)
	fmt.Fprintf(tw, "price\t%s\n", snap.TicketPrice)
	fmt.Fprintf(tw, "fee\t%s\n", snap.Fee)
	fmt.Fprintf(tw, "sold\t%d\n", len(snap.Owners))
	fmt.Fprintf(tw, "manager balance\t%s\n", snap.ManagerBalance)
	fmt.Fprintf(tw, "last seq\t%d\n", lastSeq)

	fmt.Fprintln(tw, "\nSWAP OFFERS\t")
	for _, o := range snap.SwapOffers {
		fmt.Fprintf(tw, "  #%d\t%s\n", o.TicketID, o.Owner)
	}

	fmt.Fprintln(tw, "\nRESALE\t")
	for _, l := range snap.Resale {
		fmt.Fprintf(tw, "  #%d\t%s\t%s\n", l.TicketID, l.Seller, l.Price)
	}

	fmt.Fprintln(tw, "\nBALANCES\t")
	accounts := make([]string, 0, len(snap.Balances))
	for account := range snap.Balances {
		accounts = append(accounts, string(account))
	}
	sort.Strings(accounts)
	for _, account := range accounts {
		fmt.Fprintf(tw, "  %s\t%s\n", account, snap.Balances[generic.AccountID(account)])
	}

	return tw.Flush()
}
