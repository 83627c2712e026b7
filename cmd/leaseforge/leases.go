package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Strob0t/LeaseForge/internal/domain/lease"
	"github.com/Strob0t/LeaseForge/internal/service"
)

// leaseReader opens the store read-only for inspection commands.
type leaseReader struct {
	svc   *service.LeaseService
	close func()
}

func openReader(ctx context.Context, configPath string) (*leaseReader, error) {
	cfg, flush, err := setup(configPath)
	if err != nil {
		return nil, err
	}
	var cl cleanups
	cl.add(flush)
	store, err := openStore(ctx, cfg, false, false, &cl)
	if err != nil {
		cl.run()
		return nil, err
	}
	return &leaseReader{svc: service.NewLeaseService(store, nil), close: cl.run}, nil
}

// cliActor is the identity inspection commands read as.
var cliActor = lease.Actor{ID: "cli", Role: lease.RoleAdmin}

func newLeasesCmd(configPath *string) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "leases",
		Short: "Inspect lease records",
	}
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print JSON even on a terminal")

	var req service.ListRequest
	list := &cobra.Command{
		Use:   "list",
		Short: "List leases, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := openReader(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer r.close()

			leases, err := r.svc.List(cmd.Context(), cliActor, req)
			if err != nil {
				return err
			}
			if asJSON || !isTerminal(os.Stdout) {
				return writeJSON(os.Stdout, leases)
			}
			return writeLeaseTable(os.Stdout, leases)
		},
	}
	list.Flags().StringVar(&req.Role, "role", "", "landlord or tenant (requires --actor)")
	list.Flags().StringVar(&req.ActorID, "actor", "", "user id to list leases for")
	list.Flags().StringVar(&req.Status, "status", "", "only leases in this status")
	list.Flags().StringVar(&req.PropertyID, "property", "", "only leases of this property")
	list.Flags().IntVar(&req.Limit, "limit", service.DefaultListLimit, "page size")
	list.Flags().IntVar(&req.Offset, "offset", 0, "page offset")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one lease",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openReader(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer r.close()

			l, err := r.svc.Get(cmd.Context(), cliActor, args[0])
			if err != nil {
				return err
			}
			return writeJSON(os.Stdout, l)
		},
	}

	history := &cobra.Command{
		Use:   "history <id>",
		Short: "Print the status history of a lease",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openReader(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer r.close()

			entries, err := r.svc.History(cmd.Context(), cliActor, args[0])
			if err != nil {
				return err
			}
			if asJSON || !isTerminal(os.Stdout) {
				return writeJSON(os.Stdout, entries)
			}
			return writeHistoryTable(os.Stdout, entries)
		},
	}

	cmd.AddCommand(list, show, history)
	return cmd
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd())) //nolint:gosec // fd fits in int
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeLeaseTable(out io.Writer, leases []lease.Lease) error {
	if len(leases) == 0 {
		_, err := fmt.Fprintln(out, "No leases found.")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPROPERTY\tLANDLORD\tTENANT\tSTATUS\tEND\tRENT\tVERSION")
	for i := range leases {
		l := &leases[i]
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			l.ID, l.PropertyID, l.LandlordID, l.TenantID, l.Status, l.EndDate, l.RentAmount, l.Version)
	}
	return w.Flush()
}

func writeHistoryTable(out io.Writer, entries []lease.StatusChange) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CHANGED_AT\tSTATUS\tBY\tROLE\tREASON")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.ChangedAt.Format("2006-01-02 15:04:05"), e.Status, e.ChangedBy, e.ActorRole, e.Reason)
	}
	return w.Flush()
}
