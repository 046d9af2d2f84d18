package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"

	"orderdesk/internal/api"
	"orderdesk/internal/domain"
	"orderdesk/internal/order"
	"orderdesk/internal/orderform"
	"orderdesk/internal/store"
	"orderdesk/internal/templates"
)

func statusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the backend's gRPC health service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			status, err := api.CheckHealth(ctx, a.cfg.Backend.GRPCAddr)
			if err != nil {
				return err
			}
			style := okStyle
			if status != healthpb.HealthCheckResponse_SERVING {
				style = errStyle
			}
			fmt.Printf("%s %s\n", dimStyle.Render(a.cfg.Backend.GRPCAddr), style.Render(status.String()))
			return nil
		},
	}
}

func chainCmd(a *app) *cobra.Command {
	var expiration string
	cmd := &cobra.Command{
		Use:   "chain SYMBOL",
		Short: "List option expirations, or strikes for one expiration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol := strings.ToUpper(strings.TrimSpace(args[0]))
			if expiration == "" {
				exps, err := a.client.Expirations(cmd.Context(), symbol)
				if err != nil {
					return err
				}
				fmt.Println(symbolStyle.Render(symbol) + " expirations")
				for _, e := range exps {
					fmt.Println("  " + e)
				}
				return nil
			}

			strikes, err := a.client.Strikes(cmd.Context(), symbol, expiration)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s strikes\n", symbolStyle.Render(symbol), expiration)
			for i, s := range strikes {
				line := "  " + order.FormatPrice(s)
				if i == len(strikes)/2 {
					line += dimStyle.Render("  (default)")
				}
				fmt.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&expiration, "expiration", "e", "", "list strikes for this expiration")
	return cmd
}

func analyzeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze SYMBOL",
		Short: "Print the analysis object for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := a.client.Analyze(cmd.Context(), strings.ToUpper(strings.TrimSpace(args[0])))
			if err != nil {
				return err
			}
			out, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(snap.Data)
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

func templatesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage saved order templates",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List templates, most recently used first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tc := templates.NewClient(a.client, a.log)
			list, err := tc.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println(dimStyle.Render("no templates"))
				return nil
			}
			for _, t := range list {
				fmt.Println(formatTemplate(t))
			}
			return nil
		},
	}

	var draft domain.TemplateDraft
	var limit float64
	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Save a new template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			draft.Name = args[0]
			if cmd.Flags().Changed("limit") {
				draft.OrderType = domain.OrderTypeLimit
				draft.LimitPrice = &limit
			}
			t, err := templates.NewClient(a.client, a.log).Create(cmd.Context(), draft)
			if err != nil {
				return err
			}
			fmt.Println(okStyle.Render("created ") + formatTemplate(*t))
			return nil
		},
	}
	fs := create.Flags()
	fs.StringVar(&draft.Description, "description", "", "free-form description")
	fs.StringVarP(&draft.Symbol, "symbol", "s", "", "ticker symbol")
	fs.StringVar((*string)(&draft.Side), "side", "buy", "buy or sell")
	fs.IntVarP(&draft.Quantity, "qty", "q", 1, "quantity")
	fs.StringVar((*string)(&draft.OrderType), "type", "market", "market or limit")
	fs.Float64Var(&limit, "limit", 0, "limit price (implies --type limit)")

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := templates.NewClient(a.client, a.log).Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Println(okStyle.Render("deleted ") + args[0])
			return nil
		},
	}

	var yes bool
	apply := &cobra.Command{
		Use:   "apply ID",
		Short: "Load a template into the ticket and submit it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			list, err := templates.NewClient(a.client, a.log).List(cmd.Context())
			if err != nil {
				return err
			}
			for _, t := range list {
				if t.ID == id {
					fill := func(f *orderform.Form) error {
						f.ApplyTemplate(t)
						return nil
					}
					return runTicket(cmd.Context(), a, fill, yes, false)
				}
			}
			return fmt.Errorf("template %d not found", id)
		},
	}
	apply.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	cmd.AddCommand(list, create, del, apply)
	return cmd
}

func formatTemplate(t domain.OrderTemplate) string {
	s := fmt.Sprintf("%s %-16s %s %s x%d %s",
		dimStyle.Render(fmt.Sprintf("#%-4d", t.ID)), t.Name,
		strings.ToUpper(string(t.Side)), symbolStyle.Render(t.Symbol), t.Quantity, t.OrderType)
	if t.LimitPrice != nil {
		s += " @" + order.FormatPrice(*t.LimitPrice)
	}
	if t.LastUsedAt != nil {
		s += dimStyle.Render("  used " + t.LastUsedAt.Local().Format("2006-01-02 15:04"))
	}
	return s
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid template id %q", s)
	}
	return id, nil
}

// ---------------------------------------------------------------------------
// History
// ---------------------------------------------------------------------------

func historyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and archive the local order history",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent orders, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := a.history()
			if err != nil {
				return err
			}
			defer h.Close()
			entries, err := h.ListHistory(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, e := range entries {
				style := okStyle
				if e.Status == domain.OrderStatusCancelled {
					style = errStyle
				}
				fmt.Printf("%s %-9s %s %s\n",
					dimStyle.Render(e.CreatedAt.Local().Format("2006-01-02 15:04:05")),
					style.Render(string(e.Status)),
					order.ConfirmMessage(e.Intent),
					dimStyle.Render(e.CorrelationID),
				)
			}
			return nil
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")

	var olderThan time.Duration
	archive := &cobra.Command{
		Use:   "archive",
		Short: "Move old entries into daily parquet files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := a.history()
			if err != nil {
				return err
			}
			defer h.Close()
			ar := store.NewHistoryArchive(a.cfg.Storage.ArchiveDir)
			n, err := ar.Archive(cmd.Context(), h, time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Printf("%s %d entries to %s\n", okStyle.Render("archived"), n, a.cfg.Storage.ArchiveDir)
			return nil
		},
	}
	archive.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "archive entries older than this")

	cmd.AddCommand(list, archive)
	return cmd
}
