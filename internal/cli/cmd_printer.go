package cli

import (
	"context"
	"strconv"
	"strings"

	"github.com/amanthanvi/posvault/internal/app"
	"github.com/amanthanvi/posvault/internal/domain"
	"github.com/spf13/cobra"
)

func newPrinterCommand(deps commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "printer",
		Short: "Receipt, kitchen and label printer profiles",
	}
	cmd.AddCommand(
		newPrinterAddCommand(deps),
		newPrinterListCommand(deps),
		newPrinterShowCommand(deps),
		newPrinterRemoveCommand(deps),
		newPrinterToggleCommand(deps, "enable", true),
		newPrinterToggleCommand(deps, "disable", false),
	)
	return cmd
}

func newPrinterAddCommand(deps commandDeps) *cobra.Command {
	var req app.CreatePrinterRequest

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a printer profile",
		Example: "  posvault printer add --name front --kind receipt --connection usb\n" +
			"  posvault printer add --name grill --kind kitchen --connection network --address 10.0.0.40 --port 9100",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("printer add does not accept positional arguments")
			}
			if strings.TrimSpace(req.Name) == "" {
				return usageErrorf("printer add requires --name")
			}
			return withSession(cmd, deps, func(ctx context.Context, s *session) error {
				printer, err := app.NewPrinterService(s.work).Create(ctx, req)
				if err != nil {
					return err
				}
				return printPrinter(deps, printer)
			})
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "Printer name")
	cmd.Flags().StringVar(&req.Kind, "kind", domain.PrinterReceipt, "Printer kind (receipt, kitchen, label)")
	cmd.Flags().StringVar(&req.Connection, "connection", domain.ConnectionUSB, "Connection (usb, network, serial)")
	cmd.Flags().StringVar(&req.Address, "address", "", "Network host or serial device")
	cmd.Flags().IntVar(&req.Port, "port", 0, "Network port")
	cmd.Flags().IntVar(&req.PaperWidthMM, "paper-width", 0, "Paper width in millimetres (58 or 80)")
	cmd.Flags().BoolVar(&req.Disabled, "disabled", false, "Create the printer disabled")
	return cmd
}

func newPrinterListCommand(deps commandDeps) *cobra.Command {
	var (
		kind string
		req  app.ListRequest
	)

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List printer profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("printer ls does not accept positional arguments")
			}
			if req.Page < 0 || req.PageSize < 0 {
				return usageErrorf("printer ls --page and --page-size must not be negative")
			}
			return withSession(cmd, deps, func(ctx context.Context, s *session) error {
				result, err := app.NewPrinterService(s.work).List(ctx, kind, req)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(result.Items))
				for _, p := range result.Items {
					rows = append(rows, []string{
						p.Name,
						p.Kind,
						printerTarget(p),
						strconv.Itoa(p.PaperWidthMM) + "mm",
						boolToState(p.Enabled, "enabled", "disabled"),
					})
				}
				return printListing(deps, result, []string{"NAME", "KIND", "TARGET", "PAPER", "STATE"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Only list printers of this kind")
	cmd.Flags().StringVar(&req.Search, "search", "", "Case-insensitive search on name/address")
	cmd.Flags().IntVar(&req.Page, "page", 1, "Page number (1-based)")
	cmd.Flags().IntVar(&req.PageSize, "page-size", 0, "Printers per page (0 lists all)")
	return cmd
}

func newPrinterShowCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a printer profile",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usageErrorf("printer show requires exactly one printer name")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, deps, func(ctx context.Context, s *session) error {
				printer, err := app.NewPrinterService(s.work).Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printPrinter(deps, printer)
			})
		},
	}
}

func newPrinterRemoveCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <name>",
		Short: "Remove a printer profile",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usageErrorf("printer rm requires exactly one printer name")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, deps, func(ctx context.Context, s *session) error {
				if err := app.NewPrinterService(s.work).Delete(ctx, args[0]); err != nil {
					return err
				}
				return printMessage(deps, map[string]any{"removed": args[0]}, "removed printer %s", args[0])
			})
		},
	}
}

func newPrinterToggleCommand(deps commandDeps, verb string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <name>",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " a printer",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usageErrorf("printer %s requires exactly one printer name", verb)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, deps, func(ctx context.Context, s *session) error {
				printer, err := app.NewPrinterService(s.work).SetEnabled(ctx, args[0], enabled)
				if err != nil {
					return err
				}
				return printPrinter(deps, printer)
			})
		},
	}
}

func printPrinter(deps commandDeps, p domain.PrinterProfile) error {
	if deps.globals.JSON {
		return printJSON(deps.out, p)
	}
	if deps.globals.Quiet {
		return nil
	}
	return renderTable(deps.out, deps.globals.NoColor, []string{"FIELD", "VALUE"}, [][]string{
		{"name", p.Name},
		{"id", p.ProfileID.String()},
		{"kind", p.Kind},
		{"connection", p.Connection},
		{"target", printerTarget(p)},
		{"paper", strconv.Itoa(p.PaperWidthMM) + "mm"},
		{"state", boolToState(p.Enabled, "enabled", "disabled")},
	})
}

func printerTarget(p domain.PrinterProfile) string {
	switch {
	case p.Address == "":
		return p.Connection
	case p.Port > 0:
		return p.Connection + "://" + p.Address + ":" + strconv.Itoa(p.Port)
	default:
		return p.Connection + "://" + p.Address
	}
}
