package cli

import (
	"context"

	"github.com/amanthanvi/posvault/internal/app"
	"github.com/amanthanvi/posvault/internal/domain"
	"github.com/spf13/cobra"
)

func newSettingCommand(deps commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setting",
		Short: "Terminal system settings",
	}
	cmd.AddCommand(
		newSettingSetCommand(deps),
		newSettingGetCommand(deps),
		newSettingListCommand(deps),
		newSettingRemoveCommand(deps),
	)
	return cmd
}

func newSettingSetCommand(deps commandDeps) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:     "set <key> <value>",
		Short:   "Create or update a setting",
		Example: "  posvault setting set receipt.footer \"Thank you\" --description \"Receipt footer line\"",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				return usageErrorf("setting set requires a key and a value")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, deps, func(ctx context.Context, s *session) error {
				setting, err := app.NewSettingService(s.work).Set(ctx, args[0], args[1], description)
				if err != nil {
					return err
				}
				return printMessage(deps, setting, "%s=%s", setting.Key, setting.Value)
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "Setting description")
	return cmd
}

func newSettingGetCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print a setting value",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usageErrorf("setting get requires exactly one key")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, deps, func(ctx context.Context, s *session) error {
				setting, err := app.NewSettingService(s.work).Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printMessage(deps, setting, "%s", setting.Value)
			})
		},
	}
}

func newSettingListCommand(deps commandDeps) *cobra.Command {
	var prefix string

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("setting ls does not accept positional arguments")
			}
			return withSession(cmd, deps, func(ctx context.Context, s *session) error {
				settings, err := app.NewSettingService(s.work).List(ctx, prefix)
				if err != nil {
					return err
				}
				if settings == nil {
					settings = []domain.SystemSetting{}
				}
				rows := make([][]string, 0, len(settings))
				for _, st := range settings {
					rows = append(rows, []string{st.Key, st.Value, boolToState(st.ReadOnly, "ro", "rw"), st.Description})
				}
				return printListing(deps, settings, []string{"KEY", "VALUE", "MODE", "DESCRIPTION"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "Only list keys with this prefix")
	return cmd
}

func newSettingRemoveCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <key>",
		Short: "Remove a setting",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usageErrorf("setting rm requires exactly one key")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, deps, func(ctx context.Context, s *session) error {
				if err := app.NewSettingService(s.work).Delete(ctx, args[0]); err != nil {
					return err
				}
				return printMessage(deps, map[string]any{"removed": args[0]}, "removed setting %s", args[0])
			})
		},
	}
}
