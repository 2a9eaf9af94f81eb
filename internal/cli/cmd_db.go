package cli

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/amanthanvi/posvault/internal/app"
	"github.com/amanthanvi/posvault/internal/domain"
	"github.com/spf13/cobra"
)

// databaseView is the printable form of a profile; the password never
// leaves the store through the CLI.
type databaseView struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Server             string    `json:"server"`
	Port               int       `json:"port,omitempty"`
	Database           string    `json:"database"`
	Username           string    `json:"username,omitempty"`
	IntegratedSecurity bool      `json:"integrated_security"`
	HasPassword        bool      `json:"has_password"`
	TimeoutSeconds     int       `json:"timeout_seconds,omitempty"`
	IsDefault          bool      `json:"is_default"`
	Connection         string    `json:"connection"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func toDatabaseView(p domain.DatabaseProfile) databaseView {
	return databaseView{
		ID:                 p.ProfileID.String(),
		Name:               p.Name,
		Server:             p.Server,
		Port:               p.Port,
		Database:           p.Database,
		Username:           p.Username,
		IntegratedSecurity: p.IntegratedSecurity,
		HasPassword:        p.Password != "",
		TimeoutSeconds:     p.TimeoutSeconds,
		IsDefault:          p.IsDefault,
		Connection:         p.ConnectionString(false),
		UpdatedAt:          p.UpdatedAt,
	}
}

func newDatabaseCommand(deps commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "db",
		Short:   "Database connection profiles",
		Aliases: []string{"database"},
	}
	cmd.AddCommand(
		newDatabaseAddCommand(deps),
		newDatabaseListCommand(deps),
		newDatabaseShowCommand(deps),
		newDatabaseRemoveCommand(deps),
		newDatabaseDefaultCommand(deps),
	)
	return cmd
}

func newDatabaseAddCommand(deps commandDeps) *cobra.Command {
	var (
		req         app.CreateDatabaseRequest
		passwordEnv string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a database profile",
		Example: "  posvault db add --name main --server sql01 --database pos --user pos_app --password-env POS_DB_PASSWORD\n" +
			"  posvault db add --name local --server localhost --database pos --integrated-security --default",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("db add does not accept positional arguments")
			}
			if strings.TrimSpace(req.Name) == "" {
				return usageErrorf("db add requires --name")
			}
			if req.Port < 0 || req.Port > 65535 {
				return usageErrorf("db add --port must be between 1 and 65535")
			}
			if passwordEnv != "" {
				value, ok := os.LookupEnv(passwordEnv)
				if !ok {
					return usageErrorf("db add: environment variable %s is not set", passwordEnv)
				}
				req.Password = value
			}

			return withSession(cmd, deps, func(ctx context.Context, s *session) error {
				profile, err := app.NewDatabaseService(s.work).Create(ctx, req)
				if err != nil {
					return err
				}
				return printDatabase(deps, profile)
			})
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "Profile name")
	cmd.Flags().StringVar(&req.Server, "server", "", "Database server host or instance")
	cmd.Flags().IntVar(&req.Port, "port", 0, "Server port (driver default when unset)")
	cmd.Flags().StringVar(&req.Database, "database", "", "Database name")
	cmd.Flags().StringVar(&req.Username, "user", "", "Login name")
	cmd.Flags().StringVar(&passwordEnv, "password-env", "", "Read the login password from this environment variable")
	cmd.Flags().BoolVar(&req.IntegratedSecurity, "integrated-security", false, "Use integrated authentication")
	cmd.Flags().IntVar(&req.TimeoutSeconds, "timeout-seconds", 0, "Connection timeout in seconds")
	cmd.Flags().BoolVar(&req.MakeDefault, "default", false, "Make this the default profile")
	return cmd
}

func newDatabaseListCommand(deps commandDeps) *cobra.Command {
	var req app.ListRequest

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List database profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("db ls does not accept positional arguments")
			}
			if req.Page < 0 || req.PageSize < 0 {
				return usageErrorf("db ls --page and --page-size must not be negative")
			}
			return withSession(cmd, deps, func(ctx context.Context, s *session) error {
				result, err := app.NewDatabaseService(s.work).List(ctx, req)
				if err != nil {
					return err
				}
				views := make([]databaseView, 0, len(result.Items))
				rows := make([][]string, 0, len(result.Items))
				for _, p := range result.Items {
					views = append(views, toDatabaseView(p))
					rows = append(rows, []string{
						p.Name,
						p.Server,
						p.Database,
						authLabel(p),
						boolToState(p.IsDefault, "*", ""),
					})
				}
				payload := app.ListResult[databaseView]{
					Items:      views,
					TotalCount: result.TotalCount,
					Page:       result.Page,
					TotalPages: result.TotalPages,
				}
				return printListing(deps, payload, []string{"NAME", "SERVER", "DATABASE", "AUTH", "DEFAULT"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&req.Search, "search", "", "Case-insensitive search on name/server/database")
	cmd.Flags().IntVar(&req.Page, "page", 1, "Page number (1-based)")
	cmd.Flags().IntVar(&req.PageSize, "page-size", 0, "Profiles per page (0 lists all)")
	return cmd
}

func newDatabaseShowCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a database profile",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usageErrorf("db show requires exactly one profile name")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, deps, func(ctx context.Context, s *session) error {
				profile, err := app.NewDatabaseService(s.work).Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printDatabase(deps, profile)
			})
		},
	}
}

func newDatabaseRemoveCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <name>",
		Short: "Remove a database profile",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usageErrorf("db rm requires exactly one profile name")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, deps, func(ctx context.Context, s *session) error {
				if err := app.NewDatabaseService(s.work).Delete(ctx, args[0]); err != nil {
					return err
				}
				return printMessage(deps, map[string]any{"removed": args[0]}, "removed database profile %s", args[0])
			})
		},
	}
}

func newDatabaseDefaultCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "default <name>",
		Short: "Make a database profile the default",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usageErrorf("db default requires exactly one profile name")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, deps, func(ctx context.Context, s *session) error {
				profile, err := app.NewDatabaseService(s.work).SetDefault(ctx, args[0])
				if err != nil {
					return err
				}
				return printDatabase(deps, profile)
			})
		},
	}
}

func printDatabase(deps commandDeps, p domain.DatabaseProfile) error {
	view := toDatabaseView(p)
	if deps.globals.JSON {
		return printJSON(deps.out, view)
	}
	if deps.globals.Quiet {
		return nil
	}
	port := ""
	if p.Port > 0 {
		port = strconv.Itoa(p.Port)
	}
	return renderTable(deps.out, deps.globals.NoColor, []string{"FIELD", "VALUE"}, [][]string{
		{"name", view.Name},
		{"id", view.ID},
		{"server", view.Server},
		{"port", port},
		{"database", view.Database},
		{"auth", authLabel(p)},
		{"default", boolToState(view.IsDefault, "yes", "no")},
		{"connection", view.Connection},
	})
}

func authLabel(p domain.DatabaseProfile) string {
	if p.IntegratedSecurity {
		return "integrated"
	}
	return "login:" + p.Username
}
