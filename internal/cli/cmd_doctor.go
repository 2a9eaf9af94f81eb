package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/amanthanvi/posvault/internal/app"
	debugpkg "github.com/amanthanvi/posvault/internal/debug"
	"github.com/spf13/cobra"
)

func newDoctorCommand(deps commandDeps) *cobra.Command {
	var (
		bundlePath   string
		purgeCorrupt bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check store access and record integrity",
		Example: "  posvault doctor\n" +
			"  posvault doctor --bundle ./posvault-debug.json\n" +
			"  posvault doctor --purge-corrupt --yes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("doctor does not accept positional arguments")
			}
			if purgeCorrupt && !deps.globals.Yes {
				return usageErrorf("--purge-corrupt deletes records; confirm with --yes")
			}

			bundle := debugpkg.NewBundle()
			bundle.Version = map[string]any{
				"version":    deps.build.Version,
				"commit":     deps.build.Commit,
				"build_time": deps.build.BuildTime,
			}

			cfg, report, cfgErr := loadConfig(deps)
			if cfgErr != nil {
				bundle.Checks = append(bundle.Checks, debugpkg.Check{Name: "config", OK: false, Message: cfgErr.Error()})
			} else {
				bundle.Checks = append(bundle.Checks, debugpkg.Check{Name: "config", OK: true, Message: report.ConfigPath})
				bundle.Config = map[string]any{
					"config_path":      report.ConfigPath,
					"policy_overrides": report.PolicyOverrides,
					"backend":          cfg.Store.Backend,
					"store_path":       cfg.Store.Path,
					"base_path":        cfg.Store.BasePath,
					"subtrees":         cfg.Subtrees,
					"key_mode":         cfg.Keys.Mode,
					"log_level":        cfg.Logging.Level,
				}

				sessionErr := withSession(cmd, deps, func(ctx context.Context, s *session) error {
					bundle.Checks = append(bundle.Checks, debugpkg.Check{
						Name:    "store",
						OK:      true,
						Message: fmt.Sprintf("%s %s", s.cfg.Store.Backend, s.cfg.Store.Path),
					})
					doctor := app.NewDoctorService(s.work, s.store)
					if purgeCorrupt {
						removed, err := doctor.PurgeCorrupt(ctx)
						if err != nil {
							return err
						}
						bundle.Checks = append(bundle.Checks, debugpkg.Check{
							Name:    "purge",
							OK:      true,
							Message: fmt.Sprintf("removed %d undecodable records", removed),
						})
					}
					bundle.Checks = append(bundle.Checks, doctor.Run(ctx)...)
					for _, status := range s.work.Status() {
						bundle.Repositories = append(bundle.Repositories, debugpkg.RepoStatus{
							Type:          status.TypeTag,
							Root:          status.Root,
							InTransaction: status.InTransaction,
							Skipped:       status.Skipped,
						})
					}
					return nil
				})
				if sessionErr != nil {
					bundle.Checks = append(bundle.Checks, debugpkg.Check{Name: "session", OK: false, Message: sessionErr.Error()})
				}
			}

			if strings.TrimSpace(bundlePath) != "" {
				if err := debugpkg.WriteBundle(deps.fs, bundlePath, bundle); err != nil {
					return mapCommandError(err)
				}
				bundle.Notes = append(bundle.Notes, "bundle written: "+bundlePath)
			}

			if deps.globals.JSON {
				if err := printJSON(deps.out, bundle); err != nil {
					return mapCommandError(err)
				}
			} else if !deps.globals.Quiet {
				rows := make([][]string, 0, len(bundle.Checks))
				for _, check := range bundle.Checks {
					rows = append(rows, []string{check.Name, boolToState(check.OK, "ok", "fail"), check.Message})
				}
				if err := renderTable(deps.out, deps.globals.NoColor, []string{"CHECK", "STATE", "DETAIL"}, rows); err != nil {
					return mapCommandError(err)
				}
				for _, note := range bundle.Notes {
					if _, err := fmt.Fprintln(deps.out, note); err != nil {
						return mapCommandError(err)
					}
				}
			}

			if bundle.Failed() {
				return asExitError(ExitCodeGeneric, fmt.Errorf("doctor: one or more checks failed"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&bundlePath, "bundle", "", "Also write a diagnostics bundle to this path")
	cmd.Flags().BoolVar(&purgeCorrupt, "purge-corrupt", false, "Delete records that cannot be decoded (requires --yes)")
	return cmd
}
