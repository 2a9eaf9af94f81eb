package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/amanthanvi/posvault/internal/app"
	"github.com/spf13/cobra"
)

func newExportCommand(deps commandDeps) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every subtree, still encrypted, to a JSON bundle",
		Example: "  posvault export --output ./terminal-01.json\n" +
			"  posvault export --output - > terminal-01.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("export does not accept positional arguments")
			}
			if strings.TrimSpace(outputPath) == "" {
				return usageErrorf("export requires --output")
			}
			return withSession(cmd, deps, func(ctx context.Context, s *session) error {
				bundle, err := app.NewTransferService(s.work, s.store, s.codec).Export(ctx)
				if err != nil {
					return err
				}
				if outputPath == "-" {
					return app.WriteBundle(deps.out, bundle)
				}

				flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
				if deps.globals.Yes {
					flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
				}
				if err := deps.fs.MkdirAll(filepath.Dir(outputPath), 0o700); err != nil {
					return fmt.Errorf("export: create output dir: %w", err)
				}
				f, err := deps.fs.OpenFile(outputPath, flags, 0o600)
				if err != nil {
					if os.IsExist(err) {
						return usageErrorf("export target already exists: %s (use --yes to overwrite)", outputPath)
					}
					return fmt.Errorf("export: %w", err)
				}
				if err := app.WriteBundle(f, bundle); err != nil {
					_ = f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return fmt.Errorf("export: close %s: %w", outputPath, err)
				}

				records := 0
				for _, snap := range bundle.Subtrees {
					records += snap.Len()
				}
				return printMessage(deps,
					map[string]any{"output": outputPath, "records": records},
					"exported %d records to %s", records, outputPath,
				)
			})
		},
	}
	cmd.Flags().StringVar(&outputPath, "output", "", "Bundle path, or - for stdout")
	return cmd
}

func newImportCommand(deps commandDeps) *cobra.Command {
	var inputPath string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the stored subtrees with the contents of an export bundle",
		Long: "Import verifies every record in the bundle against the local master key\n" +
			"and then replaces each subtree it carries inside one transaction.",
		Example: "  posvault import --input ./terminal-01.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("import does not accept positional arguments")
			}
			if strings.TrimSpace(inputPath) == "" {
				return usageErrorf("import requires --input")
			}

			var in io.Reader = cmd.InOrStdin()
			if inputPath != "-" {
				f, err := deps.fs.Open(inputPath)
				if err != nil {
					return mapCommandError(fmt.Errorf("import: %w", err))
				}
				defer f.Close()
				in = f
			}
			bundle, err := app.ReadBundle(in)
			if err != nil {
				return mapCommandError(err)
			}

			return withSession(cmd, deps, func(ctx context.Context, s *session) error {
				summary, err := app.NewTransferService(s.work, s.store, s.codec).Import(ctx, bundle)
				if err != nil {
					return err
				}
				return printMessage(deps, summary,
					"imported %d records (%s)", summary.Records, strings.Join(summary.Types, ", "),
				)
			})
		},
	}
	cmd.Flags().StringVar(&inputPath, "input", "", "Bundle path, or - for stdin")
	return cmd
}
