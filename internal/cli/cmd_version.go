package cli

import (
	"fmt"
	"runtime"

	"github.com/amanthanvi/posvault/internal/kvstore"
	"github.com/spf13/cobra"
)

type versionInfo struct {
	BuildInfo
	GoVersion     string   `json:"go_version"`
	SchemaVersion int      `json:"schema_version"`
	Backends      []string `json:"backends"`
}

func newVersionCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build and store schema versions",
		Example: "  posvault version\n" +
			"  posvault --json version",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("version does not accept positional arguments")
			}
			info := versionInfo{
				BuildInfo:     deps.build,
				GoVersion:     runtime.Version(),
				SchemaVersion: kvstore.CurrentSchemaVersion(),
				Backends:      kvstore.Backends,
			}
			if deps.globals.JSON {
				return mapCommandError(printJSON(deps.out, info))
			}
			_, err := fmt.Fprintf(
				deps.out,
				"version=%s commit=%s build_time=%s go=%s schema=%d\n",
				info.Version,
				info.Commit,
				info.BuildTime,
				info.GoVersion,
				info.SchemaVersion,
			)
			return mapCommandError(err)
		},
	}
}
