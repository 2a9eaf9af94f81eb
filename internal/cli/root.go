package cli

import (
	"io"
	"time"

	"github.com/awnumar/memguard"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

type GlobalOptions struct {
	JSON            bool
	Quiet           bool
	NoColor         bool
	Yes             bool
	PassphraseStdin bool
	Timeout         time.Duration
	ConfigPath      string
	PolicyPath      string
	StoreBackend    string
	StorePath       string
	KeyFile         string
	Actor           string

	passphrase []byte
}

func (g *GlobalOptions) forgetPassphrase() {
	if g == nil || g.passphrase == nil {
		return
	}
	memguard.WipeBytes(g.passphrase)
	g.passphrase = nil
}

type commandDeps struct {
	out     io.Writer
	build   BuildInfo
	globals *GlobalOptions
	fs      afero.Fs
}

func NewRootCommand(out io.Writer, build BuildInfo) *cobra.Command {
	globals := &GlobalOptions{}
	deps := commandDeps{
		out:     out,
		build:   build,
		globals: globals,
		fs:      afero.NewOsFs(),
	}

	cmd := &cobra.Command{
		Use:           "posvault",
		Short:         "Encrypted point-of-sale configuration store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageErrorf("%v", err)
	})

	flags := cmd.PersistentFlags()
	flags.BoolVar(&globals.JSON, "json", false, "Print machine-readable JSON output")
	flags.BoolVar(&globals.Quiet, "quiet", false, "Suppress non-error output")
	flags.BoolVar(&globals.NoColor, "no-color", false, "Disable styled table output")
	flags.BoolVar(&globals.Yes, "yes", false, "Assume yes for overwrite prompts")
	flags.BoolVar(&globals.PassphraseStdin, "passphrase-stdin", false, "Read the key passphrase from stdin")
	flags.DurationVar(&globals.Timeout, "timeout", 0, "Store operation timeout (default from config)")
	flags.StringVar(&globals.ConfigPath, "config", "", "Config file path")
	flags.StringVar(&globals.PolicyPath, "policy", "", "Policy file path")
	flags.StringVar(&globals.StoreBackend, "backend", "", "Store backend (memory, sqlite, file, registry)")
	flags.StringVar(&globals.StorePath, "store", "", "Store location (database file, directory or registry key)")
	flags.StringVar(&globals.KeyFile, "key-file", "", "Master key file path")
	flags.StringVar(&globals.Actor, "actor", "", "Actor recorded in the change log")

	cmd.AddCommand(
		newVersionCommand(deps),
		newInitCommand(deps),
		newDatabaseCommand(deps),
		newPrinterCommand(deps),
		newSettingCommand(deps),
		newExportCommand(deps),
		newImportCommand(deps),
		newDoctorCommand(deps),
	)
	cmd.InitDefaultCompletionCmd()
	return cmd
}
