package debug

import (
	"encoding/json"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestWriteBundleWritesJSONFile(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	bundle := NewBundle()
	bundle.Version = map[string]any{"version": "1.2.3"}
	bundle.Repositories = []RepoStatus{{Type: "printer_profile", Root: "posvault/printers", Skipped: 1}}
	bundle.Checks = []Check{{Name: "access:printer_profile", OK: true}}

	require.NoError(t, WriteBundle(fs, "/out/support/bundle.json", bundle))

	raw, err := afero.ReadFile(fs, "/out/support/bundle.json")
	require.NoError(t, err)

	var decoded Bundle
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, bundle.GOOS, decoded.GOOS)
	require.Equal(t, "1.2.3", decoded.Version["version"])
	require.Equal(t, 1, decoded.Repositories[0].Skipped)

	info, err := fs.Stat("/out/support/bundle.json")
	require.NoError(t, err)
	require.Equal(t, "-rw-------", info.Mode().Perm().String())
}

func TestWriteBundleRequiresOutputPath(t *testing.T) {
	t.Parallel()

	err := WriteBundle(afero.NewMemMapFs(), "", NewBundle())
	require.Error(t, err)
	require.Contains(t, err.Error(), "output path is required")
}

func TestBundleFailed(t *testing.T) {
	t.Parallel()

	b := NewBundle()
	require.False(t, b.Failed())
	b.Checks = []Check{{Name: "a", OK: true}, {Name: "b", OK: false}}
	require.True(t, b.Failed())
}
