package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGet_Defaults(t *testing.T) {
	build := Get()
	require.NotEmpty(t, build.Version)
	require.NotEmpty(t, build.Commit)
	require.NotEmpty(t, build.Date)
	require.Equal(t, build.Version, GetVersion())
}

func TestGet_ReflectsLinkerValues(t *testing.T) {
	prevVersion, prevCommit, prevDate := version, commit, date
	t.Cleanup(func() { version, commit, date = prevVersion, prevCommit, prevDate })

	version, commit, date = "v1.4.0", "abc1234", "2026-10-01"

	require.Equal(t, Build{Version: "v1.4.0", Commit: "abc1234", Date: "2026-10-01"}, Get())
	require.Equal(t, "backoffice v1.4.0 (commit abc1234, built 2026-10-01)", Get().String())
}
