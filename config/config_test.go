package config_test

import (
	"path/filepath"
	"testing"

	"github.com/ayanrajpoot10/sshagent-core/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirHonorsXDGConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir, err := config.Dir()
	require.NoError(t, err)
	assert.Equal(t, "sshagentd", filepath.Base(dir))
}

func TestSocketAndLockDBPathsLiveUnderDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir, err := config.Dir()
	require.NoError(t, err)

	sock, err := config.SocketPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "agent.sock"), sock)

	lockDB, err := config.LockDBPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "lock.json"), lockDB)
}
