package cmdutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	f := New("1.0.0", "abc123")

	assert.Equal(t, "1.0.0", f.Version)
	assert.Equal(t, "abc123", f.Commit)
	assert.False(t, f.Debug)
	assert.NotEmpty(t, f.WorkDir, "New should default WorkDir to the process cwd")
	assert.NotNil(t, f.IOStreams)
}

func TestFactory_Config_LazyAndCachedPerInstance(t *testing.T) {
	f := New("1.0.0", "abc123")
	f.WorkDir = t.TempDir()

	c1, err1 := f.Config()
	require.NoError(t, err1)
	c2, err2 := f.Config()
	require.NoError(t, err2)

	assert.Equal(t, c1, c2)
}

func TestFactory_Config_ReadsExplicitConfigPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: import_scan\n"), 0644))

	f := New("1.0.0", "abc123")
	f.ConfigPath = path

	c, err := f.Config()
	require.NoError(t, err)
	assert.Equal(t, "import_scan", c.Mode)
}

func TestFactory_ResetConfig_ForcesReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "envrepair.yaml")

	f := New("1.0.0", "abc123")
	f.ConfigPath = path

	c1, err := f.Config()
	require.NoError(t, err)
	assert.Equal(t, "exec", c1.Mode)

	require.NoError(t, os.WriteFile(path, []byte("mode: import_scan\n"), 0644))
	f.ResetConfig()

	c2, err := f.Config()
	require.NoError(t, err)
	assert.Equal(t, "import_scan", c2.Mode)
}

func TestFactory_Repo_OpensWorkDirAsGitRepository(t *testing.T) {
	f := New("1.0.0", "abc123")
	f.WorkDir = t.TempDir() // not a git repo

	_, err := f.Repo()
	assert.Error(t, err)
}

func TestFactory_Credentials_LazyAndCachedPerInstance(t *testing.T) {
	f := New("1.0.0", "abc123")
	f.WorkDir = t.TempDir()

	r1 := f.Credentials()
	r2 := f.Credentials()
	assert.Same(t, r1, r2)
}

func TestFactory_Logger_LazyAndCachedPerInstance(t *testing.T) {
	f := New("1.0.0", "abc123")
	f.WorkDir = t.TempDir()

	l1, err := f.Logger()
	require.NoError(t, err)
	l2, err := f.Logger()
	require.NoError(t, err)
	assert.Same(t, l1, l2)
	t.Cleanup(func() { l1.Close() })
}
