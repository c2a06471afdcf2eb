package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsCaseInsensitive(t *testing.T) {
	b := Default()

	assert.True(t, b.Blocked("Hotel"))
	assert.True(t, b.Blocked("hotel"))
	assert.True(t, b.Blocked(" SoftwareApplication "))
	assert.False(t, b.Blocked("ChildCare"))
	assert.Len(t, b.Types(), len(DefaultBlockedTypes))
}

func writeFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "blocklist.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("types replace defaults", func(t *testing.T) {
		types, err := LoadFile(writeFile(t, dir, `types = ["Casino", "Hotel"]`))
		require.NoError(t, err)
		assert.Equal(t, []string{"Casino", "Hotel"}, types)
	})

	t.Run("allow trims defaults", func(t *testing.T) {
		types, err := LoadFile(writeFile(t, dir, `allow = ["restaurant"]`))
		require.NoError(t, err)
		assert.NotContains(t, types, "Restaurant")
		assert.Contains(t, types, "Hotel")
		assert.Len(t, types, len(DefaultBlockedTypes)-1)
	})

	t.Run("invalid toml", func(t *testing.T) {
		_, err := LoadFile(writeFile(t, dir, `types = [`))
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(dir, "nope.toml"))
		assert.Error(t, err)
	})
}

func TestReloadKeepsListOnError(t *testing.T) {
	b := Default()
	dir := t.TempDir()

	require.Error(t, b.Reload(writeFile(t, dir, `types = [`)))
	assert.True(t, b.Blocked("Hotel"))
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, `types = ["Casino"]`)

	b := Default()
	fw, err := Watch(b, path)
	require.NoError(t, err)
	defer fw.Stop()
	fw.SetDebounce(20 * time.Millisecond)

	assert.True(t, b.Blocked("Casino"))
	assert.False(t, b.Blocked("Hotel"))

	require.NoError(t, os.WriteFile(path, []byte(`types = ["Hotel"]`), 0644))

	assert.Eventually(t, func() bool { return b.Blocked("Hotel") && !b.Blocked("Casino") },
		3*time.Second, 20*time.Millisecond)
}
