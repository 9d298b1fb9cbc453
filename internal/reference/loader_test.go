package reference

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalog_MissingDirReturnsDefaults(t *testing.T) {
	c, err := LoadCatalog(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Equal(t, Default().TypeNames(), c.TypeNames())
	assert.Contains(t, c.Polymorphic, "address")
}

func TestLoadCatalog_MergesFiles(t *testing.T) {
	dir := t.TempDir()
	body := "types:\n  - name: INET\n  - name: varchar\n    params: true\n    default_params: \"100\"\npolymorphic:\n  - Attachment\n  - address\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.yaml"), []byte(body), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("junk"), 0o644))

	c, err := LoadCatalog(dir)
	require.NoError(t, err)

	assert.Contains(t, c.TypeNames(), "inet")
	for _, ti := range c.Types {
		if ti.Name == "varchar" {
			assert.Equal(t, "100", ti.DefaultParams)
			assert.Empty(t, ti.Aliases)
		}
	}
	assert.Contains(t, c.Polymorphic, "attachment")
	count := 0
	for _, p := range c.Polymorphic {
		if p == "address" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestLoadCatalog_BadYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yml"), []byte("types: [\n"), 0o644))
	_, err := LoadCatalog(dir)
	require.Error(t, err)
}
