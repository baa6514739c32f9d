package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFilePath(t *testing.T) {
	t.Run("rejects empty path", func(t *testing.T) {
		_, err := ValidateFilePath("")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "cannot be empty")
	})

	t.Run("rejects dangerous shell characters", func(t *testing.T) {
		for _, char := range dangerousChars {
			_, err := ValidateFilePath("/tmp/batch" + char + "file")
			assert.Error(t, err, "expected error for character %q", char)
			assert.Contains(t, err.Error(), "forbidden character")
		}
	})

	t.Run("converts relative path to absolute", func(t *testing.T) {
		result, err := ValidateFilePath("batch.yaml")
		require.NoError(t, err)
		assert.True(t, filepath.IsAbs(result))
	})

	t.Run("resolves symlinks", func(t *testing.T) {
		dir := t.TempDir()
		real := filepath.Join(dir, "real.yaml")
		link := filepath.Join(dir, "link.yaml")
		require.NoError(t, os.WriteFile(real, []byte("items: []"), 0o644))
		require.NoError(t, os.Symlink(real, link))

		result, err := ValidateFilePath(link)
		require.NoError(t, err)
		expected, _ := filepath.EvalSymlinks(real)
		assert.Equal(t, expected, result)
	})
}

func TestValidateExecutablePath(t *testing.T) {
	_, err := ValidateExecutablePath("plugins/factor")
	assert.ErrorContains(t, err, "must be absolute")

	got, err := ValidateExecutablePath("/opt/carevisit/../carevisit/factor")
	require.NoError(t, err)
	assert.Equal(t, "/opt/carevisit/factor", got)
}

func TestReadDocument(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	t.Run("reads yaml", func(t *testing.T) {
		data, err := ReadDocument(write("batch.yaml", "strategy: smart\n"))
		require.NoError(t, err)
		assert.Equal(t, "strategy: smart\n", string(data))
	})

	t.Run("rejects other extensions", func(t *testing.T) {
		_, err := ReadDocument(write("batch.txt", "x"))
		assert.ErrorContains(t, err, "unsupported file type")

		_, err = ReadDocument(write("batch.json", "{}"), ".yaml")
		assert.ErrorContains(t, err, "unsupported file type")
	})

	t.Run("rejects oversized documents", func(t *testing.T) {
		_, err := ReadDocument(write("huge.json", strings.Repeat(" ", MaxDocumentBytes+1)))
		assert.ErrorContains(t, err, "exceeds")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadDocument(filepath.Join(dir, "absent.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}
