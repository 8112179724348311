package fetcher

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZIP(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	w := zip.NewWriter(f)
	for name, content := range entries {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return path
}

func TestExtractZIP(t *testing.T) {
	zipPath := writeZIP(t, map[string]string{
		"leads/batch1.csv": "email\njane@example.com\n",
		"leads/batch2.csv": "email\nandy@example.com\n",
	})

	destDir := t.TempDir()
	extracted, err := ExtractZIP(zipPath, destDir)
	require.NoError(t, err)
	require.Len(t, extracted, 2)

	data, err := os.ReadFile(filepath.Join(destDir, "leads", "batch1.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "jane@example.com")
}

func TestExtractZIP_SlipRejected(t *testing.T) {
	zipPath := writeZIP(t, map[string]string{
		"../escape.csv": "x\n",
	})

	_, err := ExtractZIP(zipPath, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "illegal path")
}

func TestExtractZIPMatching(t *testing.T) {
	zipPath := writeZIP(t, map[string]string{
		"readme.txt":   "about this export\n",
		"leads.csv":    "email\njane@example.com\n",
		"comments.CSV": "email\nandy@example.com\n",
	})

	destDir := t.TempDir()
	extracted, err := ExtractZIPMatching(zipPath, ".csv", destDir)
	require.NoError(t, err)
	assert.Len(t, extracted, 2)
}

func TestExtractZIPMatching_NoneFound(t *testing.T) {
	zipPath := writeZIP(t, map[string]string{
		"readme.txt": "nothing useful\n",
	})

	_, err := ExtractZIPMatching(zipPath, ".csv", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no .csv files")
}

func TestExtractZIP_MissingArchive(t *testing.T) {
	_, err := ExtractZIP(filepath.Join(t.TempDir(), "nope.zip"), t.TempDir())
	require.Error(t, err)
}
