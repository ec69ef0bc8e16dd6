package index

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	dir, err := os.MkdirTemp("", "textindex")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadOptions(t *testing.T) {
	path := writeTempConfig(t, `
merge_factor: 4
max_buffered_docs: 50
analyzer: english
write_lock_timeout: 5s
`)
	opts, err := LoadOptions(path)
	require.NoError(t, err)
	assert.Equal(t, 4, opts.MergeFactor)
	assert.Equal(t, 50, opts.MaxBufferedDocs)
	assert.Equal(t, "english", opts.AnalyzerName)
	assert.Equal(t, 5*time.Second, opts.WriteLockTimeout)
	assert.Equal(t, DefaultOptions().SkipInterval, opts.SkipInterval)
	assert.NotNil(t, opts.analyzer())
}

func TestLoadOptions_Invalid(t *testing.T) {
	tests := map[string]string{
		"MergeFactor":     "merge_factor: 1\n",
		"SkipInterval":    "skip_interval: 0\n",
		"UnknownAnalyzer": "analyzer: klingon\n",
		"Syntax":          "merge_factor: [\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadOptions(writeTempConfig(t, content))
			assert.Error(t, err)
		})
	}

	_, err := LoadOptions(filepath.Join(os.TempDir(), "textindex-missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	require.NoError(t, opts.Validate())
	assert.NotNil(t, opts.analyzer())
	assert.NotNil(t, opts.similarity())
}
