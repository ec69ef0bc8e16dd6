package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/acoustid/go-textindex/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/urfave/cli.v1"
)

const testDocs = `{"id": "1", "text": {"body": "the cat sat"}, "keywords": {"n": "3"}}
{"id": "2", "text": {"body": "the dog ran"}, "keywords": {"n": "1"}}
{"id": "3", "text": {"body": "a cat ran"}, "keywords": {"n": "2"}}
`

func runApp(t *testing.T, args ...string) (string, error) {
	var out bytes.Buffer
	app := cli.NewApp()
	app.Flags = Flags
	app.Commands = Commands
	app.Writer = &out
	err := app.Run(append([]string{"textindex"}, args...))
	return out.String(), err
}

func createTestIndex(t *testing.T) string {
	dir := t.TempDir()
	input := filepath.Join(dir, "docs.json")
	require.NoError(t, os.WriteFile(input, []byte(testDocs), 0644))
	dbpath := filepath.Join(dir, "index")
	_, err := runApp(t, "--dbpath", dbpath, "add", "--file", input)
	require.NoError(t, err)
	return dbpath
}

// hitIDs returns the id column of the search output.
func hitIDs(out string) []string {
	ids := []string{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n")[1:] {
		ids = append(ids, strings.Split(line, "\t")[1])
	}
	return ids
}

func TestSearchCommand(t *testing.T) {
	dbpath := createTestIndex(t)

	out, err := runApp(t, "--dbpath", dbpath, "search", "cat")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "2 hits"), "unexpected output %q", out)
	assert.Equal(t, []string{"1", "3"}, hitIDs(out))

	out, err = runApp(t, "--dbpath", dbpath, "search", "--sort", "n:int", "--json", `{"type": "match_all"}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3", "1"}, hitIDs(out))

	out, err = runApp(t, "--dbpath", dbpath, "search", "--sort", "id:string:desc", "--limit", "1", "the")
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, hitIDs(out))

	_, err = runApp(t, "--dbpath", dbpath, "search")
	assert.Error(t, err)
	_, err = runApp(t, "search", "cat")
	assert.Error(t, err, "no index path")
}

func TestDeleteCommand(t *testing.T) {
	dbpath := createTestIndex(t)

	_, err := runApp(t, "--dbpath", dbpath, "delete", "1")
	require.NoError(t, err)
	out, err := runApp(t, "--dbpath", dbpath, "search", "cat")
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, hitIDs(out))

	_, err = runApp(t, "--dbpath", dbpath, "delete", "--term", "body:ran")
	require.NoError(t, err)
	out, err = runApp(t, "--dbpath", dbpath, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "docs: 0\n")
	assert.Contains(t, out, "deleted docs: 3\n")

	_, err = runApp(t, "--dbpath", dbpath, "delete", "--term", "nofield")
	assert.Error(t, err)
	_, err = runApp(t, "--dbpath", dbpath, "delete")
	assert.Error(t, err)
}

func TestOptimizeCommand(t *testing.T) {
	dbpath := createTestIndex(t)
	_, err := runApp(t, "--dbpath", dbpath, "delete", "2")
	require.NoError(t, err)
	_, err = runApp(t, "--dbpath", dbpath, "optimize")
	require.NoError(t, err)

	out, err := runApp(t, "--dbpath", dbpath, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "docs: 2\n")
	assert.Contains(t, out, "deleted docs: 0\n")
	assert.Contains(t, out, "segments: 1\n")
	assert.Contains(t, out, "fields: body, id, n\n")
}

func TestExplainCommand(t *testing.T) {
	dbpath := createTestIndex(t)
	out, err := runApp(t, "--dbpath", dbpath, "explain", "--doc", "0", "cat")
	require.NoError(t, err)
	assert.Contains(t, out, "tf(termFreq(body:cat)=1)")

	_, err = runApp(t, "--dbpath", dbpath, "explain", "--doc", "10", "cat")
	assert.Error(t, err)
}

func TestParseSortField(t *testing.T) {
	tests := map[string]search.SortField{
		"score":          {Type: search.SortByScore},
		"doc:desc":       {Type: search.SortByDoc, Reverse: true},
		"price:float":    {Field: "price", Type: search.SortByFloat},
		"id:string:desc": {Field: "id", Type: search.SortByString, Reverse: true},
	}
	for spec, expected := range tests {
		f, err := parseSortField(spec)
		require.NoError(t, err, spec)
		assert.Equal(t, expected, f, spec)
	}

	for _, spec := range []string{"int", "id:bogus", "a:b:c:d", ""} {
		_, err := parseSortField(spec)
		assert.Error(t, err, spec)
	}
}
