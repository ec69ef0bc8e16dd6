package textdb

import (
	"sync"
	"testing"

	"github.com/acoustid/go-textindex/document"
	"github.com/acoustid/go-textindex/index"
	"github.com/acoustid/go-textindex/search"
	"github.com/acoustid/go-textindex/util/vfs"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() index.Options {
	opts := index.DefaultOptions()
	opts.MaxBufferedDocs = 2
	return opts
}

func openTestDB(t *testing.T, fs vfs.FileSystem) *DB {
	db, err := Open(fs, true, testOptions())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newDoc(body string) *document.Document {
	return document.New(document.Text("body", body))
}

func TestDB_Commit(t *testing.T) {
	db := openTestDB(t, vfs.CreateMemDir())
	require.NoError(t, db.UpdateDocument("a", newDoc("the cat sat")))
	require.NoError(t, db.UpdateDocument("b", newDoc("the dog ran")))
	require.NoError(t, db.UpdateDocument("c", newDoc("a cat ran")))

	hits, err := db.Search(search.NewTermQuery("body", "cat"), search.SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, hits.TotalHits, "nothing is visible before commit")
	assert.Equal(t, 3, db.NumDocs())

	require.NoError(t, db.Commit())
	hits, err = db.Search(search.NewTermQuery("body", "cat"), search.SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, hits.TotalHits)

	doc, err := db.Doc(hits.ScoreDocs[0].Doc)
	require.NoError(t, err)
	id, ok := doc.Get(IDField)
	require.True(t, ok)
	assert.Contains(t, []string{"a", "c"}, id)
}

func TestDB_UpdateDocument(t *testing.T) {
	db := openTestDB(t, vfs.CreateMemDir())
	require.NoError(t, db.UpdateDocument("a", newDoc("first version")))
	require.NoError(t, db.Commit())
	require.NoError(t, db.UpdateDocument("a", newDoc("second version")))
	require.NoError(t, db.Commit())

	hits, err := db.Search(search.NewTermQuery("body", "version"), search.SearchOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, hits.TotalHits)
	doc, err := db.Doc(hits.ScoreDocs[0].Doc)
	require.NoError(t, err)
	body, _ := doc.Get("body")
	assert.Equal(t, "second version", body)
}

func TestDB_Delete(t *testing.T) {
	db := openTestDB(t, vfs.CreateMemDir())
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, db.UpdateDocument(id, newDoc("text "+id)))
	}
	require.NoError(t, db.Commit())

	require.NoError(t, db.DeleteDocument("b"))
	require.NoError(t, db.DeleteTerm(index.NewTerm("body", "c")))
	require.NoError(t, db.Commit())

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NumDocs)
	assert.Equal(t, 3, stats.MaxDoc)
	assert.Equal(t, 0, stats.Pending)

	require.NoError(t, db.Optimize())
	stats, err = db.Stats()
	require.NoError(t, err)
	assert.Equal(t, Stats{NumDocs: 1, MaxDoc: 1, NumSegments: 1, Generation: stats.Generation}, stats)
}

func TestDB_Snapshot(t *testing.T) {
	db := openTestDB(t, vfs.CreateMemDir())
	require.NoError(t, db.AddDocument(newDoc("one")))
	require.NoError(t, db.Commit())

	s, err := db.Snapshot()
	require.NoError(t, err)
	gen := s.Generation()

	require.NoError(t, db.AddDocument(newDoc("two")))
	require.NoError(t, db.Commit())

	assert.Equal(t, gen, s.Generation())
	assert.Equal(t, 1, s.NumDocs(), "snapshot does not see later commits")
	hits, err := s.Search(search.NewMatchAllDocsQuery(), search.SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, hits.TotalHits)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	s, err = db.Snapshot()
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, 2, s.NumDocs())
	assert.True(t, s.Generation() > gen)
}

func TestDB_Stats_Pending(t *testing.T) {
	db := openTestDB(t, vfs.CreateMemDir())
	for i := 0; i < 3; i++ {
		require.NoError(t, db.AddDocument(newDoc("x")))
	}
	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.NumDocs)
	assert.Equal(t, 3, stats.Pending)
}

func TestDB_Close(t *testing.T) {
	fs := vfs.CreateMemDir()
	db, err := Open(fs, true, testOptions())
	require.NoError(t, err)
	require.NoError(t, db.AddDocument(newDoc("kept after close")))

	s, err := db.Snapshot()
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	assert.Equal(t, 0, s.NumDocs(), "open snapshots stay usable")
	require.NoError(t, s.Close())

	assert.True(t, errors.Is(db.AddDocument(newDoc("x")), index.ErrAlreadyClosed))
	_, err = db.Snapshot()
	assert.True(t, errors.Is(err, index.ErrAlreadyClosed))

	db, err = Open(fs, false, testOptions())
	require.NoError(t, err)
	defer db.Close()
	hits, err := db.Search(search.NewTermQuery("body", "kept"), search.SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, hits.TotalHits, "close commits buffered documents")
}

func TestOpen_Locked(t *testing.T) {
	fs := vfs.CreateMemDir()
	openTestDB(t, fs)
	_, err := Open(fs, false, testOptions())
	assert.True(t, errors.Is(err, vfs.ErrLockTimeout), "expected lock timeout, got %v", err)
}

func TestDB_ConcurrentSearch(t *testing.T) {
	db := openTestDB(t, vfs.CreateMemDir())
	require.NoError(t, db.AddDocument(newDoc("seed")))
	require.NoError(t, db.Commit())

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				hits, err := db.Search(search.NewMatchAllDocsQuery(), search.SearchOptions{})
				if err != nil {
					errs <- err
					return
				}
				if hits.TotalHits < 1 {
					errs <- errors.New("seed document is missing")
					return
				}
			}
		}()
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, db.AddDocument(newDoc("more")))
		require.NoError(t, db.Commit())
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}
