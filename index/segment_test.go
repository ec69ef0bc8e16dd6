package index

import (
	"math/rand"
	"sort"
	"strconv"
	"testing"

	"github.com/acoustid/go-textindex/document"
	"github.com/acoustid/go-textindex/util/vfs"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createSkipTestSegment writes a single segment where the term "a" occurs in a random
// subset of the documents, with a random number of occurrences.
func createSkipTestSegment(t *testing.T, fs vfs.FileSystem, numDocs int, seed int64) (*SegmentReader, map[int][]int) {
	opts := testOptions()
	opts.MaxBufferedDocs = numDocs + 1
	rnd := rand.New(rand.NewSource(seed))

	w, err := OpenWriter(fs, true, opts)
	require.NoError(t, err)
	expected := make(map[int][]int)
	for i := 0; i < numDocs; i++ {
		text := "x"
		if rnd.Intn(3) > 0 {
			n := 1 + rnd.Intn(4)
			for j := 0; j < n; j++ {
				text += " a"
				expected[i] = append(expected[i], j+1)
			}
		}
		require.NoError(t, w.AddDocument(document.New(document.UnstoredText("body", text))))
	}
	require.NoError(t, w.Close())

	infos, err := readLatestSegmentInfos(fs)
	require.NoError(t, err)
	require.Len(t, infos.Segments, 1)
	r, err := openSegmentReader(fs, infos.Segments[0])
	require.NoError(t, err)
	return r, expected
}

func sortedDocs(postings map[int][]int) []int {
	docs := make([]int, 0, len(postings))
	for doc := range postings {
		docs = append(docs, doc)
	}
	sort.Ints(docs)
	return docs
}

func TestSegmentPostings_Next(t *testing.T) {
	fs := vfs.CreateMemDir()
	r, expected := createSkipTestSegment(t, fs, 500, 1)
	defer r.closeFiles()

	df, err := r.DocFreq(NewTerm("body", "a"))
	require.NoError(t, err)
	assert.Equal(t, len(expected), df)

	tp, err := r.TermPositions(NewTerm("body", "a"))
	require.NoError(t, err)
	actual := make(map[int][]int)
	for tp.Next() {
		for pos := tp.NextPosition(); pos >= 0; pos = tp.NextPosition() {
			actual[tp.Doc()] = append(actual[tp.Doc()], pos)
		}
	}
	require.NoError(t, tp.Err())
	assert.Equal(t, expected, actual)
	assert.Equal(t, NoMoreDocs, tp.Doc())
	assert.False(t, tp.Next())
}

func TestSegmentPostings_SkipTo(t *testing.T) {
	for _, seed := range []int64{1, 2, 3, 4, 5} {
		t.Run(strconv.FormatInt(seed, 10), func(t *testing.T) {
			fs := vfs.CreateMemDir()
			r, expected := createSkipTestSegment(t, fs, 1000, seed)
			defer r.closeFiles()
			docs := sortedDocs(expected)

			rnd := rand.New(rand.NewSource(seed))
			tp, err := r.TermPositions(NewTerm("body", "a"))
			require.NoError(t, err)
			current := -1
			for {
				target := current + 1 + rnd.Intn(60)
				// SkipTo moves to the first document >= target, but always at least one step
				lowest := target
				if lowest <= current {
					lowest = current + 1
				}
				i := sort.SearchInts(docs, lowest)
				if i == len(docs) {
					require.False(t, tp.SkipTo(target))
					assert.Equal(t, NoMoreDocs, tp.Doc())
					break
				}
				require.True(t, tp.SkipTo(target), "skip to %d", target)
				require.Equal(t, docs[i], tp.Doc(), "skip to %d", target)
				require.Equal(t, len(expected[docs[i]]), tp.Freq())
				// read positions of only some documents, the rest must be skipped lazily
				if rnd.Intn(2) == 0 {
					var positions []int
					for pos := tp.NextPosition(); pos >= 0; pos = tp.NextPosition() {
						positions = append(positions, pos)
					}
					require.Equal(t, expected[docs[i]], positions, "positions of doc %d", docs[i])
				}
				current = docs[i]
				if rnd.Intn(4) == 0 && tp.Next() {
					current = tp.Doc()
					require.Equal(t, docs[i+1], current)
				}
			}
			require.NoError(t, tp.Err())
		})
	}
}

func TestSegmentPostings_SkipTo_Backwards(t *testing.T) {
	fs := vfs.CreateMemDir()
	r, expected := createSkipTestSegment(t, fs, 200, 7)
	defer r.closeFiles()
	docs := sortedDocs(expected)

	td, err := r.TermDocs(NewTerm("body", "a"))
	require.NoError(t, err)
	require.True(t, td.SkipTo(docs[10]))
	require.Equal(t, docs[10], td.Doc())
	require.True(t, td.SkipTo(docs[3]))
	assert.Equal(t, docs[11], td.Doc())
}

func TestSegmentPostings_Deleted(t *testing.T) {
	fs := vfs.CreateMemDir()
	r, expected := createSkipTestSegment(t, fs, 300, 11)
	defer r.closeFiles()
	docs := sortedDocs(expected)

	var live []int
	var toDelete []int
	for i, doc := range docs {
		if i%3 == 0 {
			toDelete = append(toDelete, doc)
		} else {
			live = append(live, doc)
		}
	}
	assert.Equal(t, len(toDelete), r.deleteDocs(toDelete))
	assert.Equal(t, 0, r.deleteDocs(toDelete[:1]))

	tp, err := r.TermPositions(NewTerm("body", "a"))
	require.NoError(t, err)
	var actual []int
	for tp.Next() {
		actual = append(actual, tp.Doc())
		var positions []int
		for pos := tp.NextPosition(); pos >= 0; pos = tp.NextPosition() {
			positions = append(positions, pos)
		}
		require.Equal(t, expected[tp.Doc()], positions)
	}
	require.NoError(t, tp.Err())
	assert.Equal(t, live, actual)

	td, err := r.TermDocs(NewTerm("body", "a"))
	require.NoError(t, err)
	require.True(t, td.SkipTo(toDelete[5]))
	assert.Equal(t, live[sort.SearchInts(live, toDelete[5])], td.Doc())
}

func TestSegmentPostings_MissingTerm(t *testing.T) {
	fs := vfs.CreateMemDir()
	r, _ := createSkipTestSegment(t, fs, 10, 1)
	defer r.closeFiles()

	td, err := r.TermDocs(NewTerm("body", "missing"))
	require.NoError(t, err)
	assert.False(t, td.Next())
	assert.False(t, td.SkipTo(0))
	require.NoError(t, td.Err())
}

func TestOpenSegmentReader_Corrupt(t *testing.T) {
	fs := vfs.CreateMemDir()
	r, _ := createSkipTestSegment(t, fs, 10, 1)
	info := r.Info()
	r.closeFiles()

	t.Run("MissingFile", func(t *testing.T) {
		fs := vfs.CreateMemDir()
		_, err := openSegmentReader(fs, info)
		assert.True(t, vfs.IsNotExist(errors.Cause(err)), "expected missing file, got %v", err)
	})

	t.Run("TruncatedDictionary", func(t *testing.T) {
		truncateFile(t, fs, segmentFileName(info.Name, "tis"), 1)
		_, err := openSegmentReader(fs, info)
		assert.True(t, IsCorrupt(err), "expected corrupt index, got %v", err)
	})
}

func TestSegmentReader_Document(t *testing.T) {
	fs := vfs.CreateMemDir()
	w, err := OpenWriter(fs, true, testOptions())
	require.NoError(t, err)
	require.NoError(t, w.AddDocument(document.New(
		document.Keyword("id", "1"),
		document.Text("title", "Hello World"),
		document.UnstoredText("body", "not stored"),
		document.Stored("extra", "only stored"),
	)))
	require.NoError(t, w.Close())

	r := openTestReader(t, fs)
	defer r.Close()

	doc, err := r.Document(0)
	require.NoError(t, err)
	require.Len(t, doc.Fields, 3)
	assert.Equal(t, "id", doc.Fields[0].Name)
	assert.False(t, doc.Fields[0].Tokenized)
	assert.Equal(t, "title", doc.Fields[1].Name)
	assert.Equal(t, "Hello World", doc.Fields[1].Value)
	assert.True(t, doc.Fields[1].Tokenized)
	assert.Equal(t, "extra", doc.Fields[2].Name)
	assert.False(t, doc.Fields[2].Indexed)

	assert.Equal(t, []string{"body", "extra", "id", "title"}, r.FieldNames())
	assert.Len(t, readPostings(t, r, NewTerm("title", "hello")), 1)
	assert.Len(t, readPostings(t, r, NewTerm("id", "1")), 1)
}
