package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/acoustid/go-textindex/index"
	"github.com/acoustid/go-textindex/search"
	"github.com/acoustid/go-textindex/textdb"
	"github.com/acoustid/go-textindex/util/vfs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDocs = `{"id": "1", "text": {"body": "the cat sat"}, "keywords": {"tag": "pet"}}
{"id": "2", "text": {"body": "the dog ran"}}
{"id": "3", "text": {"body": "a cat ran"}}
`

func newTestHandler(t *testing.T) (*textdb.DB, http.Handler) {
	db, err := textdb.Open(vfs.CreateMemDir(), true, index.DefaultOptions())
	require.NoError(t, err, "failed to create test db")
	t.Cleanup(func() { db.Close() })
	return db, Handler(db, NewMetrics(prometheus.NewRegistry()))
}

func doRequest(h http.Handler, method, url, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "http://example.com"+url, bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

type testSearchResponse struct {
	TotalHits int `json:"total_hits"`
	Hits      []struct {
		Doc    int                 `json:"doc"`
		ID     string              `json:"id"`
		Score  float64             `json:"score"`
		Sort   []interface{}       `json:"sort"`
		Fields map[string][]string `json:"fields"`
	} `json:"hits"`
}

func searchIDs(t *testing.T, h http.Handler, body string) []string {
	w := doRequest(h, "POST", "/search", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var response testSearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	ids := []string{}
	for _, hit := range response.Hits {
		ids = append(ids, hit.ID)
	}
	return ids
}

func TestAddHandler(t *testing.T) {
	db, h := newTestHandler(t)

	w := doRequest(h, "POST", "/docs", testDocs)
	require.Equal(t, http.StatusOK, w.Code, "status code should be 200 OK")
	require.JSONEq(t, `{"added": 3}`, w.Body.String())
	assert.Equal(t, 3, db.NumDocs())

	w = doRequest(h, "POST", "/docs", `{"id": "1", "text": {"body": "replaced"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, db.NumDocs())
	assert.Equal(t, []string{"1"}, searchIDs(t, h, `{"q": "replaced"}`))

	for _, body := range []string{"", `{"text": {"body": "no id"}}`, `{"id": `} {
		w = doRequest(h, "POST", "/docs", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
	}
}

func TestAddHandler_InvalidBatch(t *testing.T) {
	db, h := newTestHandler(t)

	body := `{"id": "1", "text": {"body": "the cat sat"}}
{"id": "", "text": {"body": "no id"}}
`
	w := doRequest(h, "POST", "/docs", body)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Equal(t, 0, db.NumDocs(), "no document of a rejected batch is buffered")

	w = doRequest(h, "POST", "/docs", `{"id": "2", "text": {"body": "a dog ran"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, db.NumDocs())
	assert.Empty(t, searchIDs(t, h, `{"q": "cat"}`))
	assert.Equal(t, []string{"2"}, searchIDs(t, h, `{"q": "dog"}`))
}

func TestSearchHandler(t *testing.T) {
	_, h := newTestHandler(t)
	require.Equal(t, http.StatusOK, doRequest(h, "POST", "/docs", testDocs).Code)

	assert.Equal(t, []string{"1", "3"}, searchIDs(t, h, `{"q": "cat"}`))
	assert.Equal(t, []string{"1"}, searchIDs(t, h, `{"q": "+cat -ran"}`))
	assert.Equal(t, []string{"2"}, searchIDs(t, h, `{"q": "\"dog ran\""}`))
	assert.Equal(t, []string{}, searchIDs(t, h, `{"q": "missing"}`))

	w := doRequest(h, "POST", "/search", `{"query": {"type": "term", "field": "tag", "text": "pet"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	var response testSearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response.Hits, 1)
	assert.Equal(t, "1", response.Hits[0].ID)
	assert.Equal(t, map[string][]string{"body": {"the cat sat"}, "tag": {"pet"}}, response.Hits[0].Fields)
}

func TestSearchHandler_Sort(t *testing.T) {
	_, h := newTestHandler(t)
	require.Equal(t, http.StatusOK, doRequest(h, "POST", "/docs", testDocs).Code)

	w := doRequest(h, "POST", "/search", `{"q": "cat", "sort": [{"field": "id", "type": "string", "reverse": true}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	var response testSearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response.Hits, 2)
	assert.Equal(t, "3", response.Hits[0].ID)
	assert.Equal(t, []interface{}{"3"}, response.Hits[0].Sort)
	assert.Equal(t, "1", response.Hits[1].ID)

	assert.Equal(t, []string{"2"}, searchIDs(t, h, `{"query": {"type": "match_all"}, "offset": 1, "limit": 1}`))
}

func TestSearchHandler_BadRequest(t *testing.T) {
	_, h := newTestHandler(t)
	bodies := []string{
		`{}`,
		`not json`,
		`{"q": "cat", "sort": [{"type": "bogus"}]}`,
		`{"query": {"type": "bogus"}}`,
		`{"query": {"type": "range", "field": "body"}}`,
	}
	for _, body := range bodies {
		w := doRequest(h, "POST", "/search", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %v", body)
	}
}

func TestDeleteHandler(t *testing.T) {
	db, h := newTestHandler(t)
	require.Equal(t, http.StatusOK, doRequest(h, "POST", "/docs", testDocs).Code)

	w := doRequest(h, "DELETE", "/docs/2", "")
	require.Equal(t, http.StatusOK, w.Code, "status code should be 200 OK")
	require.JSONEq(t, `{}`, w.Body.String(), "unexpected response")
	assert.Equal(t, 2, db.NumDocs())

	w = doRequest(h, "DELETE", "/terms/body/cat", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, db.NumDocs())
	assert.Equal(t, []string{}, searchIDs(t, h, `{"query": {"type": "match_all"}}`))
}

func TestExplainHandler(t *testing.T) {
	_, h := newTestHandler(t)
	require.Equal(t, http.StatusOK, doRequest(h, "POST", "/docs", testDocs).Code)

	w := doRequest(h, "GET", "/explain/0?q=cat", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var explanation search.Explanation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &explanation))
	assert.True(t, explanation.IsMatch())

	w = doRequest(h, "GET", "/explain/1?query="+url.QueryEscape(`{"type": "term", "field": "body", "text": "cat"}`), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &explanation))
	assert.False(t, explanation.IsMatch())

	assert.Equal(t, http.StatusNotFound, doRequest(h, "GET", "/explain/99?q=cat", "").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(h, "GET", "/explain/0", "").Code)
}

func TestStatsHandler(t *testing.T) {
	_, h := newTestHandler(t)
	require.Equal(t, http.StatusOK, doRequest(h, "POST", "/docs", testDocs).Code)
	require.Equal(t, http.StatusOK, doRequest(h, "DELETE", "/docs/2", "").Code)

	var stats textdb.Stats
	w := doRequest(h, "GET", "/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.NumDocs)
	assert.Equal(t, 3, stats.MaxDoc)

	w = doRequest(h, "POST", "/optimize", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.NumDocs)
	assert.Equal(t, 2, stats.MaxDoc)
	assert.Equal(t, 1, stats.NumSegments)
}

func TestMetricsHandler(t *testing.T) {
	_, h := newTestHandler(t)
	require.Equal(t, http.StatusOK, doRequest(h, "POST", "/docs", testDocs).Code)
	searchIDs(t, h, `{"q": "cat"}`)

	w := doRequest(h, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "textindex_docs_added_total 3")
	assert.Contains(t, body, "textindex_docs 3")
	assert.Contains(t, body, `textindex_searches_total{result="hit"} 1`)
	assert.Contains(t, body, `textindex_http_requests_total{route="add",status="200"} 1`)
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	_, h := newTestHandler(t)
	assert.Equal(t, http.StatusMethodNotAllowed, doRequest(h, "GET", "/search", "").Code)
}
