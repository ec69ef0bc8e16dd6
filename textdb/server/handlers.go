// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/acoustid/go-textindex/document"
	"github.com/acoustid/go-textindex/index"
	"github.com/acoustid/go-textindex/search"
	"github.com/acoustid/go-textindex/textdb"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
)

// DefaultField is searched by query strings that do not name a field.
const DefaultField = "body"

func writeDBError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, search.ErrInvalidArgument), errors.Is(err, textdb.ErrInvalidDocument):
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, index.ErrInvalidDocID):
		writeErrorResponse(w, http.StatusNotFound, "document not found")
	default:
		log.Printf("%v failed: %v", op, err)
		writeErrorResponse(w, http.StatusInternalServerError, "internal error")
	}
}

// commit publishes the changes of a request and refreshes the document gauge.
func commit(db *textdb.DB, metrics *Metrics) error {
	err := db.Commit()
	if err != nil {
		return err
	}
	metrics.Commits.Inc()
	stats, err := db.Stats()
	if err != nil {
		return err
	}
	metrics.IndexDocs.Set(float64(stats.NumDocs))
	return nil
}

// AddHandler adds or replaces documents, one JSON object per line, and commits them.
type AddHandler struct {
	db      *textdb.DB
	metrics *Metrics
}

func (h *AddHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	docs, err := textdb.DecodeJSONDocuments(r.Body)
	if err == nil && len(docs) == 0 {
		err = errors.WithMessage(textdb.ErrInvalidDocument, "no docs")
	}
	if err != nil {
		writeDBError(w, "add", err)
		return
	}
	for _, d := range docs {
		err = h.db.UpdateDocument(d.ID, d.Document())
		if err != nil {
			writeDBError(w, "add", err)
			return
		}
	}
	err = commit(h.db, h.metrics)
	if err != nil {
		writeDBError(w, "add", err)
		return
	}
	added := len(docs)
	h.metrics.DocsAdded.Add(float64(added))

	type Response struct {
		Added int `json:"added"`
	}
	writeResponse(w, http.StatusOK, Response{Added: added})
}

type DeleteHandler struct {
	db      *textdb.DB
	metrics *Metrics
}

func (h *DeleteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := h.db.DeleteDocument(mux.Vars(r)["id"])
	if err == nil {
		err = commit(h.db, h.metrics)
	}
	if err != nil {
		writeDBError(w, "delete", err)
		return
	}
	h.metrics.DocsDeleted.Inc()

	type Response struct{}
	writeResponse(w, http.StatusOK, Response{})
}

type DeleteTermHandler struct {
	db      *textdb.DB
	metrics *Metrics
}

func (h *DeleteTermHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	err := h.db.DeleteTerm(index.NewTerm(vars["field"], vars["text"]))
	if err == nil {
		err = commit(h.db, h.metrics)
	}
	if err != nil {
		writeDBError(w, "delete", err)
		return
	}
	h.metrics.DocsDeleted.Inc()

	type Response struct{}
	writeResponse(w, http.StatusOK, Response{})
}

type sortRequest struct {
	Field   string `json:"field"`
	Type    string `json:"type"`
	Reverse bool   `json:"reverse"`
}

type searchRequest struct {
	// Query is a JSON query tree, Q a query string searched in Field.
	Query  *search.QueryNode `json:"query"`
	Q      string            `json:"q"`
	Field  string            `json:"field"`
	Sort   []sortRequest     `json:"sort"`
	Offset int               `json:"offset"`
	Limit  int               `json:"limit"`
}

func parseQuery(db *textdb.DB, node *search.QueryNode, q, field string) (search.Query, error) {
	if node != nil {
		return node.Query()
	}
	if q == "" {
		return nil, errors.WithMessage(search.ErrInvalidArgument, "missing query")
	}
	if field == "" {
		field = DefaultField
	}
	return search.ParseQuery(q, field, db.Analyzer())
}

func (req *searchRequest) options() (search.SearchOptions, error) {
	opts := search.SearchOptions{Offset: req.Offset, Limit: req.Limit}
	if len(req.Sort) > 0 {
		opts.Sort = &search.Sort{}
		for _, s := range req.Sort {
			typ, err := search.ParseSortType(s.Type)
			if err != nil {
				return opts, err
			}
			opts.Sort.Fields = append(opts.Sort.Fields, search.SortField{Field: s.Field, Type: typ, Reverse: s.Reverse})
		}
	}
	return opts, nil
}

type searchHit struct {
	Doc    int                 `json:"doc"`
	ID     string              `json:"id,omitempty"`
	Score  float64             `json:"score"`
	Sort   []interface{}       `json:"sort,omitempty"`
	Fields map[string][]string `json:"fields,omitempty"`
}

func storedFields(doc *document.Document) map[string][]string {
	fields := make(map[string][]string)
	for _, f := range doc.Fields {
		if f.Name == textdb.IDField {
			continue
		}
		fields[f.Name] = append(fields[f.Name], f.Value)
	}
	return fields
}

type SearchHandler struct {
	db      *textdb.DB
	metrics *Metrics
}

func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return
	}
	q, err := parseQuery(h.db, req.Query, req.Q, req.Field)
	if err != nil {
		writeDBError(w, "search", err)
		return
	}
	opts, err := req.options()
	if err != nil {
		writeDBError(w, "search", err)
		return
	}

	snapshot, err := h.db.Snapshot()
	if err != nil {
		writeDBError(w, "search", err)
		return
	}
	defer snapshot.Close()

	top, err := snapshot.Search(q, opts)
	if err != nil {
		h.metrics.SearchesTotal.WithLabelValues("error").Inc()
		writeDBError(w, "search", err)
		return
	}
	if top.TotalHits > 0 {
		h.metrics.SearchesTotal.WithLabelValues("hit").Inc()
	} else {
		h.metrics.SearchesTotal.WithLabelValues("miss").Inc()
	}
	h.metrics.SearchHits.Observe(float64(top.TotalHits))

	type Response struct {
		TotalHits int         `json:"total_hits"`
		MaxScore  float64     `json:"max_score"`
		Hits      []searchHit `json:"hits"`
	}
	response := Response{TotalHits: top.TotalHits, MaxScore: top.MaxScore, Hits: make([]searchHit, 0, len(top.ScoreDocs))}
	for _, sd := range top.ScoreDocs {
		doc, err := snapshot.Searcher().Doc(sd.Doc)
		if err != nil {
			writeDBError(w, "search", err)
			return
		}
		hit := searchHit{Doc: sd.Doc, Score: sd.Score, Sort: sd.Fields, Fields: storedFields(doc)}
		hit.ID, _ = doc.Get(textdb.IDField)
		response.Hits = append(response.Hits, hit)
	}
	writeResponse(w, http.StatusOK, response)
}

// ExplainHandler explains the score of a document for the query given in the
// "q" (query string) or "query" (JSON tree) parameter.
type ExplainHandler struct {
	db *textdb.DB
}

func (h *ExplainHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	doc, err := strconv.Atoi(mux.Vars(r)["doc"])
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid doc")
		return
	}
	params := r.URL.Query()
	var node *search.QueryNode
	if data := params.Get("query"); data != "" {
		node = &search.QueryNode{}
		err = json.Unmarshal([]byte(data), node)
		if err != nil {
			writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("invalid query: %v", err))
			return
		}
	}
	q, err := parseQuery(h.db, node, params.Get("q"), params.Get("field"))
	if err != nil {
		writeDBError(w, "explain", err)
		return
	}
	explanation, err := h.db.Explain(q, doc)
	if err != nil {
		writeDBError(w, "explain", err)
		return
	}
	writeResponse(w, http.StatusOK, explanation)
}

type OptimizeHandler struct {
	db      *textdb.DB
	metrics *Metrics
}

func (h *OptimizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := h.db.Optimize()
	if err != nil {
		writeDBError(w, "optimize", err)
		return
	}
	stats, err := h.db.Stats()
	if err != nil {
		writeDBError(w, "optimize", err)
		return
	}
	h.metrics.IndexDocs.Set(float64(stats.NumDocs))
	writeResponse(w, http.StatusOK, stats)
}

type StatsHandler struct {
	db      *textdb.DB
	metrics *Metrics
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.Stats()
	if err != nil {
		writeDBError(w, "stats", err)
		return
	}
	h.metrics.IndexDocs.Set(float64(stats.NumDocs))
	writeResponse(w, http.StatusOK, stats)
}
