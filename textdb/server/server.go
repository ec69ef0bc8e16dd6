// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/acoustid/go-textindex/textdb"
	"github.com/gorilla/mux"
)

func writeResponse(w http.ResponseWriter, status int, response interface{}) {
	body, err := json.Marshal(response)
	if err != nil {
		log.Printf("error while serializing JSON response (%v)", err)
		writeErrorResponse(w, http.StatusInternalServerError, "JSON serialization error")
		return
	}
	body = append(body, '\n')
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	w.Write(body)
}

func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	response := map[string]string{"message": message}
	writeResponse(w, status, response)
}

// Handler returns the HTTP API of db. Requests are counted in metrics.
func Handler(db *textdb.DB, metrics *Metrics) http.Handler {
	r := mux.NewRouter()
	route := func(path, method, name string, h http.Handler) {
		r.Path(path).Methods(method).Handler(metrics.instrument(name, h))
	}
	route("/docs", "POST", "add", &AddHandler{db: db, metrics: metrics})
	route("/docs/{id}", "DELETE", "delete", &DeleteHandler{db: db, metrics: metrics})
	route("/terms/{field}/{text}", "DELETE", "delete_term", &DeleteTermHandler{db: db, metrics: metrics})
	route("/search", "POST", "search", &SearchHandler{db: db, metrics: metrics})
	route("/explain/{doc:[0-9]+}", "GET", "explain", &ExplainHandler{db: db})
	route("/optimize", "POST", "optimize", &OptimizeHandler{db: db, metrics: metrics})
	route("/stats", "GET", "stats", &StatsHandler{db: db, metrics: metrics})
	r.Path("/metrics").Methods("GET").Handler(metrics.Handler())
	return r
}

// ListenAndServe serves the API on addr until ctx is cancelled.
func ListenAndServe(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: h}
	errc := make(chan error, 1)
	go func() {
		log.Printf("listening on %v", addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Printf("shutting down server on %v", addr)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
