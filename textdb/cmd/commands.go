// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/acoustid/go-textindex/index"
	"github.com/acoustid/go-textindex/search"
	"github.com/acoustid/go-textindex/textdb"
	"github.com/pkg/errors"
	"gopkg.in/urfave/cli.v1"
)

var addCommand = cli.Command{
	Name:  "add",
	Usage: "Add or replace documents given as JSON lines",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "file", Usage: "read documents from the file (default: stdin)"},
	},
	Action: runAdd,
}

func runAdd(ctx *cli.Context) error {
	var input io.Reader = os.Stdin
	if path := ctx.String("file"); path != "" {
		file, err := os.Open(path)
		if err != nil {
			return errors.Wrap(err, "unable to open the input file")
		}
		defer file.Close()
		input = file
	}

	docs, err := textdb.DecodeJSONDocuments(input)
	if err != nil {
		return err
	}

	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, d := range docs {
		err = db.UpdateDocument(d.ID, d.Document())
		if err != nil {
			return err
		}
	}
	err = db.Commit()
	if err != nil {
		return err
	}
	log.Printf("added %d documents", len(docs))
	return nil
}

var deleteCommand = cli.Command{
	Name:      "delete",
	Usage:     "Delete documents by id or by term",
	ArgsUsage: "[id...]",
	Flags: []cli.Flag{
		cli.StringSliceFlag{Name: "term", Usage: "delete documents containing field:text"},
	},
	Action: runDelete,
}

func runDelete(ctx *cli.Context) error {
	var terms []index.Term
	for _, arg := range ctx.StringSlice("term") {
		i := strings.IndexByte(arg, ':')
		if i <= 0 {
			return errors.Errorf("invalid term %q, expected field:text", arg)
		}
		terms = append(terms, index.NewTerm(arg[:i], arg[i+1:]))
	}
	if ctx.NArg() == 0 && len(terms) == 0 {
		return errors.New("nothing to delete")
	}

	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, id := range ctx.Args() {
		err = db.DeleteDocument(id)
		if err != nil {
			return err
		}
	}
	for _, t := range terms {
		err = db.DeleteTerm(t)
		if err != nil {
			return err
		}
	}
	return db.Commit()
}

var queryFlags = []cli.Flag{
	cli.StringFlag{Name: "field", Value: "body", Usage: "field searched by words without a field prefix"},
	cli.BoolFlag{Name: "json", Usage: "the query is a JSON query tree"},
}

func parseQuery(ctx *cli.Context, opts index.Options) (search.Query, error) {
	text := strings.Join(ctx.Args(), " ")
	if text == "" {
		return nil, errors.New("missing query")
	}
	if ctx.Bool("json") {
		return search.DecodeQuery([]byte(text))
	}
	return search.ParseQuery(text, ctx.String("field"), textdb.Analyzer(opts))
}

// parseSortField parses "score", "doc" or "field:type", with an optional ":desc" suffix.
func parseSortField(arg string) (search.SortField, error) {
	var f search.SortField
	parts := strings.Split(arg, ":")
	if n := len(parts); n > 1 && parts[n-1] == "desc" {
		f.Reverse = true
		parts = parts[:n-1]
	}
	var err error
	switch len(parts) {
	case 1:
		f.Type, err = search.ParseSortType(parts[0])
		if err == nil && f.Type != search.SortByScore && f.Type != search.SortByDoc {
			err = errors.Errorf("sort type %v needs a field", f.Type)
		}
	case 2:
		f.Field = parts[0]
		f.Type, err = search.ParseSortType(parts[1])
	default:
		err = errors.Errorf("invalid sort %q", arg)
	}
	return f, err
}

var searchCommand = cli.Command{
	Name:      "search",
	Usage:     "Search the index",
	ArgsUsage: "query",
	Flags: append([]cli.Flag{
		cli.IntFlag{Name: "limit", Value: search.DefaultLimit, Usage: "maximum number of hits"},
		cli.IntFlag{Name: "offset", Usage: "number of hits to skip"},
		cli.StringSliceFlag{Name: "sort", Usage: "sort by score, doc or field:type (string, int, float), append :desc to reverse"},
	}, queryFlags...),
	Action: runSearch,
}

func runSearch(ctx *cli.Context) error {
	r, opts, err := openReader(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	q, err := parseQuery(ctx, opts)
	if err != nil {
		return err
	}
	searchOpts := search.SearchOptions{Limit: ctx.Int("limit"), Offset: ctx.Int("offset")}
	if sortArgs := ctx.StringSlice("sort"); len(sortArgs) > 0 {
		searchOpts.Sort = &search.Sort{}
		for _, arg := range sortArgs {
			f, err := parseSortField(arg)
			if err != nil {
				return err
			}
			searchOpts.Sort.Fields = append(searchOpts.Sort.Fields, f)
		}
	}

	s := search.NewSearcher(r)
	top, err := s.Search(q, searchOpts)
	if err != nil {
		return err
	}
	out := ctx.App.Writer
	fmt.Fprintf(out, "%d hits for %v\n", top.TotalHits, q)
	for _, hit := range top.ScoreDocs {
		doc, err := s.Doc(hit.Doc)
		if err != nil {
			return err
		}
		id, _ := doc.Get(textdb.IDField)
		fmt.Fprintf(out, "%d\t%s\t%.6f", hit.Doc, id, hit.Score)
		for _, v := range hit.Fields {
			fmt.Fprintf(out, "\t%v", v)
		}
		fmt.Fprintln(out)
	}
	return nil
}

var explainCommand = cli.Command{
	Name:      "explain",
	Usage:     "Explain the score of a document",
	ArgsUsage: "query",
	Flags: append([]cli.Flag{
		cli.IntFlag{Name: "doc", Value: -1, Usage: "document number"},
	}, queryFlags...),
	Action: runExplain,
}

func runExplain(ctx *cli.Context) error {
	r, opts, err := openReader(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	q, err := parseQuery(ctx, opts)
	if err != nil {
		return err
	}
	explanation, err := search.NewSearcher(r).Explain(q, ctx.Int("doc"))
	if err != nil {
		return err
	}
	fmt.Fprint(ctx.App.Writer, explanation.String())
	return nil
}

var optimizeCommand = cli.Command{
	Name:   "optimize",
	Usage:  "Merge the index into a single segment",
	Action: runOptimize,
}

func runOptimize(ctx *cli.Context) error {
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Optimize()
}

var statsCommand = cli.Command{
	Name:   "stats",
	Usage:  "Print index statistics",
	Action: runStats,
}

func runStats(ctx *cli.Context) error {
	r, _, err := openReader(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	out := ctx.App.Writer
	fmt.Fprintf(out, "generation: %d\n", r.Generation())
	fmt.Fprintf(out, "docs: %d\n", r.NumDocs())
	fmt.Fprintf(out, "deleted docs: %d\n", r.MaxDoc()-r.NumDocs())
	fmt.Fprintf(out, "segments: %d\n", len(r.Leaves()))
	for _, leaf := range r.Leaves() {
		fmt.Fprintf(out, "  base=%d docs=%d max_doc=%d\n", leaf.Base, leaf.Reader.NumDocs(), leaf.Reader.MaxDoc())
	}
	fmt.Fprintf(out, "fields: %s\n", strings.Join(r.FieldNames(), ", "))
	return nil
}
