package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/crd"
	"github.com/kailas-cloud/crd/cql"
	"github.com/kailas-cloud/crd/envelope"
	"github.com/kailas-cloud/crd/record"
)

type searchFlags struct {
	where    []string
	not      []string
	or       bool
	query    string
	typ      string
	libID    string
	libGroup string
	sort     string
	order    string
	since    string
	until    string
	position int
	limit    int
	pages    int
}

func newSearchCmd(g *globalFlags) *cobra.Command {
	f := &searchFlags{}
	cmd := &cobra.Command{
		Use:   "search [term...]",
		Short: "Search records",
		Long: `Search the database.

Positional terms match anywhere in a record. Each --where takes one
clause "index relation terms", e.g. --where 'question all 地図 古地図'.
Clauses are joined with and, or with or when --or is set. Each --not
clause is excluded from the result.`,
		Example: `  crd search 浮世絵
  crd search --type manual --where 'theme any 郷土 地域'
  crd search --where 'question = 猫' --not 'answer = 犬' --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request(args)
			if err != nil {
				return err
			}
			client, err := g.newClient()
			if err != nil {
				return err
			}
			pages, err := client.SearchPages(cmd.Context(), req, f.pages)
			if err != nil {
				return err
			}
			if g.json {
				return writeJSON(cmd.OutOrStdout(), pages)
			}
			return writeText(cmd.OutOrStdout(), pages)
		},
	}

	f.register(cmd)
	return cmd
}

// register adds the query flags shared by search and url.
func (f *searchFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringArrayVarP(&f.where, "where", "w", nil, "clause 'index relation terms' (repeatable)")
	fl.StringArrayVar(&f.not, "not", nil, "exclude records matching clause (repeatable)")
	fl.BoolVar(&f.or, "or", false, "join terms and --where clauses with or")
	fl.StringVarP(&f.query, "query", "q", "", "raw query, overrides terms and clauses")
	fl.StringVarP(&f.typ, "type", "t", string(crd.TypeAll), "record type: all, reference, manual, collection, profile")
	fl.StringVar(&f.libID, "lib-id", "", "restrict to one library")
	fl.StringVar(&f.libGroup, "lib-group", "", "restrict to a library group")
	fl.StringVar(&f.sort, "sort", "", "sort key, e.g. reg-date")
	fl.StringVar(&f.order, "order", "", "sort order: asc or desc")
	fl.StringVar(&f.since, "since", "", "registered on or after date (YYYYMMDD or YYYY-MM-DD)")
	fl.StringVar(&f.until, "until", "", "registered on or before date (YYYYMMDD or YYYY-MM-DD)")
	fl.IntVar(&f.position, "position", 1, "1-based offset of the first record")
	fl.IntVarP(&f.limit, "limit", "n", 20, "records per page")
	fl.IntVar(&f.pages, "pages", 1, "number of consecutive pages to fetch")
}

// request builds the search request from flags and positional terms.
func (f *searchFlags) request(args []string) (*crd.Request, error) {
	if f.pages < 1 {
		return nil, fmt.Errorf("%w: --pages must be at least 1", errUsage)
	}

	req := &crd.Request{}
	if f.query != "" {
		req.Query = f.query
	} else {
		expr, err := f.expression(args)
		if err != nil {
			return nil, err
		}
		if expr != nil {
			req.Query = cql.Serialize(expr)
		}
	}

	req.Type = crd.SearchType(f.typ)
	req.LibID = f.libID
	req.LibGroup = crd.LibGroup(f.libGroup)
	req.Sort = f.sort
	req.SortOrder = crd.SortOrder(f.order)
	req.Position = f.position
	req.Limit = f.limit

	var err error
	if req.RegDateFrom, err = dateFlag("since", f.since); err != nil {
		return nil, err
	}
	if req.RegDateTo, err = dateFlag("until", f.until); err != nil {
		return nil, err
	}
	return req, req.Validate()
}

// expression folds terms and clauses into one query expression. It returns
// nil when nothing was given.
func (f *searchFlags) expression(args []string) (cql.Expression, error) {
	var parts []cql.Expression
	if len(args) > 0 {
		terms := make([]string, len(args))
		for i, a := range args {
			terms[i] = cql.Phrase(a)
		}
		expr, err := cql.Simple(terms...)
		if err != nil {
			return nil, err
		}
		parts = append(parts, expr)
	}
	for _, w := range f.where {
		expr, err := cql.ParseClause(w)
		if err != nil {
			return nil, fmt.Errorf("--where %q: %w", w, err)
		}
		parts = append(parts, expr)
	}

	joiner := cql.BooleanAnd
	if f.or {
		joiner = cql.BooleanOr
	}
	expr := cql.Fold(joiner, parts...)

	for _, n := range f.not {
		clause, err := cql.ParseClause(n)
		if err != nil {
			return nil, fmt.Errorf("--not %q: %w", n, err)
		}
		if expr == nil {
			return nil, fmt.Errorf("%w: --not needs a term or --where to exclude from", errUsage)
		}
		expr = cql.Not(expr, clause)
	}
	return expr, nil
}

func dateFlag(name, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{"20060102", time.DateOnly} {
		if t, err := time.ParseInLocation(layout, v, record.JST); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: --%s %q: date must be YYYYMMDD or YYYY-MM-DD", errUsage, name, v)
}

type jsonItem struct {
	Kind   string      `json:"kind"`
	Record record.Item `json:"record"`
}

type jsonOutput struct {
	HitNum   uint32     `json:"hit_num"`
	Position uint32     `json:"position"`
	Count    int        `json:"count"`
	Items    []jsonItem `json:"items"`
}

func writeJSON(w io.Writer, pages []*envelope.Page) error {
	out := jsonOutput{Items: []jsonItem{}}
	if len(pages) > 0 {
		out.HitNum = pages[0].HitNum
		out.Position = pages[0].Position
	}
	for _, p := range pages {
		for it := range p.All() {
			out.Items = append(out.Items, jsonItem{Kind: it.Kind().String(), Record: it})
		}
	}
	out.Count = len(out.Items)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeText(w io.Writer, pages []*envelope.Page) error {
	if len(pages) == 0 || pages[0].HitNum == 0 {
		_, err := fmt.Fprintln(w, "no records found")
		return err
	}
	fmt.Fprintf(w, "%d hits\n\n", pages[0].HitNum)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tTITLE\tURL")
	for _, p := range pages {
		for it := range p.All() {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", it.Kind(), title(it), link(it))
		}
	}
	return tw.Flush()
}

const maxTitle = 40

func title(it record.Item) string {
	var s string
	switch v := it.(type) {
	case *record.Reference:
		s = v.Question
	case *record.Manual:
		s = v.Theme
	case *record.Collection:
		s = v.ColName
	case *record.Profile:
		s = v.LibName
	}
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > maxTitle {
		s = string(r[:maxTitle-1]) + "…"
	}
	return s
}

func link(it record.Item) string {
	switch v := it.(type) {
	case *record.Reference:
		return v.URL
	case *record.Manual:
		return v.URL
	case *record.Collection:
		return v.URL
	case *record.Profile:
		return v.URL
	}
	return ""
}
