package query

import (
	"context"
)

// Request is the normalized query-parameter bag controllers hand to Resolve.
type Request struct {
	Expand     []string          // dotted relation paths
	Search     string            // free-text keyword
	Searchable []string          // replaces the default searchable fields when non-empty
	Filter     map[string]string // field -> "op:value"
	Selectable []string          // explicit projection
	Includes   []string          // extra columns unioned into the default projection
	Sort       []string          // "column dir" terms

	Page     int
	Limit    int
	Paginate bool

	IsOption         bool
	SelectableOption []string // (value, label) columns for option mode
}

// Result is the uniform payload Resolve produces. Total is only meaningful
// when Paginated is set.
type Result struct {
	Data      any
	Total     int64
	Paginated bool
}

// PaginateOrOption dispatches to the option projection when isOption is set,
// else to pagination.
func (q *Builder) PaginateOrOption(ctx context.Context, page, limit int, isOption bool, optionColumns []string) (*Result, error) {
	if isOption {
		rows, err := q.Option(ctx, optionColumns...)
		if err != nil {
			return nil, err
		}
		return &Result{Data: rows}, nil
	}

	p, err := q.Paginate(ctx, page, limit)
	if err != nil {
		return nil, err
	}
	return &Result{Data: q.external(p.Data), Total: p.Total, Paginated: true}, nil
}

// Resolve is the orchestration entry point for list endpoints: it applies the
// request bag in fixed order (expand, search, filter, selects, sorts), then
// dispatches to option, pagination, or a plain list. Failures come back as a
// typed ResponseError: 404 with an empty data payload for missing rows, 500
// for everything else.
func (q *Builder) Resolve(ctx context.Context, req *Request) (*Result, *ResponseError) {
	q.Expand(req.Expand...).
		Search(req.Search, req.Searchable, req.Includes).
		Filter(req.Filter).
		Selects(req.Selectable, req.Includes...).
		Sorts(req.Sort)

	if req.Paginate || req.IsOption {
		res, err := q.PaginateOrOption(ctx, req.Page, req.Limit, req.IsOption, req.SelectableOption)
		if err != nil {
			return emptyResult(), WrapResponseError(err)
		}
		return res, nil
	}

	items, err := q.GetExternal(ctx)
	if err != nil {
		return emptyResult(), WrapResponseError(err)
	}
	return &Result{Data: items}, nil
}

func emptyResult() *Result {
	return &Result{Data: []map[string]any{}}
}
