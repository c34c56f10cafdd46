package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/fennec-api/fennec/internal/orm/query"
)

// parseListRequest normalizes list-endpoint query parameters into the
// resolver's request bag. Filters arrive as filter[field]=op:value pairs.
func parseListRequest(r *http.Request) *query.Request {
	values := r.URL.Query()

	req := &query.Request{
		Expand:           splitCSV(values.Get("expand")),
		Search:           values.Get("search"),
		Searchable:       splitCSV(values.Get("searchable")),
		Filter:           make(map[string]string),
		Selectable:       splitCSV(values.Get("selectable")),
		Includes:         splitCSV(values.Get("includes")),
		Sort:             splitCSV(values.Get("sort")),
		Page:             atoiDefault(values.Get("page"), 1),
		Limit:            atoiDefault(values.Get("limit"), 10),
		Paginate:         truthyParam(values.Get("paginate")),
		IsOption:         truthyParam(values.Get("is_option")),
		SelectableOption: splitCSV(values.Get("selectable_option")),
	}

	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		if field, ok := filterField(key); ok {
			req.Filter[field] = vals[0]
		}
	}
	return req
}

func filterField(key string) (string, bool) {
	if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") {
		return "", false
	}
	field := key[len("filter[") : len(key)-1]
	return field, field != ""
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func atoiDefault(value string, fallback int) int {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func truthyParam(value string) bool {
	switch strings.ToLower(value) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
