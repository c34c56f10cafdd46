package schema

// ScopeMode distinguishes scopes that apply automatically from scopes that
// must be invoked explicitly.
type ScopeMode int

const (
	// ScopeInternal scopes run only when invoked by name on a query.
	ScopeInternal ScopeMode = iota
	// ScopeGlobal scopes run automatically on every query against the type
	// and can be suppressed individually by name.
	ScopeGlobal
)

// QueryOps is the narrow query surface a scope function can drive. The
// extended query builder adapts itself to this interface, which keeps scope
// definitions in model files free of a query-package dependency.
type QueryOps interface {
	Where(column, operator string, value any)
	OrWhere(column, operator string, value any)
	WhereIn(column string, values []any)
	WhereNull(column string)
	WhereNotNull(column string)
	OrderBy(column, direction string)
	Limit(n int)
}

// ScopeFunc is a named, reusable query-modifying function.
type ScopeFunc func(q QueryOps, args ...any)

// Scope pairs a scope function with its mode.
type Scope struct {
	Name  string
	Mode  ScopeMode
	Apply ScopeFunc
}

// Scope registers an internal-mode scope on the entity type.
func (t *EntityType) Scope(name string, fn ScopeFunc) *EntityType {
	t.scopes[name] = &Scope{Name: name, Mode: ScopeInternal, Apply: fn}
	return t
}

// GlobalScope registers a global-mode scope on the entity type.
func (t *EntityType) GlobalScope(name string, fn ScopeFunc) *EntityType {
	t.scopes[name] = &Scope{Name: name, Mode: ScopeGlobal, Apply: fn}
	return t
}

// LookupScope returns a registered scope by name.
func (t *EntityType) LookupScope(name string) (*Scope, bool) {
	s, ok := t.scopes[name]
	return s, ok
}

// GlobalScopes returns all global-mode scopes, excluding the named ones.
func (t *EntityType) GlobalScopes(exclude map[string]bool) []*Scope {
	var out []*Scope
	for _, s := range t.scopes {
		if s.Mode == ScopeGlobal && !exclude[s.Name] {
			out = append(out, s)
		}
	}
	return out
}
