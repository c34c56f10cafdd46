// Package schema defines the metadata registry for the Fennec ORM: per-entity
// field descriptors, relation descriptors, computed attributes, named scopes
// and formatters, and global lifecycle hooks. Metadata is populated once at
// entity-type definition time and is read-only afterwards.
package schema

import (
	"fmt"
	"sort"
)

// CastKind selects the bidirectional value conversion applied to a field
// between storage and in-memory representation.
type CastKind int

const (
	CastNone CastKind = iota
	CastString
	CastNumber
	CastBool
	CastDate
	CastJSON
)

// String returns the string representation of the cast kind.
func (c CastKind) String() string {
	switch c {
	case CastString:
		return "string"
	case CastNumber:
		return "number"
	case CastBool:
		return "boolean"
	case CastDate:
		return "date"
	case CastJSON:
		return "json"
	default:
		return "none"
	}
}

// Field holds the per-column metadata declared on an entity type.
type Field struct {
	Name       string
	Cast       CastKind
	Fillable   bool // settable via mass-assignment
	Selectable bool // included in the default projection
	Searchable bool // included in free-text search
	Hidden     bool // excluded from the external representation
}

// AttributeFunc computes a derived property from the entity's field values.
// The getter returns the in-memory value of a field by column name.
type AttributeFunc func(get func(string) any) any

// Formatter reshapes one external-representation item.
type Formatter func(item map[string]any) map[string]any

// EntityType is the complete, immutable-after-definition descriptor of a
// named, schema-bound record type.
type EntityType struct {
	Name             string
	Table            string
	PrimaryKey       string
	SoftDeleteColumn string // empty when the type does not soft-delete

	fields     map[string]*Field
	fieldOrder []string
	relations  map[string]*Relation
	attributes map[string]AttributeFunc
	attrOrder  []string
	formatters map[string]Formatter
	scopes     map[string]*Scope
	hooks      map[HookEvent][]HookFunc

	registry *Registry
}

func newEntityType(name string, reg *Registry) *EntityType {
	t := &EntityType{
		Name:       name,
		Table:      TableName(name),
		PrimaryKey: "id",
		fields:     make(map[string]*Field),
		relations:  make(map[string]*Relation),
		attributes: make(map[string]AttributeFunc),
		formatters: make(map[string]Formatter),
		scopes:     make(map[string]*Scope),
		hooks:      make(map[HookEvent][]HookFunc),
		registry:   reg,
	}

	// Conventional columns every entity carries. deleted_at is merged in by
	// SoftDeletes.
	t.addField(&Field{Name: "id", Cast: CastNumber, Selectable: true})
	t.addField(&Field{Name: "created_at", Cast: CastDate, Selectable: true})
	t.addField(&Field{Name: "updated_at", Cast: CastDate, Selectable: true})
	return t
}

// FieldOption toggles a flag or cast on a field declaration.
type FieldOption func(*Field)

// Fillable marks the field as settable via mass-assignment.
func Fillable() FieldOption { return func(f *Field) { f.Fillable = true } }

// Selectable includes the field in the default projection.
func Selectable() FieldOption { return func(f *Field) { f.Selectable = true } }

// Searchable includes the field in free-text search.
func Searchable() FieldOption { return func(f *Field) { f.Searchable = true } }

// Hidden excludes the field from the external representation.
func Hidden() FieldOption { return func(f *Field) { f.Hidden = true } }

// Cast sets the field's cast kind.
func Cast(kind CastKind) FieldOption { return func(f *Field) { f.Cast = kind } }

// Field declares a column on the entity type. Declaring a name that already
// exists (including the merged-in defaults) replaces its descriptor.
func (t *EntityType) Field(name string, opts ...FieldOption) *EntityType {
	f := &Field{Name: name}
	for _, opt := range opts {
		opt(f)
	}
	t.addField(f)
	return t
}

func (t *EntityType) addField(f *Field) {
	if _, exists := t.fields[f.Name]; !exists {
		t.fieldOrder = append(t.fieldOrder, f.Name)
	}
	t.fields[f.Name] = f
}

// TableName overrides the derived table name.
func (t *EntityType) TableName(name string) *EntityType {
	t.Table = name
	return t
}

// PrimaryKeyColumn overrides the primary key column name.
func (t *EntityType) PrimaryKeyColumn(name string) *EntityType {
	t.PrimaryKey = name
	return t
}

// SoftDeletes enables soft deletion. With no argument the column defaults to
// deleted_at; an explicit column name overrides it.
func (t *EntityType) SoftDeletes(column ...string) *EntityType {
	col := "deleted_at"
	if len(column) > 0 && column[0] != "" {
		col = column[0]
	}
	t.SoftDeleteColumn = col
	t.addField(&Field{Name: col, Cast: CastDate})
	return t
}

// Attribute registers a computed property materialized lazily on access.
func (t *EntityType) Attribute(name string, fn AttributeFunc) *EntityType {
	if _, exists := t.attributes[name]; !exists {
		t.attrOrder = append(t.attrOrder, name)
	}
	t.attributes[name] = fn
	return t
}

// Formatter registers a named result formatter.
func (t *EntityType) Formatter(name string, fn Formatter) *EntityType {
	t.formatters[name] = fn
	return t
}

// LookupField returns the descriptor for a declared column.
func (t *EntityType) LookupField(name string) (*Field, bool) {
	f, ok := t.fields[name]
	return f, ok
}

// FieldNames returns all declared column names in declaration order.
func (t *EntityType) FieldNames() []string {
	out := make([]string, len(t.fieldOrder))
	copy(out, t.fieldOrder)
	return out
}

// Columns returns all declared column names in sorted order, for
// deterministic RETURNING clauses.
func (t *EntityType) Columns() []string {
	out := make([]string, len(t.fieldOrder))
	copy(out, t.fieldOrder)
	sort.Strings(out)
	return out
}

// FillableFields returns the column names flagged fillable. The view is
// recomputed on each call and reflects all registrations made so far.
func (t *EntityType) FillableFields() []string {
	return t.fieldsWhere(func(f *Field) bool { return f.Fillable })
}

// SelectableFields returns the column names flagged selectable.
func (t *EntityType) SelectableFields() []string {
	return t.fieldsWhere(func(f *Field) bool { return f.Selectable })
}

// SearchableFields returns the column names flagged searchable.
func (t *EntityType) SearchableFields() []string {
	return t.fieldsWhere(func(f *Field) bool { return f.Searchable })
}

// HiddenFields returns the column names flagged hidden.
func (t *EntityType) HiddenFields() []string {
	return t.fieldsWhere(func(f *Field) bool { return f.Hidden })
}

func (t *EntityType) fieldsWhere(pred func(*Field) bool) []string {
	var out []string
	for _, name := range t.fieldOrder {
		if pred(t.fields[name]) {
			out = append(out, name)
		}
	}
	return out
}

// AttributeNames returns the computed attribute names in declaration order.
func (t *EntityType) AttributeNames() []string {
	out := make([]string, len(t.attrOrder))
	copy(out, t.attrOrder)
	return out
}

// LookupAttribute returns a computed attribute function by name.
func (t *EntityType) LookupAttribute(name string) (AttributeFunc, bool) {
	fn, ok := t.attributes[name]
	return fn, ok
}

// LookupFormatter returns a named formatter, or ErrUnknownFormatter.
func (t *EntityType) LookupFormatter(name string) (Formatter, error) {
	fn, ok := t.formatters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownFormatter, t.Name, name)
	}
	return fn, nil
}

// LookupRelation returns the relation descriptor registered under name, or
// ErrUnknownRelation. Relation operations fail fast on unregistered names.
func (t *EntityType) LookupRelation(name string) (*Relation, error) {
	rel, ok := t.relations[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownRelation, t.Name, name)
	}
	return rel, nil
}

// RelationNames returns the registered relation names.
func (t *EntityType) RelationNames() []string {
	out := make([]string, 0, len(t.relations))
	for name := range t.relations {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Registry resolves entity types by name. Relation targets are stored as
// names and looked up lazily through the registry, which breaks reference
// cycles between mutually related entity types.
func (t *EntityType) Registry() *Registry {
	return t.registry
}
