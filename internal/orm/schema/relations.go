package schema

import "fmt"

// RelationKind is the tagged discriminator of a relation descriptor. The kind
// fully determines which join shape is legal for the relation.
type RelationKind int

const (
	BelongsTo RelationKind = iota
	HasOne
	HasMany
	BelongsToMany
)

// String returns the string representation of the relation kind.
func (k RelationKind) String() string {
	switch k {
	case BelongsTo:
		return "belongs_to"
	case HasOne:
		return "has_one"
	case HasMany:
		return "has_many"
	case BelongsToMany:
		return "belongs_to_many"
	default:
		return "unknown"
	}
}

// Plural reports whether the kind yields a collection.
func (k RelationKind) Plural() bool {
	return k == HasMany || k == BelongsToMany
}

// Relation describes one declared relation of an entity type. The target is
// held by name and resolved lazily through the owning registry.
type Relation struct {
	Name       string
	Kind       RelationKind
	TargetName string

	// ForeignKey and LocalKey hold the join columns. For BelongsTo the
	// foreign key lives on the owner row and the local key on the target;
	// for HasOne/HasMany it is the reverse. For BelongsToMany both point at
	// the pivot columns below.
	ForeignKey string
	LocalKey   string

	PivotTable      string
	PivotLocalKey   string // pivot column referencing the owner
	PivotForeignKey string // pivot column referencing the target

	owner *EntityType
}

// Target resolves the related entity type through the registry.
func (r *Relation) Target() (*EntityType, error) {
	t, ok := r.owner.registry.Lookup(r.TargetName)
	if !ok {
		return nil, fmt.Errorf("%w: relation %s.%s targets unregistered type %s",
			ErrUnknownType, r.owner.Name, r.Name, r.TargetName)
	}
	return t, nil
}

// Owner returns the entity type the relation is declared on.
func (r *Relation) Owner() *EntityType { return r.owner }

// RelationOption overrides a convention-derived key or pivot name.
type RelationOption func(*Relation)

// WithForeignKey overrides the foreign key column.
func WithForeignKey(column string) RelationOption {
	return func(r *Relation) { r.ForeignKey = column }
}

// WithLocalKey overrides the local key column.
func WithLocalKey(column string) RelationOption {
	return func(r *Relation) { r.LocalKey = column }
}

// WithPivot overrides the pivot table and its key columns. Empty strings keep
// the convention-derived values.
func WithPivot(table, localKey, foreignKey string) RelationOption {
	return func(r *Relation) {
		if table != "" {
			r.PivotTable = table
		}
		if localKey != "" {
			r.PivotLocalKey = localKey
		}
		if foreignKey != "" {
			r.PivotForeignKey = foreignKey
		}
	}
}

// BelongsTo declares an inverse one-to-one/many relation: the foreign key is
// on this type, referencing the target's primary key.
func (t *EntityType) BelongsTo(name, target string, opts ...RelationOption) *EntityType {
	r := &Relation{
		Name:       name,
		Kind:       BelongsTo,
		TargetName: target,
		ForeignKey: ForeignKeyName(target),
		LocalKey:   "id",
		owner:      t,
	}
	return t.addRelation(r, opts)
}

// HasOne declares a one-to-one relation: the foreign key is on the target,
// referencing this type's primary key.
func (t *EntityType) HasOne(name, target string, opts ...RelationOption) *EntityType {
	r := &Relation{
		Name:       name,
		Kind:       HasOne,
		TargetName: target,
		ForeignKey: ForeignKeyName(t.Name),
		LocalKey:   "id",
		owner:      t,
	}
	return t.addRelation(r, opts)
}

// HasMany declares a one-to-many relation: the foreign key is on the target,
// referencing this type's primary key.
func (t *EntityType) HasMany(name, target string, opts ...RelationOption) *EntityType {
	r := &Relation{
		Name:       name,
		Kind:       HasMany,
		TargetName: target,
		ForeignKey: ForeignKeyName(t.Name),
		LocalKey:   "id",
		owner:      t,
	}
	return t.addRelation(r, opts)
}

// BelongsToMany declares a many-to-many relation mediated by a pivot table.
func (t *EntityType) BelongsToMany(name, target string, opts ...RelationOption) *EntityType {
	r := &Relation{
		Name:            name,
		Kind:            BelongsToMany,
		TargetName:      target,
		LocalKey:        "id",
		ForeignKey:      "id",
		PivotTable:      PivotTableName(t.Name, target),
		PivotLocalKey:   ForeignKeyName(t.Name),
		PivotForeignKey: ForeignKeyName(target),
		owner:           t,
	}
	return t.addRelation(r, opts)
}

func (t *EntityType) addRelation(r *Relation, opts []RelationOption) *EntityType {
	for _, opt := range opts {
		opt(r)
	}
	if _, exists := t.relations[r.Name]; exists {
		panic(fmt.Sprintf("schema: relation %s already registered on %s", r.Name, t.Name))
	}
	t.relations[r.Name] = r
	return t
}
