package core

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ContentHash returns a deterministic BLAKE2b-256 digest of text, hex encoded.
// Identical text always produces an identical hash.
func ContentHash(text string) string {
	h, _ := blake2b.New(32, nil) // 32 bytes = 256 bits, unkeyed
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// EntityType identifies the variant of a semantic model entity.
type EntityType string

const (
	// EntityTypeTable is a database table.
	EntityTypeTable EntityType = "table"
	// EntityTypeView is a database view.
	EntityTypeView EntityType = "view"
	// EntityTypeStoredProcedure is a stored procedure.
	EntityTypeStoredProcedure EntityType = "storedprocedure"
)

// EntityTypes lists every entity variant in persistence order.
var EntityTypes = []EntityType{EntityTypeTable, EntityTypeView, EntityTypeStoredProcedure}

// Folder returns the directory name entities of this type are persisted under.
func (t EntityType) Folder() string {
	switch t {
	case EntityTypeTable:
		return "tables"
	case EntityTypeView:
		return "views"
	case EntityTypeStoredProcedure:
		return "storedprocedures"
	}
	return ""
}

// ParseEntityType accepts singular, plural and folder spellings, case-insensitively.
func ParseEntityType(s string) (EntityType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "table", "tables":
		return EntityTypeTable, nil
	case "view", "views":
		return EntityTypeView, nil
	case "storedprocedure", "storedprocedures", "stored_procedure", "procedure", "procedures", "sp":
		return EntityTypeStoredProcedure, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEntityType, s)
}

// EntityRef is the identity of an entity within a model: (type, schema, name).
type EntityRef struct {
	Type   EntityType
	Schema string
	Name   string
}

// String renders the ref as "type:schema.name".
func (r EntityRef) String() string {
	return string(r.Type) + ":" + r.Schema + "." + r.Name
}

// QualifiedName returns "schema.name".
func (r EntityRef) QualifiedName() string {
	return r.Schema + "." + r.Name
}

// collides reports whether r and o would share a persisted key. Document ids
// join schema and name with an underscore, so "dbo_x"."y" and "dbo"."x_y"
// collide.
func (r EntityRef) collides(o EntityRef) bool {
	return r.Type == o.Type && r.Schema+"_"+r.Name == o.Schema+"_"+o.Name
}

// Less orders refs by type, schema, then name.
func (r EntityRef) Less(o EntityRef) bool {
	if r.Type != o.Type {
		return typeOrder(r.Type) < typeOrder(o.Type)
	}
	if r.Schema != o.Schema {
		return r.Schema < o.Schema
	}
	return r.Name < o.Name
}

func typeOrder(t EntityType) int {
	for i, et := range EntityTypes {
		if et == t {
			return i
		}
	}
	return len(EntityTypes)
}

// Entity is implemented by *Table, *View and *StoredProcedure.
type Entity interface {
	// Ref returns the entity's identity within its model.
	Ref() EntityRef
	// Common returns the fields shared by every entity variant.
	Common() *EntityBase
}

// EntityBase holds the fields shared by all entity variants.
type EntityBase struct {
	Schema                     string     `json:"schema"`
	Name                       string     `json:"name"`
	Description                string     `json:"description,omitempty"`
	SemanticDescription        string     `json:"semanticDescription,omitempty"`
	SemanticDescriptionUpdated *time.Time `json:"semanticDescriptionLastUpdate,omitempty"`
	NotUsed                    bool       `json:"notUsed,omitempty"`
	NotUsedReason              string     `json:"notUsedReason,omitempty"`
}

// Common returns the shared fields.
func (b *EntityBase) Common() *EntityBase { return b }

// Column describes a table or view column.
type Column struct {
	Name             string `json:"name"`
	Type             string `json:"type"`
	Description      string `json:"description,omitempty"`
	IsPrimaryKey     bool   `json:"isPrimaryKey,omitempty"`
	IsNullable       bool   `json:"isNullable,omitempty"`
	IsIdentity       bool   `json:"isIdentity,omitempty"`
	MaxLength        int    `json:"maxLength,omitempty"`
	ReferencedTable  string `json:"referencedTable,omitempty"`
	ReferencedColumn string `json:"referencedColumn,omitempty"`
}

// Index describes a table index.
type Index struct {
	Name      string   `json:"name"`
	Type      string   `json:"type,omitempty"`
	Columns   []string `json:"columns"`
	IsUnique  bool     `json:"isUnique,omitempty"`
	IsPrimary bool     `json:"isPrimaryKey,omitempty"`
}

// Table is a database table.
type Table struct {
	EntityBase
	Columns []Column `json:"columns"`
	Indexes []Index  `json:"indexes,omitempty"`
	Details string   `json:"details,omitempty"`
}

// Ref returns the table's identity.
func (t *Table) Ref() EntityRef {
	return EntityRef{Type: EntityTypeTable, Schema: t.Schema, Name: t.Name}
}

// View is a database view.
type View struct {
	EntityBase
	Columns    []Column `json:"columns"`
	Definition string   `json:"definition,omitempty"`
}

// Ref returns the view's identity.
func (v *View) Ref() EntityRef {
	return EntityRef{Type: EntityTypeView, Schema: v.Schema, Name: v.Name}
}

// StoredProcedure is a stored procedure.
type StoredProcedure struct {
	EntityBase
	Parameters string `json:"parameters,omitempty"`
	Definition string `json:"definition"`
}

// Ref returns the procedure's identity.
func (p *StoredProcedure) Ref() EntityRef {
	return EntityRef{Type: EntityTypeStoredProcedure, Schema: p.Schema, Name: p.Name}
}

// NewEntity returns an empty entity of the given type, ready to be decoded into.
func NewEntity(t EntityType) (Entity, error) {
	switch t {
	case EntityTypeTable:
		return &Table{}, nil
	case EntityTypeView:
		return &View{}, nil
	case EntityTypeStoredProcedure:
		return &StoredProcedure{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidEntityType, t)
}
