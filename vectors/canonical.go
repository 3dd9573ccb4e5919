package vectors

import (
	"fmt"
	"strings"

	"github.com/poiesic/semdex/core"
)

// CanonicalText renders the text an entity's embedding is generated from.
// It depends only on the entity's content, so equal entities always render
// identically. Columns and indexes keep their declared order.
func CanonicalText(e core.Entity) string {
	var b strings.Builder
	base := e.Common()
	ref := e.Ref()

	fmt.Fprintf(&b, "%s: %s\n", typeLabel(ref.Type), ref.QualifiedName())
	writeField(&b, "Description", base.Description)
	writeField(&b, "Semantic description", base.SemanticDescription)

	switch v := e.(type) {
	case *core.Table:
		writeColumns(&b, v.Columns)
		if len(v.Indexes) > 0 {
			b.WriteString("Indexes:\n")
			for _, ix := range v.Indexes {
				fmt.Fprintf(&b, "- %s (%s)", ix.Name, strings.Join(ix.Columns, ", "))
				if ix.IsPrimary {
					b.WriteString(" primary")
				}
				if ix.IsUnique {
					b.WriteString(" unique")
				}
				b.WriteByte('\n')
			}
		}
		writeField(&b, "Details", v.Details)
	case *core.View:
		writeColumns(&b, v.Columns)
		writeField(&b, "Definition", v.Definition)
	case *core.StoredProcedure:
		writeField(&b, "Parameters", v.Parameters)
		writeField(&b, "Definition", v.Definition)
	}
	return strings.TrimRight(b.String(), "\n")
}

func typeLabel(t core.EntityType) string {
	switch t {
	case core.EntityTypeTable:
		return "Table"
	case core.EntityTypeView:
		return "View"
	case core.EntityTypeStoredProcedure:
		return "Stored procedure"
	}
	return string(t)
}

func writeField(b *strings.Builder, label, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, value)
}

func writeColumns(b *strings.Builder, cols []core.Column) {
	if len(cols) == 0 {
		return
	}
	b.WriteString("Columns:\n")
	for _, c := range cols {
		fmt.Fprintf(b, "- %s %s", c.Name, c.Type)
		if c.MaxLength > 0 {
			fmt.Fprintf(b, "(%d)", c.MaxLength)
		}
		if c.IsPrimaryKey {
			b.WriteString(" primary key")
		}
		if c.IsIdentity {
			b.WriteString(" identity")
		}
		if c.IsNullable {
			b.WriteString(" null")
		}
		if c.ReferencedTable != "" {
			fmt.Fprintf(b, " references %s", c.ReferencedTable)
			if c.ReferencedColumn != "" {
				fmt.Fprintf(b, "(%s)", c.ReferencedColumn)
			}
		}
		if d := strings.TrimSpace(c.Description); d != "" {
			fmt.Fprintf(b, ": %s", d)
		}
		b.WriteByte('\n')
	}
}

// CompositeKey identifies an entity's vector across models:
// {model}_{type}_{schema}_{name}.
func CompositeKey(modelName string, ref core.EntityRef) string {
	return fmt.Sprintf("%s_%s_%s_%s", modelName, ref.Type, ref.Schema, ref.Name)
}
