package dql

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zoobzio/dbml"
)

// Schema exports every registered entity as a DBML project. To-one
// associations become <name>_id columns referencing the target's id.
func (r *Registry) Schema() (*dbml.Project, error) {
	r.mu.RLock()
	entities := make([]*Entity, 0, len(r.order))
	known := make(map[string]*Entity, len(r.order))
	for _, name := range r.order {
		e := r.entities[name]
		entities = append(entities, e)
		known[name] = e
	}
	r.mu.RUnlock()

	return buildProject("sqb", entities, known)
}

// buildProject converts entity metadata into a DBML project. References are
// only emitted for targets present in known.
func buildProject(name string, entities []*Entity, known map[string]*Entity) (*dbml.Project, error) {
	project := dbml.NewProject(name).
		WithDatabaseType("PostgreSQL")

	for _, e := range entities {
		table, err := buildTable(e, known)
		if err != nil {
			return nil, fmt.Errorf("entity %q: %w", e.Name, err)
		}
		if table == nil {
			continue
		}
		project.AddTable(table)
	}

	if err := project.Validate(); err != nil {
		return nil, fmt.Errorf("generated DBML is invalid: %w", err)
	}
	return project, nil
}

func buildTable(e *Entity, known map[string]*Entity) (*dbml.Table, error) {
	table := dbml.NewTable(e.Table).
		WithSchema("public")

	columns := 0
	for _, f := range e.Metadata.Fields {
		name := fieldName(f)
		if name == "-" {
			continue
		}
		if _, ok := e.fields[name]; !ok {
			continue
		}

		sqlType := f.Tags[tagType]
		if sqlType == "" {
			sqlType = inferType(f.Type)
		}
		col := dbml.NewColumn(columnName(f, name), sqlType)

		if constraints, ok := f.Tags[tagConstraints]; ok {
			notNull, unique, primaryKey := parseConstraints(constraints)
			if primaryKey {
				col.WithPrimaryKey()
			}
			if unique {
				col.WithUnique()
			}
			if !notNull && !primaryKey {
				col.WithNull()
			}
		} else {
			col.WithNull()
		}

		table.AddColumn(col)
		columns++
	}

	if known != nil {
		for _, assoc := range sortedKeys(e.associations) {
			if e.collections[assoc] {
				continue
			}
			target, ok := known[e.associations[assoc]]
			if !ok {
				continue
			}
			col := dbml.NewColumn(assoc+"_id", "BIGINT")
			col.WithNull()
			col.WithRef(dbml.ManyToOne, "public", target.Table, "id")
			table.AddColumn(col)
			columns++
		}
	}

	if columns == 0 {
		return nil, nil
	}
	return table, nil
}

// parseConstraints parses a constraints tag such as "primary_key,not_null".
func parseConstraints(tag string) (notNull, unique, primaryKey bool) {
	for _, c := range strings.Split(tag, ",") {
		switch strings.TrimSpace(c) {
		case "unique":
			unique = true
		case "not_null":
			notNull = true
		case "primary_key":
			primaryKey = true
		}
	}
	return notNull, unique, primaryKey
}

// inferType maps Go types to column types.
func inferType(goType string) string {
	goType = strings.TrimPrefix(goType, "*")

	if strings.HasPrefix(goType, "[]") {
		elem := strings.TrimPrefix(goType, "[]")
		if elem == "byte" || elem == "uint8" {
			return "BYTEA"
		}
		return inferType(elem) + "[]"
	}

	switch goType {
	case "string":
		return "TEXT"
	case "int", "int32", "uint", "uint32":
		return "INTEGER"
	case "int64", "uint64":
		return "BIGINT"
	case "int8", "int16", "uint8", "uint16":
		return "SMALLINT"
	case "float32":
		return "REAL"
	case "float64":
		return "DOUBLE PRECISION"
	case "bool":
		return "BOOLEAN"
	case "time.Time":
		return "TIMESTAMPTZ"
	default:
		return "JSONB"
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
