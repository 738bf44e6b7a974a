package orm

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/alexisbeaulieu97/bulkhead/internal/bundle"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validTable reports whether identity can name a quoted table. Namespaces come
// from location path segments, so hyphens and dots are allowed.
func validTable(identity string) bool {
	if strings.TrimSpace(identity) == "" || strings.ContainsRune(identity, '"') {
		return false
	}
	return !strings.ContainsFunc(identity, unicode.IsControl)
}

// column is a table column derived from a model attribute.
type column struct {
	Name string
	Type string
}

// schema is the table layout of one model.
type schema struct {
	Table   string
	Columns []column
}

func (s schema) has(name string) bool {
	if name == "id" {
		return true
	}
	for _, c := range s.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// schemaFor derives the table for a model definition. Scalar attributes
// become typed columns, "model" relations a foreign key column and
// "collection" relations nothing.
func schemaFor(identity string, def bundle.Definition) (schema, error) {
	if !validTable(identity) {
		return schema{}, fmt.Errorf("model identity %q is not a valid table name", identity)
	}

	attrs, _ := def["attributes"].(map[string]any)
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := schema{Table: identity}
	for _, name := range names {
		if name == "id" {
			continue
		}
		if !identifierPattern.MatchString(name) {
			return schema{}, fmt.Errorf("model %q: attribute %q is not a valid column name", identity, name)
		}

		switch attr := attrs[name].(type) {
		case string:
			out.Columns = append(out.Columns, column{Name: name, Type: sqlType(attr)})
		case map[string]any:
			if _, ok := attr["collection"]; ok {
				continue
			}
			if _, ok := attr["model"]; ok {
				out.Columns = append(out.Columns, column{Name: name + "_id", Type: "INTEGER"})
				continue
			}
			typ, _ := attr["type"].(string)
			out.Columns = append(out.Columns, column{Name: name, Type: sqlType(typ)})
		default:
			out.Columns = append(out.Columns, column{Name: name, Type: "TEXT"})
		}
	}
	return out, nil
}

func sqlType(attrType string) string {
	switch strings.ToLower(attrType) {
	case "integer", "int", "boolean", "bool":
		return "INTEGER"
	case "number", "float", "double":
		return "REAL"
	case "binary":
		return "BLOB"
	default:
		return "TEXT"
	}
}

func quote(identifier string) string {
	return `"` + identifier + `"`
}

// migrate creates the table when missing and adds any column it lacks.
func migrate(ctx context.Context, db *sql.DB, s schema) error {
	defs := []string{"id INTEGER PRIMARY KEY AUTOINCREMENT"}
	for _, c := range s.Columns {
		defs = append(defs, quote(c.Name)+" "+c.Type)
	}
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(s.Table), strings.Join(defs, ", "))
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", s.Table, err)
	}

	existing, err := tableColumns(ctx, db, s.Table)
	if err != nil {
		return err
	}
	for _, c := range s.Columns {
		if existing[c.Name] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quote(s.Table), quote(c.Name), c.Type)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("add column %s.%s: %w", s.Table, c.Name, err)
		}
	}
	return nil
}

func tableColumns(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, fmt.Errorf("inspect table %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("inspect table %s: %w", table, err)
		}
		out[name] = true
	}
	return out, rows.Err()
}
