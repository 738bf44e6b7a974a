package orm

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// Collection is a materialized model backed by one SQLite table.
type Collection struct {
	identity string
	globalID string
	schema   schema
	db       *sql.DB
}

// Identity returns the identity the model was materialized under.
func (c *Collection) Identity() string { return c.identity }

// GlobalID returns the model's global identifier.
func (c *Collection) GlobalID() string { return c.globalID }

// Table returns the backing table name.
func (c *Collection) Table() string { return c.schema.Table }

// Columns returns the table's column names, excluding id.
func (c *Collection) Columns() []string {
	out := make([]string, 0, len(c.schema.Columns))
	for _, col := range c.schema.Columns {
		out = append(out, col.Name)
	}
	return out
}

// Insert stores record and returns its id. Unknown fields are rejected.
func (c *Collection) Insert(ctx context.Context, record map[string]any) (int64, error) {
	if len(record) == 0 {
		res, err := c.db.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", quote(c.schema.Table)))
		if err != nil {
			return 0, fmt.Errorf("insert into %s: %w", c.identity, err)
		}
		return res.LastInsertId()
	}

	fields, err := c.fields(record)
	if err != nil {
		return 0, err
	}

	cols := make([]string, len(fields))
	marks := make([]string, len(fields))
	args := make([]any, len(fields))
	for i, field := range fields {
		cols[i] = quote(field)
		marks[i] = "?"
		args[i] = record[field]
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(c.schema.Table), strings.Join(cols, ", "), strings.Join(marks, ", "))
	res, err := c.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", c.identity, err)
	}
	return res.LastInsertId()
}

// Count returns the number of stored records.
func (c *Collection) Count(ctx context.Context) (int64, error) {
	var n int64
	row := c.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", quote(c.schema.Table)))
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", c.identity, err)
	}
	return n, nil
}

// Find returns the records whose fields equal every value in where, ordered by id.
func (c *Collection) Find(ctx context.Context, where map[string]any) ([]map[string]any, error) {
	fields, err := c.fields(where)
	if err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf("SELECT * FROM %s", quote(c.schema.Table))
	args := make([]any, 0, len(fields))
	if len(fields) > 0 {
		conds := make([]string, len(fields))
		for i, field := range fields {
			conds[i] = quote(field) + " = ?"
			args = append(args, where[field])
		}
		stmt += " WHERE " + strings.Join(conds, " AND ")
	}
	stmt += " ORDER BY id"

	rows, err := c.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", c.identity, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("find in %s: %w", c.identity, err)
		}
		record := make(map[string]any, len(names))
		for i, name := range names {
			record[name] = values[i]
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func (c *Collection) fields(record map[string]any) ([]string, error) {
	fields := make([]string, 0, len(record))
	for field := range record {
		if !c.schema.has(field) {
			return nil, fmt.Errorf("model %s has no attribute %q", c.identity, field)
		}
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields, nil
}
