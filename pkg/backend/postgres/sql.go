package postgres

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/studypet-hub/studypet-hub/pkg/backend"
)

// ══════════════════════════════════════════════════════════════════════════════
// SQL RENDERING
// ══════════════════════════════════════════════════════════════════════════════

// identifierPattern matches the snake_case identifiers the schema uses.
// Everything interpolated into SQL text (tables, columns, procedure and
// argument names) must match; values always travel as bind parameters.
var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func validIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("postgres: invalid identifier %q", name)
	}
	return nil
}

// columnList validates and normalizes a comma-separated column list.
func columnList(columns string) (string, error) {
	columns = strings.TrimSpace(columns)
	if columns == "" || columns == "*" {
		return "*", nil
	}

	parts := strings.Split(columns, ",")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if err := validIdentifier(p); err != nil {
			return "", err
		}
		parts[i] = p
	}
	return strings.Join(parts, ", "), nil
}

var sqlOps = map[backend.Op]string{
	backend.OpEq:  "=",
	backend.OpNeq: "<>",
	backend.OpGt:  ">",
	backend.OpGte: ">=",
	backend.OpLt:  "<",
	backend.OpLte: "<=",
}

// whereClause renders the filters as a WHERE clause. Placeholders start at
// $argOffset+1 so writes can number their SET parameters first.
func whereClause(filters []backend.Filter, argOffset int) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}

	var sb strings.Builder
	var args []any
	sb.WriteString(" WHERE ")

	for i, f := range filters {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		if err := validIdentifier(f.Column); err != nil {
			return "", nil, err
		}

		switch f.Op {
		case backend.OpIs:
			sb.WriteString(f.Column)
			sb.WriteString(" IS NULL")

		case backend.OpIn:
			values, ok := f.Value.([]any)
			if !ok {
				return "", nil, fmt.Errorf("postgres: in filter on %s wants a value slice", f.Column)
			}
			if len(values) == 0 {
				// An empty set matches nothing, same as the HTTP adapter.
				sb.WriteString("false")
				continue
			}
			sb.WriteString(f.Column)
			sb.WriteString(" IN (")
			for j, v := range values {
				if j > 0 {
					sb.WriteString(", ")
				}
				args = append(args, v)
				fmt.Fprintf(&sb, "$%d", argOffset+len(args))
			}
			sb.WriteString(")")

		default:
			op, ok := sqlOps[f.Op]
			if !ok {
				return "", nil, fmt.Errorf("postgres: unsupported filter operator %q", f.Op)
			}
			args = append(args, f.Value)
			fmt.Fprintf(&sb, "%s %s $%d", f.Column, op, argOffset+len(args))
		}
	}

	return sb.String(), args, nil
}

// orderClause renders the sort keys.
func orderClause(orders []backend.Order) (string, error) {
	if len(orders) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(orders))
	for _, o := range orders {
		if err := validIdentifier(o.Column); err != nil {
			return "", err
		}
		if o.Desc {
			keys = append(keys, o.Column+" DESC")
		} else {
			keys = append(keys, o.Column+" ASC")
		}
	}
	return " ORDER BY " + strings.Join(keys, ", "), nil
}

// renderSelect builds a query returning the matching rows as one JSON array,
// the same shape the HTTP adapter receives, so both decode identically.
func renderSelect(q backend.Query) (string, []any, error) {
	if err := validIdentifier(q.Table); err != nil {
		return "", nil, err
	}
	cols, err := columnList(q.Columns)
	if err != nil {
		return "", nil, err
	}
	where, args, err := whereClause(q.Filters, 0)
	if err != nil {
		return "", nil, err
	}
	order, err := orderClause(q.Orders)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", cols, q.Table)
	sb.WriteString(where)
	sb.WriteString(order)
	if q.LimitN > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.LimitN)
	}
	if q.OffsetN > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", q.OffsetN)
	}

	sql := fmt.Sprintf("SELECT coalesce(jsonb_agg(to_jsonb(t)), '[]'::jsonb) FROM (%s) t", sb.String())
	return sql, args, nil
}

// renderCount builds an exact count of the filtered set. Pagination does not
// narrow the count, matching what the HTTP adapter reports.
func renderCount(q backend.Query) (string, []any, error) {
	if err := validIdentifier(q.Table); err != nil {
		return "", nil, err
	}
	where, args, err := whereClause(q.Filters, 0)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT count(*) FROM %s", q.Table) + where, args, nil
}

// normalizeRows coerces the rows argument (a map, a slice of maps, or any
// JSON-marshalable struct or slice) into a uniform slice of column maps.
func normalizeRows(rows any) ([]map[string]any, error) {
	switch v := rows.(type) {
	case map[string]any:
		return []map[string]any{v}, nil
	case []map[string]any:
		return v, nil
	}

	payload, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: marshal rows: %w", err)
	}

	var many []map[string]any
	if err := json.Unmarshal(payload, &many); err == nil {
		return many, nil
	}

	var one map[string]any
	if err := json.Unmarshal(payload, &one); err != nil {
		return nil, fmt.Errorf("postgres: rows must be an object or a list of objects")
	}
	return []map[string]any{one}, nil
}

// renderInsert builds a multi-row INSERT. Every row must supply the same
// columns; the column order is sorted so the statement is deterministic.
func renderInsert(table string, rows any, opts backend.InsertOptions) (string, []any, error) {
	if err := validIdentifier(table); err != nil {
		return "", nil, err
	}

	maps, err := normalizeRows(rows)
	if err != nil {
		return "", nil, err
	}
	if len(maps) == 0 {
		return "", nil, fmt.Errorf("postgres: insert into %s with no rows", table)
	}

	cols := make([]string, 0, len(maps[0]))
	for col := range maps[0] {
		if err := validIdentifier(col); err != nil {
			return "", nil, err
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", table, strings.Join(cols, ", "))

	var args []any
	for i, row := range maps {
		if len(row) != len(cols) {
			return "", nil, fmt.Errorf("postgres: insert rows into %s must share columns", table)
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j, col := range cols {
			v, ok := row[col]
			if !ok {
				return "", nil, fmt.Errorf("postgres: insert rows into %s must share columns", table)
			}
			if j > 0 {
				sb.WriteString(", ")
			}
			args = append(args, v)
			fmt.Fprintf(&sb, "$%d", len(args))
		}
		sb.WriteString(")")
	}

	if opts.IgnoreDuplicates {
		sb.WriteString(" ON CONFLICT DO NOTHING")
	}

	return sb.String(), args, nil
}

// renderUpdate builds an UPDATE scoped by the query's filters. Unfiltered
// updates are refused: direct SQL has no row security to catch a missing
// filter.
func renderUpdate(q backend.Query, values map[string]any) (string, []any, error) {
	if err := validIdentifier(q.Table); err != nil {
		return "", nil, err
	}
	if len(values) == 0 {
		return "", nil, fmt.Errorf("postgres: update %s with no values", q.Table)
	}
	if len(q.Filters) == 0 {
		return "", nil, fmt.Errorf("postgres: refusing unfiltered update of %s", q.Table)
	}

	cols := make([]string, 0, len(values))
	for col := range values {
		if err := validIdentifier(col); err != nil {
			return "", nil, err
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var sb strings.Builder
	var args []any
	fmt.Fprintf(&sb, "UPDATE %s SET ", q.Table)
	for i, col := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		args = append(args, values[col])
		fmt.Fprintf(&sb, "%s = $%d", col, len(args))
	}

	where, whereArgs, err := whereClause(q.Filters, len(args))
	if err != nil {
		return "", nil, err
	}
	sb.WriteString(where)

	return sb.String(), append(args, whereArgs...), nil
}

// renderDelete builds a DELETE scoped by the query's filters. Unfiltered
// deletes are refused for the same reason as updates.
func renderDelete(q backend.Query) (string, []any, error) {
	if err := validIdentifier(q.Table); err != nil {
		return "", nil, err
	}
	if len(q.Filters) == 0 {
		return "", nil, fmt.Errorf("postgres: refusing unfiltered delete of %s", q.Table)
	}

	where, args, err := whereClause(q.Filters, 0)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("DELETE FROM %s", q.Table) + where, args, nil
}

// renderCall builds a procedure invocation with named arguments, returning
// the result as JSON. Argument order is sorted so the statement is
// deterministic.
func renderCall(fn string, args map[string]any) (string, []any, error) {
	if err := validIdentifier(fn); err != nil {
		return "", nil, err
	}

	names := make([]string, 0, len(args))
	for name := range args {
		if err := validIdentifier(name); err != nil {
			return "", nil, err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	var bind []any
	fmt.Fprintf(&sb, "SELECT to_jsonb(%s(", fn)
	for i, name := range names {
		if i > 0 {
			sb.WriteString(", ")
		}
		bind = append(bind, args[name])
		fmt.Fprintf(&sb, "%s => $%d", name, len(bind))
	}
	sb.WriteString("))")

	return sb.String(), bind, nil
}
