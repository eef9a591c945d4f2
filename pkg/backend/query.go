package backend

import "slices"

// Op is a row filter operator. The names follow the hosted API's operator
// vocabulary so the HTTP adapter can encode them verbatim.
type Op string

const (
	OpEq  Op = "eq"
	OpNeq Op = "neq"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	OpIn  Op = "in"
	OpIs  Op = "is"
)

// Filter is one column condition.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Order is one sort key.
type Order struct {
	Column string
	Desc   bool
}

// Query describes a row read or the row scope of a write. Values are built
// fluently; every builder method returns a copy, so a base query can be
// extended without mutating the original.
type Query struct {
	Table   string
	Columns string
	Filters []Filter
	Orders  []Order
	LimitN  int
	OffsetN int
}

// NewQuery starts a query against table, selecting all columns.
func NewQuery(table string) Query {
	return Query{Table: table, Columns: "*"}
}

// Select sets the column list, e.g. "id,student_id,created_at".
func (q Query) Select(columns string) Query {
	q.Columns = columns
	return q
}

func (q Query) withFilter(column string, op Op, value any) Query {
	q.Filters = append(slices.Clone(q.Filters), Filter{Column: column, Op: op, Value: value})
	return q
}

// Eq filters column = value.
func (q Query) Eq(column string, value any) Query { return q.withFilter(column, OpEq, value) }

// Neq filters column != value.
func (q Query) Neq(column string, value any) Query { return q.withFilter(column, OpNeq, value) }

// Gt filters column > value.
func (q Query) Gt(column string, value any) Query { return q.withFilter(column, OpGt, value) }

// Gte filters column >= value.
func (q Query) Gte(column string, value any) Query { return q.withFilter(column, OpGte, value) }

// Lt filters column < value.
func (q Query) Lt(column string, value any) Query { return q.withFilter(column, OpLt, value) }

// Lte filters column <= value.
func (q Query) Lte(column string, value any) Query { return q.withFilter(column, OpLte, value) }

// In filters column to the given set of values.
func (q Query) In(column string, values ...any) Query {
	return q.withFilter(column, OpIn, values)
}

// IsNull filters column IS NULL.
func (q Query) IsNull(column string) Query { return q.withFilter(column, OpIs, nil) }

// OrderAsc adds an ascending sort key.
func (q Query) OrderAsc(column string) Query {
	q.Orders = append(slices.Clone(q.Orders), Order{Column: column})
	return q
}

// OrderDesc adds a descending sort key.
func (q Query) OrderDesc(column string) Query {
	q.Orders = append(slices.Clone(q.Orders), Order{Column: column, Desc: true})
	return q
}

// Limit caps the number of returned rows. Zero means no limit.
func (q Query) Limit(n int) Query {
	q.LimitN = n
	return q
}

// Offset skips the first n rows.
func (q Query) Offset(n int) Query {
	q.OffsetN = n
	return q
}
