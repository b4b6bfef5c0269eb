package db

import (
	"strconv"
	"strings"
)

// Query helps build SQL queries using bind parameters.
// Use Unsafe to write the literal parts of a query and Param to add bind parameters.
// The final query and parameters can be retrieved using the Get method.
//
// The zero value writes "?" placeholders. Set Numbered to write "$1", "$2", ...
// as expected by PostgreSQL.
type Query struct {
	Numbered bool
	b        strings.Builder
	params   []any
}

// Unsafe writes a non-parameterized part of a query.
func (q *Query) Unsafe(s string) {
	q.b.WriteString(s)
}

// Param writes a parameterized part of a query.
func (q *Query) Param(v any) {
	q.params = append(q.params, v)
	if q.Numbered {
		q.b.WriteString("$")
		q.b.WriteString(strconv.Itoa(len(q.params)))
		return
	}
	q.b.WriteString("?")
}

// Params writes multiple parameterized parts of a query seperated by commas.
func (q *Query) Params(v ...any) {
	for i, p := range v {
		if i > 0 {
			q.b.WriteString(", ")
		}
		q.Param(p)
	}
}

// Get returns the constructed query and parameter values.
func (q *Query) Get() (string, []any) {
	return q.b.String(), q.params
}
