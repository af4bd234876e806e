package storage

import (
	"strconv"
	"strings"
)

// Dialect isolates every difference between the supported relational
// backends. Query templates are written once with "?" placeholders,
// "excluded." upsert references and datetime('now'), and the dialect
// rewrites them for its engine.
type Dialect interface {
	// Name returns the ent dialect name ("sqlite3" or "postgres").
	Name() string

	// Translate rewrites a query template into the backend's syntax.
	Translate(query string) string

	// AutoIncrementKey is the column definition of an auto-assigned integer
	// primary key.
	AutoIncrementKey() string

	// TimestampType is the column type used for instants.
	TimestampType() string

	// FullTextSchema returns the statements that build the full-text
	// structures over memories. They may fail on engines built without
	// full-text support; callers treat failures as "lexical index missing".
	FullTextSchema() []string

	// FullTextQuery returns a ranked full-text query template over memories
	// selecting the given columns (qualified with the "m" alias) for one
	// user, together with its arguments.
	FullTextQuery(columns []string, userID, query string, limit int) (string, []any)
}

// Rebind rewrites "?" placeholders into numbered "$n" placeholders. Question
// marks inside single-quoted literals and quoted identifiers are left alone.
func Rebind(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}

	var (
		b      strings.Builder
		n      int
		quote  byte
		length = len(query)
	)
	b.Grow(length + 8)

	for i := 0; i < length; i++ {
		c := query[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
			b.WriteByte(c)
		case c == '\'' || c == '"':
			quote = c
			b.WriteByte(c)
		case c == '?':
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}

// EscapeLike escapes LIKE wildcards so the value matches literally. Queries
// using it must declare ESCAPE '\'.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Contains returns the LIKE pattern matching values that contain s.
func Contains(s string) string {
	return "%" + EscapeLike(s) + "%"
}
