package repository

import (
	"fmt"
	"strings"
)

// Op is a filter operator supported by DocumentStore queries.
type Op string

const (
	OpEqual         Op = "=="
	OpArrayContains Op = "array-contains"
)

// Filter restricts a query to documents whose field satisfies Op against Value.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Where builds a Filter.
func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Query selects documents from one collection.
// OrderBy is a single field path; an empty OrderBy keeps insertion order.
// Limit <= 0 means no limit.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// Validate checks that every field path is well formed and every operator known.
func (q Query) Validate() error {
	if q.Collection == "" {
		return fmt.Errorf("repository: query has no collection")
	}
	for _, f := range q.Filters {
		if err := ValidatePath(f.Field); err != nil {
			return err
		}
		if f.Op != OpEqual && f.Op != OpArrayContains {
			return fmt.Errorf("repository: unsupported operator %q", f.Op)
		}
	}
	if q.OrderBy != "" {
		if err := ValidatePath(q.OrderBy); err != nil {
			return err
		}
	}
	return nil
}

// ValidatePath rejects empty field paths and empty path segments.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("repository: empty field path")
	}
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return fmt.Errorf("repository: malformed field path %q", path)
		}
		if strings.ContainsAny(seg, `"$[]`) {
			return fmt.Errorf("repository: illegal character in field path %q", path)
		}
	}
	return nil
}

// JSONPath converts a dotted field path into an SQLite JSON path. Each
// segment is quoted so keys such as uids are taken literally.
func JSONPath(path string) string {
	segs := strings.Split(path, ".")
	var b strings.Builder
	b.WriteString("$")
	for _, s := range segs {
		b.WriteString(`."`)
		b.WriteString(s)
		b.WriteString(`"`)
	}
	return b.String()
}
