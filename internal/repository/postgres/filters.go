package postgres

import (
	"fmt"
	"strings"

	"github.com/michiel/ratchet-sub007/internal/repository"
)

// buildWhere renders filters as a parameterised "WHERE ... AND ..." clause
// (or "" if filters is empty) plus the positional args, starting
// placeholder numbering at startArg.
func buildWhere(filters []repository.Filter, startArg int) (string, []any) {
	if len(filters) == 0 {
		return "", nil
	}
	var clauses []string
	var args []any
	arg := startArg
	for _, f := range filters {
		switch f.Operator {
		case repository.OpContains:
			clauses = append(clauses, fmt.Sprintf("%s ILIKE $%d", f.Field, arg))
			args = append(args, "%"+fmt.Sprint(f.Value)+"%")
		case repository.OpIn:
			clauses = append(clauses, fmt.Sprintf("%s = ANY($%d)", f.Field, arg))
			args = append(args, f.Value)
		default:
			clauses = append(clauses, fmt.Sprintf("%s %s $%d", f.Field, operatorSQL(string(f.Operator)), arg))
			args = append(args, f.Value)
		}
		arg++
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// buildOrderBy renders sort clauses, defaulting to the given field when
// sort is empty.
func buildOrderBy(sort []repository.Sort, defaultField string) string {
	if len(sort) == 0 {
		return " ORDER BY " + defaultField + " ASC"
	}
	var parts []string
	for _, s := range sort {
		dir := "ASC"
		if s.Direction == repository.SortDesc {
			dir = "DESC"
		}
		parts = append(parts, s.Field+" "+dir)
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}
