package postgres

import (
	"database/sql/driver"
	"strings"

	"github.com/lib/pq"
)

// pqArray adapts a Postgres text[] column to/from a Go []string without
// pulling the lib/pq Array type into every call site's signature.
type pqArray []string

func (a pqArray) Value() (driver.Value, error) {
	return pq.Array([]string(a)).Value()
}

func (a *pqArray) Scan(src any) error {
	return pq.Array((*[]string)(a)).Scan(src)
}

func pqStringArray(ss []string) pqArray {
	return pqArray(ss)
}

// isUniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return false
	}
	return strings.HasPrefix(string(pqErr.Code), "23505")
}
