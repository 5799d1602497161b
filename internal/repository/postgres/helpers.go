package postgres

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// marshalOrEmpty returns "{}" for nil/empty raw JSON so NOT NULL jsonb
// columns always receive valid JSON.
func marshalOrEmpty(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return []byte("{}"), nil
	}
	return raw, nil
}

func nullableUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// operatorSQL maps a comparison operator name to its SQL symbol for
// buildWhere; an unknown name maps to "=".
func operatorSQL(op string) string {
	switch op {
	case "eq":
		return "="
	case "ne":
		return "<>"
	case "gt":
		return ">"
	case "gte":
		return ">="
	case "lt":
		return "<"
	case "lte":
		return "<="
	default:
		return "="
	}
}
