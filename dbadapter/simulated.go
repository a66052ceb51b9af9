package dbadapter

import (
	"context"
	"strings"
)

// simulatedBackend is the default driver (§4.9): it never dials a real
// database. Query inspects the first keyword and fabricates plausible
// counts and a small result set so downstream metrics and assertions have
// something realistic to operate on.
type simulatedBackend struct{}

func (s *simulatedBackend) Close() error { return nil }

func (s *simulatedBackend) Query(_ context.Context, query string) (rowsAffected, rowsReturned int64, resultSet []map[string]interface{}, err error) {
	keyword := firstKeyword(query)
	switch keyword {
	case "SELECT":
		resultSet = []map[string]interface{}{
			{"id": 1, "value": "simulated"},
			{"id": 2, "value": "simulated"},
		}
		rowsReturned = int64(len(resultSet))
	case "INSERT", "UPDATE", "DELETE":
		rowsAffected = 1
	}
	return rowsAffected, rowsReturned, resultSet, nil
}

func firstKeyword(query string) string {
	trimmed := strings.TrimSpace(query)
	end := strings.IndexByte(trimmed, ' ')
	if end < 0 {
		end = len(trimmed)
	}
	return strings.ToUpper(trimmed[:end])
}
