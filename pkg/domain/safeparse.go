package domain

import "encoding/json"

// SafeUnmarshal decodes JSON into a value of type T, returning the given
// fallback on empty or malformed input. Persisted array/map columns go
// through this helper so a corrupt row degrades to an empty collection
// instead of aborting session hydration.
func SafeUnmarshal[T any](data []byte, fallback T) T {
	if len(data) == 0 {
		return fallback
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return fallback
	}
	return out
}
