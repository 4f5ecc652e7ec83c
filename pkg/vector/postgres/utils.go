package postgres

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/echoprompt/echomem-go/pkg/vector"
)

// vectorToString converts a float64 slice to the pgvector literal format.
// Example: [0.1, 0.2, 0.3] -> "[0.1,0.2,0.3]"
func vectorToString(vec []float64) string {
	if len(vec) == 0 {
		return "[]"
	}

	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = fmt.Sprintf("%f", v)
	}

	return "[" + strings.Join(parts, ",") + "]"
}

// stringToVector parses the pgvector text format back into a float64 slice.
func stringToVector(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return []float64{}, nil
	}

	parts := strings.Split(s, ",")
	vec := make([]float64, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("parse vector element %d: %w", i, err)
		}
		vec[i] = v
	}
	return vec, nil
}

// buildFilterClause builds a WHERE clause from a filter's conditions using
// numbered placeholders starting at startIdx.
func buildFilterClause(filter *vector.Filter, startIdx int) (string, []interface{}) {
	if filter == nil {
		return "", nil
	}

	conditions := []string{}
	args := []interface{}{}
	idx := startIdx

	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", idx))
		args = append(args, filter.UserID)
		idx++
	}
	if filter.MemoryType != "" {
		conditions = append(conditions, fmt.Sprintf("memory_type = $%d", idx))
		args = append(args, string(filter.MemoryType))
		idx++
	}
	if filter.DocumentID != "" {
		conditions = append(conditions, fmt.Sprintf("document_id = $%d", idx))
		args = append(args, filter.DocumentID)
		idx++
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", idx))
		args = append(args, filter.Since.UTC())
		idx++
	}

	if len(conditions) == 0 {
		return "", args
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}
