package mysql

import (
	"math"
	"sort"
	"strings"

	"github.com/echoprompt/echomem-go/pkg/vector"
)

// buildFilterClause builds a WHERE clause from a filter's conditions.
func buildFilterClause(filter *vector.Filter) (string, []interface{}) {
	if filter == nil {
		return "", nil
	}

	conditions := []string{}
	args := []interface{}{}

	if filter.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.MemoryType != "" {
		conditions = append(conditions, "memory_type = ?")
		args = append(args, string(filter.MemoryType))
	}
	if filter.DocumentID != "" {
		conditions = append(conditions, "document_id = ?")
		args = append(args, filter.DocumentID)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.Since.UTC())
	}

	if len(conditions) == 0 {
		return "", args
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// topByScore sorts points by score descending and truncates to limit.
// Equal scores order by newer timestamp first, then ascending point ID.
func topByScore(points []*vector.ScoredPoint, limit int) []*vector.ScoredPoint {
	sort.SliceStable(points, func(i, j int) bool {
		if points[i].Score != points[j].Score {
			return points[i].Score > points[j].Score
		}
		if !points[i].Payload.Timestamp.Equal(points[j].Payload.Timestamp) {
			return points[i].Payload.Timestamp.After(points[j].Payload.Timestamp)
		}
		return points[i].ID < points[j].ID
	})

	if limit > 0 && len(points) > limit {
		return points[:limit]
	}
	return points
}
