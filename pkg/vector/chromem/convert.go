package chromem

import (
	"fmt"
	"strconv"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/echoprompt/echomem-go/pkg/vector"
)

// payloadToMetadata flattens a typed payload into chromem's string metadata.
// Numeric and time fields are rendered to strings; resultToPoint reverses
// the mapping.
func payloadToMetadata(p *vector.Payload) map[string]string {
	meta := map[string]string{
		"message_id":  strconv.FormatInt(p.MessageID, 10),
		"session_id":  strconv.FormatInt(p.SessionID, 10),
		"role":        p.Role,
		"memory_type": string(p.MemoryType),
		"importance":  strconv.FormatFloat(p.Importance, 'f', -1, 64),
		"token_count": strconv.Itoa(p.TokenCount),
		"timestamp":   p.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if p.UserID != "" {
		meta["user_id"] = p.UserID
	}
	if p.DocumentID != "" {
		meta["document_id"] = p.DocumentID
	}
	if p.Summary != "" {
		meta["summary"] = p.Summary
	}
	if p.Topic != "" {
		meta["topic"] = p.Topic
	}
	if p.Language != "" {
		meta["language"] = p.Language
	}
	if p.SourceType != "" {
		meta["source_type"] = p.SourceType
	}
	if p.EmbeddingModel != "" {
		meta["embedding_model"] = p.EmbeddingModel
	}
	return meta
}

// metadataToPayload reverses payloadToMetadata.
func metadataToPayload(meta map[string]string, content string) vector.Payload {
	messageID, _ := strconv.ParseInt(meta["message_id"], 10, 64)
	sessionID, _ := strconv.ParseInt(meta["session_id"], 10, 64)
	importance, _ := strconv.ParseFloat(meta["importance"], 64)
	tokenCount, _ := strconv.Atoi(meta["token_count"])
	timestamp, _ := time.Parse(time.RFC3339Nano, meta["timestamp"])

	return vector.Payload{
		MessageID:      messageID,
		SessionID:      sessionID,
		UserID:         meta["user_id"],
		DocumentID:     meta["document_id"],
		Role:           meta["role"],
		Content:        content,
		Summary:        meta["summary"],
		MemoryType:     vector.MemoryType(meta["memory_type"]),
		Importance:     importance,
		TokenCount:     tokenCount,
		Timestamp:      timestamp,
		Topic:          meta["topic"],
		Language:       meta["language"],
		SourceType:     meta["source_type"],
		EmbeddingModel: meta["embedding_model"],
	}
}

// resultToPoint converts a chromem query result back into a ScoredPoint.
func resultToPoint(res chromem.Result) (*vector.ScoredPoint, error) {
	id, err := strconv.ParseInt(res.ID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse point id %q: %w", res.ID, err)
	}

	return &vector.ScoredPoint{
		ID:      id,
		Score:   float64(res.Similarity),
		Payload: metadataToPayload(res.Metadata, res.Content),
	}, nil
}

// docToPoint converts a stored chromem document back into a Point.
func docToPoint(doc chromem.Document) (*vector.Point, error) {
	id, err := strconv.ParseInt(doc.ID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse point id %q: %w", doc.ID, err)
	}

	return &vector.Point{
		ID:      id,
		Vector:  toFloat64(doc.Embedding),
		Payload: metadataToPayload(doc.Metadata, doc.Content),
	}, nil
}
