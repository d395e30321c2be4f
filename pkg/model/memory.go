package model

import (
	"time"

	"github.com/google/uuid"
)

type MemoryID string

// NewMemoryID generates a new unique MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

// Memory is one immutable record stored in the blob network. Content is an
// opaque JSON object owned by the caller; the surrounding fields form the
// typed metadata envelope.
type Memory struct {
	ID        MemoryID       `json:"id"`
	RoomID    string         `json:"roomId,omitempty"`
	AgentID   string         `json:"agentId,omitempty"`
	UserID    string         `json:"userId,omitempty"`
	TableName string         `json:"tableName,omitempty"`
	Content   map[string]any `json:"content,omitempty"`
	Embedding []float64      `json:"embedding,omitempty"`
	Unique    bool           `json:"unique,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Filename returns the name under which the serialized memory is stored
// inside its upload.
func (m *Memory) Filename() string {
	return string(m.ID) + ".json"
}
