package domain

import "time"

type SessionState string

const (
	SessionEmpty   SessionState = "empty"
	SessionIndexed SessionState = "indexed"
	SessionClosed  SessionState = "closed"
)

// SessionInfo is the externally visible view of a session. The mapping table
// and the vector index it owns never leave the process.
type SessionInfo struct {
	ID            string       `json:"id"`
	State         SessionState `json:"state"`
	DocumentCount int          `json:"document_count"`
	ChunkCount    int          `json:"chunk_count"`
	CreatedAt     time.Time    `json:"created_at"`
}

// PIIReport summarizes what a session's mapping table holds without exposing
// raw values: distinct mapped values per kind plus the placeholder tokens.
type PIIReport struct {
	SessionID string             `json:"session_id"`
	Counts    map[EntityKind]int `json:"counts"`
	Tokens    []string           `json:"tokens"`
	Total     int                `json:"total"`
}
