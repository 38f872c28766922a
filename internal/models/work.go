package models

// ContentStatus mirrors the backend lifecycle of a chapter or ending.
// The backend is authoritative; the client caches the last observed value
// and re-queries after every generation trigger.
type ContentStatus string

const (
	StatusNotGenerated ContentStatus = "not_generated"
	StatusGenerating   ContentStatus = "generating"
	StatusGenerated    ContentStatus = "generated"
	StatusSaved        ContentStatus = "saved"
)

// Work is the read-only description of a story as published by the backend.
type Work struct {
	ID                  string `json:"id"`
	Title               string `json:"title"`
	CoverURL            string `json:"cover_url,omitempty"`
	TotalChapters       int    `json:"total_chapters"`
	AIGenerationEnabled bool   `json:"ai_generation_enabled"`
}
