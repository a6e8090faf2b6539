package model

import "time"

// ThreadEntry is one prompt/response pair in a conversation thread.
// Entries are append-only.
type ThreadEntry struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"threadId"`
	UserID    string    `json:"userId"`
	ModelID   string    `json:"modelId"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"createdAt"`
}

// ThreadSummary is the latest entry of a thread, used for history listings.
type ThreadSummary struct {
	ThreadID    string    `json:"threadId"`
	ModelID     string    `json:"modelId"`
	LastPrompt  string    `json:"lastPrompt"`
	EntryCount  int64     `json:"entryCount"`
	LastEntryAt time.Time `json:"lastEntryAt"`
}
