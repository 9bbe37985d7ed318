package models

import "encoding/json"

// Envelope is one message addressed to a recipient's mailbox.
type Envelope struct {
	ID        string          `json:"id"` // ULID
	From      string          `json:"from"`
	FromName  string          `json:"fromName"`
	To        string          `json:"to"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`           // Unix ms, strictly increasing per mailbox
	InReplyTo string          `json:"inReplyTo,omitempty"` // may reference an envelope that no longer exists
}
