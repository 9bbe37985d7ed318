package models

// Peer is the public view of an agent with an active session.
type Peer struct {
	PublicKey string         `json:"publicKey"`
	Name      string         `json:"name"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	LastSeen  int64          `json:"lastSeen"` // Unix ms
}
