package models

// Session represents one connected browser tab. Sessions are created on
// WebSocket connect and flipped inactive on disconnect; they are never
// deleted.
type Session struct {
	ID        string `json:"id"`
	CreatedAt string `json:"createdAt"`
	// LastSeenAt is refreshed on every inbound client message and is the
	// basis for the janitor's idle sweep.
	LastSeenAt string `json:"lastSeenAt"`
	Active     bool   `json:"active"`
	// URL is the referring page; advisory only.
	URL string `json:"url"`
}
