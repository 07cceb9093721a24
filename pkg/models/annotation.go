package models

// AnnotationStatus enumerates the review lifecycle states of an annotation.
type AnnotationStatus string

const (
	StatusPending      AnnotationStatus = "pending"
	StatusAcknowledged AnnotationStatus = "acknowledged"
	StatusDiffProposed AnnotationStatus = "diff_proposed"
	StatusResolved     AnnotationStatus = "resolved"
	StatusDismissed    AnnotationStatus = "dismissed"
)

// Valid reports whether s is one of the enumerated statuses.
func (s AnnotationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAcknowledged, StatusDiffProposed, StatusResolved, StatusDismissed:
		return true
	}
	return false
}

// DiffResponse is the reviewer's decision on a proposed diff.
type DiffResponse string

const (
	DiffApproved DiffResponse = "approved"
	DiffRejected DiffResponse = "rejected"
)

// ReplyAuthor identifies which side of the conversation authored a reply.
type ReplyAuthor string

const (
	AuthorAgent ReplyAuthor = "agent"
	AuthorUser  ReplyAuthor = "user"
)

// AnnotationReply is one entry in an annotation's conversation thread.
// Replies are append-only; entries are never mutated once stored.
type AnnotationReply struct {
	ID        string      `json:"id"`
	CreatedAt string      `json:"createdAt"`
	Author    ReplyAuthor `json:"author"`
	Message   string      `json:"message"`
}

// Annotation is one reviewable change request raised from the browser.
// The component* fields, Selector, Inputs, DOMSnapshot and ComponentTreePath
// form the context bag supplied by the in-page inspector; the server treats
// them as opaque.
type Annotation struct {
	ID        string            `json:"id"`
	SessionID string            `json:"sessionId"`
	CreatedAt string            `json:"createdAt"`
	Status    AnnotationStatus  `json:"status"`
	Replies   []AnnotationReply `json:"replies"`

	ComponentName     string         `json:"componentName"`
	ComponentFilePath string         `json:"componentFilePath"`
	TemplateFilePath  string         `json:"templateFilePath,omitempty"`
	Selector          string         `json:"selector"`
	Inputs            map[string]any `json:"inputs,omitempty"`
	DOMSnapshot       string         `json:"domSnapshot"`
	ComponentTreePath []string       `json:"componentTreePath,omitempty"`

	AnnotationText string `json:"annotationText"`
	SelectionText  string `json:"selectionText,omitempty"`

	// Diff holds the unified diff proposed by the agent; DiffResponse the
	// reviewer's decision. Both are empty until the diff handshake runs.
	Diff         string       `json:"diff,omitempty"`
	DiffResponse DiffResponse `json:"diffResponse,omitempty"`
}
