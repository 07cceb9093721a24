package bridge

import (
	"encoding/json"

	"annotated/pkg/manifest"
	"annotated/pkg/models"
)

// Wire message types. Inbound messages form a closed set; anything
// recognized as JSON but not matching a known type is a no-op.
const (
	// server → client
	TypeSessionCreated    = "session:created"
	TypeManifestUpdate    = "manifest:update"
	TypeAnnotationCreated = "annotation:created"
	TypeAnnotationUpdated = "annotation:updated"
	TypeAnnotationsSync   = "annotations:sync"

	// client → server
	TypeAnnotationCreate  = "annotation:create"
	TypeAnnotationReply   = "annotation:reply"
	TypeAnnotationApprove = "annotation:approve"
	TypeAnnotationReject  = "annotation:reject"
)

// inbound is the superset envelope of every client→server message.
type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	ID      string          `json:"id,omitempty"`
	Message string          `json:"message,omitempty"`
}

type sessionCreatedMsg struct {
	Type    string         `json:"type"`
	Session models.Session `json:"session"`
}

type manifestUpdateMsg struct {
	Type     string                    `json:"type"`
	Manifest map[string]manifest.Entry `json:"manifest"`
}

type annotationMsg struct {
	Type       string            `json:"type"`
	Annotation models.Annotation `json:"annotation"`
}

type annotationsSyncMsg struct {
	Type        string              `json:"type"`
	Annotations []models.Annotation `json:"annotations"`
}
