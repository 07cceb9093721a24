package tools

import (
	"encoding/json"
	"net/http"
	"time"

	"annotated/pkg/models"
)

// Watch results carry a status discriminator so the agent can switch on
// one field. A watch either satisfies or times out; there is no mid-flight
// cancellation beyond the caller abandoning the request.
type watchAnnotationsResult struct {
	Status      string              `json:"status"` // "annotations" | "timeout"
	Annotations []models.Annotation `json:"annotations,omitempty"`
	// ActiveSessions hints on timeout whether waiting again is worthwhile.
	ActiveSessions int `json:"activeSessions,omitempty"`
}

type watchDiffResult struct {
	Status     string             `json:"status"` // "approved" | "rejected" | "timeout"
	Annotation *models.Annotation `json:"annotation,omitempty"`
}

type watchAnnotationsInput struct {
	SessionID string `json:"sessionId,omitempty"`
	TimeoutMs int64  `json:"timeoutMs,omitempty"`
}

func (s *Service) watchAnnotations(r *http.Request, input json.RawMessage) (any, *ToolError) {
	var in watchAnnotationsInput
	if terr := decode(input, &in); terr != nil {
		return nil, terr
	}
	timeout := s.opts.AnnotationTimeout
	if in.TimeoutMs > 0 {
		timeout = time.Duration(in.TimeoutMs) * time.Millisecond
	}

	check := func() ([]models.Annotation, error) {
		return s.store.ListAnnotations(in.SessionID, models.StatusPending)
	}

	// Check immediately before arming any timer.
	pending, err := check()
	if err != nil {
		return nil, failedErr(err.Error())
	}
	if len(pending) > 0 {
		return watchAnnotationsResult{Status: "annotations", Annotations: pending}, nil
	}

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ticker.C:
			pending, err := check()
			if err != nil {
				return nil, failedErr(err.Error())
			}
			if len(pending) > 0 {
				return watchAnnotationsResult{Status: "annotations", Annotations: pending}, nil
			}
		case <-deadline.C:
			return watchAnnotationsResult{Status: "timeout", ActiveSessions: s.activeSessions()}, nil
		case <-r.Context().Done():
			// Caller abandoned the request; answer as a timeout in case
			// anything is still reading.
			return watchAnnotationsResult{Status: "timeout"}, nil
		}
	}
}

type watchDiffInput struct {
	ID        string `json:"id"`
	TimeoutMs int64  `json:"timeoutMs,omitempty"`
}

func (s *Service) watchDiffResponse(r *http.Request, input json.RawMessage) (any, *ToolError) {
	var in watchDiffInput
	if terr := decode(input, &in); terr != nil {
		return nil, terr
	}
	if in.ID == "" {
		return nil, validationErr("id is required")
	}
	timeout := s.opts.DiffTimeout
	if in.TimeoutMs > 0 {
		timeout = time.Duration(in.TimeoutMs) * time.Millisecond
	}

	check := func() (*models.Annotation, *ToolError) {
		ann, err := s.store.GetAnnotation(in.ID)
		if err != nil {
			return nil, storeErr(err, "Annotation not found: "+in.ID)
		}
		if ann.DiffResponse != "" {
			return &ann, nil
		}
		return nil, nil
	}

	ann, terr := check()
	if terr != nil {
		return nil, terr
	}
	if ann != nil {
		return watchDiffResult{Status: string(ann.DiffResponse), Annotation: ann}, nil
	}

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ticker.C:
			ann, terr := check()
			if terr != nil {
				return nil, terr
			}
			if ann != nil {
				return watchDiffResult{Status: string(ann.DiffResponse), Annotation: ann}, nil
			}
		case <-deadline.C:
			return watchDiffResult{Status: "timeout"}, nil
		case <-r.Context().Done():
			return watchDiffResult{Status: "timeout"}, nil
		}
	}
}

// activeSessions counts sessions flagged active, preferring the live
// connection count when a push channel runs in-process.
func (s *Service) activeSessions() int {
	if s.conns != nil {
		if n := s.conns.ConnectionCount(); n > 0 {
			return n
		}
	}
	sessions, err := s.store.ListSessions()
	if err != nil {
		return 0
	}
	n := 0
	for _, sess := range sessions {
		if sess.Active {
			n++
		}
	}
	return n
}
