package tools

import (
	"encoding/json"
	"errors"
	"net/http"

	"annotated/pkg/lifecycle"
	"annotated/pkg/logger"
	"annotated/pkg/models"
	"annotated/pkg/store"
)

// ── Session tools ──

func (s *Service) listSessions(_ *http.Request, _ json.RawMessage) (any, *ToolError) {
	sessions, err := s.store.ListSessions()
	if err != nil {
		return nil, failedErr(err.Error())
	}
	return sessions, nil
}

type idInput struct {
	ID string `json:"id"`
}

func (s *Service) getSession(_ *http.Request, input json.RawMessage) (any, *ToolError) {
	var in idInput
	if terr := decode(input, &in); terr != nil {
		return nil, terr
	}
	if in.ID == "" {
		return nil, validationErr("id is required")
	}
	sess, err := s.store.GetSession(in.ID)
	if err != nil {
		return nil, storeErr(err, "Session not found: "+in.ID)
	}
	anns, err := s.store.ListAnnotations(in.ID, "")
	if err != nil {
		return nil, failedErr(err.Error())
	}
	return map[string]any{"session": sess, "annotations": anns}, nil
}

// ── Query tools ──

type sessionIDInput struct {
	SessionID string `json:"sessionId"`
}

func (s *Service) getPending(_ *http.Request, input json.RawMessage) (any, *ToolError) {
	var in sessionIDInput
	if terr := decode(input, &in); terr != nil {
		return nil, terr
	}
	if in.SessionID == "" {
		return nil, validationErr("sessionId is required")
	}
	anns, err := s.store.ListAnnotations(in.SessionID, models.StatusPending)
	if err != nil {
		return nil, failedErr(err.Error())
	}
	return anns, nil
}

func (s *Service) getAllPending(_ *http.Request, _ json.RawMessage) (any, *ToolError) {
	anns, err := s.store.ListAnnotations("", models.StatusPending)
	if err != nil {
		return nil, failedErr(err.Error())
	}
	return anns, nil
}

// ── Action tools ──

type acknowledgeInput struct {
	ID      string `json:"id"`
	Message string `json:"message,omitempty"`
}

func (s *Service) acknowledge(_ *http.Request, input json.RawMessage) (any, *ToolError) {
	var in acknowledgeInput
	if terr := decode(input, &in); terr != nil {
		return nil, terr
	}
	if in.ID == "" {
		return nil, validationErr("id is required")
	}
	ann, err := s.store.GetAnnotation(in.ID)
	if err != nil {
		return nil, storeErr(err, "Annotation not found: "+in.ID)
	}
	if err := lifecycle.CheckAcknowledge(ann); err != nil {
		return nil, validationErr("Annotation " + in.ID + " is already acknowledged")
	}
	status := models.StatusAcknowledged
	updated, err := s.store.UpdateAnnotation(in.ID, store.AnnotationPatch{Status: &status})
	if err != nil {
		return nil, storeErr(err, "Failed to update annotation: "+in.ID)
	}
	if in.Message != "" {
		if updated, err = s.store.AddReply(in.ID, models.AuthorAgent, in.Message); err != nil {
			return nil, failedErr(err.Error())
		}
	}
	logger.Info("annotation_acknowledged", "id", in.ID)
	return updated, nil
}

type resolveInput struct {
	ID      string `json:"id"`
	Summary string `json:"summary,omitempty"`
}

func (s *Service) resolve(_ *http.Request, input json.RawMessage) (any, *ToolError) {
	var in resolveInput
	if terr := decode(input, &in); terr != nil {
		return nil, terr
	}
	if in.ID == "" {
		return nil, validationErr("id is required")
	}
	ann, err := s.store.GetAnnotation(in.ID)
	if err != nil {
		return nil, storeErr(err, "Annotation not found: "+in.ID)
	}
	if err := lifecycle.CheckResolve(ann); err != nil {
		return nil, validationErr(err.Error())
	}
	status := models.StatusResolved
	updated, err := s.store.UpdateAnnotation(in.ID, store.AnnotationPatch{Status: &status})
	if err != nil {
		return nil, storeErr(err, "Failed to update annotation: "+in.ID)
	}
	if in.Summary != "" {
		if updated, err = s.store.AddReply(in.ID, models.AuthorAgent, in.Summary); err != nil {
			return nil, failedErr(err.Error())
		}
	}
	logger.Info("annotation_resolved", "id", in.ID)
	return updated, nil
}

type dismissInput struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

func (s *Service) dismiss(_ *http.Request, input json.RawMessage) (any, *ToolError) {
	var in dismissInput
	if terr := decode(input, &in); terr != nil {
		return nil, terr
	}
	if in.ID == "" {
		return nil, validationErr("id is required")
	}
	ann, err := s.store.GetAnnotation(in.ID)
	if err != nil {
		return nil, storeErr(err, "Annotation not found: "+in.ID)
	}
	if err := lifecycle.CheckDismiss(ann, in.Reason); err != nil {
		if errors.Is(err, lifecycle.ErrReasonRequired) {
			return nil, validationErr("Reason is required for dismissal")
		}
		return nil, validationErr(err.Error())
	}
	status := models.StatusDismissed
	if _, err := s.store.UpdateAnnotation(in.ID, store.AnnotationPatch{Status: &status}); err != nil {
		return nil, storeErr(err, "Failed to update annotation: "+in.ID)
	}
	updated, err := s.store.AddReply(in.ID, models.AuthorAgent, in.Reason)
	if err != nil {
		return nil, failedErr(err.Error())
	}
	logger.AuditEvent("annotation_dismissed", "annotation", in.ID, "reason", in.Reason)
	return updated, nil
}

type replyInput struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

func (s *Service) reply(_ *http.Request, input json.RawMessage) (any, *ToolError) {
	var in replyInput
	if terr := decode(input, &in); terr != nil {
		return nil, terr
	}
	if in.ID == "" {
		return nil, validationErr("id is required")
	}
	if in.Message == "" {
		return nil, validationErr("message is required")
	}
	updated, err := s.store.AddReply(in.ID, models.AuthorAgent, in.Message)
	if err != nil {
		return nil, storeErr(err, "Annotation not found: "+in.ID)
	}
	return updated, nil
}

type proposeDiffInput struct {
	ID   string `json:"id"`
	Diff string `json:"diff"`
}

func (s *Service) proposeDiff(_ *http.Request, input json.RawMessage) (any, *ToolError) {
	var in proposeDiffInput
	if terr := decode(input, &in); terr != nil {
		return nil, terr
	}
	if in.ID == "" {
		return nil, validationErr("id is required")
	}
	ann, err := s.store.GetAnnotation(in.ID)
	if err != nil {
		return nil, storeErr(err, "Annotation not found: "+in.ID)
	}
	if err := lifecycle.CheckProposeDiff(ann, in.Diff); err != nil {
		return nil, validationErr(err.Error())
	}
	status := models.StatusDiffProposed
	// Re-proposing clears any previous decision so watch_diff_response
	// blocks on the new round.
	cleared := models.DiffResponse("")
	updated, err := s.store.UpdateAnnotation(in.ID, store.AnnotationPatch{
		Status:       &status,
		Diff:         &in.Diff,
		DiffResponse: &cleared,
	})
	if err != nil {
		return nil, storeErr(err, "Failed to update annotation: "+in.ID)
	}
	logger.Info("diff_proposed", "id", in.ID, "bytes", len(in.Diff))
	return updated, nil
}

func decode(input json.RawMessage, v any) *ToolError {
	if err := json.Unmarshal(input, v); err != nil {
		return validationErr("invalid input: " + err.Error())
	}
	return nil
}
