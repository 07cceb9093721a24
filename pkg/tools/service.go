// Package tools exposes the store and lifecycle operations to the remote
// agent as named, schema-validated request/response actions, including the
// blocking watch primitives. Domain failures are always returned in-band
// with an error code; the transport never surfaces them as HTTP faults.
package tools

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"

	"annotated/pkg/logger"
	"annotated/pkg/store"
	"annotated/pkg/telemetry"
	"annotated/pkg/utils"
)

// Error codes surfaced to the agent.
const (
	CodeNotFound   = "not_found"
	CodeValidation = "validation"
	CodeFailed     = "failed"
)

// ToolError is a structured, in-band tool failure.
type ToolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ToolError) Error() string { return e.Message }

func notFoundErr(msg string) *ToolError   { return &ToolError{Code: CodeNotFound, Message: msg} }
func validationErr(msg string) *ToolError { return &ToolError{Code: CodeValidation, Message: msg} }
func failedErr(msg string) *ToolError     { return &ToolError{Code: CodeFailed, Message: msg} }

// result is the uniform response envelope.
type result struct {
	OK     bool       `json:"ok"`
	Result any        `json:"result,omitempty"`
	Err    *ToolError `json:"error,omitempty"`
}

// ConnectionCounter reports live push-channel connections; used to enrich
// watch timeouts so the agent can decide whether waiting again is useful.
type ConnectionCounter interface {
	ConnectionCount() int
}

// Options tunes the long-poll watch tools.
type Options struct {
	// PollInterval between store checks; 0 means 500ms.
	PollInterval time.Duration
	// AnnotationTimeout is the watch_annotations default; 0 means 25s.
	AnnotationTimeout time.Duration
	// DiffTimeout is the watch_diff_response default; 0 means 5m.
	DiffTimeout time.Duration
}

// Service is the agent-facing tool channel.
type Service struct {
	store *store.Store
	conns ConnectionCounter
	opts  Options
}

// NewService builds a tool service over the store. conns may be nil when no
// push channel runs in this process.
func NewService(st *store.Store, conns ConnectionCounter, opts Options) *Service {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.AnnotationTimeout <= 0 {
		opts.AnnotationTimeout = 25 * time.Second
	}
	if opts.DiffTimeout <= 0 {
		opts.DiffTimeout = 5 * time.Minute
	}
	return &Service{store: st, conns: conns, opts: opts}
}

type toolFunc func(r *http.Request, input json.RawMessage) (any, *ToolError)

type toolDef struct {
	fn          toolFunc
	description string
}

func (s *Service) registry() map[string]toolDef {
	return map[string]toolDef{
		"list_sessions":       {s.listSessions, "List all browser sessions known to the server"},
		"get_session":         {s.getSession, "Get a session and all its annotations"},
		"get_pending":         {s.getPending, "Get all pending annotations for a specific session"},
		"get_all_pending":     {s.getAllPending, "Get all pending annotations across all sessions, oldest first"},
		"acknowledge":         {s.acknowledge, "Acknowledge a pending annotation and optionally add a message"},
		"resolve":             {s.resolve, "Mark an annotation as resolved"},
		"dismiss":             {s.dismiss, "Dismiss an annotation with a reason"},
		"reply":               {s.reply, "Add a reply to an annotation from the agent"},
		"propose_diff":        {s.proposeDiff, "Attach a unified diff proposal to an annotation for review"},
		"watch_annotations":   {s.watchAnnotations, "Wait until pending annotations exist, polling every 500ms"},
		"watch_diff_response": {s.watchDiffResponse, "Wait for the reviewer's decision on a proposed diff"},
	}
}

// Register mounts the tool routes on the given router.
func (s *Service) Register(r *mux.Router) {
	r.HandleFunc("/tools", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/tools/{name}", s.handleInvoke).Methods(http.MethodPost)
}

// handleIndex lists the available tools.
func (s *Service) handleIndex(w http.ResponseWriter, r *http.Request) {
	reg := s.registry()
	type entry struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	out := make([]entry, 0, len(reg))
	for name, def := range reg {
		out = append(out, entry{Name: name, Description: def.description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"tools": out})
}

// handleInvoke dispatches a tool call. Every domain outcome — success or
// failure — is an HTTP 200 with the result envelope; only an unknown tool
// name is a 404.
func (s *Service) handleInvoke(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	def, ok := s.registry()[name]
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "unknown tool: "+name)
		return
	}
	telemetry.ToolCalls.WithLabelValues(name).Inc()

	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		s.respond(w, name, nil, failedErr("read request body: "+err.Error()))
		return
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	if !json.Valid(body) {
		s.respond(w, name, nil, validationErr("request body is not valid JSON"))
		return
	}

	res, terr := def.fn(r, body)
	s.respond(w, name, res, terr)
}

func (s *Service) respond(w http.ResponseWriter, name string, res any, terr *ToolError) {
	if terr != nil {
		telemetry.ToolErrors.WithLabelValues(name).Inc()
		logger.Debug("tool_error", "tool", name, "code", terr.Code, "message", terr.Message)
		_ = utils.JSONWrite(w, http.StatusOK, result{OK: false, Err: terr})
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, result{OK: true, Result: res})
}

// storeErr maps store failures onto the tool error taxonomy.
func storeErr(err error, notFoundMsg string) *ToolError {
	if errors.Is(err, store.ErrNotFound) {
		return notFoundErr(notFoundMsg)
	}
	return failedErr(err.Error())
}
