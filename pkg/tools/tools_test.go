package tools

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"annotated/pkg/models"
	"annotated/pkg/store"
)

type testEnv struct {
	store *store.Store
	srv   *httptest.Server
}

func setupTools(t *testing.T, opts Options) *testEnv {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	r := mux.NewRouter()
	NewService(st, nil, opts).Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testEnv{store: st, srv: srv}
}

type envelope struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Err    *ToolError      `json:"error"`
}

// call posts a tool invocation and decodes the response envelope. It fails
// the test on transport errors or a non-200 status.
func (e *testEnv) call(t *testing.T, tool string, input any) envelope {
	t.Helper()
	var body []byte
	if input != nil {
		var err error
		if body, err = json.Marshal(input); err != nil {
			t.Fatalf("marshal input: %v", err)
		}
	}
	resp, err := http.Post(e.srv.URL+"/tools/"+tool, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", tool, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST %s: status %d", tool, resp.StatusCode)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func decodeResult(t *testing.T, env envelope, v any) {
	t.Helper()
	if !env.OK {
		t.Fatalf("expected success, got error: %+v", env.Err)
	}
	if err := json.Unmarshal(env.Result, v); err != nil {
		t.Fatalf("decode result: %v", err)
	}
}

// TestToolIndexListsAllTools verifies GET /tools enumerates the registry.
func TestToolIndexListsAllTools(t *testing.T) {
	e := setupTools(t, Options{})

	resp, err := http.Get(e.srv.URL + "/tools")
	if err != nil {
		t.Fatalf("GET /tools: %v", err)
	}
	defer resp.Body.Close()
	var out struct {
		Tools []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"tools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode index: %v", err)
	}
	if len(out.Tools) != 11 {
		t.Fatalf("expected 11 tools, got %d", len(out.Tools))
	}
	for _, tool := range out.Tools {
		if tool.Description == "" {
			t.Fatalf("tool %s has no description", tool.Name)
		}
	}
}

// TestUnknownToolIs404 verifies only an unknown tool name surfaces as an
// HTTP error; every domain failure stays in the 200 envelope.
func TestUnknownToolIs404(t *testing.T) {
	e := setupTools(t, Options{})

	resp, err := http.Post(e.srv.URL+"/tools/no_such_tool", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

// TestInvalidJSONBodyIsValidationError verifies malformed request bodies
// come back in-band as validation errors, not transport faults.
func TestInvalidJSONBodyIsValidationError(t *testing.T) {
	e := setupTools(t, Options{})

	resp, err := http.Post(e.srv.URL+"/tools/list_sessions", "application/json", bytes.NewReader([]byte("{nope")))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.OK || env.Err == nil || env.Err.Code != CodeValidation {
		t.Fatalf("expected validation error, got %+v", env)
	}
}

// TestGetSessionAndPending exercises the query tools against seeded data.
func TestGetSessionAndPending(t *testing.T) {
	e := setupTools(t, Options{})

	sess, err := e.store.CreateSession("http://localhost:4200/", true)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	ann, err := e.store.CreateAnnotation(models.Annotation{SessionID: sess.ID, AnnotationText: "fix me"})
	if err != nil {
		t.Fatalf("CreateAnnotation: %v", err)
	}

	var sessions []models.Session
	decodeResult(t, e.call(t, "list_sessions", nil), &sessions)
	if len(sessions) != 1 || sessions[0].ID != sess.ID {
		t.Fatalf("list_sessions wrong: %#v", sessions)
	}

	var got struct {
		Session     models.Session      `json:"session"`
		Annotations []models.Annotation `json:"annotations"`
	}
	decodeResult(t, e.call(t, "get_session", map[string]string{"id": sess.ID}), &got)
	if got.Session.ID != sess.ID || len(got.Annotations) != 1 {
		t.Fatalf("get_session wrong: %#v", got)
	}

	env := e.call(t, "get_session", map[string]string{"id": "missing"})
	if env.OK || env.Err.Code != CodeNotFound {
		t.Fatalf("expected not_found, got %+v", env)
	}

	var pending []models.Annotation
	decodeResult(t, e.call(t, "get_pending", map[string]string{"sessionId": sess.ID}), &pending)
	if len(pending) != 1 || pending[0].ID != ann.ID {
		t.Fatalf("get_pending wrong: %#v", pending)
	}

	env = e.call(t, "get_pending", nil)
	if env.OK || env.Err.Code != CodeValidation {
		t.Fatalf("get_pending without sessionId should fail validation: %+v", env)
	}

	decodeResult(t, e.call(t, "get_all_pending", nil), &pending)
	if len(pending) != 1 {
		t.Fatalf("get_all_pending wrong: %#v", pending)
	}
}

// TestAcknowledgeGuardsDuplicates verifies the second acknowledge of the
// same annotation fails with the duplicate message.
func TestAcknowledgeGuardsDuplicates(t *testing.T) {
	e := setupTools(t, Options{})

	sess, _ := e.store.CreateSession("", true)
	ann, _ := e.store.CreateAnnotation(models.Annotation{SessionID: sess.ID})

	var updated models.Annotation
	decodeResult(t, e.call(t, "acknowledge", map[string]string{"id": ann.ID, "message": "looking"}), &updated)
	if updated.Status != models.StatusAcknowledged {
		t.Fatalf("expected acknowledged, got %q", updated.Status)
	}
	if len(updated.Replies) != 1 || updated.Replies[0].Author != models.AuthorAgent {
		t.Fatalf("expected agent reply, got %#v", updated.Replies)
	}

	env := e.call(t, "acknowledge", map[string]string{"id": ann.ID})
	if env.OK || env.Err.Code != CodeValidation {
		t.Fatalf("expected validation error, got %+v", env)
	}
	if env.Err.Message != "Annotation "+ann.ID+" is already acknowledged" {
		t.Fatalf("unexpected message: %q", env.Err.Message)
	}
}

// TestDismissRequiresReason verifies dismissal rejects a blank reason and
// records the reason as an agent reply otherwise.
func TestDismissRequiresReason(t *testing.T) {
	e := setupTools(t, Options{})

	sess, _ := e.store.CreateSession("", true)
	ann, _ := e.store.CreateAnnotation(models.Annotation{SessionID: sess.ID})

	env := e.call(t, "dismiss", map[string]string{"id": ann.ID, "reason": "  "})
	if env.OK || env.Err.Code != CodeValidation || env.Err.Message != "Reason is required for dismissal" {
		t.Fatalf("expected reason validation error, got %+v", env)
	}

	var updated models.Annotation
	decodeResult(t, e.call(t, "dismiss", map[string]string{"id": ann.ID, "reason": "duplicate of earlier note"}), &updated)
	if updated.Status != models.StatusDismissed {
		t.Fatalf("expected dismissed, got %q", updated.Status)
	}
	if len(updated.Replies) != 1 || updated.Replies[0].Message != "duplicate of earlier note" {
		t.Fatalf("reason not recorded: %#v", updated.Replies)
	}

	// An annotation already in a terminal state cannot be dismissed again.
	env = e.call(t, "dismiss", map[string]string{"id": ann.ID, "reason": "again"})
	if env.OK || env.Err.Code != CodeValidation {
		t.Fatalf("dismiss of dismissed annotation should fail validation: %+v", env)
	}
}

// TestReplyValidation verifies reply requires id and message.
func TestReplyValidation(t *testing.T) {
	e := setupTools(t, Options{})

	sess, _ := e.store.CreateSession("", true)
	ann, _ := e.store.CreateAnnotation(models.Annotation{SessionID: sess.ID})

	env := e.call(t, "reply", map[string]string{"id": ann.ID})
	if env.OK || env.Err.Code != CodeValidation {
		t.Fatalf("expected validation error, got %+v", env)
	}

	env = e.call(t, "reply", map[string]string{"id": "missing", "message": "hello"})
	if env.OK || env.Err.Code != CodeNotFound {
		t.Fatalf("expected not_found, got %+v", env)
	}

	var updated models.Annotation
	decodeResult(t, e.call(t, "reply", map[string]string{"id": ann.ID, "message": "hello"}), &updated)
	if len(updated.Replies) != 1 || updated.Replies[0].Message != "hello" {
		t.Fatalf("reply not recorded: %#v", updated.Replies)
	}
}

// TestDiffHandshake runs the full propose→decide→resolve round trip,
// including a rejected first round and a re-proposal.
func TestDiffHandshake(t *testing.T) {
	e := setupTools(t, Options{PollInterval: 20 * time.Millisecond})

	sess, _ := e.store.CreateSession("", true)
	ann, _ := e.store.CreateAnnotation(models.Annotation{SessionID: sess.ID, AnnotationText: "wrong color"})

	env := e.call(t, "propose_diff", map[string]string{"id": ann.ID, "diff": ""})
	if env.OK || env.Err.Code != CodeValidation {
		t.Fatalf("empty diff should fail validation: %+v", env)
	}

	var updated models.Annotation
	decodeResult(t, e.call(t, "propose_diff", map[string]string{"id": ann.ID, "diff": "--- v1"}), &updated)
	if updated.Status != models.StatusDiffProposed || updated.Diff != "--- v1" {
		t.Fatalf("propose_diff wrong: %#v", updated)
	}

	// Reviewer rejects the first round.
	rejected := models.DiffRejected
	if _, err := e.store.UpdateAnnotation(ann.ID, store.AnnotationPatch{DiffResponse: &rejected}); err != nil {
		t.Fatalf("UpdateAnnotation: %v", err)
	}

	var watch struct {
		Status     string             `json:"status"`
		Annotation *models.Annotation `json:"annotation"`
	}
	decodeResult(t, e.call(t, "watch_diff_response", map[string]any{"id": ann.ID}), &watch)
	if watch.Status != "rejected" || watch.Annotation == nil {
		t.Fatalf("expected rejected decision, got %+v", watch)
	}

	// Re-proposing clears the previous decision so the next watch blocks.
	decodeResult(t, e.call(t, "propose_diff", map[string]string{"id": ann.ID, "diff": "--- v2"}), &updated)
	if updated.DiffResponse != "" || updated.Diff != "--- v2" {
		t.Fatalf("re-propose did not reset decision: %#v", updated)
	}

	// Reviewer approves the second round while the agent is watching.
	go func() {
		time.Sleep(50 * time.Millisecond)
		approved := models.DiffApproved
		_, _ = e.store.UpdateAnnotation(ann.ID, store.AnnotationPatch{DiffResponse: &approved})
	}()
	decodeResult(t, e.call(t, "watch_diff_response", map[string]any{"id": ann.ID, "timeoutMs": 2000}), &watch)
	if watch.Status != "approved" {
		t.Fatalf("expected approved decision, got %+v", watch)
	}

	decodeResult(t, e.call(t, "resolve", map[string]string{"id": ann.ID, "summary": "shipped"}), &updated)
	if updated.Status != models.StatusResolved {
		t.Fatalf("expected resolved, got %q", updated.Status)
	}
	if len(updated.Replies) != 1 || updated.Replies[0].Message != "shipped" {
		t.Fatalf("summary reply missing: %#v", updated.Replies)
	}
}
