package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"

	"annotated/pkg/models"
	"annotated/pkg/store"
)

func setup(t *testing.T) (*store.Store, *httptest.Server) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	r := mux.NewRouter()
	RegisterSessions(r, st)
	RegisterAnnotations(r, st)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return st, srv
}

func getJSON(t *testing.T, url string, wantStatus int, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s: status %d, want %d", url, resp.StatusCode, wantStatus)
	}
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
}

// TestSessionRoutes verifies the read-only session listing and detail view.
func TestSessionRoutes(t *testing.T) {
	st, srv := setup(t)

	sess, _ := st.CreateSession("http://localhost:4200/", true)
	if _, err := st.CreateAnnotation(models.Annotation{SessionID: sess.ID}); err != nil {
		t.Fatalf("CreateAnnotation: %v", err)
	}

	var list struct {
		Sessions []models.Session `json:"sessions"`
	}
	getJSON(t, srv.URL+"/sessions", http.StatusOK, &list)
	if len(list.Sessions) != 1 || list.Sessions[0].ID != sess.ID {
		t.Fatalf("sessions list wrong: %#v", list)
	}

	var detail struct {
		Session     models.Session      `json:"session"`
		Annotations []models.Annotation `json:"annotations"`
	}
	getJSON(t, srv.URL+"/sessions/"+sess.ID, http.StatusOK, &detail)
	if detail.Session.ID != sess.ID || len(detail.Annotations) != 1 {
		t.Fatalf("session detail wrong: %#v", detail)
	}

	getJSON(t, srv.URL+"/sessions/missing", http.StatusNotFound, nil)
}

// TestAnnotationRoutes verifies the annotation filters and the invalid
// status rejection.
func TestAnnotationRoutes(t *testing.T) {
	st, srv := setup(t)

	sess, _ := st.CreateSession("", true)
	ann, _ := st.CreateAnnotation(models.Annotation{SessionID: sess.ID})
	other, _ := st.CreateAnnotation(models.Annotation{SessionID: sess.ID})
	status := models.StatusResolved
	if _, err := st.UpdateAnnotation(other.ID, store.AnnotationPatch{Status: &status}); err != nil {
		t.Fatalf("UpdateAnnotation: %v", err)
	}

	var list struct {
		Annotations []models.Annotation `json:"annotations"`
	}
	getJSON(t, srv.URL+"/annotations", http.StatusOK, &list)
	if len(list.Annotations) != 2 {
		t.Fatalf("expected 2 annotations, got %d", len(list.Annotations))
	}

	getJSON(t, srv.URL+"/annotations?session="+sess.ID+"&status=pending", http.StatusOK, &list)
	if len(list.Annotations) != 1 || list.Annotations[0].ID != ann.ID {
		t.Fatalf("filter wrong: %#v", list)
	}

	getJSON(t, srv.URL+"/annotations?status=bogus", http.StatusBadRequest, nil)

	var got models.Annotation
	getJSON(t, srv.URL+"/annotations/"+ann.ID, http.StatusOK, &got)
	if got.ID != ann.ID {
		t.Fatalf("annotation detail wrong: %#v", got)
	}
	getJSON(t, srv.URL+"/annotations/missing", http.StatusNotFound, nil)
}
