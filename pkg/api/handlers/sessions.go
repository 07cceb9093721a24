package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"annotated/pkg/store"
	"annotated/pkg/utils"
)

// RegisterSessions mounts the read-only session routes. All writes go
// through the push or tool channel; the REST surface exists for dashboards
// and debugging.
func RegisterSessions(r *mux.Router, st *store.Store) {
	r.HandleFunc("/sessions", listSessions(st)).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", getSession(st)).Methods(http.MethodGet)
}

func listSessions(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := st.ListSessions()
		if err != nil {
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"sessions": sessions})
	}
}

func getSession(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		sess, err := st.GetSession(id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				utils.JSONError(w, http.StatusNotFound, "session not found: "+id)
				return
			}
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		anns, err := st.ListAnnotations(id, "")
		if err != nil {
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"session": sess, "annotations": anns})
	}
}
