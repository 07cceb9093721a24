package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"annotated/pkg/models"
	"annotated/pkg/store"
	"annotated/pkg/utils"
)

// RegisterAnnotations mounts the read-only annotation routes.
func RegisterAnnotations(r *mux.Router, st *store.Store) {
	r.HandleFunc("/annotations", listAnnotations(st)).Methods(http.MethodGet)
	r.HandleFunc("/annotations/{id}", getAnnotation(st)).Methods(http.MethodGet)
}

// listAnnotations handles GET /annotations?session=<id>&status=<status>.
// Both filters are optional; results are sorted oldest first.
func listAnnotations(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("session")
		status := models.AnnotationStatus(r.URL.Query().Get("status"))
		if status != "" && !status.Valid() {
			utils.JSONError(w, http.StatusBadRequest, "invalid status: "+string(status))
			return
		}
		anns, err := st.ListAnnotations(sessionID, status)
		if err != nil {
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"annotations": anns})
	}
}

func getAnnotation(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		ann, err := st.GetAnnotation(id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				utils.JSONError(w, http.StatusNotFound, "annotation not found: "+id)
				return
			}
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		_ = utils.JSONWrite(w, http.StatusOK, ann)
	}
}
