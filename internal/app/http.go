package app

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"annotated/pkg/api/handlers"
	"annotated/pkg/logger"
)

func (a *App) setupHTTPHandlers() http.Handler {
	r := mux.NewRouter()

	r.Handle("/__annotate", a.hub)

	v1 := r.PathPrefix("/v1").Subrouter()
	a.toolsSvc.Register(v1)
	handlers.RegisterSessions(v1, a.store)
	handlers.RegisterAnnotations(v1, a.store)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !a.store.Ready() {
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			logger.LogRequest(req)
			next.ServeHTTP(w, req)
		})
	})
	return r
}

func (a *App) startHTTP() <-chan error {
	a.srv = &http.Server{
		Addr:    a.eff.Addr,
		Handler: a.setupHTTPHandlers(),
		// Long-poll tools hold the response open for up to the configured
		// watch timeout, so no WriteTimeout here; slow-client protection is
		// limited to header reads.
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_listen", "addr", a.eff.Addr)
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}
