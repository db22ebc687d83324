package relayer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mayur2811/chainbridge/pkg/db"
	"github.com/mayur2811/chainbridge/pkg/readiness"
)

// StatusRouter serves /readyz, /metrics and the failed transfer list, which is
// the operator's view of everything the relayer gave up on.
func StatusRouter(ready *readiness.Registry, database *db.Database, logger *zap.Logger) *mux.Router {
	// Use a custom router instead of http.DefaultServeMux to avoid exposing
	// packages that register themselves with it by default.
	router := mux.NewRouter()
	router.HandleFunc("/readyz", ready.Handler)
	router.Handle("/metrics", promhttp.Handler())

	router.HandleFunc("/v1/failed", func(w http.ResponseWriter, _ *http.Request) {
		failed, err := database.ListFailed()
		if err != nil {
			logger.Error("failed to list failed transfers", zap.Error(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(failed); err != nil {
			logger.Warn("failed to write response", zap.Error(err))
		}
	}).Methods(http.MethodGet)

	router.HandleFunc("/v1/failed/{id}", func(w http.ResponseWriter, r *http.Request) {
		err := database.DeleteFailed(mux.Vars(r)["id"])
		if errors.Is(err, db.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)
	return router
}

// RunStatusServer serves handler on addr until ctx is cancelled.
func RunStatusServer(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       time.Second,
		WriteTimeout:      time.Second,
	}
	errC := make(chan error, 1)
	go func() {
		errC <- server.ListenAndServe()
	}()
	logger.Info("status server listening", zap.String("status_addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errC:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
