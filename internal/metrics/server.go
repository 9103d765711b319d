package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/chrissnell/landchange/internal/log"
	"github.com/chrissnell/landchange/pkg/responseformat"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// StatusFunc reports the progress of the current run.
type StatusFunc func() any

// NewRouter returns a router serving /metrics and, when status is non-nil,
// /status in JSON or MessagePack.
func NewRouter(m *Metrics, status StatusFunc) *mux.Router {
	r := mux.NewRouter()
	r.Use(log.HTTPMiddleware)
	r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	if status != nil {
		formatter := responseformat.NewFormatter()
		r.HandleFunc("/status", func(w http.ResponseWriter, req *http.Request) {
			headers := map[string]string{"Cache-Control": "no-cache"}
			if err := formatter.WriteResponse(w, req, status(), headers); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}).Methods(http.MethodGet)
	}
	return r
}

// Serve runs an HTTP server on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, h http.Handler, logger *zap.SugaredLogger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Infof("serving metrics on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info("shutting down metrics server")
		return srv.Shutdown(shutdownCtx)
	}
}
