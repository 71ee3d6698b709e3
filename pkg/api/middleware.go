package api

import (
	"net/http"
	"time"

	"github.com/chainaudit/chainaudit/pkg/errors"
	"github.com/chainaudit/chainaudit/pkg/logg"
	"github.com/hako/durafmt"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Panics become a 500 JSON error, the process keeps serving
func recoveryMiddleware(log logg.Logg, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer errors.CatchPanicDo(func(err error) {
			errors.ErrLog(log, err).WithField("path", r.URL.Path).Error("panic while handling request")
			writeJSON(log, w, http.StatusInternalServerError, &errorResponse{Error: "internal server error"})
		})

		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(log logg.Logg, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		log.WithFields(logg.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   recorder.status,
			"duration": durafmt.Parse(time.Since(start)).String(),
		}).Info("request handled")
	})
}
