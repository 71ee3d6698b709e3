package api

import (
	"encoding/json"
	"net/http"

	"github.com/chainaudit/chainaudit/pkg/errors"
	"github.com/chainaudit/chainaudit/pkg/logg"
)

const (
	contentType     = "Content-Type"
	applicationJSON = "application/json"
	callerHeader    = "X-User-Email"
)

type (
	errorResponse struct {
		Error string `json:"error"`
	}
	messageResponse struct {
		Message string `json:"message"`
	}
)

func writeJSON(log logg.Logg, w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set(contentType, applicationJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		errors.ErrLog(log, err).Error("unable to write response")
	}
}

func writeMessage(log logg.Logg, w http.ResponseWriter, status int, message string) {
	writeJSON(log, w, status, &messageResponse{Message: message})
}

// Status follows the error kind. Unclassified errors are logged with their stacktrace.
func writeError(log logg.Logg, w http.ResponseWriter, err error) {
	kind := errors.KindOf(err)
	status := kind.Status()
	if kind == errors.Unknown {
		errors.ErrLog(log, err).Error("request failed")
	} else {
		log.WithError(err).WithField("status", status).Debug("request rejected")
	}
	writeJSON(log, w, status, &errorResponse{Error: err.Error()})
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Tag(errors.BadRequest, errors.WithMessage(err, "invalid JSON body"))
	}
	return nil
}
