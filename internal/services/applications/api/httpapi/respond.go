package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	apperrors "github.com/ansa-jobboard/jobboard/internal/platform/errors"
	"github.com/ansa-jobboard/jobboard/internal/platform/errors/i18n"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps err to its HTTP status and a localized public message.
// Internal details are logged, never returned.
func writeError(w http.ResponseWriter, r *http.Request, logger logrus.FieldLogger, err error) {
	code := apperrors.CodeOf(err)
	if code == "" {
		code = apperrors.CodeUnknown
	}
	var metadata map[string]string
	if domainErr, ok := apperrors.As(err); ok {
		metadata = domainErr.Metadata
	}

	status := code.HTTPStatus()
	entry := logger.WithFields(logrus.Fields{
		"code":       string(code),
		"method":     r.Method,
		"path":       r.URL.Path,
		"request_id": r.Header.Get(requestIDHeader),
	}).WithError(err)
	if code.Internal() {
		entry.Error("request error")
	} else {
		entry.Debug("request rejected")
	}

	catalog := i18n.GetCatalog(r.Header.Get("Accept-Language"))
	writeJSON(w, status, errorBody{Error: errorDetail{
		Code:    string(code),
		Message: catalog.Format(string(code), metadata),
	}})
}
