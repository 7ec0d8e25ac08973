package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	json "github.com/goccy/go-json"

	siteerrors "github.com/conneroisu/trattoria/internal/errors"
	"github.com/conneroisu/trattoria/internal/logging"
)

// maxBodyBytes bounds admin request bodies.
const maxBodyBytes = 1 << 20

// ErrorBody is the JSON shape of every API error.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failed request.
type ErrorDetail struct {
	Type      string                 `json:"type"`
	Code      string                 `json:"code,omitempty"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	RequestID string                 `json:"requestId,omitempty"`
}

var notFoundRoute = siteerrors.SiteError{
	Type:    siteerrors.ErrorTypeNotFound,
	Code:    "ROUTE_NOT_FOUND",
	Message: "no such route",
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status code through the error taxonomy. Internal
// failures are logged and their message withheld.
func writeError(w http.ResponseWriter, r *http.Request, logger logging.Logger, err error) {
	status, detail := describeError(w, r, logger, err)
	writeJSON(w, status, ErrorBody{Error: detail})
}

func describeError(w http.ResponseWriter, r *http.Request, logger logging.Logger, err error) (int, ErrorDetail) {
	status := siteerrors.HTTPStatus(err)
	detail := ErrorDetail{
		Type:      string(siteerrors.ErrorTypeInternal),
		Message:   http.StatusText(status),
		RequestID: logging.RequestIDFromContext(r.Context()),
	}

	var se *siteerrors.SiteError
	if errors.As(err, &se) {
		detail.Type = string(se.Type)
		detail.Code = se.Code
		if se.Type != siteerrors.ErrorTypeInternal {
			detail.Message = se.Error()
			detail.Context = se.Context
		}
	}

	if status >= http.StatusInternalServerError {
		logger.Warn(r.Context(), err, "Request failed", "method", r.Method, "path", r.URL.Path, "status", status)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	return status, detail
}

// decodeJSON reads a bounded JSON body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return siteerrors.NewValidationError("EMPTY_BODY", "request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return siteerrors.NewValidationError("BODY_TOO_LARGE", fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		}
		return siteerrors.NewValidationError("INVALID_JSON", fmt.Sprintf("decode request body: %v", err))
	}
	return nil
}
