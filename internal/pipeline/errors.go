package pipeline

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Kind classifies a pipeline-layer failure, per section 7's error taxonomy.
type Kind string

const (
	KindBadRequest         Kind = "bad_request"
	KindRouteNotFound      Kind = "route_not_found"
	KindUpstreamFailure    Kind = "upstream_failure"
	KindTranslationFailure Kind = "translation_failure"
	KindInternalError      Kind = "internal_error"
)

// Error is a typed pipeline failure carrying the status code and envelope
// "type" field it maps to on the wire.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps a Kind to the HTTP status section 7 assigns it.
func (e *Error) Status() int {
	switch e.Kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindRouteNotFound:
		return http.StatusNotFound
	case KindUpstreamFailure:
		return http.StatusBadGateway
	case KindInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// envelopeType maps a Kind to the wire "type" field in the error envelope.
func (e *Error) envelopeType() string {
	if e.Kind == KindBadRequest {
		return "invalid_request_error"
	}
	return "proxy_error"
}

// WriteError writes the JSON error envelope {error:{message,type}} from
// section 6/7 and sets the matching status code. Safe to call at most once
// per response; callers must not have written a status yet.
func WriteError(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status())
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"message": err.Message,
			"type":    err.envelopeType(),
		},
	})
}
