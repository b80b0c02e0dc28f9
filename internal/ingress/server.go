// Package ingress implements the HTTP adapters clients talk to: the OpenAI
// and Anthropic chat endpoints and the health check, per section 4.9.
// Grounded on the teacher's internal/proxy/handler.go HandleMessages/
// parseAndValidateRequest/HandleHealth, generalized from a single
// Anthropic-only endpoint to the two dialect-tagged endpoints section 4.9
// specifies, with caching/cost-tracking/circuit-breaker concerns (out of
// scope per the spec's non-goals) dropped.
package ingress

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/llmgatewayd/llmgatewayd/internal/config"
	"github.com/llmgatewayd/llmgatewayd/internal/dialect"
	"github.com/llmgatewayd/llmgatewayd/internal/headers"
	"github.com/llmgatewayd/llmgatewayd/internal/pipeline"
	"github.com/llmgatewayd/llmgatewayd/internal/route"
)

// Server holds the immutable, read-only-after-startup routing table and the
// pipeline that executes a resolved route.
type Server struct {
	Routes   []config.Route
	Pipeline *pipeline.Pipeline
	Log      *zap.SugaredLogger
}

// New returns a Server ready to be mounted via Handler.
func New(routes []config.Route, p *pipeline.Pipeline, log *zap.SugaredLogger) *Server {
	return &Server{Routes: routes, Pipeline: p, Log: log}
}

// Handler returns the mux wiring the three endpoints section 4.9 describes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", s.handle(dialect.OpenAI))
	mux.HandleFunc("/v1/messages", s.handle(dialect.Anthropic))
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// handle returns the common parse/validate/resolve/forward flow for an
// ingress endpoint whose wire dialect is sourceDialect.
func (s *Server) handle(sourceDialect dialect.Dialect) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			pipeline.WriteError(w, &pipeline.Error{Kind: pipeline.KindBadRequest, Message: "method not allowed"})
			return
		}

		body, err := io.ReadAll(r.Body)
		defer r.Body.Close()
		if err != nil || !json.Valid(body) {
			pipeline.WriteError(w, &pipeline.Error{Kind: pipeline.KindBadRequest, Message: "invalid JSON request body"})
			return
		}

		model := gjson.GetBytes(body, "model").String()
		if model == "" {
			pipeline.WriteError(w, &pipeline.Error{Kind: pipeline.KindBadRequest, Message: "model is required"})
			return
		}

		rt, ok := route.Resolve(s.Routes, model)
		if !ok {
			pipeline.WriteError(w, &pipeline.Error{Kind: pipeline.KindRouteNotFound, Message: "no route configured for model " + model})
			return
		}

		streaming := gjson.GetBytes(body, "stream").Bool()

		src := sourceDialect
		if src == rt.Provider.Type {
			src = ""
		}

		in := headers.FromHTTPHeader(r.Header)
		s.Pipeline.Forward(r.Context(), w, in, body, rt, streaming, src)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
