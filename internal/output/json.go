/*
PURPOSE:
  Writes the /psi response envelope and JSON documents for the CLI.

REQUIREMENTS:
  User-specified:
  - Every /psi answer is HTTP 200 with a JSON envelope.
  - code 0 with data on success, code 1 with a message on failure.

  Implementation-discovered:
  - The CLI prints the same payloads, optionally indented.

ARCHITECTURE INTEGRATION:
  - Called by: internal/server, internal/cli
  - Consumes: internal/model.Envelope

ERROR HANDLING:
  - Encoding errors are returned to the caller; HTTP writers have nowhere to report them.

IMPLEMENTATION RULES:
  - Use encoding/json.NewEncoder.
  - Thread-safe.

USAGE:
  output.WriteSuccess(w, flat)
  output.WriteFailure(w, "url不能为空", nil)

RELATED FILES:
  - internal/model/types.go
*/

package output

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/daryltucker/psi-proxy/internal/model"
)

// WriteEnvelope writes env as an HTTP 200 JSON response.
func WriteEnvelope(w http.ResponseWriter, env model.Envelope) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	return json.NewEncoder(w).Encode(env)
}

// WriteSuccess writes {code: 0, data}.
func WriteSuccess(w http.ResponseWriter, data any) error {
	return WriteEnvelope(w, model.Envelope{Code: model.CodeOK, Data: data})
}

// WriteFailure writes {code: 1, message, data}. A nil detail omits data.
func WriteFailure(w http.ResponseWriter, message string, detail *model.ErrorDetail) error {
	env := model.Envelope{Code: model.CodeError, Message: message}
	if detail != nil {
		env.Data = detail
	}
	return WriteEnvelope(w, env)
}

// JSONWriter writes JSON documents to a stream.
type JSONWriter struct {
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter creates a new JSONWriter; indent pretty-prints each document.
func NewJSONWriter(w io.Writer, indent bool) *JSONWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	return &JSONWriter{encoder: enc}
}

// Write writes a single document.
func (jw *JSONWriter) Write(v any) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	return jw.encoder.Encode(v)
}
