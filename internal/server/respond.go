package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	clierr "github.com/ggonzalez94/lingo-wallet/internal/errors"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// writeOK merges success:true into the fields of body.
func writeOK(w http.ResponseWriter, body map[string]any) {
	if body == nil {
		body = map[string]any{}
	}
	body["success"] = true
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := clierr.CodeInternal
	msg := "internal error"
	if ce, ok := clierr.As(err); ok {
		code = ce.Code
		msg = ce.Message
	}
	status := clierr.HTTPStatus(code)
	if status < http.StatusInternalServerError {
		msg = err.Error()
	}
	log := s.log.WithError(err).WithField("path", r.URL.Path)
	if status >= http.StatusInternalServerError {
		log.Error("request failed")
	} else {
		log.Debug("request rejected")
	}
	writeJSON(w, status, errorResponse{Error: msg, Code: clierr.TypeName(code)})
}

// decode reads a JSON body into dst. Unknown fields are ignored so older
// clients keep working.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return clierr.New(clierr.CodeUsage, "request body is required")
		}
		return clierr.Wrap(clierr.CodeUsage, "invalid JSON body", err)
	}
	return nil
}
