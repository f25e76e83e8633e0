package api

import (
	"encoding/json"
	"net/http"
)

// Error is the body of every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Values of Error.Code.
const (
	CodeNotFound         = "not_found"
	CodeMethodNotAllowed = "method_not_allowed"
	CodeInternal         = "internal_error"
)

var codeForStatus = map[int]string{
	http.StatusNotFound:            CodeNotFound,
	http.StatusMethodNotAllowed:    CodeMethodNotAllowed,
	http.StatusInternalServerError: CodeInternal,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	// Headers are out; an encode failure has nowhere to go.
	json.NewEncoder(w).Encode(v) //nolint:errcheck,errchkjson // See above
}

// writeError answers with an Error whose code follows from status.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Error{Status: status, Code: codeForStatus[status], Message: message})
}
