package server

import (
	"encoding/json"
	"net/http"

	"github.com/fennec-api/fennec/internal/orm/query"
)

// Envelope is the uniform response body: a message, the data payload, and
// the unpaginated row count for paginated lists.
type Envelope struct {
	Message  string `json:"message"`
	Data     any    `json:"data"`
	TotalRow *int64 `json:"total_row,omitempty"`
}

func respond(w http.ResponseWriter, status int, message string, data any, total *int64) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Envelope{Message: message, Data: data, TotalRow: total})
}

func respondResult(w http.ResponseWriter, res *query.Result) {
	var total *int64
	if res.Paginated {
		total = &res.Total
	}
	respond(w, http.StatusOK, "success", res.Data, total)
}

func respondError(w http.ResponseWriter, rerr *query.ResponseError) {
	respond(w, rerr.Status, rerr.Message, []map[string]any{}, nil)
}
