package gateway

import (
	"encoding/json"
	"net/http"
)

// graphQLRequest is the JSON body of a client operation
type graphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// graphQLResponse is the JSON body the gateway answers with
type graphQLResponse struct {
	Data   any               `json:"data"`
	Errors []json.RawMessage `json:"errors,omitempty"`
}

// writeResult writes a successful execution result
func writeResult(w http.ResponseWriter, data any, errs []json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(graphQLResponse{Data: data, Errors: errs})
}

// writeGraphQLError writes a single-error response with the given status
func writeGraphQLError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	raw, _ := json.Marshal(map[string]any{
		"message": message,
		"extensions": map[string]any{
			"http": map[string]any{"status": status},
		},
	})
	_ = json.NewEncoder(w).Encode(graphQLResponse{Errors: []json.RawMessage{raw}})
}
