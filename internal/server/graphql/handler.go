package graphqlserver

import (
	"encoding/json"
	"net/http"

	graphql "github.com/graph-gophers/graphql-go"

	"github.com/marginalia-app/marginalia/internal/server/guard"
)

// Handler executes GraphQL requests. Before execution it stashes the raw
// HTTP request and response writer in the execution context, which is what
// lets the guard and the cookie layer behave identically to REST.
type Handler struct {
	schema *graphql.Schema
}

// NewHandler parses the schema against the resolver. Panics on an invalid
// schema, which is a programming error.
func NewHandler(r *Resolver) *Handler {
	return &Handler{schema: graphql.MustParseSchema(Schema, r)}
}

type request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	ctx := guard.WithHTTPRequest(r.Context(), r)
	ctx = withResponseWriter(ctx, w)

	resp := h.schema.Exec(ctx, req.Query, req.OperationName, req.Variables)
	out, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(out)
}
