package graphql

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/graphql-go/graphql"

	"github.com/dd0wney/cluso-audit/pkg/logging"
	"github.com/dd0wney/cluso-audit/pkg/security"
)

// Request is a GraphQL HTTP request body.
type Request struct {
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
	OperationName string                 `json:"operationName,omitempty"`
}

// Response is a GraphQL HTTP response body.
type Response struct {
	Data   interface{} `json:"data,omitempty"`
	Errors []Error     `json:"errors,omitempty"`
}

// Error is one GraphQL error.
type Error struct {
	Message string `json:"message"`
}

// Handler serves the schema over HTTP. A bearer token, when a token
// provider is configured, becomes the request's SecurityContext;
// requests without a valid token run with no capabilities and fail
// closed inside the resolvers.
type Handler struct {
	schema graphql.Schema
	tokens *security.TokenProvider
	logger logging.Logger
}

// NewHandler wires the schema to HTTP.
func NewHandler(schema graphql.Schema, tokens *security.TokenProvider, logger logging.Logger) *Handler {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Handler{
		schema: schema,
		tokens: tokens,
		logger: logger.With(logging.Component("graphql")),
	}
}

// ServeHTTP handles POST /graphql.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if h.tokens != nil {
		if token, ok := bearerToken(r); ok {
			sc, err := h.tokens.ValidateToken(ctx, token)
			if err != nil {
				h.logger.Warn("rejected token", logging.Error(err))
			} else {
				ctx = WithSecurityContext(ctx, sc)
			}
		}
	}

	result := graphql.Do(graphql.Params{
		Schema:         h.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        ctx,
	})

	resp := Response{Data: result.Data}
	for _, gqlErr := range result.Errors {
		resp.Errors = append(resp.Errors, Error{Message: gqlErr.Message})
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Warn("failed to write response", logging.Error(err))
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	return strings.TrimSpace(auth[len(prefix):]), true
}
