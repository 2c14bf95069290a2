package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/Gratheon/graphql-router/auth"
	"github.com/Gratheon/graphql-router/errors"
	"github.com/Gratheon/graphql-router/events"
	"github.com/Gratheon/graphql-router/planner"
)

// forbiddenMessage is the single error body of a share-scope denial
const forbiddenMessage = "Forbidden: Operation not allowed by share token scope."

// handleGraphQL is the execution endpoint: GET serves the playground, POST
// runs the pipeline of auth, scope gate, planning and dispatch.
func (s *Server) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if s.config.EnablePlayground {
			s.playgroundHandler()(w, r)
			return
		}
		s.handleNotFound(w, r)
	case http.MethodPost:
		s.executeGraphQL(w, r)
	default:
		s.handleNotFound(w, r)
	}
}

// executeGraphQL runs one client operation end to end
func (s *Server) executeGraphQL(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := requestID(r)
	w.Header().Set("X-Request-ID", requestID)

	// Unexpected pipeline panics become a generic 500; detail stays in logs
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("panic in request pipeline", "request_id", requestID, "panic", rec)
			sentry.CurrentHub().Recover(rec)
			s.metrics.ObserveRequest("500", "", time.Since(start).Seconds())
			writeGraphQLError(w, http.StatusInternalServerError, "Internal server error")
		}
	}()

	var req graphQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, start, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Query == "" {
		s.fail(w, start, http.StatusBadRequest, "No query provided")
		return
	}

	// The auth context is computed once, before anything else reads it
	authCtx := s.pipeline.Resolve(r)
	if authCtx.Kind() == auth.Failed {
		status := errors.HTTPStatus(authCtx.Err())
		message := "Unauthorized"
		if status != http.StatusUnauthorized {
			message = "Internal server error"
			s.logger.Error("credential resolution failed",
				"request_id", requestID, "error", authCtx.Err())
		}
		s.fail(w, start, status, message)
		return
	}

	// Snapshot the supergraph once; the whole request plans and dispatches
	// against this generation
	sg := s.manager.Current()
	if sg == nil {
		s.fail(w, start, http.StatusServiceUnavailable, "No supergraph available")
		return
	}

	doc, parseErr := parser.ParseQuery(&ast.Source{Input: req.Query})
	if parseErr != nil {
		s.fail(w, start, http.StatusBadRequest, parseErr.Error())
		return
	}

	if scopes, shared := authCtx.Scopes(); shared {
		// Gate the operation that will run, so another operation of the same
		// document cannot pass the check on its behalf
		var selected ast.OperationList
		if req.OperationName == "" && len(doc.Operations) > 0 {
			selected = doc.Operations[:1]
		} else if op := doc.Operations.ForName(req.OperationName); op != nil {
			selected = ast.OperationList{op}
		}
		if !scopes.Allow(&ast.QueryDocument{Operations: selected}, req.Variables) {
			s.fail(w, start, http.StatusForbidden, forbiddenMessage)
			return
		}
	}

	plan, err := planner.BuildPlan(sg, doc, req.OperationName, req.Variables)
	if err != nil {
		s.fail(w, start, errors.HTTPStatus(err), err.Error())
		return
	}

	result := s.executorFor(sg).Execute(r.Context(), plan, authCtx)
	writeResult(w, resultData(result), result.Errors)

	s.metrics.ObserveRequest("200", operationLabel(doc), time.Since(start).Seconds())
	s.publishQueryEvent(requestID, authCtx, req.OperationName, doc, start, len(result.Errors))
}

// fail writes a single-error response and records the outcome
func (s *Server) fail(w http.ResponseWriter, start time.Time, status int, message string) {
	s.metrics.ObserveRequest(strconv.Itoa(status), "", time.Since(start).Seconds())
	writeGraphQLError(w, status, message)
}

// resultData normalizes an empty execution into an explicit null
func resultData(result *planner.Result) any {
	if result.Data == nil {
		return nil
	}
	return result.Data
}

// publishQueryEvent emits a query-log event; the publisher swallows failures
func (s *Server) publishQueryEvent(requestID string, authCtx *auth.Context,
	operationName string, doc *ast.QueryDocument, start time.Time, errorCount int) {
	if s.publisher == nil || !s.publisher.Enabled() {
		return
	}

	userID, _ := authCtx.UserID()
	s.publisher.Publish(events.QueryEvent{
		RequestID:     requestID,
		UserID:        userID,
		OperationName: operationName,
		FieldName:     operationLabel(doc),
		DurationMs:    time.Since(start).Milliseconds(),
		ErrorCount:    errorCount,
	})
}

// operationLabel names an operation by its first top-level field
func operationLabel(doc *ast.QueryDocument) string {
	if doc == nil || len(doc.Operations) == 0 {
		return ""
	}
	for _, sel := range doc.Operations[0].SelectionSet {
		if field, ok := sel.(*ast.Field); ok {
			return field.Name
		}
	}
	return ""
}

// requestID honors an inbound X-Request-ID, generating one otherwise
func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}
