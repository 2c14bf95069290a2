// Package scope implements share-token scope enforcement. A share token
// carries an allow-list of query names with optional required-argument
// constraints; operations outside the list are rejected before any subgraph
// is contacted.
package scope

import (
	"encoding/json"
	"reflect"

	"github.com/vektah/gqlparser/v2/ast"
)

// Entry allows one query, optionally pinned to required argument values
type Entry struct {
	QueryName    string         `json:"queryName"`
	RequiredArgs map[string]any `json:"requiredArgs,omitempty"`
}

// Set is the ordered allow-list attached to a share token
type Set struct {
	AllowedQueries []Entry `json:"allowedQueries"`
}

// Parse decodes a scope set from its JSON form. The identity service returns
// scopes either as a JSON object or as a JSON-encoded string carrying one.
func Parse(raw []byte) (*Set, error) {
	if len(raw) == 0 {
		return &Set{}, nil
	}

	var inner string
	if err := json.Unmarshal(raw, &inner); err == nil {
		raw = []byte(inner)
	}

	var s Set
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Allow decides whether the parsed operation is admitted by this scope set.
//
// The operation field name is the first top-level selection of the first
// query operation; mutations and subscriptions are never admitted by share
// tokens. An entry matches when its queryName equals the operation field name
// and every required argument equals the corresponding operation variable by
// strict value equality, no type coercion.
func (s *Set) Allow(doc *ast.QueryDocument, variables map[string]any) bool {
	if s == nil || doc == nil {
		return false
	}

	fieldName := operationFieldName(doc)
	if fieldName == "" {
		return false
	}

	for _, entry := range s.AllowedQueries {
		if entry.QueryName != fieldName {
			continue
		}
		if argsMatch(entry.RequiredArgs, variables) {
			return true
		}
	}
	return false
}

// operationFieldName extracts the first top-level field of the first query
// operation, empty when there is none
func operationFieldName(doc *ast.QueryDocument) string {
	for _, op := range doc.Operations {
		if op.Operation != ast.Query {
			continue
		}
		for _, sel := range op.SelectionSet {
			if field, ok := sel.(*ast.Field); ok {
				return field.Name
			}
		}
		return ""
	}
	return ""
}

// argsMatch checks every required argument against the request variables
func argsMatch(required map[string]any, variables map[string]any) bool {
	for name, want := range required {
		got, ok := variables[name]
		if !ok {
			return false
		}
		if !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}
