// Package planner derives per-subgraph execution plans from client operations
// and runs them against the current supergraph snapshot.
//
// Planning groups the operation's top-level selections by the subgraph that
// owns each root field. One fetch is produced per subgraph per layer; fetches
// in the same layer are independent and run concurrently. The plan is bound
// to the supergraph generation it was derived from.
package planner

import (
	"bytes"
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/validator"

	"github.com/Gratheon/graphql-router/dispatch"
	"github.com/Gratheon/graphql-router/errors"
	"github.com/Gratheon/graphql-router/supergraph"
)

// Fetch is one sub-operation bound for a named subgraph
type Fetch struct {
	Subgraph string
	Request  dispatch.Request
}

// Layer groups fetches with no dependencies between them
type Layer struct {
	Fetches []Fetch
}

// Plan is the execution plan for one operation against one supergraph
// generation
type Plan struct {
	Layers []Layer
	// Generation records the supergraph generation the plan was derived from
	Generation uint64
	// LocalFields are root fields the router answers itself (__typename)
	LocalFields []string
}

// BuildPlan derives a plan for the given parsed operation. The document must
// already have passed scope enforcement; validation against the supergraph
// schema happens here.
func BuildPlan(sg *supergraph.Supergraph, doc *ast.QueryDocument,
	operationName string, variables map[string]any) (*Plan, error) {
	if sg == nil {
		return nil, errors.WrapFatal(errors.ErrNoSupergraph, "Planner", "BuildPlan",
			"no supergraph published")
	}

	op, err := selectOperation(doc, operationName)
	if err != nil {
		return nil, err
	}

	if op.Operation == ast.Subscription {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: subscriptions are not supported", errors.ErrInvalidQuery),
			"Planner", "BuildPlan", "operation kind check")
	}

	if errs := validator.Validate(sg.Schema, doc); len(errs) > 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidQuery, errs.Error()),
			"Planner", "BuildPlan", "operation validation")
	}

	routing := sg.Routing.Query
	if op.Operation == ast.Mutation {
		routing = sg.Routing.Mutation
	}

	// Group top-level selections by owning subgraph, preserving field order
	var order []string
	grouped := make(map[string]ast.SelectionSet)
	var local []string

	for _, sel := range op.SelectionSet {
		field, ok := sel.(*ast.Field)
		if !ok {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: top-level fragments are not supported", errors.ErrInvalidQuery),
				"Planner", "BuildPlan", "selection grouping")
		}

		if field.Name == "__typename" {
			local = append(local, field.Alias)
			continue
		}

		owner, ok := routing[field.Name]
		if !ok {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: no subgraph resolves field %q", errors.ErrInvalidQuery, field.Name),
				"Planner", "BuildPlan", "field routing")
		}
		if _, seen := grouped[owner]; !seen {
			order = append(order, owner)
		}
		grouped[owner] = append(grouped[owner], field)
	}

	layer := Layer{}
	for _, owner := range order {
		req, err := subRequest(doc, op, grouped[owner], variables)
		if err != nil {
			return nil, err
		}
		layer.Fetches = append(layer.Fetches, Fetch{Subgraph: owner, Request: req})
	}

	plan := &Plan{Generation: sg.Generation, LocalFields: local}
	if len(layer.Fetches) > 0 {
		plan.Layers = append(plan.Layers, layer)
	}
	return plan, nil
}

// selectOperation picks the requested operation from the document
func selectOperation(doc *ast.QueryDocument, name string) (*ast.OperationDefinition, error) {
	if doc == nil || len(doc.Operations) == 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: document has no operations", errors.ErrInvalidQuery),
			"Planner", "selectOperation", "operation lookup")
	}
	if name == "" {
		return doc.Operations[0], nil
	}
	if op := doc.Operations.ForName(name); op != nil {
		return op, nil
	}
	return nil, errors.WrapInvalid(
		fmt.Errorf("%w: unknown operation %q", errors.ErrInvalidQuery, name),
		"Planner", "selectOperation", "operation lookup")
}

// subRequest renders the sub-operation carrying only the given selections,
// the variable definitions they use, and the fragments they reference
func subRequest(doc *ast.QueryDocument, op *ast.OperationDefinition,
	selections ast.SelectionSet, variables map[string]any) (dispatch.Request, error) {

	usedFragments := collectFragments(doc, selections)
	usedVars := collectVariables(selections, usedFragments)

	var varDefs ast.VariableDefinitionList
	for _, vd := range op.VariableDefinitions {
		if usedVars[vd.Variable] {
			varDefs = append(varDefs, vd)
		}
	}

	subOp := &ast.OperationDefinition{
		Operation:           op.Operation,
		Name:                op.Name,
		VariableDefinitions: varDefs,
		SelectionSet:        selections,
	}
	subDoc := &ast.QueryDocument{
		Operations: ast.OperationList{subOp},
		Fragments:  usedFragments,
	}

	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatQueryDocument(subDoc)

	subVars := make(map[string]any)
	for name := range usedVars {
		if v, ok := variables[name]; ok {
			subVars[name] = v
		}
	}
	if len(subVars) == 0 {
		subVars = nil
	}

	var opName string
	if op.Name != "" {
		opName = op.Name
	}

	return dispatch.Request{
		Query:         buf.String(),
		Variables:     subVars,
		OperationName: opName,
	}, nil
}

// collectFragments gathers fragment definitions referenced from the selections
func collectFragments(doc *ast.QueryDocument, selections ast.SelectionSet) ast.FragmentDefinitionList {
	seen := make(map[string]bool)
	var out ast.FragmentDefinitionList

	var walk func(set ast.SelectionSet)
	walk = func(set ast.SelectionSet) {
		for _, sel := range set {
			switch s := sel.(type) {
			case *ast.Field:
				walk(s.SelectionSet)
			case *ast.InlineFragment:
				walk(s.SelectionSet)
			case *ast.FragmentSpread:
				if seen[s.Name] {
					continue
				}
				seen[s.Name] = true
				if def := doc.Fragments.ForName(s.Name); def != nil {
					out = append(out, def)
					walk(def.SelectionSet)
				}
			}
		}
	}
	walk(selections)
	return out
}

// collectVariables gathers variable names used anywhere in the selections or
// the fragments they reference
func collectVariables(selections ast.SelectionSet, fragments ast.FragmentDefinitionList) map[string]bool {
	used := make(map[string]bool)

	var walkValue func(v *ast.Value)
	walkValue = func(v *ast.Value) {
		if v == nil {
			return
		}
		if v.Kind == ast.Variable {
			used[v.Raw] = true
		}
		for _, child := range v.Children {
			walkValue(child.Value)
		}
	}

	var walkSet func(set ast.SelectionSet)
	walkSet = func(set ast.SelectionSet) {
		for _, sel := range set {
			switch s := sel.(type) {
			case *ast.Field:
				for _, arg := range s.Arguments {
					walkValue(arg.Value)
				}
				for _, dir := range s.Directives {
					for _, arg := range dir.Arguments {
						walkValue(arg.Value)
					}
				}
				walkSet(s.SelectionSet)
			case *ast.InlineFragment:
				walkSet(s.SelectionSet)
			case *ast.FragmentSpread:
				// Fragment bodies are walked below
			}
		}
	}

	walkSet(selections)
	for _, frag := range fragments {
		walkSet(frag.SelectionSet)
	}
	return used
}
