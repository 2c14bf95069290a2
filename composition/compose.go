// Package composition merges subgraph SDLs into a single supergraph schema.
//
// Each subgraph SDL may carry federation directives (@key, @external,
// @requires, @provides, @shareable). Composition merges type definitions
// field-wise across subgraphs, records which subgraph owns each root field,
// strips federation machinery from the output, and validates the merged
// result. The composer is pure: same descriptors in, same SDL out.
package composition

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"

	"github.com/Gratheon/graphql-router/errors"
	"github.com/Gratheon/graphql-router/registry"
)

// Routing maps root operation fields to the subgraph that owns them
type Routing struct {
	// Query maps Query field name -> subgraph name
	Query map[string]string
	// Mutation maps Mutation field name -> subgraph name
	Mutation map[string]string
}

// Result is a successful composition
type Result struct {
	// SDL is the composed supergraph schema text
	SDL string
	// Schema is the validated supergraph schema
	Schema *ast.Schema
	// Routing assigns root fields to subgraphs
	Routing Routing
}

// Error carries the diagnostics of a failed composition
type Error struct {
	Diagnostics []string
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("composition: %s", strings.Join(e.Diagnostics, "; "))
}

// Unwrap ties composition failures into the gateway error taxonomy
func (e *Error) Unwrap() error {
	return errors.ErrCompositionFailed
}

// Compose merges the given subgraph descriptors into a supergraph. Descriptors
// must carry a parsed AST; callers filter unparseable ones beforehand.
func Compose(descriptors []registry.SubgraphDescriptor) (*Result, error) {
	if len(descriptors) == 0 {
		return nil, &Error{Diagnostics: []string{"no subgraphs to compose"}}
	}

	// Deterministic merge order regardless of registry ordering
	sorted := make([]registry.SubgraphDescriptor, len(descriptors))
	copy(sorted, descriptors)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	m := &merger{
		types:      make(map[string]*ast.Definition),
		directives: make(map[string]*ast.DirectiveDefinition),
		routing:    Routing{Query: map[string]string{}, Mutation: map[string]string{}},
	}

	for _, d := range sorted {
		if d.AST == nil {
			m.diagnostics = append(m.diagnostics,
				fmt.Sprintf("subgraph %s: missing parsed SDL", d.Name))
			continue
		}
		m.mergeSubgraph(d)
	}

	if len(m.diagnostics) > 0 {
		return nil, &Error{Diagnostics: m.diagnostics}
	}

	sdl := m.render()
	if sdl == "" {
		return nil, &Error{Diagnostics: []string{"composition produced no SDL"}}
	}

	schema, err := gqlparser.LoadSchema(&ast.Source{Name: "supergraph", Input: sdl})
	if err != nil {
		return nil, &Error{Diagnostics: []string{err.Error()}}
	}

	return &Result{SDL: sdl, Schema: schema, Routing: m.routing}, nil
}

// merger accumulates type definitions across subgraphs
type merger struct {
	types          map[string]*ast.Definition
	order          []string
	directives     map[string]*ast.DirectiveDefinition
	directiveOrder []string
	routing        Routing
	diagnostics    []string
}

// mergeSubgraph folds one subgraph's definitions and extensions into the merge
func (m *merger) mergeSubgraph(d registry.SubgraphDescriptor) {
	defs := make([]*ast.Definition, 0, len(d.AST.Definitions)+len(d.AST.Extensions))
	defs = append(defs, d.AST.Definitions...)
	defs = append(defs, d.AST.Extensions...)

	for _, def := range defs {
		if isFederationType(def) {
			continue
		}
		m.mergeDefinition(d.Name, def)
	}

	// Non-federation directive declarations must survive so their uses keep
	// validating; federation machinery is stripped with its uses
	for _, dd := range d.AST.Directives {
		if federationDirectives[dd.Name] {
			continue
		}
		if _, ok := m.directives[dd.Name]; !ok {
			m.directives[dd.Name] = dd
			m.directiveOrder = append(m.directiveOrder, dd.Name)
		}
	}
}

// mergeDefinition merges a single type definition into the supergraph
func (m *merger) mergeDefinition(subgraph string, def *ast.Definition) {
	existing, ok := m.types[def.Name]
	if !ok {
		clone := cloneDefinition(def)
		m.types[def.Name] = clone
		m.order = append(m.order, def.Name)
		m.recordRootOwners(subgraph, def)
		return
	}

	if existing.Kind != def.Kind {
		m.diagnostics = append(m.diagnostics, fmt.Sprintf(
			"type %s: kind mismatch (%s vs %s from subgraph %s)",
			def.Name, existing.Kind, def.Kind, subgraph))
		return
	}

	switch def.Kind {
	case ast.Object, ast.Interface, ast.InputObject:
		m.mergeFields(subgraph, existing, def)
	case ast.Enum:
		m.mergeEnumValues(existing, def)
	case ast.Union:
		existing.Types = unionStrings(existing.Types, def.Types)
	case ast.Scalar:
		// Same named scalar from two subgraphs is fine
	}
	m.recordRootOwners(subgraph, def)
}

// mergeFields merges the fields of def into existing, reporting type conflicts
func (m *merger) mergeFields(subgraph string, existing, def *ast.Definition) {
	for _, f := range def.Fields {
		if hasDirective(f.Directives, "external") {
			continue
		}
		prev := existing.Fields.ForName(f.Name)
		if prev == nil {
			existing.Fields = append(existing.Fields, cloneField(f))
			continue
		}
		if prev.Type.String() != f.Type.String() {
			m.diagnostics = append(m.diagnostics, fmt.Sprintf(
				"type %s: field %s has conflicting types %s and %s (subgraph %s)",
				def.Name, f.Name, prev.Type.String(), f.Type.String(), subgraph))
		}
	}
}

// mergeEnumValues merges enum values, union-style
func (m *merger) mergeEnumValues(existing, def *ast.Definition) {
	for _, ev := range def.EnumValues {
		if existing.EnumValues.ForName(ev.Name) == nil {
			existing.EnumValues = append(existing.EnumValues, &ast.EnumValueDefinition{
				Description: ev.Description,
				Name:        ev.Name,
			})
		}
	}
}

// recordRootOwners assigns root operation fields to the first subgraph that
// defines them without @external
func (m *merger) recordRootOwners(subgraph string, def *ast.Definition) {
	var table map[string]string
	switch def.Name {
	case "Query":
		table = m.routing.Query
	case "Mutation":
		table = m.routing.Mutation
	default:
		return
	}

	for _, f := range def.Fields {
		if hasDirective(f.Directives, "external") {
			continue
		}
		if _, taken := table[f.Name]; !taken {
			table[f.Name] = subgraph
		}
	}
}

// render formats the merged definitions as SDL: Query, Mutation and
// Subscription first, then the remaining types alphabetically
func (m *merger) render() string {
	names := make([]string, len(m.order))
	copy(names, m.order)
	sort.Slice(names, func(i, j int) bool {
		return rootRank(names[i]) < rootRank(names[j]) ||
			(rootRank(names[i]) == rootRank(names[j]) && names[i] < names[j])
	})

	doc := &ast.SchemaDocument{}
	for _, name := range m.directiveOrder {
		doc.Directives = append(doc.Directives, m.directives[name])
	}
	for _, name := range names {
		def := m.types[name]
		if len(def.Fields) == 0 && len(def.EnumValues) == 0 &&
			len(def.Types) == 0 && def.Kind != ast.Scalar {
			// A type whose every field was external elsewhere renders empty;
			// dropping it beats emitting invalid SDL
			continue
		}
		doc.Definitions = append(doc.Definitions, def)
	}

	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatSchemaDocument(doc)
	return buf.String()
}

// rootRank orders root operation types ahead of everything else
func rootRank(name string) int {
	switch name {
	case "Query":
		return 0
	case "Mutation":
		return 1
	case "Subscription":
		return 2
	default:
		return 3
	}
}

// unionStrings merges b into a preserving order and uniqueness
func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			a = append(a, s)
			seen[s] = true
		}
	}
	return a
}
