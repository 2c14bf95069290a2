package composition

import (
	"github.com/vektah/gqlparser/v2/ast"
)

// Federation directives recognized in subgraph SDLs. They steer the merge and
// are stripped from the composed output.
var federationDirectives = map[string]bool{
	"key":          true,
	"external":     true,
	"requires":     true,
	"provides":     true,
	"shareable":    true,
	"extends":      true,
	"link":         true,
	"tag":          true,
	"inaccessible": true,
	"override":     true,
}

// Federation machinery types that subgraphs may declare; they never appear in
// the composed supergraph.
var federationTypes = map[string]bool{
	"_Any":              true,
	"_Entity":           true,
	"_Service":          true,
	"_FieldSet":         true,
	"FieldSet":          true,
	"link__Import":      true,
	"link__Purpose":     true,
	"federation__Scope": true,
}

// isFederationType reports whether a definition is federation machinery
func isFederationType(def *ast.Definition) bool {
	return federationTypes[def.Name]
}

// hasDirective reports whether a directive list carries the named directive
func hasDirective(directives ast.DirectiveList, name string) bool {
	for _, d := range directives {
		if d.Name == name {
			return true
		}
	}
	return false
}

// stripFederationDirectives returns the directive list without federation
// directives, preserving everything else (e.g. @deprecated)
func stripFederationDirectives(directives ast.DirectiveList) ast.DirectiveList {
	var out ast.DirectiveList
	for _, d := range directives {
		if federationDirectives[d.Name] {
			continue
		}
		out = append(out, d)
	}
	return out
}

// cloneDefinition copies a type definition with federation directives removed
// and @external fields dropped
func cloneDefinition(def *ast.Definition) *ast.Definition {
	clone := &ast.Definition{
		Kind:        def.Kind,
		Description: def.Description,
		Name:        def.Name,
		Interfaces:  append([]string(nil), def.Interfaces...),
		Types:       append([]string(nil), def.Types...),
		Directives:  stripFederationDirectives(def.Directives),
	}

	for _, f := range def.Fields {
		if hasDirective(f.Directives, "external") {
			continue
		}
		clone.Fields = append(clone.Fields, cloneField(f))
	}
	for _, ev := range def.EnumValues {
		clone.EnumValues = append(clone.EnumValues, &ast.EnumValueDefinition{
			Description: ev.Description,
			Name:        ev.Name,
			Directives:  stripFederationDirectives(ev.Directives),
		})
	}

	return clone
}

// cloneField copies a field definition with federation directives removed
func cloneField(f *ast.FieldDefinition) *ast.FieldDefinition {
	return &ast.FieldDefinition{
		Description: f.Description,
		Name:        f.Name,
		Arguments:   f.Arguments,
		Type:        f.Type,
		Directives:  stripFederationDirectives(f.Directives),
	}
}
