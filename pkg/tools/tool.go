// Package tools holds the tool catalog, argument coercion and the dispatcher
// that turns model function calls into display-ready results.
package tools

import (
	"context"
	"strings"
)

// ParamType is the primitive type of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
)

// Param describes one named tool parameter.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	// Enum restricts string parameters to the listed values.
	Enum []string
	// Default is used when an optional parameter is absent.
	Default any
}

// Handler runs a tool with validated arguments.
type Handler func(ctx context.Context, args Args) (string, error)

// Tool is a static catalog entry.
type Tool struct {
	Name        string
	Description string
	Params      []Param
	// Examples are user requests that should trigger the tool.
	Examples []string
	Handler  Handler
}

// Param returns the parameter with the given name.
func (t Tool) Param(name string) (Param, bool) {
	for _, p := range t.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// RequiredParams lists required parameter names in declaration order.
func (t Tool) RequiredParams() []string {
	var out []string
	for _, p := range t.Params {
		if p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}

// JSONSchema renders the parameters as a JSON Schema object.
func (t Tool) JSONSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": t.Properties(),
		"required":   nonNil(t.RequiredParams()),
	}
}

// Properties renders the "properties" member of JSONSchema.
func (t Tool) Properties() map[string]any {
	props := make(map[string]any, len(t.Params))
	for _, p := range t.Params {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = append([]string(nil), p.Enum...)
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		props[p.Name] = prop
	}
	return props
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
