package match

import (
	"errors"
	"fmt"
	"strings"
)

// Spec selects and parameterises rules by name.
type Spec struct {
	// Rules lists rule names: method, uri, host, path, query, headers, body,
	// body-hash, jsonpath, expr.
	Rules []string

	// Headers restricts the headers rule to these names.
	Headers []string

	// JSONPaths are the expressions used by the jsonpath rule.
	JSONPaths []string

	// Expr is the expression used by the expr rule.
	Expr string
}

// Parse builds the AND of the rules named in spec. An empty rule list yields
// Default().
func Parse(spec Spec) (Rule, error) {
	if len(spec.Rules) == 0 {
		return Default(), nil
	}

	rules := make([]Rule, 0, len(spec.Rules))
	for _, name := range spec.Rules {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "method":
			rules = append(rules, Method)
		case "uri", "url":
			rules = append(rules, URI)
		case "host":
			rules = append(rules, Host)
		case "path":
			rules = append(rules, Path)
		case "query":
			rules = append(rules, Query)
		case "headers":
			rules = append(rules, Headers(spec.Headers...))
		case "body":
			rules = append(rules, Body)
		case "body-hash", "bodyhash":
			rules = append(rules, BodyHash)
		case "jsonpath":
			if len(spec.JSONPaths) == 0 {
				return nil, errors.New("jsonpath rule requires at least one path")
			}
			r, err := JSONPath(spec.JSONPaths...)
			if err != nil {
				return nil, err
			}
			rules = append(rules, r)
		case "expr":
			if spec.Expr == "" {
				return nil, errors.New("expr rule requires an expression")
			}
			r, err := Expr(spec.Expr)
			if err != nil {
				return nil, err
			}
			rules = append(rules, r)
		default:
			return nil, fmt.Errorf("unknown match rule %q", name)
		}
	}
	return All(rules...), nil
}
