// Package query provides two self-contained request utilities: a
// discriminated-union filter expression that compiles to a parameterised
// SQL WHERE clause, and pagination parameter parsing.
//
// The package has no dependency on the identity core; repositories accept
// the compiled clause and argument list as plain values.
package query

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Columns maps external filter field names to the column expressions they
// are allowed to compile to. Compilation rejects any field not present,
// so callers control exactly which columns a filter can reach.
type Columns map[string]string

// Where is a node in a filter expression tree: Equal, NotEqual, And or Or.
type Where interface {
	// Compile renders the node as a SQL fragment with ? placeholders and
	// the matching argument list.
	Compile(allowed Columns) (string, []any, error)
}

// Equal matches rows where the field equals the value.
type Equal struct {
	Field string
	Value string
}

// Compile renders "col = ?".
func (e Equal) Compile(allowed Columns) (string, []any, error) {
	col, err := resolveField(allowed, e.Field)
	if err != nil {
		return "", nil, err
	}
	return col + " = ?", []any{e.Value}, nil
}

// NotEqual matches rows where the field differs from the value.
type NotEqual struct {
	Field string
	Value string
}

// Compile renders "col != ?".
func (n NotEqual) Compile(allowed Columns) (string, []any, error) {
	col, err := resolveField(allowed, n.Field)
	if err != nil {
		return "", nil, err
	}
	return col + " != ?", []any{n.Value}, nil
}

// And matches rows satisfying every child rule.
type And struct {
	Rules []Where
}

// Compile renders "(a AND b AND ...)".
func (a And) Compile(allowed Columns) (string, []any, error) {
	return compileGroup(allowed, a.Rules, " AND ")
}

// Or matches rows satisfying at least one child rule.
type Or struct {
	Rules []Where
}

// Compile renders "(a OR b OR ...)".
func (o Or) Compile(allowed Columns) (string, []any, error) {
	return compileGroup(allowed, o.Rules, " OR ")
}

func resolveField(allowed Columns, field string) (string, error) {
	col, ok := allowed[field]
	if !ok {
		return "", fmt.Errorf("unknown filter field %q", field)
	}
	return col, nil
}

// compileGroup joins child clauses with the operator, parenthesised so
// nested And/Or groups keep their precedence.
func compileGroup(allowed Columns, rules []Where, op string) (string, []any, error) {
	if len(rules) == 0 {
		return "", nil, fmt.Errorf("empty rule group")
	}

	clauses := make([]string, 0, len(rules))
	var args []any
	for _, rule := range rules {
		clause, ruleArgs, err := rule.Compile(allowed)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, clause)
		args = append(args, ruleArgs...)
	}
	return "(" + strings.Join(clauses, op) + ")", args, nil
}

// ParseFilter decodes a JSON filter expression into a Where tree. Simple
// nodes are discriminated by "operator" (equal, not_equal), groups by
// "condition" (and, or):
//
//	{"condition": "or", "rules": [
//	    {"field": "action", "operator": "equal", "value": "login"},
//	    {"field": "action", "operator": "equal", "value": "refresh"}]}
func ParseFilter(data []byte) (Where, error) {
	return decodeWhere(data, 0)
}

// maxFilterDepth bounds nesting so a hostile filter cannot recurse
// unboundedly.
const maxFilterDepth = 10

// probe holds just the discriminator fields of a node.
type probe struct {
	Operator  string `json:"operator"`
	Condition string `json:"condition"`
}

func decodeWhere(data []byte, depth int) (Where, error) {
	if depth > maxFilterDepth {
		return nil, fmt.Errorf("filter nested deeper than %d levels", maxFilterDepth)
	}

	var p probe
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decoding filter node: %w", err)
	}

	switch {
	case p.Operator != "" && p.Condition != "":
		return nil, fmt.Errorf("filter node has both operator and condition")

	case p.Operator != "":
		var node struct {
			Field string `json:"field"`
			Value string `json:"value"`
		}
		if err := json.Unmarshal(data, &node); err != nil {
			return nil, fmt.Errorf("decoding comparison node: %w", err)
		}
		if node.Field == "" {
			return nil, fmt.Errorf("comparison node is missing field")
		}
		switch p.Operator {
		case "equal":
			return Equal{Field: node.Field, Value: node.Value}, nil
		case "not_equal":
			return NotEqual{Field: node.Field, Value: node.Value}, nil
		default:
			return nil, fmt.Errorf("unknown operator %q", p.Operator)
		}

	case p.Condition != "":
		var node struct {
			Rules []json.RawMessage `json:"rules"`
		}
		if err := json.Unmarshal(data, &node); err != nil {
			return nil, fmt.Errorf("decoding group node: %w", err)
		}
		if len(node.Rules) == 0 {
			return nil, fmt.Errorf("%s group has no rules", p.Condition)
		}
		rules := make([]Where, 0, len(node.Rules))
		for _, raw := range node.Rules {
			rule, err := decodeWhere(raw, depth+1)
			if err != nil {
				return nil, err
			}
			rules = append(rules, rule)
		}
		switch p.Condition {
		case "and":
			return And{Rules: rules}, nil
		case "or":
			return Or{Rules: rules}, nil
		default:
			return nil, fmt.Errorf("unknown condition %q", p.Condition)
		}

	default:
		return nil, fmt.Errorf("filter node has neither operator nor condition")
	}
}
