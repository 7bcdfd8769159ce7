package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ConditionOperator is the comparison applied by declarative conditions on
// edges and condition nodes.
type ConditionOperator string

const (
	OpEquals      ConditionOperator = "equals"
	OpNotEquals   ConditionOperator = "not_equals"
	OpContains    ConditionOperator = "contains"
	OpNotContains ConditionOperator = "not_contains"
	OpGreaterThan ConditionOperator = "greater_than"
	OpLessThan    ConditionOperator = "less_than"
	OpExists      ConditionOperator = "exists"
	OpNotExists   ConditionOperator = "not_exists"
)

// EdgeCondition is the optional declarative gate on an edge: it compares one
// session variable against a literal value. Evaluation is a pure function of
// the condition and the variables map.
type EdgeCondition struct {
	Variable string            `json:"variable"`
	Operator ConditionOperator `json:"operator"`
	Value    any               `json:"value,omitempty"`
}

// Evaluate applies the condition against the given variables. Unknown
// operators evaluate to false rather than erroring; a malformed condition
// should never abort a traversal.
func (c *EdgeCondition) Evaluate(vars map[string]any) bool {
	if c == nil {
		return true
	}
	val, present := vars[c.Variable]

	switch c.Operator {
	case OpExists:
		return present
	case OpNotExists:
		return !present
	}
	if !present {
		return c.Operator == OpNotEquals || c.Operator == OpNotContains
	}

	left := stringify(val)
	right := stringify(c.Value)

	switch c.Operator {
	case OpEquals:
		return strings.EqualFold(left, right)
	case OpNotEquals:
		return !strings.EqualFold(left, right)
	case OpContains:
		return strings.Contains(strings.ToLower(left), strings.ToLower(right))
	case OpNotContains:
		return !strings.Contains(strings.ToLower(left), strings.ToLower(right))
	case OpGreaterThan:
		l, r, ok := numericPair(val, c.Value)
		return ok && l > r
	case OpLessThan:
		l, r, ok := numericPair(val, c.Value)
		return ok && l < r
	}
	return false
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func numericPair(a, b any) (float64, float64, bool) {
	l, lok := toFloat(a)
	r, rok := toFloat(b)
	return l, r, lok && rok
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}
