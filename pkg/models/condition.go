// Package models provides conditional expression evaluation for auto-approval steps.
package models

import (
	"fmt"
	"reflect"
	"strconv"
)

// ConditionOperator is the comparison applied between a subject attribute
// and a condition value.
type ConditionOperator string

const (
	OpEqual          ConditionOperator = "eq"
	OpNotEqual       ConditionOperator = "neq"
	OpGreaterThan    ConditionOperator = "gt"
	OpGreaterOrEqual ConditionOperator = "gte"
	OpLessThan       ConditionOperator = "lt"
	OpLessOrEqual    ConditionOperator = "lte"
	OpIn             ConditionOperator = "in"
	OpExists         ConditionOperator = "exists"
)

// Condition is a single predicate over a named subject attribute. A step's
// condition list is conjunctive: every condition must hold for the step to
// auto-approve.
type Condition struct {
	Attribute string            `json:"attribute" validate:"required"`
	Operator  ConditionOperator `json:"operator"  validate:"required,oneof=eq neq gt gte lt lte in exists"`
	Value     any               `json:"value,omitempty"`
}

// ConditionEvaluator evaluates step conditions against subject attributes.
type ConditionEvaluator struct{}

// Evaluate reports whether every condition holds for the given attributes.
// An empty condition list means unconditional auto-approval.
func (ConditionEvaluator) Evaluate(conditions []Condition, attributes map[string]any) (bool, error) {
	for _, cond := range conditions {
		ok, err := evaluateCondition(cond, attributes)
		if err != nil {
			return false, fmt.Errorf("condition on %q: %w", cond.Attribute, err)
		}

		if !ok {
			return false, nil
		}
	}

	return true, nil
}

func evaluateCondition(cond Condition, attributes map[string]any) (bool, error) {
	value, present := attributes[cond.Attribute]

	if cond.Operator == OpExists {
		want := true
		if cond.Value != nil {
			b, err := toBool(cond.Value)
			if err != nil {
				return false, err
			}

			want = b
		}

		return present == want, nil
	}

	if !present {
		return false, nil
	}

	switch cond.Operator {
	case OpEqual:
		return looseEqual(value, cond.Value), nil
	case OpNotEqual:
		return !looseEqual(value, cond.Value), nil
	case OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual:
		left, err := toFloat(value)
		if err != nil {
			return false, err
		}

		right, err := toFloat(cond.Value)
		if err != nil {
			return false, err
		}

		switch cond.Operator {
		case OpGreaterThan:
			return left > right, nil
		case OpGreaterOrEqual:
			return left >= right, nil
		case OpLessThan:
			return left < right, nil
		default:
			return left <= right, nil
		}
	case OpIn:
		list := reflect.ValueOf(cond.Value)
		if list.Kind() != reflect.Slice {
			return false, fmt.Errorf("operator %q requires a list value, got %T", OpIn, cond.Value)
		}

		for i := range list.Len() {
			if looseEqual(value, list.Index(i).Interface()) {
				return true, nil
			}
		}

		return false, nil
	default:
		return false, fmt.Errorf("unsupported operator %q", cond.Operator)
	}
}

// looseEqual compares values across the numeric types JSON decoding
// produces, falling back to string comparison.
func looseEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}

	fa, errA := toFloat(a)
	fb, errB := toFloat(b)

	if errA == nil && errB == nil {
		return fa == fb
	}

	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert string %q to number: %w", n, err)
		}

		return f, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to number", v)
	}
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, fmt.Errorf("cannot convert string %q to boolean: %w", b, err)
		}

		return parsed, nil
	default:
		return false, fmt.Errorf("cannot convert %T to boolean", v)
	}
}
