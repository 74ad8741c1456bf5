package config

import (
	"fmt"
	"time"

	"go.starlark.net/starlark"
)

// ConditionEvaluator evaluates task condition expressions as Starlark
// expressions with host facts as predeclared variables, e.g.
//
//	os_family == "redhat" and os_major <= 6
//
// It implements the engine's ConditionEvaluator interface.
type ConditionEvaluator struct {
	timeout time.Duration
}

// NewConditionEvaluator creates an evaluator. A zero timeout defaults to
// five seconds; conditions are small expressions, not scripts.
func NewConditionEvaluator(timeout time.Duration) *ConditionEvaluator {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &ConditionEvaluator{
		timeout: timeout,
	}
}

// Evaluate runs the expression against the facts and requires a boolean
// result. Referencing an unknown fact is an error, not false.
func (ce *ConditionEvaluator) Evaluate(expr string, facts map[string]any) (bool, error) {
	resultCh := make(chan starlark.Value, 1)
	errCh := make(chan error, 1)

	go func() {
		value, err := ce.evaluateSync(expr, facts)
		if err != nil {
			errCh <- err
		} else {
			resultCh <- value
		}
	}()

	select {
	case <-time.After(ce.timeout):
		return false, fmt.Errorf("condition evaluation timeout after %v", ce.timeout)
	case err := <-errCh:
		return false, err
	case value := <-resultCh:
		result, ok := value.(starlark.Bool)
		if !ok {
			return false, fmt.Errorf("condition %q evaluated to %s, want bool", expr, value.Type())
		}
		return bool(result), nil
	}
}

func (ce *ConditionEvaluator) evaluateSync(expr string, facts map[string]any) (starlark.Value, error) {
	thread := &starlark.Thread{
		Name: "condition",
		Print: func(_ *starlark.Thread, _ string) {
			// print has no business in a condition
		},
	}

	predeclared := starlark.StringDict{}
	for key, val := range facts {
		starlarkVal, err := toStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert fact %s: %w", key, err)
		}
		predeclared[key] = starlarkVal
	}

	value, err := starlark.Eval(thread, "condition.star", expr, predeclared)
	if err != nil {
		return nil, fmt.Errorf("condition evaluation failed: %w", err)
	}

	return value, nil
}

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			starlarkItem, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = starlarkItem
		}
		return starlark.NewList(list), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, v := range val {
			starlarkVal, err := toStarlarkValue(v)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), starlarkVal); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}
