package workflow

import (
	"testing"

	"github.com/wsaadi/nova/pkg/adl"
)

func TestEvaluateCondition_Operators(t *testing.T) {
	vars := map[string]interface{}{
		"answer":  "yes, of course",
		"count":   float64(5),
		"tags":    []interface{}{"alpha", "beta"},
		"empty":   "",
		"mapping": map[string]interface{}{"key": 1},
	}

	tests := []struct {
		name string
		cond adl.Condition
		want bool
	}{
		{"eq string", adl.Condition{Variable: "answer", Operator: "eq", Value: "yes, of course"}, true},
		{"eq number as string", adl.Condition{Variable: "count", Operator: "eq", Value: "5"}, true},
		{"ne", adl.Condition{Variable: "count", Operator: "ne", Value: 6}, true},
		{"gt", adl.Condition{Variable: "count", Operator: "gt", Value: 4}, true},
		{"lt false", adl.Condition{Variable: "count", Operator: "lt", Value: 4}, false},
		{"gte boundary", adl.Condition{Variable: "count", Operator: "gte", Value: 5}, true},
		{"lte boundary", adl.Condition{Variable: "count", Operator: "lte", Value: 5}, true},
		{"contains substring", adl.Condition{Variable: "answer", Operator: "contains", Value: "yes"}, true},
		{"contains list item", adl.Condition{Variable: "tags", Operator: "contains", Value: "beta"}, true},
		{"contains map key", adl.Condition{Variable: "mapping", Operator: "contains", Value: "key"}, true},
		{"not_contains", adl.Condition{Variable: "answer", Operator: "not_contains", Value: "never"}, true},
		{"is_empty", adl.Condition{Variable: "empty", Operator: "is_empty"}, true},
		{"is_empty missing var", adl.Condition{Variable: "ghost", Operator: "is_empty"}, true},
		{"is_not_empty", adl.Condition{Variable: "answer", Operator: "is_not_empty"}, true},
		{"matches", adl.Condition{Variable: "answer", Operator: "matches", Value: "^yes"}, true},
		{"matches bad regex", adl.Condition{Variable: "answer", Operator: "matches", Value: "("}, false},
		{"unknown operator", adl.Condition{Variable: "answer", Operator: "resembles", Value: "x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EvaluateCondition(&tt.cond, vars); got != tt.want {
				t.Errorf("EvaluateCondition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateCondition_AndOr(t *testing.T) {
	vars := map[string]interface{}{"a": float64(1), "b": float64(2), "c": float64(3)}

	base := adl.Condition{
		Variable: "a", Operator: "eq", Value: 1,
		And: []adl.Condition{{Variable: "b", Operator: "eq", Value: 2}},
	}
	if !EvaluateCondition(&base, vars) {
		t.Error("base AND and_conditions should hold")
	}

	base.And[0].Value = 99
	if EvaluateCondition(&base, vars) {
		t.Error("failing and_conditions should fail the whole tree")
	}

	orCond := adl.Condition{
		Variable: "a", Operator: "eq", Value: 1,
		Or: []adl.Condition{
			{Variable: "c", Operator: "eq", Value: 99},
			{Variable: "c", Operator: "eq", Value: 3},
		},
	}
	if !EvaluateCondition(&orCond, vars) {
		t.Error("one passing or_condition should satisfy the OR")
	}

	orCond.Or[1].Value = 98
	if EvaluateCondition(&orCond, vars) {
		t.Error("all-failing or_conditions should fail the tree")
	}
}

func TestEvaluateCondition_Nil(t *testing.T) {
	if !EvaluateCondition(nil, nil) {
		t.Error("nil condition should be true")
	}
}
