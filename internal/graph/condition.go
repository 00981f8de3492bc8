package graph

import "github.com/Mike1ife/RAGentFlow/internal/model"

// Evaluate reports whether value satisfies cond. A nil condition always
// holds. eq requires the same dynamic type; ordering operators require both
// sides to be numbers. There is no coercion between strings, booleans and
// numbers.
func Evaluate(cond *model.Condition, value any) bool {
	if cond == nil {
		return true
	}
	if cond.Operator == model.OpEq {
		switch want := cond.Value.(type) {
		case string:
			got, ok := value.(string)
			return ok && got == want
		case bool:
			got, ok := value.(bool)
			return ok && got == want
		case float64:
			got, ok := value.(float64)
			return ok && got == want
		}
		return false
	}

	want, ok := cond.Value.(float64)
	if !ok {
		return false
	}
	got, ok := value.(float64)
	if !ok {
		return false
	}
	switch cond.Operator {
	case model.OpGt:
		return got > want
	case model.OpLt:
		return got < want
	case model.OpGte:
		return got >= want
	case model.OpLte:
		return got <= want
	}
	return false
}
