package ruleengine

import (
	"cmp"
	"fmt"
)

// Operator is a comparison applied by leaf predicates.
type Operator int

const (
	OpEq Operator = iota
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
)

var operatorSymbols = [...]string{
	OpEq:  "==",
	OpNeq: "!=",
	OpLt:  "<",
	OpLte: "<=",
	OpGt:  ">",
	OpGte: ">=",
}

func (op Operator) String() string {
	if op < 0 || int(op) >= len(operatorSymbols) {
		return fmt.Sprintf("Operator(%d)", int(op))
	}
	return operatorSymbols[op]
}

// ParseOperator maps a symbol such as "<=" to its Operator.
func ParseOperator(s string) (Operator, error) {
	for op, sym := range operatorSymbols {
		if sym == s {
			return Operator(op), nil
		}
	}
	return 0, fmt.Errorf("unknown operator %q", s)
}

// compareOrdered applies op using the three-way comparison of ordered values.
func compareOrdered[T cmp.Ordered](op Operator, lhs, rhs T) bool {
	c := cmp.Compare(lhs, rhs)
	switch op {
	case OpEq:
		return c == 0
	case OpNeq:
		return c != 0
	case OpLt:
		return c < 0
	case OpLte:
		return c <= 0
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	default:
		return false
	}
}
