// Package proto defines the messages exchanged between drill tasks.
package proto

import (
	"errors"
	"fmt"
)

// ErrBadOperator is returned when an operator code is outside 0..3.
var ErrBadOperator = errors.New("proto: bad operator")

// Operator is the arithmetic operation of a Problem.
type Operator uint8

const (
	OpAdd Operator = iota
	OpSub
	OpMul
	OpDiv

	// OperatorCount is the number of operator codes drawn by the producer.
	OperatorCount = 4
)

func (o Operator) Valid() bool { return o < OperatorCount }

func (o Operator) String() string {
	switch o {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	default:
		return fmt.Sprintf("Operator(%d)", uint8(o))
	}
}

// Limit returns the exclusive operand bound for o: 1000 for Add, 100 for
// Mul and 10000 otherwise.
func (o Operator) Limit() uint16 {
	switch o {
	case OpAdd:
		return 1000
	case OpMul:
		return 100
	default:
		return 10000
	}
}

// Name returns the lower-case operator name used in log attributes.
func (o Operator) Name() string {
	switch o {
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mul"
	case OpDiv:
		return "div"
	default:
		return "unknown"
	}
}

// Problem is one generated arithmetic problem.
//
// Seq numbers problems in publish order starting at 1; it is not part of the
// displayed triple.
type Problem struct {
	Seq      uint32   `json:"seq"`
	Operand1 uint16   `json:"operand1"`
	Operand2 uint16   `json:"operand2"`
	Op       Operator `json:"op"`
}

// Valid reports whether the operator is known and both operands respect its
// digit limit.
func (p Problem) Valid() bool {
	if !p.Op.Valid() {
		return false
	}
	limit := p.Op.Limit()
	return p.Operand1 < limit && p.Operand2 < limit
}

func (p Problem) String() string {
	return fmt.Sprintf("%d %s %d", p.Operand1, p.Op, p.Operand2)
}

// Values returns the problem as the three-value sequence operand1,
// operand2, operator code.
func (p Problem) Values() [3]uint16 {
	return [3]uint16{p.Operand1, p.Operand2, uint16(p.Op)}
}

// ProblemFromValues rebuilds a Problem from the sequence returned by Values.
func ProblemFromValues(v [3]uint16) (Problem, error) {
	if v[2] >= OperatorCount {
		return Problem{}, fmt.Errorf("%w: %d", ErrBadOperator, v[2])
	}
	return Problem{Operand1: v[0], Operand2: v[1], Op: Operator(v[2])}, nil
}
