package display

import (
	"drill/drillos/proto"
	"drill/hal"
)

// Number encodes v right-aligned into width digits with leading blanks.
// Digits that do not fit are dropped from the left.
func Number(v uint16, width int) []byte {
	masks := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		masks[i] = hal.DigitSegments[v%10]
		v /= 10
		if v == 0 {
			break
		}
	}
	return masks
}

// OperatorMask returns the glyph shown for op.
func OperatorMask(op proto.Operator) byte {
	switch op {
	case proto.OpAdd:
		return hal.SegmentPlus
	case proto.OpSub:
		return hal.SegmentMinus
	case proto.OpMul:
		return hal.SegmentTimes
	case proto.OpDiv:
		return hal.SegmentSlash
	default:
		return hal.SegmentBlank
	}
}

// Operator encodes op in the rightmost of width digits.
func Operator(op proto.Operator, width int) []byte {
	masks := make([]byte, width)
	if width > 0 {
		masks[width-1] = OperatorMask(op)
	}
	return masks
}

// Error returns the "Err" pattern, left-aligned.
func Error(width int) []byte {
	masks := make([]byte, width)
	copy(masks, []byte{hal.SegmentE, hal.SegmentR, hal.SegmentR})
	return masks
}
