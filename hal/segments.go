package hal

import (
	"fmt"
	"strings"
)

// DigitSegments maps 0-9 to 7-segment masks.
var DigitSegments = [10]byte{0x3f, 0x06, 0x5b, 0x4f, 0x66, 0x6d, 0x7d, 0x27, 0x7f, 0x6f}

const segmentDot = 0x80

// Segment masks for glyphs that are not digits.
const (
	SegmentBlank byte = 0x00
	SegmentMinus byte = 0x40
	SegmentPlus  byte = 0x46
	SegmentTimes byte = 0x76
	SegmentSlash byte = 0x52
	SegmentE     byte = 0x79
	SegmentR     byte = 0x50
)

var segmentRunes = map[byte]rune{
	SegmentBlank: ' ',
	SegmentMinus: '-',
	SegmentPlus:  '+',
	SegmentTimes: '*',
	SegmentSlash: '/',
	SegmentE:     'E',
	SegmentR:     'r',
}

// DecodeSegment returns a printable rune for mask, or '?' when the pattern
// is unknown. The decimal point is ignored.
func DecodeSegment(mask byte) rune {
	mask &^= segmentDot
	for d, m := range DigitSegments {
		if m == mask {
			return rune('0' + d)
		}
	}
	if r, ok := segmentRunes[mask]; ok {
		return r
	}
	return '?'
}

// DecodeSegments renders masks as text, one rune per digit.
func DecodeSegments(masks []byte) string {
	var b strings.Builder
	for _, m := range masks {
		b.WriteRune(DecodeSegment(m))
		if m&segmentDot != 0 {
			b.WriteByte('.')
		}
	}
	return b.String()
}

// logSegments is a Segments that only reports what it would show.
type logSegments struct {
	digits int
	logger Logger
	last   string
}

func newLogSegments(digits int, l Logger) *logSegments {
	return &logSegments{digits: digits, logger: l}
}

func (s *logSegments) Digits() int { return s.digits }

func (s *logSegments) Show(masks []byte) error {
	if len(masks) != s.digits {
		return fmt.Errorf("hal: segments: got %d masks, want %d", len(masks), s.digits)
	}
	text := DecodeSegments(masks)
	if text == s.last {
		return nil
	}
	s.last = text
	s.logger.WriteLineString("fnd: [" + text + "]")
	return nil
}
