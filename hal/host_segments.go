//go:build !tinygo

package hal

import "sync"

// hostSegments draws the digits into the bottom of the host framebuffer and
// mirrors them to the log.
type hostSegments struct {
	mu  sync.Mutex
	log *logSegments
	fb  *hostFramebuffer
	cur []byte
}

func newHostSegments(digits int, l Logger, fb *hostFramebuffer) *hostSegments {
	return &hostSegments{log: newLogSegments(digits, l), fb: fb, cur: make([]byte, digits)}
}

func (s *hostSegments) Digits() int { return s.log.Digits() }

func (s *hostSegments) Show(masks []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.log.Show(masks); err != nil {
		return err
	}
	copy(s.cur, masks)
	if s.fb != nil {
		s.draw()
	}
	return nil
}

// Current returns the masks last shown.
func (s *hostSegments) Current() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.cur...)
}

const (
	segW     = 36
	segH     = 64
	segT     = 6
	segGap   = 14
	segColor = 0xF800
	segDim   = 0x2000
)

// segment rectangles relative to the digit origin, a..g.
var segRects = [7][4]int{
	{segT, 0, segW - 2*segT, segT},
	{segW - segT, segT, segT, segH/2 - segT},
	{segW - segT, segH/2 + segT/2, segT, segH/2 - segT},
	{segT, segH - segT, segW - 2*segT, segT},
	{0, segH/2 + segT/2, segT, segH/2 - segT},
	{0, segT, segT, segH/2 - segT},
	{segT, segH/2 - segT/2, segW - 2*segT, segT},
}

func (s *hostSegments) draw() {
	n := len(s.cur)
	total := n*segW + (n-1)*segGap
	x0 := (s.fb.width - total) / 2
	y0 := s.fb.height - segH - segGap
	if x0 < 0 || y0 < 0 {
		return
	}
	for i, m := range s.cur {
		dx := x0 + i*(segW+segGap)
		for bit, r := range segRects {
			c := uint16(segDim)
			if m&(1<<bit) != 0 {
				c = segColor
			}
			s.fb.fillRect(dx+r[0], y0+r[1], r[2], r[3], c)
		}
	}
}
