package hal

import "image/color"

// RGB565 packs c into a little-endian framebuffer pixel. Alpha is ignored.
func RGB565(c color.RGBA) uint16 {
	return uint16(c.R>>3)<<11 | uint16(c.G>>2)<<5 | uint16(c.B>>3)
}

// PutRGB565 stores c at byte offset off of an RGB565 buffer.
func PutRGB565(buf []byte, off int, c color.RGBA) {
	p := RGB565(c)
	buf[off] = byte(p)
	buf[off+1] = byte(p >> 8)
}

// RGBAFrom565 expands an RGB565 pixel to opaque 8-bit channels.
func RGBAFrom565(p uint16) color.RGBA {
	r := (p >> 11) & 0x1F
	g := (p >> 5) & 0x3F
	b := p & 0x1F
	return color.RGBA{
		R: uint8(r * 255 / 31),
		G: uint8(g * 255 / 63),
		B: uint8(b * 255 / 31),
		A: 0xFF,
	}
}
