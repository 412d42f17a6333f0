// Package topk tracks the most frequent pixel colors of an image in a single
// streaming pass.
package topk

import "image/color"

// ColorKey is a 24-bit RGB value. Alpha is never part of the key.
type ColorKey uint32

const hexDigits = "0123456789abcdef"

// ColorKeyFromARGB drops the alpha byte of a packed 0xAARRGGBB value.
func ColorKeyFromARGB(argb uint32) ColorKey {
	return ColorKey(argb & 0xffffff)
}

// ColorKeyFromColor converts a decoded pixel to its non-premultiplied RGB key.
func ColorKeyFromColor(c color.Color) ColorKey {
	n, ok := c.(color.NRGBA)
	if !ok {
		n = color.NRGBAModel.Convert(c).(color.NRGBA)
	}
	return ColorKey(uint32(n.R)<<16 | uint32(n.G)<<8 | uint32(n.B))
}

// String renders the key as "#rrggbb": lowercase, zero padded, 7 characters.
func (k ColorKey) String() string {
	var buf [7]byte
	buf[0] = '#'
	v := uint32(k) & 0xffffff
	for i := 6; i >= 1; i-- {
		buf[i] = hexDigits[v&0xf]
		v >>= 4
	}
	return string(buf[:])
}
