package palette

import (
	"fmt"

	"github.com/lucasb-eyer/go-colorful"
)

// Color is an opaque 8-bit RGB colour. It marshals as a CSS rgb() string.
type Color struct {
	R, G, B uint8
}

// Fallback is used when an image has no visible pixels (#111).
var Fallback = Color{R: 17, G: 17, B: 17}

// String renders c as rgb(r, g, b).
func (c Color) String() string {
	return fmt.Sprintf("rgb(%d, %d, %d)", c.R, c.G, c.B)
}

// Hex returns the colour as #rrggbb.
func (c Color) Hex() string {
	return c.colorful().Hex()
}

// Dark reports whether light text reads better on top of c.
func (c Color) Dark() bool {
	l, _, _ := c.colorful().Lab()
	return l < 0.5
}

func (c Color) colorful() colorful.Color {
	return colorful.Color{
		R: float64(c.R) / 255,
		G: float64(c.G) / 255,
		B: float64(c.B) / 255,
	}
}

// MarshalText renders c as rgb(r, g, b).
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses the rgb(r, g, b) form written by MarshalText.
func (c *Color) UnmarshalText(text []byte) error {
	var r, g, b uint8
	if _, err := fmt.Sscanf(string(text), "rgb(%d, %d, %d)", &r, &g, &b); err != nil {
		return fmt.Errorf("palette: invalid colour %q: %w", text, err)
	}
	*c = Color{R: r, G: g, B: b}
	return nil
}
