package models

import (
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// FallbackColor replaces user colors that are unreadable on a light background.
const FallbackColor = "#ff6f61"

// MaxLuminance is the perceived luminance above which a color counts as white.
const MaxLuminance = 240.0

// TooWhite reports whether a hex color is near white. Colors that do not
// parse count as too white.
func TooWhite(hex string) bool {
	hex = strings.ToLower(strings.TrimSpace(hex))
	if !strings.HasPrefix(hex, "#") {
		hex = "#" + hex
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return true
	}
	r, g, b := c.RGB255()
	return 0.299*float64(r)+0.587*float64(g)+0.114*float64(b) > MaxLuminance
}

// SanitizeColor returns the trimmed, "#"-prefixed color when it is usable,
// and FallbackColor otherwise.
func SanitizeColor(color string) string {
	color = strings.TrimSpace(color)
	if color == "" || TooWhite(color) {
		return FallbackColor
	}
	if !strings.HasPrefix(color, "#") {
		color = "#" + color
	}
	return color
}
