package tmux

import (
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Colour values: 0-7 basic, 8 default, 9 terminal, 90-97 bright, palette
// indexes carry colourFlag256 and true colours colourFlagRGB.
const (
	colourFlag256 = 0x01000000
	colourFlagRGB = 0x02000000
)

var colourNames = map[string]int{
	"black":    0,
	"red":      1,
	"green":    2,
	"yellow":   3,
	"blue":     4,
	"magenta":  5,
	"cyan":     6,
	"white":    7,
	"default":  8,
	"terminal": 9,

	"brightblack":   90,
	"brightred":     91,
	"brightgreen":   92,
	"brightyellow":  93,
	"brightblue":    94,
	"brightmagenta": 95,
	"brightcyan":    96,
	"brightwhite":   97,
}

var colourBasic16 = [16]int{
	0x000000, 0x800000, 0x008000, 0x808000, 0x000080, 0x800080, 0x008080, 0xc0c0c0,
	0x808080, 0xff0000, 0x00ff00, 0xffff00, 0x0000ff, 0xff00ff, 0x00ffff, 0xffffff,
}

var colourCubeSteps = [6]int{0x00, 0x5f, 0x87, 0xaf, 0xd7, 0xff}

// colourFromString parses a colour name, colourN/colorN palette index,
// bare number or #rrggbb. ok is false for anything else.
func colourFromString(s string) (int, bool) {
	if strings.HasPrefix(s, "#") {
		if len(s) != 7 {
			return 0, false
		}
		c, err := colorful.Hex(s)
		if err != nil {
			return 0, false
		}
		r, g, b := c.RGB255()
		return colourFlagRGB | int(r)<<16 | int(g)<<8 | int(b), true
	}

	lower := strings.ToLower(s)
	for _, prefix := range []string{"colour", "color"} {
		if rest, found := strings.CutPrefix(lower, prefix); found {
			n, err := strconv.Atoi(rest)
			if err != nil || n < 0 || n > 255 {
				return 0, false
			}
			return colourFlag256 | n, true
		}
	}
	if n, ok := colourNames[lower]; ok {
		return n, true
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n <= 7 {
		return n, true
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 90 && n <= 97 {
		return n, true
	}
	return 0, false
}

// colour256ToRGB converts a palette index to 0xRRGGBB.
func colour256ToRGB(idx int) int {
	switch {
	case idx < 16:
		return colourBasic16[idx]
	case idx < 232:
		idx -= 16
		r := colourCubeSteps[idx/36]
		g := colourCubeSteps[(idx/6)%6]
		b := colourCubeSteps[idx%6]
		return packRGB(r, g, b)
	default:
		v := 8 + (idx-232)*10
		return packRGB(v, v, v)
	}
}

func packRGB(r, g, b int) int {
	return r<<16 | g<<8 | b
}

// colourForceRGB maps any colour with a fixed RGB value onto 0xRRGGBB.
// default and terminal have none.
func colourForceRGB(c int) (int, bool) {
	switch {
	case c&colourFlagRGB != 0:
		return c &^ colourFlagRGB, true
	case c&colourFlag256 != 0:
		return colour256ToRGB(c &^ colourFlag256), true
	case c >= 0 && c <= 7:
		return colour256ToRGB(c), true
	case c >= 90 && c <= 97:
		return colour256ToRGB(8 + c - 90), true
	}
	return 0, false
}

// colourToRGB backs the c modifier.
func colourToRGB(s string) (int, bool) {
	c, ok := colourFromString(s)
	if !ok {
		return 0, false
	}
	return colourForceRGB(c)
}
