package sink

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// basic16 is the xterm palette for SGR 30-37/90-97 and 256-color 0-15
var basic16 = [16]string{
	"#000000", "#cd0000", "#00cd00", "#cdcd00", "#0000ee", "#cd00cd", "#00cdcd", "#e5e5e5",
	"#7f7f7f", "#ff0000", "#00ff00", "#ffff00", "#5c5cff", "#ff00ff", "#00ffff", "#ffffff",
}

type sgrState struct {
	fg, bg    string
	bold      bool
	dim       bool
	italic    bool
	underline bool
}

func (s sgrState) style() string {
	var parts []string
	if s.fg != "" {
		parts = append(parts, "color:"+s.fg)
	}
	if s.bg != "" {
		parts = append(parts, "background-color:"+s.bg)
	}
	if s.bold {
		parts = append(parts, "font-weight:bold")
	}
	if s.dim {
		parts = append(parts, "opacity:0.7")
	}
	if s.italic {
		parts = append(parts, "font-style:italic")
	}
	if s.underline {
		parts = append(parts, "text-decoration:underline")
	}
	return strings.Join(parts, ";")
}

// ANSIConverter renders terminal output as HTML. Text is escaped before
// escape sequences are interpreted. Styles and partial sequences carry
// over between chunks.
type ANSIConverter struct {
	state   sgrState
	pending string
}

func NewANSIConverter() *ANSIConverter {
	return &ANSIConverter{}
}

func (c *ANSIConverter) Convert(chunk string) string {
	text := html.EscapeString(c.pending + chunk)
	c.pending = ""

	var out strings.Builder
	open := false
	write := func(s string) {
		if s == "" {
			return
		}
		if !open {
			open = c.openSpan(&out)
		}
		out.WriteString(s)
	}

	for len(text) > 0 {
		i := strings.IndexByte(text, 0x1b)
		if i < 0 {
			write(text)
			break
		}
		write(text[:i])
		text = text[i:]

		if len(text) < 2 {
			c.pending = text
			break
		}
		if text[1] != '[' {
			// lone ESC or a non-CSI sequence: drop the ESC byte
			text = text[1:]
			continue
		}

		end := scanCSI(text)
		if end == csiIncomplete {
			c.pending = html.UnescapeString(text)
			break
		}
		if end == csiMalformed {
			text = text[1:]
			continue
		}

		params := text[2:end]
		if text[end] == 'm' && !strings.Contains(params, "&") {
			if open {
				out.WriteString("</span>")
				open = false
			}
			c.applySGR(params)
		}
		text = text[end+1:]
	}

	if open {
		out.WriteString("</span>")
	}
	return out.String()
}

func (c *ANSIConverter) openSpan(out *strings.Builder) bool {
	style := c.state.style()
	if style == "" {
		return false
	}
	fmt.Fprintf(out, `<span style="%s">`, style)
	return true
}

// maxCSILength bounds a sequence, measured in escaped bytes
const maxCSILength = 64

const (
	csiIncomplete = -1
	csiMalformed  = -2
)

// scanCSI returns the index of the final byte of the escaped CSI sequence
// text starts with. Private parameters such as '<' arrive as entities and
// are skipped whole.
func scanCSI(text string) int {
	for i := 2; i < len(text) && i <= maxCSILength; i++ {
		b := text[i]
		switch {
		case b == '&':
			semi := strings.IndexByte(text[i:], ';')
			if semi < 0 {
				return incompleteCSI(text)
			}
			i += semi
		case isFinalByte(b):
			return i
		case b < 0x20 || b > 0x7e:
			return csiMalformed
		}
	}
	return incompleteCSI(text)
}

func incompleteCSI(text string) int {
	if len(text) > maxCSILength {
		return csiMalformed
	}
	return csiIncomplete
}

func isFinalByte(b byte) bool {
	return b >= 0x40 && b <= 0x7e
}

func (c *ANSIConverter) applySGR(params string) {
	if params == "" {
		c.state = sgrState{}
		return
	}
	codes := strings.Split(params, ";")
	for i := 0; i < len(codes); i++ {
		code, err := strconv.Atoi(codes[i])
		if err != nil {
			continue
		}
		switch {
		case code == 0:
			c.state = sgrState{}
		case code == 1:
			c.state.bold = true
		case code == 2:
			c.state.dim = true
		case code == 3:
			c.state.italic = true
		case code == 4:
			c.state.underline = true
		case code == 22:
			c.state.bold, c.state.dim = false, false
		case code == 23:
			c.state.italic = false
		case code == 24:
			c.state.underline = false
		case code >= 30 && code <= 37:
			c.state.fg = basic16[code-30]
		case code >= 90 && code <= 97:
			c.state.fg = basic16[code-90+8]
		case code == 39:
			c.state.fg = ""
		case code >= 40 && code <= 47:
			c.state.bg = basic16[code-40]
		case code >= 100 && code <= 107:
			c.state.bg = basic16[code-100+8]
		case code == 49:
			c.state.bg = ""
		case code == 38 || code == 48:
			color, consumed := extendedColor(codes[i+1:])
			i += consumed
			if color == "" {
				continue
			}
			if code == 38 {
				c.state.fg = color
			} else {
				c.state.bg = color
			}
		}
	}
}

// extendedColor parses the arguments after 38/48: "5;n" or "2;r;g;b"
func extendedColor(args []string) (string, int) {
	if len(args) == 0 {
		return "", 0
	}
	switch args[0] {
	case "5":
		if len(args) < 2 {
			return "", len(args)
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 0 || n > 255 {
			return "", 2
		}
		return palette256(n), 2
	case "2":
		if len(args) < 4 {
			return "", len(args)
		}
		rgb := [3]float64{}
		for j := 0; j < 3; j++ {
			v, err := strconv.Atoi(args[1+j])
			if err != nil || v < 0 || v > 255 {
				return "", 4
			}
			rgb[j] = float64(v) / 255
		}
		return colorful.Color{R: rgb[0], G: rgb[1], B: rgb[2]}.Hex(), 4
	}
	return "", 1
}

func palette256(n int) string {
	switch {
	case n < 16:
		return basic16[n]
	case n < 232:
		n -= 16
		levels := [6]float64{0, 95, 135, 175, 215, 255}
		return colorful.Color{
			R: levels[n/36] / 255,
			G: levels[(n/6)%6] / 255,
			B: levels[n%6] / 255,
		}.Hex()
	default:
		gray := float64(8+(n-232)*10) / 255
		return colorful.Color{R: gray, G: gray, B: gray}.Hex()
	}
}
