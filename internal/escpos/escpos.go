package escpos

import "bytes"

// Control characters
const (
	ESC byte = 0x1B
	GS  byte = 0x1D
	LF  byte = 0x0A
)

// Command is a raw ESC/POS byte sequence
type Command []byte

// Initialize resets the printer to its power-on settings
func Initialize() Command {
	return Command{ESC, 0x40}
}

// LeftAlign sets left justification
func LeftAlign() Command {
	return Command{ESC, 0x61, 0x00}
}

// CenterAlign sets centered justification
func CenterAlign() Command {
	return Command{ESC, 0x61, 0x01}
}

// RightAlign sets right justification
func RightAlign() Command {
	return Command{ESC, 0x61, 0x02}
}

// Print mode bits for ESC !
const (
	ModeNormal       byte = 0x00
	ModeDoubleHeight byte = 0x10
	ModeDoubleWidth  byte = 0x20
	ModeDoubleBoth   byte = 0x30
)

// ModeForPointSize maps a point size onto one of the four ESC ! print modes.
// Boundaries are inclusive: 12, 16 and 24 still select the smaller tier.
func ModeForPointSize(points int) byte {
	switch {
	case points <= 12:
		return ModeNormal
	case points <= 16:
		return ModeDoubleHeight
	case points <= 24:
		return ModeDoubleWidth
	default:
		return ModeDoubleBoth
	}
}

// SetFontSizeForPointSize selects the print mode for a point size
func SetFontSizeForPointSize(points int) Command {
	return Command{ESC, 0x21, ModeForPointSize(points)}
}

// Magnification returns the horizontal and vertical glyph scale of mode
func Magnification(mode byte) (x, y int) {
	x, y = 1, 1
	if mode&ModeDoubleWidth != 0 {
		x = 2
	}
	if mode&ModeDoubleHeight != 0 {
		y = 2
	}
	return x, y
}

// FeedLines prints the buffer and feeds n lines (0-255)
func FeedLines(n int) Command {
	return Command{ESC, 0x64, clampByte(n)}
}

// FullCut cuts the paper completely
func FullCut() Command {
	return Command{GS, 0x56, 0x00}
}

// PartialCut leaves one point uncut
func PartialCut() Command {
	return Command{GS, 0x56, 0x01}
}

// TextLine encodes s as UTF-8 followed by a line feed
func TextLine(s string) Command {
	out := make(Command, 0, len(s)+1)
	out = append(out, s...)
	return append(out, LF)
}

// Text encodes s as UTF-8 without a line feed
func Text(s string) Command {
	return Command(s)
}

// SetBold toggles emphasized mode
func SetBold(on bool) Command {
	return Command{ESC, 0x45, boolByte(on)}
}

// SetUnderline toggles single-dot underline
func SetUnderline(on bool) Command {
	return Command{ESC, 0x2D, boolByte(on)}
}

// SetCharacterSize selects width and height magnification (1-8 each) with GS !.
// Values outside the range fall back to 1.
func SetCharacterSize(width, height int) Command {
	if width < 1 || width > 8 {
		width = 1
	}
	if height < 1 || height > 8 {
		height = 1
	}
	return Command{GS, 0x21, byte((width-1)<<4 | (height - 1))}
}

// SetCodePage selects a character code table (ESC t n)
func SetCodePage(page int) Command {
	return Command{ESC, 0x74, clampByte(page)}
}

// SetUTF8 selects the code table and international character set most
// firmwares use for Unicode text.
func SetUTF8() Command {
	return Command{ESC, 0x74, 0x10, ESC, 0x52, 0x0F}
}

// SetLineSpacing sets line spacing in motion units (0-255)
func SetLineSpacing(n int) Command {
	return Command{ESC, 0x33, clampByte(n)}
}

// ResetLineSpacing restores the default line spacing
func ResetLineSpacing() Command {
	return Command{ESC, 0x32}
}

func clampByte(n int) byte {
	if n < 0 {
		return 0
	}
	if n > 255 {
		return 255
	}
	return byte(n)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// Builder accumulates commands into one buffer
type Builder struct {
	buf bytes.Buffer
}

func New() *Builder {
	return &Builder{}
}

// Add appends raw commands
func (b *Builder) Add(cmds ...Command) *Builder {
	for _, c := range cmds {
		b.buf.Write(c)
	}
	return b
}

func (b *Builder) Initialize() *Builder {
	return b.Add(Initialize())
}

// Align picks center or left justification
func (b *Builder) Align(center bool) *Builder {
	if center {
		return b.Add(CenterAlign())
	}
	return b.Add(LeftAlign())
}

func (b *Builder) FontSize(points int) *Builder {
	return b.Add(SetFontSizeForPointSize(points))
}

func (b *Builder) Bold(on bool) *Builder {
	return b.Add(SetBold(on))
}

// Line appends a text line; empty lines are kept
func (b *Builder) Line(s string) *Builder {
	return b.Add(TextLine(s))
}

func (b *Builder) Feed(n int) *Builder {
	return b.Add(FeedLines(n))
}

func (b *Builder) Cut() *Builder {
	return b.Add(FullCut())
}

// Bytes returns the accumulated command bytes
func (b *Builder) Bytes() []byte {
	return b.buf.Bytes()
}

// Len returns the number of accumulated bytes
func (b *Builder) Len() int {
	return b.buf.Len()
}

// BuildReceipt encodes a complete receipt in one buffer: init, alignment,
// font size, each non-empty line, then feed and cut when body is set.
func BuildReceipt(lines []string, fontSize int, center, body bool) []byte {
	b := New().Initialize().Align(center).FontSize(fontSize)
	for _, l := range lines {
		if l == "" {
			continue
		}
		b.Line(l)
	}
	if body {
		b.Feed(3).Cut()
	}
	return b.Bytes()
}
