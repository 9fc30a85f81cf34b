package tui

import (
	"io"

	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/muesli/termenv"
)

// Palette colours status words. Without a terminal it leaves text as is.
type Palette struct {
	profile termenv.Profile
}

// NewPalette picks the colour profile of w.
func NewPalette(w io.Writer) Palette {
	if !IsTerminal(w) {
		return Palette{profile: termenv.Ascii}
	}
	return Palette{profile: termenv.NewOutput(w).ColorProfile()}
}

func (p Palette) paint(s, hex string) string {
	if p.profile == termenv.Ascii {
		return s
	}
	return p.profile.String(s).Foreground(p.profile.Color(hex)).String()
}

// Status colours a command status.
func (p Palette) Status(s domain.Status) string {
	if s == domain.StatusSuccess {
		return p.paint(string(s), "#34d399")
	}
	return p.paint(string(s), "#f87171")
}

// Key colours an identifier such as a request id.
func (p Palette) Key(s string) string {
	return p.paint(s, "#818cf8")
}

// Muted colours secondary text.
func (p Palette) Muted(s string) string {
	return p.paint(s, "#9ca3af")
}
