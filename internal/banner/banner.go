// Package banner prints the framed notices shown to the person running the installer.
package banner

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// plainRule frames banners when the output is not a terminal.
const plainRule = "*******************************************************************"

// Printer writes banners to an output stream.
type Printer struct {
	w      io.Writer
	styled bool
	style  lipgloss.Style
}

// New returns a printer for w. Styling is enabled only when w is a terminal.
func New(w io.Writer) *Printer {
	styled := false
	if f, ok := w.(*os.File); ok {
		styled = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}

	return &Printer{
		w:      w,
		styled: styled,
		style: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("214")).
			Bold(true).
			Padding(0, 1),
	}
}

// Print frames message. Blank lines inside the message are dropped.
func (p *Printer) Print(message string) {
	var lines []string

	for _, line := range strings.Split(strings.TrimSpace(message), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}

	if p.styled {
		_, _ = fmt.Fprintf(p.w, "\n%s\n\n", p.style.Render(strings.Join(lines, "\n")))
		return
	}

	var b strings.Builder

	b.WriteString("\n\n" + plainRule + "\n")

	for _, line := range lines {
		b.WriteString("* " + line + "\n")
	}

	b.WriteString(plainRule + "\n\n\n")

	_, _ = io.WriteString(p.w, b.String())
}

// Println writes a single unframed line.
func (p *Printer) Println(args ...any) {
	_, _ = fmt.Fprintln(p.w, args...)
}

// Printf writes unframed formatted text.
func (p *Printer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.w, format, args...)
}
