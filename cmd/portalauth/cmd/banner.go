package cmd

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Version is set at build time.
var Version = "dev"

const banner = `
                 _        _               _   _
  _ __   ___  _ __| |_ __ _| | __ _ _   _| |_| |__
 | '_ \ / _ \| '__| __/ _` + "`" + ` | |/ _` + "`" + ` | | | | __| '_ \
 | |_) | (_) | |  | || (_| | | (_| | |_| | |_| | | |
 | .__/ \___/|_|   \__\__,_|_|\__,_|\__,_|\__|_| |_|
 |_|
`

var (
	bannerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6"))
	taglineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#22C55E"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF")).Width(14)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#22C55E")).Bold(true)
	badStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F87171")).Bold(true)
	boxStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#334155")).
			Padding(0, 1)
)

func printBanner(w io.Writer, subtitle string) {
	fmt.Fprint(w, bannerStyle.Render(banner))
	fmt.Fprintf(w, "\n%s\n\n", taglineStyle.Render(fmt.Sprintf("  %s - Version %s", subtitle, Version)))
}

// field renders one "label value" line.
func field(label, value string) string {
	return labelStyle.Render(label) + value
}
