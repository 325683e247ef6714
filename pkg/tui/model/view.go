package model

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/modoterra/uxhost/pkg/bridge"
	"github.com/modoterra/uxhost/pkg/presenter"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	headerStyle  = lipgloss.NewStyle().Bold(true)
	messageStyle = lipgloss.NewStyle()
	metaStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("205")).
			Padding(0, 1)

	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// View renders the TUI.
func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return "loading..."
	}

	if a.screen == ScreenFlow {
		return a.renderFlow()
	}

	title := titleStyle.Render(" uxhost ") + dimStyle.Render(fmt.Sprintf(" event log · %d entries", len(a.rows)))

	var body string
	if len(a.rows) == 0 {
		body = dimStyle.Render("no events yet - press o to open the flow")
	} else {
		body = a.viewport.View()
	}

	return lipgloss.JoinVertical(lipgloss.Left, title, "", body, a.renderStatusBar())
}

// renderRows draws rows newest first, one card per entry. The output
// depends only on rows and width.
func renderRows(rows []presenter.Row, width int) string {
	if width <= 0 {
		width = 80
	}

	var b strings.Builder
	for i, r := range rows {
		if i > 0 {
			b.WriteString("\n\n")
		}

		header := headerStyle.Foreground(r.Color).Render(ansi.Truncate(r.Header, width-len(r.Time)-1, "…"))
		tm := dimStyle.Render(r.Time)
		gap := width - lipgloss.Width(header) - lipgloss.Width(tm)
		if gap < 1 {
			gap = 1
		}
		b.WriteString(header + strings.Repeat(" ", gap) + tm)

		// Message and meta wrap; only the header is cut to one line.
		b.WriteString("\n")
		b.WriteString(messageStyle.Width(width).Render(r.Message))

		if r.ShowMeta {
			b.WriteString("\n")
			b.WriteString(metaStyle.Width(width).Render(r.Meta))
		}
	}
	return b.String()
}

func (a App) renderFlow() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Embedded flow") + "\n\n")

	switch {
	case a.module.Configured() && a.module.Running():
		b.WriteString("The embedded module is running.\n")
		b.WriteString("Events it reports will appear in the log when you return.\n")
	case a.module.Configured():
		b.WriteString("The embedded module has stopped.\n")
	default:
		b.WriteString("No module command configured.\n")
		fmt.Fprintf(&b, "Report events to %s on channel %s.\n",
			dimStyle.Render(a.endpoint), dimStyle.Render(bridge.ChannelName))
	}
	b.WriteString("\n" + helpStyle.Render("esc: back to log"))

	return paneStyle.Width(max(a.width-4, 10)).Render(b.String())
}

func (a App) renderStatusBar() string {
	left := a.statusMsg
	if a.filtering || a.filter.Value() != "" {
		left = a.filter.View()
	}
	right := "j/k:scroll o:open flow c:clear r:refresh /:filter q:quit"
	if a.filtering {
		right = "enter:apply esc:cancel"
	}

	gap := a.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return "\n" + helpStyle.Render(left+strings.Repeat(" ", gap)+right)
}
