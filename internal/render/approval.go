// Package render produces styled terminal output for approval banners and
// tables.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#8E4EC6")). // Purple
			Padding(0, 1).
			MarginBottom(1)

	warningHeaderStyle = headerStyle.
				Background(lipgloss.Color("#B8860B")) // DarkGoldenrod

	toolStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#8E4EC6"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	countdownStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#2E8B57")) // SeaGreen

	countdownWarnStyle = countdownStyle.
				Foreground(lipgloss.Color("#B8860B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)
)

// FormatRemaining renders a countdown as m:ss.
func FormatRemaining(remaining time.Duration) string {
	if remaining < 0 {
		remaining = 0
	}
	total := int(remaining.Round(time.Second).Seconds())
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// BannerData is everything the approval banner shows.
type BannerData struct {
	Title       string
	Description string
	Icon        string
	Phase       string
	Remaining   time.Duration
	Confirming  bool
	QueueLength int
}

// Banner renders the pending approval banner. The warning phase switches
// the header and countdown colors.
func Banner(data BannerData) string {
	var b strings.Builder

	header := headerStyle
	countdown := countdownStyle
	if data.Phase == "warning" {
		header = warningHeaderStyle
		countdown = countdownWarnStyle
	}

	title := data.Title
	if data.Icon != "" {
		title = data.Icon + " " + title
	}
	b.WriteString(header.Render("Approval Required"))
	b.WriteString("\n")
	b.WriteString(toolStyle.Render(title))
	b.WriteString("\n")
	if data.Description != "" {
		b.WriteString(dimStyle.Render(data.Description))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Expires in "))
	b.WriteString(countdown.Render(FormatRemaining(data.Remaining)))
	if data.QueueLength > 0 {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  (+%d queued)", data.QueueLength)))
	}
	b.WriteString("\n")

	if data.Confirming {
		b.WriteString("\n")
		b.WriteString(toolStyle.Render("Always allow this tool for the project?"))
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter: always allow • o: just once • esc: back"))
	} else {
		b.WriteString(helpStyle.Render("a: approve • y: always allow • d: deny • q: quit"))
	}

	return b.String()
}

// Markdown renders markdown for the terminal. On renderer failure the raw
// text is returned unchanged.
func Markdown(content string) string {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return content
	}
	out, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}
