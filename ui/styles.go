package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tvondra/pg-check/report"
)

var (
	SuccessColor = lipgloss.AdaptiveColor{Light: "#0B8457", Dark: "#A6E3A1"}
	WarningColor = lipgloss.AdaptiveColor{Light: "#B8860B", Dark: "#F9E2AF"}
	ErrorColor   = lipgloss.AdaptiveColor{Light: "#C0392B", Dark: "#F38BA8"}
	MutedColor   = lipgloss.AdaptiveColor{Light: "#7F8C8D", Dark: "#6C7086"}
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	OKStyle = lipgloss.NewStyle().
		Foreground(SuccessColor).
		Bold(true).
		Padding(0, 1)

	ProblemStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true).
			Padding(0, 1)

	FindingStyle = lipgloss.NewStyle().
			Foreground(WarningColor).
			Padding(0, 2)

	LocationStyle = lipgloss.NewStyle().
			Foreground(MutedColor)
)

// RenderSummary builds the human readable result of one relation check:
// a verdict line plus every finding, indented.
func RenderSummary(name string, nerrs uint32, findings []report.Finding) string {
	var sb strings.Builder

	sb.WriteString(TitleStyle.Render(name))
	sb.WriteByte('\n')

	if nerrs == 0 {
		sb.WriteString(OKStyle.Render("no problems found"))
		sb.WriteByte('\n')
		return sb.String()
	}

	sb.WriteString(ProblemStyle.Render(fmt.Sprintf("%d problems found", nerrs)))
	sb.WriteByte('\n')

	for _, f := range findings {
		loc := fmt.Sprintf("[%d]", f.Block)
		if f.Item > 0 {
			loc = fmt.Sprintf("[%d:%d]", f.Block, f.Item)
		}
		sb.WriteString(FindingStyle.Render(LocationStyle.Render(loc) + " " + f.Message))
		sb.WriteByte('\n')
	}

	return sb.String()
}
