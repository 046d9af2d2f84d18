package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"orderdesk/internal/submit"
)

// Styles.
var (
	okStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	errStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	symbolStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	promptStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4"))
)

func outcomeStyle(k submit.OutcomeKind) lipgloss.Style {
	switch k {
	case submit.OutcomeExecuted:
		return okStyle
	case submit.OutcomeDuplicate:
		return warnStyle
	default:
		return errStyle
	}
}

func printOutcome(out *submit.Outcome) {
	fmt.Println(outcomeStyle(out.Kind).Render(out.Message()))
	fmt.Println(dimStyle.Render("correlation id: " + out.CorrelationID))
}
