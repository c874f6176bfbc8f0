// Package ui provides terminal rendering helpers and the interactive
// prompt implementations used by the CLI and the watcher daemon.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	accentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
)

// IsInteractive reports whether stdin and stdout are attached to a
// terminal. Non-interactive invocations must never block on a prompt.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// colorEnabled caches whether the terminal supports color output.
var colorEnabled = termenv.EnvColorProfile() != termenv.Ascii

// render applies a style only when the terminal supports it.
func render(style lipgloss.Style, s string) string {
	if !colorEnabled {
		return s
	}
	return style.Render(s)
}

// RenderAccent highlights a key value.
func RenderAccent(s string) string { return render(accentStyle, s) }

// RenderSuccess marks a successful outcome.
func RenderSuccess(s string) string { return render(successStyle, s) }

// RenderWarn marks a warning.
func RenderWarn(s string) string { return render(warnStyle, s) }

// RenderError marks a failure.
func RenderError(s string) string { return render(errorStyle, s) }

// RenderMuted de-emphasizes secondary detail.
func RenderMuted(s string) string { return render(mutedStyle, s) }

// RenderHeader formats a section heading.
func RenderHeader(s string) string { return render(headerStyle, s) }
