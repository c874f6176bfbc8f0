package ui

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"

	"github.com/clutter-sh/clutter/internal/ghost"
)

// Prompter asks recovery and confirmation questions on the terminal. It
// implements ghost.Prompter and verify's Confirmer.
type Prompter struct{}

// NewPrompter returns a terminal prompter.
func NewPrompter() *Prompter {
	return &Prompter{}
}

// choiceLabels maps recovery choices to the text shown in the select.
var choiceLabels = map[ghost.Choice]string{
	ghost.ChoiceRestore:       "Restore the original from the sandbox",
	ghost.ChoiceKeepGhost:     "Keep as ghost (sandbox retained, original stays gone)",
	ghost.ChoiceDeleteForReal: "Delete for real (remove all tracking state)",
	ghost.ChoiceUntrack:       "Untrack (nothing can be restored)",
	ghost.ChoiceFollow:        "Follow the original to its new location",
	ghost.ChoiceGhost:         "Keep as ghost at the old path",
	ghost.ChoiceCancel:        "Decide later",
}

// Choose presents the recovery options and blocks until one is picked.
// In a non-interactive session it fails instead of hanging.
func (p *Prompter) Choose(ctx context.Context, prompt string, options []ghost.Choice) (ghost.Choice, error) {
	if !IsInteractive() {
		return "", fmt.Errorf("cannot prompt for a recovery decision without a terminal")
	}

	huhOptions := make([]huh.Option[ghost.Choice], 0, len(options))
	for _, opt := range options {
		label := choiceLabels[opt]
		if label == "" {
			label = string(opt)
		}
		huhOptions = append(huhOptions, huh.NewOption(label, opt))
	}

	var selected ghost.Choice
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[ghost.Choice]().
			Title(prompt).
			Options(huhOptions...).
			Value(&selected),
	))
	if err := form.RunWithContext(ctx); err != nil {
		return "", fmt.Errorf("prompt aborted: %w", err)
	}
	return selected, nil
}

// Confirm asks a yes/no question.
func (p *Prompter) Confirm(ctx context.Context, prompt string) (bool, error) {
	if !IsInteractive() {
		return false, fmt.Errorf("cannot confirm without a terminal")
	}

	var ok bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().Title(prompt).Value(&ok),
	))
	if err := form.RunWithContext(ctx); err != nil {
		return false, fmt.Errorf("prompt aborted: %w", err)
	}
	return ok, nil
}

// Report prints one line of status text.
func (p *Prompter) Report(message string) {
	fmt.Fprintln(os.Stderr, message)
}
