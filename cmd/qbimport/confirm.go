package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/taxonomy"
)

// formConfirmer asks on the terminal.
type formConfirmer struct {
	out io.Writer
}

func (f formConfirmer) ConfirmInvalid(ctx context.Context, invalid []string, validCount int) (bool, error) {
	desc := strings.Join(invalid, "\n")
	if len(invalid) > 10 {
		desc = strings.Join(invalid[:10], "\n") + fmt.Sprintf("\n... and %d more", len(invalid)-10)
	}
	return f.ask(ctx, fmt.Sprintf("%d question(s) are invalid. Import the %d valid one(s)?", len(invalid), validCount), desc)
}

func (f formConfirmer) ConfirmTaxonomy(ctx context.Context, snap *taxonomy.Snapshot) (bool, error) {
	return f.ask(ctx, "Create the missing subjects and knowledge points?", missingSummary(snap))
}

func (f formConfirmer) ask(ctx context.Context, title, desc string) (bool, error) {
	ok := true
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(desc).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	).WithTheme(huh.ThemeDracula()).
		WithAccessible(os.Getenv("ACCESSIBLE") != "")

	err := form.RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) {
		fmt.Fprintln(f.out, "aborted")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("prompt: %w", err)
	}
	return ok, nil
}
