package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/liliang-cn/leadgen/internal/domain"
)

// renderState prints a snapshot as text:
// header, summary, then the three ranked lists.
func renderState(w io.Writer, state domain.State) {
	switch state.Phase {
	case domain.PhaseFailed:
		fmt.Fprintf(w, "Error: %s\n", state.Error.Message)
		return
	case domain.PhaseSuccess:
	default:
		fmt.Fprintf(w, "%s: %s\n", state.Flow, state.Phase)
		return
	}

	result := state.Result
	fmt.Fprintln(w, result.DisplayTitle())
	if source := result.Source(); source != "" && source != result.DisplayTitle() {
		fmt.Fprintln(w, source)
	}
	if pages := result.PageCount(); pages > 0 {
		fmt.Fprintf(w, "%d pages", pages)
		if result.Metadata.Author != "" {
			fmt.Fprintf(w, " · %s", result.Metadata.Author)
		}
		fmt.Fprintln(w)
	}

	section(w, "Summary")
	fmt.Fprintln(w, result.Summary)

	list(w, "Conversation Starters", result.ConversationStarters)
	list(w, "Pain Points", result.PainPoints)
	list(w, "Market Gaps", result.MarketGaps)
}

func section(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s\n%s\n", title, strings.Repeat("-", len(title)))
}

func list(w io.Writer, title string, items []string) {
	section(w, title)
	if len(items) == 0 {
		fmt.Fprintln(w, "(none)")
		return
	}
	for i, item := range items {
		fmt.Fprintf(w, "%d. %s\n", i+1, item)
	}
}

func renderEmail(w io.Writer, draft *domain.EmailDraft) {
	fmt.Fprintf(w, "Subject: %s\n\n", draft.Subject)
	fmt.Fprintln(w, strings.TrimSpace(draft.Body))
}
