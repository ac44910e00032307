package tui

import (
	"fmt"
	"strings"

	"macro-meal-engine/internal/planner"
	"macro-meal-engine/internal/session"

	"github.com/rivo/tview"
)

func renderChat(s session.State) string {
	var sb strings.Builder
	for _, m := range s.Chat {
		if m.Role == session.RoleUser {
			sb.WriteString("[red::]You:[-]\n")
		} else {
			sb.WriteString("[green::]Engine:[-]\n")
		}
		fmt.Fprintf(&sb, "%s\n\n", tview.Escape(m.Text))
	}
	if s.ChatProcessing {
		sb.WriteString("[gray::]thinking...[-]\n")
	}
	return sb.String()
}

func renderStatus(s session.State) string {
	exclusions := s.Params.Exclusions
	if strings.TrimSpace(exclusions) == "" {
		exclusions = "none"
	}

	var status string
	switch s.Status {
	case session.StatusLoading:
		status = "[yellow]generating...[-]"
	case session.StatusSuccess:
		status = "[green]ready[-]"
	case session.StatusError:
		status = "[red]" + tview.Escape(s.ErrorMessage) + "[-]"
	default:
		status = "idle"
	}
	return fmt.Sprintf("Target: %d kcal (%d per meal) | Exclusions: %s | %s",
		s.Params.Calories, s.Params.PerMealCalories(), tview.Escape(exclusions), status)
}

func renderPlan(s session.State) string {
	if s.Plan == nil {
		if s.Status == session.StatusLoading {
			return "Generating the first plan..."
		}
		return "No plan yet."
	}

	var sb strings.Builder
	if s.PlanParams != nil && *s.PlanParams != s.Params {
		fmt.Fprintf(&sb, "[gray::]Showing the plan for %d kcal[-]\n\n", s.PlanParams.Calories)
	}
	if sum := s.Plan.TargetDailySummary; sum != nil {
		sb.WriteString("[::b]Daily Target Breakdown[::-]\n")
		for _, share := range planner.MacroBreakdown(*sum) {
			fmt.Fprintf(&sb, "  %-8s %4.0fg %5.0f kcal (target %d%%)\n", share.Name, share.Grams, share.Calories, share.TargetPercent)
		}
		sb.WriteString("\n")
	}
	for _, slot := range planner.Slots {
		fmt.Fprintf(&sb, "[::b]%s[::-]\n", strings.ToUpper(string(slot)))
		for i, o := range s.Plan.Options(slot) {
			fmt.Fprintf(&sb, "%d. %s [gray::](%.0f kcal, P%.0f C%.0f F%.0f)[-]\n",
				i+1, tview.Escape(o.Name), o.Macros.TotalCalories, o.Macros.ProteinGrams, o.Macros.CarbGrams, o.Macros.FatGrams)
			items := make([]string, 0, len(o.Ingredients))
			for _, ing := range o.Ingredients {
				items = append(items, fmt.Sprintf("%s %.0fg", ing.Item, ing.Grams))
			}
			fmt.Fprintf(&sb, "   %s\n", tview.Escape(strings.Join(items, ", ")))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
