package telegram

import (
	"fmt"
	"strings"

	"macro-meal-engine/internal/metrics"
	"macro-meal-engine/internal/planner"
	"macro-meal-engine/internal/session"
)

const helpText = `🥗 *Macro Meal Engine*
Paste client onboarding data (or a link to it) and I'll configure the plan.

/calories N - set the daily target
/exclude text - replace exclusions (empty clears)
/plan - current targets and plan summary
/breakfast, /lunch, /dinner - the options for a meal
/retry - regenerate now`

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// escapeMarkdown escapes the legacy Markdown control characters.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func exclusionsLabel(exclusions string) string {
	if strings.TrimSpace(exclusions) == "" {
		return "none"
	}
	return escapeMarkdown(exclusions)
}

func statusLabel(s session.Status) string {
	switch s {
	case session.StatusLoading:
		return "⏳ generating"
	case session.StatusSuccess:
		return "✅ ready"
	case session.StatusError:
		return "❌ failed"
	default:
		return "💤 idle"
	}
}

func formatSummary(s session.State) string {
	var sb strings.Builder
	sb.WriteString("📋 *Daily Plan*\n\n")
	fmt.Fprintf(&sb, "🎯 Target: *%d kcal* (%d per meal)\n", s.Params.Calories, s.Params.PerMealCalories())
	fmt.Fprintf(&sb, "🚫 Exclusions: %s\n", exclusionsLabel(s.Params.Exclusions))
	fmt.Fprintf(&sb, "Status: %s\n", statusLabel(s.Status))

	if s.Plan == nil {
		sb.WriteString("\n_No plan yet._")
		return sb.String()
	}
	if s.PlanParams != nil && *s.PlanParams != s.Params {
		fmt.Fprintf(&sb, "_Showing the plan for %d kcal._\n", s.PlanParams.Calories)
	}

	if sum := s.Plan.TargetDailySummary; sum != nil {
		sb.WriteString("\n📊 *Daily Target Breakdown*\n")
		for _, share := range planner.MacroBreakdown(*sum) {
			fmt.Fprintf(&sb, "• %s: %.0fg (%.0f kcal, target %d%%)\n", share.Name, share.Grams, share.Calories, share.TargetPercent)
		}
	}

	sb.WriteString("\n")
	for _, slot := range planner.Slots {
		opts := s.Plan.Options(slot)
		names := make([]string, 0, len(opts))
		for _, o := range opts {
			names = append(names, escapeMarkdown(o.Name))
		}
		fmt.Fprintf(&sb, "*%s*: %s\n", slotTitle(slot), strings.Join(names, " · "))
	}
	sb.WriteString("\nSend /breakfast, /lunch or /dinner for ingredients.")
	return sb.String()
}

func formatSlot(s session.State, slot planner.MealSlot) string {
	if s.Plan == nil {
		return "_No plan yet._"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🍽 *%s Options*\n", slotTitle(slot))
	for i, o := range s.Plan.Options(slot) {
		fmt.Fprintf(&sb, "\n*%d. %s*\n", i+1, escapeMarkdown(o.Name))
		for _, ing := range o.Ingredients {
			fmt.Fprintf(&sb, "• %s: %.0fg\n", escapeMarkdown(ing.Item), ing.Grams)
		}
		fmt.Fprintf(&sb, "_%.0f kcal · P %.0fg · C %.0fg · F %.0fg_\n",
			o.Macros.TotalCalories, o.Macros.ProteinGrams, o.Macros.CarbGrams, o.Macros.FatGrams)
	}
	return sb.String()
}

func slotTitle(slot planner.MealSlot) string {
	s := string(slot)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func formatUsageReport(usage []metrics.DailyUsage, health metrics.SysHealth) string {
	var sb strings.Builder
	sb.WriteString("📊 *Usage & Health Report*\n\n")

	sb.WriteString("🗓 *Recent LLM Activity*\n")
	if len(usage) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, d := range usage {
		fmt.Fprintf(&sb, "• *%s*: %d tokens (%d execs)\n", d.Date, d.TotalPrompt+d.TotalCompletion, d.TotalExecution)
	}

	sb.WriteString("\n🧠 *System Health*\n")
	fmt.Fprintf(&sb, "• RAM: %dMB (Alloc) / %dMB (Sys)\n", health.AllocMB, health.SysMB)
	fmt.Fprintf(&sb, "• Goroutines: %d\n", health.Goroutines)
	fmt.Fprintf(&sb, "• Uptime: %s\n", health.Uptime)
	fmt.Fprintf(&sb, "• Disk Data: %s\n", health.DataDiskSize)
	return sb.String()
}
