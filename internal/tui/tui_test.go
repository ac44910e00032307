package tui

import (
	"testing"
	"time"

	"macro-meal-engine/internal/planner"
	"macro-meal-engine/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want command
	}{
		{"  I weigh 80kg  ", command{kind: cmdChat, text: "I weigh 80kg"}},
		{"/calories 2100", command{kind: cmdCalories, calories: 2100}},
		{"/exclude  dairy, nuts ", command{kind: cmdExclude, text: "dairy, nuts"}},
		{"/exclude", command{kind: cmdExclude}},
		{"/retry", command{kind: cmdRetry}},
		{"/help", command{kind: cmdHelp}},
		{"/bye", command{kind: cmdQuit}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseCommand(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parseCommand("/calories lots")
	assert.EqualError(t, err, "usage: /calories N (1200-4000)")
	_, err = parseCommand("/dance")
	assert.ErrorContains(t, err, "unknown command /dance")
}

func TestRender(t *testing.T) {
	s := session.NewState(planner.GenerationParameters{Calories: 2100})
	s.Chat = append(s.Chat,
		session.ChatMessage{Role: session.RoleAssistant, Text: "Hello.", CreatedAt: time.Now()},
		session.ChatMessage{Role: session.RoleUser, Text: "no [fish]", CreatedAt: time.Now()},
	)
	s.ChatProcessing = true

	out := renderChat(s)
	assert.Contains(t, out, "[green::]Engine:[-]\nHello.")
	assert.Contains(t, out, "[red::]You:[-]\nno [fish[]")
	assert.Contains(t, out, "thinking...")

	assert.Equal(t, "Target: 2100 kcal (700 per meal) | Exclusions: none | idle", renderStatus(s))
	s.Status = session.StatusError
	s.ErrorMessage = "Failed to generate meal plan."
	assert.Contains(t, renderStatus(s), "[red]Failed to generate meal plan.[-]")

	assert.Equal(t, "No plan yet.", renderPlan(s))

	s.Plan = &planner.MealPlan{
		BreakfastOptions: []planner.MealOption{{
			Name:        "Oats",
			Ingredients: []planner.Ingredient{{Item: "Oats", Grams: 80}, {Item: "Whey", Grams: 30}},
			Macros:      planner.MacroSummary{TotalCalories: 700, ProteinGrams: 50, CarbGrams: 70, FatGrams: 20},
		}},
		TargetDailySummary: &planner.MacroSummary{TotalCalories: 2100, ProteinGrams: 210, CarbGrams: 158, FatGrams: 70},
	}
	s.PlanParams = &planner.GenerationParameters{Calories: 2000}
	plan := renderPlan(s)
	assert.Contains(t, plan, "Showing the plan for 2000 kcal")
	assert.Contains(t, plan, "1. Oats [gray::](700 kcal, P50 C70 F20)[-]")
	assert.Contains(t, plan, "   Oats 80g, Whey 30g")
	assert.Contains(t, plan, "BREAKFAST")
}
