package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"macro-meal-engine/internal/llm"
	"macro-meal-engine/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockTextGenerator struct {
	Content  string
	Err      error
	Usage    shared.TokenUsage
	Requests []llm.Request
}

func (m *MockTextGenerator) GenerateContent(ctx context.Context, req llm.Request) (llm.ContentResponse, error) {
	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return llm.ContentResponse{}, m.Err
	}
	return llm.ContentResponse{Content: m.Content, Usage: m.Usage}, nil
}

func testOptions(slot MealSlot, perMeal float64) []MealOption {
	opts := make([]MealOption, OptionsPerMeal)
	for i := range opts {
		opts[i] = MealOption{
			ID:   fmt.Sprintf("%s-%d", slot, i),
			Name: fmt.Sprintf("%s option %d", slot, i),
			Ingredients: []Ingredient{
				{Item: "Chicken breast", Grams: 150},
				{Item: "Rice", Grams: 120},
				{Item: "Broccoli", Grams: 100},
			},
			Macros: MacroSummary{TotalCalories: perMeal, ProteinGrams: 70, CarbGrams: 52, FatGrams: 23},
		}
	}
	return opts
}

func testPlan(calories int) *MealPlan {
	perMeal := float64(calories) / MealsPerDay
	return &MealPlan{
		BreakfastOptions:   testOptions(SlotBreakfast, perMeal),
		LunchOptions:       testOptions(SlotLunch, perMeal),
		DinnerOptions:      testOptions(SlotDinner, perMeal),
		TargetDailySummary: &MacroSummary{TotalCalories: float64(calories), ProteinGrams: 210, CarbGrams: 158, FatGrams: 70},
	}
}

func testPlanJSON(t *testing.T, calories int) string {
	t.Helper()
	b, err := json.Marshal(testPlan(calories))
	require.NoError(t, err)
	return string(b)
}

func TestGeneratePlan(t *testing.T) {
	ctx := context.Background()

	t.Run("ValidPlan", func(t *testing.T) {
		gen := &MockTextGenerator{
			Content: "```json\n" + testPlanJSON(t, 2100) + "\n```",
			Usage:   shared.TokenUsage{PromptTokens: 120, CompletionTokens: 900, TotalTokens: 1020},
		}
		p := NewPlanner(gen)

		plan, meta, err := p.GeneratePlan(ctx, GenerationParameters{Calories: 2100, Exclusions: "no fish"})
		require.NoError(t, err)
		require.NotNil(t, plan)

		assert.Len(t, plan.BreakfastOptions, OptionsPerMeal)
		assert.Len(t, plan.LunchOptions, OptionsPerMeal)
		assert.Len(t, plan.DinnerOptions, OptionsPerMeal)
		assert.Equal(t, 2100.0, plan.TargetDailySummary.TotalCalories)

		assert.Equal(t, shared.AgentPlanGenerator, meta.AgentName)
		assert.Equal(t, 1020, meta.Usage.TotalTokens)

		require.Len(t, gen.Requests, 1)
		req := gen.Requests[0]
		assert.Equal(t, DefaultPlanTemperature, req.Temperature)
		assert.Equal(t, MealPlanSchema(), req.Schema)
		assert.Contains(t, req.Prompt, "2100")
		assert.Contains(t, req.Prompt, "700")
		assert.Contains(t, req.Prompt, "no fish")
	})

	t.Run("NoExclusions", func(t *testing.T) {
		gen := &MockTextGenerator{Content: testPlanJSON(t, 2000)}
		p := NewPlanner(gen)

		_, _, err := p.GeneratePlan(ctx, GenerationParameters{Calories: 2000})
		require.NoError(t, err)
		assert.Contains(t, gen.Requests[0].Prompt, "None")
	})

	t.Run("ServiceError", func(t *testing.T) {
		gen := &MockTextGenerator{Err: errors.New("quota exceeded")}
		p := NewPlanner(gen)

		plan, meta, err := p.GeneratePlan(ctx, GenerationParameters{Calories: 2000})
		require.Error(t, err)
		assert.Nil(t, plan)
		assert.Contains(t, err.Error(), "quota exceeded")
		assert.Equal(t, shared.AgentPlanGenerator, meta.AgentName)
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		p := NewPlanner(&MockTextGenerator{Content: `{"breakfastOptions": [`})

		_, _, err := p.GeneratePlan(ctx, GenerationParameters{Calories: 2000})
		require.Error(t, err)
	})

	t.Run("NoJSONObject", func(t *testing.T) {
		p := NewPlanner(&MockTextGenerator{Content: "sorry, I can't help with that"})

		_, _, err := p.GeneratePlan(ctx, GenerationParameters{Calories: 2000})
		require.Error(t, err)
	})

	t.Run("IncompletePlan", func(t *testing.T) {
		plan := testPlan(2000)
		plan.DinnerOptions = plan.DinnerOptions[:2]
		b, err := json.Marshal(plan)
		require.NoError(t, err)

		_, _, err = NewPlanner(&MockTextGenerator{Content: string(b)}).GeneratePlan(ctx, GenerationParameters{Calories: 2000})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidPlan)
		assert.Contains(t, err.Error(), "dinner: expected 5 options, got 2")
	})

	t.Run("CustomTemperature", func(t *testing.T) {
		gen := &MockTextGenerator{Content: testPlanJSON(t, 2000)}
		p := NewPlanner(gen, WithTemperatures(0.1, 0.9))

		_, _, err := p.GeneratePlan(ctx, GenerationParameters{Calories: 2000})
		require.NoError(t, err)
		assert.Equal(t, float32(0.1), gen.Requests[0].Temperature)
	})
}

func TestProcessChat(t *testing.T) {
	ctx := context.Background()
	current := GenerationParameters{Calories: 2000, Exclusions: "peanuts"}

	t.Run("CaloriesAndExclusions", func(t *testing.T) {
		gen := &MockTextGenerator{Content: `{"reply": "Done! 2500 calories, no dairy.", "calories": 2500, "exclusions": "peanuts, dairy"}`}
		p := NewPlanner(gen)

		res, meta, err := p.ProcessChat(ctx, "make it 2500 and no dairy", current)
		require.NoError(t, err)
		assert.Equal(t, "Done! 2500 calories, no dairy.", res.Reply)
		require.NotNil(t, res.Calories)
		assert.Equal(t, 2500.0, *res.Calories)
		require.NotNil(t, res.Exclusions)
		assert.Equal(t, "peanuts, dairy", *res.Exclusions)
		assert.Equal(t, shared.AgentIntake, meta.AgentName)

		req := gen.Requests[0]
		assert.Equal(t, DefaultChatTemperature, req.Temperature)
		assert.Equal(t, ChatSchema(), req.Schema)
		assert.Contains(t, req.Prompt, "make it 2500 and no dairy")
		assert.Contains(t, req.Prompt, "2000")
		assert.Contains(t, req.Prompt, "peanuts")
	})

	t.Run("ReplyOnly", func(t *testing.T) {
		p := NewPlanner(&MockTextGenerator{Content: `{"reply": "Protein keeps you full."}`})

		res, _, err := p.ProcessChat(ctx, "why so much protein?", current)
		require.NoError(t, err)
		assert.Nil(t, res.Calories)
		assert.Nil(t, res.Exclusions)
	})

	t.Run("EmptyReplyFallsBack", func(t *testing.T) {
		p := NewPlanner(&MockTextGenerator{Content: `{"reply": "  "}`})

		res, _, err := p.ProcessChat(ctx, "hmm", current)
		require.NoError(t, err)
		assert.Equal(t, FallbackReply, res.Reply)
	})

	t.Run("NoJSONFallsBack", func(t *testing.T) {
		p := NewPlanner(&MockTextGenerator{Content: ""})

		res, _, err := p.ProcessChat(ctx, "hmm", current)
		require.NoError(t, err)
		assert.Equal(t, FallbackReply, res.Reply)
	})

	t.Run("ServiceError", func(t *testing.T) {
		p := NewPlanner(&MockTextGenerator{Err: llm.ErrMissingAPIKey})

		_, _, err := p.ProcessChat(ctx, "hello", current)
		require.Error(t, err)
		assert.True(t, errors.Is(err, llm.ErrMissingAPIKey))
	})
}

func TestChatResultApply(t *testing.T) {
	base := GenerationParameters{Calories: 2000, Exclusions: "peanuts"}
	f := func(v float64) *float64 { return &v }
	s := func(v string) *string { return &v }

	tests := []struct {
		name    string
		result  ChatResult
		want    GenerationParameters
		changed bool
	}{
		{"nothing", ChatResult{Reply: "hi"}, base, false},
		{"calories", ChatResult{Calories: f(2500)}, GenerationParameters{Calories: 2500, Exclusions: "peanuts"}, true},
		{"zero calories ignored", ChatResult{Calories: f(0)}, base, false},
		{"negative calories ignored", ChatResult{Calories: f(-10)}, base, false},
		{"calories clamped", ChatResult{Calories: f(9000)}, GenerationParameters{Calories: MaxCalories, Exclusions: "peanuts"}, true},
		{"calories overflowing int clamped", ChatResult{Calories: f(1e19)}, GenerationParameters{Calories: MaxCalories, Exclusions: "peanuts"}, true},
		{"huge calories clamped", ChatResult{Calories: f(1e300)}, GenerationParameters{Calories: MaxCalories, Exclusions: "peanuts"}, true},
		{"tiny calories clamped", ChatResult{Calories: f(0.4)}, GenerationParameters{Calories: MinCalories, Exclusions: "peanuts"}, true},
		{"calories rounded", ChatResult{Calories: f(2199.6)}, GenerationParameters{Calories: 2200, Exclusions: "peanuts"}, true},
		{"empty exclusions resets", ChatResult{Exclusions: s("")}, GenerationParameters{Calories: 2000}, true},
		{"same values", ChatResult{Calories: f(2000), Exclusions: s("peanuts")}, base, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := tt.result.Apply(base)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.changed, changed)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, testPlan(2000).Validate())
	})

	t.Run("Nil", func(t *testing.T) {
		var p *MealPlan
		assert.ErrorIs(t, p.Validate(), ErrInvalidPlan)
	})

	t.Run("CollectsAllProblems", func(t *testing.T) {
		p := testPlan(2000)
		p.BreakfastOptions[0].Name = ""
		p.LunchOptions[1].Ingredients = nil
		p.DinnerOptions[2].Macros.FatGrams = -1
		p.TargetDailySummary = nil

		err := p.Validate()
		require.ErrorIs(t, err, ErrInvalidPlan)
		msg := err.Error()
		for _, want := range []string{
			"breakfast[0]: name is empty",
			"lunch[1]: no ingredients",
			"dinner[2].macros.fatGrams",
			"targetDailySummary: missing",
		} {
			assert.True(t, strings.Contains(msg, want), "missing %q in %q", want, msg)
		}
	})
}

func TestCalories(t *testing.T) {
	assert.Equal(t, MinCalories, ClampCalories(500))
	assert.Equal(t, MaxCalories, ClampCalories(10000))
	assert.Equal(t, 2100, ClampCalories(2100))

	assert.Equal(t, 2100, SnapCalories(2110))
	assert.Equal(t, 2150, SnapCalories(2125))
	assert.Equal(t, MinCalories, SnapCalories(1000))

	assert.Equal(t, 700, GenerationParameters{Calories: 2100}.PerMealCalories())
	assert.Equal(t, 667, GenerationParameters{Calories: 2000}.PerMealCalories())
}

func TestMacroBreakdown(t *testing.T) {
	shares := MacroBreakdown(MacroSummary{ProteinGrams: 100, CarbGrams: 50, FatGrams: 20})
	require.Len(t, shares, 3)
	assert.Equal(t, 400.0, shares[0].Calories)
	assert.Equal(t, 200.0, shares[1].Calories)
	assert.Equal(t, 180.0, shares[2].Calories)
	assert.Equal(t, ProteinPercent, shares[0].TargetPercent)
}

func TestClone(t *testing.T) {
	orig := testPlan(2000)
	cp := orig.Clone()
	cp.BreakfastOptions[0].Ingredients[0].Item = "Tofu"
	cp.TargetDailySummary.TotalCalories = 1

	assert.Equal(t, "Chicken breast", orig.BreakfastOptions[0].Ingredients[0].Item)
	assert.Equal(t, 2000.0, orig.TargetDailySummary.TotalCalories)
	assert.Nil(t, (*MealPlan)(nil).Clone())
}
