package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"macro-meal-engine/internal/config"
	"macro-meal-engine/internal/llm"
	"macro-meal-engine/internal/planner"
	"macro-meal-engine/internal/session"
	"macro-meal-engine/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedGenerator answers plan prompts with a valid plan for the requested
// calories and chat prompts with a fixed reply.
type scriptedGenerator struct {
	mu        sync.Mutex
	chatReply string
	prompts   []string
}

func (g *scriptedGenerator) GenerateContent(ctx context.Context, req llm.Request) (llm.ContentResponse, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, req.Prompt)
	reply := g.chatReply
	g.mu.Unlock()

	usage := shared.TokenUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30}
	if strings.Contains(req.Prompt, "Intake Assistant") {
		return llm.ContentResponse{Content: reply, Usage: usage}, nil
	}

	var calories int
	for _, line := range strings.Split(req.Prompt, "\n") {
		if _, err := fmt.Sscanf(line, "Daily target: exactly %d kcal.", &calories); err == nil {
			break
		}
	}
	b, err := json.Marshal(validPlan(calories))
	if err != nil {
		return llm.ContentResponse{}, err
	}
	return llm.ContentResponse{Content: string(b), Usage: usage}, nil
}

func validPlan(calories int) *planner.MealPlan {
	opts := func(slot planner.MealSlot) []planner.MealOption {
		out := make([]planner.MealOption, planner.OptionsPerMeal)
		for i := range out {
			out[i] = planner.MealOption{
				ID:          fmt.Sprintf("%s-%d", slot, i),
				Name:        fmt.Sprintf("%s %d", slot, i),
				Ingredients: []planner.Ingredient{{Item: "Eggs", Grams: 100}, {Item: "Potato", Grams: 150}, {Item: "Spinach", Grams: 50}},
				Macros:      planner.MacroSummary{TotalCalories: float64(calories) / 3, ProteinGrams: 60, CarbGrams: 45, FatGrams: 20},
			}
		}
		return out
	}
	return &planner.MealPlan{
		BreakfastOptions:   opts(planner.SlotBreakfast),
		LunchOptions:       opts(planner.SlotLunch),
		DinnerOptions:      opts(planner.SlotDinner),
		TargetDailySummary: &planner.MacroSummary{TotalCalories: float64(calories)},
	}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.DebounceWindow = 10 * time.Millisecond
	return cfg
}

func TestEngineEndToEnd(t *testing.T) {
	gen := &scriptedGenerator{chatReply: `{"reply": "Set to 1800.", "calories": 1800}`}
	e := NewEngine(testConfig(), Deps{TextGen: gen, Logger: NewLogger("error", io.Discard)})
	t.Cleanup(func() { e.Close() })

	e.Start()
	require.Eventually(t, func() bool {
		s := e.Snapshot()
		return s.Status == session.StatusSuccess && s.PlanParams != nil && s.PlanParams.Calories == 2000
	}, 2*time.Second, 5*time.Millisecond)

	res, err := e.Submit(context.Background(), "client wants 1800")
	require.NoError(t, err)
	require.NotNil(t, res.Params)
	assert.Equal(t, 1800, res.Params.Calories)

	require.Eventually(t, func() bool {
		s := e.Snapshot()
		return s.Status == session.StatusSuccess && s.PlanParams != nil && s.PlanParams.Calories == 1800
	}, 2*time.Second, 5*time.Millisecond)

	s := e.Snapshot()
	assert.Equal(t, 1800.0, s.Plan.TargetDailySummary.TotalCalories)
	assert.Len(t, s.Chat, 3)
	assert.False(t, e.ChatBusy())
}

func TestEngineManualControls(t *testing.T) {
	gen := &scriptedGenerator{}
	cfg := testConfig()
	cfg.GenerateOnStart = false
	e := NewEngine(cfg, Deps{TextGen: gen, Logger: NewLogger("error", io.Discard)})
	t.Cleanup(func() { e.Close() })

	e.Start()
	s := e.SetCalories(2130)
	assert.Equal(t, 2150, s.Params.Calories)
	s = e.SetCalories(100)
	assert.Equal(t, planner.MinCalories, s.Params.Calories)
	s = e.SetExclusions("no fish")
	assert.Equal(t, "no fish", s.Params.Exclusions)

	require.Eventually(t, func() bool {
		s := e.Snapshot()
		return s.Status == session.StatusSuccess && s.PlanParams != nil && s.PlanParams.Exclusions == "no fish"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEngineGeneratePlan(t *testing.T) {
	gen := &scriptedGenerator{}
	e := NewEngine(testConfig(), Deps{TextGen: gen, Logger: NewLogger("error", io.Discard)})
	t.Cleanup(func() { e.Close() })

	plan, err := e.GeneratePlan(context.Background(), planner.GenerationParameters{Calories: 2100, Exclusions: "no fish"})
	require.NoError(t, err)
	for _, slot := range planner.Slots {
		opts := plan.Options(slot)
		require.Len(t, opts, planner.OptionsPerMeal)
		for _, o := range opts {
			assert.GreaterOrEqual(t, o.Macros.TotalCalories, 0.0)
			assert.GreaterOrEqual(t, o.Macros.ProteinGrams, 0.0)
			assert.GreaterOrEqual(t, o.Macros.CarbGrams, 0.0)
			assert.GreaterOrEqual(t, o.Macros.FatGrams, 0.0)
		}
	}
	assert.Contains(t, gen.prompts[0], "no fish")
	assert.Nil(t, e.Usage())
}

func TestOpenWithGroq(t *testing.T) {
	cfg := testConfig()
	cfg.LLMProvider = config.ProviderGroq
	cfg.DatabasePath = filepath.Join(t.TempDir(), "data", "engine.db")
	cfg.GenerateOnStart = false

	e, err := Open(cfg, NewLogger("error", io.Discard))
	require.NoError(t, err)

	require.NotNil(t, e.Usage())
	assert.Equal(t, filepath.Dir(cfg.DatabasePath), e.DataDir())

	// No key: the call fails at request time and the session reports it.
	e.Retry()
	require.Eventually(t, func() bool {
		return e.Snapshot().Status == session.StatusError
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, e.Close())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("warn", &buf)
	l.Info("hidden")
	l.Warn("shown", "k", "v")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "k=v")
}
