package planner

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"text/template"
	"time"

	"macro-meal-engine/internal/llm"
	"macro-meal-engine/internal/shared"
)

//go:embed plan_prompt.md
var planPrompt string

var planTemplate = template.Must(template.New("plan").Parse(planPrompt))

// Default sampling temperatures for the two planning calls.
const (
	DefaultPlanTemperature float32 = 0.3
	DefaultChatTemperature float32 = 0.7
)

// Planner talks to the external planning service.
type Planner struct {
	textGen         llm.TextGenerator
	planTemperature float32
	chatTemperature float32
}

// Option configures a Planner.
type Option func(*Planner)

// WithTemperatures overrides the plan and chat sampling temperatures.
func WithTemperatures(plan, chat float32) Option {
	return func(p *Planner) {
		p.planTemperature = plan
		p.chatTemperature = chat
	}
}

// NewPlanner creates a new Planner instance.
func NewPlanner(textGen llm.TextGenerator, opts ...Option) *Planner {
	p := &Planner{
		textGen:         textGen,
		planTemperature: DefaultPlanTemperature,
		chatTemperature: DefaultChatTemperature,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type planPromptData struct {
	Calories        int
	PerMealCalories int
	Exclusions      string
	OptionsPerMeal  int
	ProteinPercent  int
	CarbPercent     int
	FatPercent      int
}

// GeneratePlan asks the planning service for a full day of options and
// validates the result. A plan is returned only if it is complete.
func (p *Planner) GeneratePlan(ctx context.Context, params GenerationParameters) (*MealPlan, shared.AgentMeta, error) {
	start := time.Now()
	meta := shared.AgentMeta{AgentName: shared.AgentPlanGenerator}

	prompt, err := renderPrompt(planTemplate, planPromptData{
		Calories:        params.Calories,
		PerMealCalories: params.PerMealCalories(),
		Exclusions:      params.Exclusions,
		OptionsPerMeal:  OptionsPerMeal,
		ProteinPercent:  ProteinPercent,
		CarbPercent:     CarbPercent,
		FatPercent:      FatPercent,
	})
	if err != nil {
		return nil, meta, err
	}

	resp, err := p.textGen.GenerateContent(ctx, llm.Request{
		Prompt:      prompt,
		Temperature: p.planTemperature,
		Schema:      MealPlanSchema(),
	})
	meta.Usage = resp.Usage
	meta.Latency = time.Since(start)
	if err != nil {
		return nil, meta, fmt.Errorf("failed to generate meal plan from LLM: %w", err)
	}

	raw := llm.ExtractJSON(resp.Content)
	if raw == "" {
		return nil, meta, fmt.Errorf("failed to parse meal plan JSON: no object in response: %s", resp.Content)
	}

	plan := &MealPlan{}
	if err := json.Unmarshal([]byte(raw), plan); err != nil {
		return nil, meta, fmt.Errorf("failed to parse meal plan JSON: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return nil, meta, err
	}

	return plan, meta, nil
}

func renderPrompt(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
