package planner

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"text/template"
	"time"

	"macro-meal-engine/internal/llm"
	"macro-meal-engine/internal/shared"
)

//go:embed intake_prompt.md
var intakePrompt string

var intakeTemplate = template.Must(template.New("intake").Parse(intakePrompt))

// FallbackReply is used when the assistant answers without a reply.
const FallbackReply = "I couldn't process that. Please try again."

// ChatResult is the intake assistant's answer. Nil fields mean "unchanged".
// Exclusions, when present, replaces the whole exclusion string.
type ChatResult struct {
	Reply      string   `json:"reply"`
	Calories   *float64 `json:"calories,omitempty"`
	Exclusions *string  `json:"exclusions,omitempty"`
}

// Apply returns params updated with the changes carried by the result.
// The second value reports whether anything changed.
func (r ChatResult) Apply(params GenerationParameters) (GenerationParameters, bool) {
	next := params
	if r.Calories != nil && *r.Calories > 0 {
		// Bound in float space; huge values would overflow the int conversion.
		next.Calories = ClampCalories(int(math.Round(min(*r.Calories, MaxCalories))))
	}
	if r.Exclusions != nil {
		next.Exclusions = *r.Exclusions
	}
	return next, next != params
}

type intakePromptData struct {
	Calories   int
	Exclusions string
	Message    string
}

// ProcessChat sends a chat message together with the current parameters and
// returns the assistant reply plus any parameter changes it extracted.
func (p *Planner) ProcessChat(ctx context.Context, message string, params GenerationParameters) (ChatResult, shared.AgentMeta, error) {
	start := time.Now()
	meta := shared.AgentMeta{AgentName: shared.AgentIntake}

	prompt, err := renderPrompt(intakeTemplate, intakePromptData{
		Calories:   params.Calories,
		Exclusions: params.Exclusions,
		Message:    message,
	})
	if err != nil {
		return ChatResult{}, meta, err
	}

	resp, err := p.textGen.GenerateContent(ctx, llm.Request{
		Prompt:      prompt,
		Temperature: p.chatTemperature,
		Schema:      ChatSchema(),
	})
	meta.Usage = resp.Usage
	meta.Latency = time.Since(start)
	if err != nil {
		return ChatResult{}, meta, fmt.Errorf("failed to process chat message: %w", err)
	}

	raw := llm.ExtractJSON(resp.Content)
	if raw == "" {
		return ChatResult{Reply: FallbackReply}, meta, nil
	}

	var result ChatResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return ChatResult{}, meta, fmt.Errorf("failed to parse chat response %w. Response: %s", err, resp.Content)
	}
	if strings.TrimSpace(result.Reply) == "" {
		result.Reply = FallbackReply
	}
	return result, meta, nil
}
