package session

import (
	"slices"

	"macro-meal-engine/internal/planner"
)

// Action is a state transition. Actions are applied by Reduce.
type Action interface {
	Type() string
}

// SetCalories is the manual calorie control.
type SetCalories struct {
	Calories int
}

// SetExclusions is the manual exclusion text edit.
type SetExclusions struct {
	Exclusions string
}

// ChatParamsApplied applies the parameter changes of an intake reply to the
// parameters current at reduce time.
type ChatParamsApplied struct {
	Result planner.ChatResult
}

// GenerationStarted marks a dispatched generation call.
type GenerationStarted struct {
	Params planner.GenerationParameters
}

// GenerationSucceeded replaces the plan wholesale.
type GenerationSucceeded struct {
	Plan   *planner.MealPlan
	Params planner.GenerationParameters
}

// GenerationFailed keeps the previous plan and records a user-facing message.
type GenerationFailed struct {
	Message string
}

// ChatMessageAppended adds one turn to the chat log.
type ChatMessageAppended struct {
	Message ChatMessage
}

// ChatProcessingSet toggles the chat processing flag.
type ChatProcessingSet struct {
	Processing bool
}

func (SetCalories) Type() string         { return "set-calories" }
func (SetExclusions) Type() string       { return "set-exclusions" }
func (ChatParamsApplied) Type() string   { return "chat-params-applied" }
func (GenerationStarted) Type() string   { return "generation-started" }
func (GenerationSucceeded) Type() string { return "generation-succeeded" }
func (GenerationFailed) Type() string    { return "generation-failed" }
func (ChatMessageAppended) Type() string { return "chat-message-appended" }
func (ChatProcessingSet) Type() string   { return "chat-processing-set" }

// Reduce applies a to s and returns the next state. s is not modified.
// Unknown actions return s unchanged.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case SetCalories:
		s.Params.Calories = planner.ClampCalories(a.Calories)
	case SetExclusions:
		s.Params.Exclusions = a.Exclusions
	case ChatParamsApplied:
		s.Params, _ = a.Result.Apply(s.Params)
	case GenerationStarted:
		s.Status = StatusLoading
		s.ErrorMessage = ""
	case GenerationSucceeded:
		if a.Plan == nil {
			return s
		}
		s.Plan = a.Plan.Clone()
		pp := a.Params
		s.PlanParams = &pp
		s.Status = StatusSuccess
		s.ErrorMessage = ""
	case GenerationFailed:
		s.Status = StatusError
		s.ErrorMessage = a.Message
	case ChatMessageAppended:
		s.Chat = append(slices.Clip(s.Chat), a.Message)
	case ChatProcessingSet:
		s.ChatProcessing = a.Processing
	}
	return s
}
