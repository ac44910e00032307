package session

import (
	"slices"
	"time"

	"macro-meal-engine/internal/planner"
)

// Status is the single request status of a session.
type Status string

const (
	StatusIdle    Status = "IDLE"
	StatusLoading Status = "LOADING"
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
)

// Role identifies the author of a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one turn of the conversation. Turns are appended and never
// edited.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// State is everything a presentation surface needs to render a session.
type State struct {
	Params planner.GenerationParameters `json:"params"`
	Plan   *planner.MealPlan            `json:"plan,omitempty"`
	// PlanParams are the parameters Plan was generated for.
	PlanParams     *planner.GenerationParameters `json:"planParams,omitempty"`
	Status         Status                        `json:"status"`
	ErrorMessage   string                        `json:"errorMessage,omitempty"`
	Chat           []ChatMessage                 `json:"chat"`
	ChatProcessing bool                          `json:"chatProcessing"`
}

// NewState returns the initial state for the given parameters.
func NewState(params planner.GenerationParameters) State {
	params.Calories = planner.ClampCalories(params.Calories)
	return State{
		Params: params,
		Status: StatusIdle,
		Chat:   []ChatMessage{},
	}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	out.Plan = s.Plan.Clone()
	if s.PlanParams != nil {
		pp := *s.PlanParams
		out.PlanParams = &pp
	}
	out.Chat = slices.Clone(s.Chat)
	if out.Chat == nil {
		out.Chat = []ChatMessage{}
	}
	return out
}

// LastMessage returns the most recent chat turn, if any.
func (s State) LastMessage() (ChatMessage, bool) {
	if len(s.Chat) == 0 {
		return ChatMessage{}, false
	}
	return s.Chat[len(s.Chat)-1], true
}
