package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"macro-meal-engine/internal/planner"
	"macro-meal-engine/internal/session"

	"github.com/nats-io/nats.go"
)

// SubjectPrefix is prepended to every action type, e.g.
// "meal-engine.generation-succeeded".
const SubjectPrefix = "meal-engine."

// Event is the payload published for each state transition.
type Event struct {
	Type       string                       `json:"type"`
	Status     session.Status               `json:"status"`
	Params     planner.GenerationParameters `json:"params"`
	Plan       *planner.MealPlan            `json:"plan,omitempty"`
	Message    *session.ChatMessage         `json:"message,omitempty"`
	OccurredAt time.Time                    `json:"occurredAt"`
}

// Conn is the part of a NATS connection the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher forwards session transitions to NATS.
type Publisher struct {
	conn   Conn
	logger *slog.Logger
	now    func() time.Time
}

// NewPublisher creates a publisher on conn.
func NewPublisher(conn Conn, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger, now: time.Now}
}

// Connect dials url and returns the connection with a publisher on it.
func Connect(url string, logger *slog.Logger) (*nats.Conn, *Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("meal-engine"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return nc, NewPublisher(nc, logger), nil
}

// NewEvent builds the event for a transition. Only generation outcomes carry
// the plan and only appended turns carry the message.
func NewEvent(next session.State, action session.Action, at time.Time) Event {
	ev := Event{
		Type:       action.Type(),
		Status:     next.Status,
		Params:     next.Params,
		OccurredAt: at.UTC(),
	}
	switch a := action.(type) {
	case session.GenerationSucceeded:
		ev.Plan = next.Plan
	case session.ChatMessageAppended:
		msg := a.Message
		ev.Message = &msg
	}
	return ev
}

// Observe is a session.Subscriber. Publish failures are logged and dropped.
func (p *Publisher) Observe(_, next session.State, action session.Action) {
	if _, ok := action.(session.ChatProcessingSet); ok {
		return
	}
	ev := NewEvent(next, action, p.now())
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("Failed to encode event", "type", ev.Type, "error", err)
		return
	}
	if err := p.conn.Publish(SubjectPrefix+ev.Type, data); err != nil {
		p.logger.Warn("Failed to publish event", "type", ev.Type, "error", err)
	}
}
