package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"macro-meal-engine/internal/intake"
	"macro-meal-engine/internal/planner"
	"macro-meal-engine/internal/session"
	"macro-meal-engine/internal/shared"

	"github.com/google/uuid"
)

const (
	// Greeting opens every conversation.
	Greeting = "Hello. Paste the client onboarding data here, and I'll configure the engine."
	// ErrorReply replaces the assistant turn when a round trip fails.
	ErrorReply = "I encountered an error processing that request."
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrBusy         = errors.New("a chat message is already being processed")
)

// Intake extracts parameter changes from a chat message.
type Intake interface {
	ProcessChat(ctx context.Context, message string, params planner.GenerationParameters) (planner.ChatResult, shared.AgentMeta, error)
}

// PageReader fetches the text behind a pasted link.
type PageReader interface {
	Read(ctx context.Context, url string) (string, error)
}

// Result is the outcome of a successful round trip.
type Result struct {
	Reply string
	// Params is set when the reply changed the generation parameters.
	Params *planner.GenerationParameters
}

// Option configures a Session.
type Option func(*Session)

// WithPageReader enables fetching pasted onboarding links.
func WithPageReader(r PageReader) Option {
	return func(s *Session) { s.reader = r }
}

// WithRecorder records usage metadata of every chat call.
func WithRecorder(r shared.MetaRecorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithClock replaces time.Now for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session is the conversational side of an engine. Only one message is
// processed at a time.
type Session struct {
	store    *session.Store
	intake   Intake
	reader   PageReader
	recorder shared.MetaRecorder
	logger   *slog.Logger
	now      func() time.Time

	mu         sync.Mutex
	processing bool
}

// NewSession creates a chat session on store and appends the greeting.
func NewSession(store *session.Store, in Intake, opts ...Option) *Session {
	s := &Session{
		store:  store,
		intake: in,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.appendTurn(session.RoleAssistant, Greeting)
	return s
}

// Processing reports whether a message is in flight.
func (s *Session) Processing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// Submit sends message to the intake assistant. The user turn is appended
// before the round trip starts; the assistant turn (reply or ErrorReply)
// after it ends. A failed round trip leaves the parameters untouched.
func (s *Session) Submit(ctx context.Context, message string) (Result, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Result{}, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.processing {
		s.mu.Unlock()
		return Result{}, ErrBusy
	}
	s.processing = true
	s.mu.Unlock()

	s.appendTurn(session.RoleUser, message)
	s.store.Dispatch(session.ChatProcessingSet{Processing: true})
	defer func() {
		s.store.Dispatch(session.ChatProcessingSet{Processing: false})
		s.mu.Lock()
		s.processing = false
		s.mu.Unlock()
	}()

	out, err := s.roundTrip(ctx, message)
	if err != nil {
		s.logger.Error("Chat round trip failed", "error", err)
		s.appendTurn(session.RoleAssistant, ErrorReply)
		return Result{}, err
	}
	s.appendTurn(session.RoleAssistant, out.Reply)

	res := Result{Reply: out.Reply}
	// Applied inside the reducer: fields the reply left out keep their latest
	// value, including manual edits made while the call was outstanding.
	if out.Calories != nil || out.Exclusions != nil {
		prev, next := s.store.Transition(session.ChatParamsApplied{Result: out})
		if next.Params != prev.Params {
			s.logger.Info("Chat updated parameters", "calories", next.Params.Calories, "exclusions", next.Params.Exclusions)
			res.Params = &next.Params
		}
	}
	return res, nil
}

func (s *Session) roundTrip(ctx context.Context, message string) (planner.ChatResult, error) {
	text := message
	if s.reader != nil && intake.IsURL(message) {
		page, err := s.reader.Read(ctx, message)
		if err != nil {
			return planner.ChatResult{}, fmt.Errorf("failed to read onboarding page: %w", err)
		}
		text = page
	}

	out, meta, err := s.intake.ProcessChat(ctx, text, s.store.Params())
	s.record(meta)
	if err != nil {
		return planner.ChatResult{}, err
	}
	return out, nil
}

func (s *Session) appendTurn(role session.Role, text string) {
	s.store.Dispatch(session.ChatMessageAppended{Message: session.ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: s.now(),
	}})
}

func (s *Session) record(meta shared.AgentMeta) {
	if s.recorder == nil || meta.AgentName == "" {
		return
	}
	if err := s.recorder.RecordMeta(meta); err != nil {
		s.logger.Warn("Failed to record usage", "agent", meta.AgentName, "error", err)
	}
}
