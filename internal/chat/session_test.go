package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"macro-meal-engine/internal/planner"
	"macro-meal-engine/internal/session"
	"macro-meal-engine/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIntake struct {
	mu       sync.Mutex
	result   planner.ChatResult
	err      error
	messages []string
	params   []planner.GenerationParameters
	// gate, when set, blocks the call until closed or a value arrives.
	gate chan struct{}
}

func (f *fakeIntake) ProcessChat(ctx context.Context, message string, params planner.GenerationParameters) (planner.ChatResult, shared.AgentMeta, error) {
	f.mu.Lock()
	f.messages = append(f.messages, message)
	f.params = append(f.params, params)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return f.result, shared.AgentMeta{AgentName: shared.AgentIntake}, f.err
}

type fakeReader struct {
	text string
	err  error
	urls []string
}

func (f *fakeReader) Read(ctx context.Context, url string) (string, error) {
	f.urls = append(f.urls, url)
	return f.text, f.err
}

func newStore() *session.Store {
	return session.NewStore(session.NewState(planner.GenerationParameters{Calories: 2000, Exclusions: "peanuts"}))
}

func ptr[T any](v T) *T { return &v }

func texts(s session.State) []string {
	out := make([]string, len(s.Chat))
	for i, m := range s.Chat {
		out[i] = string(m.Role) + ": " + m.Text
	}
	return out
}

func TestNewSessionGreets(t *testing.T) {
	store := newStore()
	NewSession(store, &fakeIntake{})

	snap := store.Snapshot()
	require.Len(t, snap.Chat, 1)
	assert.Equal(t, session.RoleAssistant, snap.Chat[0].Role)
	assert.Equal(t, Greeting, snap.Chat[0].Text)
	assert.NotEmpty(t, snap.Chat[0].ID)
}

func TestSubmitAppendsUserTurnFirst(t *testing.T) {
	store := newStore()
	in := &fakeIntake{gate: make(chan struct{}), result: planner.ChatResult{Reply: "Got it."}}
	s := NewSession(store, in)

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), "client is vegetarian")
		done <- err
	}()

	require.Eventually(t, func() bool {
		snap := store.Snapshot()
		return len(snap.Chat) == 2 && snap.ChatProcessing
	}, time.Second, time.Millisecond)

	snap := store.Snapshot()
	assert.Equal(t, "user: client is vegetarian", texts(snap)[1])
	assert.True(t, s.Processing())

	_, err := s.Submit(context.Background(), "second")
	assert.ErrorIs(t, err, ErrBusy)

	close(in.gate)
	require.NoError(t, <-done)

	snap = store.Snapshot()
	assert.Equal(t, []string{
		"assistant: " + Greeting,
		"user: client is vegetarian",
		"assistant: Got it.",
	}, texts(snap))
	assert.False(t, snap.ChatProcessing)
	assert.False(t, s.Processing())
}

func TestSubmitFailure(t *testing.T) {
	store := newStore()
	s := NewSession(store, &fakeIntake{err: errors.New("service unavailable")})

	_, err := s.Submit(context.Background(), "2500 please")
	require.Error(t, err)

	snap := store.Snapshot()
	assert.False(t, snap.ChatProcessing)
	assert.False(t, s.Processing())
	assert.Equal(t, []string{
		"assistant: " + Greeting,
		"user: 2500 please",
		"assistant: " + ErrorReply,
	}, texts(snap))
	assert.Equal(t, planner.GenerationParameters{Calories: 2000, Exclusions: "peanuts"}, snap.Params)

	// The session is usable again.
	_, err = s.Submit(context.Background(), "retry")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBusy)
}

func TestSubmitCaloriesOnly(t *testing.T) {
	store := newStore()
	s := NewSession(store, &fakeIntake{result: planner.ChatResult{Reply: "1800 it is.", Calories: ptr(1800.0)}})

	res, err := s.Submit(context.Background(), "set 1800")
	require.NoError(t, err)
	require.NotNil(t, res.Params)

	want := planner.GenerationParameters{Calories: 1800, Exclusions: "peanuts"}
	assert.Equal(t, want, *res.Params)
	assert.Equal(t, want, store.Params())
	assert.Equal(t, "1800 it is.", res.Reply)
}

func TestSubmitKeepsManualEditsMadeDuringCall(t *testing.T) {
	store := newStore()
	intake := &fakeIntake{result: planner.ChatResult{Reply: "2400 then.", Calories: ptr(2400.0)}, gate: make(chan struct{})}
	s := NewSession(store, intake)

	done := make(chan Result)
	go func() {
		res, err := s.Submit(context.Background(), "bump me to 2400")
		assert.NoError(t, err)
		done <- res
	}()

	require.Eventually(t, s.Processing, time.Second, 5*time.Millisecond)
	store.Dispatch(session.SetExclusions{Exclusions: "shellfish"})
	close(intake.gate)

	res := <-done
	want := planner.GenerationParameters{Calories: 2400, Exclusions: "shellfish"}
	require.NotNil(t, res.Params)
	assert.Equal(t, want, *res.Params)
	assert.Equal(t, want, store.Params())
}

func TestSubmitExclusionsReplace(t *testing.T) {
	store := newStore()
	s := NewSession(store, &fakeIntake{result: planner.ChatResult{Reply: "Cleared.", Exclusions: ptr("")}})

	res, err := s.Submit(context.Background(), "clear all exclusions")
	require.NoError(t, err)
	require.NotNil(t, res.Params)
	assert.Equal(t, planner.GenerationParameters{Calories: 2000}, store.Params())
}

func TestSubmitReplyOnlyKeepsParams(t *testing.T) {
	store := newStore()
	var actions []string
	store.Subscribe(func(prev, next session.State, a session.Action) {
		actions = append(actions, a.Type())
	})
	s := NewSession(store, &fakeIntake{result: planner.ChatResult{Reply: "Protein helps satiety."}})

	res, err := s.Submit(context.Background(), "why protein?")
	require.NoError(t, err)
	assert.Nil(t, res.Params)
	assert.NotContains(t, actions, "chat-params-applied")
}

func TestSubmitSendsCurrentParams(t *testing.T) {
	store := newStore()
	in := &fakeIntake{result: planner.ChatResult{Reply: "ok"}}
	s := NewSession(store, in)

	store.Dispatch(session.SetCalories{Calories: 2300})
	_, err := s.Submit(context.Background(), "  hi  ")
	require.NoError(t, err)

	assert.Equal(t, []string{"hi"}, in.messages)
	assert.Equal(t, 2300, in.params[0].Calories)
}

func TestSubmitEmpty(t *testing.T) {
	store := newStore()
	s := NewSession(store, &fakeIntake{})

	_, err := s.Submit(context.Background(), "   \n")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Len(t, store.Snapshot().Chat, 1)
}

func TestSubmitURL(t *testing.T) {
	t.Run("PageTextIsSent", func(t *testing.T) {
		store := newStore()
		in := &fakeIntake{result: planner.ChatResult{Reply: "Form read.", Calories: ptr(1700.0)}}
		reader := &fakeReader{text: "Jane, 65kg, allergic to shellfish"}
		s := NewSession(store, in, WithPageReader(reader))

		_, err := s.Submit(context.Background(), "https://forms.example.com/r/abc")
		require.NoError(t, err)

		assert.Equal(t, []string{"https://forms.example.com/r/abc"}, reader.urls)
		assert.Equal(t, []string{"Jane, 65kg, allergic to shellfish"}, in.messages)
		assert.Equal(t, "user: https://forms.example.com/r/abc", texts(store.Snapshot())[1])
		assert.Equal(t, 1700, store.Params().Calories)
	})

	t.Run("ReadFailure", func(t *testing.T) {
		store := newStore()
		in := &fakeIntake{}
		s := NewSession(store, in, WithPageReader(&fakeReader{err: errors.New("status 404")}))

		_, err := s.Submit(context.Background(), "https://forms.example.com/missing")
		require.Error(t, err)
		assert.Empty(t, in.messages)

		last, ok := store.Snapshot().LastMessage()
		require.True(t, ok)
		assert.Equal(t, ErrorReply, last.Text)
	})

	t.Run("NoReaderSendsURLAsText", func(t *testing.T) {
		store := newStore()
		in := &fakeIntake{result: planner.ChatResult{Reply: "ok"}}
		s := NewSession(store, in)

		_, err := s.Submit(context.Background(), "https://example.com")
		require.NoError(t, err)
		assert.Equal(t, []string{"https://example.com"}, in.messages)
	})
}

type countingRecorder struct {
	mu    sync.Mutex
	metas []shared.AgentMeta
}

func (r *countingRecorder) RecordMeta(m shared.AgentMeta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metas = append(r.metas, m)
	return nil
}

func TestSubmitRecordsUsage(t *testing.T) {
	rec := &countingRecorder{}
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	store := newStore()
	s := NewSession(store, &fakeIntake{err: errors.New("boom")}, WithRecorder(rec), WithClock(func() time.Time { return fixed }))

	_, _ = s.Submit(context.Background(), "hello")

	require.Len(t, rec.metas, 1)
	assert.Equal(t, shared.AgentIntake, rec.metas[0].AgentName)
	for _, m := range store.Snapshot().Chat {
		assert.Equal(t, fixed, m.CreatedAt)
	}
}
