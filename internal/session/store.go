package session

import (
	"sync"

	"macro-meal-engine/internal/planner"
)

// Subscriber is notified after every dispatched action. prev and next are
// copies shared by all subscribers and must not be modified.
type Subscriber func(prev, next State, action Action)

type notification struct {
	prev, next State
	action     Action
}

// Store holds the state of one session. It is safe for concurrent use.
// Subscribers run outside the lock, in dispatch order, and may dispatch.
type Store struct {
	mu       sync.Mutex
	state    State
	subs     map[int]Subscriber
	nextID   int
	queue    []notification
	draining bool
}

// NewStore creates a store holding initial.
func NewStore(initial State) *Store {
	return &Store{
		state: initial.Clone(),
		subs:  make(map[int]Subscriber),
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Params returns the current generation parameters.
func (s *Store) Params() planner.GenerationParameters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Params
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn Subscriber) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Dispatch applies action and notifies subscribers. It returns the state
// after the action. When another goroutine is already delivering
// notifications, Dispatch returns once the action is queued.
func (s *Store) Dispatch(action Action) State {
	_, next := s.Transition(action)
	return next
}

// Transition is Dispatch returning the state the action was applied to as well.
func (s *Store) Transition(action Action) (State, State) {
	s.mu.Lock()
	prev := s.state
	s.state = Reduce(s.state, action)
	next := s.state.Clone()
	s.queue = append(s.queue, notification{prev: prev.Clone(), next: next, action: action})
	if s.draining {
		// The goroutine already draining delivers this one in order.
		s.mu.Unlock()
		return prev.Clone(), next.Clone()
	}
	s.draining = true
	s.mu.Unlock()

	s.drain()
	return prev.Clone(), next.Clone()
}

func (s *Store) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		n := s.queue[0]
		s.queue = s.queue[1:]
		subs := make([]Subscriber, 0, len(s.subs))
		for id := 0; id < s.nextID; id++ {
			if fn, ok := s.subs[id]; ok {
				subs = append(subs, fn)
			}
		}
		s.mu.Unlock()

		for _, fn := range subs {
			fn(n.prev, n.next, n.action)
		}
	}
}
