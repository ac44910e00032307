package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"macro-meal-engine/internal/planner"
	"macro-meal-engine/internal/session"
	"macro-meal-engine/internal/shared"
)

// DefaultWindow is the debounce window applied to parameter edits.
const DefaultWindow = 800 * time.Millisecond

// FailureMessage is shown whenever a generation fails, whatever the cause.
const FailureMessage = "Failed to generate meal plan. Please check your API key or try again."

// PlanGenerator produces a validated plan for a parameter set.
type PlanGenerator interface {
	GeneratePlan(ctx context.Context, params planner.GenerationParameters) (*planner.MealPlan, shared.AgentMeta, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWindow sets the debounce window.
func WithWindow(d time.Duration) Option {
	return func(o *Orchestrator) { o.window = d }
}

// WithScheduler replaces the timer source.
func WithScheduler(s Scheduler) Option {
	return func(o *Orchestrator) { o.sched = s }
}

// WithRecorder records usage metadata of every generation call.
func WithRecorder(r shared.MetaRecorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// Orchestrator turns parameter changes into generation calls. Edits are
// debounced, and at most one call is in flight: a dispatch requested while
// one runs is folded into a single follow-up run with the latest parameters.
type Orchestrator struct {
	store    *session.Store
	gen      PlanGenerator
	recorder shared.MetaRecorder
	logger   *slog.Logger
	window   time.Duration
	sched    Scheduler

	debouncer   *Debouncer
	unsubscribe func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inFlight bool
	pending  bool
	closed   bool
}

// New creates an orchestrator watching store.
func New(store *session.Store, gen PlanGenerator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:  store,
		gen:    gen,
		logger: slog.Default(),
		window: DefaultWindow,
	}
	for _, opt := range opts {
		opt(o)
	}

	o.ctx, o.cancel = context.WithCancel(context.Background())
	o.debouncer = NewDebouncer(o.window, o.sched, o.dispatch)
	o.unsubscribe = store.Subscribe(func(prev, next session.State, _ session.Action) {
		if prev.Params != next.Params {
			o.debouncer.Trigger()
		}
	})
	return o
}

// Start schedules the initial generation for the current parameters.
func (o *Orchestrator) Start() {
	o.debouncer.Trigger()
}

// Retry skips any pending window and generates now with the stored
// parameters.
func (o *Orchestrator) Retry() {
	o.debouncer.Cancel()
	o.dispatch()
}

// Pending reports whether a debounced generation is waiting for its window.
func (o *Orchestrator) Pending() bool {
	return o.debouncer.Pending()
}

// Busy reports whether a generation call is in flight.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inFlight
}

// Close stops watching the store, cancels in-flight work and waits for it.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.unsubscribe()
	o.debouncer.Cancel()
	o.cancel()
	o.wg.Wait()
}

func (o *Orchestrator) dispatch() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}
	if o.inFlight {
		o.pending = true
		return
	}
	o.inFlight = true
	o.wg.Add(1)
	go o.run()
}

func (o *Orchestrator) run() {
	defer o.wg.Done()

	for {
		o.generate()

		o.mu.Lock()
		if o.pending && !o.closed {
			o.pending = false
			o.mu.Unlock()
			continue
		}
		o.pending = false
		o.inFlight = false
		o.mu.Unlock()
		return
	}
}

func (o *Orchestrator) generate() {
	params := o.store.Params()
	o.store.Dispatch(session.GenerationStarted{Params: params})
	o.logger.Info("Generating meal plan", "calories", params.Calories, "exclusions", params.Exclusions)

	plan, meta, err := o.gen.GeneratePlan(o.ctx, params)
	o.record(meta)

	if o.ctx.Err() != nil {
		return
	}
	if err != nil {
		o.logger.Error("Meal plan generation failed", "error", err, "calories", params.Calories)
		o.store.Dispatch(session.GenerationFailed{Message: FailureMessage})
		return
	}
	o.logger.Info("Meal plan generated", "calories", params.Calories, "latency", meta.Latency, "tokens", meta.Usage.TotalTokens)
	o.store.Dispatch(session.GenerationSucceeded{Plan: plan, Params: params})
}

func (o *Orchestrator) record(meta shared.AgentMeta) {
	if o.recorder == nil || meta.AgentName == "" {
		return
	}
	if err := o.recorder.RecordMeta(meta); err != nil {
		o.logger.Warn("Failed to record usage", "agent", meta.AgentName, "error", err)
	}
}
